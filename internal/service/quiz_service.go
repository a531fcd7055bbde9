package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
	"github.com/quizdeck/quizdeck-backend/internal/repository"
)

// Common quiz errors.
var (
	ErrNotQuizAuthor    = errors.New("not the author of this quiz")
	ErrQuizNotDraft     = errors.New("quiz status is not DRAFT")
	ErrQuizNotPublished = errors.New("quiz status is not PUBLISHED")
	ErrNoQuestions      = errors.New("quiz has no questions")
)

// codeAlphabet excludes easily confused characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// QuizService handles quiz authoring, lifecycle, and Redis caching.
type QuizService struct {
	quizRepo     *repository.QuizRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizRepo:     quizRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetByID retrieves a quiz by its UUID.
func (s *QuizService) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return s.quizRepo.GetByID(ctx, id)
}

// GetByCode retrieves a quiz by its join code.
func (s *QuizService) GetByCode(ctx context.Context, code string) (*model.Quiz, error) {
	return s.quizRepo.GetByCode(ctx, code)
}

// ListByAuthor retrieves a teacher's quizzes.
func (s *QuizService) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]model.Quiz, error) {
	quizzes, err := s.quizRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	return quizzes, nil
}

// Create inserts a new quiz as DRAFT with a freshly generated join code.
func (s *QuizService) Create(ctx context.Context, quiz *model.Quiz) error {
	quiz.Status = model.QuizStatusDraft

	// Retry on the rare join code collision.
	for attempt := 0; attempt < 5; attempt++ {
		quiz.Code = generateJoinCode()
		err := s.quizRepo.Create(ctx, quiz)
		if errors.Is(err, repository.ErrDuplicateCode) {
			continue
		}
		return err
	}
	return repository.ErrDuplicateCode
}

func generateJoinCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(code)
}

// Update modifies an existing draft quiz.
func (s *QuizService) Update(ctx context.Context, authorID uuid.UUID, quiz *model.Quiz) error {
	existing, err := s.quizRepo.GetByID(ctx, quiz.ID)
	if err != nil {
		return err
	}
	if existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.quizRepo.Update(ctx, quiz)
}

// Delete removes a quiz that is not currently published.
func (s *QuizService) Delete(ctx context.Context, id uuid.UUID, authorID uuid.UUID) error {
	existing, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status == model.QuizStatusPublished {
		return errors.New("unpublish the quiz before deleting it")
	}
	return s.quizRepo.Delete(ctx, id)
}

// ReplaceQuestions swaps the full question list of a draft quiz.
func (s *QuizService) ReplaceQuestions(ctx context.Context, quizID uuid.UUID, authorID uuid.UUID, questions []model.Question) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}

	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}

	return s.questionRepo.ReplaceAll(ctx, quizID, questions)
}

// ListQuestions retrieves the full question list, answers included.
// Caller must enforce author access.
func (s *QuizService) ListQuestions(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByQuiz(ctx, quizID)
}

// Publish changes quiz status to PUBLISHED and caches the payload plus
// grading snapshot in Redis so attempts never touch PostgreSQL.
func (s *QuizService) Publish(ctx context.Context, quizID uuid.UUID, authorID uuid.UUID) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("quiz_code", quiz.Code).Msg("Quiz published")
	return nil
}

// Archive retires a published quiz and drops its cached payload.
func (s *QuizService) Archive(ctx context.Context, quizID uuid.UUID, authorID uuid.UUID) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrQuizNotPublished
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusArchived); err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.QuizPayloadKey(quiz.Code))
	pipe.Del(ctx, config.CacheKey.QuizAnswerKey(quiz.Code))
	pipe.Del(ctx, config.CacheKey.QuizDurationKey(quiz.Code))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("quiz_code", quiz.Code).Msg("Failed to drop quiz cache")
	}

	s.log.Info().Str("quiz_code", quiz.Code).Msg("Quiz archived")
	return nil
}

// WarmQuizCache loads a quiz's student payload and grading snapshot from
// PostgreSQL into Redis. Used by Publish and PrewarmAllCaches.
func (s *QuizService) WarmQuizCache(ctx context.Context, quiz *model.Quiz) error {
	questions, err := s.questionRepo.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = q.ForStudent(i)
	}

	payload := model.QuizPayload{
		Meta:      quiz.Meta(),
		Questions: studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	snapshotJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal grading snapshot: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(quiz.Code), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizAnswerKey(quiz.Code), snapshotJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizDurationKey(quiz.Code), strconv.Itoa(quiz.TimeLimitMinutes*60), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("quiz_code", quiz.Code).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published quizzes into Redis on application
// startup so the first attempt after a restart is not a cache miss.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No published quizzes to prewarm")
		return nil
	}

	warmed := 0
	for i := range quizzes {
		if err := s.WarmQuizCache(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_code", quizzes[i].Code).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

// GetQuizPayload retrieves the cached student payload from Redis.
func (s *QuizService) GetQuizPayload(ctx context.Context, code string) (*model.QuizPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQuizNotPublished
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetGradingSnapshot retrieves the full question list, answers included,
// from Redis. Attempts grade against this snapshot so mid-attempt edits
// by the author never affect a running session.
func (s *QuizService) GetGradingSnapshot(ctx context.Context, code string) ([]model.Question, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizAnswerKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQuizNotPublished
		}
		return nil, fmt.Errorf("get grading snapshot: %w", err)
	}

	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal grading snapshot: %w", err)
	}
	return questions, nil
}
