package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdeck/quizdeck-backend/internal/attempt"
	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
	"github.com/quizdeck/quizdeck-backend/internal/repository"
)

// ErrNoActiveAttempt is returned when an action targets an attempt that is
// not currently running on this instance.
var ErrNoActiveAttempt = errors.New("no active attempt for this quiz")

// AttemptView is the state pushed to a student when an attempt starts or
// resumes.
type AttemptView struct {
	Quiz       model.QuizMeta             `json:"quiz"`
	Questions  []model.QuestionForStudent `json:"questions"`
	MatchOrder map[int][]string           `json:"match_order,omitempty"`
	Remaining  int                        `json:"remaining_seconds"`
	Answers    model.AnswerMap            `json:"answers,omitempty"`
}

// ForcedResult is a timer-forced submission outcome. Err is set when the
// graded result could not be queued for persistence, so transports can
// warn the student alongside the score.
type ForcedResult struct {
	Result *model.AttemptResult
	Err    error
}

// runningAttempt pairs a session with its countdown goroutine. forced
// carries a timer-forced result to the student's open WebSocket.
type runningAttempt struct {
	session  *attempt.Session
	code     string
	student  attempt.Identity
	stop     chan struct{}
	stopOnce sync.Once
	forced   chan ForcedResult
}

// AttemptService orchestrates live attempt sessions: it builds them from
// the Redis quiz cache, drives their one-second countdown, autosaves
// answers, and queues graded results and guard events for the persistence
// workers.
type AttemptService struct {
	quizService *QuizService
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*runningAttempt
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	quizService *QuizService,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		quizService: quizService,
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
		sessions:    make(map[string]*runningAttempt),
	}
}

func attemptKey(code, studentID string) string {
	return code + ":" + studentID
}

// queueStore fulfils the session's persistence port by queueing graded
// results to Redis. The result worker drains the queue into PostgreSQL.
type queueStore struct {
	rdb *redis.Client
}

func (q queueStore) Save(ctx context.Context, result model.AttemptResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err()
}

// Start begins or resumes an attempt on a published quiz. The question
// snapshot and time limit come from the Redis cache warmed at publish; a
// session interrupted by a server restart resumes with its saved answers,
// match layout and the countdown it had left.
func (s *AttemptService) Start(ctx context.Context, code string, student attempt.Identity) (*AttemptView, error) {
	key := attemptKey(code, student.ID)

	s.mu.Lock()
	if ra, ok := s.sessions[key]; ok && ra.session.State() == attempt.StateRunning {
		s.mu.Unlock()
		return s.view(ctx, ra), nil
	}
	s.mu.Unlock()

	payload, err := s.quizService.GetQuizPayload(ctx, code)
	if err != nil {
		return nil, err
	}
	questions, err := s.quizService.GetGradingSnapshot(ctx, code)
	if err != nil {
		return nil, err
	}

	opts := []attempt.Option{}
	if remaining, ok := s.savedRemaining(ctx, code, student.ID, payload.Meta.TimeLimitMinutes); ok {
		opts = append(opts, attempt.WithRemaining(remaining))
	}
	if order := s.savedMatchOrder(ctx, code, student.ID); order != nil {
		opts = append(opts, attempt.WithMatchOrder(order))
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sess := attempt.New(payload.Meta, questions, student, queueStore{rdb: s.rdb}, rng, opts...)

	ra := &runningAttempt{
		session: sess,
		code:    code,
		student: student,
		stop:    make(chan struct{}),
		forced:  make(chan ForcedResult, 1),
	}

	// Re-check under the insert lock: a Start racing this one (the HTTP
	// start racing the WebSocket connect) must not leave two live sessions
	// with two timers. The first insert wins; the duplicate session is
	// discarded before its timer ever starts.
	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok && existing.session.State() == attempt.StateRunning {
		s.mu.Unlock()
		return s.view(ctx, existing), nil
	}
	s.sessions[key] = ra
	s.mu.Unlock()

	s.persistAttemptState(ctx, ra)
	s.restoreAnswers(ctx, ra)

	if sess.State() == attempt.StateRunning {
		go s.runTimer(key, ra)
	}

	s.log.Info().
		Str("quiz_code", code).
		Str("student_id", student.ID).
		Int("remaining", sess.Remaining()).
		Msg("Attempt started")

	return s.view(ctx, ra), nil
}

// Get returns the live view of a running attempt, for reconnects.
func (s *AttemptService) Get(ctx context.Context, code, studentID string) (*AttemptView, error) {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ra), nil
}

// SaveAnswer records a working answer and autosaves it to Redis so the
// attempt survives a server restart.
func (s *AttemptService) SaveAnswer(ctx context.Context, code, studentID string, idx int, answer model.Answer) error {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return err
	}
	if err := ra.session.SetAnswer(idx, answer); err != nil {
		return err
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	if err := s.rdb.HSet(ctx, config.CacheKey.StudentAnswersKey(code, studentID), strconv.Itoa(idx), raw).Err(); err != nil {
		// Autosave is best-effort; the in-memory answer is already recorded.
		s.log.Warn().Err(err).Str("quiz_code", code).Msg("Answer autosave failed")
	}
	return nil
}

// Unanswered returns the indices of questions still missing an answer.
func (s *AttemptService) Unanswered(code, studentID string) ([]int, error) {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return nil, err
	}
	return ra.session.Unanswered(), nil
}

// Submit finishes an attempt. A manual submission with unanswered questions
// is rejected until the student confirms.
func (s *AttemptService) Submit(ctx context.Context, code, studentID string, forced, confirmed bool) (*model.AttemptResult, error) {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return nil, err
	}

	result, err := ra.session.Submit(ctx, forced, confirmed)
	if result != nil {
		s.finish(ctx, ra)
	}
	return result, err
}

// NavigateBack handles a back-navigation report: the attempt force-submits
// and a guard event is queued for the teacher's audit view.
func (s *AttemptService) NavigateBack(ctx context.Context, code, studentID string) (*model.AttemptResult, error) {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return nil, err
	}

	result, navErr := ra.session.NavigateBack(ctx)
	if result != nil {
		s.enqueueGuardEvent(ctx, code, studentID, model.GuardBackNavigation)
		s.finish(ctx, ra)
	}
	return result, navErr
}

// ForcedSubmission exposes the channel that delivers a timer-forced result
// for a running attempt, so the transport can push it to the student.
func (s *AttemptService) ForcedSubmission(code, studentID string) (<-chan ForcedResult, error) {
	ra, err := s.lookup(code, studentID)
	if err != nil {
		return nil, err
	}
	return ra.forced, nil
}

// ResultsByQuiz lists stored results for a quiz after verifying authorship.
func (s *AttemptService) ResultsByQuiz(ctx context.Context, code string, authorID string) ([]model.AttemptResult, error) {
	quiz, err := s.quizService.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if quiz.AuthorID.String() != authorID {
		return nil, ErrNotQuizAuthor
	}

	results, err := s.attemptRepo.ListByQuiz(ctx, code)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.AttemptResult{}
	}
	return results, nil
}

// ResultsByStudent lists a student's own stored results.
func (s *AttemptService) ResultsByStudent(ctx context.Context, studentID string) ([]model.AttemptResult, error) {
	results, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.AttemptResult{}
	}
	return results, nil
}

// GuardEventsByQuiz lists guard events for a quiz after verifying authorship.
func (s *AttemptService) GuardEventsByQuiz(ctx context.Context, code string, authorID string) ([]model.GuardEvent, error) {
	quiz, err := s.quizService.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if quiz.AuthorID.String() != authorID {
		return nil, ErrNotQuizAuthor
	}

	events, err := s.attemptRepo.ListGuardEvents(ctx, code)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.GuardEvent{}
	}
	return events, nil
}

// Shutdown stops every countdown goroutine. Running sessions stay resumable
// through their autosaved Redis state.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ra := range s.sessions {
		ra.stopOnce.Do(func() { close(ra.stop) })
		delete(s.sessions, key)
	}
}

func (s *AttemptService) lookup(code, studentID string) (*runningAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.sessions[attemptKey(code, studentID)]
	if !ok {
		return nil, ErrNoActiveAttempt
	}
	return ra, nil
}

func (s *AttemptService) view(ctx context.Context, ra *runningAttempt) *AttemptView {
	payload, err := s.quizService.GetQuizPayload(ctx, ra.code)

	questions := []model.QuestionForStudent{}
	if err == nil {
		questions = payload.Questions
	}

	matchOrder := make(map[int][]string)
	for i, q := range ra.session.Questions() {
		if q.Kind == model.QuestionMatch {
			matchOrder[i] = ra.session.MatchOrder(i)
		}
	}

	view := &AttemptView{
		Questions: questions,
		Remaining: ra.session.Remaining(),
		Answers:   ra.session.Answers(),
	}
	if len(matchOrder) > 0 {
		view.MatchOrder = matchOrder
	}
	if err == nil {
		view.Quiz = payload.Meta
	}
	return view
}

// runTimer drives the session's one-second countdown until submission.
func (s *AttemptService) runTimer(key string, ra *runningAttempt) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ra.stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			result, err := ra.session.Tick(ctx)
			if err != nil {
				s.log.Error().Err(err).
					Str("quiz_code", ra.code).
					Str("student_id", ra.student.ID).
					Msg("Forced submission on timeout failed to enqueue")
			}
			if result != nil {
				s.enqueueGuardEvent(ctx, ra.code, ra.student.ID, model.GuardTimeExpired)
				select {
				case ra.forced <- ForcedResult{Result: result, Err: err}:
				default:
				}
			}
			if ra.session.State() == attempt.StateSubmitted {
				s.finish(ctx, ra)
				return
			}
		}
	}
}

// finish tears down a completed attempt: the registry entry, the countdown
// goroutine and the resume keys in Redis. The autosaved answers are left
// for the result worker to clear after the result lands in PostgreSQL.
func (s *AttemptService) finish(ctx context.Context, ra *runningAttempt) {
	key := attemptKey(ra.code, ra.student.ID)

	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()

	ra.stopOnce.Do(func() { close(ra.stop) })

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.StudentAttemptStartKey(ra.code, ra.student.ID))
	pipe.Del(ctx, config.CacheKey.StudentMatchOrderKey(ra.code, ra.student.ID))
	pipe.Del(ctx, config.CacheKey.StudentActiveQuizKey(ra.student.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("quiz_code", ra.code).Msg("Failed to clear attempt state")
	}
}

func (s *AttemptService) enqueueGuardEvent(ctx context.Context, code, studentID string, eventType model.GuardEventType) {
	ev := model.GuardEvent{
		QuizCode:   code,
		StudentID:  studentID,
		EventType:  eventType,
		OccurredAt: time.Now(),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal guard event failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistGuardEventsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("quiz_code", code).Msg("Enqueue guard event failed")
	}
}

// persistAttemptState writes the resume keys for a fresh attempt.
func (s *AttemptService) persistAttemptState(ctx context.Context, ra *runningAttempt) {
	if ra.session.State() != attempt.StateRunning {
		return
	}

	pipe := s.rdb.Pipeline()
	startKey := config.CacheKey.StudentAttemptStartKey(ra.code, ra.student.ID)
	pipe.SetNX(ctx, startKey, strconv.FormatInt(time.Now().Unix(), 10), 0)
	pipe.Set(ctx, config.CacheKey.StudentActiveQuizKey(ra.student.ID), ra.code, 0)

	matchOrder := make(map[int][]string)
	for i, q := range ra.session.Questions() {
		if q.Kind == model.QuestionMatch {
			matchOrder[i] = ra.session.MatchOrder(i)
		}
	}
	if len(matchOrder) > 0 {
		raw, err := json.Marshal(matchOrder)
		if err == nil {
			pipe.Set(ctx, config.CacheKey.StudentMatchOrderKey(ra.code, ra.student.ID), raw, 0)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("quiz_code", ra.code).Msg("Failed to persist attempt state")
	}
}

// savedRemaining computes the countdown left for a resumed attempt from
// the stored start timestamp. Returns false for a fresh attempt.
func (s *AttemptService) savedRemaining(ctx context.Context, code, studentID string, timeLimitMinutes int) (int, bool) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.StudentAttemptStartKey(code, studentID)).Result()
	if err != nil {
		return 0, false
	}
	startUnix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	elapsed := int(time.Since(time.Unix(startUnix, 0)).Seconds())
	remaining := timeLimitMinutes*60 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// savedMatchOrder restores the shuffled match layout of a resumed attempt.
func (s *AttemptService) savedMatchOrder(ctx context.Context, code, studentID string) map[int][]string {
	raw, err := s.rdb.Get(ctx, config.CacheKey.StudentMatchOrderKey(code, studentID)).Bytes()
	if err != nil {
		return nil
	}
	var order map[int][]string
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil
	}
	return order
}

// restoreAnswers loads autosaved answers into a resumed session.
func (s *AttemptService) restoreAnswers(ctx context.Context, ra *runningAttempt) {
	saved, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(ra.code, ra.student.ID)).Result()
	if err != nil || len(saved) == 0 {
		return
	}

	for field, raw := range saved {
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var answer model.Answer
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			continue
		}
		if err := ra.session.SetAnswer(idx, answer); err != nil {
			s.log.Warn().Err(err).
				Str("quiz_code", ra.code).
				Int("question", idx).
				Msg("Skipping unrestorable autosaved answer")
		}
	}
}
