package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

var ErrResultNotFound = errors.New("attempt result not found")

// AttemptRepository handles attempt result and guard event data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Upsert stores a result, replacing any earlier attempt by the same
// student on the same quiz.
func (r *AttemptRepository) Upsert(ctx context.Context, res model.AttemptResult) error {
	answersJSON, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_results (quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (quiz_code, student_id) DO UPDATE
		 SET student_name = EXCLUDED.student_name,
		     role = EXCLUDED.role,
		     score = EXCLUDED.score,
		     total = EXCLUDED.total,
		     percentage = EXCLUDED.percentage,
		     attempted_at = EXCLUDED.attempted_at,
		     certified = EXCLUDED.certified,
		     answers = EXCLUDED.answers`,
		res.QuizCode, res.StudentID, res.StudentName, res.Role,
		res.Score, res.Total, res.Percentage, res.AttemptedAt, res.Certified, answersJSON,
	)
	return err
}

// GetByQuizAndStudent retrieves a single student's result on a quiz.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizCode, studentID string) (*model.AttemptResult, error) {
	res := &model.AttemptResult{}
	var answersJSON []byte

	err := r.pool.QueryRow(ctx,
		`SELECT quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers
		 FROM attempt_results WHERE quiz_code = $1 AND student_id = $2`,
		quizCode, studentID,
	).Scan(&res.QuizCode, &res.StudentID, &res.StudentName, &res.Role,
		&res.Score, &res.Total, &res.Percentage, &res.AttemptedAt, &res.Certified, &answersJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return res, nil
}

// ListByQuiz retrieves all results for a quiz, best score first.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizCode string) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers
		 FROM attempt_results WHERE quiz_code = $1
		 ORDER BY percentage DESC, attempted_at ASC`,
		quizCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AttemptResult
	for rows.Next() {
		var (
			res         model.AttemptResult
			answersJSON []byte
		)
		if err := rows.Scan(&res.QuizCode, &res.StudentID, &res.StudentName, &res.Role,
			&res.Score, &res.Total, &res.Percentage, &res.AttemptedAt, &res.Certified, &answersJSON); err != nil {
			return nil, err
		}
		if len(answersJSON) > 0 {
			if err := json.Unmarshal(answersJSON, &res.Answers); err != nil {
				return nil, fmt.Errorf("decode answers: %w", err)
			}
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListByStudent retrieves a student's results across all quizzes, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID string) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers
		 FROM attempt_results WHERE student_id = $1
		 ORDER BY attempted_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AttemptResult
	for rows.Next() {
		var (
			res         model.AttemptResult
			answersJSON []byte
		)
		if err := rows.Scan(&res.QuizCode, &res.StudentID, &res.StudentName, &res.Role,
			&res.Score, &res.Total, &res.Percentage, &res.AttemptedAt, &res.Certified, &answersJSON); err != nil {
			return nil, err
		}
		if len(answersJSON) > 0 {
			if err := json.Unmarshal(answersJSON, &res.Answers); err != nil {
				return nil, fmt.Errorf("decode answers: %w", err)
			}
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListGuardEvents retrieves back-navigation and timer events recorded for a quiz.
func (r *AttemptRepository) ListGuardEvents(ctx context.Context, quizCode string) ([]model.GuardEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_code, student_id, event_type, occurred_at
		 FROM guard_events WHERE quiz_code = $1
		 ORDER BY occurred_at`,
		quizCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.GuardEvent
	for rows.Next() {
		var ev model.GuardEvent
		if err := rows.Scan(&ev.QuizCode, &ev.StudentID, &ev.EventType, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
