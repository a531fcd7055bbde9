package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByQuiz retrieves all questions for a quiz, ordered by position.
func (r *QuestionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, prompt, options, correct_answer, pairs
		 FROM questions WHERE quiz_id = $1
		 ORDER BY order_num`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q           model.Question
			optionsJSON []byte
			pairsJSON   []byte
		)
		if err := rows.Scan(&q.Kind, &q.Prompt, &optionsJSON, &q.CorrectAnswer, &pairsJSON); err != nil {
			return nil, err
		}
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
		}
		if len(pairsJSON) > 0 {
			if err := json.Unmarshal(pairsJSON, &q.Pairs); err != nil {
				return nil, fmt.Errorf("decode pairs: %w", err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceAll swaps the full question list of a quiz inside one transaction.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, quizID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quizID); err != nil {
		return err
	}

	for i, q := range questions {
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		pairsJSON, err := json.Marshal(q.Pairs)
		if err != nil {
			return fmt.Errorf("encode pairs: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (quiz_id, order_num, kind, prompt, options, correct_answer, pairs)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			quizID, i, q.Kind, q.Prompt, optionsJSON, q.CorrectAnswer, pairsJSON,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Append inserts a single question at the end of a quiz.
func (r *QuestionRepository) Append(ctx context.Context, quizID uuid.UUID, q model.Question) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	pairsJSON, err := json.Marshal(q.Pairs)
	if err != nil {
		return fmt.Errorf("encode pairs: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO questions (quiz_id, order_num, kind, prompt, options, correct_answer, pairs)
		 SELECT $1, COALESCE(MAX(order_num) + 1, 0), $2, $3, $4, $5, $6
		 FROM questions WHERE quiz_id = $1`,
		quizID, q.Kind, q.Prompt, optionsJSON, q.CorrectAnswer, pairsJSON,
	)
	return err
}

// CountByQuiz returns the number of questions a quiz holds.
func (r *QuestionRepository) CountByQuiz(ctx context.Context, quizID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, quizID,
	).Scan(&n)
	return n, err
}
