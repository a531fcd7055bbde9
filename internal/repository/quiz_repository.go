package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

var (
	ErrQuizNotFound  = errors.New("quiz not found")
	ErrDuplicateCode = errors.New("quiz with this join code already exists")
)

// QuizRepository handles quiz data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

const quizColumns = `q.id, q.code, q.title, q.description, q.subject, q.difficulty,
	q.time_limit_minutes, q.certify_perfect, q.author_id, q.status,
	(SELECT COUNT(*) FROM questions WHERE quiz_id = q.id) AS question_count,
	q.created_at, q.updated_at`

func scanQuiz(row pgx.Row) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := row.Scan(&q.ID, &q.Code, &q.Title, &q.Description, &q.Subject, &q.Difficulty,
		&q.TimeLimitMinutes, &q.CertifyPerfect, &q.AuthorID, &q.Status,
		&q.QuestionCount, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a quiz by ID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes q WHERE q.id = $1`, id))
}

// GetByCode retrieves a quiz by its join code.
func (r *QuizRepository) GetByCode(ctx context.Context, code string) (*model.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes q WHERE q.code = $1`, code))
}

// ListByAuthor retrieves all quizzes owned by a teacher, newest first.
func (r *QuizRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes q WHERE q.author_id = $1 ORDER BY q.created_at DESC`,
		authorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, rows.Err()
}

// ListPublished retrieves every published quiz, used for cache prewarming.
func (r *QuizRepository) ListPublished(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes q WHERE q.status = $1`,
		model.QuizStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, rows.Err()
}

// Create inserts a new quiz.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (code, title, description, subject, difficulty, time_limit_minutes, certify_perfect, author_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		q.Code, q.Title, q.Description, q.Subject, q.Difficulty,
		q.TimeLimitMinutes, q.CertifyPerfect, q.AuthorID, q.Status,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// Update modifies a quiz's editable fields.
func (r *QuizRepository) Update(ctx context.Context, q *model.Quiz) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quizzes
		 SET title = $1, description = $2, subject = $3, difficulty = $4,
		     time_limit_minutes = $5, certify_perfect = $6, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $7`,
		q.Title, q.Description, q.Subject, q.Difficulty,
		q.TimeLimitMinutes, q.CertifyPerfect, q.ID,
	)
	return err
}

// UpdateStatus transitions a quiz to a new lifecycle status.
func (r *QuizRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}

// Delete removes a quiz. Questions and results cascade at the schema level.
func (r *QuizRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}
