package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizStatus enumerates the possible states of a quiz.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusPublished QuizStatus = "PUBLISHED"
	QuizStatusArchived  QuizStatus = "ARCHIVED"
)

// Quiz is the authored quiz entity. Code is the short join code students
// use to start an attempt; it is unique across the deployment.
type Quiz struct {
	ID               uuid.UUID  `json:"id"`
	Code             string     `json:"code"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Subject          string     `json:"subject"`
	Difficulty       string     `json:"difficulty"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	CertifyPerfect   bool       `json:"certify_perfect"`
	AuthorID         uuid.UUID  `json:"author_id"`
	Status           QuizStatus `json:"status"`
	QuestionCount    int        `json:"question_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Meta extracts the attempt-facing snapshot of the quiz. The snapshot is
// immutable once an attempt begins.
func (q Quiz) Meta() QuizMeta {
	return QuizMeta{
		Code:             q.Code,
		Title:            q.Title,
		Description:      q.Description,
		Subject:          q.Subject,
		Difficulty:       q.Difficulty,
		TimeLimitMinutes: q.TimeLimitMinutes,
		CertifyPerfect:   q.CertifyPerfect,
	}
}

// QuizMeta is the read-only quiz header carried through an attempt and
// stored with the graded result.
type QuizMeta struct {
	Code             string `json:"code"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Subject          string `json:"subject"`
	Difficulty       string `json:"difficulty"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	CertifyPerfect   bool   `json:"certify_perfect"`
}

// CreateQuizRequest is the payload for creating a new quiz (starts as DRAFT).
type CreateQuizRequest struct {
	Title            string `json:"title" binding:"required,min=3,max=255"`
	Description      string `json:"description" binding:"max=2000"`
	Subject          string `json:"subject" binding:"max=100"`
	Difficulty       string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	TimeLimitMinutes int    `json:"time_limit_minutes" binding:"required,min=1,max=480"`
	CertifyPerfect   bool   `json:"certify_perfect"`
}

// UpdateQuizRequest is the payload for updating a draft quiz.
type UpdateQuizRequest struct {
	Title            string `json:"title" binding:"omitempty,min=3,max=255"`
	Description      string `json:"description" binding:"omitempty,max=2000"`
	Subject          string `json:"subject" binding:"omitempty,max=100"`
	Difficulty       string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	TimeLimitMinutes int    `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	CertifyPerfect   *bool  `json:"certify_perfect" binding:"omitempty"`
}

// QuizPayload is the redis-cached payload served to students when an attempt
// loads. Questions carry no answer keys.
type QuizPayload struct {
	Meta      QuizMeta             `json:"meta"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent strips the answer key from a question. Match questions
// keep only the left column; the right column is delivered separately in the
// per-attempt shuffled order.
type QuestionForStudent struct {
	Index   int          `json:"index"`
	Kind    QuestionKind `json:"kind"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
	Lefts   []string     `json:"lefts,omitempty"`
}

// ForStudent builds the answer-free view of a question at position idx.
func (q Question) ForStudent(idx int) QuestionForStudent {
	out := QuestionForStudent{
		Index:   idx,
		Kind:    q.Kind,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
	if q.Kind == QuestionMatch {
		out.Lefts = make([]string, len(q.Pairs))
		for i, p := range q.Pairs {
			out.Lefts[i] = p.Left
		}
	}
	return out
}
