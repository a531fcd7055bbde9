package attempt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quizdeck/quizdeck-backend/internal/grading"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

// State enumerates the session lifecycle. Submitted is terminal.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSubmitted State = "SUBMITTED"
)

// Session errors surfaced to callers.
var (
	ErrAlreadySubmitted    = errors.New("attempt already submitted")
	ErrUnansweredQuestions = errors.New("attempt has unanswered questions")
	ErrResultNotSaved      = errors.New("attempt result could not be saved")
	ErrNoQuestions         = errors.New("attempt has no questions")
	ErrQuestionOutOfRange  = errors.New("question index out of range")
)

// Store persists finished attempts. Save replaces any prior result for the
// same (quiz code, student) pair: a student keeps at most one stored result
// per quiz.
type Store interface {
	Save(ctx context.Context, result model.AttemptResult) error
}

// Identity names the student taking the attempt. Supplied by the auth layer.
type Identity struct {
	ID   string
	Name string
	Role string
}

// Session owns the mutable state of one in-progress attempt: the question
// snapshot, the working answer map, the countdown and the one-shot
// submission guard. All mutation goes through its methods; the mutex makes
// logically concurrent triggers (a timer tick racing a manual submit) resolve
// to exactly one persisted result.
type Session struct {
	mu sync.Mutex

	meta      model.QuizMeta
	questions []model.Question
	student   Identity

	answers    model.AnswerMap
	matchOrder map[int][]string // display order of right-hand values, per match question

	remaining int // seconds; meaningful while state == StateRunning
	state     State

	store Store
	now   func() time.Time
}

// Option customizes a session, mainly for tests.
type Option func(*Session)

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRemaining overrides the starting countdown, used when resuming an
// interrupted attempt.
func WithRemaining(seconds int) Option {
	return func(s *Session) { s.remaining = seconds }
}

// WithMatchOrder restores previously shuffled right-hand orders instead of
// reshuffling, so a resumed attempt shows the same layout.
func WithMatchOrder(order map[int][]string) Option {
	return func(s *Session) {
		for i, o := range order {
			s.matchOrder[i] = o
		}
	}
}

// New loads a quiz into a fresh attempt session. Questions failing
// validation are dropped; a resulting empty question set yields an inert
// session whose timer never runs (the caller renders an empty quiz view
// instead of crashing).
func New(meta model.QuizMeta, questions []model.Question, student Identity, store Store, rng *rand.Rand, opts ...Option) *Session {
	valid := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if q.Validate() == nil {
			valid = append(valid, q)
		}
	}

	s := &Session{
		meta:       meta,
		questions:  valid,
		student:    student,
		answers:    make(model.AnswerMap),
		matchOrder: make(map[int][]string),
		remaining:  -1,
		state:      StateRunning,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(valid) == 0 {
		// Nothing to attempt: terminal from the start, no timer, no result.
		s.state = StateSubmitted
		s.remaining = 0
		return s
	}

	if s.remaining < 0 {
		s.remaining = meta.TimeLimitMinutes * 60
	}
	for i, q := range valid {
		if q.Kind == model.QuestionMatch {
			if _, ok := s.matchOrder[i]; !ok {
				s.matchOrder[i] = ShuffleRightOptions(q, rng)
			}
		}
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the countdown value in seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Questions returns the validated question snapshot.
func (s *Session) Questions() []model.Question {
	return s.questions
}

// MatchOrder returns the fixed display order for a match question's
// right-hand values, or nil for other kinds.
func (s *Session) MatchOrder(i int) []string {
	return s.matchOrder[i]
}

// Answers returns a copy of the working answer map.
func (s *Session) Answers() model.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// SetAnswer records the working answer for question i. Valid any time before
// submission; the answer's shape is the caller's responsibility (text for
// single-value kinds, a pair map for match).
func (s *Session) SetAnswer(i int, a model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitted {
		return ErrAlreadySubmitted
	}
	if i < 0 || i >= len(s.questions) {
		return ErrQuestionOutOfRange
	}
	s.answers[i] = a
	return nil
}

// Unanswered returns the indices of questions with no complete answer.
func (s *Session) Unanswered() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unansweredLocked()
}

func (s *Session) unansweredLocked() []int {
	var out []int
	for i, q := range s.questions {
		if !s.answers.Answered(i, q) {
			out = append(out, i)
		}
	}
	return out
}

// Tick advances the countdown by one second. When it reaches zero the
// session force-submits and the graded result is returned; otherwise the
// result is nil. Ticks after submission are no-ops.
func (s *Session) Tick(ctx context.Context) (*model.AttemptResult, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil, nil
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.remaining = 0
	return s.submitLocked(ctx)
}

// NavigateBack handles a reported back-navigation while the attempt runs:
// the attempt force-submits with whatever answers are present. Best-effort
// deterrent only.
func (s *Session) NavigateBack(ctx context.Context) (*model.AttemptResult, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	return s.submitLocked(ctx)
}

// Submit finishes the attempt. Forced submissions (timeout, navigation
// guard) skip the unanswered check. A manual submission with unanswered
// questions requires confirmed=true; otherwise ErrUnansweredQuestions is
// returned and the session stays Running with the guard still armed.
// After the first successful submission every further call returns
// ErrAlreadySubmitted with no result.
func (s *Session) Submit(ctx context.Context, forced, confirmed bool) (*model.AttemptResult, error) {
	s.mu.Lock()
	if len(s.questions) == 0 {
		s.mu.Unlock()
		return nil, ErrNoQuestions
	}
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if !forced && !confirmed && len(s.unansweredLocked()) > 0 {
		s.mu.Unlock()
		return nil, ErrUnansweredQuestions
	}
	return s.submitLocked(ctx)
}

// submitLocked grades, transitions to Submitted and persists. The caller
// must hold s.mu. The lock is released before the store call: the state
// transition has already made the submission exclusive, and the writer may
// be slow. On store failure the graded result is still returned, wrapped
// with ErrResultNotSaved so the display layer can warn that the score may
// not have been recorded.
func (s *Session) submitLocked(ctx context.Context) (*model.AttemptResult, error) {
	s.state = StateSubmitted

	scored := grading.Score(s.questions, s.answers)
	result := model.AttemptResult{
		QuizCode:    s.meta.Code,
		StudentID:   s.student.ID,
		StudentName: s.student.Name,
		Role:        s.student.Role,
		Score:       scored.Correct,
		Total:       scored.Total,
		Percentage:  scored.Percentage,
		AttemptedAt: s.now(),
		Answers:     s.answers.Clone(),
		Questions:   s.questions,
		Quiz:        s.meta,
	}
	result.Certified = result.EligibleForCertificate()
	s.mu.Unlock()

	if err := s.store.Save(ctx, result); err != nil {
		return &result, fmt.Errorf("%w: %v", ErrResultNotSaved, err)
	}
	return &result, nil
}
