package model

import "time"

// Answer is a single question's answer as held during an attempt. Text is
// used by multiple choice, true/false and fill-in-the-blank questions; Pairs
// maps a match question's pair index to the selected right-hand value.
type Answer struct {
	Text  string         `json:"text,omitempty"`
	Pairs map[int]string `json:"pairs,omitempty"`
}

// IsEmpty reports whether no selection has been made at all.
func (a Answer) IsEmpty() bool {
	return a.Text == "" && len(a.Pairs) == 0
}

// AnswerMap maps question index (0-based, question order) to the working
// answer. Unanswered questions are simply absent.
type AnswerMap map[int]Answer

// Answered reports whether the question at index i is fully answered with
// respect to its kind: non-empty text, or every pair filled for match.
func (m AnswerMap) Answered(i int, q Question) bool {
	a, ok := m[i]
	if !ok {
		return false
	}
	if q.Kind == QuestionMatch {
		for j := range q.Pairs {
			if a.Pairs[j] == "" {
				return false
			}
		}
		return true
	}
	return a.Text != ""
}

// Clone deep-copies the map so a persisted result cannot alias the session's
// working state.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for i, a := range m {
		c := Answer{Text: a.Text}
		if a.Pairs != nil {
			c.Pairs = make(map[int]string, len(a.Pairs))
			for j, v := range a.Pairs {
				c.Pairs[j] = v
			}
		}
		out[i] = c
	}
	return out
}

// AttemptResult is the immutable graded record of one attempt. Exactly one
// is produced per attempt session; the store keeps at most one per
// (quiz code, student) pair, the newest replacing any prior one.
type AttemptResult struct {
	QuizCode    string     `json:"quiz_code"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Role        string     `json:"role"`
	Score       int        `json:"score"`
	Total       int        `json:"total"`
	Percentage  int        `json:"percentage"`
	AttemptedAt time.Time  `json:"attempted_at"`
	Certified   bool       `json:"certified"`
	Answers     AnswerMap  `json:"answers"`
	Questions   []Question `json:"questions"`
	Quiz        QuizMeta   `json:"quiz"`
}

// EligibleForCertificate reports whether this result earns a certificate:
// the quiz opted in and the score is perfect. Certified caches the outcome
// for stored results, which do not carry the quiz meta.
func (r AttemptResult) EligibleForCertificate() bool {
	return r.Quiz.CertifyPerfect && r.Total > 0 && r.Score == r.Total
}
