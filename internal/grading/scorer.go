package grading

import (
	"math"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

// Result is the outcome of grading one full answer set.
type Result struct {
	PerQuestion []bool `json:"per_question"`
	Correct     int    `json:"correct"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
}

// Score grades every question against the answer map. It is a pure function:
// no side effects, deterministic, and safe to call repeatedly (e.g. for a
// live preview). Missing or malformed answers grade as incorrect, never as
// an error.
func Score(questions []model.Question, answers model.AnswerMap) Result {
	res := Result{
		PerQuestion: make([]bool, len(questions)),
		Total:       len(questions),
	}

	for i, q := range questions {
		ok := gradeOne(q, answers[i])
		res.PerQuestion[i] = ok
		if ok {
			res.Correct++
		}
	}

	res.Percentage = Percentage(res.Correct, res.Total)
	return res
}

// Percentage computes round-half-up percent, defined as 0 when total is 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(correct)/float64(total)*100 + 0.5))
}

func gradeOne(q model.Question, a model.Answer) bool {
	switch q.Kind {
	case model.QuestionMultipleChoice, model.QuestionTrueFalse, model.QuestionFillBlank:
		if a.Text == "" {
			return false
		}
		return Equal(a.Text, q.CorrectAnswer)
	case model.QuestionMatch:
		// All-or-nothing: every pair must carry the key's right value.
		for j, p := range q.Pairs {
			if !Equal(a.Pairs[j], p.Right) {
				return false
			}
		}
		return len(q.Pairs) > 0
	default:
		return false
	}
}
