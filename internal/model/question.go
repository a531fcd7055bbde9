package model

import "errors"

// QuestionKind tags the four supported question variants.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionTrueFalse      QuestionKind = "true_false"
	QuestionFillBlank      QuestionKind = "fill_blank"
	QuestionMatch          QuestionKind = "match"
)

// MatchPair is one left/right pairing of a match question. Right values are
// what students pick from; the pairing itself is the answer key.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question is a tagged union over the four question kinds. Which fields are
// meaningful depends on Kind:
//   - multiple_choice: Options (4 entries) + CorrectAnswer (option text)
//   - true_false:      CorrectAnswer ("True" or "False")
//   - fill_blank:      CorrectAnswer (free text)
//   - match:           Pairs (the ordered key; no CorrectAnswer)
type Question struct {
	Kind          QuestionKind `json:"kind"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Pairs         []MatchPair  `json:"pairs,omitempty"`
}

// Validation errors for question payloads.
var (
	ErrEmptyPrompt     = errors.New("question prompt is empty")
	ErrNoCorrectAnswer = errors.New("question has no correct answer")
	ErrBadOptionCount  = errors.New("multiple choice question needs exactly 4 options")
	ErrNoPairs         = errors.New("match question has no pairs")
	ErrUnknownKind     = errors.New("unknown question kind")
)

// Validate enforces the structural invariants of a question: non-empty
// prompt and a non-empty answer key for its kind.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return ErrEmptyPrompt
	}

	switch q.Kind {
	case QuestionMultipleChoice:
		if len(q.Options) != 4 {
			return ErrBadOptionCount
		}
		if q.CorrectAnswer == "" {
			return ErrNoCorrectAnswer
		}
	case QuestionTrueFalse, QuestionFillBlank:
		if q.CorrectAnswer == "" {
			return ErrNoCorrectAnswer
		}
	case QuestionMatch:
		if len(q.Pairs) == 0 {
			return ErrNoPairs
		}
		for _, p := range q.Pairs {
			if p.Left == "" || p.Right == "" {
				return ErrNoCorrectAnswer
			}
		}
	default:
		return ErrUnknownKind
	}

	return nil
}

// RightOptions returns the right-hand values of a match question in key
// order. Empty for non-match kinds.
func (q Question) RightOptions() []string {
	if q.Kind != QuestionMatch {
		return nil
	}
	out := make([]string, len(q.Pairs))
	for i, p := range q.Pairs {
		out[i] = p.Right
	}
	return out
}

// AddQuestionRequest is the payload for appending a question to a quiz.
type AddQuestionRequest struct {
	Kind    string      `json:"kind" binding:"required,oneof=multiple_choice true_false fill_blank match"`
	Prompt  string      `json:"prompt" binding:"required,min=1,max=2000"`
	Options []string    `json:"options" binding:"omitempty,len=4"`
	Answer  string      `json:"answer" binding:"omitempty,max=500"`
	Pairs   []MatchPair `json:"pairs" binding:"omitempty,dive"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing a quiz's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}

// Question converts the request into a model Question.
func (r AddQuestionRequest) Question() Question {
	return Question{
		Kind:          QuestionKind(r.Kind),
		Prompt:        r.Prompt,
		Options:       r.Options,
		CorrectAnswer: r.Answer,
		Pairs:         r.Pairs,
	}
}
