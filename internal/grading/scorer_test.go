package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

func mcq(prompt, correct string, options ...string) model.Question {
	return model.Question{
		Kind:          model.QuestionMultipleChoice,
		Prompt:        prompt,
		Options:       options,
		CorrectAnswer: correct,
	}
}

func TestScoreMultipleChoice(t *testing.T) {
	qs := []model.Question{mcq("Capital of France?", "Paris", "Paris", "London", "Rome", "Berlin")}

	res := Score(qs, model.AnswerMap{0: {Text: "Paris"}})
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, []bool{true}, res.PerQuestion)

	res = Score(qs, model.AnswerMap{0: {Text: "London"}})
	assert.Equal(t, 0, res.Correct)

	// Grading is normalization-based, not literal.
	res = Score(qs, model.AnswerMap{0: {Text: " paris "}})
	assert.Equal(t, 1, res.Correct)
}

func TestScoreTrueFalseAndFillBlank(t *testing.T) {
	qs := []model.Question{
		{Kind: model.QuestionTrueFalse, Prompt: "Go has generics", CorrectAnswer: "True"},
		{Kind: model.QuestionFillBlank, Prompt: "HTTP port", CorrectAnswer: "80"},
	}

	res := Score(qs, model.AnswerMap{0: {Text: "true"}, 1: {Text: " 80"}})
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 100, res.Percentage)
}

func TestScoreMissingAnswerIsIncorrect(t *testing.T) {
	qs := []model.Question{
		mcq("q1", "a", "a", "b", "c", "d"),
		{Kind: model.QuestionFillBlank, Prompt: "q2", CorrectAnswer: "x"},
	}

	res := Score(qs, model.AnswerMap{})
	assert.Equal(t, 0, res.Correct)
	assert.Equal(t, []bool{false, false}, res.PerQuestion)
}

func TestScoreMatchAllOrNothing(t *testing.T) {
	q := model.Question{
		Kind:   model.QuestionMatch,
		Prompt: "Sounds",
		Pairs: []model.MatchPair{
			{Left: "Dog", Right: "Bark"},
			{Left: "Cat", Right: "Meow"},
			{Left: "Cow", Right: "Moo"},
		},
	}

	// 2 of 3 pairs correct still contributes zero.
	partial := model.AnswerMap{0: {Pairs: map[int]string{0: "Bark", 1: "Meow", 2: "Purr"}}}
	res := Score([]model.Question{q}, partial)
	assert.Equal(t, 0, res.Correct)

	full := model.AnswerMap{0: {Pairs: map[int]string{0: "Bark", 1: "Meow", 2: "Moo"}}}
	res = Score([]model.Question{q}, full)
	assert.Equal(t, 1, res.Correct)

	// Absent pair map never panics.
	res = Score([]model.Question{q}, model.AnswerMap{0: {}})
	assert.Equal(t, 0, res.Correct)
}

func TestScoreMatchTwoPairsWrongSecond(t *testing.T) {
	q := model.Question{
		Kind:   model.QuestionMatch,
		Prompt: "Sounds",
		Pairs: []model.MatchPair{
			{Left: "Dog", Right: "Bark"},
			{Left: "Cat", Right: "Meow"},
		},
	}
	res := Score([]model.Question{q}, model.AnswerMap{0: {Pairs: map[int]string{0: "Bark", 1: "Purr"}}})
	assert.Equal(t, 0, res.Correct)
	assert.Equal(t, []bool{false}, res.PerQuestion)
}

func TestScoreDeterministic(t *testing.T) {
	qs := []model.Question{
		mcq("q1", "a", "a", "b", "c", "d"),
		{Kind: model.QuestionTrueFalse, Prompt: "q2", CorrectAnswer: "False"},
	}
	ans := model.AnswerMap{0: {Text: "a"}, 1: {Text: "True"}}

	first := Score(qs, ans)
	second := Score(qs, ans)
	require.Equal(t, first, second)
}

func TestPercentageRounding(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(3, 0))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 50, Percentage(1, 2))
	assert.Equal(t, 13, Percentage(1, 8)) // 12.5 rounds half up
	assert.Equal(t, 100, Percentage(4, 4))
}
