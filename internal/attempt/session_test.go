package attempt

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

var testMeta = model.QuizMeta{
	Code:             "GEO101",
	Title:            "Geography Basics",
	TimeLimitMinutes: 1,
	CertifyPerfect:   true,
}

var testStudent = Identity{ID: "s-1", Name: "Ada", Role: "student"}

func capitalQuestion() model.Question {
	return model.Question{
		Kind:          model.QuestionMultipleChoice,
		Prompt:        "Capital of France?",
		Options:       []string{"Paris", "London", "Rome", "Berlin"},
		CorrectAnswer: "Paris",
	}
}

func soundsQuestion() model.Question {
	return model.Question{
		Kind:   model.QuestionMatch,
		Prompt: "Animal sounds",
		Pairs: []model.MatchPair{
			{Left: "Dog", Right: "Bark"},
			{Left: "Cat", Right: "Meow"},
		},
	}
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestSession(t *testing.T, questions []model.Question) (*Session, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	rng := rand.New(rand.NewSource(42))
	return New(testMeta, questions, testStudent, store, rng, WithClock(fixedClock())), store
}

func TestAnsweredQuizScoresPerfect(t *testing.T) {
	s, store := newTestSession(t, []model.Question{capitalQuestion()})

	require.NoError(t, s.SetAnswer(0, model.Answer{Text: "Paris"}))
	res, err := s.Submit(context.Background(), false, false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 100, res.Percentage)
	assert.True(t, res.EligibleForCertificate())

	stored, err := store.ListByQuiz(context.Background(), "GEO101")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "s-1", stored[0].StudentID)
}

func TestMismatchedPairScoresZero(t *testing.T) {
	s, _ := newTestSession(t, []model.Question{soundsQuestion()})

	require.NoError(t, s.SetAnswer(0, model.Answer{Pairs: map[int]string{0: "Bark", 1: "Purr"}}))
	res, err := s.Submit(context.Background(), false, false)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 2, res.Total)
	assert.False(t, res.EligibleForCertificate())
}

func TestTimerExpiryForcesSingleSubmission(t *testing.T) {
	s, store := newTestSession(t, []model.Question{capitalQuestion()})
	ctx := context.Background()

	var fired *model.AttemptResult
	for i := 0; i < 60; i++ {
		res, err := s.Tick(ctx)
		require.NoError(t, err)
		if res != nil {
			require.Nil(t, fired, "forced submission fired twice")
			fired = res
		}
	}

	require.NotNil(t, fired)
	assert.Equal(t, StateSubmitted, s.State())
	assert.Equal(t, 0, fired.Score)

	// Further ticks are inert.
	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, res)

	stored, _ := store.ListByQuiz(ctx, "GEO101")
	assert.Len(t, stored, 1)
}

func TestDecliningConfirmationKeepsSessionRunning(t *testing.T) {
	questions := []model.Question{
		capitalQuestion(),
		{Kind: model.QuestionTrueFalse, Prompt: "q2", CorrectAnswer: "True"},
		{Kind: model.QuestionFillBlank, Prompt: "q3", CorrectAnswer: "x"},
		{Kind: model.QuestionFillBlank, Prompt: "q4", CorrectAnswer: "y"},
		{Kind: model.QuestionFillBlank, Prompt: "q5", CorrectAnswer: "z"},
	}
	s, store := newTestSession(t, questions)
	ctx := context.Background()

	require.NoError(t, s.SetAnswer(0, model.Answer{Text: "Paris"}))
	require.NoError(t, s.SetAnswer(1, model.Answer{Text: "True"}))
	require.NoError(t, s.SetAnswer(2, model.Answer{Text: "x"}))

	res, err := s.Submit(ctx, false, false)
	assert.ErrorIs(t, err, ErrUnansweredQuestions)
	assert.Nil(t, res)
	assert.Equal(t, StateRunning, s.State())

	stored, _ := store.ListByQuiz(ctx, "GEO101")
	assert.Empty(t, stored)

	// The guard is still armed: a later confirmed submission succeeds.
	res, err = s.Submit(ctx, false, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
}

func TestSubmissionGuardAbsorbsSecondTrigger(t *testing.T) {
	ctx := context.Background()

	// Forced first, manual second.
	s, store := newTestSession(t, []model.Question{capitalQuestion()})
	_, err := s.Submit(ctx, true, false)
	require.NoError(t, err)
	res, err := s.Submit(ctx, false, true)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Nil(t, res)
	stored, _ := store.ListByQuiz(ctx, "GEO101")
	assert.Len(t, stored, 1)

	// Manual first, forced second.
	s, store = newTestSession(t, []model.Question{capitalQuestion()})
	require.NoError(t, s.SetAnswer(0, model.Answer{Text: "Paris"}))
	_, err = s.Submit(ctx, false, false)
	require.NoError(t, err)
	_, err = s.Submit(ctx, true, false)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	stored, _ = store.ListByQuiz(ctx, "GEO101")
	assert.Len(t, stored, 1)
}

func TestBackNavigationForcesSubmission(t *testing.T) {
	s, store := newTestSession(t, []model.Question{capitalQuestion()})
	ctx := context.Background()

	res, err := s.NavigateBack(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StateSubmitted, s.State())

	_, err = s.NavigateBack(ctx)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	stored, _ := store.ListByQuiz(ctx, "GEO101")
	assert.Len(t, stored, 1)
}

func TestEmptyQuestionSetIsInert(t *testing.T) {
	s, store := newTestSession(t, nil)
	ctx := context.Background()

	assert.Equal(t, StateSubmitted, s.State())
	assert.Equal(t, 0, s.Remaining())

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = s.Submit(ctx, false, true)
	assert.ErrorIs(t, err, ErrNoQuestions)

	stored, _ := store.ListByQuiz(ctx, "GEO101")
	assert.Empty(t, stored)
}

func TestMalformedQuestionsAreDropped(t *testing.T) {
	s, _ := newTestSession(t, []model.Question{
		{Kind: model.QuestionFillBlank, Prompt: "", CorrectAnswer: "x"},
		{Kind: model.QuestionFillBlank, Prompt: "ok", CorrectAnswer: "x"},
	})
	assert.Len(t, s.Questions(), 1)
}

type failingStore struct{}

func (failingStore) Save(context.Context, model.AttemptResult) error {
	return errors.New("disk full")
}

func TestStoreFailureStillReturnsResult(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := New(testMeta, []model.Question{capitalQuestion()}, testStudent, failingStore{}, rng, WithClock(fixedClock()))
	ctx := context.Background()

	require.NoError(t, s.SetAnswer(0, model.Answer{Text: "Paris"}))
	res, err := s.Submit(ctx, false, false)

	assert.ErrorIs(t, err, ErrResultNotSaved)
	require.NotNil(t, res, "the graded result must survive a store failure")
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, StateSubmitted, s.State())
}

func TestSetAnswerAfterSubmitRejected(t *testing.T) {
	s, _ := newTestSession(t, []model.Question{capitalQuestion()})
	ctx := context.Background()

	_, err := s.Submit(ctx, true, false)
	require.NoError(t, err)

	err = s.SetAnswer(0, model.Answer{Text: "Paris"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestMemoryStoreReplacesOnResubmit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := model.AttemptResult{QuizCode: "GEO101", StudentID: "s-1", Score: 1}
	second := model.AttemptResult{QuizCode: "GEO101", StudentID: "s-1", Score: 3}
	other := model.AttemptResult{QuizCode: "GEO101", StudentID: "s-2", Score: 2}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, other))
	require.NoError(t, store.Save(ctx, second))

	stored, err := store.ListByQuiz(ctx, "GEO101")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	byStudent := map[string]int{}
	for _, r := range stored {
		byStudent[r.StudentID] = r.Score
	}
	assert.Equal(t, 3, byStudent["s-1"])
	assert.Equal(t, 2, byStudent["s-2"])
}
