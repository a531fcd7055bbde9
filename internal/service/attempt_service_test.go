package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/attempt"
	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

var attemptTestMeta = model.QuizMeta{
	Code:             "MATH88",
	Title:            "Mental Arithmetic",
	TimeLimitMinutes: 5,
	CertifyPerfect:   true,
}

func attemptTestQuestions() []model.Question {
	return []model.Question{
		{
			Kind:          model.QuestionFillBlank,
			Prompt:        "7 times 8 is ___",
			CorrectAnswer: "56",
		},
		{
			Kind:          model.QuestionTrueFalse,
			Prompt:        "Zero is an even number",
			CorrectAnswer: "true",
		},
	}
}

var attemptTestStudent = attempt.Identity{ID: "stu-9", Name: "Grace", Role: "student"}

func startedAttemptService(t *testing.T) (*AttemptService, context.Context) {
	t.Helper()
	_, rdb := newRedisTestClient(t)
	quizSvc := newCacheOnlyQuizService(rdb)
	seedQuizCache(t, rdb, attemptTestMeta, attemptTestQuestions())

	svc := NewAttemptService(quizSvc, nil, rdb, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return svc, context.Background()
}

func TestStartDeliversAnswerFreeView(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	view, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)

	assert.Equal(t, "Mental Arithmetic", view.Quiz.Title)
	assert.Equal(t, 5*60, view.Remaining)
	require.Len(t, view.Questions, 2)
	for _, q := range view.Questions {
		raw, err := json.Marshal(q)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "56")
		assert.NotContains(t, string(raw), "correct")
	}
}

func TestStartOnUnpublishedQuizFails(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "GHOST1", attemptTestStudent)
	assert.ErrorIs(t, err, ErrQuizNotPublished)
}

func TestSubmitQueuesGradedResult(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)

	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 0, model.Answer{Text: "56"}))
	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 1, model.Answer{Text: "TRUE"}))

	result, err := svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 100, result.Percentage)
	assert.True(t, result.Certified)

	raw, err := svc.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Bytes()
	require.NoError(t, err)

	var queued model.AttemptResult
	require.NoError(t, json.Unmarshal(raw, &queued))
	assert.Equal(t, "MATH88", queued.QuizCode)
	assert.Equal(t, "stu-9", queued.StudentID)
	assert.Equal(t, 2, queued.Score)

	// The attempt is gone from the registry once graded.
	_, err = svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, false)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
}

func TestSubmitWithGapsNeedsConfirmation(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)
	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 0, model.Answer{Text: "56"}))

	result, err := svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, false)
	assert.ErrorIs(t, err, attempt.ErrUnansweredQuestions)
	assert.Nil(t, result)

	unanswered, err := svc.Unanswered("MATH88", attemptTestStudent.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, unanswered)

	result, err = svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 50, result.Percentage)
	assert.False(t, result.Certified)
}

func TestNavigateBackForceSubmitsAndQueuesGuardEvent(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)

	result, err := svc.NavigateBack(ctx, "MATH88", attemptTestStudent.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Score)

	raw, err := svc.rdb.LPop(ctx, config.WorkerKey.PersistGuardEventsQueue).Bytes()
	require.NoError(t, err)

	var event model.GuardEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, model.GuardBackNavigation, event.EventType)
	assert.Equal(t, "MATH88", event.QuizCode)
	assert.Equal(t, "stu-9", event.StudentID)
}

func TestAnswersAutosaveAndRestoreAcrossRestart(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)
	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 0, model.Answer{Text: "56"}))

	// A new service over the same Redis simulates a restarted instance.
	restarted := NewAttemptService(svc.quizService, nil, svc.rdb, zerolog.Nop())
	t.Cleanup(restarted.Shutdown)

	view, err := restarted.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)
	require.Contains(t, view.Answers, 0)
	assert.Equal(t, "56", view.Answers[0].Text)
}

func TestConcurrentStartsShareOneSession(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	// The HTTP start and the WebSocket connect race each other in practice.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	svc.mu.Lock()
	registered := len(svc.sessions)
	svc.mu.Unlock()
	require.Equal(t, 1, registered)

	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 0, model.Answer{Text: "56"}))
	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 1, model.Answer{Text: "true"}))

	result, err := svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Score)

	// A leftover duplicate session would later force-submit an empty result
	// on top of this one. Exactly one result may reach the queue.
	queued, err := svc.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	_, err = svc.Submit(ctx, "MATH88", attemptTestStudent.ID, false, false)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
}

func TestTimerExpiryReportsEnqueueFailure(t *testing.T) {
	mr, rdb := newRedisTestClient(t)
	quizSvc := newCacheOnlyQuizService(rdb)
	seedQuizCache(t, rdb, attemptTestMeta, attemptTestQuestions())

	svc := NewAttemptService(quizSvc, nil, rdb, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	ctx := context.Background()

	// Seed a start timestamp that leaves the resumed attempt two seconds
	// on the clock, so the countdown expires almost immediately.
	started := time.Now().Add(-time.Duration(attemptTestMeta.TimeLimitMinutes*60-2) * time.Second)
	startKey := config.CacheKey.StudentAttemptStartKey("MATH88", attemptTestStudent.ID)
	require.NoError(t, rdb.Set(ctx, startKey, strconv.FormatInt(started.Unix(), 10), 0).Err())

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)

	forced, err := svc.ForcedSubmission("MATH88", attemptTestStudent.ID)
	require.NoError(t, err)

	// Redis going away before expiry must not silently drop the failure:
	// the pushed result has to carry it so the student sees the warning.
	mr.SetError("connection refused")

	select {
	case fr := <-forced:
		require.NotNil(t, fr.Result)
		assert.Equal(t, 0, fr.Result.Score)
		assert.ErrorIs(t, fr.Err, attempt.ErrResultNotSaved)
	case <-time.After(10 * time.Second):
		t.Fatal("timer-forced result never arrived")
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	svc, ctx := startedAttemptService(t)

	_, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)
	require.NoError(t, svc.SaveAnswer(ctx, "MATH88", attemptTestStudent.ID, 1, model.Answer{Text: "true"}))

	view, err := svc.Start(ctx, "MATH88", attemptTestStudent)
	require.NoError(t, err)
	require.Contains(t, view.Answers, 1)
	assert.Equal(t, "true", view.Answers[1].Text)
}
