package service

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

func newRedisTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newCacheOnlyQuizService(rdb *redis.Client) *QuizService {
	return NewQuizService(nil, nil, rdb, zerolog.Nop())
}

func seedQuizCache(t *testing.T, rdb *redis.Client, meta model.QuizMeta, questions []model.Question) {
	t.Helper()
	ctx := context.Background()

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = q.ForStudent(i)
	}
	payloadJSON, err := json.Marshal(model.QuizPayload{Meta: meta, Questions: studentQuestions})
	require.NoError(t, err)
	snapshotJSON, err := json.Marshal(questions)
	require.NoError(t, err)

	require.NoError(t, rdb.Set(ctx, config.CacheKey.QuizPayloadKey(meta.Code), payloadJSON, 0).Err())
	require.NoError(t, rdb.Set(ctx, config.CacheKey.QuizAnswerKey(meta.Code), snapshotJSON, 0).Err())
}

func TestGetQuizPayloadStripsAnswers(t *testing.T) {
	_, rdb := newRedisTestClient(t)
	svc := newCacheOnlyQuizService(rdb)

	meta := model.QuizMeta{Code: "HIST42", Title: "History", TimeLimitMinutes: 10}
	questions := []model.Question{
		{
			Kind:          model.QuestionMultipleChoice,
			Prompt:        "Who wrote the Republic?",
			Options:       []string{"Plato", "Homer", "Cicero", "Ovid"},
			CorrectAnswer: "Plato",
		},
		{
			Kind:   model.QuestionMatch,
			Prompt: "Match rulers to empires",
			Pairs: []model.MatchPair{
				{Left: "Augustus", Right: "Rome"},
				{Left: "Cyrus", Right: "Persia"},
			},
		},
	}
	seedQuizCache(t, rdb, meta, questions)

	payload, err := svc.GetQuizPayload(context.Background(), "HIST42")
	require.NoError(t, err)
	assert.Equal(t, "History", payload.Meta.Title)
	require.Len(t, payload.Questions, 2)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_answer")

	// Match questions expose the left column only; the right values stay
	// out of the payload entirely.
	assert.Equal(t, []string{"Augustus", "Cyrus"}, payload.Questions[1].Lefts)
	assert.NotContains(t, string(raw), "Rome")
	assert.NotContains(t, string(raw), "Persia")
}

func TestGetQuizPayloadMissesAsNotPublished(t *testing.T) {
	_, rdb := newRedisTestClient(t)
	svc := newCacheOnlyQuizService(rdb)

	_, err := svc.GetQuizPayload(context.Background(), "NOPE99")
	assert.ErrorIs(t, err, ErrQuizNotPublished)

	_, err = svc.GetGradingSnapshot(context.Background(), "NOPE99")
	assert.ErrorIs(t, err, ErrQuizNotPublished)
}

func TestGetGradingSnapshotKeepsAnswers(t *testing.T) {
	_, rdb := newRedisTestClient(t)
	svc := newCacheOnlyQuizService(rdb)

	meta := model.QuizMeta{Code: "SCI7", TimeLimitMinutes: 5}
	questions := []model.Question{
		{
			Kind:          model.QuestionFillBlank,
			Prompt:        "Water boils at ___ degrees Celsius",
			CorrectAnswer: "100",
		},
	}
	seedQuizCache(t, rdb, meta, questions)

	snapshot, err := svc.GetGradingSnapshot(context.Background(), "SCI7")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "100", snapshot[0].CorrectAnswer)
}

func TestGenerateJoinCodeShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := generateJoinCode()
		require.Len(t, code, codeLength)
		for _, c := range code {
			assert.Contains(t, codeAlphabet, string(c))
		}
	}
}
