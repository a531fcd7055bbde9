package attempt

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

func TestShuffleRightOptionsIsPermutation(t *testing.T) {
	q := model.Question{
		Kind:   model.QuestionMatch,
		Prompt: "countries",
		Pairs: []model.MatchPair{
			{Left: "France", Right: "Paris"},
			{Left: "Italy", Right: "Rome"},
			{Left: "Spain", Right: "Madrid"},
			{Left: "Japan", Right: "Tokyo"},
		},
	}

	for seed := int64(0); seed < 20; seed++ {
		got := ShuffleRightOptions(q, rand.New(rand.NewSource(seed)))
		require.Len(t, got, len(q.Pairs))

		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		assert.Equal(t, []string{"Madrid", "Paris", "Rome", "Tokyo"}, sorted)
	}
}

func TestShuffleDoesNotMutateQuestion(t *testing.T) {
	q := model.Question{
		Kind:   model.QuestionMatch,
		Prompt: "sounds",
		Pairs: []model.MatchPair{
			{Left: "Dog", Right: "Bark"},
			{Left: "Cat", Right: "Meow"},
		},
	}

	_ = ShuffleRightOptions(q, rand.New(rand.NewSource(7)))
	assert.Equal(t, "Bark", q.Pairs[0].Right)
	assert.Equal(t, "Meow", q.Pairs[1].Right)
}

func TestMatchOrderFixedForSessionLifetime(t *testing.T) {
	s, _ := newTestSession(t, []model.Question{soundsQuestion()})

	first := append([]string(nil), s.MatchOrder(0)...)
	require.NoError(t, s.SetAnswer(0, model.Answer{Pairs: map[int]string{0: "Bark"}}))
	assert.Equal(t, first, s.MatchOrder(0))
}

func TestAvailableRightOptionsExcludesTakenValues(t *testing.T) {
	order := []string{"Meow", "Bark", "Moo"}
	answer := model.Answer{Pairs: map[int]string{0: "Bark", 1: "Moo"}}

	// Pair 2 has no value yet; only the unclaimed option remains.
	assert.Equal(t, []string{"Meow"}, AvailableRightOptions(order, answer, 2))

	// A pair always keeps its own current value as a choice.
	assert.Equal(t, []string{"Meow", "Bark"}, AvailableRightOptions(order, answer, 0))
	assert.Equal(t, []string{"Meow", "Moo"}, AvailableRightOptions(order, answer, 1))
}

func TestAvailableRightOptionsNeverOffersValueTwice(t *testing.T) {
	order := []string{"A", "B", "C", "D"}
	answer := model.Answer{Pairs: map[int]string{0: "B", 1: "C", 2: "A"}}

	seen := map[string][]int{}
	for i := 0; i < 4; i++ {
		for _, opt := range AvailableRightOptions(order, answer, i) {
			seen[opt] = append(seen[opt], i)
		}
	}

	// A taken value is offered to exactly one pair: the one holding it.
	assert.Equal(t, []int{2}, seen["A"])
	assert.Equal(t, []int{0}, seen["B"])
	assert.Equal(t, []int{1}, seen["C"])
	// Unclaimed values remain offered everywhere.
	assert.Len(t, seen["D"], 4)
}
