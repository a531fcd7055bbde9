package attempt

import (
	"math/rand"

	"github.com/quizdeck/quizdeck-backend/internal/grading"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

// ShuffleRightOptions returns a uniformly shuffled copy of a match
// question's right-hand values. The order is computed once when the attempt
// loads and kept fixed for its whole duration; callers must not reshuffle on
// redisplay.
func ShuffleRightOptions(q model.Question, rng *rand.Rand) []string {
	opts := q.RightOptions()
	rng.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})
	return opts
}

// AvailableRightOptions filters a shuffled display order down to the values
// a student may still pick for pair pairIdx: a value selected for another
// pair is excluded, except when it is the value currently held by pairIdx
// itself (so a selection can be changed without clearing it first).
func AvailableRightOptions(order []string, answer model.Answer, pairIdx int) []string {
	taken := make(map[string]bool, len(answer.Pairs))
	for j, v := range answer.Pairs {
		if j != pairIdx && v != "" {
			taken[grading.Normalize(v)] = true
		}
	}

	out := make([]string, 0, len(order))
	for _, v := range order {
		if !taken[grading.Normalize(v)] {
			out = append(out, v)
		}
	}
	return out
}
