package attempt

import (
	"context"
	"sync"

	"github.com/quizdeck/quizdeck-backend/internal/model"
)

// MemoryStore is an in-memory Store keeping results grouped by quiz code.
// It backs tests and single-process deployments; the postgres-backed
// repository is the production implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]model.AttemptResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]model.AttemptResult)}
}

// Save appends the result under its quiz code, first dropping any prior
// result from the same student.
func (s *MemoryStore) Save(_ context.Context, result model.AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.results[result.QuizCode][:0]
	for _, r := range s.results[result.QuizCode] {
		if r.StudentID != result.StudentID {
			kept = append(kept, r)
		}
	}
	s.results[result.QuizCode] = append(kept, result)
	return nil
}

// ListByQuiz returns all stored results for a quiz code.
func (s *MemoryStore) ListByQuiz(_ context.Context, quizCode string) ([]model.AttemptResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AttemptResult, len(s.results[quizCode]))
	copy(out, s.results[quizCode])
	return out, nil
}
