package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding a user's active login JTI
func (r *CacheKeyStruct) StudentSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// QuizPayloadKey returns the cache key for a quiz's student-facing payload
func (r *CacheKeyStruct) QuizPayloadKey(code string) string {
	return fmt.Sprintf("quiz:%s:payload", code)
}

// QuizAnswerKey returns the cache key for a quiz's grading snapshot
func (r *CacheKeyStruct) QuizAnswerKey(code string) string {
	return fmt.Sprintf("quiz:%s:key", code)
}

// QuizDurationKey returns the cache key for a quiz's time limit in seconds
func (r *CacheKeyStruct) QuizDurationKey(code string) string {
	return fmt.Sprintf("quiz:%s:duration", code)
}

// StudentAttemptStartKey returns the cache key for a student's attempt start time
func (r *CacheKeyStruct) StudentAttemptStartKey(code string, userID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:attempt_start", userID, code)
}

// StudentMatchOrderKey returns the cache key for a student's shuffled match options
func (r *CacheKeyStruct) StudentMatchOrderKey(code string, userID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:match_order", userID, code)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(code string, userID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:answers", userID, code)
}

// StudentActiveQuizKey returns the cache key for a student's currently active attempt
func (r *CacheKeyStruct) StudentActiveQuizKey(userID string) string {
	return fmt.Sprintf("student:%s:active_quiz", userID)
}

var CacheKey = NewCacheKeyStruct()
