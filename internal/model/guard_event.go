package model

import "time"

// GuardEventType identifies what tripped the attempt guard.
type GuardEventType string

const (
	GuardBackNavigation GuardEventType = "back_navigation"
	GuardTimeExpired    GuardEventType = "time_expired"
)

// GuardEvent records a guard trip during an attempt. Events are queued
// to Redis by the attempt service and drained to PostgreSQL by a worker.
type GuardEvent struct {
	QuizCode   string         `json:"quiz_code"`
	StudentID  string         `json:"student_id"`
	EventType  GuardEventType `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
}
