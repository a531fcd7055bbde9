package websocket

import "github.com/quizdeck/quizdeck-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionSubmit  Action = "submit"
	ActionNavBack Action = "nav_back"
	ActionPing    Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to record one working answer.
type AnswerRequest struct {
	Action   Action       `json:"action"`
	Question int          `json:"question"`
	Answer   model.Answer `json:"answer"`
}

// SubmitRequest finishes the attempt. Confirmed acknowledges the
// unanswered-questions prompt on a resend.
type SubmitRequest struct {
	Action    Action `json:"action"`
	Confirmed bool   `json:"confirmed"`
}

// NavBackRequest reports a back-navigation during the attempt.
type NavBackRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState           Event = "state"
	EventSaved           Event = "saved"
	EventConfirmRequired Event = "confirm_required"
	EventGraded          Event = "graded"
	EventError           Event = "error"
	EventPong            Event = "pong"
)

// StateResponse delivers the full attempt view on connect.
type StateResponse struct {
	Event   Event       `json:"event"`
	Attempt interface{} `json:"attempt"`
}

// SavedResponse acknowledges a recorded answer.
type SavedResponse struct {
	Event    Event `json:"event"`
	Question int   `json:"question"`
}

// ConfirmRequiredResponse rejects a submission until the student confirms.
type ConfirmRequiredResponse struct {
	Event      Event  `json:"event"`
	Message    string `json:"message"`
	Unanswered []int  `json:"unanswered"`
}

// GradedResponse carries the final score. Saved is false when the result
// was graded but could not be queued for persistence.
type GradedResponse struct {
	Event      Event  `json:"event"`
	Forced     bool   `json:"forced"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Certified  bool   `json:"certified"`
	Saved      bool   `json:"saved"`
	Warning    string `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
