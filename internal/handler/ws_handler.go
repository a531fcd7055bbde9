package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizdeck/quizdeck-backend/internal/attempt"
	"github.com/quizdeck/quizdeck-backend/internal/middleware"
	"github.com/quizdeck/quizdeck-backend/internal/model"
	"github.com/quizdeck/quizdeck-backend/internal/service"
	ws "github.com/quizdeck/quizdeck-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: answers in, state and grades out.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/quizzes/:code/attempt
// Upgrades to WebSocket, starts or resumes the attempt, and runs the
// live loop: answer autosave, submit with confirmation, back-navigation
// guard, and the server-pushed forced submission on timeout.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	student := attempt.Identity{
		ID:   claims.UserID,
		Name: claims.Name,
		Role: string(claims.Role),
	}

	view, err := h.attemptService.Start(c.Request.Context(), code, student)
	if err != nil {
		if errors.Is(err, service.ErrQuizNotPublished) {
			conn.WriteError("quiz is not published")
			return
		}
		h.log.Error().Err(err).Str("quiz_code", code).Msg("Attempt start failed")
		conn.WriteError("attempt could not be started")
		return
	}

	wsLog := h.log.With().
		Str("student_id", student.ID).
		Str("quiz_code", code).
		Logger()

	wsLog.Info().Msg("Student connected")

	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Attempt: view})

	// The countdown runs server-side; when it expires the graded result is
	// pushed here even though the read loop below is blocked.
	done := make(chan struct{})
	defer close(done)

	if forced, err := h.attemptService.ForcedSubmission(code, student.ID); err == nil {
		go func() {
			select {
			case <-done:
			case fr, ok := <-forced:
				if ok && fr.Result != nil {
					conn.WriteTyped(gradedResponse(fr.Result, true, fr.Err))
				}
			}
		}()
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, wsLog, code, student.ID, data)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, code, student.ID, data) {
				return
			}
		case ws.ActionNavBack:
			h.handleNavBack(conn, wsLog, code, student.ID)
			return
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, wsLog zerolog.Logger, code, studentID string, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError("malformed answer")
		return
	}

	err := h.attemptService.SaveAnswer(context.Background(), code, studentID, req.Question, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, attempt.ErrQuestionOutOfRange):
			conn.WriteError("question index out of range")
		case errors.Is(err, attempt.ErrAlreadySubmitted):
			conn.WriteError("attempt already submitted")
		case errors.Is(err, service.ErrNoActiveAttempt):
			conn.WriteError("no active attempt")
		default:
			wsLog.Error().Err(err).Msg("Save answer failed")
			conn.WriteError("save failed")
		}
		return
	}

	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Question: req.Question})
}

// handleSubmit returns true when the attempt finished and the stream
// should close.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, code, studentID string, data []byte) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError("malformed submit")
		return false
	}

	ctx := context.Background()
	result, err := h.attemptService.Submit(ctx, code, studentID, false, req.Confirmed)

	if errors.Is(err, attempt.ErrUnansweredQuestions) {
		unanswered, uerr := h.attemptService.Unanswered(code, studentID)
		if uerr != nil {
			unanswered = nil
		}
		conn.WriteTyped(ws.ConfirmRequiredResponse{
			Event:      ws.EventConfirmRequired,
			Message:    "Some questions are unanswered. Submit anyway?",
			Unanswered: unanswered,
		})
		return false
	}
	if result == nil {
		switch {
		case errors.Is(err, attempt.ErrAlreadySubmitted):
			conn.WriteError("attempt already submitted")
		case errors.Is(err, attempt.ErrNoQuestions):
			conn.WriteError("quiz has no questions")
		case errors.Is(err, service.ErrNoActiveAttempt):
			conn.WriteError("no active attempt")
		default:
			wsLog.Error().Err(err).Msg("Submit failed")
			conn.WriteError("submit failed")
		}
		return false
	}

	conn.WriteTyped(gradedResponse(result, false, err))
	wsLog.Info().
		Int("score", result.Score).
		Int("total", result.Total).
		Msg("Attempt submitted")
	return true
}

func (h *WSHandler) handleNavBack(conn *ws.Conn, wsLog zerolog.Logger, code, studentID string) {
	result, err := h.attemptService.NavigateBack(context.Background(), code, studentID)
	if result == nil {
		switch {
		case errors.Is(err, attempt.ErrAlreadySubmitted):
			conn.WriteError("attempt already submitted")
		case errors.Is(err, service.ErrNoActiveAttempt):
			conn.WriteError("no active attempt")
		default:
			wsLog.Error().Err(err).Msg("Back-navigation submit failed")
			conn.WriteError("submit failed")
		}
		return
	}

	conn.WriteTyped(gradedResponse(result, true, err))
	wsLog.Info().Int("score", result.Score).Msg("Attempt force-submitted on back navigation")
}

// gradedResponse renders a result, downgrading a persistence failure to a
// warning: the student still sees the score.
func gradedResponse(result *model.AttemptResult, forced bool, err error) ws.GradedResponse {
	resp := ws.GradedResponse{
		Event:      ws.EventGraded,
		Forced:     forced,
		Score:      result.Score,
		Total:      result.Total,
		Percentage: result.Percentage,
		Certified:  result.Certified,
		Saved:      true,
	}
	if errors.Is(err, attempt.ErrResultNotSaved) {
		resp.Saved = false
		resp.Warning = "Your score could not be saved. Keep this page open and contact your teacher."
	}
	return resp
}
