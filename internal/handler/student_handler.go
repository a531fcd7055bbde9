package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quizdeck-backend/internal/attempt"
	"github.com/quizdeck/quizdeck-backend/internal/middleware"
	"github.com/quizdeck/quizdeck-backend/internal/response"
	"github.com/quizdeck/quizdeck-backend/internal/service"
)

// StudentHandler handles the student-facing quiz join and results endpoints.
type StudentHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(quizService *service.QuizService, attemptService *service.AttemptService) *StudentHandler {
	return &StudentHandler{
		quizService:    quizService,
		attemptService: attemptService,
	}
}

// LookupQuiz godoc
// GET /api/v1/student/quizzes/:code
// Returns the quiz header for a join code so the student can preview
// before starting. Only published quizzes resolve.
func (h *StudentHandler) LookupQuiz(c *gin.Context) {
	code := normalizeCode(c.Param("code"))

	payload, err := h.quizService.GetQuizPayload(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrQuizNotPublished) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"quiz":           payload.Meta,
		"question_count": len(payload.Questions),
	})
}

// StartAttempt godoc
// POST /api/v1/student/quizzes/:code/attempt
// Starts or resumes an attempt and returns its full view. The live
// attempt itself runs over the WebSocket stream.
func (h *StudentHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	code := normalizeCode(c.Param("code"))

	view, err := h.attemptService.Start(c.Request.Context(), code, attempt.Identity{
		ID:   claims.UserID,
		Name: claims.Name,
		Role: string(claims.Role),
	})
	if err != nil {
		if errors.Is(err, service.ErrQuizNotPublished) {
			response.Fail(c, http.StatusNotFound, response.ErrQuizNotPublished)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// MyResults godoc
// GET /api/v1/student/results
// Lists the authenticated student's stored results, newest first. Each
// entry carries its certificate eligibility.
func (h *StudentHandler) MyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.attemptService.ResultsByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	type resultWithCertificate struct {
		QuizCode    string `json:"quiz_code"`
		Score       int    `json:"score"`
		Total       int    `json:"total"`
		Percentage  int    `json:"percentage"`
		AttemptedAt string `json:"attempted_at"`
		Certified   bool   `json:"certified"`
	}

	out := make([]resultWithCertificate, len(results))
	for i, r := range results {
		out[i] = resultWithCertificate{
			QuizCode:    r.QuizCode,
			Score:       r.Score,
			Total:       r.Total,
			Percentage:  r.Percentage,
			AttemptedAt: r.AttemptedAt.Format("2006-01-02T15:04:05Z07:00"),
			Certified:   r.Certified,
		}
	}

	response.Success(c, http.StatusOK, gin.H{"results": out})
}

// normalizeCode uppercases a join code so lookups are case-insensitive.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
