package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quizdeck/quizdeck-backend/internal/middleware"
	"github.com/quizdeck/quizdeck-backend/internal/model"
	"github.com/quizdeck/quizdeck-backend/internal/repository"
	"github.com/quizdeck/quizdeck-backend/internal/response"
	"github.com/quizdeck/quizdeck-backend/internal/service"
	"github.com/quizdeck/quizdeck-backend/internal/validator"
)

// QuizHandler handles the teacher-facing quiz authoring endpoints.
type QuizHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, attemptService *service.AttemptService) *QuizHandler {
	return &QuizHandler{
		quizService:    quizService,
		attemptService: attemptService,
	}
}

// ListQuizzes godoc
// GET /api/v1/teacher/quizzes
// Lists the authenticated teacher's quizzes.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)

	authorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	quizzes, err := h.quizService.ListByAuthor(c.Request.Context(), authorID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quizzes": quizzes})
}

// CreateQuiz godoc
// POST /api/v1/teacher/quizzes
// Creates a new DRAFT quiz with a generated join code.
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)

	authorID, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz := &model.Quiz{
		Title:            req.Title,
		Description:      req.Description,
		Subject:          req.Subject,
		Difficulty:       req.Difficulty,
		TimeLimitMinutes: req.TimeLimitMinutes,
		CertifyPerfect:   req.CertifyPerfect,
		AuthorID:         authorID,
	}
	if err := h.quizService.Create(c.Request.Context(), quiz); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// GetQuiz godoc
// GET /api/v1/teacher/quizzes/:quiz_id
// Returns one of the teacher's quizzes.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// UpdateQuiz godoc
// PUT /api/v1/teacher/quizzes/:quiz_id
// Updates a DRAFT quiz.
func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	var req model.UpdateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if req.Title != "" {
		quiz.Title = req.Title
	}
	if req.Description != "" {
		quiz.Description = req.Description
	}
	if req.Subject != "" {
		quiz.Subject = req.Subject
	}
	if req.Difficulty != "" {
		quiz.Difficulty = req.Difficulty
	}
	if req.TimeLimitMinutes > 0 {
		quiz.TimeLimitMinutes = req.TimeLimitMinutes
	}
	if req.CertifyPerfect != nil {
		quiz.CertifyPerfect = *req.CertifyPerfect
	}

	if err := h.quizService.Update(c.Request.Context(), quiz.AuthorID, quiz); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// DeleteQuiz godoc
// DELETE /api/v1/teacher/quizzes/:quiz_id
// Deletes a quiz that is not currently published.
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), quiz.ID, quiz.AuthorID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListQuestions godoc
// GET /api/v1/teacher/quizzes/:quiz_id/questions
// Returns the quiz's questions, answer keys included.
func (h *QuizHandler) ListQuestions(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	questions, err := h.quizService.ListQuestions(c.Request.Context(), quiz.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ReplaceQuestions godoc
// PUT /api/v1/teacher/quizzes/:quiz_id/questions
// Replaces the full question list of a DRAFT quiz.
func (h *QuizHandler) ReplaceQuestions(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = q.Question()
	}

	if err := h.quizService.ReplaceQuestions(c.Request.Context(), quiz.ID, quiz.AuthorID, questions); err != nil {
		if errors.Is(err, service.ErrQuizNotDraft) || errors.Is(err, service.ErrNotQuizAuthor) {
			h.failQuizError(c, err)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": len(questions)})
}

// PublishQuiz godoc
// POST /api/v1/teacher/quizzes/:quiz_id/publish
// Publishes a DRAFT quiz and warms the Redis attempt cache.
func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	if err := h.quizService.Publish(c.Request.Context(), quiz.ID, quiz.AuthorID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"code": quiz.Code})
}

// ArchiveQuiz godoc
// POST /api/v1/teacher/quizzes/:quiz_id/archive
// Archives a PUBLISHED quiz and drops its attempt cache.
func (h *QuizHandler) ArchiveQuiz(c *gin.Context) {
	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	if err := h.quizService.Archive(c.Request.Context(), quiz.ID, quiz.AuthorID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetResults godoc
// GET /api/v1/teacher/quizzes/:quiz_id/results
// Lists stored attempt results for one of the teacher's quizzes.
func (h *QuizHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	results, err := h.attemptService.ResultsByQuiz(c.Request.Context(), quiz.Code, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GetGuardEvents godoc
// GET /api/v1/teacher/quizzes/:quiz_id/guard-events
// Lists guard trips (back navigation, timer expiry) recorded for a quiz.
func (h *QuizHandler) GetGuardEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quiz, ok := h.ownedQuiz(c)
	if !ok {
		return
	}

	events, err := h.attemptService.GuardEventsByQuiz(c.Request.Context(), quiz.Code, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// ownedQuiz loads the quiz from the :quiz_id param and verifies the caller
// authored it. On failure a response has already been written.
func (h *QuizHandler) ownedQuiz(c *gin.Context) (*model.Quiz, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		if errors.Is(err, repository.ErrQuizNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return nil, false
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return nil, false
	}

	if quiz.AuthorID.String() != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		return nil, false
	}
	return quiz, true
}

func (h *QuizHandler) failQuizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotQuizAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	case errors.Is(err, service.ErrQuizNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotDraft)
	case errors.Is(err, service.ErrQuizNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, repository.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
