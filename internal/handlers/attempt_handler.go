package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/proctoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt starts a new attempt or resumes the caller's in-progress one
// @Summary Start attempt
// @Tags attempts
// @Produce json
// @Param exam_id path string true "Exam ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /exams/{exam_id}/attempts [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	examID := ParseStringIDParam(c, "exam_id")
	if examID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "exam_id", examID)

	attempt, err := h.attemptService.Start(c.Request.Context(), examID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListAttempts lists attempts. Students only ever see their own.
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Param exam_id query string false "Exam ID"
// @Param status query string false "Attempt status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} services.AttemptListResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	limit, ok := parseIntQuery(c, "limit", repositories.DefaultPageSize)
	if !ok {
		return
	}
	offset, ok := parseIntQuery(c, "offset", 0)
	if !ok {
		return
	}

	filters := repositories.AttemptFilters{
		ExamID:    c.Query("exam_id"),
		UserID:    c.Query("user_id"),
		Status:    models.AttemptStatus(c.Query("status")),
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	result, err := h.attemptService.List(c.Request.Context(), filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAttempt returns one attempt as visible to the caller
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), attemptID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SaveAnswers merges a batch of answers into the attempt
// @Summary Save answers
// @Tags attempts
// @Accept json
// @Param id path string true "Attempt ID"
// @Param answers body services.SaveAnswersRequest true "Answers"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.SaveAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.attemptService.SaveAnswers(c.Request.Context(), attemptID, &req, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RecordViolation appends a violation reported by the exam client
// @Summary Record violation
// @Tags proctoring
// @Accept json
// @Param id path string true "Attempt ID"
// @Param violation body services.RecordViolationRequest true "Violation"
// @Success 202
// @Router /attempts/{id}/violations [post]
func (h *AttemptHandler) RecordViolation(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.RecordViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.attemptService.ReportViolation(c.Request.Context(), attemptID, &req, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// ReportSignal runs a raw client signal through the proctoring monitor and
// returns the directive the client must apply.
// @Summary Report proctoring signal
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param signal body proctoring.Signal true "Signal"
// @Success 200 {object} proctoring.Outcome
// @Router /attempts/{id}/signals [post]
func (h *AttemptHandler) ReportSignal(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	var sig proctoring.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	outcome, err := h.attemptService.Signal(c.Request.Context(), attemptID, sig, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// SubmitAttempt scores and closes the attempt. Repeated submits return the stored result.
// @Summary Submit attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	attempt, err := h.attemptService.Submit(c.Request.Context(), attemptID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// InvalidateAttempt closes the attempt without a score
// @Summary Invalidate attempt
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param request body services.InvalidateRequest true "Reason"
// @Success 200 {object} services.AttemptResponse
// @Failure 403 {object} ErrorResponse
// @Router /attempts/{id}/invalidate [post]
func (h *AttemptHandler) InvalidateAttempt(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Invalidating attempt", "attempt_id", attemptID)

	attempt, err := h.attemptService.Invalidate(c.Request.Context(), attemptID, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetTimeRemaining reports the server-side countdown
// @Summary Time remaining
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.TimeRemainingResponse
// @Router /attempts/{id}/time-remaining [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	remaining, err := h.attemptService.TimeRemaining(c.Request.Context(), attemptID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, remaining)
}

type SelectQuestionsResponse struct {
	QuestionIDs []string `json:"question_ids"`
}

// SelectRandomQuestions previews a randomized draw from the question bank
// @Summary Select random questions
// @Tags selection
// @Accept json
// @Produce json
// @Param request body services.SelectQuestionsRequest true "Rule"
// @Success 200 {object} SelectQuestionsResponse
// @Failure 422 {object} ErrorResponse
// @Router /selection/random [post]
func (h *AttemptHandler) SelectRandomQuestions(c *gin.Context) {
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.SelectQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	ids, err := h.attemptService.SelectRandomQuestions(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SelectQuestionsResponse{QuestionIDs: ids})
}
