package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler with logging capability
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"remote_addr", c.ClientIP(),
		"user_id", h.extractUserID(c),
	}
	fields = append(fields, additionalFields...)

	h.requestLogger(c).Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{"user_id", h.extractUserID(c)}
	fields = append(fields, additionalFields...)

	h.requestLogger(c).LogError(err, message, fields...)
}

// LogWarn logs warning messages with context
func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{"user_id", h.extractUserID(c)}
	fields = append(fields, additionalFields...)

	h.requestLogger(c).Warn(message, fields...)
}

func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger)
}

func (h *BaseHandler) extractUserID(c *gin.Context) interface{} {
	if userID, exists := c.Get(ContextKeyUserID); exists {
		return userID
	}
	return nil
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}

	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if err != nil && statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode, "error", err)
	}

	c.JSON(statusCode, errorResp)
}

// handleServiceError maps service errors onto HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	status, resp := errorResponseFor(err)
	if status >= http.StatusInternalServerError {
		h.LogError(c, err, "Request failed", "status_code", status)
	} else {
		h.LogWarn(c, resp.Message, "status_code", status, "error", err)
	}
	c.JSON(status, resp)
}

// errorResponseFor is shared by the REST handlers and the exam stream.
func errorResponseFor(err error) (int, ErrorResponse) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		return http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
			Code:    "validation_failed",
		}
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		return http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
			Code: "permission_denied",
		}
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		return http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
			Code: "business_rule",
		}
	}

	switch {
	case errors.Is(err, services.ErrAttemptNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Attempt not found", Code: "attempt_not_found"}
	case errors.Is(err, services.ErrExamNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Exam not found", Code: "exam_not_found"}
	case errors.Is(err, services.ErrQuestionNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Question not found", Code: "question_not_found", Details: err.Error()}
	case errors.Is(err, services.ErrInsufficientPool):
		return http.StatusUnprocessableEntity, ErrorResponse{Message: "Question pool too small", Code: "insufficient_pool", Details: err.Error()}
	case errors.Is(err, services.ErrMalformedQuestion):
		return http.StatusUnprocessableEntity, ErrorResponse{Message: "Exam contains a malformed question", Code: "malformed_question", Details: err.Error()}
	case errors.Is(err, services.ErrAttemptLimitReached):
		return http.StatusConflict, ErrorResponse{Message: "Maximum attempts reached", Code: "attempt_limit_reached"}
	case errors.Is(err, services.ErrExamNotOpen):
		return http.StatusConflict, ErrorResponse{Message: "Exam is not open yet", Code: "exam_not_open"}
	case errors.Is(err, services.ErrExamClosed):
		return http.StatusConflict, ErrorResponse{Message: "Exam is closed", Code: "exam_closed"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: "internal_error"}
	}
}
