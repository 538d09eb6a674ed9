package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/exam-attempt-service/internal/errors"
	"github.com/SAP-F-2025/exam-attempt-service/internal/selection"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Lookup errors
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")

	// Start preconditions
	ErrExamNotOpen         = errors.New("exam window has not opened yet")
	ErrExamClosed          = errors.New("exam window has closed")
	ErrAttemptLimitReached = errors.New("maximum attempts reached")
	ErrMalformedQuestion   = errors.New("exam contains a malformed question")

	// Selection
	ErrInsufficientPool = selection.ErrInsufficientPool

	// ErrInvalidState marks a mutation aimed at a terminal attempt. Callers
	// absorb it (saves are dropped, submit returns the frozen result) and it
	// never reaches the transport layer.
	ErrInvalidState = errors.New("attempt is no longer in progress")

	ErrPermissionDenied = errors.New("permission denied")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

// ===== ERROR HELPERS =====

// NewValidationError creates a single-field ValidationErrors, ready to return as error
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{}.Add(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrQuestionNotFound)
}

// IsPermission checks if error represents a denied action
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre) ||
		errors.Is(err, ErrInsufficientPool) ||
		errors.Is(err, ErrMalformedQuestion)
}

// IsConflict checks if error represents a precondition on the attempt history or exam window
func IsConflict(err error) bool {
	return errors.Is(err, ErrAttemptLimitReached) ||
		errors.Is(err, ErrExamNotOpen) ||
		errors.Is(err, ErrExamClosed)
}
