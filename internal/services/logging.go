package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewServiceLogger(logger *slog.Logger, service string) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", service),
		now:    time.Now,
	}
}

// ===== OPERATION LOGGING =====

// LogOperation logs one finished operation. Expected outcomes (validation,
// permission, not found, preconditions) are logged below error level.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, userID, attemptID string, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := "success"

	if err != nil {
		level = slog.LevelError
		status = "error"

		switch {
		case IsValidation(err):
			level, status = slog.LevelWarn, "validation_error"
		case IsBusinessRule(err):
			level, status = slog.LevelWarn, "business_rule"
		case IsPermission(err):
			level, status = slog.LevelWarn, "permission_denied"
		case IsConflict(err):
			level, status = slog.LevelInfo, "conflict"
		case IsNotFound(err):
			level, status = slog.LevelInfo, "not_found"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}
	if attemptID != "" {
		attrs = append(attrs, slog.String("attempt_id", attemptID))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var validationErr ValidationErrors
		var businessErr *BusinessRuleError
		var permErr *PermissionError
		switch {
		case errors.As(err, &validationErr):
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErr)))
		case errors.As(err, &businessErr):
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		case errors.As(err, &permErr):
			attrs = append(attrs, slog.String("permission_action", permErr.Action))
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

// ===== MIDDLEWARE AND HELPERS =====

// ContextualLogger times one operation and logs its result
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: l.now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(attemptID string, err error) {
	duration := cl.logger.now().Sub(cl.startTime)
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, attemptID, duration, err)
}
