package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/proctoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/scoring"
)

// AttemptService is the attempt state machine exposed to the transport layer.
type AttemptService interface {
	Start(ctx context.Context, examID string, caller models.Identity) (*AttemptResponse, error)
	Get(ctx context.Context, attemptID string, caller models.Identity) (*AttemptResponse, error)
	List(ctx context.Context, filters repositories.AttemptFilters, caller models.Identity) (*AttemptListResponse, error)
	SaveAnswers(ctx context.Context, attemptID string, req *SaveAnswersRequest, caller models.Identity) error
	ReportViolation(ctx context.Context, attemptID string, req *RecordViolationRequest, caller models.Identity) error
	Signal(ctx context.Context, attemptID string, sig proctoring.Signal, caller models.Identity) (*proctoring.Outcome, error)
	Submit(ctx context.Context, attemptID string, caller models.Identity) (*AttemptResponse, error)
	Invalidate(ctx context.Context, attemptID string, req *InvalidateRequest, caller models.Identity) (*AttemptResponse, error)
	TimeRemaining(ctx context.Context, attemptID string, caller models.Identity) (*TimeRemainingResponse, error)
	SelectRandomQuestions(ctx context.Context, req *SelectQuestionsRequest, caller models.Identity) ([]string, error)

	// RecordViolation is the trusted append path used by the proctoring monitor.
	RecordViolation(ctx context.Context, attemptID string, violation models.AttemptViolation) error
	// SubmitExpired submits up to limit attempts whose deadline passed before cutoff.
	SubmitExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
	// Monitor returns the proctoring monitor bound to this service.
	Monitor() *proctoring.Monitor
}

// ===== REQUESTS =====

type AnswerInput struct {
	QuestionID      string   `json:"question_id" validate:"required,max=64"`
	SelectedOptions []string `json:"selected_options" validate:"max=26,dive,required,max=64"`
	TimeSpent       int      `json:"time_spent" validate:"min=0"`
	MarkedForReview bool     `json:"marked_for_review"`
}

type SaveAnswersRequest struct {
	Answers []AnswerInput `json:"answers" validate:"max=500,dive"`
}

type RecordViolationRequest struct {
	Type      models.ViolationType `json:"type" validate:"required,violation_type"`
	Details   string               `json:"details" validate:"max=500"`
	Timestamp *time.Time           `json:"timestamp,omitempty"`
}

type InvalidateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type SelectQuestionsRequest struct {
	Rule   models.RandomizationRule `json:"rule"`
	Topics []string                 `json:"topics,omitempty" validate:"omitempty,dive,required"`
	Types  []models.QuestionType    `json:"types,omitempty" validate:"omitempty,dive,question_type"`
	Seed   *uint64                  `json:"seed,omitempty"`
}

// ===== RESPONSES =====

// AttemptResponse is an attempt as shown to a caller. Question correctness
// and per-question results are present only when solutions are visible.
type AttemptResponse struct {
	ID         string                    `json:"id"`
	ExamID     string                    `json:"exam_id"`
	UserID     string                    `json:"user_id"`
	Status     models.AttemptStatus      `json:"status"`
	Questions  []models.Question         `json:"questions"`
	Answers    []models.AttemptAnswer    `json:"answers"`
	Violations []models.AttemptViolation `json:"violations"`
	Settings   models.ExamSettings       `json:"settings"`
	Proctoring models.ProctoringSettings `json:"proctoring"`

	StartedAt          time.Time  `json:"started_at"`
	Deadline           time.Time  `json:"deadline"`
	RemainingMs        int64      `json:"remaining_ms"`
	AutosaveIntervalMs int64      `json:"autosave_interval_ms"`
	SubmittedAt        *time.Time `json:"submitted_at"`

	Score     *float64                 `json:"score"`
	MaxScore  float64                  `json:"max_score"`
	Breakdown *models.Breakdown        `json:"breakdown,omitempty"`
	Results   []scoring.QuestionResult `json:"results,omitempty"`

	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
	InvalidationReason string     `json:"invalidation_reason,omitempty"`
}

// AttemptSummary is a listing row.
type AttemptSummary struct {
	ID          string               `json:"id"`
	ExamID      string               `json:"exam_id"`
	UserID      string               `json:"user_id"`
	Status      models.AttemptStatus `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	SubmittedAt *time.Time           `json:"submitted_at"`
	Score       *float64             `json:"score"`
	MaxScore    float64              `json:"max_score"`
}

type AttemptListResponse struct {
	Attempts []AttemptSummary `json:"attempts"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type TimeWarning string

const (
	TimeWarningNone     TimeWarning = ""
	TimeWarningLow      TimeWarning = "low"
	TimeWarningCritical TimeWarning = "critical"
)

const (
	lowTimeThreshold      = 15 * time.Minute
	criticalTimeThreshold = 5 * time.Minute
)

type TimeRemainingResponse struct {
	AttemptID   string               `json:"attempt_id"`
	Status      models.AttemptStatus `json:"status"`
	RemainingMs int64                `json:"remaining_ms"`
	Expired     bool                 `json:"expired"`
	Warning     TimeWarning          `json:"warning,omitempty"`
	Deadline    time.Time            `json:"deadline"`
	ServerTime  time.Time            `json:"server_time"`
}

func warningFor(remaining time.Duration) TimeWarning {
	switch {
	case remaining <= criticalTimeThreshold:
		return TimeWarningCritical
	case remaining <= lowTimeThreshold:
		return TimeWarningLow
	default:
		return TimeWarningNone
	}
}
