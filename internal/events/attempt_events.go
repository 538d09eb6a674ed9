package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// EventType represents the attempt lifecycle events this service emits
type EventType string

const (
	EventAttemptStarted           EventType = "attempt.started"
	EventAttemptAnswersSaved      EventType = "attempt.answers_saved"
	EventAttemptViolationRecorded EventType = "attempt.violation_recorded"
	EventAttemptSubmitted         EventType = "attempt.submitted"
	EventAttemptInvalidated       EventType = "attempt.invalidated"
)

const (
	eventSource  = "exam-attempt-service"
	eventVersion = "1.0"
)

// AttemptEvent is the envelope for every attempt event
type AttemptEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	AttemptID string      `json:"attempt_id"`
	Data      interface{} `json:"data"`
}

type AttemptStartedData struct {
	ExamID        string    `json:"exam_id"`
	UserID        string    `json:"user_id"`
	StartedAt     time.Time `json:"started_at"`
	Duration      int       `json:"duration"` // minutes
	QuestionCount int       `json:"question_count"`
}

type AnswersSavedData struct {
	QuestionIDs []string `json:"question_ids"`
	Answered    int      `json:"answered"`
}

type ViolationRecordedData struct {
	ViolationID string               `json:"violation_id"`
	Type        models.ViolationType `json:"type"`
	Seq         int                  `json:"seq"`
	Details     string               `json:"details,omitempty"`
}

type AttemptSubmittedData struct {
	ExamID      string            `json:"exam_id"`
	UserID      string            `json:"user_id"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Score       float64           `json:"score"`
	RawScore    float64           `json:"raw_score"`
	MaxScore    float64           `json:"max_score"`
	Breakdown   *models.Breakdown `json:"breakdown,omitempty"`
	Automatic   bool              `json:"automatic"` // Submitted by the timeout sweeper
}

type AttemptInvalidatedData struct {
	ExamID string    `json:"exam_id"`
	UserID string    `json:"user_id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func newEvent(eventType EventType, attemptID string, at time.Time, data interface{}) *AttemptEvent {
	return &AttemptEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Source:    eventSource,
		Version:   eventVersion,
		AttemptID: attemptID,
		Data:      data,
	}
}

// Event factory functions

func NewAttemptStartedEvent(attempt *models.Attempt) *AttemptEvent {
	return newEvent(EventAttemptStarted, attempt.ID, attempt.StartedAt, AttemptStartedData{
		ExamID:        attempt.ExamID,
		UserID:        attempt.UserID,
		StartedAt:     attempt.StartedAt,
		Duration:      attempt.Settings.Duration,
		QuestionCount: len(attempt.Questions),
	})
}

func NewAnswersSavedEvent(attemptID string, questionIDs []string, answered int, at time.Time) *AttemptEvent {
	return newEvent(EventAttemptAnswersSaved, attemptID, at, AnswersSavedData{
		QuestionIDs: questionIDs,
		Answered:    answered,
	})
}

func NewViolationRecordedEvent(attemptID string, v models.AttemptViolation) *AttemptEvent {
	return newEvent(EventAttemptViolationRecorded, attemptID, v.Timestamp, ViolationRecordedData{
		ViolationID: v.ID,
		Type:        v.Type,
		Seq:         v.Seq,
		Details:     v.Details,
	})
}

func NewAttemptSubmittedEvent(attempt *models.Attempt, rawScore float64, automatic bool) *AttemptEvent {
	data := AttemptSubmittedData{
		ExamID:    attempt.ExamID,
		UserID:    attempt.UserID,
		RawScore:  rawScore,
		MaxScore:  attempt.MaxScore,
		Breakdown: attempt.Breakdown,
		Automatic: automatic,
	}
	if attempt.Score != nil {
		data.Score = *attempt.Score
	}
	at := time.Now()
	if attempt.SubmittedAt != nil {
		at = *attempt.SubmittedAt
		data.SubmittedAt = at
	}
	return newEvent(EventAttemptSubmitted, attempt.ID, at, data)
}

func NewAttemptInvalidatedEvent(attempt *models.Attempt, reason string, at time.Time) *AttemptEvent {
	return newEvent(EventAttemptInvalidated, attempt.ID, at, AttemptInvalidatedData{
		ExamID: attempt.ExamID,
		UserID: attempt.UserID,
		Reason: reason,
		At:     at,
	})
}
