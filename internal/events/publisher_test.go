package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewMessage_CarriesMetadata(t *testing.T) {
	startedAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	event := NewAttemptStartedEvent(&models.Attempt{
		ID:        "attempt-1",
		ExamID:    "exam-1",
		UserID:    "user-1",
		StartedAt: startedAt,
		Settings:  models.ExamSettings{Duration: 45},
		Questions: []models.Question{{ID: "q1"}, {ID: "q2"}},
	})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.ID, msg.UUID)
	assert.Equal(t, string(EventAttemptStarted), msg.Metadata.Get("event_type"))
	assert.Equal(t, "attempt-1", msg.Metadata.Get("attempt_id"))
	assert.Equal(t, eventSource, msg.Metadata.Get("source"))

	var decoded struct {
		Type      EventType          `json:"type"`
		AttemptID string             `json:"attempt_id"`
		Data      AttemptStartedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, EventAttemptStarted, decoded.Type)
	assert.Equal(t, 45, decoded.Data.Duration)
	assert.Equal(t, 2, decoded.Data.QuestionCount)
}

func TestPartitionByAttempt(t *testing.T) {
	event := NewAnswersSavedEvent("attempt-7", []string{"q1"}, 1, time.Now())
	msg, err := NewMessage(event)
	require.NoError(t, err)

	key, err := partitionByAttempt("exam-attempts", msg)
	require.NoError(t, err)
	assert.Equal(t, "attempt-7", key)
}

func TestAttemptSubmittedEvent(t *testing.T) {
	score := 42.0
	submittedAt := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	event := NewAttemptSubmittedEvent(&models.Attempt{
		ID:          "attempt-1",
		Score:       &score,
		MaxScore:    12,
		SubmittedAt: &submittedAt,
	}, 5, true)

	assert.Equal(t, EventAttemptSubmitted, event.Type)
	assert.Equal(t, submittedAt, event.Timestamp)
	data, ok := event.Data.(AttemptSubmittedData)
	require.True(t, ok)
	assert.Equal(t, 42.0, data.Score)
	assert.Equal(t, 5.0, data.RawScore)
	assert.True(t, data.Automatic)
}

func TestMockEventPublisher(t *testing.T) {
	ctx := context.Background()
	pub := NewMockEventPublisher(testLogger())

	require.NoError(t, pub.Publish(ctx, NewAnswersSavedEvent("a1", []string{"q1"}, 1, time.Now())))
	require.NoError(t, pub.Publish(ctx, NewViolationRecordedEvent("a1", models.AttemptViolation{
		ID: "v1", Type: models.ViolationTabSwitch, Seq: 1,
	})))

	assert.Len(t, pub.GetPublishedEvents(), 2)
	assert.Len(t, pub.EventsOfType(EventAttemptViolationRecorded), 1)

	pub.Err = errors.New("broker down")
	assert.Error(t, pub.Publish(ctx, NewAnswersSavedEvent("a1", nil, 0, time.Now())))
	assert.Len(t, pub.GetPublishedEvents(), 2)

	pub.ClearEvents()
	assert.Empty(t, pub.GetPublishedEvents())
}
