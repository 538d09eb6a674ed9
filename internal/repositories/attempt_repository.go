package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// AttemptRepository stores attempts keyed by id, with a secondary lookup of
// the in-progress attempt per (exam, user).
//
// Conditional writes (answers, violations, completion, invalidation) return
// ErrAttemptClosed when the stored attempt is no longer in progress, so a
// terminal attempt is never modified regardless of caller-side locking.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id string) (*models.Attempt, error) // Includes answers and violations
	GetActiveAttempt(ctx context.Context, examID, userID string) (*models.Attempt, error)
	CountFinished(ctx context.Context, examID, userID string) (int, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.Attempt, int64, error)

	UpsertAnswers(ctx context.Context, attemptID string, answers []models.AttemptAnswer) error
	AppendViolations(ctx context.Context, attemptID string, violations []models.AttemptViolation) error
	CountViolations(ctx context.Context, attemptID string, violationType models.ViolationType) (int, error)

	Complete(ctx context.Context, attempt *models.Attempt) error
	Invalidate(ctx context.Context, id, reason string, at time.Time) error

	// GetExpiredAttempts returns in-progress attempts whose deadline is before cutoff.
	GetExpiredAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*models.Attempt, error)
}

// ExamRepository is the read side of the exam store.
type ExamRepository interface {
	GetByID(ctx context.Context, id string) (*models.Exam, error)
}

// QuestionRepository is the read side of the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Question, error)
	// GetByIDs preserves the order of ids and fails with ErrNotFound if any is missing.
	GetByIDs(ctx context.Context, ids []string) ([]models.Question, error)
	ListPool(ctx context.Context, filters QuestionFilters) ([]models.Question, error)
}

// Repository groups the stores the service layer needs.
type Repository interface {
	Attempt() AttemptRepository
	Exam() ExamRepository
	Question() QuestionRepository
	Ping(ctx context.Context) error
	Close() error
}
