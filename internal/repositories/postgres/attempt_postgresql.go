package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	// Answers and violations are written through their own methods.
	err := a.db.WithContext(ctx).Omit("Answers", "Violations").Create(attempt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repositories.ErrDuplicateActive
	}
	return err
}

func (a AttemptPostgreSQL) GetByID(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := withLog(a.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.NotFound("attempt", id)
		}
		return nil, err
	}
	return &attempt, nil
}

func (a AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, examID, userID string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := withLog(a.db.WithContext(ctx)).
		Where("exam_id = ? AND user_id = ? AND status = ?", examID, userID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &attempt, nil
}

func (a AttemptPostgreSQL) CountFinished(ctx context.Context, examID, userID string) (int, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("exam_id = ? AND user_id = ? AND status IN ?", examID, userID,
			[]models.AttemptStatus{models.AttemptSubmitted, models.AttemptInvalidated}).
		Count(&count).Error
	return int(count), err
}

func (a AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	var attempts []*models.Attempt
	var total int64
	filters = filters.Normalize()

	// apply filter first
	query := a.db.WithContext(ctx).Model(&models.Attempt{})
	query = applyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	// Listings carry results only; the log is fetched per attempt.
	if err := query.Omit("questions").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a AttemptPostgreSQL) UpsertAnswers(ctx context.Context, attemptID string, answers []models.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInProgress(tx, attemptID); err != nil {
			return err
		}

		rows := make([]models.AttemptAnswer, len(answers))
		for i, ans := range answers {
			ans.ID = 0
			ans.AttemptID = attemptID
			rows[i] = ans
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"selected_options", "time_spent", "marked_for_review", "updated_at",
			}),
		}).Create(&rows).Error
	})
}

func (a AttemptPostgreSQL) AppendViolations(ctx context.Context, attemptID string, violations []models.AttemptViolation) error {
	if len(violations) == 0 {
		return nil
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInProgress(tx, attemptID); err != nil {
			return err
		}

		// The attempt row lock serialises appenders, so max(seq) is stable here.
		var last int
		if err := tx.Model(&models.AttemptViolation{}).
			Where("attempt_id = ?", attemptID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("failed to read violation sequence: %w", err)
		}

		for i := range violations {
			violations[i].AttemptID = attemptID
			violations[i].Seq = last + i + 1
		}
		return tx.Create(&violations).Error
	})
}

func (a AttemptPostgreSQL) CountViolations(ctx context.Context, attemptID string, violationType models.ViolationType) (int, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.AttemptViolation{}).
		Where("attempt_id = ? AND type = ?", attemptID, violationType).
		Count(&count).Error
	return int(count), err
}

func (a AttemptPostgreSQL) Complete(ctx context.Context, attempt *models.Attempt) error {
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
		Select("status", "submitted_at", "score", "max_score", "breakdown").
		Updates(&models.Attempt{
			Status:      models.AttemptSubmitted,
			SubmittedAt: attempt.SubmittedAt,
			Score:       attempt.Score,
			MaxScore:    attempt.MaxScore,
			Breakdown:   attempt.Breakdown,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return a.closedOrMissing(ctx, attempt.ID)
	}
	return nil
}

func (a AttemptPostgreSQL) Invalidate(ctx context.Context, id, reason string, at time.Time) error {
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":              models.AttemptInvalidated,
			"invalidated_at":      at,
			"invalidation_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return a.closedOrMissing(ctx, id)
	}
	return nil
}

func (a AttemptPostgreSQL) GetExpiredAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	query := a.db.WithContext(ctx).
		Where("status = ?", models.AttemptInProgress).
		Where("started_at + make_interval(mins => (settings->>'duration')::int) < ?", cutoff).
		Order("started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

// closedOrMissing explains a conditional update that matched no row.
func (a AttemptPostgreSQL) closedOrMissing(ctx context.Context, id string) error {
	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return repositories.NotFound("attempt", id)
	}
	return repositories.ErrAttemptClosed
}

// lockInProgress takes a row lock on the attempt for the rest of tx and
// fails unless it is still in progress.
func lockInProgress(tx *gorm.DB, attemptID string) error {
	var attempt models.Attempt
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "status").
		Where("id = ?", attemptID).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.NotFound("attempt", attemptID)
	}
	if err != nil {
		return err
	}
	if attempt.Status != models.AttemptInProgress {
		return repositories.ErrAttemptClosed
	}
	return nil
}

// withLog preloads the answer and violation log in a stable order.
func withLog(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Violations", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		})
}
