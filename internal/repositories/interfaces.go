package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrAttemptClosed   = errors.New("attempt is no longer in progress")
	ErrDuplicateActive = errors.New("an in-progress attempt already exists")
)

// IsNotFoundError matches both the repository sentinel and gorm's.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type QuestionFilters struct {
	Types       []models.QuestionType `json:"types"`
	Topics      []string              `json:"topics"`
	IncludeTags []string              `json:"include_tags"`
	ExcludeTags []string              `json:"exclude_tags"`
	Limit       int                   `json:"limit"`
}

type AttemptFilters struct {
	ExamID    string               `json:"exam_id"`
	UserID    string               `json:"user_id"`
	Status    models.AttemptStatus `json:"status"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`    // "started_at", "submitted_at", "score"
	SortOrder string               `json:"sort_order"` // "asc", "desc"
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging and sort fields to supported values.
func (f AttemptFilters) Normalize() AttemptFilters {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.SortBy {
	case "started_at", "submitted_at", "score":
	default:
		f.SortBy = "started_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}
