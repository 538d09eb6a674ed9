package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

var attemptSortColumns = map[string]string{
	"started_at":   "started_at",
	"submitted_at": "submitted_at",
	"score":        "score",
}

// applyAttemptFilters applies common filters to a query
func applyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.ExamID != "" {
		query = query.Where("exam_id = ?", filters.ExamID)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	return query
}

// applyPaginationAndSort applies pagination and sorting to a query. sortBy is
// matched against a whitelist and never interpolated from input.
func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	column, ok := attemptSortColumns[sortBy]
	if !ok {
		column = "started_at"
	}
	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s NULLS LAST, id ASC", column, direction))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// applyQuestionFilters narrows the bank to the candidate pool. Tags are a
// jsonb array; the jsonb_exists functions stand in for the ? operators,
// which clash with placeholders.
func applyQuestionFilters(query *gorm.DB, filters repositories.QuestionFilters) *gorm.DB {
	query = query.Where("is_active = ?", true)
	if len(filters.Types) > 0 {
		query = query.Where("type IN ?", filters.Types)
	}
	if len(filters.Topics) > 0 {
		query = query.Where("topic IN ?", filters.Topics)
	}
	if len(filters.IncludeTags) > 0 {
		query = query.Where("jsonb_exists_any(tags, ARRAY[?]::text[])", filters.IncludeTags)
	}
	if len(filters.ExcludeTags) > 0 {
		query = query.Where("NOT jsonb_exists_any(COALESCE(tags, '[]'::jsonb), ARRAY[?]::text[])", filters.ExcludeTags)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	return query
}
