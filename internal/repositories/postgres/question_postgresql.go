package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db    *gorm.DB
	cache cache.CacheService
	ttl   time.Duration
}

func NewQuestionPostgreSQL(db *gorm.DB, c cache.CacheService, ttl time.Duration) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cache: c, ttl: ttl}
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, id string) (*models.Question, error) {
	load := func() (interface{}, error) {
		var question models.Question
		if err := q.db.WithContext(ctx).Where("id = ?", id).First(&question).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.NotFound("question", id)
			}
			return nil, err
		}
		return &question, nil
	}

	if q.cache == nil {
		v, err := load()
		if err != nil {
			return nil, err
		}
		return v.(*models.Question), nil
	}

	var question models.Question
	if err := q.cache.CacheOrExecute(ctx, cache.QuestionKey(id), &question, q.ttl, load); err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.Question
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]models.Question, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		question, ok := byID[id]
		if !ok {
			return nil, repositories.NotFound("question", id)
		}
		out = append(out, question)
	}
	return out, nil
}

func (q *QuestionPostgreSQL) ListPool(ctx context.Context, filters repositories.QuestionFilters) ([]models.Question, error) {
	var questions []models.Question
	query := applyQuestionFilters(q.db.WithContext(ctx).Model(&models.Question{}), filters)
	if err := query.Order("id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}
