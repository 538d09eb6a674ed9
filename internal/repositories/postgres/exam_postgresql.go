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

type ExamPostgreSQL struct {
	db    *gorm.DB
	cache cache.CacheService
	ttl   time.Duration
}

// NewExamPostgreSQL reads exams through the cache when one is given.
func NewExamPostgreSQL(db *gorm.DB, c cache.CacheService, ttl time.Duration) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db, cache: c, ttl: ttl}
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, id string) (*models.Exam, error) {
	load := func() (interface{}, error) {
		var exam models.Exam
		if err := e.db.WithContext(ctx).Where("id = ?", id).First(&exam).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.NotFound("exam", id)
			}
			return nil, err
		}
		return &exam, nil
	}

	if e.cache == nil {
		v, err := load()
		if err != nil {
			return nil, err
		}
		return v.(*models.Exam), nil
	}

	var exam models.Exam
	if err := e.cache.CacheOrExecute(ctx, cache.ExamKey(id), &exam, e.ttl, load); err != nil {
		return nil, err
	}
	return &exam, nil
}
