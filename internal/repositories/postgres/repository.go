package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type Repository struct {
	db       *gorm.DB
	attempt  repositories.AttemptRepository
	exam     repositories.ExamRepository
	question repositories.QuestionRepository
}

// NewRepository wires the gorm stores. c may be nil to read exams and
// questions straight from the database.
func NewRepository(db *gorm.DB, c cache.CacheService, cacheTTL time.Duration) *Repository {
	return &Repository{
		db:       db,
		attempt:  NewAttemptPostgreSQL(db),
		exam:     NewExamPostgreSQL(db, c, cacheTTL),
		question: NewQuestionPostgreSQL(db, c, cacheTTL),
	}
}

func (r *Repository) Attempt() repositories.AttemptRepository   { return r.attempt }
func (r *Repository) Exam() repositories.ExamRepository         { return r.exam }
func (r *Repository) Question() repositories.QuestionRepository { return r.question }

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
