package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleCorrect QuestionType = "SINGLE_CORRECT"
	MultiSelect   QuestionType = "MULTI_SELECT"
	TrueFalse     QuestionType = "TRUE_FALSE"
	Numerical     QuestionType = "NUMERICAL"
)

// IsValid reports whether t is one of the supported question types.
func (t QuestionType) IsValid() bool {
	switch t {
	case SingleCorrect, MultiSelect, TrueFalse, Numerical:
		return true
	}
	return false
}

// SingleValued reports whether answers to this type carry exactly one value.
func (t QuestionType) SingleValued() bool {
	return t == SingleCorrect || t == TrueFalse || t == Numerical
}

// DifficultyBand is the three-level grouping used by randomization rules.
type DifficultyBand string

const (
	BandEasy   DifficultyBand = "easy"
	BandMedium DifficultyBand = "medium"
	BandHard   DifficultyBand = "hard"
)

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// BandOf maps the five-point difficulty scale onto easy (1-2), medium (3) and hard (4-5).
func BandOf(difficulty int) DifficultyBand {
	switch {
	case difficulty <= 2:
		return BandEasy
	case difficulty == 3:
		return BandMedium
	default:
		return BandHard
	}
}

// Option is one answer choice. For NUMERICAL questions the single correct
// option carries the expected value in Text.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID           string                      `json:"id" gorm:"primaryKey;size:64"`
	Stem         string                      `json:"stem" gorm:"type:text;not null"`
	Type         QuestionType                `json:"type" gorm:"size:20;not null;index"`
	Options      []Option                    `json:"options" gorm:"serializer:json;type:jsonb"`
	CorrectCount int                         `json:"correct_count" gorm:"default:0"`
	Difficulty   int                         `json:"difficulty" gorm:"not null;index;check:difficulty BETWEEN 1 AND 5"`
	Topic        string                      `json:"topic" gorm:"size:100;index"`
	Tags         datatypes.JSONSlice[string] `json:"tags" gorm:"type:jsonb"`
	IsActive     bool                        `json:"is_active" gorm:"default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOptionIDs returns the ids of correct options in definition order.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func (q *Question) Option(id string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

func (q *Question) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the question without correctness flags, for
// presentation while an attempt is running.
func (q Question) Redacted() Question {
	out := q
	out.Options = make([]Option, len(q.Options))
	for i, opt := range q.Options {
		out.Options[i] = Option{ID: opt.ID, Text: opt.Text}
	}
	if q.Type == Numerical {
		out.Options = nil
	}
	out.CorrectCount = 0
	if q.Type == MultiSelect {
		out.CorrectCount = q.CorrectCount
	}
	return out
}
