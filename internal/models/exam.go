package models

import (
	"time"

	"gorm.io/datatypes"
)

type ShowSolutions string

const (
	ShowSolutionsNever       ShowSolutions = "never"
	ShowSolutionsAfterSubmit ShowSolutions = "after_submit"
	ShowSolutionsAfterWindow ShowSolutions = "after_window"
)

const DefaultMaxTabSwitches = 3

type ExamSettings struct {
	Duration         int           `json:"duration" validate:"required,min=1"` // Minutes
	AttemptsAllowed  int           `json:"attempts_allowed" validate:"min=0"`  // 0 = unlimited
	NegativeMarking  float64       `json:"negative_marking" validate:"max=0"`
	PartialCredit    bool          `json:"partial_credit"`
	ShuffleQuestions bool          `json:"shuffle_questions"`
	ShuffleOptions   bool          `json:"shuffle_options"`
	ShowSolutions    ShowSolutions `json:"show_solutions" validate:"omitempty,oneof=never after_submit after_window"`
	StartWindow      *time.Time    `json:"start_window,omitempty"`
	EndWindow        *time.Time    `json:"end_window,omitempty"`
}

type ProctoringSettings struct {
	FullscreenRequired bool `json:"fullscreen_required"`
	MaxTabSwitches     int  `json:"max_tab_switches" validate:"min=0"`
	BlockCopyPaste     bool `json:"block_copy_paste"`
	RequireWebcam      bool `json:"require_webcam"`
	RequireMicrophone  bool `json:"require_microphone"`
}

type DifficultyDistribution struct {
	Easy   int `json:"easy" validate:"min=0,max=100"`
	Medium int `json:"medium" validate:"min=0,max=100"`
	Hard   int `json:"hard" validate:"min=0,max=100"`
}

func (d DifficultyDistribution) Sum() int {
	return d.Easy + d.Medium + d.Hard
}

// Percent returns the share assigned to a band.
func (d DifficultyDistribution) Percent(band DifficultyBand) int {
	switch band {
	case BandEasy:
		return d.Easy
	case BandMedium:
		return d.Medium
	default:
		return d.Hard
	}
}

type RandomizationRule struct {
	TotalQuestions         int                    `json:"total_questions" validate:"required,min=1"`
	DifficultyDistribution DifficultyDistribution `json:"difficulty_distribution"`
	IncludeTags            []string               `json:"include_tags,omitempty" validate:"omitempty,dive,required"`
	ExcludeTags            []string               `json:"exclude_tags,omitempty" validate:"omitempty,dive,required"`
}

// DefaultRandomizationRule mirrors the authoring defaults: 40% easy, 40% medium, 20% hard.
func DefaultRandomizationRule(total int) RandomizationRule {
	return RandomizationRule{
		TotalQuestions:         total,
		DifficultyDistribution: DifficultyDistribution{Easy: 40, Medium: 40, Hard: 20},
	}
}

type Exam struct {
	ID          string                      `json:"id" gorm:"primaryKey;size:64"`
	Title       string                      `json:"title" gorm:"not null;size:200"`
	QuestionIDs datatypes.JSONSlice[string] `json:"question_ids" gorm:"type:jsonb"`

	Settings          ExamSettings       `json:"settings" gorm:"serializer:json;type:jsonb"`
	Proctoring        ProctoringSettings `json:"proctoring" gorm:"serializer:json;type:jsonb"`
	RandomizationRule *RandomizationRule `json:"randomization_rule,omitempty" gorm:"serializer:json;type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Exam) TableName() string {
	return "exams"
}

// SolutionsVisible decides whether correctness may be shown for an attempt.
func (s ExamSettings) SolutionsVisible(status AttemptStatus, now time.Time) bool {
	if status != AttemptSubmitted {
		return false
	}
	switch s.ShowSolutions {
	case ShowSolutionsAfterSubmit:
		return true
	case ShowSolutionsAfterWindow:
		return s.EndWindow == nil || !now.Before(*s.EndWindow)
	default:
		return false
	}
}
