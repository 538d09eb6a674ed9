package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// QuestionValidator checks question definitions before they are snapshotted
// into an attempt, and answer payloads before they are stored.
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion rejects definitions the evaluator cannot score unambiguously.
func (v *QuestionValidator) ValidateQuestion(q *models.Question) error {
	if !q.Type.IsValid() {
		return fmt.Errorf("unsupported question type: %s", q.Type)
	}
	if strings.TrimSpace(q.Stem) == "" {
		return fmt.Errorf("question stem is required")
	}
	if q.Difficulty < models.MinDifficulty || q.Difficulty > models.MaxDifficulty {
		return fmt.Errorf("difficulty must be between %d and %d", models.MinDifficulty, models.MaxDifficulty)
	}

	ids := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		if opt.ID == "" {
			return fmt.Errorf("option id cannot be empty")
		}
		if ids[opt.ID] {
			return fmt.Errorf("duplicate option id: %s", opt.ID)
		}
		ids[opt.ID] = true
	}

	correct := len(q.CorrectOptionIDs())
	switch q.Type {
	case models.SingleCorrect:
		if len(q.Options) < 2 {
			return fmt.Errorf("must have at least 2 options")
		}
		if correct != 1 {
			return fmt.Errorf("must have exactly 1 correct option, has %d", correct)
		}
	case models.TrueFalse:
		if len(q.Options) != 2 || correct != 1 {
			return fmt.Errorf("true/false question must have 2 options with exactly 1 correct")
		}
	case models.MultiSelect:
		if len(q.Options) < 2 {
			return fmt.Errorf("must have at least 2 options")
		}
		if correct == 0 {
			return fmt.Errorf("must have at least 1 correct option")
		}
		if q.CorrectCount != 0 && q.CorrectCount != correct {
			return fmt.Errorf("correct_count %d does not match %d correct options", q.CorrectCount, correct)
		}
	case models.Numerical:
		if len(q.Options) != 1 || correct != 1 {
			return fmt.Errorf("numerical question must have exactly one correct value")
		}
		if strings.TrimSpace(q.Options[0].Text) == "" {
			return fmt.Errorf("numerical correct value cannot be empty")
		}
	}
	return nil
}

// ValidateBatch validates multiple questions
func (v *QuestionValidator) ValidateBatch(questions []models.Question) error {
	for i := range questions {
		if err := v.ValidateQuestion(&questions[i]); err != nil {
			return fmt.Errorf("question %s: %w", questions[i].ID, err)
		}
	}
	return nil
}

// ValidateAnswer returns a human readable problem with the selected values,
// or "" when the payload is well formed. An empty selection is always valid.
func (v *QuestionValidator) ValidateAnswer(q *models.Question, selected []string) string {
	if len(selected) == 0 {
		return ""
	}
	if q.Type.SingleValued() && len(selected) > 1 {
		return fmt.Sprintf("must contain exactly one value for %s questions", q.Type)
	}

	switch q.Type {
	case models.Numerical:
		value := strings.TrimSpace(selected[0])
		if value == "" {
			return "numerical answer cannot be blank"
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "numerical answer must be a number"
		}
	default:
		seen := make(map[string]bool, len(selected))
		for _, id := range selected {
			if seen[id] {
				return fmt.Sprintf("option %s selected more than once", id)
			}
			seen[id] = true
			if _, ok := q.Option(id); !ok {
				return fmt.Sprintf("option %s does not belong to this question", id)
			}
		}
	}
	return ""
}
