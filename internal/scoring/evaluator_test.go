package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

func answer(ids ...string) models.AttemptAnswer {
	return models.AttemptAnswer{SelectedOptions: ids}
}

func singleQuestion(correct string) *models.Question {
	return &models.Question{
		ID:   "q-single",
		Type: models.SingleCorrect,
		Options: []models.Option{
			{ID: "A", Text: "Alpha", IsCorrect: correct == "A"},
			{ID: "B", Text: "Beta", IsCorrect: correct == "B"},
			{ID: "C", Text: "Gamma", IsCorrect: correct == "C"},
		},
		Difficulty: 2,
		Topic:      "greek",
	}
}

func multiQuestion() *models.Question {
	return &models.Question{
		ID:   "q-multi",
		Type: models.MultiSelect,
		Options: []models.Option{
			{ID: "A", IsCorrect: true},
			{ID: "B"},
			{ID: "C", IsCorrect: true},
			{ID: "D"},
		},
		CorrectCount: 2,
		Difficulty:   3,
		Topic:        "sets",
	}
}

func numericalQuestion(value string) *models.Question {
	return &models.Question{
		ID:         "q-num",
		Type:       models.Numerical,
		Options:    []models.Option{{ID: "1", Text: value, IsCorrect: true}},
		Difficulty: 4,
		Topic:      "arithmetic",
	}
}

func TestEvaluator_SingleCorrect(t *testing.T) {
	e := NewEvaluator()
	q := singleQuestion("B")

	tests := []struct {
		name     string
		answer   models.AttemptAnswer
		correct  bool
		points   float64
		answered bool
	}{
		{"matching option", answer("B"), true, 1, true},
		{"wrong option", answer("A"), false, 0, true},
		{"unknown option", answer("Z"), false, 0, true},
		{"unanswered", answer(), false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(q, tt.answer)
			assert.Equal(t, tt.correct, v.IsCorrect)
			assert.Equal(t, tt.points, v.PointsEarned)
			assert.Equal(t, tt.answered, v.Answered)
		})
	}
}

func TestEvaluator_TrueFalse(t *testing.T) {
	q := &models.Question{
		Type:    models.TrueFalse,
		Options: []models.Option{{ID: "true", IsCorrect: true}, {ID: "false"}},
	}
	e := NewEvaluator()

	assert.True(t, e.Evaluate(q, answer("true")).IsCorrect)
	assert.False(t, e.Evaluate(q, answer("false")).IsCorrect)
}

func TestEvaluator_MultiSelectWithoutPartialCredit(t *testing.T) {
	e := NewEvaluator(WithPartialCredit(false))
	q := multiQuestion()

	tests := []struct {
		name     string
		selected []string
		points   float64
	}{
		{"exact set", []string{"A", "C"}, 1},
		{"exact set reordered", []string{"C", "A"}, 1},
		{"subset", []string{"A"}, 0},
		{"superset", []string{"A", "B", "C"}, 0},
		{"disjoint", []string{"B", "D"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(q, answer(tt.selected...))
			assert.Equal(t, tt.points, v.PointsEarned)
			assert.Equal(t, tt.points == 1, v.IsCorrect)
		})
	}
}

func TestEvaluator_MultiSelectPartialCredit(t *testing.T) {
	e := NewEvaluator(WithPartialCredit(true))
	q := multiQuestion()

	tests := []struct {
		name     string
		selected []string
		points   float64
	}{
		{"one of two correct", []string{"A"}, 0.5},
		{"one correct one wrong cancels", []string{"A", "B"}, 0},
		{"all wrong floors at zero", []string{"B", "D"}, 0},
		{"full set", []string{"A", "C"}, 1},
		{"full set plus wrong", []string{"A", "C", "D"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(q, answer(tt.selected...))
			assert.InDelta(t, tt.points, v.PointsEarned, 1e-9)
		})
	}
}

func TestEvaluator_PartialCreditMonotonic(t *testing.T) {
	e := NewEvaluator(WithPartialCredit(true))
	q := &models.Question{
		Type: models.MultiSelect,
		Options: []models.Option{
			{ID: "A", IsCorrect: true},
			{ID: "B", IsCorrect: true},
			{ID: "C", IsCorrect: true},
			{ID: "X"},
		},
	}

	path := [][]string{{}, {"A"}, {"A", "B"}, {"A", "B", "C"}}
	prev := -1.0
	for _, selected := range path {
		points := e.Evaluate(q, answer(selected...)).PointsEarned
		assert.GreaterOrEqual(t, points, prev, "selection %v", selected)
		prev = points
	}

	withWrong := e.Evaluate(q, answer("A", "B", "X")).PointsEarned
	assert.Less(t, withWrong, e.Evaluate(q, answer("A", "B")).PointsEarned)
}

func TestEvaluator_Numerical(t *testing.T) {
	e := NewEvaluator()
	q := numericalQuestion("42")

	tests := []struct {
		value   string
		correct bool
	}{
		{"42", true},
		{" 42 ", true},
		{"42.0", true},
		{"4.2e1", true},
		{"42.0001", false},
		{"41.9999", false},
		{"forty-two", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.correct, e.Evaluate(q, answer(tt.value)).IsCorrect)
		})
	}
}

func TestEvaluator_Pure(t *testing.T) {
	e := NewEvaluator(WithPartialCredit(true))
	q := multiQuestion()
	a := answer("A", "D", "C")

	first := e.Evaluate(q, a)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate(q, a))
	}
	assert.Equal(t, []string{"A", "D", "C"}, []string(a.SelectedOptions))
}
