package scoring

import (
	"strconv"
	"strings"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Verdict is the outcome of evaluating one answer against one question.
type Verdict struct {
	IsCorrect    bool    `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	Answered     bool    `json:"answered"`
}

// WhollyIncorrect reports an answered question that earned nothing.
func (v Verdict) WhollyIncorrect() bool {
	return v.Answered && !v.IsCorrect && v.PointsEarned == 0
}

// Strategy evaluates a single question type. Implementations must be pure.
type Strategy interface {
	Evaluate(q *models.Question, selected []string) Verdict
}

type Evaluator struct {
	strategies map[models.QuestionType]Strategy
}

type Option func(*config)

type config struct {
	partialCredit bool
}

// WithPartialCredit enables fractional MULTI_SELECT scoring.
func WithPartialCredit(enabled bool) Option { return func(c *config) { c.partialCredit = enabled } }

func NewEvaluator(opts ...Option) *Evaluator {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &Evaluator{
		strategies: map[models.QuestionType]Strategy{
			models.SingleCorrect: singleChoiceStrategy{},
			models.TrueFalse:     singleChoiceStrategy{},
			models.MultiSelect:   multiSelectStrategy{partialCredit: cfg.partialCredit},
			models.Numerical:     numericalStrategy{},
		},
	}
}

// Evaluate never fails: an unknown type or an empty answer scores zero.
func (e *Evaluator) Evaluate(q *models.Question, answer models.AttemptAnswer) Verdict {
	selected := []string(answer.SelectedOptions)
	if len(selected) == 0 {
		return Verdict{}
	}
	s, ok := e.strategies[q.Type]
	if !ok {
		return Verdict{Answered: true}
	}
	v := s.Evaluate(q, selected)
	v.Answered = true
	return v
}

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Evaluate(q *models.Question, selected []string) Verdict {
	if len(selected) != 1 {
		return Verdict{}
	}
	opt, ok := q.Option(selected[0])
	if ok && opt.IsCorrect {
		return Verdict{IsCorrect: true, PointsEarned: 1}
	}
	return Verdict{}
}

type multiSelectStrategy struct{ partialCredit bool }

func (s multiSelectStrategy) Evaluate(q *models.Question, selected []string) Verdict {
	correct := toSet(q.CorrectOptionIDs())
	chosen := toSet(selected)

	if len(correct) > 0 && setEqual(correct, chosen) {
		return Verdict{IsCorrect: true, PointsEarned: 1}
	}
	if !s.partialCredit || len(correct) == 0 {
		return Verdict{}
	}

	hits, misses := 0, 0
	for id := range chosen {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			misses++
		}
	}
	points := float64(hits-misses) / float64(len(correct))
	if points < 0 {
		points = 0
	}
	return Verdict{PointsEarned: points}
}

// numericalStrategy accepts exact string equality or exact numeric equality.
// There is intentionally no tolerance band.
type numericalStrategy struct{}

func (numericalStrategy) Evaluate(q *models.Question, selected []string) Verdict {
	if len(selected) != 1 {
		return Verdict{}
	}
	keys := q.CorrectOptionIDs()
	if len(keys) != 1 {
		return Verdict{}
	}
	opt, _ := q.Option(keys[0])
	if numericEqual(opt.Text, selected[0]) {
		return Verdict{IsCorrect: true, PointsEarned: 1}
	}
	return Verdict{}
}

func numericEqual(expected, got string) bool {
	expected, got = strings.TrimSpace(expected), strings.TrimSpace(got)
	if expected == "" || got == "" {
		return false
	}
	if expected == got {
		return true
	}
	want, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false
	}
	have, err := strconv.ParseFloat(got, 64)
	if err != nil {
		return false
	}
	return want == have
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
