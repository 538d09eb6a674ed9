package scoring

import (
	"math"
	"strconv"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// QuestionResult is the per-question line of an aggregated score.
type QuestionResult struct {
	QuestionID string  `json:"question_id"`
	Verdict    Verdict `json:"verdict"`
	Points     float64 `json:"points"` // after negative marking
}

type Result struct {
	Score     float64          `json:"score"` // whole percentage in [0, 100]
	RawPoints float64          `json:"raw_points"`
	MaxScore  float64          `json:"max_score"`
	Breakdown models.Breakdown `json:"breakdown"`
	Questions []QuestionResult `json:"questions"`
}

// Aggregate scores every question exactly once, in slice order, so the
// result never depends on map iteration.
func Aggregate(questions []models.Question, answers map[string]models.AttemptAnswer, settings models.ExamSettings) Result {
	evaluator := NewEvaluator(WithPartialCredit(settings.PartialCredit))

	res := Result{
		Breakdown: models.Breakdown{
			ByTopic:      make(map[string]models.Tally),
			ByDifficulty: make(map[string]models.Tally),
		},
		Questions: make([]QuestionResult, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		verdict := evaluator.Evaluate(q, answers[q.ID])

		points := verdict.PointsEarned
		if verdict.WhollyIncorrect() && settings.NegativeMarking < 0 {
			points += settings.NegativeMarking
		}
		res.RawPoints += points
		res.MaxScore++

		res.Questions = append(res.Questions, QuestionResult{
			QuestionID: q.ID,
			Verdict:    verdict,
			Points:     points,
		})

		tally(res.Breakdown.ByTopic, q.Topic, verdict.IsCorrect)
		tally(res.Breakdown.ByDifficulty, strconv.Itoa(q.Difficulty), verdict.IsCorrect)
	}

	res.Score = Percentage(res.RawPoints, res.MaxScore)
	return res
}

// Percentage normalises raw points to a whole percentage clamped to [0, 100].
func Percentage(raw, max float64) float64 {
	if max <= 0 {
		return 0
	}
	pct := raw / max * 100
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return math.Round(pct)
}

func tally(buckets map[string]models.Tally, key string, correct bool) {
	t := buckets[key]
	t.Total++
	if correct {
		t.Correct++
	}
	buckets[key] = t
}
