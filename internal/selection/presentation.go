package selection

import (
	"math/rand/v2"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Present applies the per-attempt question and option shuffle. The same seed
// always yields the same order, so a resumed attempt is shown identically.
// TRUE_FALSE and NUMERICAL options keep their authored order.
func Present(questions []models.Question, settings models.ExamSettings, seed int64) []models.Question {
	out := make([]models.Question, len(questions))
	copy(out, questions)

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))

	if settings.ShuffleQuestions {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	if settings.ShuffleOptions {
		for i := range out {
			if out[i].Type == models.TrueFalse || out[i].Type == models.Numerical {
				continue
			}
			opts := append([]models.Option(nil), out[i].Options...)
			rng.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
			out[i].Options = opts
		}
	}
	return out
}
