package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

var (
	ErrInsufficientPool = errors.New("question pool cannot satisfy randomization rule")
	ErrInvalidRule      = errors.New("invalid randomization rule")
)

var bands = []models.DifficultyBand{models.BandEasy, models.BandMedium, models.BandHard}

// fallback lists the bands a shortfall is filled from, closest first.
var fallback = map[models.DifficultyBand][]models.DifficultyBand{
	models.BandEasy:   {models.BandMedium, models.BandHard},
	models.BandMedium: {models.BandEasy, models.BandHard},
	models.BandHard:   {models.BandMedium, models.BandEasy},
}

// Selector draws question subsets. It is not safe for concurrent use because
// the underlying random source is not.
type Selector struct {
	rng *rand.Rand
}

// NewSelector uses rng for every draw; pass a seeded source for reproducible output.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// NewSeededSelector is a convenience for tests and replay.
func NewSeededSelector(seed uint64) *Selector {
	return NewSelector(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// ValidateRule checks the rule shape before any pool is consulted.
func ValidateRule(rule models.RandomizationRule) error {
	if rule.TotalQuestions <= 0 {
		return fmt.Errorf("%w: total_questions must be positive", ErrInvalidRule)
	}
	d := rule.DifficultyDistribution
	if d.Easy < 0 || d.Medium < 0 || d.Hard < 0 {
		return fmt.Errorf("%w: distribution percentages cannot be negative", ErrInvalidRule)
	}
	if d.Sum() != 100 {
		return fmt.Errorf("%w: distribution must sum to 100, got %d", ErrInvalidRule, d.Sum())
	}
	return nil
}

// Select filters the pool by tags, draws per difficulty band and returns
// exactly rule.TotalQuestions unique ids in shuffled order.
func (s *Selector) Select(rule models.RandomizationRule, pool []models.Question) ([]string, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	buckets := make(map[models.DifficultyBand][]string, len(bands))
	available := 0
	seen := make(map[string]struct{}, len(pool))
	for i := range pool {
		q := &pool[i]
		if _, dup := seen[q.ID]; dup || !matchesTags(q, rule) {
			continue
		}
		seen[q.ID] = struct{}{}
		band := models.BandOf(q.Difficulty)
		buckets[band] = append(buckets[band], q.ID)
		available++
	}
	if available < rule.TotalQuestions {
		return nil, fmt.Errorf("%w: need %d questions, %d match the filters",
			ErrInsufficientPool, rule.TotalQuestions, available)
	}

	for _, band := range bands {
		s.shuffle(buckets[band])
	}

	targets := Targets(rule)
	selected := make([]string, 0, rule.TotalQuestions)
	shortfall := make(map[models.DifficultyBand]int, len(bands))
	for _, band := range bands {
		n := targets[band]
		if n > len(buckets[band]) {
			shortfall[band] = n - len(buckets[band])
			n = len(buckets[band])
		}
		selected = append(selected, buckets[band][:n]...)
		buckets[band] = buckets[band][n:]
	}

	for _, band := range bands {
		missing := shortfall[band]
		for _, from := range fallback[band] {
			if missing == 0 {
				break
			}
			n := min(missing, len(buckets[from]))
			selected = append(selected, buckets[from][:n]...)
			buckets[from] = buckets[from][n:]
			missing -= n
		}
	}

	s.shuffle(selected)
	return selected, nil
}

// Targets computes round(total*pct/100) per band. Rounding drift is added to
// the band with the largest share, or trimmed from the band with the largest
// target, so the targets always sum to the total.
func Targets(rule models.RandomizationRule) map[models.DifficultyBand]int {
	d := rule.DifficultyDistribution
	out := make(map[models.DifficultyBand]int, len(bands))
	sum := 0
	for _, band := range bands {
		n := int(math.Round(float64(rule.TotalQuestions) * float64(d.Percent(band)) / 100))
		out[band] = n
		sum += n
	}

	if sum < rule.TotalQuestions {
		largest := models.BandEasy
		for _, band := range bands {
			if d.Percent(band) > d.Percent(largest) {
				largest = band
			}
		}
		out[largest] += rule.TotalQuestions - sum
	}
	for ; sum > rule.TotalQuestions; sum-- {
		most := models.BandEasy
		for _, band := range bands {
			if out[band] > out[most] {
				most = band
			}
		}
		out[most]--
	}
	return out
}

func matchesTags(q *models.Question, rule models.RandomizationRule) bool {
	for _, tag := range rule.ExcludeTags {
		if q.HasTag(tag) {
			return false
		}
	}
	if len(rule.IncludeTags) == 0 {
		return true
	}
	for _, tag := range rule.IncludeTags {
		if q.HasTag(tag) {
			return true
		}
	}
	return false
}

func (s *Selector) shuffle(ids []string) {
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
