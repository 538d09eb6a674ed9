// Package memory is a process-local Repository used by tests and by
// STORAGE_DRIVER=memory for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type Store struct {
	mu        sync.RWMutex
	attempts  map[string]*models.Attempt
	active    map[string]string // exam|user -> attempt id
	exams     map[string]*models.Exam
	questions map[string]*models.Question
	nextID    uint
}

func NewStore() *Store {
	return &Store{
		attempts:  make(map[string]*models.Attempt),
		active:    make(map[string]string),
		exams:     make(map[string]*models.Exam),
		questions: make(map[string]*models.Question),
	}
}

func (s *Store) Attempt() repositories.AttemptRepository   { return attemptStore{s} }
func (s *Store) Exam() repositories.ExamRepository         { return examStore{s} }
func (s *Store) Question() repositories.QuestionRepository { return questionStore{s} }
func (s *Store) Ping(context.Context) error                { return nil }
func (s *Store) Close() error                              { return nil }

// AddExam seeds an exam.
func (s *Store) AddExam(exam models.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := exam
	e.QuestionIDs = append(e.QuestionIDs[:0:0], exam.QuestionIDs...)
	s.exams[exam.ID] = &e
}

// AddQuestions seeds the question bank.
func (s *Store) AddQuestions(questions ...models.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		q := q
		q.Options = append([]models.Option(nil), q.Options...)
		s.questions[q.ID] = &q
	}
}

func activeKey(examID, userID string) string {
	return examID + "|" + userID
}

// ===== ATTEMPTS =====

type attemptStore struct{ s *Store }

func (r attemptStore) Create(_ context.Context, attempt *models.Attempt) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey(attempt.ExamID, attempt.UserID)
	if attempt.Status == models.AttemptInProgress {
		if _, exists := s.active[key]; exists {
			return repositories.ErrDuplicateActive
		}
		s.active[key] = attempt.ID
	}
	stored := attempt.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = attempt.StartedAt
	}
	stored.UpdatedAt = stored.CreatedAt
	s.attempts[attempt.ID] = stored
	return nil
}

func (r attemptStore) GetByID(_ context.Context, id string) (*models.Attempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.attempts[id]
	if !ok {
		return nil, repositories.NotFound("attempt", id)
	}
	return a.Clone(), nil
}

func (r attemptStore) GetActiveAttempt(_ context.Context, examID, userID string) (*models.Attempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.active[activeKey(examID, userID)]
	if !ok {
		return nil, nil
	}
	return r.s.attempts[id].Clone(), nil
}

func (r attemptStore) CountFinished(_ context.Context, examID, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, a := range r.s.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r attemptStore) List(_ context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters = filters.Normalize()
	r.s.mu.RLock()
	var matched []*models.Attempt
	for _, a := range r.s.attempts {
		if filters.ExamID != "" && a.ExamID != filters.ExamID {
			continue
		}
		if filters.UserID != "" && a.UserID != filters.UserID {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		matched = append(matched, a.Clone())
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less := lessBy(filters.SortBy, matched[i], matched[j])
		if filters.SortOrder == "desc" {
			return lessBy(filters.SortBy, matched[j], matched[i])
		}
		return less
	})

	total := int64(len(matched))
	start := min(filters.Offset, len(matched))
	end := min(start+filters.Limit, len(matched))
	return matched[start:end], total, nil
}

func lessBy(field string, a, b *models.Attempt) bool {
	switch field {
	case "score":
		return scoreOf(a) < scoreOf(b)
	case "submitted_at":
		return timeOf(a.SubmittedAt).Before(timeOf(b.SubmittedAt))
	default:
		if a.StartedAt.Equal(b.StartedAt) {
			return a.ID < b.ID
		}
		return a.StartedAt.Before(b.StartedAt)
	}
}

func scoreOf(a *models.Attempt) float64 {
	if a.Score == nil {
		return -1
	}
	return *a.Score
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// inProgress returns the stored attempt for mutation, or an error when the
// attempt is unknown or terminal. Callers hold s.mu.
func (r attemptStore) inProgress(id string) (*models.Attempt, error) {
	a, ok := r.s.attempts[id]
	if !ok {
		return nil, repositories.NotFound("attempt", id)
	}
	if a.Status != models.AttemptInProgress {
		return nil, repositories.ErrAttemptClosed
	}
	return a, nil
}

func (r attemptStore) UpsertAnswers(_ context.Context, attemptID string, answers []models.AttemptAnswer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, err := r.inProgress(attemptID)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(a.Answers))
	for i, ans := range a.Answers {
		index[ans.QuestionID] = i
	}
	for _, ans := range answers {
		ans.AttemptID = attemptID
		ans.SelectedOptions = append(ans.SelectedOptions[:0:0], ans.SelectedOptions...)
		if i, ok := index[ans.QuestionID]; ok {
			ans.ID = a.Answers[i].ID
			a.Answers[i] = ans
			continue
		}
		r.s.nextID++
		ans.ID = r.s.nextID
		index[ans.QuestionID] = len(a.Answers)
		a.Answers = append(a.Answers, ans)
	}
	return nil
}

func (r attemptStore) AppendViolations(_ context.Context, attemptID string, violations []models.AttemptViolation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, err := r.inProgress(attemptID)
	if err != nil {
		return err
	}
	for i := range violations {
		v := violations[i]
		v.AttemptID = attemptID
		v.Seq = len(a.Violations) + 1
		a.Violations = append(a.Violations, v)
		violations[i] = v
	}
	return nil
}

func (r attemptStore) CountViolations(_ context.Context, attemptID string, violationType models.ViolationType) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.attempts[attemptID]
	if !ok {
		return 0, repositories.NotFound("attempt", attemptID)
	}
	return a.CountViolations(violationType), nil
}

func (r attemptStore) Complete(_ context.Context, attempt *models.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, err := r.inProgress(attempt.ID)
	if err != nil {
		return err
	}
	done := attempt.Clone()
	a.Status = models.AttemptSubmitted
	a.Score = done.Score
	a.MaxScore = done.MaxScore
	a.Breakdown = done.Breakdown
	a.SubmittedAt = done.SubmittedAt
	a.UpdatedAt = timeOf(done.SubmittedAt)
	delete(r.s.active, activeKey(a.ExamID, a.UserID))
	return nil
}

func (r attemptStore) Invalidate(_ context.Context, id, reason string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, err := r.inProgress(id)
	if err != nil {
		return err
	}
	a.Status = models.AttemptInvalidated
	a.InvalidationReason = reason
	a.InvalidatedAt = &at
	a.UpdatedAt = at
	delete(r.s.active, activeKey(a.ExamID, a.UserID))
	return nil
}

func (r attemptStore) GetExpiredAttempts(_ context.Context, cutoff time.Time, limit int) ([]*models.Attempt, error) {
	r.s.mu.RLock()
	var expired []*models.Attempt
	for _, a := range r.s.attempts {
		if a.Status == models.AttemptInProgress && a.Deadline().Before(cutoff) {
			expired = append(expired, a.Clone())
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(expired, func(i, j int) bool { return lessBy("started_at", expired[i], expired[j]) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// ===== EXAMS & QUESTIONS =====

type examStore struct{ s *Store }

func (r examStore) GetByID(_ context.Context, id string) (*models.Exam, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.exams[id]
	if !ok {
		return nil, repositories.NotFound("exam", id)
	}
	out := *e
	out.QuestionIDs = append(e.QuestionIDs[:0:0], e.QuestionIDs...)
	return &out, nil
}

type questionStore struct{ s *Store }

func (r questionStore) GetByID(_ context.Context, id string) (*models.Question, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.questions[id]
	if !ok {
		return nil, repositories.NotFound("question", id)
	}
	out := *q
	out.Options = append([]models.Option(nil), q.Options...)
	return &out, nil
}

func (r questionStore) GetByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		q, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, nil
}

func (r questionStore) ListPool(_ context.Context, filters repositories.QuestionFilters) ([]models.Question, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.Question
	for _, q := range r.s.questions {
		if !q.IsActive || !matches(q, filters) {
			continue
		}
		c := *q
		c.Options = append([]models.Option(nil), q.Options...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func matches(q *models.Question, f repositories.QuestionFilters) bool {
	if len(f.Types) > 0 && !contains(f.Types, q.Type) {
		return false
	}
	if len(f.Topics) > 0 && !contains(f.Topics, q.Topic) {
		return false
	}
	for _, tag := range f.ExcludeTags {
		if q.HasTag(tag) {
			return false
		}
	}
	if len(f.IncludeTags) == 0 {
		return true
	}
	for _, tag := range f.IncludeTags {
		if q.HasTag(tag) {
			return true
		}
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
