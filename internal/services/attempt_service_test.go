package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/lock"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/proctoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/memory"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

var (
	student = models.Identity{UserID: "student-1", Role: models.RoleStudent}
	other   = models.Identity{UserID: "student-2", Role: models.RoleStudent}
	proctor = models.Identity{UserID: "proctor-1", Role: models.RoleProctor}
)

// clock is a manually advanced time source shared by the service under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc       AttemptService
	store     *memory.Store
	publisher *events.MockEventPublisher
	clock     *clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.NewStore()
	publisher := events.NewMockEventPublisher(logger)
	clk := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}

	opts = append([]Option{WithClock(clk.Now), WithSeedSource(func() int64 { return 7 })}, opts...)
	svc := NewAttemptService(store, lock.NewKeyedMutex(), publisher, validator.New(), logger, opts...)
	return &fixture{svc: svc, store: store, publisher: publisher, clock: clk}
}

// workedExampleQuestions is the three-question exam from the scoring example.
func workedExampleQuestions() []models.Question {
	return []models.Question{
		{
			ID: "q1", Stem: "Pick B", Type: models.SingleCorrect, Difficulty: 1, Topic: "basics", IsActive: true,
			Options: []models.Option{{ID: "A", Text: "a"}, {ID: "B", Text: "b", IsCorrect: true}},
		},
		{
			ID: "q2", Stem: "Pick A and C", Type: models.MultiSelect, Difficulty: 3, Topic: "sets", IsActive: true,
			CorrectCount: 2,
			Options: []models.Option{
				{ID: "A", Text: "a", IsCorrect: true}, {ID: "B", Text: "b"}, {ID: "C", Text: "c", IsCorrect: true},
			},
		},
		{
			ID: "q3", Stem: "Meaning of life", Type: models.Numerical, Difficulty: 5, Topic: "basics", IsActive: true,
			Options: []models.Option{{ID: "value", Text: "42", IsCorrect: true}},
		},
	}
}

func (f *fixture) seedExam(settings models.ExamSettings, proctoringSettings models.ProctoringSettings) {
	f.store.AddQuestions(workedExampleQuestions()...)
	f.store.AddExam(models.Exam{
		ID:          "exam-1",
		Title:       "Midterm",
		QuestionIDs: []string{"q1", "q2", "q3"},
		Settings:    settings,
		Proctoring:  proctoringSettings,
	})
}

func defaultSettings() models.ExamSettings {
	return models.ExamSettings{
		Duration:        60,
		NegativeMarking: -0.25,
		PartialCredit:   true,
		ShowSolutions:   models.ShowSolutionsAfterSubmit,
	}
}

func TestStart_ResumesInProgressAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: 3})

	first, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, first.Status)
	assert.Len(t, first.Questions, 3)
	assert.Equal(t, float64(3), first.MaxScore)
	assert.Equal(t, (60 * time.Minute).Milliseconds(), first.RemainingMs)
	assert.Equal(t, (10 * time.Second).Milliseconds(), first.AutosaveIntervalMs)

	f.clock.Advance(time.Minute)
	second, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.StartedAt, second.StartedAt)

	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptStarted), 1)
}

func TestStart_HidesCorrectnessWhileInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	resp, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	for _, q := range resp.Questions {
		for _, opt := range q.Options {
			assert.False(t, opt.IsCorrect, "question %s leaks option %s", q.ID, opt.ID)
		}
		if q.Type == models.Numerical {
			assert.Empty(t, q.Options)
		}
	}
	assert.Empty(t, resp.Results)
}

func TestStart_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("exam not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Start(ctx, "missing", student)
		assert.ErrorIs(t, err, ErrExamNotFound)
	})

	t.Run("window not open", func(t *testing.T) {
		f := newFixture(t)
		settings := defaultSettings()
		opens := f.clock.Now().Add(time.Hour)
		settings.StartWindow = &opens
		f.seedExam(settings, models.ProctoringSettings{})

		_, err := f.svc.Start(ctx, "exam-1", student)
		assert.ErrorIs(t, err, ErrExamNotOpen)
	})

	t.Run("window closed", func(t *testing.T) {
		f := newFixture(t)
		settings := defaultSettings()
		closed := f.clock.Now().Add(-time.Minute)
		settings.EndWindow = &closed
		f.seedExam(settings, models.ProctoringSettings{})

		_, err := f.svc.Start(ctx, "exam-1", student)
		assert.ErrorIs(t, err, ErrExamClosed)
	})

	t.Run("attempt limit", func(t *testing.T) {
		f := newFixture(t)
		settings := defaultSettings()
		settings.AttemptsAllowed = 1
		f.seedExam(settings, models.ProctoringSettings{})

		first, err := f.svc.Start(ctx, "exam-1", student)
		require.NoError(t, err)
		_, err = f.svc.Submit(ctx, first.ID, student)
		require.NoError(t, err)

		_, err = f.svc.Start(ctx, "exam-1", student)
		assert.ErrorIs(t, err, ErrAttemptLimitReached)
	})

	t.Run("malformed question", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddQuestions(models.Question{
			ID: "bad", Stem: "two answers", Type: models.SingleCorrect, Difficulty: 2, IsActive: true,
			Options: []models.Option{{ID: "A", IsCorrect: true}, {ID: "B", IsCorrect: true}},
		})
		f.store.AddExam(models.Exam{ID: "exam-bad", QuestionIDs: []string{"bad"}, Settings: defaultSettings()})

		_, err := f.svc.Start(ctx, "exam-bad", student)
		assert.ErrorIs(t, err, ErrMalformedQuestion)
	})
}

func TestStart_RandomizedExam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var pool []models.Question
	for i := 0; i < 12; i++ {
		pool = append(pool, models.Question{
			ID:         fmt.Sprintf("r%02d", i),
			Stem:       "pick",
			Type:       models.TrueFalse,
			Difficulty: i%5 + 1,
			IsActive:   true,
			Options:    []models.Option{{ID: "T", Text: "True", IsCorrect: true}, {ID: "F", Text: "False"}},
		})
	}
	f.store.AddQuestions(pool...)
	rule := models.DefaultRandomizationRule(5)
	f.store.AddExam(models.Exam{ID: "exam-r", Settings: defaultSettings(), RandomizationRule: &rule})

	resp, err := f.svc.Start(ctx, "exam-r", student)
	require.NoError(t, err)
	require.Len(t, resp.Questions, 5)

	seen := make(map[string]bool)
	for _, q := range resp.Questions {
		assert.False(t, seen[q.ID])
		seen[q.ID] = true
		// TRUE_FALSE options are never reordered.
		assert.Equal(t, "T", q.Options[0].ID)
	}
}

func TestSubmit_WorkedExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	err = f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"A"}, TimeSpent: 30},
		{QuestionID: "q2", SelectedOptions: []string{"A"}, TimeSpent: 40},
		{QuestionID: "q3", SelectedOptions: []string{" 42 "}, TimeSpent: 50},
	}}, student)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	submitted, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptSubmitted, submitted.Status)
	require.NotNil(t, submitted.Score)
	assert.Equal(t, 42.0, *submitted.Score)
	assert.Equal(t, 3.0, submitted.MaxScore)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.Breakdown)
	assert.Equal(t, models.Tally{Correct: 1, Total: 2}, submitted.Breakdown.ByTopic["basics"])
	assert.Equal(t, models.Tally{Correct: 0, Total: 1}, submitted.Breakdown.ByTopic["sets"])
	assert.Equal(t, models.Tally{Correct: 1, Total: 1}, submitted.Breakdown.ByDifficulty["5"])

	// Solutions are visible after submit under after_submit.
	require.Len(t, submitted.Results, 3)
	correct := 0
	for _, q := range submitted.Questions {
		for _, opt := range q.Options {
			if opt.IsCorrect {
				correct++
			}
		}
	}
	assert.Equal(t, 4, correct)

	f.clock.Advance(time.Minute)
	again, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, *submitted.Score, *again.Score)
	assert.Equal(t, *submitted.SubmittedAt, *again.SubmittedAt)
	assert.Equal(t, submitted.Breakdown, again.Breakdown)

	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestSubmit_NeverShowsSolutions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	settings := defaultSettings()
	settings.ShowSolutions = models.ShowSolutionsNever
	f.seedExam(settings, models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	submitted, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)

	require.NotNil(t, submitted.Score)
	assert.Equal(t, 0.0, *submitted.Score)
	assert.Empty(t, submitted.Results)
	for _, q := range submitted.Questions {
		for _, opt := range q.Options {
			assert.False(t, opt.IsCorrect)
		}
	}
}

func TestSubmit_AfterWindowRevealsOnceWindowCloses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	settings := defaultSettings()
	settings.ShowSolutions = models.ShowSolutionsAfterWindow
	endWindow := f.clock.Now().Add(2 * time.Hour)
	settings.EndWindow = &endWindow
	f.seedExam(settings, models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	submitted, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)
	require.NotNil(t, submitted.Score)
	assert.Empty(t, submitted.Results)

	f.clock.Advance(time.Hour)
	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Empty(t, got.Results)

	f.clock.Advance(time.Hour)
	got, err = f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Len(t, got.Results, 3)
}

func TestStart_FreshShuffleSeedPerAttempt(t *testing.T) {
	ctx := context.Background()
	var next int64
	f := newFixture(t, WithSeedSource(func() int64 {
		next++
		return next
	}))

	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("s%02d", i)
		ids = append(ids, id)
		f.store.AddQuestions(models.Question{
			ID: id, Stem: "pick", Type: models.SingleCorrect, Difficulty: 3, IsActive: true,
			Options: []models.Option{{ID: "A", Text: "a", IsCorrect: true}, {ID: "B", Text: "b"}},
		})
	}
	settings := defaultSettings()
	settings.ShuffleQuestions = true
	f.store.AddExam(models.Exam{ID: "exam-s", QuestionIDs: ids, Settings: settings})

	order := func(resp *AttemptResponse) []string {
		out := make([]string, 0, len(resp.Questions))
		for _, q := range resp.Questions {
			out = append(out, q.ID)
		}
		return out
	}

	first, err := f.svc.Start(ctx, "exam-s", student)
	require.NoError(t, err)
	second, err := f.svc.Start(ctx, "exam-s", other)
	require.NoError(t, err)

	assert.ElementsMatch(t, ids, order(first))
	assert.ElementsMatch(t, ids, order(second))
	assert.NotEqual(t, order(first), order(second))

	resumed, err := f.svc.Start(ctx, "exam-s", student)
	require.NoError(t, err)
	assert.Equal(t, order(first), order(resumed))
}

func TestSaveAnswers_AfterSubmitIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"B"}},
	}}, student))
	submitted, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)

	err = f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"A"}},
		{QuestionID: "q2", SelectedOptions: []string{"A", "C"}},
	}}, student)
	require.NoError(t, err)

	after, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, after.Status)
	assert.Equal(t, *submitted.Score, *after.Score)
	require.Len(t, after.Answers, 1)
	assert.Equal(t, []string{"B"}, []string(after.Answers[0].SelectedOptions))
}

func TestSaveAnswers_MergesAndKeepsTimeMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"A"}, TimeSpent: 40},
		{QuestionID: "q2", SelectedOptions: []string{"A"}, TimeSpent: 10, MarkedForReview: true},
	}}, student))
	require.NoError(t, f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"B"}, TimeSpent: 25},
	}}, student))

	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	answers := make(map[string]models.AttemptAnswer)
	for _, a := range got.Answers {
		answers[a.QuestionID] = a
	}
	require.Len(t, answers, 2)
	assert.Equal(t, []string{"B"}, []string(answers["q1"].SelectedOptions))
	assert.Equal(t, 40, answers["q1"].TimeSpent)
	assert.True(t, answers["q2"].MarkedForReview)

	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptAnswersSaved), 2)
}

func TestSaveAnswers_RejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	tests := []struct {
		name   string
		answer AnswerInput
	}{
		{"two values for single correct", AnswerInput{QuestionID: "q1", SelectedOptions: []string{"A", "B"}}},
		{"unknown option", AnswerInput{QuestionID: "q2", SelectedOptions: []string{"Z"}}},
		{"duplicate option", AnswerInput{QuestionID: "q2", SelectedOptions: []string{"A", "A"}}},
		{"not a number", AnswerInput{QuestionID: "q3", SelectedOptions: []string{"forty-two"}}},
		{"question outside attempt", AnswerInput{QuestionID: "q9", SelectedOptions: []string{"A"}}},
		{"negative time", AnswerInput{QuestionID: "q1", SelectedOptions: []string{"A"}, TimeSpent: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{tt.answer}}, student)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}

	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Empty(t, got.Answers)
}

func TestSaveAnswers_OtherUserDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	err = f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"A"}},
	}}, other)
	assert.True(t, IsPermission(err))

	_, err = f.svc.Get(ctx, attempt.ID, other)
	assert.True(t, IsPermission(err))

	// Staff may read any attempt.
	_, err = f.svc.Get(ctx, attempt.ID, proctor)
	assert.NoError(t, err)
}

func TestRecordViolation_TabSwitchEscalatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: 3})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.svc.ReportViolation(ctx, attempt.ID, &RecordViolationRequest{
			Type: models.ViolationTabSwitch,
		}, student))
	}

	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	tabs, suspicious := 0, 0
	for _, v := range got.Violations {
		switch v.Type {
		case models.ViolationTabSwitch:
			tabs++
		case models.ViolationSuspiciousActivity:
			suspicious++
		}
	}
	assert.Equal(t, 4, tabs)
	assert.Equal(t, 1, suspicious)
	assert.Equal(t, models.AttemptInProgress, got.Status)

	// A fifth switch does not re-emit.
	require.NoError(t, f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: models.ViolationTabSwitch}))
	got, err = f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Len(t, got.Violations, 6)

	for i, v := range got.Violations {
		assert.Equal(t, i+1, v.Seq)
	}
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptViolationRecorded), 6)
}

func countByType(violations []models.AttemptViolation) map[models.ViolationType]int {
	counts := make(map[models.ViolationType]int)
	for _, v := range violations {
		counts[v.Type]++
	}
	return counts
}

func TestRecordViolation_EscalatesPastAnyLimit(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		switches int
	}{
		{"zero limit escalates on first switch", 0, 2},
		{"large limit still escalates", 999, 1001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: tt.max})

			attempt, err := f.svc.Start(ctx, "exam-1", student)
			require.NoError(t, err)

			for i := 0; i < tt.max; i++ {
				require.NoError(t, f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: models.ViolationTabSwitch}))
			}
			got, err := f.svc.Get(ctx, attempt.ID, student)
			require.NoError(t, err)
			assert.Zero(t, countByType(got.Violations)[models.ViolationSuspiciousActivity])

			for i := tt.max; i < tt.switches; i++ {
				require.NoError(t, f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: models.ViolationTabSwitch}))
			}
			got, err = f.svc.Get(ctx, attempt.ID, student)
			require.NoError(t, err)
			counts := countByType(got.Violations)
			assert.Equal(t, tt.switches, counts[models.ViolationTabSwitch])
			assert.Equal(t, 1, counts[models.ViolationSuspiciousActivity])
			assert.Equal(t, models.ViolationSuspiciousActivity, got.Violations[tt.max+1].Type)
		})
	}
}

func TestRecordViolation_IgnoredOnceTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: 3})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: models.ViolationCopyPaste}))
	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Empty(t, got.Violations)

	err = f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: "teleport"})
	assert.True(t, IsValidation(err))
}

func TestSignal_TranslatesThroughMonitor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{BlockCopyPaste: true, FullscreenRequired: true})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	outcome, err := f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: proctoring.SignalPaste}, student)
	require.NoError(t, err)
	assert.True(t, outcome.Recorded)
	assert.True(t, outcome.Directive.PreventDefault)

	outcome, err = f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: proctoring.SignalFullscreenExit}, student)
	require.NoError(t, err)
	assert.True(t, outcome.Directive.RequireFullscreen)

	outcome, err = f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: proctoring.SignalWebcamUnavailable}, student)
	require.NoError(t, err)
	assert.False(t, outcome.Recorded)

	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	require.Len(t, got.Violations, 2)
	assert.Equal(t, models.ViolationCopyPaste, got.Violations[0].Type)
	assert.Equal(t, models.ViolationFullscreenExit, got.Violations[1].Type)
	assert.Equal(t, f.clock.Now(), got.Violations[0].Timestamp)

	_, err = f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: "shake"}, student)
	assert.True(t, IsValidation(err))
}

func TestSignal_BlurAndHiddenCountOneSwitch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: 1})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	switchAway := func() {
		outcome, err := f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: proctoring.SignalWindowBlur}, student)
		require.NoError(t, err)
		assert.False(t, outcome.Recorded)

		outcome, err = f.svc.Signal(ctx, attempt.ID, proctoring.Signal{Type: proctoring.SignalVisibilityHidden}, student)
		require.NoError(t, err)
		assert.True(t, outcome.Recorded)
	}

	switchAway()
	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	counts := countByType(got.Violations)
	assert.Equal(t, 1, counts[models.ViolationTabSwitch])
	assert.Zero(t, counts[models.ViolationSuspiciousActivity])

	switchAway()
	got, err = f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	counts = countByType(got.Violations)
	assert.Equal(t, 2, counts[models.ViolationTabSwitch])
	assert.Equal(t, 1, counts[models.ViolationSuspiciousActivity])
}

func TestTimeRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	settings := defaultSettings()
	settings.Duration = 30
	f.seedExam(settings, models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	tests := []struct {
		name      string
		advance   time.Duration
		remaining time.Duration
		warning   TimeWarning
		expired   bool
	}{
		{"fresh", 0, 30 * time.Minute, TimeWarningNone, false},
		{"low", 16 * time.Minute, 14 * time.Minute, TimeWarningLow, false},
		{"critical", 10 * time.Minute, 4 * time.Minute, TimeWarningCritical, false},
		{"at deadline", 4 * time.Minute, 0, TimeWarningCritical, true},
		{"long after deadline", 3 * time.Hour, 0, TimeWarningCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Advance(tt.advance)
			resp, err := f.svc.TimeRemaining(ctx, attempt.ID, student)
			require.NoError(t, err)
			assert.Equal(t, tt.remaining.Milliseconds(), resp.RemainingMs)
			assert.Equal(t, tt.warning, resp.Warning)
			assert.Equal(t, tt.expired, resp.Expired)
		})
	}

	// Saves after the deadline are still accepted until submission.
	require.NoError(t, f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
		{QuestionID: "q1", SelectedOptions: []string{"B"}},
	}}, student))
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	_, err = f.svc.Invalidate(ctx, attempt.ID, &InvalidateRequest{Reason: "self-service"}, student)
	assert.True(t, IsPermission(err))

	_, err = f.svc.Invalidate(ctx, attempt.ID, &InvalidateRequest{Reason: ""}, proctor)
	assert.True(t, IsValidation(err))

	invalidated, err := f.svc.Invalidate(ctx, attempt.ID, &InvalidateRequest{Reason: "phone on desk"}, proctor)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInvalidated, invalidated.Status)
	assert.Equal(t, "phone on desk", invalidated.InvalidationReason)
	assert.Nil(t, invalidated.Score)

	// Submit returns the frozen attempt without scoring it.
	afterSubmit, err := f.svc.Submit(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInvalidated, afterSubmit.Status)
	assert.Nil(t, afterSubmit.Score)

	again, err := f.svc.Invalidate(ctx, attempt.ID, &InvalidateRequest{Reason: "second time"}, proctor)
	require.NoError(t, err)
	assert.Equal(t, "phone on desk", again.InvalidationReason)
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptInvalidated), 1)

	// The active slot is free again.
	next, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	assert.NotEqual(t, attempt.ID, next.ID)
}

func TestSubmitExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	settings := defaultSettings()
	settings.Duration = 10
	f.seedExam(settings, models.ProctoringSettings{})

	expiring, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	fresh, err := f.svc.Start(ctx, "exam-1", other)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.SubmitExpired(ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, expiring.ID, student)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, got.Status)

	got, err = f.svc.Get(ctx, fresh.ID, other)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, got.Status)

	submitted := f.publisher.EventsOfType(events.EventAttemptSubmitted)
	require.Len(t, submitted, 1)
	data, ok := submitted[0].Data.(events.AttemptSubmittedData)
	require.True(t, ok)
	assert.True(t, data.Automatic)
}

func TestConcurrentSavesAndSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{MaxTabSwitches: 3})

	attempt, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.SaveAnswers(ctx, attempt.ID, &SaveAnswersRequest{Answers: []AnswerInput{
				{QuestionID: "q1", SelectedOptions: []string{"B"}},
			}}, student))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.RecordViolation(ctx, attempt.ID, models.AttemptViolation{Type: models.ViolationTabSwitch}))
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, attempt.ID, student)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, got.Status)
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptSubmitted), 1)

	suspicious := 0
	for _, v := range got.Violations {
		if v.Type == models.ViolationSuspiciousActivity {
			suspicious++
		}
	}
	assert.LessOrEqual(t, suspicious, 1)
}

func TestList_ScopesStudentsToOwnAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExam(defaultSettings(), models.ProctoringSettings{})

	_, err := f.svc.Start(ctx, "exam-1", student)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "exam-1", other)
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, repositories.AttemptFilters{UserID: other.UserID}, student)
	require.NoError(t, err)
	require.Len(t, mine.Attempts, 1)
	assert.Equal(t, student.UserID, mine.Attempts[0].UserID)

	theirs, err := f.svc.List(ctx, repositories.AttemptFilters{UserID: other.UserID}, proctor)
	require.NoError(t, err)
	require.Len(t, theirs.Attempts, 1)
	assert.Equal(t, other.UserID, theirs.Attempts[0].UserID)
}

func TestSelectRandomQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var pool []models.Question
	for i := 0; i < 20; i++ {
		q := models.Question{ID: fmt.Sprintf("p%02d", i), Type: models.SingleCorrect, Difficulty: i%5 + 1, IsActive: true}
		if i%4 == 0 {
			q.Tags = []string{"legacy"}
		}
		pool = append(pool, q)
	}
	f.store.AddQuestions(pool...)

	rule := models.DefaultRandomizationRule(10)
	rule.ExcludeTags = []string{"legacy"}
	seed := uint64(99)

	ids, err := f.svc.SelectRandomQuestions(ctx, &SelectQuestionsRequest{Rule: rule, Seed: &seed}, proctor)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	unique := make(map[string]bool)
	for _, id := range ids {
		unique[id] = true
		var n int
		_, err := fmt.Sscanf(id, "p%02d", &n)
		require.NoError(t, err)
		assert.NotZero(t, n%4, "excluded question %s selected", id)
	}
	assert.Len(t, unique, 10)

	again, err := f.svc.SelectRandomQuestions(ctx, &SelectQuestionsRequest{Rule: rule, Seed: &seed}, proctor)
	require.NoError(t, err)
	assert.Equal(t, ids, again)

	_, err = f.svc.SelectRandomQuestions(ctx, &SelectQuestionsRequest{Rule: rule}, student)
	assert.True(t, IsPermission(err))

	rule.TotalQuestions = 40
	_, err = f.svc.SelectRandomQuestions(ctx, &SelectQuestionsRequest{Rule: rule}, proctor)
	assert.ErrorIs(t, err, ErrInsufficientPool)

	bad := models.RandomizationRule{TotalQuestions: 5, DifficultyDistribution: models.DifficultyDistribution{Easy: 50}}
	_, err = f.svc.SelectRandomQuestions(ctx, &SelectQuestionsRequest{Rule: bad}, proctor)
	assert.True(t, IsValidation(err))
}
