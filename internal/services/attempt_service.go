package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/lock"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/proctoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/scoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/selection"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	locker    lock.Locker
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *slog.Logger
	ops       *ServiceLogger
	monitor   *proctoring.Monitor

	now              func() time.Time
	newSeed          func() int64
	autosaveInterval time.Duration
}

type Option func(*attemptService)

// WithClock replaces time.Now for every timestamp the service takes.
func WithClock(now func() time.Time) Option {
	return func(s *attemptService) { s.now = now }
}

// WithSeedSource replaces the per-attempt shuffle seed generator.
func WithSeedSource(newSeed func() int64) Option {
	return func(s *attemptService) { s.newSeed = newSeed }
}

// WithAutosaveInterval sets the cadence advertised to exam clients.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *attemptService) { s.autosaveInterval = d }
}

const defaultAutosaveInterval = 10 * time.Second

func NewAttemptService(
	repo repositories.Repository,
	locker lock.Locker,
	publisher events.EventPublisher,
	validator *validator.Validator,
	logger *slog.Logger,
	opts ...Option,
) AttemptService {
	s := &attemptService{
		repo:             repo,
		locker:           locker,
		publisher:        publisher,
		validator:        validator,
		logger:           logger.With("component", "attempt_service"),
		ops:              NewServiceLogger(logger, "attempt"),
		now:              time.Now,
		newSeed:          rand.Int64,
		autosaveInterval: defaultAutosaveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ops.now = s.now
	s.monitor = proctoring.NewMonitor(s, logger).WithClock(s.now)
	return s
}

func (s *attemptService) Monitor() *proctoring.Monitor {
	return s.monitor
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, examID string, caller models.Identity) (resp *AttemptResponse, err error) {
	op := s.ops.WithOperation(ctx, "start_attempt", caller.UserID)
	defer func() { op.LogResult(attemptIDOf(resp), err) }()

	unlock, err := s.locker.Lock(ctx, lock.StartKey(examID, caller.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock attempt start: %w", err)
	}
	defer unlock()

	// Resuming always wins over start preconditions.
	active, err := s.repo.Attempt().GetActiveAttempt(ctx, examID, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	if active != nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", active.ID, "exam_id", examID, "user_id", caller.UserID)
		return s.toResponse(active), nil
	}

	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	now := s.now()
	if err := s.checkStartPreconditions(ctx, exam, caller.UserID, now); err != nil {
		return nil, err
	}

	seed := s.newSeed()
	questions, err := s.snapshotQuestions(ctx, exam, seed)
	if err != nil {
		return nil, err
	}

	attempt := &models.Attempt{
		ID:          uuid.NewString(),
		ExamID:      exam.ID,
		UserID:      caller.UserID,
		Status:      models.AttemptInProgress,
		Questions:   questions,
		ShuffleSeed: seed,
		Settings:    exam.Settings,
		Proctoring:  exam.Proctoring,
		Answers:     []models.AttemptAnswer{},
		Violations:  []models.AttemptViolation{},
		StartedAt:   now,
		MaxScore:    float64(len(questions)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Attempt().Create(ctx, attempt); err != nil {
		if errors.Is(err, repositories.ErrDuplicateActive) {
			// Another replica started it first; resume that one.
			existing, getErr := s.repo.Attempt().GetActiveAttempt(ctx, examID, caller.UserID)
			if getErr == nil && existing != nil {
				return s.toResponse(existing), nil
			}
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"exam_id", exam.ID,
		"user_id", caller.UserID,
		"questions", len(questions))
	s.publish(ctx, events.NewAttemptStartedEvent(attempt))

	return s.toResponse(attempt), nil
}

func (s *attemptService) Get(ctx context.Context, attemptID string, caller models.Identity) (*AttemptResponse, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(attempt, caller, "view"); err != nil {
		return nil, err
	}
	return s.toResponse(attempt), nil
}

func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, caller models.Identity) (*AttemptListResponse, error) {
	if !caller.Role.IsStaff() || filters.UserID == "" {
		filters.UserID = caller.UserID
	}
	filters = filters.Normalize()

	attempts, total, err := s.repo.Attempt().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	out := &AttemptListResponse{
		Attempts: make([]AttemptSummary, 0, len(attempts)),
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}
	for _, a := range attempts {
		out.Attempts = append(out.Attempts, AttemptSummary{
			ID:          a.ID,
			ExamID:      a.ExamID,
			UserID:      a.UserID,
			Status:      a.Status,
			StartedAt:   a.StartedAt,
			SubmittedAt: a.SubmittedAt,
			Score:       a.Score,
			MaxScore:    a.MaxScore,
		})
	}
	return out, nil
}

// SaveAnswers merges the payload by question id. Questions absent from the
// payload keep their stored answer. A save against a terminal attempt is
// dropped without error.
func (s *attemptService) SaveAnswers(ctx context.Context, attemptID string, req *SaveAnswersRequest, caller models.Identity) (err error) {
	op := s.ops.WithOperation(ctx, "save_answers", caller.UserID)
	defer func() { op.LogResult(attemptID, err) }()

	if err := s.validator.Validate(req); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, lock.AttemptKey(attemptID))
	if err != nil {
		return fmt.Errorf("failed to lock attempt: %w", err)
	}
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := authorizeOwner(attempt, caller, "answer"); err != nil {
		return err
	}
	if attempt.Status.IsTerminal() {
		s.logger.Debug("Dropping late save", "attempt_id", attemptID, "status", attempt.Status)
		return nil
	}

	answers, err := s.mergeAnswers(attempt, req.Answers)
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}

	if err := s.repo.Attempt().UpsertAnswers(ctx, attemptID, answers); err != nil {
		if errors.Is(err, repositories.ErrAttemptClosed) {
			return nil
		}
		return fmt.Errorf("failed to save answers: %w", err)
	}

	questionIDs := make([]string, len(answers))
	for i, a := range answers {
		questionIDs[i] = a.QuestionID
	}
	s.publish(ctx, events.NewAnswersSavedEvent(attemptID, questionIDs, countAnswered(attempt, answers), s.now()))
	return nil
}

func (s *attemptService) ReportViolation(ctx context.Context, attemptID string, req *RecordViolationRequest, caller models.Identity) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := authorizeOwner(attempt, caller, "report violation on"); err != nil {
		return err
	}

	violation := models.AttemptViolation{Type: req.Type, Details: req.Details}
	if req.Timestamp != nil {
		violation.Timestamp = *req.Timestamp
	}
	return s.RecordViolation(ctx, attemptID, violation)
}

// RecordViolation appends to the violation log under the attempt lock and
// applies the tab switch escalation, so the crossing entry is emitted once
// whichever path the violation arrives by. Terminal attempts ignore it.
func (s *attemptService) RecordViolation(ctx context.Context, attemptID string, violation models.AttemptViolation) error {
	if !violation.Type.IsValid() {
		return NewValidationError("type", "unknown violation type", violation.Type)
	}

	unlock, err := s.locker.Lock(ctx, lock.AttemptKey(attemptID))
	if err != nil {
		return fmt.Errorf("failed to lock attempt: %w", err)
	}
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status.IsTerminal() {
		s.logger.Debug("Ignoring violation on terminal attempt", "attempt_id", attemptID, "type", violation.Type)
		return nil
	}

	if violation.Timestamp.IsZero() {
		violation.Timestamp = s.now()
	}
	violation.ID = uuid.NewString()
	batch := []models.AttemptViolation{violation}

	if violation.Type == models.ViolationTabSwitch {
		count := attempt.CountViolations(models.ViolationTabSwitch) + 1
		if extra := proctoring.Escalate(violation, count, attempt.Proctoring); extra != nil {
			extra.ID = uuid.NewString()
			batch = append(batch, *extra)
			s.logger.Warn("Tab switch limit exceeded",
				"attempt_id", attemptID,
				"user_id", attempt.UserID,
				"tab_switches", count,
				"max_tab_switches", attempt.Proctoring.MaxTabSwitches)
		}
	}

	if err := s.repo.Attempt().AppendViolations(ctx, attemptID, batch); err != nil {
		if errors.Is(err, repositories.ErrAttemptClosed) {
			return nil
		}
		return fmt.Errorf("failed to record violation: %w", err)
	}

	for _, v := range batch {
		s.publish(ctx, events.NewViolationRecordedEvent(attemptID, v))
	}
	return nil
}

// Signal translates a raw client signal through the proctoring monitor.
func (s *attemptService) Signal(ctx context.Context, attemptID string, sig proctoring.Signal, caller models.Identity) (*proctoring.Outcome, error) {
	if err := s.validator.Validate(&sig); err != nil {
		return nil, err
	}

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(attempt, caller, "signal"); err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return &proctoring.Outcome{Signal: sig.Type}, nil
	}

	outcome := s.monitor.Observe(ctx, attemptID, attempt.Proctoring, sig)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return &outcome, nil
}

// Submit scores the snapshot exactly once. Repeated calls, including on an
// invalidated attempt, return the stored attempt unchanged.
func (s *attemptService) Submit(ctx context.Context, attemptID string, caller models.Identity) (resp *AttemptResponse, err error) {
	op := s.ops.WithOperation(ctx, "submit_attempt", caller.UserID)
	defer func() { op.LogResult(attemptID, err) }()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(attempt, caller, "submit"); err != nil {
		return nil, err
	}

	submitted, err := s.submit(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	return s.toResponse(submitted), nil
}

func (s *attemptService) submit(ctx context.Context, attemptID string, automatic bool) (*models.Attempt, error) {
	unlock, err := s.locker.Lock(ctx, lock.AttemptKey(attemptID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return attempt, nil
	}

	result := scoring.Aggregate(attempt.Questions, attempt.AnswerMap(), attempt.Settings)
	submittedAt := s.now()
	attempt.Status = models.AttemptSubmitted
	attempt.SubmittedAt = &submittedAt
	attempt.Score = &result.Score
	attempt.MaxScore = result.MaxScore
	attempt.Breakdown = &result.Breakdown
	attempt.UpdatedAt = submittedAt

	if err := s.repo.Attempt().Complete(ctx, attempt); err != nil {
		if errors.Is(err, repositories.ErrAttemptClosed) {
			return s.getAttempt(ctx, attemptID)
		}
		return nil, fmt.Errorf("failed to complete attempt: %w", err)
	}

	s.logger.Info("Attempt submitted",
		"attempt_id", attempt.ID,
		"exam_id", attempt.ExamID,
		"user_id", attempt.UserID,
		"score", result.Score,
		"raw_points", result.RawPoints,
		"automatic", automatic)
	s.publish(ctx, events.NewAttemptSubmittedEvent(attempt, result.RawPoints, automatic))

	return attempt, nil
}

// Invalidate is an explicit staff decision; violations never trigger it.
func (s *attemptService) Invalidate(ctx context.Context, attemptID string, req *InvalidateRequest, caller models.Identity) (resp *AttemptResponse, err error) {
	op := s.ops.WithOperation(ctx, "invalidate_attempt", caller.UserID)
	defer func() { op.LogResult(attemptID, err) }()

	if !caller.Role.IsStaff() {
		return nil, NewPermissionError(caller.UserID, attemptID, "attempt", "invalidate", "requires proctor, teacher or admin role")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.AttemptKey(attemptID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	defer unlock()

	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return s.toResponse(attempt), nil
	}

	at := s.now()
	if err := s.repo.Attempt().Invalidate(ctx, attemptID, req.Reason, at); err != nil {
		if !errors.Is(err, repositories.ErrAttemptClosed) {
			return nil, fmt.Errorf("failed to invalidate attempt: %w", err)
		}
	} else {
		s.logger.Warn("Attempt invalidated",
			"attempt_id", attemptID,
			"user_id", attempt.UserID,
			"by", caller.UserID,
			"reason", req.Reason)
		s.publish(ctx, events.NewAttemptInvalidatedEvent(attempt, req.Reason, at))
	}

	updated, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(updated), nil
}

func (s *attemptService) TimeRemaining(ctx context.Context, attemptID string, caller models.Identity) (*TimeRemainingResponse, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(attempt, caller, "view"); err != nil {
		return nil, err
	}

	now := s.now()
	resp := &TimeRemainingResponse{
		AttemptID:  attempt.ID,
		Status:     attempt.Status,
		Deadline:   attempt.Deadline(),
		ServerTime: now,
	}
	if attempt.Status != models.AttemptInProgress {
		return resp, nil
	}

	remaining := attempt.RemainingTime(now)
	resp.RemainingMs = remaining.Milliseconds()
	resp.Expired = remaining == 0
	resp.Warning = warningFor(remaining)
	return resp, nil
}

func (s *attemptService) SelectRandomQuestions(ctx context.Context, req *SelectQuestionsRequest, caller models.Identity) ([]string, error) {
	if !caller.Role.IsStaff() {
		return nil, NewPermissionError(caller.UserID, "", "question_pool", "select", "requires proctor, teacher or admin role")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	pool, err := s.repo.Question().ListPool(ctx, repositories.QuestionFilters{
		Types:       req.Types,
		Topics:      req.Topics,
		IncludeTags: req.Rule.IncludeTags,
		ExcludeTags: req.Rule.ExcludeTags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load question pool: %w", err)
	}

	seed := uint64(s.newSeed())
	if req.Seed != nil {
		seed = *req.Seed
	}
	ids, err := selection.NewSeededSelector(seed).Select(req.Rule, pool)
	if err != nil {
		return nil, selectionError(err)
	}
	return ids, nil
}

// SubmitExpired is the server-side safety net behind the client timeout.
// Each attempt goes through the idempotent submit path.
func (s *attemptService) SubmitExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	expired, err := s.repo.Attempt().GetExpiredAttempts(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get expired attempts: %w", err)
	}

	submitted := 0
	for _, a := range expired {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}
		if _, err := s.submit(ctx, a.ID, true); err != nil {
			s.logger.Error("Failed to auto-submit expired attempt", "attempt_id", a.ID, "error", err)
			continue
		}
		submitted++
	}
	return submitted, nil
}

// ===== HELPERS =====

func (s *attemptService) getAttempt(ctx context.Context, attemptID string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) publish(ctx context.Context, event *events.AttemptEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish attempt event",
			"event_type", event.Type,
			"attempt_id", event.AttemptID,
			"error", err)
	}
}

func attemptIDOf(resp *AttemptResponse) string {
	if resp == nil {
		return ""
	}
	return resp.ID
}
