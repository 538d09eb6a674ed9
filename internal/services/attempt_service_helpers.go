package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/scoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/selection"
)

// ===== START HELPERS =====

func (s *attemptService) checkStartPreconditions(ctx context.Context, exam *models.Exam, userID string, now time.Time) error {
	if exam.Settings.StartWindow != nil && now.Before(*exam.Settings.StartWindow) {
		return ErrExamNotOpen
	}
	if exam.Settings.EndWindow != nil && !now.Before(*exam.Settings.EndWindow) {
		return ErrExamClosed
	}

	if exam.Settings.AttemptsAllowed > 0 {
		finished, err := s.repo.Attempt().CountFinished(ctx, exam.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if finished >= exam.Settings.AttemptsAllowed {
			return ErrAttemptLimitReached
		}
	}
	return nil
}

// snapshotQuestions resolves the exam's questions, draws the randomized
// subset when the exam has a rule, and applies the per-attempt shuffle.
func (s *attemptService) snapshotQuestions(ctx context.Context, exam *models.Exam, seed int64) ([]models.Question, error) {
	var questions []models.Question

	if exam.RandomizationRule != nil {
		pool, err := s.questionPool(ctx, exam)
		if err != nil {
			return nil, err
		}
		ids, err := selection.NewSeededSelector(uint64(seed)).Select(*exam.RandomizationRule, pool)
		if err != nil {
			return nil, selectionError(err)
		}
		byID := make(map[string]models.Question, len(pool))
		for _, q := range pool {
			byID[q.ID] = q
		}
		questions = make([]models.Question, len(ids))
		for i, id := range ids {
			questions[i] = byID[id]
		}
	} else {
		var err error
		questions, err = s.repo.Question().GetByIDs(ctx, exam.QuestionIDs)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: %v", ErrQuestionNotFound, err)
			}
			return nil, fmt.Errorf("failed to get exam questions: %w", err)
		}
	}

	if len(questions) == 0 {
		return nil, NewBusinessRuleError("exam_has_questions", "exam has no questions to attempt",
			map[string]interface{}{"exam_id": exam.ID})
	}
	if err := s.validator.Question().ValidateBatch(questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuestion, err)
	}

	return selection.Present(questions, exam.Settings, seed), nil
}

// questionPool is the exam's own question list when it has one, otherwise
// the active bank narrowed by the rule's tags.
func (s *attemptService) questionPool(ctx context.Context, exam *models.Exam) ([]models.Question, error) {
	if len(exam.QuestionIDs) == 0 {
		pool, err := s.repo.Question().ListPool(ctx, repositories.QuestionFilters{
			IncludeTags: exam.RandomizationRule.IncludeTags,
			ExcludeTags: exam.RandomizationRule.ExcludeTags,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load question pool: %w", err)
		}
		return pool, nil
	}

	questions, err := s.repo.Question().GetByIDs(ctx, exam.QuestionIDs)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %v", ErrQuestionNotFound, err)
		}
		return nil, fmt.Errorf("failed to get exam questions: %w", err)
	}
	pool := questions[:0]
	for _, q := range questions {
		if q.IsActive {
			pool = append(pool, q)
		}
	}
	return pool, nil
}

func selectionError(err error) error {
	if errors.Is(err, selection.ErrInvalidRule) {
		return NewValidationError("rule", err.Error(), nil)
	}
	return err
}

// ===== ANSWER HELPERS =====

// mergeAnswers validates the payload against the snapshot and returns the
// rows to upsert. Time spent per question never decreases.
func (s *attemptService) mergeAnswers(attempt *models.Attempt, inputs []AnswerInput) ([]models.AttemptAnswer, error) {
	existing := attempt.AnswerMap()
	now := s.now()

	var verrs ValidationErrors
	seen := make(map[string]bool, len(inputs))
	out := make([]models.AttemptAnswer, 0, len(inputs))

	for i, in := range inputs {
		field := fmt.Sprintf("answers[%d]", i)

		q, ok := attempt.Question(in.QuestionID)
		if !ok {
			verrs = verrs.Add(field+".question_id", "question is not part of this attempt", in.QuestionID)
			continue
		}
		if seen[in.QuestionID] {
			verrs = verrs.Add(field+".question_id", "question answered more than once in one save", in.QuestionID)
			continue
		}
		seen[in.QuestionID] = true

		selected := normalizeSelection(q, in.SelectedOptions)
		if problem := s.validator.Question().ValidateAnswer(q, selected); problem != "" {
			verrs = verrs.Add(field+".selected_options", problem, in.SelectedOptions)
			continue
		}

		timeSpent := in.TimeSpent
		if prev, ok := existing[in.QuestionID]; ok && prev.TimeSpent > timeSpent {
			timeSpent = prev.TimeSpent
		}

		out = append(out, models.AttemptAnswer{
			AttemptID:       attempt.ID,
			QuestionID:      in.QuestionID,
			SelectedOptions: selected,
			TimeSpent:       timeSpent,
			MarkedForReview: in.MarkedForReview,
			UpdatedAt:       now,
		})
	}

	if err := verrs.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeSelection trims numerical input; option ids are kept verbatim.
func normalizeSelection(q *models.Question, selected []string) []string {
	out := make([]string, len(selected))
	for i, v := range selected {
		if q.Type == models.Numerical {
			v = strings.TrimSpace(v)
		}
		out[i] = v
	}
	return out
}

// countAnswered reports the answered questions after applying the saved rows.
func countAnswered(attempt *models.Attempt, saved []models.AttemptAnswer) int {
	merged := attempt.AnswerMap()
	for _, a := range saved {
		merged[a.QuestionID] = a
	}
	n := 0
	for _, a := range merged {
		if !a.IsEmpty() {
			n++
		}
	}
	return n
}

// ===== ACCESS HELPERS =====

func authorizeOwner(attempt *models.Attempt, caller models.Identity, action string) error {
	if attempt.UserID != caller.UserID {
		return NewPermissionError(caller.UserID, attempt.ID, "attempt", action, "attempt belongs to another user")
	}
	return nil
}

func authorizeRead(attempt *models.Attempt, caller models.Identity, action string) error {
	if caller.Role.IsStaff() {
		return nil
	}
	return authorizeOwner(attempt, caller, action)
}

// ===== RESPONSE HELPERS =====

// toResponse builds the caller view. Correctness flags leave the service only
// when the exam's solution policy allows it for this attempt.
func (s *attemptService) toResponse(attempt *models.Attempt) *AttemptResponse {
	now := s.now()
	resp := &AttemptResponse{
		ID:                 attempt.ID,
		ExamID:             attempt.ExamID,
		UserID:             attempt.UserID,
		Status:             attempt.Status,
		Answers:            attempt.Answers,
		Violations:         attempt.Violations,
		Settings:           attempt.Settings,
		Proctoring:         attempt.Proctoring,
		StartedAt:          attempt.StartedAt,
		Deadline:           attempt.Deadline(),
		AutosaveIntervalMs: s.autosaveInterval.Milliseconds(),
		SubmittedAt:        attempt.SubmittedAt,
		Score:              attempt.Score,
		MaxScore:           attempt.MaxScore,
		Breakdown:          attempt.Breakdown,
		InvalidatedAt:      attempt.InvalidatedAt,
		InvalidationReason: attempt.InvalidationReason,
	}
	if resp.Answers == nil {
		resp.Answers = []models.AttemptAnswer{}
	}
	if resp.Violations == nil {
		resp.Violations = []models.AttemptViolation{}
	}
	if attempt.Status == models.AttemptInProgress {
		resp.RemainingMs = attempt.RemainingTime(now).Milliseconds()
	}

	if attempt.Settings.SolutionsVisible(attempt.Status, now) {
		resp.Questions = attempt.Questions
		resp.Results = scoring.Aggregate(attempt.Questions, attempt.AnswerMap(), attempt.Settings).Questions
		return resp
	}

	resp.Questions = make([]models.Question, len(attempt.Questions))
	for i, q := range attempt.Questions {
		resp.Questions[i] = q.Redacted()
	}
	return resp
}
