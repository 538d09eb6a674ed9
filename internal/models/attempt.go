package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress  AttemptStatus = "in_progress"
	AttemptSubmitted   AttemptStatus = "submitted"
	AttemptInvalidated AttemptStatus = "invalidated"
)

// IsTerminal reports whether no further mutation is allowed.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSubmitted || s == AttemptInvalidated
}

type AttemptAnswer struct {
	ID              uint                        `json:"-" gorm:"primaryKey"`
	AttemptID       string                      `json:"-" gorm:"size:64;not null;uniqueIndex:idx_attempt_answers_question"`
	QuestionID      string                      `json:"question_id" gorm:"size:64;not null;uniqueIndex:idx_attempt_answers_question"`
	SelectedOptions datatypes.JSONSlice[string] `json:"selected_options" gorm:"type:jsonb"`
	TimeSpent       int                         `json:"time_spent"` // Seconds
	MarkedForReview bool                        `json:"marked_for_review"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

func (a AttemptAnswer) IsEmpty() bool {
	return len(a.SelectedOptions) == 0
}

type Tally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

type Breakdown struct {
	ByTopic      map[string]Tally `json:"by_topic"`
	ByDifficulty map[string]Tally `json:"by_difficulty"`
}

type Attempt struct {
	ID     string        `json:"id" gorm:"primaryKey;size:64"`
	ExamID string        `json:"exam_id" gorm:"size:64;not null;index;uniqueIndex:idx_attempts_active,where:status = 'in_progress'"`
	UserID string        `json:"user_id" gorm:"size:255;not null;index;uniqueIndex:idx_attempts_active,where:status = 'in_progress'"`
	Status AttemptStatus `json:"status" gorm:"size:20;not null;index;default:in_progress"`

	// Snapshot taken at start, in presentation order.
	Questions   []Question         `json:"questions" gorm:"serializer:json;type:jsonb"`
	ShuffleSeed int64              `json:"-"`
	Settings    ExamSettings       `json:"settings" gorm:"serializer:json;type:jsonb"`
	Proctoring  ProctoringSettings `json:"proctoring" gorm:"serializer:json;type:jsonb"`

	Answers    []AttemptAnswer    `json:"answers" gorm:"foreignKey:AttemptID;references:ID"`
	Violations []AttemptViolation `json:"violations" gorm:"foreignKey:AttemptID;references:ID"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	Score       *float64   `json:"score"`
	MaxScore    float64    `json:"max_score"`
	Breakdown   *Breakdown `json:"breakdown,omitempty" gorm:"serializer:json;type:jsonb"`

	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
	InvalidationReason string     `json:"invalidation_reason,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (a *Attempt) QuestionIDs() []string {
	ids := make([]string, len(a.Questions))
	for i, q := range a.Questions {
		ids[i] = q.ID
	}
	return ids
}

func (a *Attempt) Question(id string) (*Question, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], true
		}
	}
	return nil, false
}

// AnswerMap indexes answers by question id.
func (a *Attempt) AnswerMap() map[string]AttemptAnswer {
	out := make(map[string]AttemptAnswer, len(a.Answers))
	for _, ans := range a.Answers {
		out[ans.QuestionID] = ans
	}
	return out
}

func (a *Attempt) CountViolations(t ViolationType) int {
	n := 0
	for _, v := range a.Violations {
		if v.Type == t {
			n++
		}
	}
	return n
}

func (a *Attempt) Deadline() time.Time {
	return a.StartedAt.Add(time.Duration(a.Settings.Duration) * time.Minute)
}

// RemainingTime is derived from StartedAt on every call and never goes below zero.
func (a *Attempt) RemainingTime(now time.Time) time.Duration {
	remaining := time.Duration(a.Settings.Duration)*time.Minute - now.Sub(a.StartedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	out := *a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.Options = append([]Option(nil), q.Options...)
		q.Tags = append(datatypes.JSONSlice[string](nil), q.Tags...)
		out.Questions[i] = q
	}
	out.Answers = make([]AttemptAnswer, len(a.Answers))
	for i, ans := range a.Answers {
		ans.SelectedOptions = append(datatypes.JSONSlice[string](nil), ans.SelectedOptions...)
		out.Answers[i] = ans
	}
	out.Violations = append([]AttemptViolation(nil), a.Violations...)
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.InvalidatedAt != nil {
		t := *a.InvalidatedAt
		out.InvalidatedAt = &t
	}
	if a.Score != nil {
		s := *a.Score
		out.Score = &s
	}
	if a.Breakdown != nil {
		b := Breakdown{
			ByTopic:      make(map[string]Tally, len(a.Breakdown.ByTopic)),
			ByDifficulty: make(map[string]Tally, len(a.Breakdown.ByDifficulty)),
		}
		for k, v := range a.Breakdown.ByTopic {
			b.ByTopic[k] = v
		}
		for k, v := range a.Breakdown.ByDifficulty {
			b.ByDifficulty[k] = v
		}
		out.Breakdown = &b
	}
	return &out
}
