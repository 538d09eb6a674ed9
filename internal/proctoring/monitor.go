package proctoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Recorder is the violation-append path of the attempt state machine.
type Recorder interface {
	RecordViolation(ctx context.Context, attemptID string, violation models.AttemptViolation) error
}

// Outcome is what the client receives back for one signal.
type Outcome struct {
	Signal    SignalType `json:"signal"`
	Recorded  bool       `json:"recorded"`
	Directive Directive  `json:"directive"`
	Err       error      `json:"-"`
}

type Monitor struct {
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewMonitor(recorder Recorder, logger *slog.Logger) *Monitor {
	return &Monitor{
		recorder: recorder,
		logger:   logger.With("component", "proctoring_monitor"),
		now:      time.Now,
	}
}

// WithClock overrides the clock used to stamp signals without a timestamp.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Observe translates one signal and forwards the resulting violation.
func (m *Monitor) Observe(ctx context.Context, attemptID string, settings models.ProctoringSettings, sig Signal) Outcome {
	if sig.At.IsZero() {
		sig.At = m.now()
	}
	violation, directive := Translate(sig, settings)
	out := Outcome{Signal: sig.Type, Directive: directive}
	if violation == nil {
		return out
	}

	if err := m.recorder.RecordViolation(ctx, attemptID, *violation); err != nil {
		out.Err = fmt.Errorf("failed to record %s violation: %w", violation.Type, err)
		return out
	}
	out.Recorded = true
	return out
}

// Run drains signals for one attempt in arrival order until the channel is
// closed or ctx is done. A failed append is logged and the loop keeps going.
// Outcomes are delivered on out when it is non-nil.
func (m *Monitor) Run(ctx context.Context, attemptID string, settings models.ProctoringSettings, signals <-chan Signal, out chan<- Outcome) {
	logger := m.logger.With("attempt_id", attemptID)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			res := m.Observe(ctx, attemptID, settings, sig)
			if res.Err != nil {
				logger.Warn("Dropped proctoring signal", "signal", sig.Type, "error", res.Err)
			} else if res.Recorded {
				logger.Debug("Recorded proctoring signal", "signal", sig.Type)
			}
			if out != nil {
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
