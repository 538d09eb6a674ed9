package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSubmitter is the slice of the attempt service the sweeper drives.
type ExpiredSubmitter interface {
	SubmitExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TimeoutSweeper submits in-progress attempts whose time ran out more than
// grace ago. It only ever calls the idempotent submit path, so it is safe to
// run on every replica.
type TimeoutSweeper struct {
	submitter ExpiredSubmitter
	interval  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time
	log       *slog.Logger
}

func NewTimeoutSweeper(submitter ExpiredSubmitter, interval, grace time.Duration, batchSize int, log *slog.Logger) *TimeoutSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &TimeoutSweeper{
		submitter: submitter,
		interval:  interval,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
		log:       log.With("component", "timeout_sweeper"),
	}
}

// Start runs until ctx is cancelled. It always returns nil so it can sit in
// an errgroup next to the HTTP server without tearing it down.
func (w *TimeoutSweeper) Start(ctx context.Context) error {
	w.log.Info("Worker started", "interval", w.interval, "grace", w.grace)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker stopped")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep drains expired attempts in batches and returns how many were submitted.
func (w *TimeoutSweeper) Sweep(ctx context.Context) int {
	cutoff := w.now().Add(-w.grace)
	total := 0
	for ctx.Err() == nil {
		n, err := w.submitter.SubmitExpired(ctx, cutoff, w.batchSize)
		total += n
		if err != nil {
			w.log.Error("Sweep failed", "error", err, "submitted", total)
			break
		}
		// A short batch means the backlog is drained or some rows failed;
		// either way the next tick picks up what is left.
		if n < w.batchSize {
			break
		}
	}
	if total > 0 {
		w.log.Info("Auto-submitted expired attempts", "count", total, "cutoff", cutoff)
	}
	return total
}
