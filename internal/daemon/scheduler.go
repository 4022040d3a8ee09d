package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AlanyTan/sweteam/internal/orchestrator"
)

// runScheduler repeatedly gives every open issue one agent turn. It sleeps
// the configured interval between passes so a board with no progress does not
// spin.
func runScheduler(ctx context.Context, opts StartOptions, orch *orchestrator.Orchestrator) {
	interval := time.Duration(opts.IntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = 5 * time.Second
	}
	slog.Info("scheduler started", "interval", interval, "once", opts.Once)

	for {
		worked, err := orch.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Error("scheduler pass failed", "err", err)
		} else if worked > 0 {
			slog.Info("scheduler pass complete", "issues_worked", worked)
		}
		if opts.Once {
			slog.Info("scheduler stopping after single pass")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
