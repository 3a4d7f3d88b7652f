package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TimeoutMonitor runs export batches under a deadline and logs the ones
// that fail or come close to it.
type TimeoutMonitor struct {
	logger       *slog.Logger
	warningRatio float64
}

// NewTimeoutMonitor warns at 80% of the timeout.
func NewTimeoutMonitor(logger *slog.Logger) *TimeoutMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutMonitor{logger: logger, warningRatio: 0.8}
}

// Run calls fn with a context limited to timeout (no limit when timeout is
// zero) and returns how long it took.
func (tm *TimeoutMonitor) Run(ctx context.Context, operation string, timeout time.Duration, fn func(context.Context) error) (time.Duration, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(runCtx)
	duration := time.Since(start)

	switch {
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		tm.logger.Error("operation timed out",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds())
	case err != nil:
		tm.logger.Warn("operation failed",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"error", err)
	case timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio):
		tm.logger.Warn("operation approaching timeout",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"percent_used", duration.Seconds()/timeout.Seconds()*100)
	default:
		tm.logger.Debug("operation completed",
			"operation", operation,
			"duration_seconds", duration.Seconds())
	}
	return duration, err
}
