package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// SetupLifecycle layers a wall-clock timeout and SIGINT/SIGTERM handling on
// the parent context. The run stops at whichever fires first.
//
// Parameters:
//   - ctx: The parent context.
//   - timeout: The wall-clock budget for the run.
//
// Returns:
//   - context.Context: A context canceled on timeout or signal.
//   - *CancelFuncs: The cancel functions for cleanup (defer Cleanup).
func SetupLifecycle(ctx context.Context, timeout time.Duration) (context.Context, *CancelFuncs) {
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, &CancelFuncs{cancelTimeout: cancelTimeout, stopSignals: stopSignals}
}

// CancelFuncs holds the cancel functions for lifecycle management.
type CancelFuncs struct {
	cancelTimeout context.CancelFunc
	stopSignals   context.CancelFunc
}

// Cleanup releases the timeout and signal resources. Safe to call more
// than once.
func (c *CancelFuncs) Cleanup() {
	if c.stopSignals != nil {
		c.stopSignals()
	}
	if c.cancelTimeout != nil {
		c.cancelTimeout()
	}
}
