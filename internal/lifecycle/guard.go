// Package lifecycle implements the Deploy/Destroy and Stop/Start engines
// (spec.md §4.6, §4.7) on top of one shared operation guard: lock
// acquisition, a signal handler that kills the in-flight external tool and
// marks the operation failed on SIGINT/SIGTERM, and guaranteed lock
// release. This generalizes the shell `trap "lock_remove … EXIT INT TERM"`
// pattern described in spec.md §10 into a deferred release plus an
// installed os/signal handler.
package lifecycle

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/exasol-infra/exasol-orchestrator/internal/lock"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

// Guard wraps one CLI invocation's lock lifetime and signal handling. It
// is constructed once per operation (deploy, destroy, stop, start) and
// used for exactly one Run call.
type Guard struct {
	Operation     string
	Lock          *lock.Manager
	Store         *state.Store
	Runner        ToolRunner
	FailureStatus state.Status
	Logger        *slog.Logger

	mu        sync.Mutex
	succeeded bool
}

// Run acquires the lock, installs the signal handler, and invokes fn with
// a context that is cancelled on SIGINT/SIGTERM. If fn returns a non-nil
// error, or the process receives a terminating signal, the guard
// transitions the deployment status to FailureStatus before releasing the
// lock. Callers that complete successfully are responsible for writing
// their own terminal success status inside fn before returning nil; Run
// never writes a success status itself.
func (g *Guard) Run(parent context.Context, fn func(ctx context.Context) error) error {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := g.Lock.Acquire(g.Operation); err != nil {
		return err
	}
	defer func() {
		if err := g.Lock.Release(); err != nil {
			logger.Warn("failed to release lock", "operation", g.Operation, "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Warn("received termination signal, stopping in-flight tool", "operation", g.Operation)
			if g.Runner != nil {
				g.Runner.Kill()
			}
		case <-done:
		}
	}()

	err := fn(ctx)
	close(done)

	if err != nil {
		g.markFailed(logger, err)
		return err
	}

	if ctx.Err() != nil && !g.isSucceeded() {
		g.markFailed(logger, ctx.Err())
		return ctx.Err()
	}

	return nil
}

// MarkSucceeded records that fn reached its own terminal success status
// write, so a signal arriving after that point does not overwrite it with
// FailureStatus.
func (g *Guard) MarkSucceeded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.succeeded = true
}

func (g *Guard) isSucceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.succeeded
}

func (g *Guard) markFailed(logger *slog.Logger, cause error) {
	if g.isSucceeded() {
		return
	}
	if err := g.Store.SetStatus(g.FailureStatus); err != nil {
		logger.Error("failed to record failure status", "operation", g.Operation, "status", g.FailureStatus, "cause", cause, "error", err)
		return
	}
	logger.Error("operation failed", "operation", g.Operation, "status", g.FailureStatus, "cause", cause)
}
