package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrRunnerClosed is returned by Go once Shutdown has started.
var ErrRunnerClosed = errors.New("job runner is shutting down")

// Runner owns the background tasks that poll and finalize jobs. Each task gets a
// context that is cancelled only when Shutdown gives up waiting.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

func NewRunner(logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "JobRunner").Logger(),
	}
}

// Go starts fn in its own goroutine.
func (r *Runner) Go(name string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error().Str("task", name).Interface("panic", p).Msg("Job task panicked")
			}
		}()
		fn(r.ctx)
	}()
	return nil
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new tasks and waits for running ones. When ctx expires first the
// remaining tasks are cancelled, which leaves their jobs running and resumable.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn().Msg("Shutdown deadline reached, cancelling job tasks")
		r.cancel()
		<-done
		return ctx.Err()
	}
}
