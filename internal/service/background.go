package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultTaskTimeout bounds a background task's lifetime.
const defaultTaskTimeout = 60 * time.Second

// Runner supervises fire-and-forget background tasks. A panicking or
// failing task is logged and can never crash the request path.
type Runner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a supervised background task runner
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Go runs fn on its own goroutine with panic recovery and a bounded
// context detached from the request
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), defaultTaskTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Error("background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight tasks complete. Used on shutdown and
// in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
