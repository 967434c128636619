package worker

import (
	"context"
	"time"
)

// Task is a named unit of work for a task pool.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// NewTaskPool builds a pool of Tasks. Each task runs under its own
// context bounded by timeout when timeout is positive.
func NewTaskPool(workers, queueSize int, timeout time.Duration, opts ...Option[Task]) *Pool[Task] {
	return NewPool(workers, queueSize, func(ctx context.Context, t Task) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return t.Run(ctx)
	}, opts...)
}
