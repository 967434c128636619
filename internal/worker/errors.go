package worker

import "errors"

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolNotStarted is returned by Submit before Start.
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrPoolAlreadyStarted is returned by a second Start.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	// ErrStopTimeout is returned when workers do not drain within the Stop timeout.
	ErrStopTimeout = errors.New("worker pool stop timed out")
	// ErrNilProcessor is the panic value for a pool built without a processor.
	ErrNilProcessor = errors.New("worker pool processor is nil")
)
