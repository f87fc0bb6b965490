// Package types defines core interfaces and types for the thread pool
package types

import (
	"time"
)

// Task is a unit of fire-and-forget work.
// A task reports failure by panicking; a nil Task is invalid.
type Task func()

// Logger receives a human-readable message for every failed task.
type Logger func(msg string)

// WorkerPool defines the worker pool interface
type WorkerPool interface {
	// Submit submits a task to the worker pool
	Submit(task Task) error

	// Clear discards all queued tasks that have not started
	Clear()

	// QueueSize returns the number of queued tasks
	QueueSize() int

	// Size returns the size of the worker pool
	Size() int

	// Close stops all workers and waits for them to exit
	Close() error

	// Stats returns worker pool statistics
	Stats() PoolStats
}

// PoolStats defines basic statistics for worker pools
type PoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of workers currently executing a task
	ActiveWorkers int

	// QueueSize is the current number of tasks in the queue
	QueueSize int

	// TotalCompleted is the number of tasks that returned normally
	TotalCompleted int64

	// TotalFailed is the number of tasks that panicked
	TotalFailed int64

	// TotalExecutionTime is the summed run time of all executed tasks
	TotalExecutionTime time.Duration
}

// TotalExecuted returns the number of tasks that ran, failed or not
func (s PoolStats) TotalExecuted() int64 {
	return s.TotalCompleted + s.TotalFailed
}

// AverageExecutionTime returns the mean task run time
func (s PoolStats) AverageExecutionTime() time.Duration {
	total := s.TotalExecuted()
	if total == 0 {
		return 0
	}
	return s.TotalExecutionTime / time.Duration(total)
}
