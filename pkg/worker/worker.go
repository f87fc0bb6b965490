package worker

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/simplepool/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateWaiting represents a worker blocked waiting for a task
	WorkerStateWaiting WorkerState = iota
	// WorkerStateExecuting represents a worker running a task
	WorkerStateExecuting
	// WorkerStateTerminated represents a worker whose thread has exited
	WorkerStateTerminated
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateWaiting:
		return "waiting"
	case WorkerStateExecuting:
		return "executing"
	case WorkerStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// taskSource hands out tasks to workers. next blocks until a task is
// available or the source is stopped, in which case ok is false.
type taskSource interface {
	next() (task types.Task, ok bool)
}

// Worker represents a single worker goroutine locked to its own OS thread
type Worker struct {
	id    int
	state int32 // atomic state
	done  chan struct{}

	// statistics
	totalCompleted int64
	totalFailed    int64
	lastTaskTime   int64 // Unix nanosecond timestamp

	// error reporting
	logger       types.Logger
	errorHandler func(*types.TaskError)

	// pool callback for syncing statistics
	completionCallback func(time.Duration, bool)

	// time operations
	clock quartz.Clock

	// synchronization
	mu sync.RWMutex
}

// NewWorker creates a new Worker with default real clock
func NewWorker(id int) *Worker {
	return NewWorkerWithClock(id, quartz.NewReal())
}

// NewWorkerWithClock creates a new Worker with specified clock
func NewWorkerWithClock(id int, clock quartz.Clock) *Worker {
	if clock == nil {
		clock = quartz.NewReal()
	}

	return &Worker{
		id:    id,
		state: int32(WorkerStateWaiting),
		done:  make(chan struct{}),
		clock: clock,
	}
}

// ID returns the Worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// Done returns a channel closed once the worker has terminated
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// SetLogger sets the task failure logger
func (w *Worker) SetLogger(logger types.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
}

// SetErrorHandler sets a callback that receives the full *types.TaskError,
// including the worker ID and stack trace, for every failure
func (w *Worker) SetErrorHandler(handler func(*types.TaskError)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHandler = handler
}

// SetCompletionCallback sets the task completion callback
func (w *Worker) SetCompletionCallback(callback func(time.Duration, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completionCallback = callback
}

// run is the worker loop. The goroutine is locked to its OS thread and never
// unlocked, so the thread exits together with the worker.
func (w *Worker) run(src taskSource, onStart func(int), ready func()) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateTerminated))

	runtime.LockOSThread()

	if onStart != nil {
		if taskErr := w.protect("start", func() { onStart(w.id) }); taskErr != nil {
			w.reportError(taskErr)
		}
	}
	if ready != nil {
		ready()
	}

	for {
		task, ok := src.next()
		if !ok {
			return
		}
		w.processTask(task)
	}
}

// processTask processes a single task
func (w *Worker) processTask(task types.Task) {
	atomic.StoreInt32(&w.state, int32(WorkerStateExecuting))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateWaiting))

	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	taskErr := w.protect("execute", task)

	executionTime := w.clock.Since(startTime)

	failed := taskErr != nil
	if failed {
		atomic.AddInt64(&w.totalFailed, 1)
		w.reportError(taskErr)
	} else {
		atomic.AddInt64(&w.totalCompleted, 1)
	}

	w.mu.RLock()
	callback := w.completionCallback
	w.mu.RUnlock()

	if callback != nil {
		callback(executionTime, failed)
	}
}

// protect calls fn and converts a panic it raises into a *types.TaskError
func (w *Worker) protect(operation string, fn func()) (taskErr *types.TaskError) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			taskErr = types.NewTaskError(operation, w.id, types.ErrorFromPanic(r)).
				WithContext("stack_trace", string(buf[:n])).
				WithContext("worker_id", w.id)
		}
	}()

	fn()
	return nil
}

// reportError passes the failure's own message to the logger and the full
// error to the error handler. Panics raised by either are ignored.
func (w *Worker) reportError(taskErr *types.TaskError) {
	w.mu.RLock()
	logger := w.logger
	handler := w.errorHandler
	w.mu.RUnlock()

	if logger != nil {
		func() {
			defer func() {
				_ = recover()
			}()
			logger(taskErr.Cause.Error())
		}()
	}

	if handler != nil {
		func() {
			defer func() {
				_ = recover()
			}()
			handler(taskErr)
		}()
	}
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalCompleted: atomic.LoadInt64(&w.totalCompleted),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		LastTaskTime:   time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalCompleted int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalCompleted + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalCompleted) / float64(total)
}

// GetErrorRate gets the error rate
func (ws WorkerStats) GetErrorRate() float64 {
	total := ws.TotalCompleted + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalFailed) / float64(total)
}

func (ws WorkerStats) String() string {
	return fmt.Sprintf("worker %d: %s completed=%d failed=%d",
		ws.ID, ws.State, ws.TotalCompleted, ws.TotalFailed)
}
