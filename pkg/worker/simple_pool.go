package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/eapache/queue"
	"github.com/jzx17/simplepool/pkg/affinity"
	"github.com/jzx17/simplepool/pkg/types"
)

// Observer receives pool events, e.g. for metrics export.
// Methods are called from submitter and worker goroutines and must not block.
// TaskSubmitted is called under the pool lock before the task can be dequeued,
// so it always precedes the matching TaskCompleted.
type Observer interface {
	TaskSubmitted()
	TaskCompleted(d time.Duration, failed bool)
	TasksCleared(n int)
}

// SimplePoolConfig defines configuration for the simple thread pool
type SimplePoolConfig struct {
	// PoolSize is the number of worker threads; must be positive
	PoolSize int

	// Logger receives the message of every failed task (optional)
	Logger types.Logger

	// ErrorHandler receives every failure with its worker ID and stack
	// trace (optional)
	ErrorHandler func(*types.TaskError)

	// Observer receives task events (optional)
	Observer Observer

	// Clock for time operations (optional, defaults to real clock)
	Clock quartz.Clock

	// OnWorkerStart runs on each worker's OS thread before it takes tasks
	// (optional). Typical use is affinity.BindCurrent.
	OnWorkerStart func(workerID int)
}

// DefaultSimplePoolConfig returns default configuration, sized to the
// host's hardware concurrency
func DefaultSimplePoolConfig() *SimplePoolConfig {
	size := affinity.HardwareConcurrency()
	if size < 1 {
		size = 1
	}
	return &SimplePoolConfig{
		PoolSize: size,
		Clock:    quartz.NewReal(),
	}
}

// SimplePool is a fixed-size pool of worker threads sharing one FIFO queue.
//
// The queue and the running flag share one mutex, so a worker's
// running-check and dequeue are atomic with respect to shutdown.
type SimplePool struct {
	config  *SimplePoolConfig
	workers []*Worker

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *queue.Queue
	running bool

	closeOnce sync.Once
	joined    chan struct{}
	wg        sync.WaitGroup

	// statistics
	totalCompleted     int64
	totalFailed        int64
	totalExecutionTime int64 // nanoseconds
}

var _ types.WorkerPool = (*SimplePool)(nil)

// NewSimplePool creates a pool and starts its workers.
// It returns after every worker has entered its loop.
func NewSimplePool(config *SimplePoolConfig) (*SimplePool, error) {
	if config == nil {
		config = DefaultSimplePoolConfig()
	}

	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("%w: got size %d", types.ErrEmptyPool, config.PoolSize)
	}

	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}

	p := &SimplePool{
		config:  config,
		workers: make([]*Worker, config.PoolSize),
		queue:   queue.New(),
		running: true,
		joined:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	var started sync.WaitGroup
	started.Add(config.PoolSize)

	for i := range p.workers {
		w := NewWorkerWithClock(i, config.Clock)
		w.SetLogger(config.Logger)
		w.SetErrorHandler(config.ErrorHandler)
		w.SetCompletionCallback(p.recordCompletion)
		p.workers[i] = w
	}

	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go func(w *Worker) {
			defer p.wg.Done()
			w.run(p, config.OnWorkerStart, started.Done)
		}(w)
	}
	started.Wait()

	return p, nil
}

// next blocks until a task is queued or the pool stops.
func (p *SimplePool) next() (types.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running && p.queue.Length() == 0 {
		p.cond.Wait()
	}
	if !p.running {
		return nil, false
	}

	// Remove panics on an empty queue; the wait loop above guarantees it
	// is not.
	return p.queue.Remove().(types.Task), true
}

// Submit appends task to the queue and wakes one waiting worker.
// It never waits for the task to run.
func (p *SimplePool) Submit(task types.Task) error {
	if task == nil {
		return types.ErrInvalidTask
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return types.ErrPoolClosed
	}
	p.queue.Add(task)
	if p.config.Observer != nil {
		p.config.Observer.TaskSubmitted()
	}
	p.cond.Signal()
	p.mu.Unlock()
	return nil
}

// Clear discards every queued task. Tasks already running are unaffected.
func (p *SimplePool) Clear() {
	p.mu.Lock()
	n := p.queue.Length()
	if n > 0 {
		p.queue = queue.New()
	}
	p.mu.Unlock()

	if n > 0 && p.config.Observer != nil {
		p.config.Observer.TasksCleared(n)
	}
}

// QueueSize returns the number of queued tasks. The value is advisory.
func (p *SimplePool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Length()
}

// Size returns the worker pool size
func (p *SimplePool) Size() int {
	return len(p.workers)
}

// IsRunning checks if the pool still accepts tasks
func (p *SimplePool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown stops the pool and waits for every worker to terminate.
// Queued tasks that no worker has picked up are discarded. If ctx ends
// first its error is returned; the workers still terminate in the background.
func (p *SimplePool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.cond.Broadcast()
		p.mu.Unlock()

		go func() {
			p.wg.Wait()
			p.Clear()
			close(p.joined)
		}()
	})

	select {
	case <-p.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the pool and blocks until every worker has terminated.
// It is safe to call more than once.
func (p *SimplePool) Close() error {
	return p.Shutdown(context.Background())
}

func (p *SimplePool) recordCompletion(d time.Duration, failed bool) {
	if failed {
		atomic.AddInt64(&p.totalFailed, 1)
	} else {
		atomic.AddInt64(&p.totalCompleted, 1)
	}
	atomic.AddInt64(&p.totalExecutionTime, int64(d))

	if p.config.Observer != nil {
		p.config.Observer.TaskCompleted(d, failed)
	}
}

// ActiveWorkers returns the number of workers currently executing a task
func (p *SimplePool) ActiveWorkers() int {
	var active int
	for _, w := range p.workers {
		if w.State() == WorkerStateExecuting {
			active++
		}
	}
	return active
}

// Stats gets basic worker pool statistics
func (p *SimplePool) Stats() types.PoolStats {
	return types.PoolStats{
		PoolSize:           len(p.workers),
		ActiveWorkers:      p.ActiveWorkers(),
		QueueSize:          p.QueueSize(),
		TotalCompleted:     atomic.LoadInt64(&p.totalCompleted),
		TotalFailed:        atomic.LoadInt64(&p.totalFailed),
		TotalExecutionTime: time.Duration(atomic.LoadInt64(&p.totalExecutionTime)),
	}
}

// GetWorkerStats gets statistics of all Workers
func (p *SimplePool) GetWorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}
