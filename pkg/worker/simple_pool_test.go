package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/simplepool/internal/testutils"
	"github.com/jzx17/simplepool/pkg/affinity"
	"github.com/jzx17/simplepool/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, config *SimplePoolConfig) *SimplePool {
	t.Helper()
	pool, err := NewSimplePool(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestNewSimplePool(t *testing.T) {
	tests := []struct {
		name        string
		config      *SimplePoolConfig
		expectError bool
	}{
		{
			name:        "nil config should use hardware concurrency",
			config:      nil,
			expectError: false,
		},
		{
			name:        "single worker",
			config:      &SimplePoolConfig{PoolSize: 1},
			expectError: false,
		},
		{
			name:        "several workers",
			config:      &SimplePoolConfig{PoolSize: 8},
			expectError: false,
		},
		{
			name:        "zero pool size should error",
			config:      &SimplePoolConfig{PoolSize: 0},
			expectError: true,
		},
		{
			name:        "negative pool size should error",
			config:      &SimplePoolConfig{PoolSize: -1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewSimplePool(tt.config)

			if tt.expectError {
				assert.ErrorIs(t, err, types.ErrEmptyPool)
				assert.Nil(t, pool)
				return
			}

			require.NoError(t, err)
			defer pool.Close()

			assert.True(t, pool.IsRunning())
			if tt.config == nil {
				assert.Equal(t, affinity.HardwareConcurrency(), pool.Size())
			} else {
				assert.Equal(t, tt.config.PoolSize, pool.Size())
			}
			assert.Len(t, pool.GetWorkerStats(), pool.Size())
		})
	}
}

func TestSimplePool_SizeIsConstant(t *testing.T) {
	for _, size := range []int{1, 2, 5, 16} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			pool, err := NewSimplePool(&SimplePoolConfig{PoolSize: size})
			require.NoError(t, err)
			assert.Equal(t, size, pool.Size())

			var wg sync.WaitGroup
			wg.Add(size * 4)
			for i := 0; i < size*4; i++ {
				require.NoError(t, pool.Submit(wg.Done))
			}
			require.True(t, testutils.WaitTimeout(&wg, testutils.DefaultTimeout))
			assert.Equal(t, size, pool.Size())

			require.NoError(t, pool.Close())
			assert.Equal(t, size, pool.Size())
		})
	}
}

func TestSimplePool_SubmitInvalidTask(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1})

	gate := testutils.NewGate()
	defer gate.Open()
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 1)

	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))
	assert.Equal(t, 2, pool.QueueSize())

	err := pool.Submit(nil)
	assert.ErrorIs(t, err, types.ErrInvalidTask)
	assert.Equal(t, 2, pool.QueueSize())

	var nilTask types.Task
	assert.ErrorIs(t, pool.Submit(nilTask), types.ErrInvalidTask)
	assert.Equal(t, 2, pool.QueueSize())
}

func TestSimplePool_FIFOWithSingleWorker(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1})

	const numTasks = 200
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(numTasks)

	for i := 0; i < numTasks; i++ {
		i := i
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.True(t, testutils.WaitTimeout(&wg, testutils.DefaultTimeout))

	expected := make([]int, numTasks)
	for i := range expected {
		expected[i] = i
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, expected, order)
}

func TestSimplePool_Clear(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1})

	gate := testutils.NewGate()
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 1)

	const numTasks = 10
	flags := make([]int32, numTasks)
	for i := 0; i < numTasks; i++ {
		i := i
		require.NoError(t, pool.Submit(func() { atomic.StoreInt32(&flags[i], 1) }))
	}
	assert.Equal(t, numTasks, pool.QueueSize())

	pool.Clear()
	assert.Equal(t, 0, pool.QueueSize())

	// Clearing an empty queue is a no-op.
	pool.Clear()
	assert.Equal(t, 0, pool.QueueSize())

	gate.Open()

	// With one worker and FIFO order, the sentinel runs after anything
	// that survived Clear.
	sentinel := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(sentinel) }))
	select {
	case <-sentinel:
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("sentinel task did not run")
	}

	for i := range flags {
		assert.Equal(t, int32(0), atomic.LoadInt32(&flags[i]), "cleared task %d ran", i)
	}
}

func TestSimplePool_ClearDoesNotAffectRunningTask(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1})

	gate := testutils.NewGate()
	finished := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		gate.Wait()
		close(finished)
	}))
	gate.AwaitEntered(t, 1)

	pool.Clear()
	gate.Open()

	select {
	case <-finished:
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("running task was interrupted by Clear")
	}
}

func TestSimplePool_CloseWithPendingTasks(t *testing.T) {
	pool, err := NewSimplePool(&SimplePoolConfig{PoolSize: 2})
	require.NoError(t, err)

	gate := testutils.NewGate()
	require.NoError(t, pool.Submit(gate.Wait))
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 2)

	var executed int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func() { atomic.AddInt64(&executed, 1) }))
	}

	closed := make(chan error, 1)
	go func() { closed <- pool.Close() }()

	require.Eventually(t, func() bool { return !pool.IsRunning() }, time.Second, time.Millisecond)
	gate.Open()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("Close did not return")
	}

	// Workers observed the stop before taking anything else from the queue.
	assert.Equal(t, int64(0), atomic.LoadInt64(&executed))
	assert.Equal(t, 0, pool.QueueSize())
	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, WorkerStateTerminated, ws.State)
	}
}

func TestSimplePool_CloseIdempotentAndRejectsSubmit(t *testing.T) {
	pool, err := NewSimplePool(&SimplePoolConfig{PoolSize: 3})
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.False(t, pool.IsRunning())

	err = pool.Submit(func() {})
	assert.ErrorIs(t, err, types.ErrPoolClosed)
	assert.Equal(t, 0, pool.QueueSize())

	// Validation still comes first.
	assert.ErrorIs(t, pool.Submit(nil), types.ErrInvalidTask)
}

func TestSimplePool_SubmitDuringClose(t *testing.T) {
	pool, err := NewSimplePool(&SimplePoolConfig{PoolSize: 4})
	require.NoError(t, err)

	const submitters = 8

	var executed, accepted int64
	var unexpected []error
	var mu sync.Mutex

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(submitters)
	for i := 0; i < submitters; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				err := pool.Submit(func() { atomic.AddInt64(&executed, 1) })
				switch {
				case err == nil:
					atomic.AddInt64(&accepted, 1)
				case errors.Is(err, types.ErrPoolClosed):
					return
				default:
					mu.Lock()
					unexpected = append(unexpected, err)
					mu.Unlock()
					return
				}
			}
		}()
	}

	// Let submissions pile up before stopping.
	require.Eventually(t, func() bool { return atomic.LoadInt64(&accepted) > 100 },
		testutils.DefaultTimeout, time.Millisecond)

	closed := make(chan error, 2)
	go func() { closed <- pool.Close() }()
	go func() { closed <- pool.Close() }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-closed:
			assert.NoError(t, err)
		case <-time.After(testutils.DefaultTimeout):
			t.Fatal("Close did not return")
		}
	}

	close(stop)
	require.True(t, testutils.WaitTimeout(&wg, testutils.DefaultTimeout))

	mu.Lock()
	assert.Empty(t, unexpected)
	mu.Unlock()

	assert.False(t, pool.IsRunning())
	assert.Equal(t, 0, pool.QueueSize())
	assert.ErrorIs(t, pool.Submit(func() {}), types.ErrPoolClosed)
	assert.LessOrEqual(t, atomic.LoadInt64(&executed), atomic.LoadInt64(&accepted))
	for _, ws := range pool.GetWorkerStats() {
		assert.Equal(t, WorkerStateTerminated, ws.State)
	}
}

func TestSimplePool_ShutdownContextExpires(t *testing.T) {
	pool, err := NewSimplePool(&SimplePoolConfig{PoolSize: 1})
	require.NoError(t, err)

	gate := testutils.NewGate()
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, pool.IsRunning())

	gate.Open()
	assert.NoError(t, pool.Shutdown(testutils.Context(t)))
}

func TestSimplePool_FailingTasksDoNotShrinkCapacity(t *testing.T) {
	var logged int64
	pool := newTestPool(t, &SimplePoolConfig{
		PoolSize: 2,
		Logger:   func(string) { atomic.AddInt64(&logged, 1) },
	})

	const failing, succeeding = 20, 50

	for i := 0; i < failing; i++ {
		i := i
		require.NoError(t, pool.Submit(func() { panic(fmt.Sprintf("task %d failed", i)) }))
	}

	var completed int64
	var wg sync.WaitGroup
	wg.Add(succeeding)
	for i := 0; i < succeeding; i++ {
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&completed, 1)
		}))
	}

	require.True(t, testutils.WaitTimeout(&wg, testutils.DefaultTimeout))
	assert.Equal(t, int64(succeeding), atomic.LoadInt64(&completed))

	assert.Eventually(t, func() bool {
		stats := pool.Stats()
		return stats.TotalFailed == failing && stats.TotalCompleted == succeeding
	}, testutils.DefaultTimeout, time.Millisecond)
	assert.Equal(t, int64(failing), atomic.LoadInt64(&logged))

	for _, ws := range pool.GetWorkerStats() {
		assert.NotEqual(t, WorkerStateTerminated, ws.State)
	}
}

func TestSimplePool_LoggerReceivesMessage(t *testing.T) {
	messages := make(chan string, 1)
	pool := newTestPool(t, &SimplePoolConfig{
		PoolSize: 1,
		Logger:   func(msg string) { messages <- msg },
	})

	require.NoError(t, pool.Submit(func() { panic(errors.New("connection refused")) }))

	select {
	case msg := <-messages:
		assert.Equal(t, "connection refused", msg)
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("logger was not called")
	}
}

func TestSimplePool_ErrorHandler(t *testing.T) {
	messages := make(chan string, 2)
	failures := make(chan *types.TaskError, 2)
	pool := newTestPool(t, &SimplePoolConfig{
		PoolSize:     1,
		Logger:       func(msg string) { messages <- msg },
		ErrorHandler: func(err *types.TaskError) { failures <- err },
	})

	require.NoError(t, pool.Submit(func() { panic(errors.New("boom")) }))
	require.NoError(t, pool.Submit(func() { panic(42) }))

	for _, want := range []string{"boom", "42"} {
		select {
		case msg := <-messages:
			assert.Equal(t, want, msg)
		case <-time.After(testutils.DefaultTimeout):
			t.Fatal("logger was not called")
		}

		select {
		case err := <-failures:
			assert.Equal(t, 0, err.WorkerID)
			assert.Equal(t, "execute", err.Operation)
			assert.Equal(t, want, err.Cause.Error())
			assert.NotEmpty(t, err.Context["stack_trace"])
		case <-time.After(testutils.DefaultTimeout):
			t.Fatal("error handler was not called")
		}
	}
}

func TestSimplePool_PanickingLogger(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{
		PoolSize: 1,
		Logger:   func(string) { panic("logger failure") },
	})

	require.NoError(t, pool.Submit(func() { panic("task failure") }))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("worker died after logger panic")
	}
}

func TestSimplePool_ConcurrentSubmitExactlyOnce(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 4})

	const submitters, perSubmitter = 8, 500
	counts := make([]int32, submitters*perSubmitter)

	var done sync.WaitGroup
	done.Add(len(counts))

	var submit sync.WaitGroup
	for s := 0; s < submitters; s++ {
		submit.Add(1)
		go func(s int) {
			defer submit.Done()
			for i := 0; i < perSubmitter; i++ {
				idx := s*perSubmitter + i
				if err := pool.Submit(func() {
					atomic.AddInt32(&counts[idx], 1)
					done.Done()
				}); err != nil {
					t.Errorf("submit %d: %v", idx, err)
					done.Done()
				}
			}
		}(s)
	}

	submit.Wait()
	require.True(t, testutils.WaitTimeout(&done, testutils.DefaultTimeout))

	for i := range counts {
		assert.Equal(t, int32(1), atomic.LoadInt32(&counts[i]), "task %d", i)
	}
	assert.Eventually(t, func() bool {
		return pool.Stats().TotalExecuted() == int64(len(counts))
	}, testutils.DefaultTimeout, time.Millisecond)
}

func TestSimplePool_OnWorkerStart(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]int)

	pool := newTestPool(t, &SimplePoolConfig{
		PoolSize: 4,
		OnWorkerStart: func(id int) {
			mu.Lock()
			defer mu.Unlock()
			seen[id]++
		},
	})

	// NewSimplePool returns only after every hook has run.
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, pool.Size())
	for id := 0; id < pool.Size(); id++ {
		assert.Equal(t, 1, seen[id], "worker %d", id)
	}
}

func TestSimplePool_StatsWithMockClock(t *testing.T) {
	ctx := testutils.Context(t)
	mClock := testutils.NewMockClock(t)

	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1, Clock: mClock})

	require.NoError(t, pool.Submit(func() { testutils.Advance(ctx, t, mClock, 25*time.Millisecond) }))
	require.NoError(t, pool.Submit(func() {
		testutils.Advance(ctx, t, mClock, 15*time.Millisecond)
		panic("late failure")
	}))

	require.Eventually(t, func() bool {
		return pool.Stats().TotalExecuted() == 2
	}, testutils.DefaultTimeout, time.Millisecond)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.PoolSize)
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Equal(t, 40*time.Millisecond, stats.TotalExecutionTime)
	assert.Equal(t, 20*time.Millisecond, stats.AverageExecutionTime())
}

func TestSimplePool_ActiveWorkers(t *testing.T) {
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 3})

	gate := testutils.NewGate()
	defer gate.Open()
	require.NoError(t, pool.Submit(gate.Wait))
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 2)

	stats := pool.Stats()
	assert.Equal(t, 2, stats.ActiveWorkers)
	assert.Equal(t, 0, stats.QueueSize)
}

type countingObserver struct {
	submitted int64
	completed int64
	failed    int64
	cleared   int64
}

func (o *countingObserver) TaskSubmitted() { atomic.AddInt64(&o.submitted, 1) }

func (o *countingObserver) TaskCompleted(_ time.Duration, failed bool) {
	if failed {
		atomic.AddInt64(&o.failed, 1)
		return
	}
	atomic.AddInt64(&o.completed, 1)
}

func (o *countingObserver) TasksCleared(n int) { atomic.AddInt64(&o.cleared, int64(n)) }

// orderingObserver records whether a completion was ever reported before
// its submission was counted.
type orderingObserver struct {
	countingObserver
	violations int64
}

func (o *orderingObserver) TaskCompleted(d time.Duration, failed bool) {
	o.countingObserver.TaskCompleted(d, failed)
	done := atomic.LoadInt64(&o.completed) + atomic.LoadInt64(&o.failed)
	if done > atomic.LoadInt64(&o.submitted) {
		atomic.AddInt64(&o.violations, 1)
	}
}

func TestSimplePool_ObserverSubmitPrecedesCompletion(t *testing.T) {
	obs := &orderingObserver{}
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 4, Observer: obs})

	const tasks = 2000
	for i := 0; i < tasks; i++ {
		require.NoError(t, pool.Submit(func() {}))
	}
	require.NoError(t, pool.Close())

	assert.Equal(t, int64(tasks), atomic.LoadInt64(&obs.submitted))
	assert.Equal(t, int64(0), atomic.LoadInt64(&obs.violations))
}

func TestSimplePool_Observer(t *testing.T) {
	obs := &countingObserver{}
	pool := newTestPool(t, &SimplePoolConfig{PoolSize: 1, Observer: obs})

	gate := testutils.NewGate()
	require.NoError(t, pool.Submit(gate.Wait))
	gate.AwaitEntered(t, 1)

	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))
	pool.Clear()

	require.NoError(t, pool.Submit(func() { panic("x") }))
	gate.Open()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&obs.completed) == 1 && atomic.LoadInt64(&obs.failed) == 1
	}, testutils.DefaultTimeout, time.Millisecond)
	assert.Equal(t, int64(4), atomic.LoadInt64(&obs.submitted))
	assert.Equal(t, int64(2), atomic.LoadInt64(&obs.cleared))
}
