// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"sync"
	"testing"
	"time"
)

// DefaultTimeout bounds every blocking wait in tests
const DefaultTimeout = 5 * time.Second

// Context returns a context that expires after DefaultTimeout
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// WaitTimeout waits for wg and reports whether it finished within timeout
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Gate blocks tasks until it is opened. Entered is signalled every time a
// task reaches the gate.
type Gate struct {
	Entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

// NewGate creates a closed gate
func NewGate() *Gate {
	return &Gate{
		Entered: make(chan struct{}, 64),
		open:    make(chan struct{}),
	}
}

// Wait signals Entered and blocks until the gate opens
func (g *Gate) Wait() {
	g.Entered <- struct{}{}
	<-g.open
}

// Open releases every current and future waiter
func (g *Gate) Open() {
	g.once.Do(func() { close(g.open) })
}

// AwaitEntered waits until n tasks have reached the gate
func (g *Gate) AwaitEntered(t testing.TB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-g.Entered:
		case <-time.After(DefaultTimeout):
			t.Fatalf("timed out waiting for task %d of %d to reach the gate", i+1, n)
		}
	}
}
