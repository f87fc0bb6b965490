package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// Advance moves the mock clock forward and waits for any timers it fires
func Advance(ctx context.Context, t testing.TB, mock *quartz.Mock, d time.Duration) {
	t.Helper()
	mock.Advance(d).MustWait(ctx)
}
