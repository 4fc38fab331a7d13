package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeCleaner struct {
	calls   int32
	removed int
	err     error
}

func (f *fakeCleaner) CleanupOldWorkspaces() (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.removed, f.err
}

func TestRunSweepsImmediatelyAndOnTicks(t *testing.T) {
	cleaner := &fakeCleaner{removed: 2}
	s := New(cleaner, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	s.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&cleaner.calls), int32(2))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cleaner := &fakeCleaner{}
	s := New(cleaner, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestSweepLogsErrorWithoutPanicking(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("permission denied")}
	s := New(cleaner, time.Hour, zap.NewNop())

	assert.NotPanics(t, func() {
		s.sweep(context.Background())
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&cleaner.calls))
}
