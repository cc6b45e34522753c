package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForPasses(t *testing.T, counter *int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pass count = %d after %v, want at least %d", atomic.LoadInt32(counter), timeout, want)
}

func TestCoalescer_BurstRunsOnePass(t *testing.T) {
	var passes int32
	c := NewCoalescer(30*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&passes, 1)
		return nil
	})

	for i := 0; i < 10; i++ {
		c.Signal()
		time.Sleep(2 * time.Millisecond)
	}

	waitForPasses(t, &passes, 1, time.Second)
	// Let the window elapse again: no further passes without a new signal.
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&passes); got != 1 {
		t.Fatalf("burst of 10 signals ran %d passes, want exactly 1", got)
	}
}

func TestCoalescer_SignalResetsQuietWindow(t *testing.T) {
	var passes int32
	c := NewCoalescer(50*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&passes, 1)
		return nil
	})

	c.Signal()
	// Keep signalling inside the window; the trailing edge must keep moving.
	for i := 0; i < 5; i++ {
		time.Sleep(25 * time.Millisecond)
		if got := atomic.LoadInt32(&passes); got != 0 {
			t.Fatalf("pass ran while signals kept arriving (after %d resets)", i)
		}
		c.Signal()
	}

	waitForPasses(t, &passes, 1, time.Second)
}

func TestCoalescer_SignalDuringPassSchedulesAnother(t *testing.T) {
	var passes int32
	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once

	c := NewCoalescer(10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&passes, 1)
		once.Do(func() {
			close(started)
			<-block
		})
		return nil
	})

	c.Signal()
	<-started

	// The in-flight pass has not seen this change; it must not be dropped.
	c.Signal()
	close(block)

	waitForPasses(t, &passes, 2, time.Second)
}

func TestCoalescer_FailedPassIsNotRetried(t *testing.T) {
	var passes int32
	c := NewCoalescer(10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&passes, 1)
		return errors.New("provider unavailable")
	})

	c.Signal()
	waitForPasses(t, &passes, 1, time.Second)

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&passes); got != 1 {
		t.Fatalf("failed pass was retried without a new signal: %d passes", got)
	}

	// A fresh signal triggers a fresh attempt.
	c.Signal()
	waitForPasses(t, &passes, 2, time.Second)
}

func TestCoalescer_LockedOutReplicaSkipsPass(t *testing.T) {
	var passes int32
	c := NewCoalescer(10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&passes, 1)
		return nil
	})
	c.acquire = func() bool { return false }
	c.release = func() {}

	c.Signal()
	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&passes); got != 0 {
		t.Fatalf("replica without the lock ran %d passes, want 0", got)
	}
}
