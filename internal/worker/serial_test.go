package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSerialRunsOneAtATimeInOrder(t *testing.T) {
	s := NewSerial("test", 16, zaptest.NewLogger(t))
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})

	var (
		mu       sync.Mutex
		order    []int
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	record := func(i int) func(context.Context) error {
		return func(context.Context) error {
			n := inFlight.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			inFlight.Add(-1)
			return nil
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// queue the rest while the first job holds the worker
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Do(context.Background(), record(i)); err != nil {
				t.Errorf("Do(%d): %v", i, err)
			}
		}(i)
		waitQueued(t, s, i)
	}

	close(release)
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected at most one job in flight, saw %d", maxSeen.Load())
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

// waitQueued waits until n jobs are buffered behind the running one.
func waitQueued(t *testing.T, s *Serial, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.jobs) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d queued jobs", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSerialSkipsJobCancelledWhileQueued(t *testing.T) {
	s := NewSerial("test", 4, zaptest.NewLogger(t))
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(ctx, func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	waitQueued(t, s, 1)

	cancel()
	close(release)

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran.Load() {
		t.Fatalf("cancelled job must not run")
	}
}

func TestSerialSubmitReturnsValueAndPanics(t *testing.T) {
	s := NewSerial("test", 0, zaptest.NewLogger(t))
	defer s.Close()

	v, err := Submit(context.Background(), s, func(context.Context) (string, error) {
		return "clip.wav", nil
	})
	if err != nil || v != "clip.wav" {
		t.Fatalf("Submit = %q, %v", v, err)
	}

	err = s.Do(context.Background(), func(context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}

	// worker survives a panicking job
	if err := s.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do after panic: %v", err)
	}
}

func TestSerialClosed(t *testing.T) {
	s := NewSerial("test", 1, zaptest.NewLogger(t))
	s.Close()
	s.Close()

	if err := s.Do(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
