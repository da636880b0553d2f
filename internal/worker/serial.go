// Package worker runs jobs that must not overlap, such as audio model
// calls sharing one device.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/metrics"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("worker: queue closed")

type job struct {
	ctx      context.Context
	fn       func(ctx context.Context) error
	enqueued time.Time
	done     chan error
}

// Serial executes submitted jobs one at a time, in arrival order, on a
// single goroutine. Many callers may submit concurrently; each blocks only
// until its own job finishes.
type Serial struct {
	name   string
	logger *zap.Logger

	jobs chan job

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewSerial starts the worker goroutine. backlog bounds how many jobs may
// wait before Do blocks on submission.
func NewSerial(name string, backlog int, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backlog < 0 {
		backlog = 0
	}
	s := &Serial{
		name:    name,
		logger:  logger.Named("worker").With(zap.String("queue", name)),
		jobs:    make(chan job, backlog),
		stopped: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.stopped)
	for j := range s.jobs {
		wait := time.Since(j.enqueued)
		metrics.QueueWaitSeconds.WithLabelValues(s.name).Observe(wait.Seconds())

		// the caller gave up while queued
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}

		s.logger.Debug("job started", zap.Duration("queue_wait", wait))
		j.done <- s.run(j)
	}
}

func (s *Serial) run(j job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("job panicked", zap.Any("panic", rec))
			err = fmt.Errorf("worker %s: job panicked: %v", s.name, rec)
		}
	}()
	return j.fn(j.ctx)
}

// Do queues fn and waits for it to run. If ctx ends while fn is still
// queued, fn is skipped; once fn has started it runs to completion and Do
// returns its result.
func (s *Serial) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, enqueued: time.Now(), done: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	return <-j.done
}

// Close stops accepting jobs, lets queued ones drain and waits for the
// worker to exit.
func (s *Serial) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.stopped
}

// Submit is Do for jobs that return a value.
func Submit[T any](ctx context.Context, s *Serial, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
