// Package scheduler serializes calls to a shared remote API: one call at a
// time, strict FIFO, and a minimum interval between consecutive call starts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMinInterval is the spacing enforced between call starts.
const DefaultMinInterval = time.Second

// ErrClosed is returned for calls scheduled on, or pending in, a closed scheduler.
var ErrClosed = errors.New("scheduler closed")

// Op is a unit of work executed by the scheduler.
type Op func(ctx context.Context) (any, error)

// Config holds scheduler settings
type Config struct {
	// MinInterval is the minimum time between the starts of two calls
	MinInterval time.Duration
	// OnQueueChange is invoked with the queue depth after every change
	OnQueueChange func(depth int)
}

type result struct {
	value any
	err   error
}

// call is a queued operation plus its eventual resolution.
type call struct {
	id   string
	ctx  context.Context
	op   Op
	done chan result
}

// Scheduler executes queued operations one at a time.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	queue     []*call
	wake      chan struct{}
	lastStart time.Time
	closed    bool

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	onQueueChange func(depth int)
}

// New creates a scheduler and starts its worker.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	s := &Scheduler{
		interval:      cfg.MinInterval,
		logger:        logger.With("component", "scheduler"),
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		onQueueChange: cfg.OnQueueChange,
	}
	go s.run()
	return s
}

// Schedule queues op and blocks until it settles. The returned value and error
// are exactly those of op. If ctx is done before op starts, op is skipped.
func (s *Scheduler) Schedule(ctx context.Context, op Op) (any, error) {
	c := &call{
		id:   uuid.NewString(),
		ctx:  ctx,
		op:   op,
		done: make(chan result, 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.queue = append(s.queue, c)
	depth := len(s.queue)
	s.mu.Unlock()

	s.notifyDepth(depth)
	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-c.done:
		return r.value, r.err
	case <-ctx.Done():
		// The worker skips calls whose context is already done.
		return nil, ctx.Err()
	}
}

// Do is a typed wrapper around Schedule.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := s.Schedule(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	var zero T
	if v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("scheduler: unexpected result type %T", v)
	}
	return typed, err
}

// Len returns the number of queued calls.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the worker. Calls still queued fail with ErrClosed; a call in
// flight is allowed to finish.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	defer s.failPending()

	for {
		c := s.next()
		if c == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stopCh:
				return
			}
		}

		if !s.waitTurn() {
			c.done <- result{err: ErrClosed}
			return
		}

		if err := c.ctx.Err(); err != nil {
			c.done <- result{err: err}
			continue
		}

		s.mu.Lock()
		s.lastStart = s.now()
		s.mu.Unlock()

		c.done <- s.execute(c)
	}
}

// next dequeues the head of the queue.
func (s *Scheduler) next() *call {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	c := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	depth := len(s.queue)
	s.mu.Unlock()

	s.notifyDepth(depth)
	return c
}

// waitTurn sleeps until the minimum interval since the last start has passed.
func (s *Scheduler) waitTurn() bool {
	s.mu.Lock()
	last := s.lastStart
	s.mu.Unlock()

	if last.IsZero() {
		return true
	}
	wait := last.Add(s.interval).Sub(s.now())
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	}
}

// execute runs a call. Failures and panics go to the caller only.
func (s *Scheduler) execute(c *call) (r result) {
	defer func() {
		if p := recover(); p != nil {
			r = result{err: fmt.Errorf("scheduled call panicked: %v", p)}
		}
		if r.err != nil {
			s.logger.Debug("scheduled call failed", "call_id", c.id, "error", r.err)
		}
	}()

	v, err := c.op(c.ctx)
	return result{value: v, err: err}
}

func (s *Scheduler) failPending() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, c := range pending {
		c.done <- result{err: ErrClosed}
	}
	s.notifyDepth(0)
}

func (s *Scheduler) notifyDepth(depth int) {
	if s.onQueueChange != nil {
		s.onQueueChange(depth)
	}
}
