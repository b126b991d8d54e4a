package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RepeatingTask runs fn every interval. The next run is scheduled only after
// the previous one returns, so runs never overlap. fn returning false stops
// the task.
type RepeatingTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) bool
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	epoch   uint64
	timer   *time.Timer
	wg      sync.WaitGroup
}

// NewRepeatingTask creates a stopped task.
func NewRepeatingTask(name string, interval time.Duration, fn func(ctx context.Context) bool, logger *slog.Logger) *RepeatingTask {
	return &RepeatingTask{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Start schedules the first run one interval from now. Starting a running
// task is a no-op. Stop does not cancel ctx; a run in progress completes.
func (t *RepeatingTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.epoch++
	t.scheduleLocked(ctx, t.epoch)
	t.logger.Debug("task started", "task", t.name, "interval", t.interval)
}

// Stop cancels the pending run. It returns without waiting for a run in
// progress.
func (t *RepeatingTask) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	t.epoch++
	if t.timer != nil && t.timer.Stop() {
		t.wg.Done()
	}
	t.timer = nil
	t.logger.Debug("task stopped", "task", t.name)
}

// Running reports whether the task is scheduled or executing.
func (t *RepeatingTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Wait blocks until no run is pending or executing. Call after Stop.
func (t *RepeatingTask) Wait() {
	t.wg.Wait()
}

func (t *RepeatingTask) scheduleLocked(ctx context.Context, epoch uint64) {
	t.wg.Add(1)
	t.timer = time.AfterFunc(t.interval, func() {
		defer t.wg.Done()
		t.run(ctx, epoch)
	})
}

func (t *RepeatingTask) run(ctx context.Context, epoch uint64) {
	t.mu.Lock()
	if !t.running || t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		t.running = false
		t.timer = nil
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	cont := t.fn(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.epoch != epoch {
		return
	}
	if !cont || ctx.Err() != nil {
		t.running = false
		t.timer = nil
		t.logger.Debug("task finished", "task", t.name)
		return
	}
	t.scheduleLocked(ctx, epoch)
}
