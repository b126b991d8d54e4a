package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockSlack absorbs the time between the worker recording a start and the
// operation observing the clock.
const clockSlack = 2 * time.Millisecond

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_SpacingAndExclusion(t *testing.T) {
	interval := 40 * time.Millisecond
	s := New(Config{MinInterval: interval}, testLogger())
	defer s.Close()

	var (
		mu       sync.Mutex
		starts   []time.Time
		inFlight int32
		overlap  atomic.Bool
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					overlap.Store(true)
				}
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, starts, 5)
	assert.False(t, overlap.Load(), "operations must not overlap")
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, interval-clockSlack, "gap %d too small: %v", i, gap)
	}
}

func TestScheduler_SlowCallDoesNotDelayNextBeyondInterval(t *testing.T) {
	interval := 20 * time.Millisecond
	s := New(Config{MinInterval: interval}, testLogger())
	defer s.Close()

	var first, second time.Time
	go func() {
		_, _ = s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
			first = time.Now()
			time.Sleep(60 * time.Millisecond)
			return nil, nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
		second = time.Now()
		return nil, nil
	})
	require.NoError(t, err)

	gap := second.Sub(first)
	assert.GreaterOrEqual(t, gap, 60*time.Millisecond)
	assert.Less(t, gap, 60*time.Millisecond+interval+50*time.Millisecond)
}

func TestScheduler_FIFO(t *testing.T) {
	s := New(Config{MinInterval: time.Millisecond}, testLogger())
	defer s.Close()

	// Hold the worker so the rest of the calls queue up in a known order.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil, nil
			})
		}(i)
		want := i + 1
		require.Eventually(t, func() bool { return s.Len() == want }, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduler_FailuresDoNotStopQueue(t *testing.T) {
	s := New(Config{MinInterval: time.Millisecond}, testLogger())
	defer s.Close()

	boom := errors.New("boom")
	_, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	})
	assert.ErrorContains(t, err, "kaboom")

	v, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDo_Typed(t *testing.T) {
	s := New(Config{MinInterval: time.Millisecond}, testLogger())
	defer s.Close()

	n, err := Do(context.Background(), s, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestScheduler_CancelledCallIsSkipped(t *testing.T) {
	s := New(Config{MinInterval: 30 * time.Millisecond}, testLogger())
	defer s.Close()

	// Prime lastStart so the next call has to wait.
	_, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Schedule(ctx, func(ctx context.Context) (any, error) {
			ran.Store(true)
			return nil, nil
		})
		errCh <- err
	}()
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)

	// A later call still runs, which also proves the skipped call was drained.
	_, err = s.Schedule(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.False(t, ran.Load())
}

func TestScheduler_Close(t *testing.T) {
	var depths []int
	var mu sync.Mutex
	s := New(Config{
		MinInterval: time.Millisecond,
		OnQueueChange: func(depth int) {
			mu.Lock()
			depths = append(depths, depth)
			mu.Unlock()
		},
	}, testLogger())

	_, err := s.Schedule(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	s.Close()

	_, err = s.Schedule(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, depths, 1)
	assert.Equal(t, 0, depths[len(depths)-1])
}
