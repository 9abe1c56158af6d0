package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CourtWatch/internal/ports"
)

func newTestPool(workers int) *Pool {
	p := NewPool(workers, nil)
	p.sleep = func(ctx context.Context, d time.Duration) {}
	return p
}

func TestSubmitRunsTask(t *testing.T) {
	t.Parallel()

	pool := newTestPool(2)
	var ran atomic.Bool

	ok := pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	}, ports.TaskPolicy{})
	if !ok {
		t.Fatal("submit should accept a fresh task")
	}
	pool.Wait()

	if !ran.Load() {
		t.Fatal("task never ran")
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	pool := newTestPool(1)
	var attempts atomic.Int32

	pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}, ports.TaskPolicy{MaxRetries: 3, MinBackoff: time.Millisecond})
	pool.Wait()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	pool := newTestPool(1)
	var attempts atomic.Int32

	pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
	}, ports.TaskPolicy{MaxRetries: 2, MinBackoff: time.Millisecond})
	pool.Wait()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("MaxRetries=2 means 3 attempts, got %d", got)
	}
}

func TestTimeLimitCountsAsFailedAttempt(t *testing.T) {
	t.Parallel()

	pool := newTestPool(1)
	var attempts atomic.Int32

	pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			<-ctx.Done()
			return ctx.Err()
		},
	}, ports.TaskPolicy{
		MaxRetries: 1,
		MinBackoff: time.Millisecond,
		TimeLimit:  5 * time.Millisecond,
	})
	pool.Wait()

	if got := attempts.Load(); got != 2 {
		t.Fatalf("timed-out attempts must be retried, got %d attempts", got)
	}
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()

	pool := newTestPool(1)
	var attempts atomic.Int32

	pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			panic("boom")
		},
	}, ports.TaskPolicy{MaxRetries: 1, MinBackoff: time.Millisecond})
	pool.Wait()

	if got := attempts.Load(); got != 2 {
		t.Fatalf("a panicking attempt counts as a failure, got %d attempts", got)
	}
}

func TestInflightDeduplication(t *testing.T) {
	t.Parallel()

	pool := newTestPool(2)
	release := make(chan struct{})
	var runs atomic.Int32

	task := ports.Task{
		Name: "verify",
		Key:  42,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	}

	if !pool.Submit(context.Background(), task, ports.TaskPolicy{}) {
		t.Fatal("first submit should be accepted")
	}
	if pool.Submit(context.Background(), task, ports.TaskPolicy{}) {
		t.Fatal("duplicate (name, key) must be rejected while in flight")
	}

	other := task
	other.Key = 43
	if !pool.Submit(context.Background(), other, ports.TaskPolicy{}) {
		t.Fatal("different key must be accepted")
	}

	close(release)
	pool.Wait()

	if !pool.Submit(context.Background(), task, ports.TaskPolicy{}) {
		t.Fatal("finished task must be submittable again")
	}
	pool.Wait()

	if got := runs.Load(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3
	pool := newTestPool(workers)

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	release := make(chan struct{})

	for i := 0; i < 12; i++ {
		key := int64(i)
		pool.Submit(context.Background(), ports.Task{
			Name: "verify",
			Key:  key,
			Run: func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				<-release

				mu.Lock()
				current--
				mu.Unlock()
				return nil
			},
		}, ports.TaskPolicy{})
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if peak > workers {
		mu.Unlock()
		t.Fatalf("concurrency exceeded bound: peak %d > %d", peak, workers)
	}
	mu.Unlock()

	close(release)
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak != workers {
		t.Fatalf("expected the pool to saturate at %d workers, saw %d", workers, peak)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	policy := ports.TaskPolicy{MinBackoff: 10 * time.Second, MaxBackoff: 60 * time.Second}

	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i, w := range want {
		if got := backoffDelay(policy, i+1); got != w {
			t.Fatalf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}
}

func TestSubmitCanceledContext(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(context.Background(), ports.Task{
		Name: "verify",
		Key:  1,
		Run: func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		},
	}, ports.TaskPolicy{})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	pool.Submit(ctx, ports.Task{
		Name: "verify",
		Key:  2,
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	}, ports.TaskPolicy{})

	close(block)
	pool.Wait()

	if ran.Load() {
		t.Fatal("a task waiting on a canceled context must not run")
	}
}
