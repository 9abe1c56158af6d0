package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CourtWatch/internal/ports"
)

// Pool executes submitted tasks concurrently, bounded by a worker limit.
// Each task runs in isolation under its policy: per-attempt time limits,
// exponential backoff between attempts, and in-flight deduplication on
// (name, key) so one entity never has two verification units running.
type Pool struct {
	sem    chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

var _ ports.TaskQueue = (*Pool)(nil)

// NewPool builds a pool with the given concurrency bound.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:      make(chan struct{}, workers),
		logger:   logger,
		inflight: make(map[string]struct{}),
		sleep:    sleepCtx,
	}
}

// Submit queues the task for execution. It returns false without running
// anything when an identical (name, key) unit is already in flight; the next
// scheduler tick will naturally resubmit.
func (p *Pool) Submit(ctx context.Context, task ports.Task, policy ports.TaskPolicy) bool {
	if task.Run == nil {
		return false
	}

	key := fmt.Sprintf("%s/%d", task.Name, task.Key)

	p.mu.Lock()
	if _, busy := p.inflight[key]; busy {
		p.mu.Unlock()
		p.logger.Debug("task already in flight, skipping", "task", task.Name, "key", task.Key)
		return false
	}
	p.inflight[key] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, key)
			p.mu.Unlock()
		}()

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-p.sem }()

		p.execute(ctx, task, policy)
	}()

	return true
}

// Wait blocks until every submitted task has finished. Used on shutdown and
// in tests; the scheduler never waits on a tick's fan-out.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) execute(ctx context.Context, task ports.Task, policy ports.TaskPolicy) {
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.runAttempt(ctx, task, policy.TimeLimit)
		if err == nil {
			return
		}

		p.logger.Warn("task attempt failed",
			"task", task.Name, "key", task.Key,
			"attempt", attempt, "of", attempts, "error", err)

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		p.sleep(ctx, backoffDelay(policy, attempt))
	}

	p.logger.Error("task exhausted retries",
		"task", task.Name, "key", task.Key, "error", err)
}

func (p *Pool) runAttempt(ctx context.Context, task ports.Task, limit time.Duration) (err error) {
	attemptCtx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	if err := task.Run(attemptCtx); err != nil {
		return err
	}
	if attemptCtx.Err() != nil {
		return fmt.Errorf("time limit exceeded: %w", attemptCtx.Err())
	}
	return nil
}

// backoffDelay doubles the minimum delay per completed attempt, clamped to
// the policy maximum.
func backoffDelay(policy ports.TaskPolicy, attempt int) time.Duration {
	min := policy.MinBackoff
	if min <= 0 {
		min = time.Second
	}
	delay := min
	for i := 1; i < attempt; i++ {
		delay *= 2
		if policy.MaxBackoff > 0 && delay >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
