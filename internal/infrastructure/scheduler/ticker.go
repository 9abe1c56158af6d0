package scheduler

import (
	"context"
	"sync"
	"time"

	"CourtWatch/internal/ports"
)

// Ticker drives the scheduling job on a fixed interval, firing once
// immediately on start.
type Ticker struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.TickDriver = (*Ticker)(nil)

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Start begins ticking. Calling Start on a running ticker is a no-op.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	// the goroutine holds its own reference so Stop never races the loop
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case now := <-ticker.C:
				job(now)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine. A job already in flight finishes.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}
