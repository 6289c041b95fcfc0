package llm

import (
	"context"
	"sync"
	"time"
)

// Throttle tracks the time of the most recent completion request so that
// independent calls can be paced. It is an explicit value shared by pointer
// between the orchestrator and its caller; it takes no part in the retry
// loop itself.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
	now         func() time.Time
}

// NewThrottle creates a throttle with the given minimum spacing between
// requests. A zero or negative interval disables waiting but still records
// lastRequestAt.
func NewThrottle(minInterval time.Duration) *Throttle {
	return &Throttle{minInterval: minInterval, now: time.Now}
}

// Wait blocks until minInterval has elapsed since the last observed request,
// or until ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	var wait time.Duration
	if t.minInterval > 0 && !t.last.IsZero() {
		if elapsed := t.now().Sub(t.last); elapsed < t.minInterval {
			wait = t.minInterval - elapsed
		}
	}
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observe stamps lastRequestAt with the current time.
func (t *Throttle) Observe() {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()
}

// LastRequestAt returns the time of the most recent observed request, or the
// zero time if none has been made.
func (t *Throttle) LastRequestAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
