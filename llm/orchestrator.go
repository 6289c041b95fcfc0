package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	// defaultMaxAttempts bounds the retry loop, first try included.
	defaultMaxAttempts = 3

	rateLimitUnit     = 1000 * time.Millisecond
	serverErrorUnit   = 2000 * time.Millisecond
	networkRetryDelay = 1000 * time.Millisecond
	maxJitter         = 1000 * time.Millisecond
)

// Orchestrator issues logical completion requests against a Provider,
// classifying failures and retrying the transient kinds with exponential
// backoff. Aborted, auth, and safety faults propagate immediately.
type Orchestrator struct {
	provider    Provider
	throttle    *Throttle
	maxAttempts int

	// sleep and jitter are injectable for deterministic tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithThrottle attaches a shared request throttle.
func WithThrottle(t *Throttle) OrchestratorOption {
	return func(o *Orchestrator) { o.throttle = t }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// NewOrchestrator wraps a provider with the retry policy.
func NewOrchestrator(p Provider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:    p,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepContext,
		jitter:      func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit issues one logical completion request and returns the full text.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Response, error) {
	return o.submit(ctx, req, nil)
}

// SubmitStream issues one logical completion request in streaming mode.
// onChunk is invoked for every received fragment of every attempt; a retried
// attempt starts accumulation over from empty.
func (o *Orchestrator) SubmitStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return o.submit(ctx, req, onChunk)
}

func (o *Orchestrator) submit(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	if o.throttle != nil {
		if err := o.throttle.Wait(ctx); err != nil {
			return nil, abortedFault(err)
		}
	}

	var last *Fault
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, abortedFault(ctx.Err())
		}
		if o.throttle != nil {
			o.throttle.Observe()
		}

		var resp *Response
		var err error
		if onChunk != nil {
			resp, err = o.provider.CompleteStream(ctx, req, onChunk)
		} else {
			resp, err = o.provider.Complete(ctx, req)
		}
		if err == nil {
			return resp, nil
		}

		f := asFault(err)
		last = f
		if !f.Kind.Retryable() {
			f.Attempts = attempt
			return nil, f
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.backoff(f, attempt)
		slog.Warn("llm: retrying request",
			"provider", o.provider.Name(),
			"attempt", attempt,
			"remaining", o.maxAttempts-attempt,
			"kind", f.Kind.String(),
			"delay", delay,
			"error", f.Message,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, abortedFault(err)
		}
	}

	last.Attempts = o.maxAttempts
	return nil, last
}

// backoff computes the wait after a failed attempt (1-based). A server
// Retry-After longer than the computed delay wins.
func (o *Orchestrator) backoff(f *Fault, attempt int) time.Duration {
	var d time.Duration
	switch f.Kind {
	case FaultRateLimited:
		d = time.Duration(1<<attempt)*rateLimitUnit + o.jitter()
	case FaultServer:
		d = time.Duration(1<<attempt)*serverErrorUnit + o.jitter()
	default:
		d = networkRetryDelay + o.jitter()
	}
	if f.RetryAfter > d {
		d = f.RetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
