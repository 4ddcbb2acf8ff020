package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single upstream request that multiple callers may wait for.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer collapses concurrent requests for the same key into one upstream call.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight request for key if there is one, otherwise starts fn.
// shared reports whether the caller joined an existing request. fn runs under a
// context detached from the starting caller's cancellation and bounded by the
// coalescer timeout, so one caller giving up never fails the others. Waiting
// respects each caller's own ctx.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (T, error)) (result T, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		rc.inFlight[key] = req
		fetchCtx, cancelFetch := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		go func() {
			defer cancelFetch()
			req.result, req.err = fn(fetchCtx)
			rc.mu.Lock()
			delete(rc.inFlight, key)
			rc.mu.Unlock()
			close(req.done)
		}()
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	select {
	case <-req.done:
		return req.result, exists, req.err
	case <-waitCtx.Done():
		var zero T
		return zero, exists, waitCtx.Err()
	}
}
