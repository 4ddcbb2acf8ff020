package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()
	tracker.Increment()
	if got := tracker.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	tracker.Decrement()
	tracker.Decrement()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tracker.WaitForZero(ctx, 5*time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForZero() error = %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForZero() error = %v, want context.Canceled", err)
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	inside := make(chan int64, 1)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inside <- InFlightCount()
	}))

	before := InFlightCount()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if got := <-inside; got != before+1 {
		t.Errorf("in-flight during request = %d, want %d", got, before+1)
	}
	if got := InFlightCount(); got != before {
		t.Errorf("in-flight after request = %d, want %d", got, before)
	}
}
