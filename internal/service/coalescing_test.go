package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer[models.Forecast](5 * time.Second)
	var calls int32

	fn := func(context.Context) (models.Forecast, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return models.Forecast{City: "London"}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.Forecast, 10)
	errs := make([]error, 10)
	shared := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "london", fn)
		}(i)
	}
	wg.Wait()

	sharedCount := 0
	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v, want nil", i, errs[i])
		}
		if result.City != "London" {
			t.Errorf("request %d city = %q, want London", i, result.City)
		}
		if shared[i] {
			sharedCount++
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fn call count = %d, want 1", n)
	}
	if sharedCount != 9 {
		t.Errorf("shared = %d, want 9", sharedCount)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[models.Forecast](5 * time.Second)
	wantErr := errors.New("api failure")

	fn := func(context.Context) (models.Forecast, error) {
		time.Sleep(20 * time.Millisecond)
		return models.Forecast{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "london", fn)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer[models.Forecast](100 * time.Millisecond)

	fn := func(context.Context) (models.Forecast, error) {
		time.Sleep(200 * time.Millisecond)
		return models.Forecast{City: "London"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := coalescer.GetOrDo(ctx, "london", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context deadline exceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[int](5 * time.Second)
	var calls int32

	fn := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}(fmt.Sprintf("city-%d", i))
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 5 {
		t.Errorf("fn call count = %d, want 5 (no coalescing for different keys)", n)
	}
}

func TestRequestCoalescer_SequentialCallsRefetch(t *testing.T) {
	coalescer := newRequestCoalescer[int](time.Second)
	var calls int32
	fn := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	first, _, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	second, shared, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	if first != 1 || second != 2 || shared {
		t.Errorf("got %d, %d (shared %v); completed requests must not be reused", first, second, shared)
	}
}

func TestRequestCoalescer_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	coalescer := newRequestCoalescer[int](5 * time.Second)
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(leaderCtx, "k", fn)
		leaderErr <- err
	}()
	<-started

	followerDone := make(chan struct{})
	var (
		got       int
		shared    bool
		followErr error
	)
	go func() {
		defer close(followerDone)
		got, shared, followErr = coalescer.GetOrDo(context.Background(), "k", fn)
	}()

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	// give the follower time to join before the fetch completes
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-followerDone

	if followErr != nil || got != 42 || !shared {
		t.Errorf("follower = %d, shared %v, err %v; want 42, true, nil", got, shared, followErr)
	}
}
