package sac

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	const size = 2
	pool := NewWorkerPool(size, nil)

	var current, max int64
	var wg sync.WaitGroup
	release := make(chan struct{})

	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := pool.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&max)
				if n <= old || atomic.CompareAndSwapInt64(&max, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt64(&current, -1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt64(&max) > size {
		t.Errorf("observed %d concurrent workers, pool size is %d", max, size)
	}
}

func TestWorkerPool_Drain_WaitsForInFlight(t *testing.T) {
	pool := NewWorkerPool(1, nil)

	started := make(chan struct{})
	finish := make(chan struct{})
	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-finish
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	drained := make(chan error, 1)
	go func() { drained <- pool.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatalf("Drain returned before the in-flight task finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(finish)
	if err := <-drained; err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestWorkerPool_Drain_ContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	block := make(chan struct{})
	defer close(block)

	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		<-block
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Drain(ctx); err == nil {
		t.Errorf("expected Drain to fail while a task is still in flight and ctx expires")
	}
}

func TestWorkerPool_ReportsBusyCount(t *testing.T) {
	var busy int
	var mu sync.Mutex
	pool := NewWorkerPool(3, func(n int) {
		mu.Lock()
		busy = n
		mu.Unlock()
	})

	block := make(chan struct{})
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		if err := pool.Submit(context.Background(), func(ctx context.Context) {
			started <- struct{}{}
			<-block
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	<-started
	<-started
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := busy
	mu.Unlock()
	if got != 2 {
		t.Errorf("busy = %d, want 2", got)
	}
	close(block)
}
