package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

func TestClampWorkers(t *testing.T) {
	cases := map[int]int{1: 2, 2: 2, 5: 5, 8: 8, 20: 8}
	for n, want := range cases {
		if got := clampWorkers(n); got != want {
			t.Fatalf("clampWorkers(%d) = %d, want %d", n, got, want)
		}
	}
	if got := clampWorkers(0); got < 2 || got > 8 {
		t.Fatalf("clampWorkers(0) = %d, want a value in [2, 8]", got)
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	p := New(2, 4)
	defer p.Shutdown()

	done := make(chan any, 1)
	job := Job{
		Op: &domain.EngineOp{Kind: domain.OpPing},
		Submit: func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
			return "pong", nil
		},
		Deliver: func(result any, eerr *domain.EngineError) {
			done <- result
		},
		Ctx: context.Background(),
	}
	if eerr := p.Submit(job); eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	select {
	case result := <-done:
		if result != "pong" {
			t.Fatalf("expected pong, got %v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSubmitBackpressureWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(1, 1)
	defer func() {
		close(block)
		p.Shutdown()
	}()

	blocker := Job{
		Op: &domain.EngineOp{Kind: domain.OpPing},
		Submit: func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
			<-block
			return nil, nil
		},
		Deliver: func(result any, eerr *domain.EngineError) {},
		Ctx:     context.Background(),
	}
	// New raises a worker count of 1 to the minimum of 2, so occupy both.
	for i := 0; i < 2; i++ {
		if eerr := p.Submit(blocker); eerr != nil {
			t.Fatalf("unexpected error on blocker submit %d: %v", i, eerr)
		}
		time.Sleep(5 * time.Millisecond) // let a worker pick it up
	}

	filler := Job{
		Op:      &domain.EngineOp{Kind: domain.OpPing},
		Submit:  func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) { return nil, nil },
		Deliver: func(result any, eerr *domain.EngineError) {},
		Ctx:     context.Background(),
	}
	if eerr := p.Submit(filler); eerr != nil {
		t.Fatalf("unexpected error filling the queue: %v", eerr)
	}

	overflow := filler
	if eerr := p.Submit(overflow); eerr != ErrBackpressure {
		t.Fatalf("expected ErrBackpressure once queue capacity is exhausted, got %v", eerr)
	}
}

func TestCancelledOpNeverDelivers(t *testing.T) {
	p := New(2, 4)
	defer p.Shutdown()

	delivered := false
	var mu sync.Mutex
	job := Job{
		Op: &domain.EngineOp{Kind: domain.OpPing, CancelFn: func() bool { return true }},
		Submit: func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
			return "should not matter", nil
		},
		Deliver: func(result any, eerr *domain.EngineError) {
			mu.Lock()
			delivered = true
			mu.Unlock()
		},
		Ctx: context.Background(),
	}
	p.Submit(job)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if delivered {
		t.Fatal("expected a cancelled op to never reach Deliver")
	}
}

func TestQueueDepthReflectsBufferedJobs(t *testing.T) {
	block := make(chan struct{})
	p := New(1, 4)
	defer func() {
		close(block)
		p.Shutdown()
	}()

	blocker := Job{
		Op: &domain.EngineOp{Kind: domain.OpPing},
		Submit: func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
			<-block
			return nil, nil
		},
		Deliver: func(any, *domain.EngineError) {},
		Ctx:     context.Background(),
	}
	// New raises a worker count of 1 to the minimum of 2, so occupy both.
	p.Submit(blocker)
	p.Submit(blocker)
	time.Sleep(5 * time.Millisecond)

	noop := Job{
		Op:      &domain.EngineOp{Kind: domain.OpPing},
		Submit:  func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) { return nil, nil },
		Deliver: func(any, *domain.EngineError) {},
		Ctx:     context.Background(),
	}
	p.Submit(noop)
	p.Submit(noop)

	if depth := p.QueueDepth(); depth != 2 {
		t.Fatalf("expected queue depth 2, got %d", depth)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2, 4)
	p.Shutdown()
	p.Shutdown()
}
