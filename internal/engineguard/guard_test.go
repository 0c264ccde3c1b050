package engineguard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

func echoHandler(op *domain.EngineOp) (any, *domain.EngineError) {
	return op.Params, nil
}

func TestSubmitInvokesHandler(t *testing.T) {
	g := New(echoHandler)
	result, eerr := g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing, Params: "hello"})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if result != "hello" {
		t.Fatalf("expected handler's result to be returned, got %v", result)
	}
}

func TestSubmitSerializesConcurrentCallers(t *testing.T) {
	var active int32
	var maxActive int32
	g := New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing})
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&maxActive) != 1 {
		t.Fatalf("expected at most 1 concurrently active handler invocation, observed %d", maxActive)
	}
}

func TestSubmitRejectsAlreadyCancelledOp(t *testing.T) {
	called := false
	g := New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		called = true
		return nil, nil
	})
	op := &domain.EngineOp{Kind: domain.OpPing, CancelFn: func() bool { return true }}
	_, eerr := g.Submit(context.Background(), op)
	if eerr == nil || eerr.Kind != domain.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", eerr)
	}
	if called {
		t.Fatal("handler must not be invoked for an already-cancelled op")
	}
}

func TestSubmitRejectsExpiredDeadline(t *testing.T) {
	g := New(echoHandler)
	op := &domain.EngineOp{Kind: domain.OpPing, Deadline: time.Now().Add(-time.Second)}
	_, eerr := g.Submit(context.Background(), op)
	if eerr == nil || eerr.Kind != domain.ErrDeadlineExceeded {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", eerr)
	}
}

func TestSubmitContextDeadlineUnblocksWaiter(t *testing.T) {
	release := make(chan struct{})
	g := New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		<-release
		return nil, nil
	})

	go g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing})
	time.Sleep(5 * time.Millisecond) // let the first Submit acquire the token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, eerr := g.Submit(ctx, &domain.EngineOp{Kind: domain.OpPing})
	if eerr == nil || eerr.Kind != domain.ErrDeadlineExceeded {
		t.Fatalf("expected ErrDeadlineExceeded while waiting for a held token, got %v", eerr)
	}
	close(release)
}

func TestPanicRecoveryEntersDegradedMode(t *testing.T) {
	g := New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		panic("boom")
	})
	_, eerr := g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing})
	if eerr == nil || eerr.Kind != domain.ErrInternal {
		t.Fatalf("expected a recovered-panic EngineError, got %v", eerr)
	}
	if !g.Degraded() {
		t.Fatal("expected guard to be degraded after a recovered panic")
	}
	if g.Mode() != "degraded" {
		t.Fatalf("expected Mode() == degraded, got %q", g.Mode())
	}

	_, eerr = g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing})
	if eerr != ErrDegraded {
		t.Fatalf("expected ErrDegraded for a Submit after a panic, got %v", eerr)
	}
}

func TestResetClearsDegradedMode(t *testing.T) {
	g := New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		panic("boom")
	})
	g.Submit(context.Background(), &domain.EngineOp{Kind: domain.OpPing})
	if !g.Degraded() {
		t.Fatal("expected degraded mode after panic")
	}
	g.Reset()
	if g.Degraded() {
		t.Fatal("expected Reset to clear degraded mode")
	}
	if g.Mode() != "ok" {
		t.Fatalf("expected Mode() == ok after Reset, got %q", g.Mode())
	}
}

func TestRunOpDelegatesToSubmit(t *testing.T) {
	g := New(echoHandler)
	result, eerr := g.RunOp(context.Background(), domain.OpPing, "via script")
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if result != "via script" {
		t.Fatalf("expected RunOp to route through the same handler, got %v", result)
	}
}
