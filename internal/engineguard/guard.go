// Package engineguard serializes all access to the voxel Scene behind a
// single mutual-exclusion token.
//
// # Design rationale
//
// The Engine Facade itself does no locking: every call it exposes assumes
// exclusive access to the Scene for its duration. The Guard is the only
// component that holds a *engine.Facade, and it grants access to exactly
// one caller at a time by handing out possession of an internal token,
// mirroring the single-slot acquisition discipline the VM pool this was
// grounded on uses for a pooled VM's inflight slot.
//
// # Concurrency model
//
// A sync.Mutex protects the token; a sync.Cond signals waiters when the
// token is released. Callers that arrive with a context deadline are woken
// on that deadline even if the token is still held, and return
// ErrDeadlineExceeded rather than blocking forever. This fixes the
// save-hangs-forever class of bug where a render or export blocked an
// unrelated caller indefinitely: every Submit either returns a result or
// gives up by its caller's own deadline, never later.
//
// # Panic recovery
//
// A panic inside the Facade is recovered at the Guard boundary. The Scene
// is assumed to be in an indeterminate state afterward, so the Guard enters
// Degraded mode: every subsequent Submit fails fast with ErrDegraded until
// Reset is called, rather than risking the corrupted Scene being read or
// written again.
package engineguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

// ErrDegraded is returned by Submit once a panic has been recovered and the
// guard has not yet been reset.
var ErrDegraded = domain.NewEngineError(domain.ErrInternal, "engine is in degraded mode after a recovered panic")

// Handler is implemented by a caller of Submit that actually runs the
// operation against the Facade. It lets engineguard stay independent of
// the Facade's concrete method set; the dispatcher supplies the closure
// that knows how to route an EngineOp.Kind to a Facade method.
type Handler func(op *domain.EngineOp) (any, *domain.EngineError)

// Guard owns the single serialization token. Zero value is not usable;
// construct with New.
type Guard struct {
	mu       sync.Mutex
	cond     *sync.Cond
	held     bool
	degraded bool
	resets   int64

	handler Handler
}

func New(handler Handler) *Guard {
	g := &Guard{handler: handler}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Submit acquires the token, invokes the handler with op, and releases the
// token before returning. If ctx is cancelled or its deadline elapses
// before the token is acquired, Submit returns without ever invoking
// handler.
func (g *Guard) Submit(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	if op.Cancelled() {
		return nil, domain.NewEngineError(domain.ErrCancelled, "request cancelled before dispatch")
	}
	if op.Expired(time.Now()) {
		return nil, domain.NewEngineError(domain.ErrDeadlineExceeded, "request deadline exceeded before dispatch")
	}

	return g.invoke(op)
}

// invoke runs the handler with panic recovery. A recovered panic flips the
// guard into degraded mode; the token is still released by Submit's defer
// so the next caller can observe ErrDegraded instead of deadlocking.
func (g *Guard) invoke(op *domain.EngineOp) (result any, eerr *domain.EngineError) {
	defer func() {
		if r := recover(); r != nil {
			g.mu.Lock()
			g.degraded = true
			g.mu.Unlock()
			eerr = domain.NewEngineError(domain.ErrInternal, "engine panic recovered: %v", r)
		}
	}()
	return g.handler(op)
}

func (g *Guard) acquire(ctx context.Context) *domain.EngineError {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.degraded {
		return ErrDegraded
	}

	if ctx.Done() == nil {
		for g.held {
			g.cond.Wait()
			if g.degraded {
				return ErrDegraded
			}
		}
		g.held = true
		return nil
	}

	// A context with a deadline needs a waiter that can be woken by either
	// the cond or the deadline; spin off a goroutine that broadcasts when
	// the context ends so cond.Wait unblocks promptly rather than on the
	// next unrelated Release.
	done := ctx.Done()
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-done:
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		case <-stopWatch:
		}
	}()

	for g.held {
		select {
		case <-done:
			return domain.NewEngineError(domain.ErrDeadlineExceeded, "timed out waiting for engine access: %v", ctx.Err())
		default:
		}
		g.cond.Wait()
		if g.degraded {
			return ErrDegraded
		}
	}
	g.held = true
	return nil
}

func (g *Guard) release() {
	g.mu.Lock()
	g.held = false
	g.cond.Signal()
	g.mu.Unlock()
}

// Reset clears degraded mode, allowing Submit to resume dispatching to the
// handler. Intended to be called after the daemon has reloaded or
// recreated the underlying Facade, since the Scene itself cannot be
// trusted to recover on its own after a panic.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.degraded = false
	g.resets++
	g.mu.Unlock()
}

// Degraded reports whether the guard is currently refusing Submit calls.
func (g *Guard) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

// Mode returns "ok" or "degraded". The "status" RPC method does not use
// it: that method reads Degraded and reports "healthy" or "degraded".
func (g *Guard) Mode() string {
	if g.Degraded() {
		return "degraded"
	}
	return "ok"
}

// RunOp implements domain.ScriptHost, letting scripts reach the Scene
// through the same token every RPC caller uses. A script-initiated op
// never carries a deadline of its own; it inherits the deadline of the
// execute_script call it is running inside via ctx.
func (g *Guard) RunOp(ctx context.Context, kind domain.OpKind, params any) (any, *domain.EngineError) {
	return g.Submit(ctx, &domain.EngineOp{Kind: kind, Params: params, CancelFn: func() bool { return ctx.Err() != nil }})
}

func (g *Guard) String() string {
	return fmt.Sprintf("Guard{held=%v degraded=%v resets=%d}", g.held, g.degraded, g.resets)
}
