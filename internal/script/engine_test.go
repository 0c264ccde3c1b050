package script

import (
	"context"
	"testing"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/engine"
	"github.com/voxelcore/voxeld/internal/engineguard"
)

// recordingHost counts RunOp invocations without touching a real Scene,
// for tests that only care whether the script reached the host at all.
type recordingHost struct {
	calls []domain.OpKind
}

func (h *recordingHost) RunOp(ctx context.Context, kind domain.OpKind, params any) (any, *domain.EngineError) {
	h.calls = append(h.calls, kind)
	return nil, nil
}

func newFacadeHost() domain.ScriptHost {
	f := engine.NewFacade()
	g := engineguard.New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		switch op.Kind {
		case domain.OpAddVoxel:
			return nil, f.AddVoxel(op.Params.(domain.AddVoxelParams))
		case domain.OpRemoveVoxel:
			return nil, f.RemoveVoxel(op.Params.(domain.RemoveVoxelParams))
		case domain.OpGetVoxel:
			return f.GetVoxel(op.Params.(domain.GetVoxelParams))
		default:
			return nil, domain.NewEngineError(domain.ErrInternal, "unhandled op in test host")
		}
	})
	return g
}

func TestRunSimpleScriptSucceeds(t *testing.T) {
	e := New(&recordingHost{})
	res := e.Run(context.Background(), `1 + 1`, time.Second)
	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
}

func TestRunScriptSyntaxErrorReportsFailure(t *testing.T) {
	e := New(&recordingHost{})
	res := e.Run(context.Background(), `this is not valid javascript {{{`, time.Second)
	if res.Success {
		t.Fatal("expected a syntax error to fail the script")
	}
	if res.Err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestRunScriptCapturesConsoleLog(t *testing.T) {
	e := New(&recordingHost{})
	res := e.Run(context.Background(), `console.log("hello"); console.log("world");`, time.Second)
	if !res.Success {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Output) != 2 || res.Output[0] != "hello" || res.Output[1] != "world" {
		t.Fatalf("unexpected console output: %v", res.Output)
	}
}

func TestRunScriptTimeoutInterruptsLongLoop(t *testing.T) {
	e := New(&recordingHost{})
	start := time.Now()
	res := e.Run(context.Background(), `while (true) {}`, 20*time.Millisecond)
	if res.Success {
		t.Fatal("expected an infinite loop to be interrupted, not succeed")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected the timeout to interrupt promptly, took %v", elapsed)
	}
}

func TestRunScriptContextCancellationInterrupts(t *testing.T) {
	e := New(&recordingHost{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := e.Run(ctx, `while (true) {}`, 5*time.Second)
	if res.Success {
		t.Fatal("expected context cancellation to interrupt the running script")
	}
}

func TestRunScriptEngineAddVoxelReachesHost(t *testing.T) {
	host := &recordingHost{}
	e := New(host)
	res := e.Run(context.Background(), `engine.addVoxel(1, 2, 3, 255, 0, 0, 255);`, time.Second)
	if !res.Success {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(host.calls) != 1 || host.calls[0] != domain.OpAddVoxel {
		t.Fatalf("expected one OpAddVoxel call, got %v", host.calls)
	}
}

func TestRunScriptEngineAddVoxelThenGetVoxelViaRealEngineGuard(t *testing.T) {
	host := newFacadeHost()
	e := New(host)
	res := e.Run(context.Background(), `engine.addVoxel(4, 5, 6, 9, 8, 7, 255);`, time.Second)
	if !res.Success {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	out, eerr := host.RunOp(context.Background(), domain.OpGetVoxel, domain.GetVoxelParams{X: 4, Y: 5, Z: 6})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	result := out.(domain.GetVoxelResult)
	if !result.Exists {
		t.Fatal("expected the voxel added by the script to be visible through the same Engine Guard")
	}
}

func TestRunScriptEngineErrorPropagatesAsFailure(t *testing.T) {
	host := newFacadeHost()
	e := New(host)
	// removeVoxel on an out-of-range layer reference isn't itself invalid,
	// but addVoxel out of scene bounds is rejected by the facade, which
	// should surface as a failed script rather than a panic escaping Run.
	res := e.Run(context.Background(), `engine.addVoxel(999999, 0, 0, 1, 1, 1, 1);`, time.Second)
	if res.Success {
		t.Fatal("expected an out-of-bounds engine call to fail the script")
	}
}
