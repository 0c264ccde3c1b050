// Package script runs short voxel-editing programs written in a restricted
// subset of JavaScript, executed through goja rather than a real V8
// embedding. Every Scene mutation a script performs goes through the same
// ScriptHost.RunOp call the JSON-RPC method registry uses, so a script can
// never bypass the Engine Guard's single token or observe a Scene state no
// RPC client could also reach.
package script

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/voxelcore/voxeld/internal/domain"
)

// Result is the outcome of running one script: whether it completed, any
// console.log output it produced, and its error classification if it
// didn't.
type Result struct {
	Success bool
	Output  []string
	Err     error
}

// Engine executes scripts against a ScriptHost. One Engine instance is
// stateless and safe to reuse across requests: each Run call gets a fresh
// goja.Runtime, matching the teacher's policy of never sharing a VM
// between untrusted scripts.
type Engine struct {
	host domain.ScriptHost
}

func New(host domain.ScriptHost) *Engine {
	return &Engine{host: host}
}

// cancelFlag returns a cheap check of whether a script's context has
// already been cancelled, reading only ctx.Err(). Nothing calls it at
// present; Guard.RunOp builds the same check inline.
func cancelFlag(ctx context.Context) func() bool {
	return func() bool { return ctx.Err() != nil }
}

// Run executes source, enforcing timeout (30s when non-positive) with a
// timer rather than a context deadline. goja does not preempt running JS
// on its own, so the timer calls vm.Interrupt once the timeout passes, and
// a watcher goroutine does the same when ctx is cancelled; either stops
// even an unbounded loop and fails the run.
func (e *Engine) Run(ctx context.Context, source string, timeout time.Duration) Result {
	vm := goja.New()
	var output []string

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			output = append(output, arg.String())
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	e.bindEngineAPI(ctx, vm)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("script execution cancelled")
		case <-done:
		}
	}()

	_, err := vm.RunString(source)
	close(done)
	if err != nil {
		return Result{Success: false, Output: output, Err: fmt.Errorf("script error: %w", err)}
	}
	return Result{Success: true, Output: output}
}

// bindEngineAPI exposes one `engine` object to the script with a method per
// operation kind that makes sense to call from a script: voxel edits,
// shapes, and flood fill. Analysis/export/render ops stay RPC-only, since a
// script calling RenderScene could otherwise recursively allocate render
// artifacts with no connection to throttle it.
func (e *Engine) bindEngineAPI(ctx context.Context, vm *goja.Runtime) {
	obj := vm.NewObject()
	call := func(kind domain.OpKind, params any) (any, error) {
		res, eerr := e.host.RunOp(ctx, kind, params)
		if eerr != nil {
			return nil, eerr
		}
		return res, nil
	}

	_ = obj.Set("addVoxel", func(x, y, z int32, r, g, b, a uint8) goja.Value {
		_, err := call(domain.OpAddVoxel, domain.AddVoxelParams{X: x, Y: y, Z: z, Color: domain.Color{r, g, b, a}})
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return goja.Undefined()
	})
	_ = obj.Set("removeVoxel", func(x, y, z int32) goja.Value {
		_, err := call(domain.OpRemoveVoxel, domain.RemoveVoxelParams{X: x, Y: y, Z: z})
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return goja.Undefined()
	})
	_ = obj.Set("proceduralShape", func(shape string, ox, oy, oz, size int32, r, g, b, a uint8) goja.Value {
		res, err := call(domain.OpProceduralShape, domain.ProceduralShapeParams{
			Shape:  shape,
			Origin: domain.VoxelPos{X: ox, Y: oy, Z: oz},
			Size:   size,
			Color:  domain.Color{r, g, b, a},
		})
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(res)
	})
	_ = obj.Set("floodFill", func(ox, oy, oz int32, r, g, b, a uint8, maxVoxels int) goja.Value {
		res, err := call(domain.OpFloodFill, domain.FloodFillParams{
			Origin:      domain.VoxelPos{X: ox, Y: oy, Z: oz},
			TargetColor: domain.Color{r, g, b, a},
			MaxVoxels:   maxVoxels,
		})
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(res)
	})
	_ = vm.Set("engine", obj)
}
