package daemon

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/ipc"
	"github.com/voxelcore/voxeld/internal/logging"
	"github.com/voxelcore/voxeld/internal/metrics"
	"github.com/voxelcore/voxeld/internal/observability"
	"github.com/voxelcore/voxeld/internal/registry"
	"github.com/voxelcore/voxeld/internal/rpc"
	"github.com/voxelcore/voxeld/internal/workerpool"

	"go.opentelemetry.io/otel/trace"
)

// handleEngineOp is the Engine Guard's Handler: the one place that knows
// how to route an EngineOp.Kind to a Facade method. It runs with the
// guard's single token held, so it never needs locking of its own.
//
// status, version, and list_methods never reach this switch: they report
// state the Facade doesn't own (connection counts, queue depth, artifact
// totals, guard mode) and are answered directly by dispatch. Ditto
// execute_script, which is routed straight to the script engine so a
// script's own per-call engine.* invocations can each separately acquire
// this same token without deadlocking against themselves.
func (s *Supervisor) handleEngineOp(op *domain.EngineOp) (any, *domain.EngineError) {
	f := s.facade
	switch op.Kind {
	case domain.OpCreateProject:
		return f.CreateProject(op.Params.(domain.CreateProjectParams))
	case domain.OpLoadProject:
		return f.LoadProject(op.Params.(domain.LoadProjectParams))
	case domain.OpSaveProject:
		return f.SaveProject(op.Params.(domain.SaveProjectParams))
	case domain.OpAddVoxel:
		return struct{}{}, f.AddVoxel(op.Params.(domain.AddVoxelParams))
	case domain.OpRemoveVoxel:
		return struct{}{}, f.RemoveVoxel(op.Params.(domain.RemoveVoxelParams))
	case domain.OpGetVoxel:
		return f.GetVoxel(op.Params.(domain.GetVoxelParams))
	case domain.OpAddVoxelsBatch:
		return f.AddVoxelsBatch(op.Params.(domain.AddVoxelsBatchParams))
	case domain.OpPaintVoxels:
		return f.PaintVoxels(op.Params.(domain.PaintVoxelsParams))
	case domain.OpFloodFill:
		return f.FloodFill(op.Params.(domain.FloodFillParams))
	case domain.OpProceduralShape:
		return f.ProceduralShape(op.Params.(domain.ProceduralShapeParams))
	case domain.OpCreateLayer:
		return f.CreateLayer(op.Params.(domain.CreateLayerParams))
	case domain.OpDeleteLayer:
		return struct{}{}, f.DeleteLayer(op.Params.(domain.DeleteLayerParams))
	case domain.OpMergeLayers:
		return struct{}{}, f.MergeLayers(op.Params.(domain.MergeLayersParams))
	case domain.OpSetLayerVisibility:
		return struct{}{}, f.SetLayerVisibility(op.Params.(domain.SetLayerVisibilityParams))
	case domain.OpListLayers:
		return f.ListLayers(), nil
	case domain.OpGetVoxelsRegion:
		return f.GetVoxelsRegion(op.Params.(domain.GetVoxelsRegionParams))
	case domain.OpGetLayerVoxels:
		return f.GetLayerVoxels(op.Params.(domain.GetLayerVoxelsParams))
	case domain.OpGetBoundingBox:
		return f.GetBoundingBox(), nil
	case domain.OpGetColorHistogram:
		return f.GetColorHistogram(), nil
	case domain.OpGetUniqueColors:
		return f.GetUniqueColors(), nil
	case domain.OpFindVoxelsByColor:
		return f.FindVoxelsByColor(op.Params.(domain.FindVoxelsByColorParams))
	case domain.OpExportModel:
		return f.ExportModel(op.Params.(domain.ExportModelParams))
	case domain.OpRenderScene:
		return s.renderScene(op.Params.(domain.RenderSceneParams))
	case domain.OpPing:
		return f.Ping(), nil
	case domain.OpEcho:
		return f.Echo(op.Params.(domain.EchoParams)), nil
	default:
		return nil, domain.NewEngineError(domain.ErrInternal, "unhandled op kind %v", op.Kind)
	}
}

// renderScene runs RenderScene through the artifact manager and, for
// ReturnInlinePath, reads the artifact back and embeds it as base64: the
// inline return mode the method reference names as optional alongside the
// required managed_file mode. The managed_file fields are populated
// identically either way.
func (s *Supervisor) renderScene(p domain.RenderSceneParams) (domain.RenderSceneResult, *domain.EngineError) {
	res, eerr := s.facade.RenderScene(p, s.artifacts, s.cfg.ArtifactTTL())
	if eerr != nil {
		return domain.RenderSceneResult{}, eerr
	}
	if p.ReturnMode == domain.ReturnInlinePath {
		s.artifacts.Hold(res.File.Path)
		defer s.artifacts.Release(res.File.Path)
		data, err := os.ReadFile(res.File.Path)
		if err != nil {
			return domain.RenderSceneResult{}, domain.NewEngineError(domain.ErrIoError, "read render artifact: %v", err)
		}
		res.File.Data = base64.StdEncoding.EncodeToString(data)
	}
	return res, nil
}

// dispatch is the ipc.Dispatcher the daemon hands to the Listener. It
// resolves the method, translates and decodes params, and either answers
// directly (status/version/list_methods) or hands the request to the
// Worker Pool with a Submit closure appropriate to the method's category.
func (s *Supervisor) dispatch(c *ipc.Connection, req rpc.Request, entry *ipc.PendingEntry) {
	start := time.Now()
	ctx, span := observability.StartServerSpan(context.Background(), req.Method)
	if entry != nil {
		span.SetAttributes(observability.AttrRequestID.String(entry.ID.String()))
	}
	span.SetAttributes(observability.AttrConnectionID.Int64(int64(c.ID)))

	spec, ok := s.registry.Resolve(req.Method)
	if !ok {
		observability.SetSpanError(span, domain.NewEngineError(domain.ErrInternal, "method not found"))
		span.End()
		s.replyError(c, req, entry, &rpc.Error{Code: rpc.CodeMethodNotFound, Message: "method not found: " + req.Method}, start)
		return
	}
	span.SetAttributes(observability.AttrMethod.String(spec.Name))

	params, rerr := s.registry.Decode(spec, req.Params)
	if rerr != nil {
		observability.SetSpanError(span, domain.NewEngineError(domain.ErrInvalidParams, "%s", rerr.Message))
		span.End()
		s.replyError(c, req, entry, rerr, start)
		return
	}

	switch spec.Name {
	case "status":
		s.submitDirect(c, req, entry, ctx, span, start, spec.Name, domain.OpStatus, func() (any, *domain.EngineError) { return s.statusResult(), nil })
		return
	case "version":
		s.submitDirect(c, req, entry, ctx, span, start, spec.Name, domain.OpVersion, func() (any, *domain.EngineError) { return s.versionResult(), nil })
		return
	case "list_methods":
		s.submitDirect(c, req, entry, ctx, span, start, spec.Name, domain.OpStatus, func() (any, *domain.EngineError) { return s.registry.Names(), nil })
		return
	}

	cancelFn := func() bool { return entry != nil && entry.Cancelled() }
	op := &domain.EngineOp{Kind: spec.Kind, Params: params, CancelFn: cancelFn}

	submit := s.guard.Submit
	if spec.Name == "execute_script" {
		reqID := req.ID.String()
		submit = func(ctx context.Context, op *domain.EngineOp) (any, *domain.EngineError) {
			return s.runScript(ctx, op, reqID)
		}
	}

	job := workerpool.Job{
		Op:     op,
		Submit: submit,
		Ctx:    ctx,
		Deliver: func(result any, eerr *domain.EngineError) {
			s.finish(c, req, entry, span, spec.Name, start, result, eerr)
		},
	}

	if perr := s.pool.Submit(job); perr != nil {
		span.End()
		s.replyError(c, req, entry, registry.ErrorToRPC(perr), start)
	}
}

// submitDirect answers a daemon-wide query (status/version/list_methods)
// through the same Worker Pool queue as every other request without ever
// touching the Engine Guard, since these methods report state the Facade
// doesn't own.
func (s *Supervisor) submitDirect(c *ipc.Connection, req rpc.Request, entry *ipc.PendingEntry, ctx context.Context, span trace.Span, start time.Time, method string, kind domain.OpKind, fn func() (any, *domain.EngineError)) {
	op := &domain.EngineOp{Kind: kind, CancelFn: func() bool { return entry != nil && entry.Cancelled() }}
	job := workerpool.Job{
		Op:     op,
		Submit: func(context.Context, *domain.EngineOp) (any, *domain.EngineError) { return fn() },
		Ctx:    ctx,
		Deliver: func(result any, eerr *domain.EngineError) {
			s.finish(c, req, entry, span, method, start, result, eerr)
		},
	}
	if perr := s.pool.Submit(job); perr != nil {
		span.End()
		s.replyError(c, req, entry, registry.ErrorToRPC(perr), start)
	}
}

// runScript bypasses the Engine Guard at the outer level: the script
// engine's individual engine.* calls each separately call host.RunOp,
// which acquires and releases the guard token one at a time. Wrapping the
// whole script run in a single guard.Submit would deadlock the first such
// call against its own enclosing token.
func (s *Supervisor) runScript(ctx context.Context, op *domain.EngineOp, reqID string) (any, *domain.EngineError) {
	p := op.Params.(domain.ExecuteScriptParams)
	source := p.Source
	if source == "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, domain.NewEngineError(domain.ErrIoError, "read script file: %v", err)
		}
		source = string(data)
	}

	timeout := s.cfg.ScriptTimeoutDefault()
	if p.TimeoutMs > 0 {
		timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	if max := s.cfg.ScriptTimeoutMax(); timeout > max {
		timeout = max
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := s.scriptEngine.Run(runCtx, source, timeout)

	out := domain.ExecuteScriptResult{Success: result.Success}
	if result.Err != nil {
		out.Code = 1
		out.Message = result.Err.Error()
	}

	if store := logging.GetScriptOutputStore(); store != nil {
		stderr := ""
		if result.Err != nil {
			stderr = result.Err.Error()
		}
		store.Store(reqID, "execute_script", result.Output, stderr)
	}

	return out, nil
}

func (s *Supervisor) finish(c *ipc.Connection, req rpc.Request, entry *ipc.PendingEntry, span trace.Span, method string, start time.Time, result any, eerr *domain.EngineError) {
	durationMs := time.Since(start).Milliseconds()
	success := eerr == nil
	cancelled := entry != nil && entry.Cancelled()
	metrics.Global().RecordRequest(method, durationMs, success, cancelled)

	if eerr != nil {
		observability.SetSpanError(span, eerr)
	} else {
		observability.SetSpanOK(span)
	}
	span.End()

	logEntry := &logging.RequestLog{
		RequestID:    req.ID.String(),
		Method:       method,
		ConnectionID: c.ID,
		DurationMs:   durationMs,
		Success:      success,
		Cancelled:    cancelled,
	}
	if eerr != nil {
		logEntry.Error = eerr.Error()
	}
	logging.Default().Log(logEntry)

	if entry == nil {
		// Notification: no response is ever sent, successful or not.
		return
	}
	if cancelled {
		c.Discard(req.ID)
		return
	}
	if eerr != nil {
		c.Deliver(req.ID, rpc.NewErrorResponse(req.ID, registry.ErrorToRPC(eerr)))
		return
	}

	c.Deliver(req.ID, rpc.NewResultResponse(req.ID, result))
}

func (s *Supervisor) replyError(c *ipc.Connection, req rpc.Request, entry *ipc.PendingEntry, rerr *rpc.Error, start time.Time) {
	durationMs := time.Since(start).Milliseconds()
	metrics.Global().RecordRequest(req.Method, durationMs, false, false)
	logging.Default().Log(&logging.RequestLog{
		RequestID:    req.ID.String(),
		Method:       req.Method,
		ConnectionID: c.ID,
		DurationMs:   durationMs,
		Success:      false,
		Error:        rerr.Message,
	})
	if entry == nil {
		return
	}
	c.Deliver(req.ID, rpc.NewErrorResponse(req.ID, rerr))
}

func (s *Supervisor) statusResult() domain.StatusResult {
	count, totalBytes := s.artifacts.Stats()
	mode := "healthy"
	if s.guard.Degraded() {
		mode = "degraded"
	}
	return domain.StatusResult{
		Version:              daemonVersion,
		UptimeSec:            int64(time.Since(s.startTime).Seconds()),
		ActiveConnections:    s.listener.ActiveConnections(),
		PendingRequestsTotal: s.listener.PendingRequestsTotal(),
		WorkerQueueDepth:     s.pool.QueueDepth(),
		ArtifactCount:        count,
		ArtifactBytes:        totalBytes,
		Mode:                 mode,
	}
}

type versionInfo struct {
	Version  string `json:"version"`
	Protocol string `json:"protocol"`
}

func (s *Supervisor) versionResult() versionInfo {
	return versionInfo{Version: daemonVersion, Protocol: "2.0"}
}
