package registry

import (
	"encoding/json"
	"testing"

	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/rpc"
)

func TestResolveBareName(t *testing.T) {
	r := New()
	spec, ok := r.Resolve("ping")
	if !ok {
		t.Fatal("expected ping to resolve")
	}
	if spec.Name != "ping" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestResolveGoxelPrefixAlias(t *testing.T) {
	r := New()
	bare, ok := r.Resolve("add_voxel")
	if !ok {
		t.Fatal("expected add_voxel to resolve")
	}
	prefixed, ok := r.Resolve("goxel.add_voxel")
	if !ok {
		t.Fatal("expected goxel.add_voxel to resolve")
	}
	if bare != prefixed {
		t.Fatal("expected goxel.-prefixed alias to resolve to the same Spec as the bare name")
	}
}

func TestResolveUnknownMethod(t *testing.T) {
	r := New()
	if _, ok := r.Resolve("does_not_exist"); ok {
		t.Fatal("expected unknown method to fail resolution")
	}
	if _, ok := r.Resolve("goxel.does_not_exist"); ok {
		t.Fatal("expected unknown goxel.-prefixed method to fail resolution")
	}
}

func TestNamesIncludesCoreMethods(t *testing.T) {
	r := New()
	names := r.Names()
	want := []string{"create_project", "add_voxel", "render_scene", "execute_script", "ping", "status", "version", "list_methods"}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Fatalf("expected Names() to include %q, got %v", w, names)
		}
	}
}

func TestTranslatePositionalArray(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("create_project")
	obj, rerr := r.Translate(spec, json.RawMessage(`["scene", 16, 16, 16]`))
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	if obj["name"] != "scene" {
		t.Fatalf("expected name to be zipped from position 0, got %v", obj["name"])
	}
	if obj["depth"] != float64(16) {
		t.Fatalf("expected depth to be zipped from position 3, got %v", obj["depth"])
	}
}

func TestTranslatePositionalArrayTooManyValues(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("create_project")
	_, rerr := r.Translate(spec, json.RawMessage(`["scene", 16, 16, 16, "extra"]`))
	if rerr == nil {
		t.Fatal("expected an error for excess positional values")
	}
	if rerr.Code != rpc.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %d", rerr.Code)
	}
}

func TestTranslateNamedObject(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("add_voxel")
	obj, rerr := r.Translate(spec, json.RawMessage(`{"x":1,"y":2,"z":3,"color":[255,0,0,255]}`))
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	if obj["x"] != float64(1) {
		t.Fatalf("expected x=1, got %v", obj["x"])
	}
}

func TestTranslateAbsentParams(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("ping")
	obj, rerr := r.Translate(spec, nil)
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	if len(obj) != 0 {
		t.Fatalf("expected an empty object for absent params, got %v", obj)
	}
}

func TestTranslateNullParams(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("ping")
	obj, rerr := r.Translate(spec, json.RawMessage(`null`))
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	if len(obj) != 0 {
		t.Fatalf("expected an empty object for null params, got %v", obj)
	}
}

func TestDecodeInvalidParamsShape(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("create_project")
	_, rerr := r.Decode(spec, json.RawMessage(`{"width":16,"height":16,"depth":16}`))
	if rerr == nil {
		t.Fatal("expected a missing-name decode error")
	}
	if rerr.Code != rpc.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %d", rerr.Code)
	}
	data, ok := rerr.Data.(map[string]string)
	if !ok {
		t.Fatalf("expected error.data to be a map[string]string, got %T", rerr.Data)
	}
	if data["method"] != "create_project" {
		t.Fatalf("expected error.data.method == create_project, got %v", data)
	}
}

func TestDecodeSuccess(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("add_voxel")
	params, rerr := r.Decode(spec, json.RawMessage(`[1,2,3,[255,0,0,255]]`))
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	p, ok := params.(domain.AddVoxelParams)
	if !ok {
		t.Fatalf("expected domain.AddVoxelParams, got %T", params)
	}
	if p.X != 1 || p.Y != 2 || p.Z != 3 {
		t.Fatalf("unexpected decoded coordinates: %+v", p)
	}
}

func TestDecodeExportModelRejectsUnsupportedFormat(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("export_model")
	_, rerr := r.Decode(spec, json.RawMessage(`{"format":"not_a_format","path":"out.bin"}`))
	if rerr == nil {
		t.Fatal("expected an unsupported-format decode error")
	}
	if rerr.Code != rpc.CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %d", rerr.Code)
	}
	data, ok := rerr.Data.(map[string]string)
	if !ok || data["field"] != "format" {
		t.Fatalf("expected error.data.field == format, got %v", rerr.Data)
	}
}

func TestDecodeSaveProjectMissingPathNamesField(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("save_project")
	_, rerr := r.Decode(spec, json.RawMessage(`{}`))
	if rerr == nil {
		t.Fatal("expected a missing-path decode error")
	}
	data, ok := rerr.Data.(map[string]string)
	if !ok || data["field"] != "path" {
		t.Fatalf("expected error.data.field == path, got %v", rerr.Data)
	}
}

func TestDecodeRenderSceneRejectsUnknownReturnMode(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("render_scene")
	_, rerr := r.Decode(spec, json.RawMessage(`{"width":64,"height":64,"return_mode":"carrier_pigeon"}`))
	if rerr == nil {
		t.Fatal("expected an unknown-return_mode decode error")
	}
}

func TestDecodeExecuteScriptRequiresSourceOrPath(t *testing.T) {
	r := New()
	spec, _ := r.Resolve("execute_script")
	_, rerr := r.Decode(spec, json.RawMessage(`{}`))
	if rerr == nil {
		t.Fatal("expected an error when neither script source nor path is given")
	}
}

func TestErrorToRPCVoxelNotFoundMapsToOperationFailed(t *testing.T) {
	eerr := domain.NewEngineError(domain.ErrVoxelNotFound, "no voxel at (1,2,3)")
	rerr := ErrorToRPC(eerr)
	if rerr.Code != rpc.CodeOperationFailed {
		t.Fatalf("expected CodeOperationFailed for ErrVoxelNotFound, got %d", rerr.Code)
	}
}

func TestErrorToRPCLayerNotFoundDistinctFromVoxelNotFound(t *testing.T) {
	layerErr := ErrorToRPC(domain.NewEngineError(domain.ErrLayerNotFound, "no such layer"))
	voxelErr := ErrorToRPC(domain.NewEngineError(domain.ErrVoxelNotFound, "no such voxel"))
	if layerErr.Code == voxelErr.Code {
		t.Fatal("expected layer-not-found and voxel-not-found to map to distinct RPC codes")
	}
	if layerErr.Code != rpc.CodeLayerNotFound {
		t.Fatalf("expected CodeLayerNotFound, got %d", layerErr.Code)
	}
}
