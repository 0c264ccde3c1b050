package registry

import (
	"github.com/voxelcore/voxeld/internal/domain"
)

// builtinSpecs enumerates the closed set of methods the daemon recognizes:
// every engine operation from the facade plus ping/echo/status/version/
// list_methods. Unknown methods never reach this table; Registry.Resolve
// returns ok=false for them.
func builtinSpecs() []*Spec {
	return []*Spec{
		{
			Name:      "create_project",
			Kind:      domain.OpCreateProject,
			Mutates:   true,
			Positions: []string{"name", "width", "height", "depth"},
			Decode: func(obj map[string]any) (any, error) {
				if _, err := requireString(obj, "name"); err != nil {
					return nil, err
				}
				return decodeWrap[domain.CreateProjectParams](obj)
			},
		},
		{
			Name:      "load_project",
			Kind:      domain.OpLoadProject,
			Mutates:   true,
			Positions: []string{"path"},
			Decode:    decodeWrap[domain.LoadProjectParams],
		},
		{
			Name:      "save_project",
			Kind:      domain.OpSaveProject,
			Mutates:   false,
			Positions: []string{"path"},
			Decode: func(obj map[string]any) (any, error) {
				path, err := requireString(obj, "path")
				if err != nil {
					return nil, err
				}
				return domain.SaveProjectParams{Path: path}, nil
			},
		},
		{
			Name:      "add_voxel",
			Kind:      domain.OpAddVoxel,
			Mutates:   true,
			Positions: []string{"x", "y", "z", "color", "layer_id"},
			Decode:    decodeWrap[domain.AddVoxelParams],
		},
		{
			Name:      "remove_voxel",
			Kind:      domain.OpRemoveVoxel,
			Mutates:   true,
			Positions: []string{"x", "y", "z", "layer_id"},
			Decode:    decodeWrap[domain.RemoveVoxelParams],
		},
		{
			Name:      "get_voxel",
			Kind:      domain.OpGetVoxel,
			Mutates:   false,
			Positions: []string{"x", "y", "z", "layer_id"},
			Decode:    decodeWrap[domain.GetVoxelParams],
		},
		{
			Name:      "add_voxels_batch",
			Kind:      domain.OpAddVoxelsBatch,
			Mutates:   true,
			Positions: []string{"voxels", "layer_id"},
			Decode:    decodeWrap[domain.AddVoxelsBatchParams],
		},
		{
			Name:      "paint_voxels",
			Kind:      domain.OpPaintVoxels,
			Mutates:   true,
			Positions: []string{"positions", "color", "layer_id"},
			Decode:    decodeWrap[domain.PaintVoxelsParams],
		},
		{
			Name:      "flood_fill",
			Kind:      domain.OpFloodFill,
			Mutates:   true,
			Positions: []string{"origin", "target_color", "layer_id", "max_voxels"},
			Decode:    decodeWrap[domain.FloodFillParams],
		},
		{
			Name:      "procedural_shape",
			Kind:      domain.OpProceduralShape,
			Mutates:   true,
			Positions: []string{"shape", "origin", "size", "color", "layer_id"},
			Decode:    decodeWrap[domain.ProceduralShapeParams],
		},
		{
			Name:      "create_layer",
			Kind:      domain.OpCreateLayer,
			Mutates:   true,
			Positions: []string{"name"},
			Decode:    decodeWrap[domain.CreateLayerParams],
		},
		{
			Name:      "delete_layer",
			Kind:      domain.OpDeleteLayer,
			Mutates:   true,
			Positions: []string{"layer_id"},
			Decode:    decodeWrap[domain.DeleteLayerParams],
		},
		{
			Name:      "merge_layers",
			Kind:      domain.OpMergeLayers,
			Mutates:   true,
			Positions: []string{"source_layer_id", "target_layer_id"},
			Decode:    decodeWrap[domain.MergeLayersParams],
		},
		{
			Name:      "set_layer_visibility",
			Kind:      domain.OpSetLayerVisibility,
			Mutates:   true,
			Positions: []string{"layer_id", "visible"},
			Decode:    decodeWrap[domain.SetLayerVisibilityParams],
		},
		{
			Name:    "list_layers",
			Kind:    domain.OpListLayers,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:      "get_voxels_region",
			Kind:      domain.OpGetVoxelsRegion,
			Mutates:   false,
			Positions: []string{"min", "max", "layer_id"},
			Decode:    decodeWrap[domain.GetVoxelsRegionParams],
		},
		{
			Name:      "get_layer_voxels",
			Kind:      domain.OpGetLayerVoxels,
			Mutates:   false,
			Positions: []string{"layer_id"},
			Decode:    decodeWrap[domain.GetLayerVoxelsParams],
		},
		{
			Name:    "get_bounding_box",
			Kind:    domain.OpGetBoundingBox,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:    "get_color_histogram",
			Kind:    domain.OpGetColorHistogram,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:      "find_voxels_by_color",
			Kind:      domain.OpFindVoxelsByColor,
			Mutates:   false,
			Positions: []string{"color", "layer_id"},
			Decode:    decodeWrap[domain.FindVoxelsByColorParams],
		},
		{
			Name:    "get_unique_colors",
			Kind:    domain.OpGetUniqueColors,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:      "export_model",
			Kind:      domain.OpExportModel,
			Mutates:   false,
			Positions: []string{"format", "path"},
			Decode: func(obj map[string]any) (any, error) {
				p, err := decodeWrap[domain.ExportModelParams](obj)
				if err != nil {
					return nil, err
				}
				params := p.(domain.ExportModelParams)
				if !params.Format.Valid() {
					return nil, fieldErrorf("format", "parameter %q: unsupported format %q", "format", params.Format)
				}
				return params, nil
			},
		},
		{
			Name:      "render_scene",
			Kind:      domain.OpRenderScene,
			Mutates:   false,
			Positions: []string{"width", "height", "camera_preset", "quality", "return_mode"},
			Decode: func(obj map[string]any) (any, error) {
				p, err := decodeWrap[domain.RenderSceneParams](obj)
				if err != nil {
					return nil, err
				}
				params := p.(domain.RenderSceneParams)
				if params.ReturnMode != domain.ReturnManagedFile && params.ReturnMode != domain.ReturnInlinePath {
					return nil, fieldErrorf("return_mode", "parameter %q: expected \"managed_file\" or \"inline_path\"", "return_mode")
				}
				return params, nil
			},
		},
		{
			Name:      "execute_script",
			Kind:      domain.OpExecuteScript,
			Mutates:   true,
			Positions: []string{"script", "path", "name", "timeout_ms"},
			Decode: func(obj map[string]any) (any, error) {
				p, err := decodeWrap[domain.ExecuteScriptParams](obj)
				if err != nil {
					return nil, err
				}
				params := p.(domain.ExecuteScriptParams)
				if params.Source == "" && params.Path == "" {
					return nil, fieldErrorf("script", "one of %q or %q is required", "script", "path")
				}
				return params, nil
			},
		},
		{
			Name:    "status",
			Kind:    domain.OpStatus,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:    "version",
			Kind:    domain.OpVersion,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:    "ping",
			Kind:    domain.OpPing,
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
		{
			Name:      "echo",
			Kind:      domain.OpEcho,
			Mutates:   false,
			Positions: []string{"value"},
			Decode:    decodeWrap[domain.EchoParams],
		},
		{
			Name:    "list_methods",
			Kind:    domain.OpVersion, // list_methods never reaches the Engine Guard; see dispatcher
			Mutates: false,
			Decode:  func(map[string]any) (any, error) { return struct{}{}, nil },
		},
	}
}

// decodeWrap adapts decodeInto's generic signature to the Spec.Decode
// function type, returning the decoded value boxed as any.
func decodeWrap[T any](obj map[string]any) (any, error) {
	return decodeInto[T](obj)
}
