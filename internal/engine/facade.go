package engine

import (
	"github.com/google/uuid"
	"github.com/voxelcore/voxeld/internal/domain"
)

func newProjectID() string {
	return uuid.NewString()
}

// Facade is the thread-unsafe, narrow API to the voxel engine. It holds no
// state across calls beyond the single *scene it wraps; the Engine Guard is
// the only caller, and it never invokes the Facade concurrently with
// itself. Facade methods never reach a GUI or OpenGL entry point: there is
// none reachable from this package, by construction.
type Facade struct {
	scene *scene
}

// NewFacade constructs a Facade with a freshly-initialized default scene,
// mirroring the state a daemon has immediately after startup.
func NewFacade() *Facade {
	return &Facade{scene: newScene("untitled", 64, 64, 64)}
}

// CreateProject replaces the current scene atomically from the Engine
// Guard's perspective: the guard holds its token for the full duration of
// this call, so no other operation can observe the half-constructed scene.
// This is the direct fix for the source repository's reset-while-aliased
// crash (see domain.EngineError / §4.2 of the design).
func (f *Facade) CreateProject(p domain.CreateProjectParams) (domain.CreateProjectResult, *domain.EngineError) {
	width, height, depth := p.Width, p.Height, p.Depth
	if width == 0 {
		width = 64
	}
	if height == 0 {
		height = 64
	}
	if depth == 0 {
		depth = 64
	}
	name := p.Name
	if name == "" {
		name = "untitled"
	}
	f.scene = newScene(name, width, height, depth)
	return domain.CreateProjectResult{
		ProjectID:  f.scene.projectID,
		Dimensions: domain.Dimensions{Width: width, Height: height, Depth: depth},
	}, nil
}

// GetStatus reports the identity of the currently-loaded project. Used as
// LoadProject's result and by round-trip tests that assert a second
// create_project left no trace of the first.
func (f *Facade) GetStatus() domain.Project {
	return domain.Project{
		ID:           f.scene.projectID,
		Name:         f.scene.name,
		Width:        f.scene.width,
		Height:       f.scene.height,
		Depth:        f.scene.depth,
		CurrentLayer: f.scene.currentLayer,
		CreatedAt:    f.scene.createdAt,
	}
}

func (f *Facade) AddVoxel(p domain.AddVoxelParams) *domain.EngineError {
	pos := domain.VoxelPos{X: p.X, Y: p.Y, Z: p.Z}
	if !f.scene.inBounds(pos) {
		return domain.NewEngineError(domain.ErrInvalidCoordinates, "position %v out of bounds", pos)
	}
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	layer.voxels[pos] = p.Color
	return nil
}

func (f *Facade) RemoveVoxel(p domain.RemoveVoxelParams) *domain.EngineError {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	delete(layer.voxels, domain.VoxelPos{X: p.X, Y: p.Y, Z: p.Z})
	return nil
}

func (f *Facade) GetVoxel(p domain.GetVoxelParams) (domain.GetVoxelResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.GetVoxelResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	pos := domain.VoxelPos{X: p.X, Y: p.Y, Z: p.Z}
	c, exists := layer.voxels[pos]
	res := domain.GetVoxelResult{Exists: exists, LayerID: layer.id}
	if exists {
		res.Color = &c
	}
	return res, nil
}

func (f *Facade) AddVoxelsBatch(p domain.AddVoxelsBatchParams) (domain.AddVoxelsBatchResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	count := 0
	for _, v := range p.Voxels {
		pos := domain.VoxelPos{X: v.X, Y: v.Y, Z: v.Z}
		if !f.scene.inBounds(pos) {
			continue
		}
		layer.voxels[pos] = v.Color
		count++
	}
	return domain.AddVoxelsBatchResult{Count: count}, nil
}

func (f *Facade) PaintVoxels(p domain.PaintVoxelsParams) (domain.AddVoxelsBatchResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	count := 0
	for _, pos := range p.Positions {
		if _, exists := layer.voxels[pos]; exists {
			layer.voxels[pos] = p.Color
			count++
		}
	}
	return domain.AddVoxelsBatchResult{Count: count}, nil
}

func (f *Facade) CreateLayer(p domain.CreateLayerParams) (domain.Layer, *domain.EngineError) {
	l := f.scene.newLayer(p.Name)
	f.scene.layers = append(f.scene.layers, l)
	return domain.Layer{ID: l.id, Name: l.name, Visible: l.visible}, nil
}

func (f *Facade) DeleteLayer(p domain.DeleteLayerParams) *domain.EngineError {
	for i, l := range f.scene.layers {
		if l.id == p.LayerID {
			if len(f.scene.layers) == 1 {
				return domain.NewEngineError(domain.ErrOperationFailed, "cannot delete the last layer")
			}
			f.scene.layers = append(f.scene.layers[:i], f.scene.layers[i+1:]...)
			if f.scene.currentLayer == p.LayerID {
				f.scene.currentLayer = f.scene.layers[0].id
			}
			return nil
		}
	}
	return domain.NewEngineError(domain.ErrLayerNotFound, "layer %d not found", p.LayerID)
}

func (f *Facade) MergeLayers(p domain.MergeLayersParams) *domain.EngineError {
	src := f.scene.findLayer(p.SourceLayerID)
	dst := f.scene.findLayer(p.TargetLayerID)
	if src == nil || dst == nil {
		return domain.NewEngineError(domain.ErrLayerNotFound, "source or target layer not found")
	}
	for pos, c := range src.voxels {
		dst.voxels[pos] = c
	}
	return f.DeleteLayer(domain.DeleteLayerParams{LayerID: p.SourceLayerID})
}

func (f *Facade) SetLayerVisibility(p domain.SetLayerVisibilityParams) *domain.EngineError {
	l := f.scene.findLayer(p.LayerID)
	if l == nil {
		return domain.NewEngineError(domain.ErrLayerNotFound, "layer %d not found", p.LayerID)
	}
	l.visible = p.Visible
	return nil
}

// Ping is a no-op round-trip used to verify the engine is responsive
// without touching the Scene.
func (f *Facade) Ping() string { return "pong" }

// Echo returns its input unchanged, used by conformance tests to verify
// the JSON-RPC envelope preserves arbitrary structured values.
func (f *Facade) Echo(p domain.EchoParams) any { return p.Value }

func (f *Facade) ListLayers() domain.ListLayersResult {
	out := make([]domain.Layer, 0, len(f.scene.layers))
	for _, l := range f.scene.layers {
		out = append(out, domain.Layer{ID: l.id, Name: l.name, Visible: l.visible, VoxelCount: len(l.voxels)})
	}
	return domain.ListLayersResult{Layers: out}
}
