package engine

import (
	"testing"

	"github.com/voxelcore/voxeld/internal/domain"
)

func TestAddVoxelThenGetVoxel(t *testing.T) {
	f := NewFacade()
	if eerr := f.AddVoxel(domain.AddVoxelParams{X: 1, Y: 2, Z: 3, Color: domain.Color{255, 0, 0, 255}}); eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	res, eerr := f.GetVoxel(domain.GetVoxelParams{X: 1, Y: 2, Z: 3})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if !res.Exists {
		t.Fatal("expected voxel to exist after AddVoxel")
	}
	if *res.Color != (domain.Color{255, 0, 0, 255}) {
		t.Fatalf("unexpected color: %v", *res.Color)
	}
}

func TestAddVoxelOutOfBounds(t *testing.T) {
	f := NewFacade()
	eerr := f.AddVoxel(domain.AddVoxelParams{X: 1000, Y: 0, Z: 0, Color: domain.Color{1, 1, 1, 1}})
	if eerr == nil {
		t.Fatal("expected an out-of-bounds error")
	}
	if eerr.Kind != domain.ErrInvalidCoordinates {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", eerr.Kind)
	}
}

func TestAddVoxelUnknownLayer(t *testing.T) {
	f := NewFacade()
	bogus := int32(999)
	eerr := f.AddVoxel(domain.AddVoxelParams{X: 0, Y: 0, Z: 0, Color: domain.Color{1, 1, 1, 1}, LayerID: &bogus})
	if eerr == nil || eerr.Kind != domain.ErrLayerNotFound {
		t.Fatalf("expected ErrLayerNotFound, got %v", eerr)
	}
}

func TestRemoveVoxel(t *testing.T) {
	f := NewFacade()
	f.AddVoxel(domain.AddVoxelParams{X: 1, Y: 1, Z: 1, Color: domain.Color{9, 9, 9, 9}})
	if eerr := f.RemoveVoxel(domain.RemoveVoxelParams{X: 1, Y: 1, Z: 1}); eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	res, _ := f.GetVoxel(domain.GetVoxelParams{X: 1, Y: 1, Z: 1})
	if res.Exists {
		t.Fatal("expected voxel to be gone after RemoveVoxel")
	}
}

func TestGetVoxelMissingReportsExistsFalseNotError(t *testing.T) {
	f := NewFacade()
	res, eerr := f.GetVoxel(domain.GetVoxelParams{X: 5, Y: 5, Z: 5})
	if eerr != nil {
		t.Fatalf("a missing voxel must not be an error, got %v", eerr)
	}
	if res.Exists {
		t.Fatal("expected Exists=false for an empty cell")
	}
}

func TestAddVoxelsBatchSkipsOutOfBounds(t *testing.T) {
	f := NewFacade()
	res, eerr := f.AddVoxelsBatch(domain.AddVoxelsBatchParams{
		Voxels: []domain.VoxelInput{
			{X: 1, Y: 1, Z: 1, Color: domain.Color{1, 2, 3, 4}},
			{X: 99999, Y: 0, Z: 0, Color: domain.Color{1, 2, 3, 4}},
		},
	})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if res.Count != 1 {
		t.Fatalf("expected 1 voxel placed (out-of-bounds one skipped), got %d", res.Count)
	}
}

func TestCreateProjectResetsScene(t *testing.T) {
	f := NewFacade()
	f.AddVoxel(domain.AddVoxelParams{X: 0, Y: 0, Z: 0, Color: domain.Color{1, 1, 1, 1}})
	firstID := f.GetStatus().ID

	res, eerr := f.CreateProject(domain.CreateProjectParams{Name: "fresh", Width: 8, Height: 8, Depth: 8})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if res.ProjectID == firstID {
		t.Fatal("expected a new project id")
	}
	got, _ := f.GetVoxel(domain.GetVoxelParams{X: 0, Y: 0, Z: 0})
	if got.Exists {
		t.Fatal("expected the new project's scene to have no trace of the prior project's voxels")
	}
}

func TestCreateProjectDefaultsDimensions(t *testing.T) {
	f := NewFacade()
	res, _ := f.CreateProject(domain.CreateProjectParams{Name: "defaults"})
	if res.Dimensions.Width != 64 || res.Dimensions.Height != 64 || res.Dimensions.Depth != 64 {
		t.Fatalf("expected default 64^3 dimensions, got %+v", res.Dimensions)
	}
}

func TestCreateLayerThenDeleteLayer(t *testing.T) {
	f := NewFacade()
	l, eerr := f.CreateLayer(domain.CreateLayerParams{Name: "overlay"})
	if eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	if eerr := f.DeleteLayer(domain.DeleteLayerParams{LayerID: l.ID}); eerr != nil {
		t.Fatalf("unexpected error deleting layer: %v", eerr)
	}
}

func TestDeleteLastLayerRejected(t *testing.T) {
	f := NewFacade()
	status := f.GetStatus()
	eerr := f.DeleteLayer(domain.DeleteLayerParams{LayerID: status.CurrentLayer})
	if eerr == nil || eerr.Kind != domain.ErrOperationFailed {
		t.Fatalf("expected ErrOperationFailed when deleting the only layer, got %v", eerr)
	}
}

func TestMergeLayersMovesVoxelsAndDeletesSource(t *testing.T) {
	f := NewFacade()
	src, _ := f.CreateLayer(domain.CreateLayerParams{Name: "src"})
	f.AddVoxel(domain.AddVoxelParams{X: 2, Y: 2, Z: 2, Color: domain.Color{7, 7, 7, 7}, LayerID: &src.ID})

	status := f.GetStatus()
	dstID := status.CurrentLayer
	if eerr := f.MergeLayers(domain.MergeLayersParams{SourceLayerID: src.ID, TargetLayerID: dstID}); eerr != nil {
		t.Fatalf("unexpected error: %v", eerr)
	}
	res, _ := f.GetVoxel(domain.GetVoxelParams{X: 2, Y: 2, Z: 2, LayerID: &dstID})
	if !res.Exists {
		t.Fatal("expected merged voxel to be present in the target layer")
	}
	if eerr := f.DeleteLayer(domain.DeleteLayerParams{LayerID: src.ID}); eerr == nil || eerr.Kind != domain.ErrLayerNotFound {
		t.Fatal("expected source layer to no longer exist after merge")
	}
}

func TestListLayersReportsVoxelCount(t *testing.T) {
	f := NewFacade()
	f.AddVoxel(domain.AddVoxelParams{X: 0, Y: 0, Z: 0, Color: domain.Color{1, 1, 1, 1}})
	res := f.ListLayers()
	if len(res.Layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(res.Layers))
	}
	if res.Layers[0].VoxelCount != 1 {
		t.Fatalf("expected VoxelCount 1, got %d", res.Layers[0].VoxelCount)
	}
}

func TestEchoReturnsValueUnchanged(t *testing.T) {
	f := NewFacade()
	got := f.Echo(domain.EchoParams{Value: map[string]any{"a": float64(1)}})
	m, ok := got.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Fatalf("expected echo to preserve structured value, got %v", got)
	}
}

func TestPingReturnsPong(t *testing.T) {
	f := NewFacade()
	if f.Ping() != "pong" {
		t.Fatalf("expected pong, got %q", f.Ping())
	}
}
