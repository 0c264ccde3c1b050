// Package engine implements the Engine Facade (C1): a flat, thread-unsafe
// API to the in-memory voxel Scene. Nothing outside this package ever
// dereferences Scene-internal storage; every Facade method takes plain
// values and returns plain values or a *domain.EngineError. Callers reach
// the Facade exclusively through the Engine Guard, which supplies the
// serialization this package does not provide for itself.
package engine

import (
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

// sceneLayer is the engine-internal representation of one layer. Voxels are
// stored sparsely; an absent key means "no voxel at that position".
type sceneLayer struct {
	id      int32
	name    string
	visible bool
	voxels  map[domain.VoxelPos]domain.Color
}

// scene is the opaque, mutable voxel world. Exactly one *scene exists at a
// time inside a *Facade, and the Facade never publishes a pointer to it or
// to any of its fields; every accessor copies out what it returns.
type scene struct {
	projectID    string
	name         string
	width        uint32
	height       uint32
	depth        uint32
	layers       []*sceneLayer
	currentLayer int32
	nextLayerID  int32
	createdAt    time.Time
}

func newScene(name string, width, height, depth uint32) *scene {
	s := &scene{
		projectID: newProjectID(),
		name:      name,
		width:     width,
		height:    height,
		depth:     depth,
		createdAt: time.Now(),
	}
	s.layers = append(s.layers, s.newLayer("Layer 1"))
	s.currentLayer = s.layers[0].id
	return s
}

func (s *scene) newLayer(name string) *sceneLayer {
	id := s.nextLayerID
	s.nextLayerID++
	return &sceneLayer{
		id:      id,
		name:    name,
		visible: true,
		voxels:  make(map[domain.VoxelPos]domain.Color),
	}
}

func (s *scene) findLayer(id int32) *sceneLayer {
	for _, l := range s.layers {
		if l.id == id {
			return l
		}
	}
	return nil
}

// resolveLayer returns the requested layer, or the current layer when
// layerID is nil. Mirrors every EngineOp's optional layer_id convention.
func (s *scene) resolveLayer(layerID *int32) (*sceneLayer, bool) {
	id := s.currentLayer
	if layerID != nil {
		id = *layerID
	}
	l := s.findLayer(id)
	return l, l != nil
}

func (s *scene) inBounds(p domain.VoxelPos) bool {
	if s.width == 0 && s.height == 0 && s.depth == 0 {
		return true
	}
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 &&
		uint32(p.X) < s.width && uint32(p.Y) < s.height && uint32(p.Z) < s.depth
}
