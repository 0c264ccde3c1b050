package engine

import (
	"github.com/voxelcore/voxeld/internal/domain"
)

// FloodFill replaces all voxels reachable from origin through 6-connected
// neighbors sharing origin's color with targetColor. MaxVoxels bounds the
// work done per call; when the fill would exceed it, Facade stops early and
// leaves the partially-filled layer in place rather than rolling back.
func (f *Facade) FloodFill(p domain.FloodFillParams) (domain.AddVoxelsBatchResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	if !f.scene.inBounds(p.Origin) {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrInvalidCoordinates, "origin %v out of bounds", p.Origin)
	}
	source, exists := layer.voxels[p.Origin]
	if !exists {
		source = domain.Color{}
	}
	if source == p.TargetColor {
		return domain.AddVoxelsBatchResult{Count: 0}, nil
	}
	max := p.MaxVoxels
	if max <= 0 {
		max = 1 << 20
	}

	visited := map[domain.VoxelPos]bool{p.Origin: true}
	queue := []domain.VoxelPos{p.Origin}
	count := 0
	for len(queue) > 0 && count < max {
		cur := queue[0]
		queue = queue[1:]
		c, has := layer.voxels[cur]
		if !has {
			c = domain.Color{}
		}
		if c != source {
			continue
		}
		layer.voxels[cur] = p.TargetColor
		count++
		for _, n := range neighbors6(cur) {
			if visited[n] || !f.scene.inBounds(n) {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return domain.AddVoxelsBatchResult{Count: count}, nil
}

func neighbors6(p domain.VoxelPos) [6]domain.VoxelPos {
	return [6]domain.VoxelPos{
		{X: p.X + 1, Y: p.Y, Z: p.Z},
		{X: p.X - 1, Y: p.Y, Z: p.Z},
		{X: p.X, Y: p.Y + 1, Z: p.Z},
		{X: p.X, Y: p.Y - 1, Z: p.Z},
		{X: p.X, Y: p.Y, Z: p.Z + 1},
		{X: p.X, Y: p.Y, Z: p.Z - 1},
	}
}

// ProceduralShape stamps a primitive (sphere, cube, cylinder, cone) centered
// on origin into the target layer. Size is the primitive's radius or
// half-extent depending on shape; unrecognized shape names are rejected
// before any voxel is written.
func (f *Facade) ProceduralShape(p domain.ProceduralShapeParams) (domain.AddVoxelsBatchResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	if p.Size <= 0 {
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrInvalidParams, "size must be positive")
	}
	var include func(dx, dy, dz int32) bool
	switch p.Shape {
	case "sphere":
		r2 := p.Size * p.Size
		include = func(dx, dy, dz int32) bool { return dx*dx+dy*dy+dz*dz <= r2 }
	case "cube":
		include = func(dx, dy, dz int32) bool {
			return abs32(dx) <= p.Size && abs32(dy) <= p.Size && abs32(dz) <= p.Size
		}
	case "cylinder":
		r2 := p.Size * p.Size
		include = func(dx, dy, dz int32) bool { return dx*dx+dz*dz <= r2 && abs32(dy) <= p.Size }
	case "cone":
		include = func(dx, dy, dz int32) bool {
			if dy < 0 || dy > p.Size {
				return false
			}
			r := p.Size - dy
			return dx*dx+dz*dz <= r*r
		}
	default:
		return domain.AddVoxelsBatchResult{}, domain.NewEngineError(domain.ErrInvalidParams, "unknown shape %q", p.Shape)
	}

	count := 0
	for dx := -p.Size; dx <= p.Size; dx++ {
		for dy := -p.Size; dy <= p.Size; dy++ {
			for dz := -p.Size; dz <= p.Size; dz++ {
				if !include(dx, dy, dz) {
					continue
				}
				pos := domain.VoxelPos{X: p.Origin.X + dx, Y: p.Origin.Y + dy, Z: p.Origin.Z + dz}
				if !f.scene.inBounds(pos) {
					continue
				}
				layer.voxels[pos] = p.Color
				count++
			}
		}
	}
	return domain.AddVoxelsBatchResult{Count: count}, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func inRegion(p, min, max domain.VoxelPos) bool {
	return p.X >= min.X && p.X <= max.X &&
		p.Y >= min.Y && p.Y <= max.Y &&
		p.Z >= min.Z && p.Z <= max.Z
}

// GetVoxelsRegion enumerates every populated voxel within [min, max] in the
// resolved layer.
func (f *Facade) GetVoxelsRegion(p domain.GetVoxelsRegionParams) (domain.GetVoxelsRegionResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.GetVoxelsRegionResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	var out []domain.Voxel
	for pos, c := range layer.voxels {
		if inRegion(pos, p.Min, p.Max) {
			out = append(out, domain.Voxel{Pos: pos, Color: c})
		}
	}
	return domain.GetVoxelsRegionResult{Voxels: out}, nil
}

// GetLayerVoxels enumerates every populated voxel in a single named layer.
func (f *Facade) GetLayerVoxels(p domain.GetLayerVoxelsParams) (domain.GetVoxelsRegionResult, *domain.EngineError) {
	layer := f.scene.findLayer(p.LayerID)
	if layer == nil {
		return domain.GetVoxelsRegionResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer %d not found", p.LayerID)
	}
	out := make([]domain.Voxel, 0, len(layer.voxels))
	for pos, c := range layer.voxels {
		out = append(out, domain.Voxel{Pos: pos, Color: c})
	}
	return domain.GetVoxelsRegionResult{Voxels: out}, nil
}

// GetBoundingBox computes the minimal axis-aligned box enclosing every
// populated voxel across all layers, hidden layers included.
func (f *Facade) GetBoundingBox() domain.BoundingBox {
	var box domain.BoundingBox
	box.Empty = true
	for _, l := range f.scene.layers {
		for pos := range l.voxels {
			if box.Empty {
				box.Min, box.Max = pos, pos
				box.Empty = false
				continue
			}
			box.Min = minPos(box.Min, pos)
			box.Max = maxPos(box.Max, pos)
		}
	}
	return box
}

func minPos(a, b domain.VoxelPos) domain.VoxelPos {
	return domain.VoxelPos{X: min32(a.X, b.X), Y: min32(a.Y, b.Y), Z: min32(a.Z, b.Z)}
}

func maxPos(a, b domain.VoxelPos) domain.VoxelPos {
	return domain.VoxelPos{X: max32(a.X, b.X), Y: max32(a.Y, b.Y), Z: max32(a.Z, b.Z)}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// GetColorHistogram tallies how many voxels across all layers carry each
// distinct color.
func (f *Facade) GetColorHistogram() domain.GetColorHistogramResult {
	tally := make(map[domain.Color]int)
	for _, l := range f.scene.layers {
		for _, c := range l.voxels {
			tally[c]++
		}
	}
	out := make([]domain.ColorCount, 0, len(tally))
	for c, n := range tally {
		out = append(out, domain.ColorCount{Color: c, Count: n})
	}
	return domain.GetColorHistogramResult{Colors: out}
}

// GetUniqueColors returns the same data as GetColorHistogram; kept as a
// distinct operation because callers that only need the color set, not the
// counts, get a stable contract independent of future histogram changes.
func (f *Facade) GetUniqueColors() domain.GetColorHistogramResult {
	return f.GetColorHistogram()
}

// FindVoxelsByColor enumerates every voxel in the resolved layer exactly
// matching color.
func (f *Facade) FindVoxelsByColor(p domain.FindVoxelsByColorParams) (domain.GetVoxelsRegionResult, *domain.EngineError) {
	layer, ok := f.scene.resolveLayer(p.LayerID)
	if !ok {
		return domain.GetVoxelsRegionResult{}, domain.NewEngineError(domain.ErrLayerNotFound, "layer not found")
	}
	var out []domain.Voxel
	for pos, c := range layer.voxels {
		if c == p.Color {
			out = append(out, domain.Voxel{Pos: pos, Color: c})
		}
	}
	return domain.GetVoxelsRegionResult{Voxels: out}, nil
}
