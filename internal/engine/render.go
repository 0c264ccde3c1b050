package engine

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/voxelcore/voxeld/internal/domain"
)

// cameraVectors returns, for a preset, a depth function used for ordering
// and a projection of voxel positions into the 2D raster plane. There is no depth buffer
// beyond painter's-algorithm ordering by depth component: this is a
// preview renderer, not a physically based one.
func cameraVectors(preset domain.CameraPreset) (depthAxis func(p domain.VoxelPos) float64, project func(p domain.VoxelPos) (float64, float64)) {
	switch preset {
	case domain.CameraTop:
		return func(p domain.VoxelPos) float64 { return float64(p.Y) },
			func(p domain.VoxelPos) (float64, float64) { return float64(p.X), float64(p.Z) }
	case domain.CameraFront:
		return func(p domain.VoxelPos) float64 { return float64(p.Z) },
			func(p domain.VoxelPos) (float64, float64) { return float64(p.X), float64(p.Y) }
	case domain.CameraIso:
		return func(p domain.VoxelPos) float64 { return float64(p.X) + float64(p.Y) + float64(p.Z) },
			func(p domain.VoxelPos) (float64, float64) {
				x := (float64(p.X) - float64(p.Z)) * math.Cos(math.Pi/6)
				y := float64(p.Y) - (float64(p.X)+float64(p.Z))*math.Sin(math.Pi/6)/2
				return x, y
			}
	default: // CameraDefault behaves as CameraFront
		return func(p domain.VoxelPos) float64 { return float64(p.Z) },
			func(p domain.VoxelPos) (float64, float64) { return float64(p.X), float64(p.Y) }
	}
}

// rasterize paints voxels into an RGBA image using the given camera
// preset, sorting back-to-front by depth so nearer voxels overwrite
// farther ones. Draft quality paints one pixel per voxel; final quality
// also paints the pixels to its right and below. No anti-aliasing is done.
func rasterize(voxels []domain.Voxel, width, height int, preset domain.CameraPreset, quality domain.RenderQuality) *image.RGBA {
	depthOf, project := cameraVectors(preset)
	ordered := make([]domain.Voxel, len(voxels))
	copy(ordered, voxels)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && depthOf(ordered[j-1].Pos) > depthOf(ordered[j].Pos); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw := func(x, y int, c color.RGBA) {
		if x >= 0 && x < width && y >= 0 && y < height {
			img.Set(x, y, c)
		}
	}
	cx, cy := width/2, height/2
	for _, v := range ordered {
		px, py := project(v.Pos)
		x, y := cx+int(px), cy-int(py)
		c := color.RGBA{v.Color[0], v.Color[1], v.Color[2], v.Color[3]}
		draw(x, y, c)
		if quality == domain.QualityFinal {
			draw(x+1, y, c)
			draw(x, y+1, c)
		}
	}
	return img
}

// RenderPixels produces a PNG-encoded raster of the current scene without
// touching the filesystem, used internally by RenderScene and reusable by
// tests that only need pixel bytes.
func (f *Facade) RenderPixels(width, height uint32, preset domain.CameraPreset, quality domain.RenderQuality) ([]byte, *domain.EngineError) {
	if width == 0 || height == 0 {
		return nil, domain.NewEngineError(domain.ErrInvalidParams, "width and height must be positive")
	}
	img := rasterize(f.visibleVoxels(), int(width), int(height), preset, quality)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.NewEngineError(domain.ErrInternal, "encode png: %v", err)
	}
	return buf.Bytes(), nil
}
