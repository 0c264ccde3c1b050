package domain

import "time"

// Color is a packed RGBA voxel color. It is a plain value: no component of
// the Scene ever hands out a pointer into its internal color storage.
type Color [4]uint8

// VoxelPos is an integer voxel coordinate.
type VoxelPos struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Voxel pairs a position with a color, independent of any layer it came
// from. Returned by analysis operations that enumerate voxels.
type Voxel struct {
	Pos   VoxelPos `json:"pos"`
	Color Color    `json:"color"`
}

// Layer is one ordered entry in a Project's layer stack. The Scene owns the
// backing voxel storage; Layer as handed to callers is a plain snapshot of
// identity and metadata, never the live map.
type Layer struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Visible    bool   `json:"visible"`
	VoxelCount int    `json:"voxel_count"`
}

// Project describes the active project loaded into the Scene.
type Project struct {
	ID           string    `json:"project_id"`
	Name         string    `json:"name"`
	Width        uint32    `json:"width"`
	Height       uint32    `json:"height"`
	Depth        uint32    `json:"depth"`
	CurrentLayer int32     `json:"current_layer"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dimensions is the wire-shape of a project's voxel grid bounds.
type Dimensions struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Depth  uint32 `json:"depth"`
}

// BoundingBox is the minimal axis-aligned box containing every populated
// voxel in the queried scope. Empty is true when no voxel matched.
type BoundingBox struct {
	Empty bool    `json:"empty"`
	Min   VoxelPos `json:"min,omitempty"`
	Max   VoxelPos `json:"max,omitempty"`
}

// ColorCount pairs a color with how many voxels in scope carry it, used by
// GetColorHistogram and GetUniqueColors.
type ColorCount struct {
	Color Color `json:"color"`
	Count int   `json:"count"`
}

// ExportFormat enumerates the export/render codecs the facade supports.
// Values are wire strings so they round-trip through JSON-RPC params
// unchanged.
type ExportFormat string

const (
	FormatNative    ExportFormat = "native"
	FormatOBJ       ExportFormat = "obj"
	FormatPLY       ExportFormat = "ply"
	FormatSTL       ExportFormat = "stl"
	FormatMagicaVox ExportFormat = "vox"
	FormatPNGSlices ExportFormat = "png_slices"
	FormatGLTF      ExportFormat = "gltf"
)

func (f ExportFormat) Valid() bool {
	switch f {
	case FormatNative, FormatOBJ, FormatPLY, FormatSTL, FormatMagicaVox, FormatPNGSlices, FormatGLTF:
		return true
	}
	return false
}

// ReturnMode selects how RenderScene hands back its pixel output.
type ReturnMode string

const (
	ReturnManagedFile ReturnMode = "managed_file"
	ReturnInlinePath  ReturnMode = "inline_path"
)

// CameraPreset names a built-in camera angle for RenderScene.
type CameraPreset string

const (
	CameraDefault CameraPreset = "default"
	CameraFront   CameraPreset = "front"
	CameraTop     CameraPreset = "top"
	CameraIso     CameraPreset = "iso"
)

// RenderQuality is a coarse quality/performance knob for RenderScene.
type RenderQuality string

const (
	QualityDraft RenderQuality = "draft"
	QualityFinal RenderQuality = "final"
)
