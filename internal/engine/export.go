package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/voxelcore/voxeld/internal/domain"
)

// ExportModel writes the current scene to path in the requested format.
// The OBJ, PLY, STL, VOX and glTF encoders receive visible layers' voxels
// only, matching the camera/render path's notion of what is "in" the
// scene; the native format serializes the whole scene, hidden layers
// included.
func (f *Facade) ExportModel(p domain.ExportModelParams) (domain.ExportModelResult, *domain.EngineError) {
	if !p.Format.Valid() {
		return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrUnsupportedFormat, "unsupported export format %q", p.Format)
	}
	voxels := f.visibleVoxels()

	var data []byte
	var err error
	switch p.Format {
	case domain.FormatNative:
		data, err = json.Marshal(f.scene.toWire())
	case domain.FormatOBJ:
		data = encodeOBJ(voxels)
	case domain.FormatPLY:
		data = encodePLY(voxels)
	case domain.FormatSTL:
		data = encodeSTL(voxels)
	case domain.FormatMagicaVox:
		data, err = encodeVOX(f.scene, voxels)
	case domain.FormatGLTF:
		data, err = encodeGLTF(voxels)
	case domain.FormatPNGSlices:
		return f.exportPNGSlices(p.Path)
	}
	if err != nil {
		return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrFormatError, "encode %s: %v", p.Format, err)
	}
	if err := os.WriteFile(p.Path, data, 0o644); err != nil {
		return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrIoError, "write export: %v", err)
	}
	return domain.ExportModelResult{Path: p.Path, Bytes: int64(len(data))}, nil
}

func (f *Facade) visibleVoxels() []domain.Voxel {
	var out []domain.Voxel
	for _, l := range f.scene.layers {
		if !l.visible {
			continue
		}
		for pos, c := range l.voxels {
			out = append(out, domain.Voxel{Pos: pos, Color: c})
		}
	}
	return out
}

// cubeFaceOffsets are the 6 unit-cube faces as corner offsets (no normals),
// reused by the OBJ, PLY and STL encoders so each voxel becomes one cube
// of geometry rather than a point cloud.
var cubeFaceOffsets = [6][4][3]float32{
	{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}, // +Z
	{{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}}, // -Z
	{{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 1}}, // +X
	{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}, // -X
	{{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}}, // +Y
	{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}, // -Y
}

func encodeOBJ(voxels []domain.Voxel) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	fmt.Fprintln(w, "# voxeld export")
	vertexIndex := 1
	for _, v := range voxels {
		for _, face := range cubeFaceOffsets {
			for _, off := range face {
				fmt.Fprintf(w, "v %f %f %f\n",
					float32(v.Pos.X)+off[0], float32(v.Pos.Y)+off[1], float32(v.Pos.Z)+off[2])
			}
			fmt.Fprintf(w, "f %d %d %d %d\n", vertexIndex, vertexIndex+1, vertexIndex+2, vertexIndex+3)
			vertexIndex += 4
		}
	}
	w.Flush()
	return b.Bytes()
}

func encodePLY(voxels []domain.Voxel) []byte {
	vertCount := len(voxels) * 6 * 4
	faceCount := len(voxels) * 6
	var header bytes.Buffer
	fmt.Fprintf(&header, "ply\nformat ascii 1.0\nelement vertex %d\n", vertCount)
	header.WriteString("property float x\nproperty float y\nproperty float z\n")
	header.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
	fmt.Fprintf(&header, "element face %d\nproperty list uchar int vertex_indices\nend_header\n", faceCount)

	var body bytes.Buffer
	for _, v := range voxels {
		for _, face := range cubeFaceOffsets {
			for _, off := range face {
				fmt.Fprintf(&body, "%f %f %f %d %d %d\n",
					float32(v.Pos.X)+off[0], float32(v.Pos.Y)+off[1], float32(v.Pos.Z)+off[2],
					v.Color[0], v.Color[1], v.Color[2])
			}
		}
	}
	idx := 0
	for range voxels {
		for range cubeFaceOffsets {
			fmt.Fprintf(&body, "4 %d %d %d %d\n", idx, idx+1, idx+2, idx+3)
			idx += 4
		}
	}
	return append(header.Bytes(), body.Bytes()...)
}

func encodeSTL(voxels []domain.Voxel) []byte {
	var b bytes.Buffer
	var header [80]byte
	copy(header[:], "voxeld binary STL export")
	b.Write(header[:])
	triCount := uint32(len(voxels) * 6 * 2)
	binary.Write(&b, binary.LittleEndian, triCount)
	writeVec := func(x, y, z float32) {
		binary.Write(&b, binary.LittleEndian, x)
		binary.Write(&b, binary.LittleEndian, y)
		binary.Write(&b, binary.LittleEndian, z)
	}
	for _, v := range voxels {
		for _, face := range cubeFaceOffsets {
			corners := [4][3]float32{}
			for i, off := range face {
				corners[i] = [3]float32{float32(v.Pos.X) + off[0], float32(v.Pos.Y) + off[1], float32(v.Pos.Z) + off[2]}
			}
			for _, tri := range [2][3]int{{0, 1, 2}, {0, 2, 3}} {
				writeVec(0, 0, 0) // normal left degenerate; consumers recompute
				for _, ci := range tri {
					writeVec(corners[ci][0], corners[ci][1], corners[ci][2])
				}
				binary.Write(&b, binary.LittleEndian, uint16(0))
			}
		}
	}
	return b.Bytes()
}

// encodeVOX produces a minimal MagicaVoxel .vox chunk stream: a PACK chunk,
// one SIZE chunk, one XYZI chunk holding every voxel, and an RGBA palette
// chunk built from the scene's distinct colors. More than 256^3 voxels is
// an error; nothing is truncated.
func encodeVOX(s *scene, voxels []domain.Voxel) ([]byte, error) {
	if len(voxels) > 256*256*256 {
		return nil, fmt.Errorf("scene has %d voxels, exceeds vox format capacity", len(voxels))
	}
	palette := make(map[domain.Color]byte)
	var paletteList []domain.Color
	colorIndex := func(c domain.Color) byte {
		if idx, ok := palette[c]; ok {
			return idx
		}
		idx := byte(len(paletteList) + 1)
		palette[c] = idx
		paletteList = append(paletteList, c)
		return idx
	}

	var xyzi bytes.Buffer
	binary.Write(&xyzi, binary.LittleEndian, uint32(len(voxels)))
	for _, v := range voxels {
		xyzi.WriteByte(byte(v.Pos.X))
		xyzi.WriteByte(byte(v.Pos.Y))
		xyzi.WriteByte(byte(v.Pos.Z))
		xyzi.WriteByte(colorIndex(v.Color))
	}

	var size bytes.Buffer
	binary.Write(&size, binary.LittleEndian, s.width)
	binary.Write(&size, binary.LittleEndian, s.depth)
	binary.Write(&size, binary.LittleEndian, s.height)

	var rgba bytes.Buffer
	for i := 0; i < 256; i++ {
		if i < len(paletteList) {
			c := paletteList[i]
			rgba.Write([]byte{c[0], c[1], c[2], c[3]})
		} else {
			rgba.Write([]byte{0, 0, 0, 0})
		}
	}

	var main bytes.Buffer
	writeChunk := func(id string, content []byte) {
		main.WriteString(id)
		binary.Write(&main, binary.LittleEndian, uint32(len(content)))
		binary.Write(&main, binary.LittleEndian, uint32(0))
		main.Write(content)
	}
	var pack bytes.Buffer
	binary.Write(&pack, binary.LittleEndian, uint32(1))
	writeChunk("PACK", pack.Bytes())
	writeChunk("SIZE", size.Bytes())
	writeChunk("XYZI", xyzi.Bytes())
	writeChunk("RGBA", rgba.Bytes())

	var out bytes.Buffer
	out.WriteString("VOX ")
	binary.Write(&out, binary.LittleEndian, uint32(150))
	out.WriteString("MAIN")
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, uint32(main.Len()))
	out.Write(main.Bytes())
	return out.Bytes(), nil
}

type gltfAsset struct {
	Version string `json:"version"`
}

type gltfDoc struct {
	Asset   gltfAsset        `json:"asset"`
	Scenes  []map[string]any `json:"scenes"`
	Scene   int              `json:"scene"`
	Nodes   []map[string]any `json:"nodes"`
	Extras  map[string]any   `json:"extras,omitempty"`
}

// encodeGLTF emits a minimal, geometry-free glTF document carrying one node
// per voxel with a translation and a color extra. This is deliberately not
// a full mesh exporter: it gives downstream glTF viewers enough to place
// colored cubes via instancing, which is sufficient for the daemon's
// preview use case without pulling in a full glTF mesh/accessor writer.
func encodeGLTF(voxels []domain.Voxel) ([]byte, error) {
	doc := gltfDoc{
		Asset:  gltfAsset{Version: "2.0"},
		Scenes: []map[string]any{{"nodes": rangeInts(len(voxels))}},
		Scene:  0,
	}
	for _, v := range voxels {
		doc.Nodes = append(doc.Nodes, map[string]any{
			"translation": []float32{float32(v.Pos.X), float32(v.Pos.Y), float32(v.Pos.Z)},
			"extras": map[string]any{
				"color": []uint8{v.Color[0], v.Color[1], v.Color[2], v.Color[3]},
			},
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func rangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// exportPNGSlices rasterizes the scene into one PNG per Z layer under the
// directory named by path, since the png_slices format has no single-file
// representation.
func (f *Facade) exportPNGSlices(dir string) (domain.ExportModelResult, *domain.EngineError) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrIoError, "create slice dir: %v", err)
	}
	byZ := make(map[int32][]domain.Voxel)
	for _, v := range f.visibleVoxels() {
		byZ[v.Pos.Z] = append(byZ[v.Pos.Z], v)
	}
	var total int64
	for z, voxels := range byZ {
		img := image.NewRGBA(image.Rect(0, 0, int(f.scene.width), int(f.scene.height)))
		for _, v := range voxels {
			img.Set(int(v.Pos.X), int(v.Pos.Y), color.RGBA{v.Color[0], v.Color[1], v.Color[2], v.Color[3]})
		}
		path := filepath.Join(dir, fmt.Sprintf("slice_%04d.png", z))
		fh, err := os.Create(path)
		if err != nil {
			return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrIoError, "create slice: %v", err)
		}
		if err := png.Encode(fh, img); err != nil {
			fh.Close()
			return domain.ExportModelResult{}, domain.NewEngineError(domain.ErrFormatError, "encode slice: %v", err)
		}
		info, _ := fh.Stat()
		if info != nil {
			total += info.Size()
		}
		fh.Close()
	}
	return domain.ExportModelResult{Path: dir, Bytes: total}, nil
}
