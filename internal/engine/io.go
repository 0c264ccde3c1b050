package engine

import (
	"encoding/json"
	"os"
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

// wireVoxel is the on-disk representation of one voxel entry in the native
// project format: a flat array avoids re-deriving map iteration order on
// load, which keeps LoadProject deterministic for tests that round-trip a
// project and diff the result.
type wireVoxel struct {
	X     int32        `json:"x"`
	Y     int32        `json:"y"`
	Z     int32        `json:"z"`
	Color domain.Color `json:"color"`
}

type wireLayer struct {
	ID      int32       `json:"id"`
	Name    string      `json:"name"`
	Visible bool        `json:"visible"`
	Voxels  []wireVoxel `json:"voxels"`
}

type wireScene struct {
	ProjectID    string      `json:"project_id"`
	Name         string      `json:"name"`
	Width        uint32      `json:"width"`
	Height       uint32      `json:"height"`
	Depth        uint32      `json:"depth"`
	CurrentLayer int32       `json:"current_layer"`
	NextLayerID  int32       `json:"next_layer_id"`
	CreatedAt    time.Time   `json:"created_at"`
	Layers       []wireLayer `json:"layers"`
}

func (s *scene) toWire() wireScene {
	w := wireScene{
		ProjectID:    s.projectID,
		Name:         s.name,
		Width:        s.width,
		Height:       s.height,
		Depth:        s.depth,
		CurrentLayer: s.currentLayer,
		NextLayerID:  s.nextLayerID,
		CreatedAt:    s.createdAt,
	}
	for _, l := range s.layers {
		wl := wireLayer{ID: l.id, Name: l.name, Visible: l.visible}
		for pos, c := range l.voxels {
			wl.Voxels = append(wl.Voxels, wireVoxel{X: pos.X, Y: pos.Y, Z: pos.Z, Color: c})
		}
		w.Layers = append(w.Layers, wl)
	}
	return w
}

func fromWire(w wireScene) *scene {
	s := &scene{
		projectID:    w.ProjectID,
		name:         w.Name,
		width:        w.Width,
		height:       w.Height,
		depth:        w.Depth,
		currentLayer: w.CurrentLayer,
		nextLayerID:  w.NextLayerID,
		createdAt:    w.CreatedAt,
	}
	for _, wl := range w.Layers {
		l := &sceneLayer{id: wl.ID, name: wl.Name, visible: wl.Visible, voxels: make(map[domain.VoxelPos]domain.Color, len(wl.Voxels))}
		for _, wv := range wl.Voxels {
			l.voxels[domain.VoxelPos{X: wv.X, Y: wv.Y, Z: wv.Z}] = wv.Color
		}
		s.layers = append(s.layers, l)
	}
	return s
}

// SaveProject serializes the current scene to path in the native JSON
// format. The write goes through a temp file and rename so a crash mid-save
// never leaves a half-written project file behind.
func (f *Facade) SaveProject(p domain.SaveProjectParams) (domain.SaveProjectResult, *domain.EngineError) {
	data, err := json.Marshal(f.scene.toWire())
	if err != nil {
		return domain.SaveProjectResult{}, domain.NewEngineError(domain.ErrInternal, "encode project: %v", err)
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.SaveProjectResult{}, domain.NewEngineError(domain.ErrIoError, "write project: %v", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		os.Remove(tmp)
		return domain.SaveProjectResult{}, domain.NewEngineError(domain.ErrIoError, "finalize project: %v", err)
	}
	return domain.SaveProjectResult{Path: p.Path}, nil
}

// LoadProject replaces the current scene with the project stored at path.
// The Engine Guard holds its token across this call, same as CreateProject,
// so a load never races a concurrent op against the outgoing scene.
func (f *Facade) LoadProject(p domain.LoadProjectParams) (domain.Project, *domain.EngineError) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Project{}, domain.NewEngineError(domain.ErrProjectNotFound, "project file %q not found", p.Path)
		}
		return domain.Project{}, domain.NewEngineError(domain.ErrIoError, "read project: %v", err)
	}
	var w wireScene
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Project{}, domain.NewEngineError(domain.ErrFormatError, "parse project: %v", err)
	}
	if len(w.Layers) == 0 {
		return domain.Project{}, domain.NewEngineError(domain.ErrFormatError, "project %q has no layers", p.Path)
	}
	f.scene = fromWire(w)
	return f.GetStatus(), nil
}
