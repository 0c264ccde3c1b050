package engine

import (
	"time"

	"github.com/voxelcore/voxeld/internal/domain"
)

// ArtifactWriter is the narrow surface the Facade needs from the Render
// Artifact Manager: a name generator and a write that returns the absolute
// path, size and checksum. Defined here rather than imported from the
// artifact package so engine has no compile-time dependency on it; the
// dispatcher wires a *artifact.Manager in that satisfies this interface.
type ArtifactWriter interface {
	NewArtifactName(ext string) string
	Write(name string, data []byte) (path string, size int64, checksum string, err error)
}

// RenderScene rasterizes the current scene and hands the PNG bytes to
// writer, returning a RenderFileResult describing the artifact. Inline
// return mode still goes through the artifact manager so the same TTL and
// size-cap policy governs every render regardless of how the caller asked
// to receive it; ReturnMode only affects whether the dispatcher reads the
// file back and embeds it, which happens above this layer.
func (f *Facade) RenderScene(p domain.RenderSceneParams, writer ArtifactWriter, ttl time.Duration) (domain.RenderSceneResult, *domain.EngineError) {
	preset := p.CameraPreset
	if preset == "" {
		preset = domain.CameraDefault
	}
	quality := p.Quality
	if quality == "" {
		quality = domain.QualityDraft
	}
	pixels, eerr := f.RenderPixels(p.Width, p.Height, preset, quality)
	if eerr != nil {
		return domain.RenderSceneResult{}, eerr
	}
	name := writer.NewArtifactName("png")
	path, size, checksum, err := writer.Write(name, pixels)
	if err != nil {
		return domain.RenderSceneResult{}, domain.NewEngineError(domain.ErrIoError, "write render artifact: %v", err)
	}
	return domain.RenderSceneResult{File: domain.RenderFileResult{
		Path:      path,
		Size:      size,
		Format:    "png",
		ExpiresAt: time.Now().Add(ttl),
		Checksum:  checksum,
	}}, nil
}
