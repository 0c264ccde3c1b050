// Package artifact manages render output files written by RenderScene: it
// assigns each render a path under a configured directory, tracks it until
// either its TTL elapses or the directory's total size cap is exceeded, and
// exempts artifacts still attached to an in-flight response from cleanup.
//
// Grounded on the teacher's output capture store: a background cleanup
// loop keyed off file modification time so that tracked state surviving a
// daemon restart is recomputed by scanning the directory, not by trusting
// an in-memory index that no longer exists.
package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxelcore/voxeld/internal/pkg/fsutil"
)

// Config controls where artifacts live and how long they are retained.
type Config struct {
	Dir             string
	TTL             time.Duration
	MaxTotalBytes   int64
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
	return c
}

// Manager is the Render Artifact Manager (C3). It owns a directory of
// render output files and a set of in-flight holds that keep a file exempt
// from cleanup until the response carrying its path has been sent.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	holds   map[string]int // path -> number of in-flight holders
	stopCh  chan struct{}
	stopped bool
}

func New(cfg Config) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.Chmod(cfg.Dir, 0o700); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, holds: make(map[string]int), stopCh: make(chan struct{})}
	go m.cleanupLoop()
	return m, nil
}

// ValidatePath rejects any candidate file name that could escape the
// artifact directory: absolute paths, "..", and paths that resolve through
// a symlink to somewhere outside cfg.Dir. Callers pass a bare file name,
// never a path they got from a client.
func (m *Manager) ValidatePath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", errInvalidArtifactName(name)
	}
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, string(filepath.Separator)+"..") {
		return "", errInvalidArtifactName(name)
	}
	full := filepath.Join(m.cfg.Dir, clean)
	resolved, err := filepath.EvalSymlinks(filepath.Dir(full))
	if err == nil {
		absDir, err2 := filepath.Abs(m.cfg.Dir)
		if err2 == nil && !strings.HasPrefix(resolved, absDir) {
			return "", errInvalidArtifactName(name)
		}
	}
	return full, nil
}

type invalidArtifactNameError struct{ name string }

func (e invalidArtifactNameError) Error() string {
	return "invalid artifact name: " + e.name
}

func errInvalidArtifactName(name string) error {
	return invalidArtifactNameError{name: name}
}

// NewArtifactName generates a collision-resistant file name for a fresh
// render: a timestamp so files sort chronologically, plus a random token
// so two renders landing in the same clock tick — or a guessed path —
// never collide.
func (m *Manager) NewArtifactName(ext string) string {
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	return "render_" + stamp + "_" + uuid.NewString() + "." + ext
}

// Write stores data at name (validated relative to the artifact
// directory) and returns the absolute path, file size, and checksum.
func (m *Manager) Write(name string, data []byte) (path string, size int64, checksum string, err error) {
	path, err = m.ValidatePath(name)
	if err != nil {
		return "", 0, "", err
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return "", 0, "", err
	}
	checksum, err = fsutil.ChecksumFile(path)
	if err != nil {
		return "", 0, "", err
	}
	return path, int64(len(data)), checksum, nil
}

// Hold marks path as in-flight, exempting it from cleanup until a matching
// Release. Holds nest: a path written and then read back by two concurrent
// responses stays exempt until both release it.
func (m *Manager) Hold(path string) {
	m.mu.Lock()
	m.holds[path]++
	m.mu.Unlock()
}

func (m *Manager) Release(path string) {
	m.mu.Lock()
	if m.holds[path] > 0 {
		m.holds[path]--
		if m.holds[path] == 0 {
			delete(m.holds, path)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) isHeld(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[path] > 0
}

// Stop halts the background cleanup loop. Safe to call once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.stopCh)
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

type artifactInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// sweep removes artifacts older than the configured TTL, then, if the
// directory still exceeds MaxTotalBytes, removes the oldest remaining
// files until it doesn't. Held files are skipped in both passes. State is
// derived entirely from a directory scan each run so a daemon restart
// loses no cleanup obligations: nothing here depends on in-memory history.
func (m *Manager) sweep() {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return
	}
	now := time.Now()
	var files []artifactInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.cfg.Dir, e.Name())
		if m.isHeld(path) {
			continue
		}
		if now.Sub(info.ModTime()) > m.cfg.TTL {
			os.Remove(path)
			continue
		}
		files = append(files, artifactInfo{path: path, size: info.Size(), modTime: info.ModTime()})
	}

	if m.cfg.MaxTotalBytes <= 0 {
		return
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= m.cfg.MaxTotalBytes {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files {
		if total <= m.cfg.MaxTotalBytes {
			break
		}
		if m.isHeld(f.path) {
			continue
		}
		if err := os.Remove(f.path); err == nil {
			total -= f.size
		}
	}
}

// Stats reports a directory-scan snapshot used by the "status" method.
func (m *Manager) Stats() (count int, totalBytes int64) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		totalBytes += info.Size()
	}
	return count, totalBytes
}
