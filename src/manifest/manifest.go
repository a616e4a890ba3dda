// Package manifest persists which paths each component last deployed into
// the server tree, so a redeploy can remove stale output first.
//
// The file lives at <serverRoot>/.crtb-deploy.json:
//
//	{"version": 1, "entries": {"pl:worldedit": ["plugins/worldedit-7.3.jar"]}}
//
// Paths under the server root are stored relative to it so the server
// directory can move between machines; anything else is stored absolute.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/logging"
)

// FileName is the manifest file name inside the server root.
const FileName = ".crtb-deploy.json"

const schemaVersion = 1

// ErrManifestIO marks manifest read/write failures. They are reported but
// never abort a deployment.
var ErrManifestIO = errors.New("manifest i/o")

type document struct {
	Version int                 `json:"version"`
	Entries map[string][]string `json:"entries"`
}

// Manifest is the in-memory deployment record. All methods are safe for
// concurrent use; Update is the critical section used by the deploy
// pipeline.
type Manifest struct {
	mu      sync.Mutex
	root    string
	path    string
	entries map[component.ID][]string
	dirty   bool
	logger  *slog.Logger
}

// Load reads the manifest from serverRoot. A missing file yields an empty
// manifest; a malformed one yields an empty manifest and a warning.
func Load(serverRoot string, logger *slog.Logger) *Manifest {
	logger = logging.OrDiscard(logger)
	root, err := filepath.Abs(serverRoot)
	if err != nil {
		root = filepath.Clean(serverRoot)
	}
	m := &Manifest{
		root:    root,
		path:    filepath.Join(root, FileName),
		entries: make(map[component.ID][]string),
		logger:  logger,
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("reading deployment manifest, starting empty", "path", m.path, "error", err)
		}
		return m
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("deployment manifest is malformed, starting empty", "path", m.path, "error", err)
		return m
	}
	if doc.Version != schemaVersion {
		logger.Warn("deployment manifest has unknown version, starting empty", "path", m.path, "version", doc.Version)
		return m
	}
	for id, paths := range doc.Entries {
		if len(paths) > 0 {
			m.entries[component.ID(id)] = append([]string(nil), paths...)
		}
	}
	return m
}

// Path returns the manifest file location.
func (m *Manifest) Path() string { return m.path }

// Root returns the server root the manifest is relative to.
func (m *Manifest) Root() string { return m.root }

// Paths returns the absolute paths last recorded for id.
func (m *Manifest) Paths(id component.ID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.absolute(m.entries[id])
}

// SetPaths records paths for id in memory. An empty list removes the entry.
func (m *Manifest) SetPaths(id component.ID, paths []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(id, paths)
}

// IDs returns every recorded component id, sorted.
func (m *Manifest) IDs() []component.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]component.ID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SaveIfDirty writes the manifest when it changed since the last save.
func (m *Manifest) SaveIfDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

// Update is a read-modify-persist critical section: it hands the currently
// recorded absolute paths for id to fn, records what fn returns, and saves
// before releasing the lock. The previous paths are returned. A save error
// leaves the in-memory change in place and is wrapped with ErrManifestIO.
func (m *Manifest) Update(id component.ID, fn func(prev []string) []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.absolute(m.entries[id])
	m.setLocked(id, fn(append([]string(nil), prev...)))
	return prev, m.saveLocked()
}

func (m *Manifest) setLocked(id component.ID, paths []string) {
	normalized := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		n := m.normalize(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}

	old, had := m.entries[id]
	if len(normalized) == 0 {
		if had {
			delete(m.entries, id)
			m.dirty = true
		}
		return
	}
	if had && equal(old, normalized) {
		return
	}
	m.entries[id] = normalized
	m.dirty = true
}

func (m *Manifest) saveLocked() error {
	if !m.dirty {
		return nil
	}

	doc := document{Version: schemaVersion, Entries: make(map[string][]string, len(m.entries))}
	for id, paths := range m.entries {
		doc.Entries[string(id)] = paths
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrManifestIO, err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(m.path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	m.dirty = false
	return nil
}

// normalize makes p relative to the server root when it lives under it.
func (m *Manifest) normalize(p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(m.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}

func (m *Manifest) absolute(stored []string) []string {
	if len(stored) == 0 {
		return nil
	}
	out := make([]string, len(stored))
	for i, p := range stored {
		fp := filepath.FromSlash(p)
		if filepath.IsAbs(fp) {
			out[i] = fp
		} else {
			out[i] = filepath.Join(m.root, fp)
		}
	}
	return out
}

// writeFileAtomic writes to a temp file next to path and renames it over.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".crtb-deploy-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
