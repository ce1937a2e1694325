// Package assets resolves source files across directories and GRF archives.
package assets

import (
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-shape/pkg/encoding"
	"github.com/Faultbox/midgard-shape/pkg/grf"
)

// ErrNotFound is returned when no source holds the requested file.
var ErrNotFound = errors.New("asset not found")

// Asset is a file found in one of the sources.
type Asset struct {
	Name   string // path within the source
	Source string // directory or archive path
}

type source struct {
	name   string
	fsys   fs.FS
	closer io.Closer
}

// Manager searches an ordered list of sources. Sources are searched in
// reverse order (last added = highest priority).
type Manager struct {
	sources []source
	mu      sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add adds a directory or, for *.grf paths, a GRF archive.
func (m *Manager) Add(path string) error {
	if grf.IsArchive(path) {
		return m.AddArchive(path)
	}
	return m.AddDir(path)
}

// AddArchive opens a GRF archive and adds it as a source.
func (m *Manager) AddArchive(path string) error {
	archive, err := grf.Open(path)
	if err != nil {
		return errors.Wrapf(err, "adding archive %s", path)
	}
	m.add(source{name: path, fsys: archive, closer: archive})
	return nil
}

// AddDir adds a directory tree as a source.
func (m *Manager) AddDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "adding directory %s", path)
	}
	if !st.IsDir() {
		return errors.Errorf("adding directory %s: not a directory", path)
	}
	m.add(source{name: path, fsys: os.DirFS(path)})
	return nil
}

// AddFS adds an arbitrary file system under a display name.
func (m *Manager) AddFS(name string, fsys fs.FS) {
	m.add(source{name: name, fsys: fsys})
}

func (m *Manager) add(s source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// Len returns the number of sources.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sources)
}

// Load reads a file from the highest priority source holding it. Backslash
// separated names are accepted.
func (m *Manager) Load(name string) ([]byte, error) {
	p := strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := fs.ReadFile(m.sources[i].fsys, p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "loading %s from %s", name, m.sources[i].name)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", name)
}

// Find walks every source and returns the files accepted by match, sorted by
// name. A file present in several sources is reported once, from the
// highest priority source; names are compared case-insensitively.
func (m *Manager) Find(match func(name string) bool) ([]Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var found []Asset
	for i := len(m.sources) - 1; i >= 0; i-- {
		s := m.sources[i]
		err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !match(p) {
				return nil
			}
			key := encoding.NormalizePath(p)
			if seen[key] {
				return nil
			}
			seen[key] = true
			found = append(found, Asset{Name: p, Source: s.name})
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking %s", s.name)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// Close closes all archives.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, s := range m.sources {
		if s.closer != nil {
			err = multierr.Append(err, s.closer.Close())
		}
	}
	m.sources = nil
	return err
}
