// Package importer selects a scene importer from a source file's extension.
package importer

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-shape/internal/importer/gltf"
	"github.com/Faultbox/midgard-shape/internal/importer/rsm"
	"github.com/Faultbox/midgard-shape/pkg/scene"
)

// ErrUnsupportedFormat is returned for extensions no importer handles.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// Options carries per-format importer settings.
type Options struct {
	RSM rsm.Options
}

// Extensions lists the source extensions New accepts, lower case.
var Extensions = []string{".rsm", ".gltf", ".glb"}

// Supported reports whether name has an extension New accepts.
func Supported(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// New returns an importer for the source bytes in data. The shape is named
// after the base name of name without its extension.
func New(name string, data []byte, opts Options) (scene.Importer, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(base)
	shapeName := strings.TrimSuffix(base, ext)

	switch strings.ToLower(ext) {
	case ".rsm":
		return rsm.New(shapeName, data, opts.RSM), nil
	case ".gltf", ".glb":
		return gltf.New(shapeName, data), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", name)
}
