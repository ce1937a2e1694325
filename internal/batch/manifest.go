package batch

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestEntry represents one shape in the output manifest.
type ManifestEntry struct {
	Source    string  `yaml:"source"`
	Output    string  `yaml:"output,omitempty"`
	Nodes     int     `yaml:"nodes"`
	Objects   int     `yaml:"objects"`
	Sequences int     `yaml:"sequences"`
	Warnings  int     `yaml:"warnings"`
	Seconds   float64 `yaml:"seconds"`
	Error     string  `yaml:"error,omitempty"`
}

// Manifest lists the outcome of a batch run.
func Manifest(results []Result) []ManifestEntry {
	entries := make([]ManifestEntry, len(results))
	for i := range results {
		r := &results[i]
		e := ManifestEntry{
			Source:   r.Name,
			Output:   r.Output,
			Warnings: r.Warnings(),
			Seconds:  r.Elapsed.Seconds(),
		}
		if r.Summary != nil {
			e.Nodes = r.Summary.Nodes
			e.Objects = len(r.Summary.Objects)
			e.Sequences = len(r.Summary.Sequences)
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		entries[i] = e
	}
	return entries
}

// WriteManifest writes the manifest as YAML to path.
func WriteManifest(path string, results []Result) error {
	data, err := yaml.Marshal(Manifest(results))
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating manifest directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing manifest")
}
