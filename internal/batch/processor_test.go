package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-shape/internal/loader"
)

// triangle is a glTF document with one node carrying a one-triangle mesh.
const triangle = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"name": "plate2", "mesh": 0}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "buffers": [{"byteLength": 36, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAA"}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "type": "VEC3", "count": 3}]
}`

type mapSource map[string]string

func (m mapSource) Load(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.Errorf("no such file %s", name)
	}
	return []byte(data), nil
}

func sources() mapSource {
	return mapSource{
		"models/a.gltf":     triangle,
		"models/b.gltf":     triangle,
		"models/sub/c.gltf": triangle,
		"models/bad.gltf":   "{",
		"models/x.spr":      "SP",
	}
}

func TestRun(t *testing.T) {
	names := []string{"models/a.gltf", "models/bad.gltf", "models/b.gltf", "models/x.spr", "models/missing.gltf", "models/sub/c.gltf"}
	out := t.TempDir()

	results, err := Run(context.Background(), Config{
		Source:     sources(),
		OutputDir:  out,
		Workers:    3,
		Loader:     loader.DefaultOptions(),
		Logger:     zap.NewNop(),
		KeepShapes: true,
	}, names)

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	require.Len(t, results, len(names))

	for i, r := range results {
		assert.Equal(t, names[i], r.Name)
	}
	for _, i := range []int{0, 2, 5} {
		r := results[i]
		require.NoError(t, r.Err, r.Name)
		require.NotNil(t, r.Shape)
		assert.Equal(t, 0, r.Shape.ObjectIndex("plate2"))
		assert.FileExists(t, r.Output)
	}
	assert.Contains(t, results[1].Err.Error(), "bad")
	assert.Contains(t, results[3].Err.Error(), "unsupported")
	assert.Contains(t, err.Error(), "models/missing.gltf")

	data, err := os.ReadFile(filepath.Join(out, "models", "sub", "c.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: c")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Run(ctx, Config{Source: sources(), Workers: 2}, []string{"models/a.gltf", "models/b.gltf"})
	require.Error(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunNoSource(t *testing.T) {
	_, err := Run(context.Background(), Config{}, []string{"x"})
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"data/model/windmill.rsm", "data/model/windmill.yaml"},
		{"DATA\\MODEL\\House.RSM", "DATA/MODEL/House.yaml"},
		{"../../etc/passwd.gltf", "etc/passwd.yaml"},
		{"robot.glb", "robot.yaml"},
	}
	for _, tt := range tests {
		got := OutputPath("out", tt.name)
		assert.Equal(t, filepath.Join("out", filepath.FromSlash(tt.want)), got, tt.name)
	}
}

func TestWriteManifest(t *testing.T) {
	results, _ := Run(context.Background(), Config{Source: sources(), Workers: 2},
		[]string{"models/a.gltf", "models/bad.gltf"})

	p := filepath.Join(t.TempDir(), "report", "manifest.yaml")
	require.NoError(t, WriteManifest(p, results))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var entries []ManifestEntry
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, "models/a.gltf", entries[0].Source)
	assert.Equal(t, 1, entries[0].Objects)
	assert.Empty(t, entries[0].Error)
	assert.Empty(t, entries[0].Output)
	assert.True(t, strings.Contains(entries[1].Error, "bad"))
}
