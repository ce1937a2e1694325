package rsm

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-shape/internal/loader"
	"github.com/Faultbox/midgard-shape/pkg/formats"
	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

var ident3 = [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}

// parsed skips Read so tests can hand a model to the loader directly.
type parsed struct{ *Importer }

func (parsed) Read() error { return nil }

func withModel(m *formats.RSM, opts Options) *Importer {
	im := New("test", nil, opts)
	im.model = m
	return im
}

func windmill() *formats.RSM {
	quad := formats.RSMNode{
		Name:       "blades",
		Parent:     "base",
		TextureIDs: []int32{1, 0},
		Matrix:     ident3,
		Position:   [3]float32{0, 10, 0},
		Scale:      [3]float32{1, 1, 1},
		Vertices:   [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		TexCoords:  []formats.RSMTexCoord{{U: 0, V: 0}, {U: 1, V: 0}, {U: 1, V: 1}},
		Faces: []formats.RSMFace{
			{VertexIDs: [3]uint16{0, 1, 2}, TexCoordIDs: [3]uint16{0, 1, 2}, TextureID: 0},
			{VertexIDs: [3]uint16{0, 2, 3}, TextureID: 1, TwoSide: 1},
			{VertexIDs: [3]uint16{0, 0, 1}},  // degenerate
			{VertexIDs: [3]uint16{0, 1, 99}}, // out of range
		},
		RotKeys: []formats.RSMRotKeyframe{
			{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}},
			{Frame: 2000, Quaternion: [4]float32{0, 0, 1, 0}},
		},
	}
	base := formats.RSMNode{
		Name:       "base",
		TextureIDs: []int32{0},
		Matrix:     ident3,
		Offset:     [3]float32{0, 1, 0},
		Scale:      [3]float32{1, 1, 1},
		Vertices:   [][3]float32{{-1, 0, 0}, {1, 0, 0}, {0, 0, 1}},
		Faces:      []formats.RSMFace{{VertexIDs: [3]uint16{0, 1, 2}}},
	}
	return &formats.RSM{
		Version:    formats.RSMVersion{Major: 1, Minor: 5},
		AnimLength: 2000,
		Alpha:      1,
		Textures:   []string{"wood.bmp", "cloth.bmp"},
		RootNode:   "base",
		// child listed before its parent
		Nodes: []formats.RSMNode{quad, base},
	}
}

func TestEnumerateBeforeRead(t *testing.T) {
	_, err := New("x", nil, Options{}).Enumerate()
	assert.ErrorIs(t, err, ErrNotRead)
}

func TestReadRejectsGarbage(t *testing.T) {
	err := New("broken.rsm", []byte("nope"), Options{}).Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, formats.ErrTruncatedRSMData)
	assert.Contains(t, err.Error(), "broken.rsm")
}

func TestEnumerateHierarchy(t *testing.T) {
	sc, err := withModel(windmill(), Options{}).Enumerate()
	require.NoError(t, err)

	require.Len(t, sc.Nodes, 2)
	assert.Equal(t, "base", sc.Nodes[0].Name)
	assert.Equal(t, []int{0}, sc.Roots)
	assert.Equal(t, 0, sc.Nodes[1].Parent)
	assert.Equal(t, -1, sc.Bounds)

	require.Len(t, sc.Materials, 2)
	assert.Equal(t, "wood.bmp", sc.Materials[0].Texture)
	assert.Zero(t, sc.Materials[0].Flags)

	// Offset is applied to the node's own vertices only.
	require.Len(t, sc.Meshes, 2)
	baseMesh := sc.Meshes[sc.Nodes[0].Meshes[0]]
	assert.InDelta(t, 1, baseMesh.Positions[0].Y(), 1e-6)
	assert.InDelta(t, 10, sc.Nodes[1].Default.Col(3).Y(), 1e-6)
}

func TestEnumerateFaces(t *testing.T) {
	sc, err := withModel(windmill(), Options{}).Enumerate()
	require.NoError(t, err)

	blades := sc.Meshes[sc.Nodes[1].Meshes[0]]
	// one single-sided face plus one two-sided face
	assert.Len(t, blades.Positions, 9)
	require.Len(t, blades.Primitives, 2)

	// primitives follow global texture order
	assert.Equal(t, 0, blades.Primitives[0].Material)
	assert.Equal(t, 6, blades.Primitives[0].Count)
	assert.Equal(t, 1, blades.Primitives[1].Material)
	assert.Equal(t, 3, blades.Primitives[1].Count)
	assert.Equal(t, mgl32.Vec2{1, 1}, blades.UVs[blades.Indices[8]])

	// back face normal points the other way
	front := blades.Normals[blades.Indices[0]]
	back := blades.Normals[blades.Indices[3]]
	assert.InDelta(t, -1, front.Dot(back), 1e-5)
}

func TestForceTwoSided(t *testing.T) {
	sc, err := withModel(windmill(), Options{ForceTwoSided: true}).Enumerate()
	require.NoError(t, err)

	blades := sc.Meshes[sc.Nodes[1].Meshes[0]]
	assert.Len(t, blades.Indices, 12)
	assert.Equal(t, scene.MaterialTwoSided, sc.Materials[0].Flags&scene.MaterialTwoSided)
}

func TestEnumerateAnimation(t *testing.T) {
	sc, err := withModel(windmill(), Options{}).Enumerate()
	require.NoError(t, err)

	require.Len(t, sc.Sequences, 1)
	seq := sc.Sequences[0]
	assert.Equal(t, DefaultSequenceName, seq.Name)
	assert.Equal(t, float32(2), seq.End)
	assert.True(t, seq.Cyclic)
	assert.Equal(t, []string{"blades"}, seq.Targets)

	assert.Nil(t, sc.Nodes[0].Animation)
	require.NotNil(t, sc.Nodes[1].Animation)

	// halfway is a quarter turn about Z
	x := sc.Nodes[1].LocalTransform(1).Mul4x1(mgl32.Vec4{1, 0, 0, 0})
	assert.InDelta(t, 0, x.X(), 1e-4)
	assert.InDelta(t, 1, x.Y(), 1e-4)
}

func TestStaticPoseKey(t *testing.T) {
	m := windmill()
	m.Nodes[0].RotKeys = m.Nodes[0].RotKeys[:1]
	sc, err := withModel(m, Options{}).Enumerate()
	require.NoError(t, err)
	assert.Empty(t, sc.Sequences)
	assert.Nil(t, sc.Nodes[1].Animation)
}

func TestNodeOrderCycles(t *testing.T) {
	m := &formats.RSM{Nodes: []formats.RSMNode{
		{Name: "a", Parent: "b"},
		{Name: "b", Parent: "a"},
		{Name: "c", Parent: "c"},
		{Name: "d", Parent: "missing"},
	}}

	order := nodeOrder(m)
	require.Len(t, order, 4)
	assert.Equal(t, orderedNode{rsm: 2, parent: -1}, order[0])
	assert.Equal(t, orderedNode{rsm: 3, parent: -1}, order[1])
	assert.Equal(t, orderedNode{rsm: 0, parent: -1}, order[2])
	assert.Equal(t, orderedNode{rsm: 1, parent: 2}, order[3])
}

func TestKeySpan(t *testing.T) {
	frames := []int32{0, 100, 300}
	frame := func(i int) int32 { return frames[i] }

	tests := []struct {
		t          float32
		prev, next int
		f          float32
	}{
		{-5, 0, 0, 0},
		{50, 0, 1, 0.5},
		{200, 1, 2, 0.5},
		{300, 2, 2, 0},
		{900, 2, 2, 0},
	}
	for _, tt := range tests {
		prev, next, f := keySpan(len(frames), frame, tt.t)
		assert.Equal(t, tt.prev, prev, "t=%v", tt.t)
		assert.Equal(t, tt.next, next, "t=%v", tt.t)
		assert.InDelta(t, tt.f, f, 1e-6, "t=%v", tt.t)
	}
}

func TestCompileThroughLoader(t *testing.T) {
	sh, diags, err := loader.Compile(parsed{withModel(windmill(), Options{})}, loader.DefaultOptions())
	require.NoError(t, err)
	for _, d := range diags {
		assert.NotEqual(t, loader.SeverityWarning, d.Severity, d.Message)
	}

	require.Len(t, sh.Nodes, 2)
	require.Len(t, sh.Objects, 2)
	assert.Equal(t, "base", sh.Objects[0].Name)
	assert.Equal(t, "blades", sh.Objects[1].Name)
	assert.Equal(t, 2, sh.Objects[1].Details[0].Size)

	require.Len(t, sh.Sequences, 1)
	seq := sh.Sequences[0]
	assert.True(t, seq.Has(shape.SeqCyclic))
	assert.True(t, seq.RotationMatters.Contains(1))
	assert.False(t, seq.RotationMatters.Contains(0))
	assert.Equal(t, 1, sh.Materials.Index("cloth.bmp"))
}
