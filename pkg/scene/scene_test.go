package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneBuilders(t *testing.T) {
	s := NewScene("test")
	require.Equal(t, -1, s.Bounds)

	root := s.AddNode("root", -1, mgl32.Ident4())
	child := s.AddNode("child", root, mgl32.Translate3D(1, 0, 0))
	mesh := s.AddMesh(Mesh{Name: "box2", Node: child})

	assert.Equal(t, []int{root}, s.Roots)
	assert.Equal(t, []int{child}, s.Nodes[root].Children)
	assert.Equal(t, []int{mesh}, s.Nodes[child].Meshes)
	assert.Equal(t, child, s.NodeByName("child"))
	assert.Equal(t, -1, s.NodeByName("missing"))
}

func TestNodeLocalTransform(t *testing.T) {
	n := Node{Default: mgl32.Ident4()}
	assert.Equal(t, mgl32.Ident4(), n.LocalTransform(0.5))

	n.Animation = TransformFunc(func(t float32) mgl32.Mat4 {
		return mgl32.Translate3D(t, 0, 0)
	})
	assert.Equal(t, mgl32.Translate3D(0.5, 0, 0), n.LocalTransform(0.5))
	assert.Equal(t, mgl32.Ident4(), n.LocalTransform(DefaultTime))
}

func TestMeshState(t *testing.T) {
	m := Mesh{}
	assert.Equal(t, DefaultState, m.State(0))

	m.States = StateFunc(func(t float32) ObjectState {
		return ObjectState{Visibility: 1 - t}
	})
	assert.Equal(t, float32(0.75), m.State(0.25).Visibility)
}
