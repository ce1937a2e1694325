// Package scene defines the importer-facing scene description consumed by the
// shape loader, and the capability interface every source format implements.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultTime selects the default (bind) pose instead of an animation time.
const DefaultTime float32 = -1

// Importer is implemented by every source format.
type Importer interface {
	// Read reads and parses the source. It is called once, before Enumerate.
	Read() error
	// Enumerate returns the scene graph of the parsed source.
	Enumerate() (*Scene, error)
}

// NodeFilter lets a format collapse nodes out of the compiled hierarchy.
type NodeFilter interface {
	IgnoreNode(name string) bool
}

// MeshFilter lets a format drop meshes from the compiled shape.
type MeshFilter interface {
	IgnoreMesh(name string) bool
}

// MeshClassifier lets a format override name-driven mesh classification.
type MeshClassifier interface {
	ClassifyMesh(m *Mesh) Classification
}

// TransformEvaluator returns a node's local transform (relative to its scene
// parent) at time t. t == DefaultTime asks for the default pose.
type TransformEvaluator interface {
	LocalTransform(t float32) mgl32.Mat4
}

// TransformFunc adapts a function to TransformEvaluator.
type TransformFunc func(t float32) mgl32.Mat4

func (f TransformFunc) LocalTransform(t float32) mgl32.Mat4 { return f(t) }

// ObjectState is the non-transform animated state of a mesh.
type ObjectState struct {
	Visibility    float32
	Frame         int
	MaterialFrame int
}

// DefaultState is the state of a mesh without a state evaluator.
var DefaultState = ObjectState{Visibility: 1}

// StateEvaluator returns a mesh's animated state at time t.
type StateEvaluator interface {
	State(t float32) ObjectState
}

// StateFunc adapts a function to StateEvaluator.
type StateFunc func(t float32) ObjectState

func (f StateFunc) State(t float32) ObjectState { return f(t) }

// Scene is the complete description returned by Importer.Enumerate.
// Nodes and meshes reference each other by index into the scene slices.
type Scene struct {
	Name      string
	Roots     []int
	Nodes     []Node
	Meshes    []Mesh
	Materials []Material
	Sequences []Sequence
	// Bounds is the index of the bounds node, or -1. The bounds node carries
	// ground motion and is never compiled as a regular node.
	Bounds int
}

// Node is one element of the scene hierarchy.
type Node struct {
	Name     string
	Parent   int
	Children []int
	Meshes   []int
	// NewSubshape marks the node as the root of its own subshape.
	NewSubshape bool
	// Default is the local transform in the default pose.
	Default mgl32.Mat4
	// Animation evaluates the local transform over time. Nil for static nodes.
	Animation TransformEvaluator
}

// LocalTransform evaluates the node at time t.
func (n *Node) LocalTransform(t float32) mgl32.Mat4 {
	if n.Animation == nil || t == DefaultTime {
		return n.Default
	}
	return n.Animation.LocalTransform(t)
}

// MeshKind is an importer hint for classification.
type MeshKind int

const (
	// KindAuto lets the classifier decide from the mesh contents.
	KindAuto MeshKind = iota
	KindDetail
	KindSkin
	KindIgnore
)

func (k MeshKind) String() string {
	switch k {
	case KindDetail:
		return "detail"
	case KindSkin:
		return "skin"
	case KindIgnore:
		return "ignore"
	default:
		return "auto"
	}
}

// Classification is the resolved role of a mesh.
type Classification struct {
	Kind   MeshKind
	Object string
	Size   int
}

// Primitive is a run of triangle indices drawn with one material.
type Primitive struct {
	Start    int
	Count    int
	Material int
}

// Influence binds one vertex to one bone with a weight.
type Influence struct {
	Vertex int
	Bone   int
	Weight float32
}

// Mesh is renderable geometry attached to a node. Positions are in the
// node's space for detail meshes and in bind space for skins.
type Mesh struct {
	Name       string
	Kind       MeshKind
	Node       int
	Positions  []mgl32.Vec3
	Normals    []mgl32.Vec3
	UVs        []mgl32.Vec2
	Indices    []uint32
	Primitives []Primitive
	// Frames holds vertex-animation frames, each the same length as Positions.
	Frames [][]mgl32.Vec3

	// Bones names the nodes a skin is bound to; InverseBinds holds one matrix
	// per bone.
	Bones        []string
	InverseBinds []mgl32.Mat4
	Influences   []Influence

	States StateEvaluator
}

// State evaluates the mesh state at time t.
func (m *Mesh) State(t float32) ObjectState {
	if m.States == nil {
		return DefaultState
	}
	return m.States.State(t)
}

// Material is a named surface description.
type Material struct {
	Name    string
	Texture string
	Flags   uint32
}

// Material flags.
const (
	MaterialTwoSided uint32 = 1 << iota
	MaterialTranslucent
)

// Trigger is a named event on a sequence timeline. State identifies the
// trigger state; On tells whether it is switched on or off.
type Trigger struct {
	Time  float32
	State int
	On    bool
}

// Sequence is one animation clip.
type Sequence struct {
	Name      string
	Start     float32
	End       float32
	FrameRate float32
	Cyclic    bool
	Blend     bool
	// BlendRefTime is the reference pose time for blend sequences.
	BlendRefTime float32
	Priority     int
	// Ground requests ground motion extracted from the bounds node.
	Ground bool
	// Targets lists node names the clip animates. A clip whose target is not
	// part of the compiled shape is skipped.
	Targets  []string
	Triggers []Trigger
}

// Duration returns End - Start.
func (s *Sequence) Duration() float32 {
	return s.End - s.Start
}

// NewScene returns an empty scene with no bounds node.
func NewScene(name string) *Scene {
	return &Scene{Name: name, Bounds: -1}
}

// AddNode appends a node under parent (-1 for a root) and returns its index.
func (s *Scene) AddNode(name string, parent int, local mgl32.Mat4) int {
	idx := len(s.Nodes)
	s.Nodes = append(s.Nodes, Node{Name: name, Parent: parent, Default: local})
	if parent < 0 {
		s.Roots = append(s.Roots, idx)
	} else {
		s.Nodes[parent].Children = append(s.Nodes[parent].Children, idx)
	}
	return idx
}

// AddMesh appends a mesh and attaches it to its node.
func (s *Scene) AddMesh(m Mesh) int {
	idx := len(s.Meshes)
	s.Meshes = append(s.Meshes, m)
	if m.Node >= 0 && m.Node < len(s.Nodes) {
		s.Nodes[m.Node].Meshes = append(s.Nodes[m.Node].Meshes, idx)
	}
	return idx
}

// NodeByName returns the index of the first node with the given name, or -1.
func (s *Scene) NodeByName(name string) int {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return i
		}
	}
	return -1
}
