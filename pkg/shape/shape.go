// Package shape holds the compiled, engine-ready form of a model: node
// skeleton, subshapes, objects with detail levels, materials and packed
// animation sequences. A Shape references no importer data.
package shape

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// NoMaterial marks a primitive whose material could not be resolved.
const NoMaterial = -1

// Shape is the compiled model.
type Shape struct {
	Name      string       `yaml:"name"`
	Nodes     []Node       `yaml:"nodes"`
	Subshapes []Subshape   `yaml:"subshapes"`
	Objects   []Object     `yaml:"objects"`
	Meshes    []Mesh       `yaml:"-"`
	Materials MaterialList `yaml:"materials"`
	// Details is the shape-level detail list, sorted by non-increasing size.
	Details       []Detail      `yaml:"details"`
	DefaultStates []ObjectState `yaml:"default_states"`
	Sequences     []Sequence    `yaml:"sequences"`
	Bounds        Box           `yaml:"bounds"`
	Radius        float32       `yaml:"radius"`
	// Scale is the most general scale kind used by any sequence.
	Scale xform.ScaleKind `yaml:"scale"`
}

// Node is one element of the compiled skeleton.
type Node struct {
	Name    string          `yaml:"name"`
	Parent  int             `yaml:"parent"`
	Default xform.Transform `yaml:"default"`
}

// Subshape is an independently animatable branch. Its nodes and objects are
// contiguous ranges of the shape's lists.
type Subshape struct {
	FirstNode   int   `yaml:"first_node"`
	NumNodes    int   `yaml:"num_nodes"`
	FirstObject int   `yaml:"first_object"`
	NumObjects  int   `yaml:"num_objects"`
	Roots       []int `yaml:"roots"`
}

// ContainsNode reports whether node lies in the subshape's node range.
func (s Subshape) ContainsNode(node int) bool {
	return node >= s.FirstNode && node < s.FirstNode+s.NumNodes
}

// Object is a renderable attached to a node (-1 for skins), with detail
// levels sorted by non-increasing size.
type Object struct {
	Name    string        `yaml:"name"`
	Node    int           `yaml:"node"`
	Details []DetailLevel `yaml:"details"`
}

// DetailLevel pairs a size threshold with a mesh index.
type DetailLevel struct {
	Size int `yaml:"size"`
	Mesh int `yaml:"mesh"`
}

// SelectDetail returns the index of the first level whose size does not
// exceed size, or -1 when size is below every threshold.
func (o *Object) SelectDetail(size int) int {
	for i, d := range o.Details {
		if d.Size <= size {
			return i
		}
	}
	return -1
}

// Detail is an entry of the shape-level detail list.
type Detail struct {
	Name     string `yaml:"name"`
	Size     int    `yaml:"size"`
	Subshape int    `yaml:"subshape"`
}

// MeshKind distinguishes rigid meshes from skins.
type MeshKind int

const (
	MeshStandard MeshKind = iota
	MeshSkin
)

// Primitive is a run of triangle indices drawn with one material.
type Primitive struct {
	Start    int `yaml:"start"`
	Count    int `yaml:"count"`
	Material int `yaml:"material"`
}

// Influence binds a vertex to an entry of the mesh bone table.
type Influence struct {
	Vertex int     `yaml:"vertex"`
	Bone   int     `yaml:"bone"`
	Weight float32 `yaml:"weight"`
}

// Mesh is packed geometry. Bones holds final node indices.
type Mesh struct {
	Kind         MeshKind
	Positions    []mgl32.Vec3
	Normals      []mgl32.Vec3
	UVs          []mgl32.Vec2
	Indices      []uint32
	Primitives   []Primitive
	Frames       [][]mgl32.Vec3
	Bones        []int
	InverseBinds []mgl32.Mat4
	Influences   []Influence
}

// Material is a deduplicated surface entry.
type Material struct {
	Name    string `yaml:"name"`
	Texture string `yaml:"texture,omitempty"`
	Flags   uint32 `yaml:"flags,omitempty"`
}

// MaterialList is unique by name and keeps first-occurrence order.
type MaterialList []Material

// Index returns the index of the named material, or NoMaterial.
func (l MaterialList) Index(name string) int {
	for i := range l {
		if l[i].Name == name {
			return i
		}
	}
	return NoMaterial
}

// ObjectState is the non-transform state of an object.
type ObjectState struct {
	Visibility    float32 `yaml:"vis"`
	Frame         int     `yaml:"frame"`
	MaterialFrame int     `yaml:"mat_frame"`
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl32.Vec3 `yaml:"min"`
	Max mgl32.Vec3 `yaml:"max"`
}

// NodeIndex returns the index of the named node, or -1.
func (s *Shape) NodeIndex(name string) int {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return i
		}
	}
	return -1
}

// ObjectIndex returns the index of the named object, or -1.
func (s *Shape) ObjectIndex(name string) int {
	for i := range s.Objects {
		if s.Objects[i].Name == name {
			return i
		}
	}
	return -1
}

// SequenceIndex returns the index of the named sequence, or -1.
func (s *Shape) SequenceIndex(name string) int {
	for i := range s.Sequences {
		if s.Sequences[i].Name == name {
			return i
		}
	}
	return -1
}

// SelectDetail returns the index of the first shape detail whose size does not
// exceed size, or -1.
func (s *Shape) SelectDetail(size int) int {
	for i, d := range s.Details {
		if d.Size <= size {
			return i
		}
	}
	return -1
}

// Members is a sorted set of node or object indices.
type Members []int

// Contains reports whether i is in the set.
func (m Members) Contains(i int) bool {
	j := sort.SearchInts(m, i)
	return j < len(m) && m[j] == i
}
