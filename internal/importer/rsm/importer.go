// Package rsm imports Ragnarok Online RSM models as shape scenes.
//
// Every RSM node becomes a scene node carrying its own mesh. Textures become
// materials, and models with keyframes get one cyclic clip spanning the
// model's animation length.
package rsm

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-shape/pkg/formats"
	"github.com/Faultbox/midgard-shape/pkg/scene"
)

// DefaultSequenceName names the clip built from the model's keyframes.
const DefaultSequenceName = "ambient"

// detailSize is the detail size of every RSM mesh. RSM carries no levels of
// detail, so node names are never parsed for a size.
const detailSize = 2

// ErrNotRead is returned by Enumerate before a successful Read.
var ErrNotRead = errors.New("rsm: model not read")

// Options controls mesh building.
type Options struct {
	// ReverseWinding flips triangle winding, for mirrored placements.
	ReverseWinding bool
	// ForceTwoSided emits back faces for every face.
	ForceTwoSided bool
	// SequenceName overrides DefaultSequenceName.
	SequenceName string
}

// Importer reads one RSM model.
type Importer struct {
	name  string
	data  []byte
	opts  Options
	model *formats.RSM
}

// New returns an importer for the RSM bytes in data. name becomes the scene name.
func New(name string, data []byte, opts Options) *Importer {
	if opts.SequenceName == "" {
		opts.SequenceName = DefaultSequenceName
	}
	return &Importer{name: name, data: data, opts: opts}
}

// Read parses the model.
func (im *Importer) Read() error {
	model, err := formats.ParseRSM(im.data)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", im.name)
	}
	im.model = model
	im.data = nil
	return nil
}

// Model returns the parsed model, or nil before Read.
func (im *Importer) Model() *formats.RSM {
	return im.model
}

// ClassifyMesh keeps node names intact: every mesh is its own object at the
// single RSM detail size.
func (im *Importer) ClassifyMesh(m *scene.Mesh) scene.Classification {
	return scene.Classification{Kind: scene.KindDetail, Object: m.Name, Size: detailSize}
}

// Enumerate builds the scene graph of the parsed model.
func (im *Importer) Enumerate() (*scene.Scene, error) {
	model := im.model
	if model == nil {
		return nil, ErrNotRead
	}

	sc := scene.NewScene(im.name)
	for _, tex := range model.Textures {
		mat := scene.Material{Name: tex, Texture: tex}
		if model.Alpha < 1 {
			mat.Flags |= scene.MaterialTranslucent
		}
		if im.opts.ForceTwoSided {
			mat.Flags |= scene.MaterialTwoSided
		}
		sc.Materials = append(sc.Materials, mat)
	}

	animated := model.HasAnimation()
	smooth := model.Shading == formats.RSMShadingSmooth
	var targets []string

	for _, ni := range nodeOrder(model) {
		node := &model.Nodes[ni.rsm]
		idx := sc.AddNode(node.Name, ni.parent, nodeLocal(node, 0))
		if animated && isAnimated(node) {
			sc.Nodes[idx].Animation = scene.TransformFunc(func(t float32) mgl32.Mat4 {
				return nodeLocal(node, t*1000)
			})
			targets = append(targets, node.Name)
		}
		if m, ok := buildMesh(node, im.opts, smooth); ok {
			m.Node = idx
			sc.AddMesh(m)
		}
	}

	if animated {
		sc.Sequences = append(sc.Sequences, scene.Sequence{
			Name:    im.opts.SequenceName,
			Start:   0,
			End:     float32(model.AnimLength) / 1000,
			Cyclic:  true,
			Targets: targets,
		})
	}
	return sc, nil
}

type orderedNode struct {
	rsm    int
	parent int // scene index, -1 for roots
}

// nodeOrder lists RSM nodes parents-first, resolving parents by name. Nodes
// without a resolvable parent, or caught in a parent cycle, become roots.
func nodeOrder(model *formats.RSM) []orderedNode {
	n := len(model.Nodes)
	parent := make([]int, n)
	children := make([][]int, n)
	for i := range model.Nodes {
		node := &model.Nodes[i]
		parent[i] = -1
		if node.Parent == "" || node.Parent == node.Name {
			continue
		}
		if p := model.GetNodeIndex(node.Parent); p >= 0 && p != i {
			parent[i] = p
			children[p] = append(children[p], i)
		}
	}

	order := make([]orderedNode, 0, n)
	sceneIndex := make([]int, n)
	visited := make([]bool, n)
	var visit func(i, sceneParent int)
	visit = func(i, sceneParent int) {
		visited[i] = true
		sceneIndex[i] = len(order)
		order = append(order, orderedNode{rsm: i, parent: sceneParent})
		for _, c := range children[i] {
			if !visited[c] {
				visit(c, sceneIndex[i])
			}
		}
	}

	for i := range model.Nodes {
		if parent[i] < 0 && !visited[i] {
			visit(i, -1)
		}
	}
	for i := range model.Nodes {
		if !visited[i] {
			visit(i, -1)
		}
	}
	return order
}
