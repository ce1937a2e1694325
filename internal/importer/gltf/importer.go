// Package gltf imports glTF 2.0 documents (.gltf and .glb) as shape scenes.
//
// Nodes of the default scene become scene nodes, meshes keep one primitive
// per glTF primitive, skins carry their joints and inverse bind matrices, and
// every animation becomes a sequence. Animations are laid end to end on one
// timeline so that each node needs a single evaluator. A root node named
// "bounds" is used as the bounds node and drives ground motion.
//
// Buffers must be embedded (GLB chunk or data URI).
package gltf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// BoundsNodeName names the root node treated as the bounds node.
const BoundsNodeName = "bounds"

// detailSize is the size of the single detail level every mesh lands in.
const detailSize = 2

// ErrNotRead is returned by Enumerate before a successful Read.
var ErrNotRead = errors.New("gltf: document not read")

// Importer reads one glTF document.
type Importer struct {
	name string
	data []byte
	doc  *gltf.Document
}

// New returns an importer for the glTF or GLB bytes in data.
func New(name string, data []byte) *Importer {
	return &Importer{name: name, data: data}
}

// Read decodes the document.
func (im *Importer) Read() error {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(im.data)).Decode(doc); err != nil {
		return errors.Wrapf(err, "decoding %s", im.name)
	}
	im.doc = doc
	im.data = nil
	return nil
}

// ClassifyMesh makes every node's mesh its own object. Exporters append
// numbers to duplicated names ("Cube.001"), so names never encode detail
// levels here.
func (im *Importer) ClassifyMesh(m *scene.Mesh) scene.Classification {
	kind := m.Kind
	if kind == scene.KindAuto {
		kind = scene.KindDetail
		if len(m.Bones) > 0 {
			kind = scene.KindSkin
		}
	}
	return scene.Classification{Kind: kind, Object: m.Name, Size: detailSize}
}

// Enumerate builds the scene graph of the decoded document.
func (im *Importer) Enumerate() (*scene.Scene, error) {
	if im.doc == nil {
		return nil, ErrNotRead
	}
	b := &builder{
		doc:        im.doc,
		sc:         scene.NewScene(im.name),
		sceneIndex: make(map[int]int),
		visited:    make(map[int]bool),
	}

	b.materials()
	roots, err := b.roots()
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		b.addNode(r, -1)
	}

	clips, err := b.readClips()
	if err != nil {
		return nil, err
	}
	b.animate(clips)

	if err := b.meshes(); err != nil {
		return nil, err
	}
	for _, c := range clips {
		b.sc.Sequences = append(b.sc.Sequences, b.sequence(c))
	}
	return b.sc, nil
}

type builder struct {
	doc        *gltf.Document
	sc         *scene.Scene
	sceneIndex map[int]int // glTF node -> scene node
	visited    map[int]bool
}

// index unwraps a glTF index field. Optional indices are pointers and may be nil.
func index(v any) (int, bool) {
	switch x := v.(type) {
	case uint32:
		return int(x), true
	case int:
		return x, true
	case *uint32:
		if x == nil {
			return 0, false
		}
		return int(*x), true
	case *int:
		if x == nil {
			return 0, false
		}
		return *x, true
	}
	return 0, false
}

func (b *builder) roots() ([]int, error) {
	doc := b.doc
	if len(doc.Scenes) == 0 {
		// no scene: every parentless node is a root
		child := make(map[int]bool)
		for _, n := range doc.Nodes {
			for _, c := range n.Children {
				ci, _ := index(c)
				child[ci] = true
			}
		}
		var roots []int
		for i := range doc.Nodes {
			if !child[i] {
				roots = append(roots, i)
			}
		}
		return roots, nil
	}

	s := 0
	if i, ok := index(doc.Scene); ok && i < len(doc.Scenes) {
		s = i
	}
	var roots []int
	for _, n := range doc.Scenes[s].Nodes {
		i, _ := index(n)
		if i >= len(doc.Nodes) {
			return nil, errors.Errorf("scene %d references node %d of %d", s, i, len(doc.Nodes))
		}
		roots = append(roots, i)
	}
	return roots, nil
}

func (b *builder) nodeName(gi int) string {
	if name := b.doc.Nodes[gi].Name; name != "" {
		return name
	}
	return fmt.Sprintf("node%d", gi)
}

var identity16 = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// baseTransform is the node's pose outside any animation.
func baseTransform(n *gltf.Node) (xform.Transform, mgl32.Mat4) {
	if n.Matrix != [16]float32{} && n.Matrix != identity16 {
		m := mgl32.Mat4(n.Matrix)
		return xform.Decompose(m), m
	}
	x := xform.Identity()
	x.Translation = n.Translation
	if n.Rotation != [4]float32{} {
		x.Rotation = quat(n.Rotation).Normalize()
	}
	if n.Scale != [3]float32{} {
		x.Scale = n.Scale
	}
	return x, x.Mat4()
}

func (b *builder) addNode(gi, parent int) {
	if gi < 0 || gi >= len(b.doc.Nodes) || b.visited[gi] {
		return
	}
	b.visited[gi] = true

	n := b.doc.Nodes[gi]
	_, local := baseTransform(n)
	name := b.nodeName(gi)
	idx := b.sc.AddNode(name, parent, local)
	b.sceneIndex[gi] = idx
	if parent < 0 && b.sc.Bounds < 0 && strings.EqualFold(name, BoundsNodeName) {
		b.sc.Bounds = idx
	}
	for _, c := range n.Children {
		ci, _ := index(c)
		b.addNode(ci, idx)
	}
}

// animate attaches an evaluator to every scene node some clip drives.
func (b *builder) animate(clips []*clip) {
	driven := make(map[int]bool)
	for _, c := range clips {
		for gi := range c.nodes {
			driven[gi] = true
		}
	}
	for gi := range driven {
		idx, ok := b.sceneIndex[gi]
		if !ok {
			continue
		}
		base, _ := baseTransform(b.doc.Nodes[gi])
		b.sc.Nodes[idx].Animation = &animatedNode{node: gi, base: base, clips: clips}
	}
}

func (b *builder) materials() {
	for i, mat := range b.doc.Materials {
		m := scene.Material{Name: mat.Name, Texture: b.texture(mat)}
		if m.Name == "" {
			m.Name = fmt.Sprintf("material%d", i)
		}
		if mat.DoubleSided {
			m.Flags |= scene.MaterialTwoSided
		}
		if mat.AlphaMode == gltf.AlphaBlend {
			m.Flags |= scene.MaterialTranslucent
		}
		b.sc.Materials = append(b.sc.Materials, m)
	}
}

// texture returns the image URI, or image name for embedded images, of the
// material's base color texture.
func (b *builder) texture(mat *gltf.Material) string {
	if mat.PBRMetallicRoughness == nil || mat.PBRMetallicRoughness.BaseColorTexture == nil {
		return ""
	}
	ti, _ := index(mat.PBRMetallicRoughness.BaseColorTexture.Index)
	if ti >= len(b.doc.Textures) {
		return ""
	}
	src, ok := index(b.doc.Textures[ti].Source)
	if !ok || src >= len(b.doc.Images) {
		return ""
	}
	img := b.doc.Images[src]
	if img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
		return img.URI
	}
	return img.Name
}

func (b *builder) meshes() error {
	used := make(map[string]bool)
	for gi, n := range b.doc.Nodes {
		mi, ok := index(n.Mesh)
		if !ok {
			continue
		}
		idx, ok := b.sceneIndex[gi]
		if !ok {
			continue
		}
		if mi >= len(b.doc.Meshes) {
			return errors.Errorf("node %q references mesh %d of %d", b.nodeName(gi), mi, len(b.doc.Meshes))
		}
		m, err := b.mesh(b.doc.Meshes[mi], n)
		if err != nil {
			return errors.Wrapf(err, "mesh of node %q", b.nodeName(gi))
		}
		m.Name = b.nodeName(gi)
		for i := 1; used[m.Name]; i++ {
			m.Name = fmt.Sprintf("%s_%d", b.nodeName(gi), i)
		}
		used[m.Name] = true
		m.Node = idx
		b.sc.AddMesh(m)
	}
	return nil
}

func (b *builder) accessor(i int) (*gltf.Accessor, error) {
	if i < 0 || i >= len(b.doc.Accessors) {
		return nil, errors.Errorf("accessor %d of %d", i, len(b.doc.Accessors))
	}
	return b.doc.Accessors[i], nil
}

// mesh merges the triangle primitives of gm into one scene mesh with one
// scene primitive each.
func (b *builder) mesh(gm *gltf.Mesh, n *gltf.Node) (scene.Mesh, error) {
	var m scene.Mesh
	skin, skinned := index(n.Skin)
	if skinned {
		if skin >= len(b.doc.Skins) {
			return m, errors.Errorf("skin %d of %d", skin, len(b.doc.Skins))
		}
		if err := b.bind(&m, b.doc.Skins[skin]); err != nil {
			return m, err
		}
		m.Kind = scene.KindSkin
	}

	var hasNormals, hasUVs bool
	for pi, p := range gm.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			continue
		}
		ai, ok := p.Attributes["POSITION"]
		if !ok {
			return m, errors.Errorf("primitive %d has no positions", pi)
		}
		acr, err := b.accessor(int(ai))
		if err != nil {
			return m, err
		}
		pos, err := modeler.ReadPosition(b.doc, acr, nil)
		if err != nil {
			return m, errors.Wrapf(err, "primitive %d positions", pi)
		}
		base := len(m.Positions)
		nv := len(pos)
		for _, v := range pos {
			m.Positions = append(m.Positions, v)
		}

		normals := make([]mgl32.Vec3, nv)
		if ai, ok := p.Attributes["NORMAL"]; ok {
			acr, err := b.accessor(int(ai))
			if err != nil {
				return m, err
			}
			read, err := modeler.ReadNormal(b.doc, acr, nil)
			if err != nil {
				return m, errors.Wrapf(err, "primitive %d normals", pi)
			}
			for i := 0; i < nv && i < len(read); i++ {
				normals[i] = read[i]
			}
			hasNormals = true
		}
		m.Normals = append(m.Normals, normals...)

		uvs := make([]mgl32.Vec2, nv)
		if ai, ok := p.Attributes["TEXCOORD_0"]; ok {
			acr, err := b.accessor(int(ai))
			if err != nil {
				return m, err
			}
			read, err := modeler.ReadTextureCoord(b.doc, acr, nil)
			if err != nil {
				return m, errors.Wrapf(err, "primitive %d uvs", pi)
			}
			for i := 0; i < nv && i < len(read); i++ {
				uvs[i] = read[i]
			}
			hasUVs = true
		}
		m.UVs = append(m.UVs, uvs...)

		var indices []uint32
		if ii, ok := index(p.Indices); ok {
			acr, err := b.accessor(ii)
			if err != nil {
				return m, err
			}
			if indices, err = modeler.ReadIndices(b.doc, acr, nil); err != nil {
				return m, errors.Wrapf(err, "primitive %d indices", pi)
			}
		} else {
			indices = make([]uint32, nv)
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		material := -1
		if mi, ok := index(p.Material); ok {
			material = mi
		}
		m.Primitives = append(m.Primitives, scene.Primitive{
			Start:    len(m.Indices),
			Count:    len(indices),
			Material: material,
		})
		for _, idx := range indices {
			m.Indices = append(m.Indices, uint32(base)+idx)
		}

		if skinned {
			if err := b.influences(&m, p, base, nv); err != nil {
				return m, errors.Wrapf(err, "primitive %d", pi)
			}
		}
	}

	if !hasNormals {
		m.Normals = nil
	}
	if !hasUVs {
		m.UVs = nil
	}
	return m, nil
}

// bind copies the skin's joint names and inverse bind matrices.
func (b *builder) bind(m *scene.Mesh, skin *gltf.Skin) error {
	for _, j := range skin.Joints {
		ji, _ := index(j)
		if ji >= len(b.doc.Nodes) {
			return errors.Errorf("skin joint %d of %d nodes", ji, len(b.doc.Nodes))
		}
		m.Bones = append(m.Bones, b.nodeName(ji))
	}

	m.InverseBinds = make([]mgl32.Mat4, len(m.Bones))
	ai, ok := index(skin.InverseBindMatrices)
	if !ok {
		for i := range m.InverseBinds {
			m.InverseBinds[i] = mgl32.Ident4()
		}
		return nil
	}
	acr, err := b.accessor(ai)
	if err != nil {
		return err
	}
	raw, err := modeler.ReadAccessor(b.doc, acr, nil)
	if err != nil {
		return errors.Wrap(err, "inverse bind matrices")
	}
	mats, ok := raw.([][4][4]float32)
	if !ok || len(mats) != len(m.Bones) {
		return errors.Errorf("inverse bind matrices: got %T for %d joints", raw, len(m.Bones))
	}
	for i, mat := range mats {
		var out mgl32.Mat4
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				out[c*4+r] = mat[c][r]
			}
		}
		m.InverseBinds[i] = out
	}
	return nil
}

// influences reads JOINTS_0 / WEIGHTS_0 of one primitive. Zero weights are dropped.
func (b *builder) influences(m *scene.Mesh, p *gltf.Primitive, base, nv int) error {
	ja, jok := p.Attributes["JOINTS_0"]
	wa, wok := p.Attributes["WEIGHTS_0"]
	if !jok || !wok {
		return nil
	}
	jacr, err := b.accessor(int(ja))
	if err != nil {
		return err
	}
	wacr, err := b.accessor(int(wa))
	if err != nil {
		return err
	}
	joints, err := modeler.ReadJoints(b.doc, jacr, nil)
	if err != nil {
		return errors.Wrap(err, "joints")
	}
	weights, err := modeler.ReadWeights(b.doc, wacr, nil)
	if err != nil {
		return errors.Wrap(err, "weights")
	}
	if len(joints) != nv || len(weights) != nv {
		return errors.Errorf("%d joints and %d weights for %d vertices", len(joints), len(weights), nv)
	}
	for v := 0; v < nv; v++ {
		for k := 0; k < 4; k++ {
			if weights[v][k] <= 0 {
				continue
			}
			m.Influences = append(m.Influences, scene.Influence{
				Vertex: base + v,
				Bone:   int(joints[v][k]),
				Weight: weights[v][k],
			})
		}
	}
	return nil
}
