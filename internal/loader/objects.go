package loader

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

// objectRec is an object before install. sceneNode is the scene node of the
// highest detail mesh, or -1 for skins; install maps it to a shape node.
type objectRec struct {
	name      string
	subshape  int
	sceneNode int
	skin      bool
	levels    []levelRec
	// stateMesh is the scene mesh whose state evaluator drives the object.
	stateMesh int
	// bones is the union of shape nodes deforming a skin.
	bones []int
}

type levelRec struct {
	size int
	mesh int
}

// pendingMesh is packed geometry whose primitive materials still index the
// scene material list.
type pendingMesh struct {
	mesh      shape.Mesh
	source    int
	sceneNode int
}

type skinCandidate struct {
	mesh     int
	subshape int
	cls      scene.Classification
}

func (l *Loader) classify(m *scene.Mesh) scene.Classification {
	var cls scene.Classification
	if c, ok := l.imp.(scene.MeshClassifier); ok {
		cls = c.ClassifyMesh(m)
	} else {
		cls = classifyMesh(m)
	}
	if cls.Object == "" {
		cls.Object = m.Name
	}
	if l.opts.FixDetailSize {
		cls.Size = l.opts.FixedDetailSize
	}
	return cls
}

func (l *Loader) ignoreMesh(name string) bool {
	if f, ok := l.imp.(scene.MeshFilter); ok {
		return f.IgnoreMesh(name)
	}
	return false
}

// generateObjects groups detail meshes into objects per subshape, in order of
// first appearance, and sorts their detail levels by descending size.
func (l *Loader) generateObjects() {
	sc := l.scene
	for si, s := range l.subshapes {
		index := make(map[string]int)
		for _, mi := range s.meshes {
			m := &sc.Meshes[mi]
			if l.ignoreMesh(m.Name) {
				l.debugf("mesh %q ignored", m.Name)
				continue
			}
			cls := l.classify(m)
			switch cls.Kind {
			case scene.KindIgnore:
				l.debugf("mesh %q classified as ignored", m.Name)
				continue
			case scene.KindSkin:
				l.skinMeshes = append(l.skinMeshes, skinCandidate{mesh: mi, subshape: si, cls: cls})
				continue
			}
			if err := validateMesh(m); err != nil {
				l.warnf("mesh %q dropped: %v", m.Name, err)
				continue
			}
			if l.attach[l.meshNode[mi]] < 0 {
				l.warnf("detail mesh %q has no owning node, dropped", m.Name)
				continue
			}

			oi, ok := index[cls.Object]
			if !ok {
				oi = len(l.objects)
				index[cls.Object] = oi
				l.objects = append(l.objects, objectRec{
					name:      cls.Object,
					subshape:  si,
					sceneNode: -1,
					stateMesh: mi,
				})
			}
			pm := len(l.meshes)
			l.meshes = append(l.meshes, pendingMesh{mesh: copyMesh(m), source: mi, sceneNode: l.meshNode[mi]})
			l.objects[oi].levels = append(l.objects[oi].levels, levelRec{size: cls.Size, mesh: pm})
			l.addDetail(si, cls.Object, cls.Size)
		}
	}

	for i := range l.objects {
		o := &l.objects[i]
		l.sortLevels(o)
		top := l.meshes[o.levels[0].mesh]
		o.sceneNode = top.sceneNode
		o.stateMesh = top.source
	}
	l.progress("Generating objects", len(l.objects), len(l.objects))
}

// sortLevels orders levels by non-increasing size. Equal sizes keep their
// input order; the first one wins at selection time.
func (l *Loader) sortLevels(o *objectRec) {
	sort.SliceStable(o.levels, func(a, b int) bool {
		return o.levels[a].size > o.levels[b].size
	})
	for i := 1; i < len(o.levels); i++ {
		if o.levels[i].size == o.levels[i-1].size {
			l.debugf("object %q has two detail levels of size %d", o.name, o.levels[i].size)
		}
	}
}

func (l *Loader) addDetail(sub int, object string, size int) {
	s := l.subshapes[sub]
	for _, d := range s.details {
		if d.Size == size {
			return
		}
	}
	s.details = append(s.details, shape.Detail{Name: detailName(object, size), Size: size, Subshape: sub})
}

// generateSkins merges skin meshes that share bones, transitively, into one
// object per group. Meshes of equal detail size are concatenated.
func (l *Loader) generateSkins() {
	sc := l.scene
	var cands []skinCandidate
	for _, c := range l.skinMeshes {
		if err := validateSkin(&sc.Meshes[c.mesh]); err != nil {
			l.warnf("skin %q dropped: %v", sc.Meshes[c.mesh].Name, err)
			continue
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return
	}

	uf := newUnionFind(len(cands))
	owner := make(map[string]int)
	for i, c := range cands {
		for _, b := range sc.Meshes[c.mesh].Bones {
			if j, ok := owner[b]; ok {
				uf.union(i, j)
			} else {
				owner[b] = i
			}
		}
	}

	var roots []int
	groups := make(map[int][]int)
	for i := range cands {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	warned := make(map[string]bool)
	for gi, r := range roots {
		members := groups[r]
		first := cands[members[0]]
		o := objectRec{
			name:      first.cls.Object,
			subshape:  first.subshape,
			sceneNode: -1,
			skin:      true,
			stateMesh: first.mesh,
		}

		var sizes []int
		bySize := make(map[int][]*scene.Mesh)
		for _, ci := range members {
			c := cands[ci]
			if _, ok := bySize[c.cls.Size]; !ok {
				sizes = append(sizes, c.cls.Size)
			}
			bySize[c.cls.Size] = append(bySize[c.cls.Size], &sc.Meshes[c.mesh])
		}
		sort.Sort(sort.Reverse(sort.IntSlice(sizes)))

		levels := make([]shape.Mesh, len(sizes))
		boneNames := make([][]string, len(sizes))
		resolved := 0
		for li, size := range sizes {
			merged, names := mergeSkins(bySize[size])
			merged.Bones = make([]int, len(names))
			for bi, name := range names {
				n, ok := l.resolveBone(name)
				if ok {
					resolved++
				}
				merged.Bones[bi] = n
			}
			levels[li], boneNames[li] = merged, names
		}
		if len(l.nodes) == 0 || resolved == 0 {
			l.warnf("skin %q dropped: none of its bones is a node", o.name)
			continue
		}

		boneSet := make(map[int]bool)
		for li, merged := range levels {
			for bi, n := range merged.Bones {
				if n < 0 {
					name := boneNames[li][bi]
					if !warned[name] {
						l.warnf("skin bone %q not found, bound to node 0", name)
						warned[name] = true
					}
					n = 0
					merged.Bones[bi] = n
				}
				if !boneSet[n] {
					boneSet[n] = true
					o.bones = append(o.bones, n)
				}
			}
			pm := len(l.meshes)
			l.meshes = append(l.meshes, pendingMesh{mesh: merged, source: first.mesh, sceneNode: -1})
			o.levels = append(o.levels, levelRec{size: sizes[li], mesh: pm})
			l.addDetail(first.subshape, o.name, sizes[li])
		}
		sort.Ints(o.bones)
		l.objects = append(l.objects, o)
		l.progress("Generating skins", len(roots), gi+1)
	}
}

// resolveBone maps a bone name to a shape node. A bone on a collapsed scene
// node binds to the nearest kept ancestor.
func (l *Loader) resolveBone(name string) (int, bool) {
	if n, ok := l.nameToShape[name]; ok {
		return n, true
	}
	for i := range l.scene.Nodes {
		if l.scene.Nodes[i].Name == name && l.attach[i] >= 0 {
			return l.attach[i], true
		}
	}
	return -1, false
}

// orderObjects makes each subshape's objects contiguous, detail objects before
// skins, keeping creation order otherwise.
func (l *Loader) orderObjects() {
	sort.SliceStable(l.objects, func(a, b int) bool {
		return l.objects[a].subshape < l.objects[b].subshape
	})
	for i, o := range l.objects {
		s := l.subshapes[o.subshape]
		s.objects = append(s.objects, i)
	}
}

func validateMesh(m *scene.Mesh) error {
	nv := len(m.Positions)
	if len(m.Normals) != 0 && len(m.Normals) != nv {
		return errors.Errorf("%d normals for %d vertices", len(m.Normals), nv)
	}
	if len(m.UVs) != 0 && len(m.UVs) != nv {
		return errors.Errorf("%d uvs for %d vertices", len(m.UVs), nv)
	}
	if len(m.Indices)%3 != 0 {
		return errors.Errorf("index count %d is not a multiple of 3", len(m.Indices))
	}
	for _, idx := range m.Indices {
		if int(idx) >= nv {
			return errors.Errorf("index %d out of range (%d vertices)", idx, nv)
		}
	}
	for _, p := range m.Primitives {
		if p.Start < 0 || p.Count < 0 || p.Start+p.Count > len(m.Indices) {
			return errors.Errorf("primitive [%d,+%d) outside %d indices", p.Start, p.Count, len(m.Indices))
		}
	}
	for fi, f := range m.Frames {
		if len(f) != nv {
			return errors.Errorf("frame %d has %d vertices, want %d", fi, len(f), nv)
		}
	}
	return nil
}

func validateSkin(m *scene.Mesh) error {
	if err := validateMesh(m); err != nil {
		return err
	}
	if len(m.InverseBinds) != 0 && len(m.InverseBinds) != len(m.Bones) {
		return errors.Errorf("%d inverse bind matrices for %d bones", len(m.InverseBinds), len(m.Bones))
	}
	for _, inf := range m.Influences {
		if inf.Vertex < 0 || inf.Vertex >= len(m.Positions) {
			return errors.Errorf("influence references vertex %d of %d", inf.Vertex, len(m.Positions))
		}
		if inf.Bone < 0 || inf.Bone >= len(m.Bones) {
			return errors.Errorf("influence references bone %d of %d", inf.Bone, len(m.Bones))
		}
	}
	return nil
}

// copyMesh deep-copies rigid geometry so the shape keeps no importer slices.
func copyMesh(m *scene.Mesh) shape.Mesh {
	out := shape.Mesh{
		Kind:      shape.MeshStandard,
		Positions: append([]mgl32.Vec3(nil), m.Positions...),
		Normals:   append([]mgl32.Vec3(nil), m.Normals...),
		UVs:       append([]mgl32.Vec2(nil), m.UVs...),
		Indices:   append([]uint32(nil), m.Indices...),
	}
	out.Primitives = make([]shape.Primitive, len(m.Primitives))
	for i, p := range m.Primitives {
		out.Primitives[i] = shape.Primitive{Start: p.Start, Count: p.Count, Material: p.Material}
	}
	if len(m.Primitives) == 0 && len(m.Indices) > 0 {
		out.Primitives = []shape.Primitive{{Start: 0, Count: len(m.Indices), Material: shape.NoMaterial}}
	}
	for _, f := range m.Frames {
		out.Frames = append(out.Frames, append([]mgl32.Vec3(nil), f...))
	}
	return out
}

// mergeSkins concatenates skin meshes into one. It returns the merged mesh and
// its bone table as the ordered union of bone names.
func mergeSkins(meshes []*scene.Mesh) (shape.Mesh, []string) {
	out := shape.Mesh{Kind: shape.MeshSkin}
	var names []string
	boneIndex := make(map[string]int)

	withNormals, withUVs := false, false
	for _, m := range meshes {
		withNormals = withNormals || len(m.Normals) > 0
		withUVs = withUVs || len(m.UVs) > 0
	}

	for _, m := range meshes {
		vbase := len(out.Positions)
		ibase := len(out.Indices)

		local := make([]int, len(m.Bones))
		for bi, name := range m.Bones {
			idx, ok := boneIndex[name]
			if !ok {
				idx = len(names)
				boneIndex[name] = idx
				names = append(names, name)
				inv := mgl32.Ident4()
				if bi < len(m.InverseBinds) {
					inv = m.InverseBinds[bi]
				}
				out.InverseBinds = append(out.InverseBinds, inv)
			}
			local[bi] = idx
		}

		out.Positions = append(out.Positions, m.Positions...)
		if withNormals {
			if len(m.Normals) > 0 {
				out.Normals = append(out.Normals, m.Normals...)
			} else {
				out.Normals = append(out.Normals, make([]mgl32.Vec3, len(m.Positions))...)
			}
		}
		if withUVs {
			if len(m.UVs) > 0 {
				out.UVs = append(out.UVs, m.UVs...)
			} else {
				out.UVs = append(out.UVs, make([]mgl32.Vec2, len(m.Positions))...)
			}
		}
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, idx+uint32(vbase))
		}
		if len(m.Primitives) == 0 && len(m.Indices) > 0 {
			out.Primitives = append(out.Primitives, shape.Primitive{Start: ibase, Count: len(m.Indices), Material: shape.NoMaterial})
		}
		for _, p := range m.Primitives {
			out.Primitives = append(out.Primitives, shape.Primitive{Start: ibase + p.Start, Count: p.Count, Material: p.Material})
		}
		for _, inf := range m.Influences {
			out.Influences = append(out.Influences, shape.Influence{
				Vertex: vbase + inf.Vertex,
				Bone:   local[inf.Bone],
				Weight: inf.Weight,
			})
		}
	}
	return out, names
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the smaller index as root so groups are named after their
// first member.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
