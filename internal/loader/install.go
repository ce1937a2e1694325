package loader

import (
	"sort"

	"github.com/Faultbox/midgard-shape/pkg/shape"
)

// install packs loader state into a Shape, remapping scene node and material
// references to their final indices, and releases everything tied to the
// importer.
func (l *Loader) install() *shape.Shape {
	sh := &shape.Shape{
		Name:      l.scene.Name,
		Materials: l.materials,
		Sequences: l.sequences,
		Bounds:    l.bounds,
		Radius:    l.radius,
		Scale:     l.scale,
	}

	sh.Nodes = make([]shape.Node, len(l.nodes))
	for i, n := range l.nodes {
		sh.Nodes[i] = shape.Node{Name: n.name, Parent: n.parent, Default: l.defaults[i]}
	}

	sh.Meshes = make([]shape.Mesh, len(l.meshes))
	for i, pm := range l.meshes {
		m := pm.mesh
		for pi := range m.Primitives {
			m.Primitives[pi].Material = l.resolveMaterial(m.Primitives[pi].Material)
		}
		sh.Meshes[i] = m
	}

	sh.Objects = make([]shape.Object, len(l.objects))
	for i, o := range l.objects {
		obj := shape.Object{Name: o.name, Node: -1}
		if !o.skin {
			obj.Node = l.attach[o.sceneNode]
		}
		for _, lvl := range o.levels {
			obj.Details = append(obj.Details, shape.DetailLevel{Size: lvl.size, Mesh: lvl.mesh})
		}
		sh.Objects[i] = obj
	}
	sh.DefaultStates = l.defaultStates

	for si, s := range l.subshapes {
		sub := shape.Subshape{
			FirstNode:   s.firstNode,
			NumNodes:    s.numNodes,
			FirstObject: len(sh.Objects),
			Roots:       s.roots,
		}
		if len(s.objects) > 0 {
			sub.FirstObject = s.objects[0]
			sub.NumObjects = len(s.objects)
		}
		sh.Subshapes = append(sh.Subshapes, sub)
		for _, d := range s.details {
			d.Subshape = si
			sh.Details = append(sh.Details, d)
		}
	}
	sort.SliceStable(sh.Details, func(a, b int) bool {
		return sh.Details[a].Size > sh.Details[b].Size
	})

	l.release()
	return sh
}

// release drops every reference to importer data.
func (l *Loader) release() {
	l.imp = nil
	l.scene = nil
	l.sampler = nil
	l.cache = nil
	l.meshes = nil
	l.skinMeshes = nil
	l.objects = nil
	l.sequences = nil
}
