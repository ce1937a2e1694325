package loader

import (
	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

// generateSubshapes walks the scene from its roots and allocates shape nodes
// so that every subshape owns a contiguous node range. Roots join the current
// subshape unless flagged; flagged descendants are detached and partitioned
// after the branches that contain them.
func (l *Loader) generateSubshapes() {
	sc := l.scene
	l.sceneToShape = make([]int, len(sc.Nodes))
	l.attach = make([]int, len(sc.Nodes))
	for i := range l.sceneToShape {
		l.sceneToShape[i] = -1
		l.attach[i] = -1
	}
	l.nameToShape = make(map[string]int)
	l.meshNode = make([]int, len(sc.Meshes))
	for i := range l.meshNode {
		l.meshNode[i] = -1
	}

	p := partitioner{
		l:       l,
		visited: make([]bool, len(sc.Nodes)),
		used:    make(map[string]bool),
	}

	current := -1
	for _, r := range sc.Roots {
		if current < 0 || sc.Nodes[r].NewSubshape {
			current = l.newSubshape()
		}
		p.walk(r, current, -1, true)
	}
	for len(p.deferred) > 0 {
		r := p.deferred[0]
		p.deferred = p.deferred[1:]
		p.walk(r, l.newSubshape(), -1, true)
	}

	// Drop subshapes that ended up with neither nodes nor meshes.
	kept := l.subshapes[:0]
	for _, s := range l.subshapes {
		if s.numNodes > 0 || len(s.meshes) > 0 || len(s.details) > 0 {
			kept = append(kept, s)
		}
	}
	l.subshapes = kept
	for si, s := range l.subshapes {
		for n := s.firstNode; n < s.firstNode+s.numNodes; n++ {
			l.nodes[n].subshape = si
		}
	}
	l.progress("Generating subshapes", len(l.subshapes), len(l.subshapes))
}

func (l *Loader) newSubshape() int {
	l.subshapes = append(l.subshapes, &subshapeRec{firstNode: len(l.nodes)})
	return len(l.subshapes) - 1
}

type partitioner struct {
	l        *Loader
	visited  []bool
	used     map[string]bool
	deferred []int
	full     bool
}

func (p *partitioner) ignoreNode(name string) bool {
	if f, ok := p.l.imp.(scene.NodeFilter); ok {
		return f.IgnoreNode(name)
	}
	return false
}

// walk adds scene node i and its subtree to subshape sub under shape node
// parent. Ignored nodes, the bounds node and nodes over the limit are
// collapsed: their meshes and children attach to parent.
func (p *partitioner) walk(i, sub, parent int, branchRoot bool) {
	l := p.l
	sc := l.scene
	if p.visited[i] {
		l.warnf("node %q reached twice, hierarchy has a cycle or shared child", sc.Nodes[i].Name)
		return
	}
	node := &sc.Nodes[i]
	if !branchRoot && node.NewSubshape {
		p.deferred = append(p.deferred, i)
		return
	}
	p.visited[i] = true
	s := l.subshapes[sub]

	if size, ok := nullDetailSize(node.Name); ok && len(node.Meshes) == 0 && len(node.Children) == 0 {
		s.details = append(s.details, shape.Detail{Name: node.Name, Size: size, Subshape: sub})
		return
	}

	owner := parent
	switch {
	case i == sc.Bounds:
		if len(node.Meshes) > 0 {
			l.warnf("bounds node %q carries %d meshes, dropped", node.Name, len(node.Meshes))
		}
	case p.ignoreNode(node.Name):
		l.debugf("node %q ignored", node.Name)
	case len(l.nodes) >= l.opts.MaxNodes:
		if !p.full {
			l.warnf("node limit %d reached, collapsing remaining nodes", l.opts.MaxNodes)
			p.full = true
		}
	default:
		owner = len(l.nodes)
		l.nodes = append(l.nodes, nodeRec{
			name:   uniqueName(node.Name, p.used),
			scene:  i,
			parent: parent,
		})
		s.numNodes++
		if parent < 0 {
			s.roots = append(s.roots, owner)
		}
		l.sceneToShape[i] = owner
		if _, dup := l.nameToShape[node.Name]; !dup {
			l.nameToShape[node.Name] = owner
		}
	}
	l.attach[i] = owner

	if i != sc.Bounds {
		for _, m := range node.Meshes {
			if owner < 0 && !isSkinHint(&sc.Meshes[m]) {
				l.warnf("mesh %q has no owning node, dropped", sc.Meshes[m].Name)
				continue
			}
			if l.meshNode[m] >= 0 {
				l.warnf("mesh %q attached to more than one node, keeping the first", sc.Meshes[m].Name)
				continue
			}
			l.meshNode[m] = i
			s.meshes = append(s.meshes, m)
		}
	}
	for _, c := range node.Children {
		p.walk(c, sub, owner, false)
	}
}

// isSkinHint reports whether a mesh can live without an owning node.
func isSkinHint(m *scene.Mesh) bool {
	return m.Kind == scene.KindSkin || (m.Kind == scene.KindAuto && len(m.Bones) > 0)
}
