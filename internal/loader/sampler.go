package loader

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// sampler evaluates shape-local node matrices. World matrices of every scene
// node are computed once per sample time and reused for all nodes.
type sampler struct {
	sc    *scene.Scene
	nodes []nodeRec

	valid bool
	time  float32
	world []mgl32.Mat4
	state []uint8
}

func newSampler(sc *scene.Scene, nodes []nodeRec) *sampler {
	return &sampler{
		sc:    sc,
		nodes: nodes,
		world: make([]mgl32.Mat4, len(sc.Nodes)),
		state: make([]uint8, len(sc.Nodes)),
	}
}

// worlds returns the world matrix of every scene node at t.
func (s *sampler) worlds(t float32) []mgl32.Mat4 {
	if s.valid && s.time == t {
		return s.world
	}
	for i := range s.state {
		s.state[i] = 0
	}
	for i := range s.sc.Nodes {
		s.worldOf(i, t)
	}
	s.valid, s.time = true, t
	return s.world
}

func (s *sampler) worldOf(i int, t float32) mgl32.Mat4 {
	switch s.state[i] {
	case 2:
		return s.world[i]
	case 1:
		// Parent cycle: treat the node as a root.
		return s.sc.Nodes[i].LocalTransform(t)
	}
	s.state[i] = 1
	n := &s.sc.Nodes[i]
	local := n.LocalTransform(t)
	if n.Parent >= 0 && n.Parent < len(s.sc.Nodes) {
		local = s.worldOf(n.Parent, t).Mul4(local)
	}
	s.world[i] = local
	s.state[i] = 2
	return local
}

// reference returns the frame shape node n is expressed in: its shape
// parent's world without scale, or for roots the bounds node without scale.
func (s *sampler) reference(n int, w []mgl32.Mat4) mgl32.Mat4 {
	if p := s.nodes[n].parent; p >= 0 {
		return xform.ZapScale(w[s.nodes[p].scene])
	}
	if s.sc.Bounds >= 0 {
		return xform.ZapScale(w[s.sc.Bounds])
	}
	return identity
}

// local returns the matrix of shape node n relative to its reference frame
// at time t.
func (s *sampler) local(n int, t float32) mgl32.Mat4 {
	w := s.worlds(t)
	return s.reference(n, w).Inv().Mul4(w[s.nodes[n].scene])
}

// bounds returns the world matrix of the bounds node at t.
func (s *sampler) bounds(t float32) (mgl32.Mat4, bool) {
	if s.sc.Bounds < 0 {
		return identity, false
	}
	return s.worlds(t)[s.sc.Bounds], true
}

// transformCache holds decomposed local transforms per node per sample for
// one sequence.
type transformCache struct {
	frames int
	xf     [][]xform.Transform
}

func newTransformCache(nodes, frames int) *transformCache {
	c := &transformCache{frames: frames, xf: make([][]xform.Transform, nodes)}
	for i := range c.xf {
		c.xf[i] = make([]xform.Transform, frames)
	}
	return c
}

func (c *transformCache) at(node, frame int) xform.Transform {
	return c.xf[node][frame]
}

func (c *transformCache) set(node, frame int, t xform.Transform) {
	c.xf[node][frame] = t
}

func (c *transformCache) node(n int) []xform.Transform {
	return c.xf[n]
}
