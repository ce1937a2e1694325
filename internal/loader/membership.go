package loader

import (
	"sort"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// The three membership passes are independent: a node that only rotates is
// never a translation or scale member.

func rotationMembers(c *transformCache, defaults []xform.Transform, tol float32) shape.Members {
	var out shape.Members
	for n, d := range defaults {
		for _, x := range c.node(n) {
			if !xform.RotationEqual(x.Rotation, d.Rotation, tol) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func translationMembers(c *transformCache, defaults []xform.Transform, tol float32) shape.Members {
	var out shape.Members
	for n, d := range defaults {
		for _, x := range c.node(n) {
			if !xform.TranslationEqual(x.Translation, d.Translation, tol) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func scaleMembers(c *transformCache, defaults []xform.Transform, tol float32) shape.Members {
	var out shape.Members
	for n, d := range defaults {
		for _, x := range c.node(n) {
			if !xform.ScaleEqual(x, d, tol) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// sequenceScaleKind returns the most general scale kind over the members.
func sequenceScaleKind(c *transformCache, members shape.Members, tol float32) xform.ScaleKind {
	kind := xform.ScaleNone
	for _, n := range members {
		for _, x := range c.node(n) {
			if k := x.ScaleKind(tol); k > kind {
				kind = k
			}
		}
	}
	if len(members) > 0 && kind == xform.ScaleNone {
		// Members differ from their default only within rounding of the
		// kind test; store them uniformly.
		kind = xform.ScaleUniform
	}
	return kind
}

// objectStateMembers returns the objects whose visibility, frame or material
// frame differs from their default state at some sample.
func objectStateMembers(states [][]scene.ObjectState, defaults []shape.ObjectState, tol float32) (vis, frame, matFrame shape.Members) {
	for o, samples := range states {
		d := defaults[o]
		var v, f, m bool
		for _, s := range samples {
			v = v || abs32(s.Visibility-d.Visibility) > tol
			f = f || s.Frame != d.Frame
			m = m || s.MaterialFrame != d.MaterialFrame
		}
		if v {
			vis = append(vis, o)
		}
		if f {
			frame = append(frame, o)
		}
		if m {
			matFrame = append(matFrame, o)
		}
	}
	return vis, frame, matFrame
}

// union merges sorted member sets.
func union(sets ...shape.Members) shape.Members {
	seen := make(map[int]bool)
	var out shape.Members
	for _, s := range sets {
		for _, i := range s {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
