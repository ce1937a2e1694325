package loader

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// generateDefaultStates samples the default pose of every node and the
// default state of every object, then computes the shape bounds.
func (l *Loader) generateDefaultStates() {
	l.defaults = make([]xform.Transform, len(l.nodes))
	for n := range l.nodes {
		l.defaults[n] = xform.Decompose(l.sampler.local(n, scene.DefaultTime))
	}

	l.defaultStates = make([]shape.ObjectState, len(l.objects))
	for i, o := range l.objects {
		l.defaultStates[i] = toShapeState(l.scene.Meshes[o.stateMesh].State(scene.DefaultTime))
	}

	l.computeBounds()
}

// computeBounds fits a box around the highest visible detail of every object
// in the default pose. Radius is measured from the box center.
func (l *Loader) computeBounds() {
	world := make([]mgl32.Mat4, len(l.nodes))
	for n, rec := range l.nodes {
		m := l.defaults[n].Mat4()
		if rec.parent >= 0 {
			m = world[rec.parent].Mul4(m)
		}
		world[n] = m
	}

	var pts []mgl32.Vec3
	for _, o := range l.objects {
		var lvl *levelRec
		for i := range o.levels {
			if o.levels[i].size >= 0 {
				lvl = &o.levels[i]
				break
			}
		}
		if lvl == nil {
			continue
		}
		xf := mgl32.Ident4()
		if !o.skin {
			xf = world[l.attach[o.sceneNode]]
		}
		for _, p := range l.meshes[lvl.mesh].mesh.Positions {
			pts = append(pts, mgl32.TransformCoordinate(p, xf))
		}
	}
	if len(pts) == 0 {
		return
	}

	box := shape.Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		for k := 0; k < 3; k++ {
			if p[k] < box.Min[k] {
				box.Min[k] = p[k]
			}
			if p[k] > box.Max[k] {
				box.Max[k] = p[k]
			}
		}
	}
	center := box.Min.Add(box.Max).Mul(0.5)
	var r float32
	for _, p := range pts {
		if d := p.Sub(center).Len(); d > r {
			r = d
		}
	}
	l.bounds, l.radius = box, r
}
