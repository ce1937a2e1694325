package gltf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// clipGap separates consecutive clips on the shared scene timeline so that no
// time belongs to two clips.
const clipGap float32 = 1

// curve is one sampled channel. Values hold vec3 or quaternion (x, y, z, w)
// keys; cubic spline keys keep only their value, not the tangents.
type curve struct {
	times  []float32
	values [][4]float32
	step   bool
}

func (c *curve) span(t float32) (int, int, float32) {
	n := len(c.times)
	i := sort.Search(n, func(i int) bool { return c.times[i] > t })
	switch {
	case i == 0:
		return 0, 0, 0
	case i == n:
		return n - 1, n - 1, 0
	}
	t0, t1 := c.times[i-1], c.times[i]
	if c.step || t1 <= t0 {
		return i - 1, i - 1, 0
	}
	return i - 1, i, (t - t0) / (t1 - t0)
}

func (c *curve) vec3(t float32) mgl32.Vec3 {
	a, b, f := c.span(t)
	va := mgl32.Vec3{c.values[a][0], c.values[a][1], c.values[a][2]}
	vb := mgl32.Vec3{c.values[b][0], c.values[b][1], c.values[b][2]}
	return va.Add(vb.Sub(va).Mul(f))
}

func (c *curve) quat(t float32) mgl32.Quat {
	a, b, f := c.span(t)
	qa := quat(c.values[a]).Normalize()
	if a == b {
		return qa
	}
	return mgl32.QuatSlerp(qa, quat(c.values[b]).Normalize(), f)
}

func quat(v [4]float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// channels are the curves one clip drives on one node.
type channels struct {
	translation, rotation, scale *curve
}

func (ch *channels) apply(x *xform.Transform, t float32) {
	if ch.translation != nil {
		x.Translation = ch.translation.vec3(t)
	}
	if ch.rotation != nil {
		x.Rotation = ch.rotation.quat(t)
	}
	if ch.scale != nil {
		x.Scale = ch.scale.vec3(t)
	}
}

// clip is one glTF animation placed on the scene timeline.
type clip struct {
	name     string
	start    float32
	duration float32
	nodes    map[int]*channels // by glTF node index
	order    []int             // animated nodes in first-channel order
}

// animatedNode evaluates a node over every clip on the timeline. Outside a
// clip, or for components the clip leaves alone, the node keeps its base pose.
type animatedNode struct {
	node  int
	base  xform.Transform
	clips []*clip
}

func (a *animatedNode) LocalTransform(t float32) mgl32.Mat4 {
	x := a.base
	for _, c := range a.clips {
		if t < c.start || t > c.start+c.duration {
			continue
		}
		if ch := c.nodes[a.node]; ch != nil {
			ch.apply(&x, t-c.start)
		}
		break
	}
	return x.Mat4()
}

// readClips reads every animation of the document and lays the clips end to
// end starting at time zero.
func (b *builder) readClips() ([]*clip, error) {
	doc := b.doc
	var clips []*clip
	var start float32
	for ai, anim := range doc.Animations {
		c := &clip{name: anim.Name, start: start, nodes: make(map[int]*channels)}
		if c.name == "" {
			c.name = fmt.Sprintf("animation%d", ai)
		}
		for ci, ch := range anim.Channels {
			node, ok := index(ch.Target.Node)
			if !ok {
				continue
			}
			si, ok := index(ch.Sampler)
			if !ok || si >= len(anim.Samplers) {
				return nil, errors.Errorf("animation %q channel %d: bad sampler", c.name, ci)
			}
			var cv *curve
			switch ch.Target.Path {
			case gltf.TRSTranslation, gltf.TRSRotation, gltf.TRSScale:
				var err error
				if cv, err = b.readCurve(anim.Samplers[si]); err != nil {
					return nil, errors.Wrapf(err, "animation %q channel %d", c.name, ci)
				}
			default:
				continue
			}
			if n := len(cv.times); n > 0 && cv.times[n-1] > c.duration {
				c.duration = cv.times[n-1]
			}

			set := c.nodes[node]
			if set == nil {
				set = &channels{}
				c.nodes[node] = set
				c.order = append(c.order, node)
			}
			switch ch.Target.Path {
			case gltf.TRSTranslation:
				set.translation = cv
			case gltf.TRSRotation:
				set.rotation = cv
			case gltf.TRSScale:
				set.scale = cv
			}
		}
		clips = append(clips, c)
		start += c.duration + clipGap
	}
	return clips, nil
}

func (b *builder) readCurve(s *gltf.AnimationSampler) (*curve, error) {
	in, ok := index(s.Input)
	if !ok || in >= len(b.doc.Accessors) {
		return nil, errors.New("sampler input missing")
	}
	out, ok := index(s.Output)
	if !ok || out >= len(b.doc.Accessors) {
		return nil, errors.New("sampler output missing")
	}

	raw, err := modeler.ReadAccessor(b.doc, b.doc.Accessors[in], nil)
	if err != nil {
		return nil, errors.Wrap(err, "reading key times")
	}
	times, ok := raw.([]float32)
	if !ok {
		return nil, errors.Errorf("key times stored as %T", raw)
	}

	raw, err = modeler.ReadAccessor(b.doc, b.doc.Accessors[out], nil)
	if err != nil {
		return nil, errors.Wrap(err, "reading key values")
	}
	var values [][4]float32
	switch v := raw.(type) {
	case [][3]float32:
		values = make([][4]float32, len(v))
		for i, x := range v {
			values[i] = [4]float32{x[0], x[1], x[2], 0}
		}
	case [][4]float32:
		values = v
	default:
		return nil, errors.Errorf("key values stored as %T", raw)
	}

	c := &curve{times: times, step: s.Interpolation == gltf.InterpolationStep}
	if s.Interpolation == gltf.InterpolationCubicSpline {
		// in-tangent, value, out-tangent per key
		if len(values) != 3*len(times) {
			return nil, errors.Errorf("%d cubic values for %d keys", len(values), len(times))
		}
		for i := range times {
			values[i] = values[3*i+1]
		}
		values = values[:len(times)]
	}
	if len(values) != len(times) {
		return nil, errors.Errorf("%d values for %d keys", len(values), len(times))
	}
	c.values = values
	return c, nil
}

// sequence converts a clip to a scene sequence. Clips named like "run_loop"
// or "idle_cycle" are cyclic.
func (b *builder) sequence(c *clip) scene.Sequence {
	lower := strings.ToLower(c.name)
	seq := scene.Sequence{
		Name:   c.name,
		Start:  c.start,
		End:    c.start + c.duration,
		Cyclic: strings.Contains(lower, "loop") || strings.Contains(lower, "cycle"),
	}
	for _, gi := range c.order {
		idx, ok := b.sceneIndex[gi]
		if !ok {
			continue
		}
		if idx == b.sc.Bounds {
			seq.Ground = true
			continue
		}
		seq.Targets = append(seq.Targets, b.sc.Nodes[idx].Name)
	}
	return seq
}
