package loader

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// effectiveFrameRate clamps the declared rate into [min, max]. A missing rate
// uses def.
func effectiveFrameRate(declared, min, max, def float32) float32 {
	if declared <= 0 {
		declared = def
	}
	return mgl32.Clamp(declared, min, max)
}

// sampleCount is round(duration*rate), at least 2 for a non-empty clip.
func sampleCount(duration, rate float32) int {
	if duration <= 0 {
		return 1
	}
	n := int(math.Round(float64(duration * rate)))
	if n < 2 {
		n = 2
	}
	return n
}

// sampleTime spreads n samples evenly over [start, start+duration].
func sampleTime(start, duration float32, i, n int) float32 {
	den := n - 1
	if den < 1 {
		den = 1
	}
	return start + duration*float32(i)/float32(den)
}

// groundFrameCount follows the fixed-rate ground sampling rule.
func groundFrameCount(duration, rate float32) int {
	return int((duration + 0.25/rate) * rate)
}

func (l *Loader) generateSequences() {
	sc := l.scene
	for i := range sc.Sequences {
		seq := &sc.Sequences[i]
		l.progress("Generating sequence "+seq.Name, len(sc.Sequences), i+1)
		if missing, ok := l.missingTarget(seq); ok {
			l.warnf("sequence %q skipped: target node %q is not part of the shape", seq.Name, missing)
			continue
		}
		out := l.generateSequence(seq)
		if out.Scale > l.scale {
			l.scale = out.Scale
		}
		l.sequences = append(l.sequences, out)
		l.cache = nil
	}
}

func (l *Loader) missingTarget(seq *scene.Sequence) (string, bool) {
	for _, name := range seq.Targets {
		if _, ok := l.nameToShape[name]; !ok {
			return name, true
		}
	}
	return "", false
}

func (l *Loader) generateSequence(seq *scene.Sequence) shape.Sequence {
	o := l.opts
	duration := seq.Duration()
	if duration < 0 {
		l.warnf("sequence %q ends before it starts, treated as a single pose", seq.Name)
		duration = 0
	}
	rate := effectiveFrameRate(seq.FrameRate, o.MinFrameRate, o.MaxFrameRate, o.DefaultFrameRate)
	n := sampleCount(duration, rate)

	out := shape.Sequence{
		Name:         seq.Name,
		Duration:     duration,
		FrameRate:    rate,
		NumKeyframes: n,
		Priority:     seq.Priority,
	}
	if seq.Cyclic {
		out.Flags |= shape.SeqCyclic
	}
	if seq.Blend {
		out.Flags |= shape.SeqBlend
	}

	l.fillTransforms(seq, duration, n)

	defaults := l.defaults
	if seq.Blend {
		defaults = make([]xform.Transform, len(l.nodes))
		for i := range defaults {
			defaults[i] = xform.Identity()
		}
	}
	out.RotationMatters = rotationMembers(l.cache, defaults, o.Tolerance)
	out.TranslationMatters = translationMembers(l.cache, defaults, o.Tolerance)
	out.ScaleMatters = scaleMembers(l.cache, defaults, o.Tolerance)
	out.Scale = sequenceScaleKind(l.cache, out.ScaleMatters, o.Tolerance)
	l.fillTracks(&out)

	states := l.sampleStates(seq.Start, duration, n)
	out.VisMatters, out.FrameMatters, out.MatFrameMatters = objectStateMembers(states, l.defaultStates, o.Tolerance)
	stateMembers := union(out.VisMatters, out.FrameMatters, out.MatFrameMatters)
	for _, oi := range stateMembers {
		out.ObjectStates = append(out.ObjectStates, shape.ObjectTrack{Object: oi, Keys: toShapeStates(states[oi])})
	}
	out.ObjectMatters = union(stateMembers, l.transformObjects(&out))

	if len(out.RotationMatters)+len(out.TranslationMatters)+len(out.ScaleMatters) > 0 {
		out.Dirty |= shape.DirtyTransform
	}
	if len(out.VisMatters) > 0 {
		out.Dirty |= shape.DirtyVisibility
	}
	if len(out.FrameMatters) > 0 {
		out.Dirty |= shape.DirtyFrame
	}
	if len(out.MatFrameMatters) > 0 {
		out.Dirty |= shape.DirtyMaterialFrame
	}

	if seq.Ground {
		l.generateGround(seq, duration, &out)
	}
	out.Triggers = generateTriggers(seq.Triggers, seq.Start, duration)
	return out
}

// fillTransforms samples every shape node n times into a fresh cache. Blend
// sequences store each sample relative to the reference pose.
func (l *Loader) fillTransforms(seq *scene.Sequence, duration float32, n int) {
	l.cache = newTransformCache(len(l.nodes), n)
	var refs []mgl32.Mat4
	if seq.Blend {
		refs = make([]mgl32.Mat4, len(l.nodes))
		for node := range l.nodes {
			refs[node] = l.sampler.local(node, seq.BlendRefTime).Inv()
		}
	}
	for f := 0; f < n; f++ {
		t := sampleTime(seq.Start, duration, f, n)
		for node := range l.nodes {
			m := l.sampler.local(node, t)
			if refs != nil {
				m = refs[node].Mul4(m)
			}
			l.cache.set(node, f, xform.Decompose(m))
		}
	}
}

func (l *Loader) fillTracks(out *shape.Sequence) {
	c := l.cache
	for _, node := range out.RotationMatters {
		tr := shape.RotationTrack{Node: node, Keys: make([]mgl32.Quat, c.frames)}
		for f := range tr.Keys {
			tr.Keys[f] = xform.Canonical(c.at(node, f).Rotation)
		}
		out.Rotations = append(out.Rotations, tr)
	}
	for _, node := range out.TranslationMatters {
		tr := shape.TranslationTrack{Node: node, Keys: make([]mgl32.Vec3, c.frames)}
		for f := range tr.Keys {
			tr.Keys[f] = c.at(node, f).Translation
		}
		out.Translations = append(out.Translations, tr)
	}
	for _, node := range out.ScaleMatters {
		tr := shape.ScaleTrack{Node: node}
		for f := 0; f < c.frames; f++ {
			x := c.at(node, f)
			switch out.Scale {
			case xform.ScaleUniform:
				tr.Uniform = append(tr.Uniform, (x.Scale[0]+x.Scale[1]+x.Scale[2])/3)
			case xform.ScaleAligned:
				tr.Aligned = append(tr.Aligned, x.Scale)
			default:
				tr.Arbitrary = append(tr.Arbitrary, shape.ArbitraryScale{Scale: x.Scale, Rotation: xform.Canonical(x.ScaleRotation)})
			}
		}
		out.Scales = append(out.Scales, tr)
	}
}

// sampleStates evaluates the state of every object at each sample.
func (l *Loader) sampleStates(start, duration float32, n int) [][]scene.ObjectState {
	out := make([][]scene.ObjectState, len(l.objects))
	for oi, o := range l.objects {
		m := &l.scene.Meshes[o.stateMesh]
		if m.States == nil {
			continue
		}
		out[oi] = make([]scene.ObjectState, n)
		for f := 0; f < n; f++ {
			out[oi][f] = m.State(sampleTime(start, duration, f, n))
		}
	}
	return out
}

// transformObjects returns objects moved by the sequence's transform tracks:
// rigid objects through their node, skins through any of their bones.
func (l *Loader) transformObjects(seq *shape.Sequence) shape.Members {
	moved := union(seq.RotationMatters, seq.TranslationMatters, seq.ScaleMatters)
	var out shape.Members
	for oi, o := range l.objects {
		if o.skin {
			for _, b := range o.bones {
				if moved.Contains(b) {
					out = append(out, oi)
					break
				}
			}
			continue
		}
		if n := l.attach[o.sceneNode]; n >= 0 && moved.Contains(n) {
			out = append(out, oi)
		}
	}
	return out
}

// generateGround samples the bounds node at the ground rate, relative to its
// pose at the start of the sequence.
func (l *Loader) generateGround(seq *scene.Sequence, duration float32, out *shape.Sequence) {
	start, ok := l.sampler.bounds(seq.Start)
	if !ok {
		l.warnf("sequence %q requests ground motion but the scene has no bounds node", seq.Name)
		return
	}
	rate := l.opts.GroundFrameRate
	n := groundFrameCount(duration, rate)
	if n <= 0 {
		return
	}
	inv := xform.ZapScale(start).Inv()
	g := &shape.GroundTrack{FrameRate: rate}
	for i := 0; i < n; i++ {
		t := seq.Start + duration*float32(i+1)/float32(n)
		b, _ := l.sampler.bounds(t)
		x := xform.Decompose(inv.Mul4(xform.ZapScale(b)))
		g.Translations = append(g.Translations, x.Translation)
		g.Rotations = append(g.Rotations, xform.Canonical(x.Rotation))
	}
	out.Ground = g
	out.Flags |= shape.SeqMakePath
}

// generateTriggers normalizes trigger times to [0,1] and sorts them. Every
// trigger of a state that is switched off somewhere inverts on reverse play.
func generateTriggers(in []scene.Trigger, start, duration float32) []shape.Trigger {
	if len(in) == 0 {
		return nil
	}
	offStates := make(map[int]bool)
	out := make([]shape.Trigger, len(in))
	for i, t := range in {
		pos := float32(0)
		if duration > 0 {
			pos = mgl32.Clamp((t.Time-start)/duration, 0, 1)
		}
		out[i] = shape.Trigger{Position: pos, State: t.State, On: t.On}
		if !t.On {
			offStates[t.State] = true
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Position < out[b].Position
	})
	for i := range out {
		out[i].InvertOnReverse = offStates[out[i].State]
	}
	return out
}

func toShapeState(s scene.ObjectState) shape.ObjectState {
	return shape.ObjectState{Visibility: s.Visibility, Frame: s.Frame, MaterialFrame: s.MaterialFrame}
}

func toShapeStates(in []scene.ObjectState) []shape.ObjectState {
	out := make([]shape.ObjectState, len(in))
	for i, s := range in {
		out[i] = toShapeState(s)
	}
	return out
}
