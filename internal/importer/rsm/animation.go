package rsm

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/formats"
)

// keySpan finds the keys surrounding timeMs and the blend factor between
// them. Keys are assumed sorted by frame. Times outside the key range clamp
// to the first or last key.
func keySpan(n int, frame func(i int) int32, timeMs float32) (prev, next int, f float32) {
	for i := 0; i < n; i++ {
		if float32(frame(i)) > timeMs {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return prev, next, 0
	}
	if d := frame(next) - frame(prev); d != 0 {
		f = (timeMs - float32(frame(prev))) / float32(d)
	}
	return prev, next, mgl32.Clamp(f, 0, 1)
}

func rsmQuat(q [4]float32) mgl32.Quat {
	return mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
}

// interpolateRotation slerps rotation keys at timeMs.
func interpolateRotation(keys []formats.RSMRotKeyframe, timeMs float32) mgl32.Quat {
	if len(keys) == 0 {
		return mgl32.QuatIdent()
	}
	prev, next, f := keySpan(len(keys), func(i int) int32 { return keys[i].Frame }, timeMs)
	q0 := rsmQuat(keys[prev].Quaternion).Normalize()
	if prev == next {
		return q0
	}
	return mgl32.QuatSlerp(q0, rsmQuat(keys[next].Quaternion).Normalize(), f)
}

// interpolateScale lerps scale keys at timeMs.
func interpolateScale(keys []formats.RSMScaleKeyframe, timeMs float32) mgl32.Vec3 {
	if len(keys) == 0 {
		return mgl32.Vec3{1, 1, 1}
	}
	prev, next, f := keySpan(len(keys), func(i int) int32 { return keys[i].Frame }, timeMs)
	s0 := mgl32.Vec3(keys[prev].Scale)
	s1 := mgl32.Vec3(keys[next].Scale)
	return s0.Add(s1.Sub(s0).Mul(f))
}

// interpolatePosition lerps the position keys of pre-1.5 models.
func interpolatePosition(keys []formats.RSMPosKeyframe, timeMs float32) mgl32.Vec3 {
	prev, next, f := keySpan(len(keys), func(i int) int32 { return keys[i].Frame }, timeMs)
	p0 := mgl32.Vec3(keys[prev].Position)
	p1 := mgl32.Vec3(keys[next].Position)
	return p0.Add(p1.Sub(p0).Mul(f))
}

// nodeLocal is the transform a node passes on to its children:
// Position * Rotation * Scale. Offset and Matrix only apply to the node's own
// vertices. Rotation keys replace the axis-angle rotation.
func nodeLocal(node *formats.RSMNode, timeMs float32) mgl32.Mat4 {
	pos := mgl32.Vec3(node.Position)
	if len(node.PosKeys) > 0 {
		pos = interpolatePosition(node.PosKeys, timeMs)
	}
	m := mgl32.Translate3D(pos[0], pos[1], pos[2])

	switch {
	case len(node.RotKeys) > 0:
		m = m.Mul4(interpolateRotation(node.RotKeys, timeMs).Mat4())
	case node.RotAngle != 0:
		if axis := mgl32.Vec3(node.RotAxis); axis.Len() > 1e-6 {
			m = m.Mul4(mgl32.HomogRotate3D(node.RotAngle, axis.Normalize()))
		}
	}

	m = m.Mul4(mgl32.Scale3D(node.Scale[0], node.Scale[1], node.Scale[2]))
	if len(node.ScaleKeys) > 0 {
		s := interpolateScale(node.ScaleKeys, timeMs)
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// vertexTransform is the node-only Offset * Matrix applied to mesh vertices.
func vertexTransform(node *formats.RSMNode) mgl32.Mat4 {
	mat := node.Matrix
	m3 := mgl32.Mat3{
		mat[0], mat[1], mat[2],
		mat[3], mat[4], mat[5],
		mat[6], mat[7], mat[8],
	}
	return mgl32.Translate3D(node.Offset[0], node.Offset[1], node.Offset[2]).Mul4(m3.Mat4())
}

// isAnimated reports whether a node has more than a single pose key.
func isAnimated(node *formats.RSMNode) bool {
	return len(node.RotKeys) > 1 || len(node.PosKeys) > 1 || len(node.ScaleKeys) > 1
}
