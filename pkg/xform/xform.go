// Package xform decomposes affine node transforms into the rotation,
// translation and scale channels stored by compiled shapes.
package xform

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// ScaleKind classifies the scale part of a transform, from cheapest to most
// general. Kinds are ordered so the most general of a set is their maximum.
type ScaleKind int

const (
	ScaleNone ScaleKind = iota
	ScaleUniform
	ScaleAligned
	ScaleArbitrary
)

func (k ScaleKind) String() string {
	switch k {
	case ScaleUniform:
		return "uniform"
	case ScaleAligned:
		return "aligned"
	case ScaleArbitrary:
		return "arbitrary"
	default:
		return "none"
	}
}

// Transform is a decomposed affine transform:
//
//	M = T(Translation) * R(Rotation) * R(ScaleRotation) * S(Scale) * R(ScaleRotation)^-1
type Transform struct {
	Rotation      mgl32.Quat
	Translation   mgl32.Vec3
	Scale         mgl32.Vec3
	ScaleRotation mgl32.Quat
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Rotation:      mgl32.QuatIdent(),
		Scale:         mgl32.Vec3{1, 1, 1},
		ScaleRotation: mgl32.QuatIdent(),
	}
}

// Mat4 recomposes the transform into a matrix.
func (t Transform) Mat4() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	m = m.Mul4(t.Rotation.Mat4())
	if t.ScaleRotation.ApproxEqualThreshold(mgl32.QuatIdent(), 1e-6) {
		return m.Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
	}
	sr := t.ScaleRotation.Mat4()
	m = m.Mul4(sr)
	m = m.Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
	return m.Mul4(sr.Transpose())
}

// ScaleKind reports how general the scale part is, within tol.
func (t Transform) ScaleKind(tol float32) ScaleKind {
	s := t.Scale
	if isUnit(s, tol) {
		return ScaleNone
	}
	if mgl32.FloatEqualThreshold(s[0], s[1], tol) && mgl32.FloatEqualThreshold(s[1], s[2], tol) {
		return ScaleUniform
	}
	if RotationEqual(t.ScaleRotation, mgl32.QuatIdent(), tol) {
		return ScaleAligned
	}
	return ScaleArbitrary
}

func isUnit(s mgl32.Vec3, tol float32) bool {
	return s.ApproxEqualThreshold(mgl32.Vec3{1, 1, 1}, tol)
}

// Decompose splits an affine matrix into rotation, translation and scale.
// The linear part is factored with a polar decomposition M = Q*S; when S is
// not diagonal its eigenvectors become the scale rotation.
func Decompose(m mgl32.Mat4) Transform {
	out := Identity()
	out.Translation = mgl32.Vec3{m[12], m[13], m[14]}

	var a mgl64.Mat3
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			a.Set(r, c, float64(m[c*4+r]))
		}
	}

	sign := 1.0
	if a.Det() < 0 {
		sign = -1
		a = a.Mul(-1)
	}
	q, ok := polar(a)
	if !ok {
		// Degenerate linear part: keep translation only.
		out.Scale = mgl32.Vec3{0, 0, 0}
		return out
	}
	s := symmetrize(q.Transpose().Mul3(a).Mul(sign))

	out.Rotation = Canonical(quatFromMat3(q))

	if offDiagonal(s) < 1e-9 {
		out.Scale = mgl32.Vec3{float32(s.At(0, 0)), float32(s.At(1, 1)), float32(s.At(2, 2))}
		return out
	}

	vals, vecs := eigen(s)
	if vecs.Det() < 0 {
		vecs.SetCol(2, vecs.Col(2).Mul(-1))
	}
	out.Scale = mgl32.Vec3{float32(vals[0]), float32(vals[1]), float32(vals[2])}
	out.ScaleRotation = Canonical(quatFromMat3(vecs))
	return out
}

// ZapScale removes scale and shear from a matrix, keeping its rotation and
// translation.
func ZapScale(m mgl32.Mat4) mgl32.Mat4 {
	t := Decompose(m)
	r := t.Rotation.Mat4()
	r[12], r[13], r[14] = m[12], m[13], m[14]
	return r
}

// Canonical returns the representative of q with a non-negative scalar part.
func Canonical(q mgl32.Quat) mgl32.Quat {
	q = q.Normalize()
	if q.W < 0 {
		return mgl32.Quat{W: -q.W, V: q.V.Mul(-1)}
	}
	return q
}

// RotationEqual compares two rotations component-wise within tol, treating
// q and -q as the same rotation.
func RotationEqual(a, b mgl32.Quat, tol float32) bool {
	if a.Dot(b) < 0 {
		b = mgl32.Quat{W: -b.W, V: b.V.Mul(-1)}
	}
	return a.ApproxEqualThreshold(b, tol)
}

// TranslationEqual compares two translations component-wise within tol.
func TranslationEqual(a, b mgl32.Vec3, tol float32) bool {
	return a.ApproxEqualThreshold(b, tol)
}

// ScaleEqual compares the scale parts of two transforms within tol. Scale
// rotations only matter when the scale is not uniform.
func ScaleEqual(a, b Transform, tol float32) bool {
	if !a.Scale.ApproxEqualThreshold(b.Scale, tol) {
		return false
	}
	if a.ScaleKind(tol) <= ScaleUniform {
		return true
	}
	return RotationEqual(a.ScaleRotation, b.ScaleRotation, tol)
}

func quatFromMat3(a mgl64.Mat3) mgl32.Quat {
	q := mgl64.Mat4ToQuat(a.Mat4()).Normalize()
	return mgl32.Quat{W: float32(q.W), V: mgl32.Vec3{float32(q.V[0]), float32(q.V[1]), float32(q.V[2])}}
}

func symmetrize(a mgl64.Mat3) mgl64.Mat3 {
	for r := 0; r < 3; r++ {
		for c := r + 1; c < 3; c++ {
			v := (a.At(r, c) + a.At(c, r)) / 2
			a.Set(r, c, v)
			a.Set(c, r, v)
		}
	}
	return a
}

func offDiagonal(a mgl64.Mat3) float64 {
	var sum float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if r != c {
				sum += math.Abs(a.At(r, c))
			}
		}
	}
	return sum
}

// polar returns the orthogonal factor Q of a = Q*S using Newton iteration
// Q' = (Q + Q^-T) / 2. a must have a positive determinant.
func polar(a mgl64.Mat3) (mgl64.Mat3, bool) {
	q := a
	for i := 0; i < 64; i++ {
		if math.Abs(q.Det()) < 1e-12 {
			return mgl64.Mat3{}, false
		}
		next := q.Add(q.Inv().Transpose()).Mul(0.5)
		var diff float64
		for k := range next {
			diff += math.Abs(next[k] - q[k])
		}
		q = next
		if diff < 1e-12 {
			break
		}
	}
	return q, true
}

// eigen diagonalizes a symmetric matrix with cyclic Jacobi rotations. The
// eigenvectors are the columns of the returned matrix.
func eigen(a mgl64.Mat3) ([3]float64, mgl64.Mat3) {
	v := mgl64.Ident3()
	for sweep := 0; sweep < 50; sweep++ {
		if offDiagonal(a) < 1e-12 {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				apq := a.At(p, q)
				if math.Abs(apq) < 1e-15 {
					continue
				}
				theta := (a.At(q, q) - a.At(p, p)) / (2 * apq)
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				j := mgl64.Ident3()
				j.Set(p, p, c)
				j.Set(q, q, c)
				j.Set(p, q, s)
				j.Set(q, p, -s)
				a = j.Transpose().Mul3(a).Mul3(j)
				v = v.Mul3(j)
			}
		}
	}
	return [3]float64{a.At(0, 0), a.At(1, 1), a.At(2, 2)}, v
}
