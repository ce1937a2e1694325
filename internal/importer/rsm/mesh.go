package rsm

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/formats"
	"github.com/Faultbox/midgard-shape/pkg/scene"
)

// degenerateArea is the smallest doubled triangle area kept.
const degenerateArea = 1e-5

// buildMesh unrolls a node's faces into a scene mesh in the node's space.
// Every face corner gets its own vertex since RSM indexes positions and
// texture coordinates separately. Faces are grouped into one primitive per
// global texture, in texture order. Returns false when no face survives.
func buildMesh(node *formats.RSMNode, opts Options, smooth bool) (scene.Mesh, bool) {
	xf := vertexTransform(node)
	positions := make([]mgl32.Vec3, len(node.Vertices))
	for i, v := range node.Vertices {
		positions[i] = mgl32.TransformCoordinate(mgl32.Vec3(v), xf)
	}

	m := scene.Mesh{Name: node.Name, Kind: scene.KindDetail}
	groups := make(map[int][]uint32)

	addCorners := func(face *formats.RSMFace, normal mgl32.Vec3, reverse bool) uint32 {
		base := uint32(len(m.Positions))
		order := [3]int{0, 1, 2}
		if reverse {
			order = [3]int{2, 1, 0}
		}
		for _, c := range order {
			m.Positions = append(m.Positions, positions[face.VertexIDs[c]])
			m.Normals = append(m.Normals, normal)
			var uv mgl32.Vec2
			if tc := int(face.TexCoordIDs[c]); tc < len(node.TexCoords) {
				uv = mgl32.Vec2{node.TexCoords[tc].U, node.TexCoords[tc].V}
			}
			m.UVs = append(m.UVs, uv)
		}
		return base
	}

	for i := range node.Faces {
		face := &node.Faces[i]
		if !validFace(face, len(positions)) {
			continue
		}
		p0 := positions[face.VertexIDs[0]]
		p1 := positions[face.VertexIDs[1]]
		p2 := positions[face.VertexIDs[2]]
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		if n.Len() < degenerateArea {
			continue
		}
		n = n.Normalize()

		tex := 0
		if int(face.TextureID) < len(node.TextureIDs) {
			tex = int(node.TextureIDs[face.TextureID])
		}

		base := addCorners(face, n, opts.ReverseWinding)
		groups[tex] = append(groups[tex], base, base+1, base+2)
		if face.TwoSide != 0 || opts.ForceTwoSided {
			back := addCorners(face, n.Mul(-1), !opts.ReverseWinding)
			groups[tex] = append(groups[tex], back, back+1, back+2)
		}
	}
	if len(m.Positions) == 0 {
		return scene.Mesh{}, false
	}

	textures := make([]int, 0, len(groups))
	for tex := range groups {
		textures = append(textures, tex)
	}
	sort.Ints(textures)
	for _, tex := range textures {
		idx := groups[tex]
		m.Primitives = append(m.Primitives, scene.Primitive{
			Start:    len(m.Indices),
			Count:    len(idx),
			Material: tex,
		})
		m.Indices = append(m.Indices, idx...)
	}

	if smooth {
		smoothNormals(m.Positions, m.Normals)
	}
	return m, true
}

func validFace(face *formats.RSMFace, numVertices int) bool {
	for _, v := range face.VertexIDs {
		if int(v) >= numVertices {
			return false
		}
	}
	return true
}

// smoothNormals averages normals of vertices sharing a quantized position and
// facing the same side.
func smoothNormals(positions, normals []mgl32.Vec3) {
	const epsilon float32 = 0.001

	type key [3]int32
	shared := make(map[key][]int)
	for i, p := range positions {
		k := key{int32(p[0] / epsilon), int32(p[1] / epsilon), int32(p[2] / epsilon)}
		shared[k] = append(shared[k], i)
	}

	out := make([]mgl32.Vec3, len(normals))
	copy(out, normals)
	for _, idxs := range shared {
		if len(idxs) < 2 {
			continue
		}
		for _, i := range idxs {
			var sum mgl32.Vec3
			for _, j := range idxs {
				// back faces keep their own side
				if normals[i].Dot(normals[j]) > 0 {
					sum = sum.Add(normals[j])
				}
			}
			if sum.Len() > 1e-4 {
				out[i] = sum.Normalize()
			}
		}
	}
	copy(normals, out)
}
