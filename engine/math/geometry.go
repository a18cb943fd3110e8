package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Computes per-vertex tangents and bitangents in place from the triangle
 * list in indices. Contributions of every triangle touching a vertex are summed,
 * then the tangent is Gram-Schmidt orthogonalized against the vertex normal.
 * A triangle with a degenerate UV mapping contributes nothing. Trailing indices
 * that do not form a full triangle are ignored.
 *
 * @param vertices The vertices to update. Positions, normals and texcoords are read.
 * @param indices The triangle list indexing into vertices.
 */
func GeometryGenerateTangents(vertices []Vertex, indices []uint32) {
	tangents := make([]mgl32.Vec3, len(vertices))
	bitangents := make([]mgl32.Vec3, len(vertices))

	triangleCount := len(indices) / 3
	for tri := 0; tri < triangleCount; tri++ {
		i0 := indices[tri*3+0]
		i1 := indices[tri*3+1]
		i2 := indices[tri*3+2]

		v0 := vertices[i0]
		v1 := vertices[i1]
		v2 := vertices[i2]

		edge1 := v1.Position.Sub(v0.Position)
		edge2 := v2.Position.Sub(v0.Position)

		deltaU1 := v1.Texcoord.X() - v0.Texcoord.X()
		deltaV1 := v1.Texcoord.Y() - v0.Texcoord.Y()
		deltaU2 := v2.Texcoord.X() - v0.Texcoord.X()
		deltaV2 := v2.Texcoord.Y() - v0.Texcoord.Y()

		det := deltaU1*deltaV2 - deltaU2*deltaV1
		invDet := float32(0)
		if det != 0 {
			invDet = 1.0 / det
		}

		tangent := edge1.Mul(deltaV2).Sub(edge2.Mul(deltaV1)).Mul(invDet)
		bitangent := edge2.Mul(deltaU1).Sub(edge1.Mul(deltaU2)).Mul(invDet)

		for _, idx := range [3]uint32{i0, i1, i2} {
			tangents[idx] = tangents[idx].Add(tangent)
			bitangents[idx] = bitangents[idx].Add(bitangent)
		}
	}

	for i := range vertices {
		n := vertices[i].Normal
		t := tangents[i]

		// Gram-Schmidt orthogonalize
		t = normalizeOrZero(t.Sub(n.Mul(n.Dot(t))))
		b := n.Cross(t)

		// Calculate handedness
		if b.Dot(bitangents[i]) < 0 {
			t = t.Mul(-1)
		}

		vertices[i].Tangent = t
		vertices[i].Bitangent = b
	}
}

func normalizeOrZero(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 || math32.IsNaN(l) || math32.IsInf(l, 0) {
		return mgl32.Vec3{}
	}
	return v.Mul(1.0 / l)
}
