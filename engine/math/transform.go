package math

import "github.com/go-gl/mathgl/mgl32"

// ComposeTRS builds translation × rotation × scale. A zero-valued component should be
// passed as its identity (zero vector, identity quaternion, unit scale).
func ComposeTRS(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	t := mgl32.Translate3D(translation.X(), translation.Y(), translation.Z())
	r := rotation.Mat4()
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return t.Mul4(r).Mul4(s)
}

// Mat4FromColumnMajor converts a column-major matrix (the glTF node and config layout).
func Mat4FromColumnMajor[T float32 | float64](m [16]T) mgl32.Mat4 {
	var out mgl32.Mat4
	for i := range m {
		out[i] = float32(m[i])
	}
	return out
}

// ToTransform3x4 keeps the first three rows of m.
func ToTransform3x4(m mgl32.Mat4) Transform3x4 {
	var t Transform3x4
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			t[row][col] = m.At(row, col)
		}
	}
	return t
}

// IdentityTransform3x4 returns the 3x4 identity.
func IdentityTransform3x4() Transform3x4 {
	return ToTransform3x4(mgl32.Ident4())
}

// Mat4 expands t back into a full homogeneous matrix.
func (t Transform3x4) Mat4() mgl32.Mat4 {
	m := mgl32.Ident4()
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			m.Set(row, col, t[row][col])
		}
	}
	return m
}

func (t Transform3x4) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		t[0][0]*p[0] + t[0][1]*p[1] + t[0][2]*p[2] + t[0][3],
		t[1][0]*p[0] + t[1][1]*p[1] + t[1][2]*p[2] + t[1][3],
		t[2][0]*p[0] + t[2][1]*p[1] + t[2][2]*p[2] + t[2][3],
	}
}

func (t Transform3x4) TransformVector(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		t[0][0]*v[0] + t[0][1]*v[1] + t[0][2]*v[2],
		t[1][0]*v[0] + t[1][1]*v[1] + t[1][2]*v[2],
		t[2][0]*v[0] + t[2][1]*v[1] + t[2][2]*v[2],
	}
}
