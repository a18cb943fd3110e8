package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// EmptyExtents returns inverted bounds that any Expand call will replace.
func EmptyExtents() Extents3D {
	inf := math32.Inf(1)
	return Extents3D{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (e Extents3D) IsEmpty() bool {
	return e.Min[0] > e.Max[0] || e.Min[1] > e.Max[1] || e.Min[2] > e.Max[2]
}

func (e Extents3D) Expand(p mgl32.Vec3) Extents3D {
	for i := 0; i < 3; i++ {
		e.Min[i] = math32.Min(e.Min[i], p[i])
		e.Max[i] = math32.Max(e.Max[i], p[i])
	}
	return e
}

func (e Extents3D) Union(other Extents3D) Extents3D {
	if other.IsEmpty() {
		return e
	}
	return e.Expand(other.Min).Expand(other.Max)
}

func (e Extents3D) Center() mgl32.Vec3 {
	return e.Min.Add(e.Max).Mul(0.5)
}

// LongestAxis returns 0, 1 or 2.
func (e Extents3D) LongestAxis() int {
	d := e.Max.Sub(e.Min)
	axis := 0
	if d[1] > d[axis] {
		axis = 1
	}
	if d[2] > d[axis] {
		axis = 2
	}
	return axis
}

// Transform returns the bounds of the eight transformed corners.
func (e Extents3D) Transform(t Transform3x4) Extents3D {
	if e.IsEmpty() {
		return e
	}
	out := EmptyExtents()
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{e.Min[0], e.Min[1], e.Min[2]}
		if i&1 != 0 {
			corner[0] = e.Max[0]
		}
		if i&2 != 0 {
			corner[1] = e.Max[1]
		}
		if i&4 != 0 {
			corner[2] = e.Max[2]
		}
		out = out.Expand(t.TransformPoint(corner))
	}
	return out
}

// IntersectRay runs the slab test and returns the entry distance clamped to zero.
// ok is false when the ray misses or the entry lies beyond tMax.
func (e Extents3D) IntersectRay(origin, invDir mgl32.Vec3, tMax float32) (float32, bool) {
	tNear := float32(0)
	tFar := tMax
	for i := 0; i < 3; i++ {
		t1 := (e.Min[i] - origin[i]) * invDir[i]
		t2 := (e.Max[i] - origin[i]) * invDir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		// NaN from 0*inf keeps the current interval
		if !math32.IsNaN(t1) {
			tNear = math32.Max(tNear, t1)
		}
		if !math32.IsNaN(t2) {
			tFar = math32.Min(tFar, t2)
		}
		if tNear > tFar {
			return 0, false
		}
	}
	return tNear, true
}
