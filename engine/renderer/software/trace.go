package software

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const triangleEpsilon = 1e-7

// Hit describes the closest intersection found by TraceRay.
type Hit struct {
	// InstanceID is the custom 24-bit identifier stored in the instance record.
	InstanceID uint32
	// InstanceIndex is the position of the instance inside the TLAS.
	InstanceIndex uint32
	// PrimitiveIndex is the triangle index inside the instance's BLAS.
	PrimitiveIndex uint32
	T              float32
	Opaque         bool
}

// TraceRay intersects a world space ray with a built top level structure. Only
// instances whose mask shares a bit with rayMask are considered.
func (b *Backend) TraceRay(tlas *metadata.AccelerationStructure, origin, dir mgl32.Vec3, tMax float32, rayMask uint8) (Hit, bool, error) {
	ss, err := structureInternal(tlas)
	if err != nil {
		return Hit{}, false, err
	}
	if tlas.Level != metadata.AccelerationStructureTop {
		return Hit{}, false, errors.Errorf("TraceRay needs a TLAS, '%s' is a %s", tlas.Name, tlas.Level)
	}

	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	if !ss.built {
		return Hit{}, false, errors.Wrapf(core.ErrNotFlushed, "TLAS '%s'", tlas.Name)
	}

	var hit Hit
	_, _, found := ss.hierarchy.closestHit(origin, dir, tMax, func(item int32, tMax float32) (float32, bool) {
		inst := &ss.instances[item]
		if inst.instance.InstanceMask&rayMask == 0 {
			return 0, false
		}
		// the object space direction is left unnormalized so t stays in world units
		localOrigin := inst.inverse.Mul4x1(origin.Vec4(1)).Vec3()
		localDir := inst.inverse.Mul4x1(dir.Vec4(0)).Vec3()

		prim, t, ok := inst.structure.intersect(localOrigin, localDir, tMax)
		if !ok {
			return 0, false
		}
		hit = Hit{
			InstanceID:     inst.instance.InstanceID,
			InstanceIndex:  uint32(item),
			PrimitiveIndex: uint32(prim),
			T:              t,
			Opaque:         inst.instance.Flags&metadata.InstanceFlagForceNonOpaque == 0,
		}
		return t, true
	})
	return hit, found, nil
}

func (ss *softStructure) intersect(origin, dir mgl32.Vec3, tMax float32) (int32, float32, bool) {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	if ss.hierarchy == nil {
		return -1, 0, false
	}
	return ss.hierarchy.closestHit(origin, dir, tMax, func(item int32, tMax float32) (float32, bool) {
		t, ok := intersectTriangle(&ss.triangles[item], origin, dir)
		if !ok || t >= tMax {
			return 0, false
		}
		return t, true
	})
}

// intersectTriangle is the Möller-Trumbore test; both faces count as hits.
func intersectTriangle(tri *softTriangle, origin, dir mgl32.Vec3) (float32, bool) {
	e1 := tri.v1.Sub(tri.v0)
	e2 := tri.v2.Sub(tri.v0)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < triangleEpsilon {
		return 0, false
	}
	invDet := 1 / det

	s := origin.Sub(tri.v0)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * invDet
	if t <= triangleEpsilon {
		return 0, false
	}
	return t, true
}
