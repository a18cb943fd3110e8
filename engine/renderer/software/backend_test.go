package software

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) (*renderer.Renderer, *Backend) {
	t.Helper()
	backend := New()
	r := renderer.New(backend)
	require.NoError(t, r.Initialize("software-test"))
	return r, backend
}

// quad in the z=0 plane covering [-1,1]x[-1,1], two triangles
func writeQuad(t *testing.T, r *renderer.Renderer, backend *Backend) *metadata.AccelerationStructure {
	t.Helper()
	vertices := []mathx.Vertex{
		{Position: mgl32.Vec3{-1, -1, 0}},
		{Position: mgl32.Vec3{1, -1, 0}},
		{Position: mgl32.Vec3{1, 1, 0}},
		{Position: mgl32.Vec3{-1, 1, 0}},
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}

	vb, err := r.CreateStorageBuffer(uint64(len(vertices))*mathx.VertexSize, mathx.VertexSize, "quad vb")
	require.NoError(t, err)
	ib, err := r.CreateStorageBuffer(uint64(len(indices))*4, 4, "quad ib")
	require.NoError(t, err)

	vbytes, err := metadata.EncodeLittleEndian(vertices)
	require.NoError(t, err)
	ibytes, err := metadata.EncodeLittleEndian(indices)
	require.NoError(t, err)
	require.NoError(t, backend.BufferWrite(vb, 0, vbytes))
	require.NoError(t, backend.BufferWrite(ib, 0, ibytes))

	blas, err := r.CreateBLAS(vb, ib, uint32(len(vertices)), uint32(len(indices)), "quad blas")
	require.NoError(t, err)
	require.NoError(t, backend.AccelerationStructureBuild(blas))
	return blas
}

func buildTLAS(t *testing.T, r *renderer.Renderer, backend *Backend, instances []metadata.RaytracingInstance) *metadata.AccelerationStructure {
	t.Helper()
	data := metadata.PackRaytracingInstances(instances)
	buf, err := r.CreateBuffer(uint64(len(data)), metadata.RaytracingInstanceSize, metadata.BufferTypeStorage, "instances")
	require.NoError(t, err)
	require.NoError(t, backend.BufferWrite(buf, 0, data))
	tlas, err := r.CreateTLAS(buf, uint32(len(instances)), "tlas")
	require.NoError(t, err)
	require.NoError(t, backend.AccelerationStructureBuild(tlas))
	return tlas
}

func TestBufferReadBeforeWrite(t *testing.T) {
	r, backend := newTestRenderer(t)
	buf, err := r.CreateBuffer(64, 16, metadata.BufferTypeStorage, "pending")
	require.NoError(t, err)

	_, err = r.ReadBuffer(buf)
	assert.True(t, errors.Is(err, core.ErrNotFlushed))

	require.NoError(t, backend.BufferWrite(buf, 16, []byte{1, 2, 3}))
	data, err := r.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data[16:19])

	assert.Error(t, backend.BufferWrite(buf, 62, []byte{1, 2, 3}))
}

func TestBufferAddressesAreDistinctAndAligned(t *testing.T) {
	r, _ := newTestRenderer(t)
	a, err := r.CreateBuffer(10, 1, metadata.BufferTypeVertex, "a")
	require.NoError(t, err)
	b, err := r.CreateBuffer(300, 1, metadata.BufferTypeVertex, "b")
	require.NoError(t, err)
	c, err := r.CreateBuffer(1, 1, metadata.BufferTypeVertex, "c")
	require.NoError(t, err)

	assert.NotZero(t, a.Address)
	assert.Zero(t, a.Address%addressAlignment)
	assert.Equal(t, a.Address+256, b.Address)
	assert.Equal(t, b.Address+512, c.Address)
}

func TestBindlessIndicesAreReused(t *testing.T) {
	r, backend := newTestRenderer(t)
	a, err := r.CreateStorageBuffer(16, 16, "a")
	require.NoError(t, err)
	b, err := r.CreateStorageBuffer(16, 16, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(0), a.SRV)
	assert.Equal(t, int32(1), b.SRV)
	assert.Equal(t, 2, backend.DescriptorCount())

	r.DestroyBuffer(a)
	assert.Equal(t, metadata.InvalidBindless, a.SRV)

	tex, err := r.CreateTexture(metadata.TextureDesc{Name: "t", Width: 1, Height: 1, Format: metadata.TextureFormatRGBA8SRGB})
	require.NoError(t, err)
	view, err := r.CreateView(tex, metadata.ViewTypeShaderResource)
	require.NoError(t, err)
	assert.Equal(t, int32(0), view.Bindless)
}

func TestTextureWriteChecksSize(t *testing.T) {
	r, backend := newTestRenderer(t)
	tex, err := r.CreateTexture(metadata.TextureDesc{Name: "t", Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8SRGB})
	require.NoError(t, err)

	_, err = backend.TexturePixels(tex)
	assert.True(t, errors.Is(err, core.ErrNotFlushed))

	assert.Error(t, backend.TextureWriteData(tex, make([]uint8, 4)))
	pixels := make([]uint8, 16)
	pixels[0] = 255
	require.NoError(t, backend.TextureWriteData(tex, pixels))
	got, err := backend.TexturePixels(tex)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestBLASBounds(t *testing.T) {
	r, backend := newTestRenderer(t)
	blas := writeQuad(t, r, backend)
	assert.True(t, backend.IsBuilt(blas))

	bounds, err := backend.Bounds(blas)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{-1, -1, 0}, bounds.Min)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, bounds.Max)
}

func TestTLASRequiresBuiltBLAS(t *testing.T) {
	r, backend := newTestRenderer(t)
	vb, err := r.CreateStorageBuffer(mathx.VertexSize*3, mathx.VertexSize, "vb")
	require.NoError(t, err)
	ib, err := r.CreateStorageBuffer(12, 4, "ib")
	require.NoError(t, err)
	blas, err := r.CreateBLAS(vb, ib, 3, 3, "unbuilt")
	require.NoError(t, err)

	data := metadata.PackRaytracingInstances([]metadata.RaytracingInstance{{
		Transform:             mathx.IdentityTransform3x4(),
		InstanceMask:          1,
		AccelerationStructure: blas.Address,
	}})
	buf, err := r.CreateBuffer(uint64(len(data)), metadata.RaytracingInstanceSize, metadata.BufferTypeStorage, "instances")
	require.NoError(t, err)
	require.NoError(t, backend.BufferWrite(buf, 0, data))
	tlas, err := r.CreateTLAS(buf, 1, "tlas")
	require.NoError(t, err)

	err = backend.AccelerationStructureBuild(tlas)
	assert.True(t, errors.Is(err, core.ErrNotFlushed))
	assert.False(t, backend.IsBuilt(tlas))
}

func TestTraceRayHitsTransformedInstances(t *testing.T) {
	r, backend := newTestRenderer(t)
	blas := writeQuad(t, r, backend)

	near := mathx.ToTransform3x4(mgl32.Translate3D(0, 0, -5))
	far := mathx.ToTransform3x4(mgl32.Translate3D(0, 0, -10).Mul4(mgl32.Scale3D(4, 4, 4)))
	side := mathx.ToTransform3x4(mgl32.Translate3D(10, 0, -5))
	tlas := buildTLAS(t, r, backend, []metadata.RaytracingInstance{
		{Transform: far, InstanceID: 7, InstanceMask: 1, Flags: metadata.InstanceFlagForceOpaque, AccelerationStructure: blas.Address},
		{Transform: near, InstanceID: 3, InstanceMask: 1, Flags: metadata.InstanceFlagForceNonOpaque, AccelerationStructure: blas.Address},
		{Transform: side, InstanceID: 9, InstanceMask: 2, Flags: metadata.InstanceFlagForceOpaque, AccelerationStructure: blas.Address},
	})

	bounds, err := backend.Bounds(tlas)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{-4, -4, -10}, bounds.Min)
	assert.Equal(t, mgl32.Vec3{11, 4, -5}, bounds.Max)

	// straight down -z hits the near quad first
	hit, ok, err := backend.TraceRay(tlas, mgl32.Vec3{0.5, 0.25, 0}, mgl32.Vec3{0, 0, -1}, 100, 0xff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(3), hit.InstanceID)
	assert.Equal(t, uint32(1), hit.InstanceIndex)
	assert.InDelta(t, 5, hit.T, 1e-5)
	assert.False(t, hit.Opaque)

	// outside the near quad but inside the scaled far one
	hit, ok, err = backend.TraceRay(tlas, mgl32.Vec3{3, 3, 0}, mgl32.Vec3{0, 0, -1}, 100, 0xff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(7), hit.InstanceID)
	assert.InDelta(t, 10, hit.T, 1e-5)
	assert.True(t, hit.Opaque)

	// tMax cuts the far quad off
	_, ok, err = backend.TraceRay(tlas, mgl32.Vec3{3, 3, 0}, mgl32.Vec3{0, 0, -1}, 8, 0xff)
	require.NoError(t, err)
	assert.False(t, ok)

	// masked instance
	_, ok, err = backend.TraceRay(tlas, mgl32.Vec3{10, 0, 0}, mgl32.Vec3{0, 0, -1}, 100, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	hit, ok, err = backend.TraceRay(tlas, mgl32.Vec3{10, 0, 0}, mgl32.Vec3{0, 0, -1}, 100, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(9), hit.InstanceID)
}

func TestTraceRayPrimitiveIndex(t *testing.T) {
	r, backend := newTestRenderer(t)
	blas := writeQuad(t, r, backend)
	tlas := buildTLAS(t, r, backend, []metadata.RaytracingInstance{
		{Transform: mathx.IdentityTransform3x4(), InstanceMask: 1, AccelerationStructure: blas.Address},
	})

	// triangle 0 is (0,1,2): below the diagonal y=x
	hit, ok, err := backend.TraceRay(tlas, mgl32.Vec3{0.5, -0.5, 1}, mgl32.Vec3{0, 0, -1}, 100, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0), hit.PrimitiveIndex)

	hit, ok, err = backend.TraceRay(tlas, mgl32.Vec3{-0.5, 0.5, 1}, mgl32.Vec3{0, 0, -1}, 100, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), hit.PrimitiveIndex)
}

func TestBVHManyItems(t *testing.T) {
	bounds := make([]mathx.Extents3D, 100)
	for i := range bounds {
		x := float32(i) * 2
		bounds[i] = mathx.EmptyExtents().Expand(mgl32.Vec3{x, 0, 0}).Expand(mgl32.Vec3{x + 1, 1, 1})
	}
	b := buildBVH(bounds)

	item, _, ok := b.closestHit(mgl32.Vec3{84.5, 0.5, 5}, mgl32.Vec3{0, 0, -1}, 100, func(item int32, tMax float32) (float32, bool) {
		t, ok := bounds[item].IntersectRay(mgl32.Vec3{84.5, 0.5, 5}, mgl32.Vec3{math32.Inf(1), math32.Inf(1), -1}, tMax)
		return t, ok && t < tMax
	})
	require.True(t, ok)
	assert.Equal(t, int32(42), item)
}
