package systems

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadFixture struct {
	renderer *renderer.Renderer
	backend  *software.Backend
	uploads  *UploadSystem
	metrics  *core.LoadMetrics
	events   *core.EventBus
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	backend := software.New()
	r := renderer.New(backend)
	require.NoError(t, r.Initialize("upload-test"))

	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })

	metrics := core.NewLoadMetrics()
	events := core.NewEventBus()
	return &uploadFixture{
		renderer: r,
		backend:  backend,
		uploads:  NewUploadSystem(backend, js, metrics, events),
		metrics:  metrics,
		events:   events,
	}
}

func TestUploadIsDeferredUntilFlush(t *testing.T) {
	f := newUploadFixture(t)
	buf, err := f.renderer.CreateBuffer(4, 4, metadata.BufferTypeStorage, "deferred")
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}
	f.uploads.EnqueueBufferUpload(data, buf)
	// the request owns a copy
	data[0] = 9

	_, err = f.renderer.ReadBuffer(buf)
	assert.True(t, errors.Is(err, core.ErrNotFlushed))
	assert.Equal(t, 1, f.uploads.Pending())

	require.NoError(t, f.uploads.Flush())
	got, err := f.renderer.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	assert.Equal(t, 0, f.uploads.Pending())
	assert.Equal(t, int64(1), f.metrics.Flushes.Load())
}

func TestFlushOrdersStages(t *testing.T) {
	f := newUploadFixture(t)

	vertices := []mathx.Vertex{
		{Position: mgl32.Vec3{0, 0, 0}},
		{Position: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 1, 0}},
	}
	indices := []uint32{0, 1, 2}
	vb, err := f.renderer.CreateStorageBuffer(uint64(len(vertices))*mathx.VertexSize, mathx.VertexSize, "vb")
	require.NoError(t, err)
	ib, err := f.renderer.CreateStorageBuffer(12, 4, "ib")
	require.NoError(t, err)
	blas, err := f.renderer.CreateBLAS(vb, ib, 3, 3, "blas")
	require.NoError(t, err)

	instances := metadata.PackRaytracingInstances([]metadata.RaytracingInstance{{
		Transform:             mathx.IdentityTransform3x4(),
		InstanceMask:          1,
		AccelerationStructure: blas.Address,
	}})
	instBuf, err := f.renderer.CreateBuffer(uint64(len(instances)), metadata.RaytracingInstanceSize, metadata.BufferTypeStorage, "instances")
	require.NoError(t, err)
	tlas, err := f.renderer.CreateTLAS(instBuf, 1, "tlas")
	require.NoError(t, err)

	// enqueued in the worst possible order
	f.uploads.EnqueueAccelerationStructureBuild(tlas)
	f.uploads.EnqueueAccelerationStructureBuild(blas)
	f.uploads.EnqueueBufferUpload(instances, instBuf)
	ibytes, err := metadata.EncodeLittleEndian(indices)
	require.NoError(t, err)
	f.uploads.EnqueueBufferUpload(ibytes, ib)
	vbytes, err := metadata.EncodeLittleEndian(vertices)
	require.NoError(t, err)
	f.uploads.EnqueueBufferUpload(vbytes, vb)

	var flushed uint64
	f.events.Register(core.EventCodeUploadsFlushed, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		flushed = data.Data.U64[0]
		return true
	})

	require.NoError(t, f.uploads.Flush())
	assert.True(t, f.backend.IsBuilt(blas))
	assert.True(t, f.backend.IsBuilt(tlas))
	assert.Equal(t, uint64(5), flushed)

	stats := f.uploads.Stats()
	assert.Equal(t, int64(3), stats.BufferUploads)
	assert.Equal(t, int64(2), stats.Builds)
	assert.Equal(t, int64(0), stats.TextureUploads)
	assert.Equal(t, int64(5), stats.Flushed)

	hit, ok, err := f.backend.TraceRay(tlas, mgl32.Vec3{0.25, 0.25, 1}, mgl32.Vec3{0, 0, -1}, 10, 0xff)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 1, hit.T, 1e-5)
}

func TestFlushJoinsErrors(t *testing.T) {
	f := newUploadFixture(t)
	small, err := f.renderer.CreateBuffer(2, 1, metadata.BufferTypeStorage, "small")
	require.NoError(t, err)
	tex, err := f.renderer.CreateTexture(metadata.TextureDesc{Name: "tex", Width: 1, Height: 1, Format: metadata.TextureFormatRGBA8SRGB})
	require.NoError(t, err)
	good, err := f.renderer.CreateBuffer(1, 1, metadata.BufferTypeStorage, "good")
	require.NoError(t, err)

	f.uploads.EnqueueBufferUpload([]byte{1, 2, 3}, small)
	f.uploads.EnqueueTextureUpload([]uint8{1, 2}, tex)
	f.uploads.EnqueueBufferUpload([]byte{7}, good)

	err = f.uploads.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "small")
	assert.Contains(t, err.Error(), "tex")

	got, err := f.renderer.ReadBuffer(good)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got)
}

func TestFlushEmptyQueue(t *testing.T) {
	f := newUploadFixture(t)
	assert.NoError(t, f.uploads.Flush())
	assert.Equal(t, int64(0), f.metrics.Flushes.Load())
}

func TestCancelPendingDropsOnlyTargets(t *testing.T) {
	f := newUploadFixture(t)
	keep, err := f.renderer.CreateBuffer(4, 4, metadata.BufferTypeStorage, "keep")
	require.NoError(t, err)
	drop, err := f.renderer.CreateBuffer(4, 4, metadata.BufferTypeStorage, "drop")
	require.NoError(t, err)
	tex, err := f.renderer.CreateTexture(metadata.TextureDesc{Name: "tex", Width: 1, Height: 1, Format: metadata.TextureFormatRGBA8SRGB})
	require.NoError(t, err)

	f.uploads.EnqueueBufferUpload([]byte{1, 2, 3, 4}, keep)
	f.uploads.EnqueueBufferUpload([]byte{5, 6, 7, 8}, drop)
	f.uploads.EnqueueTextureUpload([]uint8{0, 0, 0, 255}, tex)
	f.uploads.EnqueueBufferUpload([]byte{9, 9, 9, 9}, drop)

	assert.Equal(t, 3, f.uploads.CancelPending(drop, tex, (*metadata.Buffer)(nil), "unrelated"))
	assert.Equal(t, 1, f.uploads.Pending())
	assert.Equal(t, int64(3), f.uploads.Stats().Cancelled)
	assert.Zero(t, f.uploads.CancelPending())

	require.NoError(t, f.uploads.Flush())
	got, err := f.renderer.ReadBuffer(keep)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	_, err = f.renderer.ReadBuffer(drop)
	assert.True(t, errors.Is(err, core.ErrNotFlushed))
}

func TestAttachedRendererCancelsOnDestroy(t *testing.T) {
	f := newUploadFixture(t)
	f.renderer.AttachUploader(f.uploads)

	buf, err := f.renderer.CreateBuffer(4, 4, metadata.BufferTypeStorage, "short lived")
	require.NoError(t, err)
	f.uploads.EnqueueBufferUpload([]byte{1, 2, 3, 4}, buf)
	f.renderer.DestroyBuffer(buf)

	assert.Zero(t, f.uploads.Pending())
	assert.NoError(t, f.uploads.Flush())
}
