// Package software is a CPU reference implementation of the renderer backend. Memory
// lives in Go slices, bindless indices come from a descriptor heap and acceleration
// structures are real BVHs that can be queried with TraceRay.
package software

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	addressBase      uint64 = 0x1000_0000
	addressAlignment uint64 = 256
)

type softBuffer struct {
	mutex    sync.RWMutex
	data     []byte
	uploaded bool
}

type softTexture struct {
	mutex    sync.RWMutex
	pixels   []uint8
	uploaded bool
}

type softTriangle struct {
	v0, v1, v2 mgl32.Vec3
}

type softInstance struct {
	instance  metadata.RaytracingInstance
	inverse   mgl32.Mat4
	structure *softStructure
}

type softStructure struct {
	mutex     sync.RWMutex
	as        *metadata.AccelerationStructure
	built     bool
	bounds    mathx.Extents3D
	hierarchy *bvh
	triangles []softTriangle
	instances []softInstance
}

// Backend implements renderer.RendererBackend on the CPU. It is safe for concurrent
// use; the upload system writes many resources in parallel during a flush.
type Backend struct {
	mutex       sync.RWMutex
	appName     string
	heap        *core.IdentifierPool
	nextAddress uint64
	structures  map[uint64]*softStructure
	liveBuffers int
}

func New() *Backend {
	return &Backend{
		heap:        core.NewIdentifierPool(1024),
		nextAddress: addressBase,
		structures:  make(map[uint64]*softStructure),
	}
}

func (b *Backend) Initialize(appName string) error {
	b.appName = appName
	core.LogInfo("software renderer backend initialized for '%s'", appName)
	return nil
}

func (b *Backend) Shutdown() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.liveBuffers > 0 || len(b.structures) > 0 {
		core.LogWarn("software backend shutting down with %d buffers and %d acceleration structures still alive", b.liveBuffers, len(b.structures))
	}
	b.structures = make(map[uint64]*softStructure)
	return nil
}

// DescriptorCount is the number of bindless descriptors currently allocated.
func (b *Backend) DescriptorCount() int {
	return b.heap.Count()
}

func (b *Backend) allocateAddress(size uint64) uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	addr := b.nextAddress
	size = max(size, 1)
	b.nextAddress += metadata.GetAligned(size, addressAlignment)
	return addr
}

// ------------------------------------------
// Buffers
// ------------------------------------------

func (b *Backend) BufferCreate(buffer *metadata.Buffer) error {
	buffer.InternalData = &softBuffer{
		data: make([]byte, buffer.Size),
	}
	buffer.Address = b.allocateAddress(buffer.Size)
	buffer.SRV = metadata.InvalidBindless

	b.mutex.Lock()
	b.liveBuffers++
	b.mutex.Unlock()
	return nil
}

func bufferInternal(buffer *metadata.Buffer) (*softBuffer, error) {
	if buffer == nil {
		return nil, errors.Wrap(core.ErrInvalidResource, "nil buffer")
	}
	sb, ok := buffer.InternalData.(*softBuffer)
	if !ok || sb == nil {
		return nil, errors.Wrapf(core.ErrInvalidResource, "buffer '%s' was not created by the software backend or was destroyed", buffer.Name)
	}
	return sb, nil
}

func (b *Backend) BufferBuildSRV(buffer *metadata.Buffer) error {
	if _, err := bufferInternal(buffer); err != nil {
		return err
	}
	if buffer.SRV != metadata.InvalidBindless {
		return nil
	}
	buffer.SRV = int32(b.heap.AquireNewID(buffer))
	return nil
}

func (b *Backend) BufferWrite(buffer *metadata.Buffer, offset uint64, data []byte) error {
	sb, err := bufferInternal(buffer)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buffer.Size {
		return errors.Errorf("write of %d bytes at offset %d overflows buffer '%s' of %d bytes", len(data), offset, buffer.Name, buffer.Size)
	}
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	copy(sb.data[offset:], data)
	sb.uploaded = true
	return nil
}

func (b *Backend) BufferRead(buffer *metadata.Buffer, offset, size uint64) ([]byte, error) {
	sb, err := bufferInternal(buffer)
	if err != nil {
		return nil, err
	}
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	if !sb.uploaded && buffer.Size > 0 {
		return nil, errors.Wrapf(core.ErrNotFlushed, "buffer '%s'", buffer.Name)
	}
	if offset+size > buffer.Size {
		return nil, errors.Errorf("read of %d bytes at offset %d overflows buffer '%s' of %d bytes", size, offset, buffer.Name, buffer.Size)
	}
	out := make([]byte, size)
	copy(out, sb.data[offset:offset+size])
	return out, nil
}

func (b *Backend) BufferDestroy(buffer *metadata.Buffer) {
	if _, err := bufferInternal(buffer); err != nil {
		return
	}
	if buffer.SRV != metadata.InvalidBindless {
		_ = b.heap.ReleaseID(uint32(buffer.SRV))
		buffer.SRV = metadata.InvalidBindless
	}
	buffer.InternalData = nil

	b.mutex.Lock()
	b.liveBuffers--
	b.mutex.Unlock()
}

// ------------------------------------------
// Textures
// ------------------------------------------

func (b *Backend) TextureCreate(texture *metadata.Texture) error {
	if texture.Desc.Width == 0 || texture.Desc.Height == 0 {
		return errors.Errorf("texture '%s' has zero extent %dx%d", texture.Name(), texture.Desc.Width, texture.Desc.Height)
	}
	texture.InternalData = &softTexture{
		pixels: make([]uint8, texture.SizeInBytes()),
	}
	return nil
}

func textureInternal(texture *metadata.Texture) (*softTexture, error) {
	if texture == nil {
		return nil, errors.Wrap(core.ErrInvalidResource, "nil texture")
	}
	st, ok := texture.InternalData.(*softTexture)
	if !ok || st == nil {
		return nil, errors.Wrapf(core.ErrInvalidResource, "texture '%s' was not created by the software backend or was destroyed", texture.Name())
	}
	return st, nil
}

func (b *Backend) TextureWriteData(texture *metadata.Texture, pixels []uint8) error {
	st, err := textureInternal(texture)
	if err != nil {
		return err
	}
	if uint64(len(pixels)) != texture.SizeInBytes() {
		return errors.Errorf("texture '%s' expects %d bytes of pixels, got %d", texture.Name(), texture.SizeInBytes(), len(pixels))
	}
	st.mutex.Lock()
	defer st.mutex.Unlock()
	copy(st.pixels, pixels)
	st.uploaded = true
	return nil
}

// TexturePixels returns a copy of the uploaded texels.
func (b *Backend) TexturePixels(texture *metadata.Texture) ([]uint8, error) {
	st, err := textureInternal(texture)
	if err != nil {
		return nil, err
	}
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	if !st.uploaded {
		return nil, errors.Wrapf(core.ErrNotFlushed, "texture '%s'", texture.Name())
	}
	out := make([]uint8, len(st.pixels))
	copy(out, st.pixels)
	return out, nil
}

func (b *Backend) TextureDestroy(texture *metadata.Texture) {
	if texture != nil {
		texture.InternalData = nil
	}
}

func (b *Backend) ViewCreate(view *metadata.View) error {
	if _, err := textureInternal(view.Texture); err != nil {
		return err
	}
	view.Bindless = int32(b.heap.AquireNewID(view))
	return nil
}

func (b *Backend) ViewDestroy(view *metadata.View) {
	if view == nil || view.Bindless == metadata.InvalidBindless {
		return
	}
	_ = b.heap.ReleaseID(uint32(view.Bindless))
	view.Bindless = metadata.InvalidBindless
}

// ------------------------------------------
// Acceleration structures
// ------------------------------------------

func (b *Backend) AccelerationStructureCreate(as *metadata.AccelerationStructure) error {
	switch as.Level {
	case metadata.AccelerationStructureBottom:
		if as.VertexBuffer == nil || as.IndexBuffer == nil {
			return errors.Wrapf(core.ErrInvalidResource, "BLAS '%s' needs vertex and index buffers", as.Name)
		}
	case metadata.AccelerationStructureTop:
		if as.InstanceBuffer == nil {
			return errors.Wrapf(core.ErrInvalidResource, "TLAS '%s' needs an instance buffer", as.Name)
		}
	}

	ss := &softStructure{as: as, bounds: mathx.EmptyExtents()}
	as.Address = b.allocateAddress(addressAlignment)
	as.InternalData = ss

	b.mutex.Lock()
	b.structures[as.Address] = ss
	b.mutex.Unlock()
	return nil
}

func structureInternal(as *metadata.AccelerationStructure) (*softStructure, error) {
	if as == nil {
		return nil, errors.Wrap(core.ErrInvalidResource, "nil acceleration structure")
	}
	ss, ok := as.InternalData.(*softStructure)
	if !ok || ss == nil {
		return nil, errors.Wrapf(core.ErrInvalidResource, "%s '%s' was not created by the software backend or was destroyed", as.Level, as.Name)
	}
	return ss, nil
}

func (b *Backend) AccelerationStructureBuild(as *metadata.AccelerationStructure) error {
	ss, err := structureInternal(as)
	if err != nil {
		return err
	}
	if as.Level == metadata.AccelerationStructureTop {
		return b.buildTop(ss)
	}
	return b.buildBottom(ss)
}

func (b *Backend) buildBottom(ss *softStructure) error {
	as := ss.as
	vertexBytes, err := b.BufferRead(as.VertexBuffer, 0, as.VertexBuffer.Size)
	if err != nil {
		return errors.Wrapf(err, "BLAS '%s' vertex input", as.Name)
	}
	indexBytes, err := b.BufferRead(as.IndexBuffer, 0, as.IndexBuffer.Size)
	if err != nil {
		return errors.Wrapf(err, "BLAS '%s' index input", as.Name)
	}

	stride := as.VertexBuffer.Stride
	if stride < 12 {
		return errors.Errorf("BLAS '%s' vertex stride %d cannot hold a position", as.Name, stride)
	}
	if uint64(as.VertexCount)*stride > uint64(len(vertexBytes)) || uint64(as.IndexCount)*4 > uint64(len(indexBytes)) {
		return errors.Errorf("BLAS '%s' counts exceed its input buffers", as.Name)
	}

	position := func(i uint32) mgl32.Vec3 {
		off := uint64(i) * stride
		return mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[off+8:])),
		}
	}

	triangleCount := as.IndexCount / 3
	triangles := make([]softTriangle, triangleCount)
	bounds := make([]mathx.Extents3D, triangleCount)
	total := mathx.EmptyExtents()
	for t := uint32(0); t < triangleCount; t++ {
		var idx [3]uint32
		for k := 0; k < 3; k++ {
			idx[k] = binary.LittleEndian.Uint32(indexBytes[(t*3+uint32(k))*4:])
			if idx[k] >= as.VertexCount {
				return errors.Errorf("BLAS '%s' index %d out of range (vertex count %d)", as.Name, idx[k], as.VertexCount)
			}
		}
		tri := softTriangle{position(idx[0]), position(idx[1]), position(idx[2])}
		triangles[t] = tri
		bounds[t] = mathx.EmptyExtents().Expand(tri.v0).Expand(tri.v1).Expand(tri.v2)
		total = total.Union(bounds[t])
	}

	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	ss.triangles = triangles
	ss.hierarchy = buildBVH(bounds)
	ss.bounds = total
	ss.built = true
	return nil
}

func (b *Backend) buildTop(ss *softStructure) error {
	as := ss.as
	data, err := b.BufferRead(as.InstanceBuffer, 0, uint64(as.InstanceCount)*metadata.RaytracingInstanceSize)
	if err != nil {
		return errors.Wrapf(err, "TLAS '%s' instance input", as.Name)
	}
	records, err := metadata.UnpackRaytracingInstances(data)
	if err != nil {
		return errors.Wrapf(err, "TLAS '%s'", as.Name)
	}

	instances := make([]softInstance, len(records))
	bounds := make([]mathx.Extents3D, len(records))
	total := mathx.EmptyExtents()
	for i, rec := range records {
		b.mutex.RLock()
		blas, ok := b.structures[rec.AccelerationStructure]
		b.mutex.RUnlock()
		if !ok || blas.as.Level != metadata.AccelerationStructureBottom {
			return errors.Wrapf(core.ErrInvalidResource, "TLAS '%s' instance %d references unknown BLAS address 0x%x", as.Name, i, rec.AccelerationStructure)
		}

		blas.mutex.RLock()
		built := blas.built
		blasBounds := blas.bounds
		blas.mutex.RUnlock()
		if !built {
			return errors.Wrapf(core.ErrNotFlushed, "TLAS '%s' instance %d references BLAS '%s' which was never built", as.Name, i, blas.as.Name)
		}

		instances[i] = softInstance{
			instance:  rec,
			inverse:   rec.Transform.Mat4().Inv(),
			structure: blas,
		}
		bounds[i] = blasBounds.Transform(rec.Transform)
		total = total.Union(bounds[i])
	}

	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	ss.instances = instances
	ss.hierarchy = buildBVH(bounds)
	ss.bounds = total
	ss.built = true
	return nil
}

func (b *Backend) AccelerationStructureDestroy(as *metadata.AccelerationStructure) {
	if _, err := structureInternal(as); err != nil {
		return
	}
	b.mutex.Lock()
	delete(b.structures, as.Address)
	b.mutex.Unlock()
	as.InternalData = nil
}

// IsBuilt reports whether the structure's build request has executed.
func (b *Backend) IsBuilt(as *metadata.AccelerationStructure) bool {
	ss, err := structureInternal(as)
	if err != nil {
		return false
	}
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.built
}

// Bounds returns the object space bounds of a built BLAS or the world bounds of a TLAS.
func (b *Backend) Bounds(as *metadata.AccelerationStructure) (mathx.Extents3D, error) {
	ss, err := structureInternal(as)
	if err != nil {
		return mathx.Extents3D{}, err
	}
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	if !ss.built {
		return mathx.Extents3D{}, errors.Wrapf(core.ErrNotFlushed, "%s '%s'", as.Level, as.Name)
	}
	return ss.bounds, nil
}
