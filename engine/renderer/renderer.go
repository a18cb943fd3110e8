package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type RendererType uint8

const (
	Software RendererType = iota
	Vulkan
	DirectX
)

// Renderer is the factory side of the hardware interface: every GPU object the scene
// core needs is created and destroyed through it.
type Renderer struct {
	backend  RendererBackend
	uploader Uploader
}

func New(backend RendererBackend) *Renderer {
	return &Renderer{
		backend: backend,
	}
}

// AttachUploader makes every destroy call drop the requests still queued for the
// destroyed resource, so a later flush never touches it.
func (r *Renderer) AttachUploader(u Uploader) {
	r.uploader = u
}

func (r *Renderer) cancelPending(resource interface{}) {
	if r.uploader != nil {
		r.uploader.CancelPending(resource)
	}
}

func (r *Renderer) Initialize(appName string) error {
	if err := r.backend.Initialize(appName); err != nil {
		core.LogError("failed to initialize renderer backend: %s", err)
		return err
	}
	return nil
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

func (r *Renderer) Backend() RendererBackend {
	return r.backend
}

// CreateBuffer allocates a buffer of size bytes made of stride-sized elements.
func (r *Renderer) CreateBuffer(size, stride uint64, bufferType metadata.BufferType, name string) (*metadata.Buffer, error) {
	buffer := &metadata.Buffer{
		Name:   name,
		Size:   size,
		Stride: stride,
		Type:   bufferType,
		SRV:    metadata.InvalidBindless,
	}
	if err := r.backend.BufferCreate(buffer); err != nil {
		return nil, fmt.Errorf("failed to create buffer '%s': %w", name, err)
	}
	return buffer, nil
}

// CreateStorageBuffer creates a buffer and gives it a bindless shader resource view.
func (r *Renderer) CreateStorageBuffer(size, stride uint64, name string) (*metadata.Buffer, error) {
	buffer, err := r.CreateBuffer(size, stride, metadata.BufferTypeStorage, name)
	if err != nil {
		return nil, err
	}
	if err := r.backend.BufferBuildSRV(buffer); err != nil {
		r.backend.BufferDestroy(buffer)
		return nil, fmt.Errorf("failed to build SRV for buffer '%s': %w", name, err)
	}
	return buffer, nil
}

func (r *Renderer) ReadBuffer(buffer *metadata.Buffer) ([]byte, error) {
	return r.backend.BufferRead(buffer, 0, buffer.Size)
}

func (r *Renderer) DestroyBuffer(buffer *metadata.Buffer) {
	if buffer != nil {
		r.cancelPending(buffer)
		r.backend.BufferDestroy(buffer)
	}
}

func (r *Renderer) CreateTexture(desc metadata.TextureDesc) (*metadata.Texture, error) {
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.Levels == 0 {
		desc.Levels = 1
	}
	texture := &metadata.Texture{Desc: desc}
	if err := r.backend.TextureCreate(texture); err != nil {
		return nil, fmt.Errorf("failed to create texture '%s': %w", desc.Name, err)
	}
	return texture, nil
}

func (r *Renderer) DestroyTexture(texture *metadata.Texture) {
	if texture != nil {
		r.cancelPending(texture)
		r.backend.TextureDestroy(texture)
	}
}

func (r *Renderer) CreateView(texture *metadata.Texture, viewType metadata.ViewType) (*metadata.View, error) {
	view := &metadata.View{
		Texture:  texture,
		Type:     viewType,
		Bindless: metadata.InvalidBindless,
	}
	if err := r.backend.ViewCreate(view); err != nil {
		return nil, fmt.Errorf("failed to create view for texture '%s': %w", texture.Name(), err)
	}
	return view, nil
}

func (r *Renderer) DestroyView(view *metadata.View) {
	if view != nil {
		r.backend.ViewDestroy(view)
	}
}

// CreateBLAS creates a bottom level structure over one primitive's triangles. The
// buffers are not read until the build runs.
func (r *Renderer) CreateBLAS(vertexBuffer, indexBuffer *metadata.Buffer, vertexCount, indexCount uint32, name string) (*metadata.AccelerationStructure, error) {
	as := &metadata.AccelerationStructure{
		Name:         name,
		Level:        metadata.AccelerationStructureBottom,
		VertexBuffer: vertexBuffer,
		IndexBuffer:  indexBuffer,
		VertexCount:  vertexCount,
		IndexCount:   indexCount,
	}
	if err := r.backend.AccelerationStructureCreate(as); err != nil {
		return nil, fmt.Errorf("failed to create BLAS '%s': %w", name, err)
	}
	return as, nil
}

// CreateTLAS creates a top level structure over instanceCount packed RaytracingInstance records.
func (r *Renderer) CreateTLAS(instanceBuffer *metadata.Buffer, instanceCount uint32, name string) (*metadata.AccelerationStructure, error) {
	as := &metadata.AccelerationStructure{
		Name:           name,
		Level:          metadata.AccelerationStructureTop,
		InstanceBuffer: instanceBuffer,
		InstanceCount:  instanceCount,
	}
	if err := r.backend.AccelerationStructureCreate(as); err != nil {
		return nil, fmt.Errorf("failed to create TLAS '%s': %w", name, err)
	}
	return as, nil
}

func (r *Renderer) DestroyAccelerationStructure(as *metadata.AccelerationStructure) {
	if as != nil {
		r.cancelPending(as)
		r.backend.AccelerationStructureDestroy(as)
	}
}
