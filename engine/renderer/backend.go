package renderer

import "github.com/spaghettifunk/prism/engine/renderer/metadata"

// RendererBackend is the boundary to the rendering hardware interface. Implementations
// own descriptor allocation and memory; the scene core only talks to this interface.
type RendererBackend interface {
	Initialize(appName string) error
	Shutdown() error

	BufferCreate(buffer *metadata.Buffer) error
	BufferBuildSRV(buffer *metadata.Buffer) error
	BufferWrite(buffer *metadata.Buffer, offset uint64, data []byte) error
	BufferRead(buffer *metadata.Buffer, offset, size uint64) ([]byte, error)
	BufferDestroy(buffer *metadata.Buffer)

	TextureCreate(texture *metadata.Texture) error
	TextureWriteData(texture *metadata.Texture, pixels []uint8) error
	TextureDestroy(texture *metadata.Texture)

	ViewCreate(view *metadata.View) error
	ViewDestroy(view *metadata.View)

	AccelerationStructureCreate(as *metadata.AccelerationStructure) error
	AccelerationStructureBuild(as *metadata.AccelerationStructure) error
	AccelerationStructureDestroy(as *metadata.AccelerationStructure)
}

// Uploader is the asynchronous upload facility. Enqueue calls return before the work
// happens; nothing created through the Renderer may be read until Flush returned.
type Uploader interface {
	EnqueueBufferUpload(data []byte, buffer *metadata.Buffer)
	EnqueueTextureUpload(pixels []uint8, texture *metadata.Texture)
	EnqueueAccelerationStructureBuild(as *metadata.AccelerationStructure)
	// CancelPending drops queued requests targeting any of the given buffers, textures
	// or acceleration structures and returns how many were dropped.
	CancelPending(resources ...interface{}) int
	Flush() error
}
