package scene

import (
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Registry flattens the primitives of every pushed model into one bindless instance
// table. A primitive's instance ID is its position in that table.
type Registry struct {
	ctx     *LoadContext
	records []metadata.InstanceRecord
	buffer  *metadata.Buffer
	built   bool
	// largest assignable instance ID
	maxID uint32
}

// NewRegistry returns an empty registry whose IDs fit the 24 bit instance ID field.
func NewRegistry(ctx *LoadContext) *Registry {
	return &Registry{ctx: ctx, maxID: metadata.MaxInstanceID}
}

// PushModel appends one record per primitive in traversal order and stamps each
// primitive's instance ID with the running count. A model that would overflow the
// ID range is rejected whole and leaves the registry untouched.
func (r *Registry) PushModel(m *Model) error {
	if next := uint64(len(r.records)) + uint64(m.PrimitiveCount()); next > uint64(r.maxID)+1 {
		return errors.Errorf("model '%s' needs instance IDs up to %d, the limit is %d", m.Path, next-1, r.maxID)
	}
	if r.built {
		core.LogWarn("model '%s' pushed after the instance buffer was built; the buffer is stale until the next Build", m.Path)
	}

	materialBuffer := metadata.InvalidBindless
	if m.MaterialBuffer != nil {
		materialBuffer = m.MaterialBuffer.SRV
	}

	m.Traverse(func(_ int, node *Node) {
		for _, p := range node.Primitives {
			p.Instance.InstanceID = uint32(len(r.records))
			r.records = append(r.records, metadata.InstanceRecord{
				VertexBuffer:   p.VertexBuffer.SRV,
				IndexBuffer:    p.IndexBuffer.SRV,
				MaterialIndex:  p.MaterialIndex,
				MaterialBuffer: materialBuffer,
			})
		}
	})
	return nil
}

// Build packs every record into a storage buffer and enqueues its upload. A second
// Build replaces the previous buffer.
func (r *Registry) Build() error {
	if r.buffer != nil {
		r.ctx.Renderer.DestroyBuffer(r.buffer)
		r.buffer = nil
	}
	r.built = true

	if len(r.records) == 0 {
		core.LogWarn("instance registry is empty, no instance buffer created")
		return nil
	}

	data, err := metadata.EncodeLittleEndian(r.records)
	if err != nil {
		return errors.WithStack(err)
	}
	r.buffer, err = r.ctx.Renderer.CreateStorageBuffer(uint64(len(data)), metadata.InstanceRecordSize, "instance records")
	if err != nil {
		return err
	}
	r.ctx.Uploader.EnqueueBufferUpload(data, r.buffer)
	core.LogDebug("instance registry built with %d records", len(r.records))
	return nil
}

// Count is the number of records pushed so far.
func (r *Registry) Count() int {
	return len(r.records)
}

// Records returns a copy of the flattened table.
func (r *Registry) Records() []metadata.InstanceRecord {
	out := make([]metadata.InstanceRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Buffer is the instance buffer, nil before Build or when the registry is empty.
func (r *Registry) Buffer() *metadata.Buffer {
	return r.buffer
}

// Destroy frees the instance buffer and forgets every record.
func (r *Registry) Destroy() {
	r.ctx.Renderer.DestroyBuffer(r.buffer)
	r.buffer = nil
	r.records = nil
	r.built = false
}
