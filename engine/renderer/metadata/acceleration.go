package metadata

type AccelerationStructureLevel int

const (
	AccelerationStructureBottom AccelerationStructureLevel = iota
	AccelerationStructureTop
)

func (l AccelerationStructureLevel) String() string {
	if l == AccelerationStructureTop {
		return "TLAS"
	}
	return "BLAS"
}

/**
 * @brief A ray-tracing acceleration structure. Bottom level structures reference
 * triangle geometry; top level structures reference a buffer of RaytracingInstance records.
 * Inputs are only read when the build executes, i.e. on upload flush.
 */
type AccelerationStructure struct {
	Name  string
	Level AccelerationStructureLevel

	// bottom level inputs
	VertexBuffer *Buffer
	IndexBuffer  *Buffer
	VertexCount  uint32
	IndexCount   uint32

	// top level inputs
	InstanceBuffer *Buffer
	InstanceCount  uint32

	/** @brief GPU virtual address referenced by instance records. Assigned at creation. */
	Address uint64
	/** @brief A pointer to internal, render API-specific data. */
	InternalData interface{}
}
