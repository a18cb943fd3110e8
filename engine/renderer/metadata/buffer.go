package metadata

type BufferType int

const (
	BufferTypeVertex BufferType = iota
	BufferTypeIndex
	BufferTypeConstant
	BufferTypeStorage
)

/**
 * @brief A linear block of GPU memory.
 */
type Buffer struct {
	Name   string
	Size   uint64
	Stride uint64
	Type   BufferType
	/** @brief Bindless index of the shader resource view, or InvalidBindless until BuildSRV. */
	SRV int32
	/** @brief GPU virtual address. Stable for the lifetime of the buffer. */
	Address uint64
	/** @brief A pointer to internal, render API-specific data. */
	InternalData interface{}
}

/** @brief The number of Stride-sized elements the buffer holds. */
func (b *Buffer) ElementCount() uint64 {
	if b.Stride == 0 {
		return 0
	}
	return b.Size / b.Stride
}

// GetAligned rounds operand up to the next multiple of granularity, a power of two.
func GetAligned(operand, granularity uint64) uint64 {
	return (operand + (granularity - 1)) &^ (granularity - 1)
}
