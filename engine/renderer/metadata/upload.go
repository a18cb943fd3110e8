package metadata

/** @brief The kind of work an UploadRequest carries. */
type UploadRequestType int

const (
	UploadRequestBuffer UploadRequestType = iota
	UploadRequestTexture
	UploadRequestAccelerationStructure
)

func (t UploadRequestType) String() string {
	switch t {
	case UploadRequestBuffer:
		return "buffer"
	case UploadRequestTexture:
		return "texture"
	case UploadRequestAccelerationStructure:
		return "acceleration structure"
	}
	return "unknown"
}

/**
 * @brief A pending upload or build. Data is owned by the request; the enqueuing
 * caller may reuse its slice as soon as the enqueue call returns.
 */
type UploadRequest struct {
	Type      UploadRequestType
	Buffer    *Buffer
	Texture   *Texture
	Structure *AccelerationStructure
	Data      []byte
}
