package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	mathx "github.com/spaghettifunk/prism/engine/math"
)

/** @brief Ray-tracing instance flags. Values match the D3D12 and Vulkan encodings. */
type InstanceFlags uint8

const (
	InstanceFlagNone                     InstanceFlags = 0x0
	InstanceFlagTriangleCullDisable      InstanceFlags = 0x1
	InstanceFlagTriangleFrontCounterwise InstanceFlags = 0x2
	/** @brief Every hit is treated as opaque; any-hit shaders never run. */
	InstanceFlagForceOpaque InstanceFlags = 0x4
	/** @brief Every hit is treated as non-opaque; used for alpha-tested materials. */
	InstanceFlagForceNonOpaque InstanceFlags = 0x8
)

/** @brief Instance IDs are packed into 24 bits. */
const MaxInstanceID uint32 = 1<<24 - 1

/** @brief The size in bytes of a packed RaytracingInstance. */
const RaytracingInstanceSize = 64

/**
 * @brief One entry of a top-level acceleration structure.
 */
type RaytracingInstance struct {
	Transform             mathx.Transform3x4
	InstanceID            uint32
	InstanceMask          uint8
	Flags                 InstanceFlags
	AccelerationStructure uint64
}

/**
 * @brief Packs instances into the 64-byte hardware layout:
 * 12 floats of transform, instanceID:24|mask:8, hitGroupOffset:24|flags:8, BLAS address.
 */
func PackRaytracingInstances(instances []RaytracingInstance) []byte {
	out := make([]byte, len(instances)*RaytracingInstanceSize)
	for i, inst := range instances {
		b := out[i*RaytracingInstanceSize:]
		off := 0
		for row := 0; row < 3; row++ {
			for col := 0; col < 4; col++ {
				binary.LittleEndian.PutUint32(b[off:], math.Float32bits(inst.Transform[row][col]))
				off += 4
			}
		}
		binary.LittleEndian.PutUint32(b[48:], (inst.InstanceID&MaxInstanceID)|uint32(inst.InstanceMask)<<24)
		binary.LittleEndian.PutUint32(b[52:], uint32(inst.Flags)<<24)
		binary.LittleEndian.PutUint64(b[56:], inst.AccelerationStructure)
	}
	return out
}

func UnpackRaytracingInstances(data []byte) ([]RaytracingInstance, error) {
	if len(data)%RaytracingInstanceSize != 0 {
		return nil, fmt.Errorf("instance data size %d is not a multiple of %d", len(data), RaytracingInstanceSize)
	}
	out := make([]RaytracingInstance, len(data)/RaytracingInstanceSize)
	for i := range out {
		b := data[i*RaytracingInstanceSize:]
		off := 0
		for row := 0; row < 3; row++ {
			for col := 0; col < 4; col++ {
				out[i].Transform[row][col] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
				off += 4
			}
		}
		idMask := binary.LittleEndian.Uint32(b[48:])
		out[i].InstanceID = idMask & MaxInstanceID
		out[i].InstanceMask = uint8(idMask >> 24)
		out[i].Flags = InstanceFlags(binary.LittleEndian.Uint32(b[52:]) >> 24)
		out[i].AccelerationStructure = binary.LittleEndian.Uint64(b[56:])
	}
	return out, nil
}

/**
 * @brief Bindless description of one primitive, indexed by instance ID in shaders.
 */
type InstanceRecord struct {
	VertexBuffer   int32
	IndexBuffer    int32
	MaterialIndex  int32
	MaterialBuffer int32
}

/** @brief The size in bytes of a packed InstanceRecord. */
const InstanceRecordSize = 16

/**
 * @brief Bindless description of one material. Optional maps hold InvalidBindless.
 */
type MaterialRecord struct {
	AlbedoIndex int32
	NormalIndex int32
	PBRIndex    int32
	Pad         int32
}

/** @brief The size in bytes of a packed MaterialRecord. */
const MaterialRecordSize = 16

// EncodeLittleEndian packs fixed-size data (structs, slices of structs) the way the GPU reads it.
func EncodeLittleEndian(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeLittleEndian is the inverse of EncodeLittleEndian; out must be a pointer or a sized slice.
func DecodeLittleEndian(data []byte, out interface{}) error {
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, out)
}
