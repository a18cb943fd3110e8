package metadata

import "image"

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Binary resource type. */
	ResourceTypeBinary ResourceType = iota
	/** @brief Image resource type. */
	ResourceTypeImage
	/** @brief Scene resource type (a parsed glTF document). */
	ResourceTypeScene
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeScene:
		return "scene"
	}
	return "custom"
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/**
 * @brief Decoded image pixels, always expanded to RGBA8.
 */
type ImageResourceData struct {
	Width  uint32
	Height uint32
	/** @brief Tightly packed RGBA8 rows, top row first. */
	Pixels []uint8
	/** @brief True when any pixel has alpha below 255. */
	HasTransparency bool
	Source          image.Image
}

/**
 * @brief Parameters understood by the image loader.
 */
type ImageResourceParams struct {
	/** @brief Flip rows so the first row is the bottom of the image. */
	FlipY bool
}
