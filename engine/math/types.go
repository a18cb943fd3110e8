package math

import "github.com/go-gl/mathgl/mgl32"

/**
 * @brief Represents a single vertex as laid out in every primitive vertex buffer.
 */
type Vertex struct {
	/** @brief The position of the vertex */
	Position mgl32.Vec3
	/** @brief The normal of the vertex. */
	Normal mgl32.Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord mgl32.Vec2
	/** @brief The tangent of the vertex. */
	Tangent mgl32.Vec3
	/** @brief The bitangent of the vertex. */
	Bitangent mgl32.Vec3
}

/** @brief The size in bytes of a packed Vertex. */
const VertexSize uint64 = 14 * 4

/**
 * @brief An affine transform stored as three rows of four floats, the layout
 * ray-tracing instance descriptors expect. Column 3 holds the translation.
 */
type Transform3x4 [3][4]float32

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min mgl32.Vec3
	/** @brief The maximum extents of the object. */
	Max mgl32.Vec3
}
