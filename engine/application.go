package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	mathx "github.com/spaghettifunk/prism/engine/math"
)

type ApplicationConfig struct {
	// The application name reported to the renderer backend.
	Name     string `toml:"name" yaml:"name"`
	LogLevel string `toml:"log_level" yaml:"log_level"`
	// Renderer backend, only "software" is available.
	Renderer string `toml:"renderer" yaml:"renderer"`
	// Number of upload workers and the depth of their queue.
	JobWorkers   int `toml:"job_workers" yaml:"job_workers"`
	JobQueueSize int `toml:"job_queue_size" yaml:"job_queue_size"`
	// 0 leaves the texture cache unbounded.
	MaxTextureCount uint32 `toml:"max_texture_count" yaml:"max_texture_count"`
	// Relative entity paths are resolved against this directory.
	AssetBasePath string         `toml:"asset_base_path" yaml:"asset_base_path"`
	Entities      []EntityConfig `toml:"entities" yaml:"entities"`
}

// EntityConfig places one scene file in the world. Matrix, when present, wins over the
// translation, rotation and scale triple.
type EntityConfig struct {
	Path string `toml:"path" yaml:"path"`
	// x, y, z
	Translation []float64 `toml:"translation,omitempty" yaml:"translation,omitempty"`
	// quaternion x, y, z, w
	Rotation []float64 `toml:"rotation,omitempty" yaml:"rotation,omitempty"`
	Scale    []float64 `toml:"scale,omitempty" yaml:"scale,omitempty"`
	// column-major 4x4
	Matrix []float64 `toml:"matrix,omitempty" yaml:"matrix,omitempty"`
}

// WorldTransform turns the entity placement into a matrix.
func (ec *EntityConfig) WorldTransform() (mgl32.Mat4, error) {
	if len(ec.Matrix) > 0 {
		if len(ec.Matrix) != 16 {
			return mgl32.Mat4{}, errors.Errorf("entity '%s': matrix needs 16 values, got %d", ec.Path, len(ec.Matrix))
		}
		var m [16]float64
		copy(m[:], ec.Matrix)
		return mathx.Mat4FromColumnMajor(m), nil
	}

	translation := mgl32.Vec3{}
	if len(ec.Translation) > 0 {
		if len(ec.Translation) != 3 {
			return mgl32.Mat4{}, errors.Errorf("entity '%s': translation needs 3 values, got %d", ec.Path, len(ec.Translation))
		}
		translation = mgl32.Vec3{float32(ec.Translation[0]), float32(ec.Translation[1]), float32(ec.Translation[2])}
	}

	rotation := mgl32.QuatIdent()
	if len(ec.Rotation) > 0 {
		if len(ec.Rotation) != 4 {
			return mgl32.Mat4{}, errors.Errorf("entity '%s': rotation needs 4 values, got %d", ec.Path, len(ec.Rotation))
		}
		rotation = mgl32.Quat{
			W: float32(ec.Rotation[3]),
			V: mgl32.Vec3{float32(ec.Rotation[0]), float32(ec.Rotation[1]), float32(ec.Rotation[2])},
		}.Normalize()
	}

	scale := mgl32.Vec3{1, 1, 1}
	if len(ec.Scale) > 0 {
		if len(ec.Scale) != 3 {
			return mgl32.Mat4{}, errors.Errorf("entity '%s': scale needs 3 values, got %d", ec.Path, len(ec.Scale))
		}
		scale = mgl32.Vec3{float32(ec.Scale[0]), float32(ec.Scale[1]), float32(ec.Scale[2])}
	}

	return mathx.ComposeTRS(translation, rotation, scale), nil
}
