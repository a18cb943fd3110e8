package engine_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/testbed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoEngine(t *testing.T) *engine.Engine {
	t.Helper()
	path, err := testbed.WriteDemo(t.TempDir())
	require.NoError(t, err)

	config, err := engine.LoadConfig(path)
	require.NoError(t, err)
	config.JobWorkers = 2

	e, err := engine.New(config)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func TestEngineRunDemo(t *testing.T) {
	e := demoEngine(t)
	assert.Equal(t, engine.EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run())
	assert.Equal(t, engine.EngineStageReady, e.Stage())

	s := e.Scene()
	require.Len(t, s.Entities(), 2)
	require.Len(t, s.Instances(), 4)
	require.NotNil(t, s.TLAS())

	m := e.Metrics()
	assert.Equal(t, int64(2), m.Models.Load())
	assert.Equal(t, int64(4), m.Primitives.Load())
	// floor and marker images are shared by both entities
	assert.Equal(t, int64(2), m.TextureDecodes.Load())
	assert.Equal(t, int64(2), m.TextureCacheHits.Load())

	b := e.Backend()
	hit, ok, err := b.TraceRay(s.TLAS(), mgl32.Vec3{0.3, 5, 0.3}, mgl32.Vec3{0, -1, 0}, 100, 0xff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0), hit.InstanceID)
	assert.InDelta(t, 5, hit.T, 1e-4)
	assert.True(t, hit.Opaque)

	hit, ok, err = b.TraceRay(s.TLAS(), mgl32.Vec3{4.3, 5, 0.3}, mgl32.Vec3{0, -1, 0}, 100, 0xff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), hit.InstanceID)

	// the marker stands upright above the first floor
	hit, ok, err = b.TraceRay(s.TLAS(), mgl32.Vec3{0, 1, 5}, mgl32.Vec3{0, 0, -1}, 100, 0xff)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), hit.InstanceID)
	assert.False(t, hit.Opaque)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, engine.EngineStageShutdown, e.Stage())
	assert.Equal(t, 0, b.DescriptorCount())
	// second call is a no-op
	require.NoError(t, e.Shutdown())
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, err := engine.New(&engine.ApplicationConfig{JobWorkers: 1})
	require.NoError(t, err)
	assert.Error(t, e.Run())
	require.NoError(t, e.Shutdown())
}

func TestEngineRunMissingScene(t *testing.T) {
	config := &engine.ApplicationConfig{
		JobWorkers:    1,
		AssetBasePath: t.TempDir(),
		Entities:      []engine.EntityConfig{{Path: "nope.glb"}},
	}
	e, err := engine.New(config)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Error(t, e.Run())
	require.NoError(t, e.Shutdown())
}

func TestEngineRejectsUnknownRenderer(t *testing.T) {
	_, err := engine.New(&engine.ApplicationConfig{Renderer: "opengl"})
	assert.ErrorContains(t, err, "unknown renderer")

	_, err = engine.New(&engine.ApplicationConfig{Renderer: "vulkan"})
	assert.ErrorContains(t, err, "not available")
}

func TestEngineRenderPreview(t *testing.T) {
	e := demoEngine(t)
	t.Cleanup(func() { e.Shutdown() })

	_, err := e.PreviewCamera()
	assert.Error(t, err, "no TLAS before Run")

	require.NoError(t, e.Run())
	cam, err := e.PreviewCamera()
	require.NoError(t, err)

	img, err := e.RenderPreview(cam, 32, 18)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 18, img.Bounds().Dy())

	covered := 0
	for y := 0; y < 18; y++ {
		for x := 0; x < 32; x++ {
			c := img.NRGBAAt(x, y)
			if [3]uint8{c.R, c.G, c.B} != [3]uint8{24, 26, 32} {
				covered++
			}
		}
	}
	assert.Greater(t, covered, 0, "both floors are in view")
	// the top row only sees the sky
	corner := img.NRGBAAt(0, 0)
	assert.Equal(t, [3]uint8{24, 26, 32}, [3]uint8{corner.R, corner.G, corner.B})

	_, err = e.RenderPreview(cam, 0, 10)
	assert.Error(t, err)
}
