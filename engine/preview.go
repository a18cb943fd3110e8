package engine

import (
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const previewMaxDistance = 1e4

var previewBackground = color.NRGBA{R: 24, G: 26, B: 32, A: 255}

// PreviewCamera frames the whole scene from the front and slightly above.
func (e *Engine) PreviewCamera() (*components.Camera, error) {
	tlas := e.scene.TLAS()
	if tlas == nil {
		return nil, errors.New("scene has no top level acceleration structure")
	}
	bounds, err := e.backend.Bounds(tlas)
	if err != nil {
		return nil, err
	}
	center := bounds.Center()
	radius := max(bounds.Max.Sub(bounds.Min).Len()/2, 1)

	cam := components.NewCamera()
	cam.SetPosition(center.Add(mgl32.Vec3{0, radius * 0.75, radius * 2}))
	cam.LookAt(center)
	return cam, nil
}

// RenderPreview traces one primary ray per pixel against the scene's top level
// structure. Hits are colored by instance ID and darkened with distance; non-opaque
// instances are drawn half transparent over the background. Rows are traced on the job
// system.
func (e *Engine) RenderPreview(cam *components.Camera, width, height int) (*image.NRGBA, error) {
	if e.Stage() != EngineStageReady {
		return nil, errors.Errorf("scene is not ready for tracing (stage %d)", e.Stage())
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid preview size %dx%d", width, height)
	}
	tlas := e.scene.TLAS()
	if tlas == nil {
		return nil, errors.New("scene has no top level acceleration structure")
	}
	// the camera matrix is rebuilt lazily, not safe to do from several workers
	cam.World()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		firstErr error
	)
	wg.Add(height)
	for y := 0; y < height; y++ {
		e.jobSystem.Submit(metadata.JobTask{
			JobType:     metadata.JobTypeGeneral,
			Priority:    metadata.JobPriorityNormal,
			InputParams: y,
			OnStart: func(params interface{}) error {
				row := params.(int)
				for x := 0; x < width; x++ {
					origin, dir := cam.Ray(x, row, width, height)
					hit, ok, err := e.backend.TraceRay(tlas, origin, dir, previewMaxDistance, 0xff)
					if err != nil {
						return err
					}
					if !ok {
						img.SetNRGBA(x, row, previewBackground)
						continue
					}
					img.SetNRGBA(x, row, shadeHit(hit.InstanceID, hit.T, hit.Opaque))
				}
				return nil
			},
			OnFailure: func(params interface{}, err error) {
				errMutex.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "failed to trace preview row %d", params.(int))
				}
				errMutex.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return img, nil
}

func shadeHit(instanceID uint32, t float32, opaque bool) color.NRGBA {
	// golden angle spreads neighbouring IDs apart
	hue := float64(instanceID) * 137.508
	hue -= float64(int(hue/360)) * 360
	value := 1 / (1 + 0.05*float64(t))
	c := colorful.Hsv(hue, 0.6, max(value, 0.2))
	if !opaque {
		bg := colorful.Color{
			R: float64(previewBackground.R) / 255,
			G: float64(previewBackground.G) / 255,
			B: float64(previewBackground.B) / 255,
		}
		c = c.BlendRgb(bg, 0.5)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
