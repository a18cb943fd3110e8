package scene

import (
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/systems"
)

// LoadContext carries the collaborators shared by every load of a session. It is
// created once, passed to each load and cleared at the end of the session through the
// texture cache.
type LoadContext struct {
	Renderer *renderer.Renderer
	Uploader renderer.Uploader
	Textures *systems.TextureCache
	Assets   *assets.AssetManager
	Metrics  *core.LoadMetrics
	Events   *core.EventBus
}

// NewLoadContext bundles the collaborators. events may be nil; a nil metrics gets a
// private instance.
func NewLoadContext(r *renderer.Renderer, uploader renderer.Uploader, textures *systems.TextureCache, am *assets.AssetManager, metrics *core.LoadMetrics, events *core.EventBus) *LoadContext {
	if metrics == nil {
		metrics = core.NewLoadMetrics()
	}
	return &LoadContext{
		Renderer: r,
		Uploader: uploader,
		Textures: textures,
		Assets:   am,
		Metrics:  metrics,
		Events:   events,
	}
}

func (ctx *LoadContext) fire(code core.SystemEventCode, sender interface{}, data core.EventContext) {
	if ctx.Events != nil {
		ctx.Events.Fire(code, sender, data)
	}
}
