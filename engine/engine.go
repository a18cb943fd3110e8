package engine

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/software"
	"github.com/spaghettifunk/prism/engine/scene"
	"github.com/spaghettifunk/prism/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently loading the scene
	EngineStageRunning
	// Scene is built and every upload flushed
	EngineStageReady
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

type Engine struct {
	mutex        sync.Mutex
	currentStage Stage
	config       *ApplicationConfig
	clock        *core.Clock

	events       *core.EventBus
	metrics      *core.LoadMetrics
	backend      *software.Backend
	renderer     *renderer.Renderer
	assetManager *assets.AssetManager
	jobSystem    *systems.JobSystem
	uploads      *systems.UploadSystem
	textures     *systems.TextureCache
	scene        *scene.Scene
}

func New(config *ApplicationConfig) (*Engine, error) {
	config.Normalize()
	if err := core.SetLogLevel(config.LogLevel); err != nil {
		core.LogWarn("unknown log level '%s', keeping %s", config.LogLevel, core.GetLogLevel())
	}

	rendererType, err := parseRendererType(config.Renderer)
	if err != nil {
		return nil, err
	}
	if rendererType != renderer.Software {
		return nil, errors.Errorf("renderer '%s' is not available in this build", config.Renderer)
	}

	js, err := systems.NewJobSystem(config.JobWorkers, config.JobQueueSize)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventBus()
	metrics := core.NewLoadMetrics()
	backend := software.New()
	r := renderer.New(backend)
	am := assets.NewAssetManager()
	uploads := systems.NewUploadSystem(backend, js, metrics, events)
	r.AttachUploader(uploads)
	textures := systems.NewTextureCache(&systems.TextureCacheConfig{MaxTextureCount: config.MaxTextureCount}, am, r, uploads, metrics, events)
	ctx := scene.NewLoadContext(r, uploads, textures, am, metrics, events)

	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       config,
		clock:        core.NewClock(),
		events:       events,
		metrics:      metrics,
		backend:      backend,
		renderer:     r,
		assetManager: am,
		jobSystem:    js,
		uploads:      uploads,
		textures:     textures,
		scene:        scene.NewScene(ctx),
	}, nil
}

func parseRendererType(name string) (renderer.RendererType, error) {
	switch strings.ToLower(name) {
	case "software", "":
		return renderer.Software, nil
	case "vulkan":
		return renderer.Vulkan, nil
	case "directx", "dx12":
		return renderer.DirectX, nil
	}
	return 0, errors.Errorf("unknown renderer '%s'", name)
}

func (e *Engine) Initialize() error {
	e.setStage(EngineStageInitializing)

	// register some events
	for _, code := range []core.SystemEventCode{
		core.EventCodeModelLoaded,
		core.EventCodeUploadsFlushed,
		core.EventCodeSceneBuilt,
		core.EventCodeTextureCacheCleared,
	} {
		e.events.Register(code, e, e.onEvent)
	}

	if err := e.renderer.Initialize(e.config.Name); err != nil {
		return err
	}
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}

	e.setStage(EngineStageInitialized)
	return nil
}

// Run loads every configured entity, flushes their uploads, builds the scene and
// flushes again. Any load failure aborts the run.
func (e *Engine) Run() error {
	if e.Stage() != EngineStageInitialized {
		return errors.Errorf("engine must be initialized before running (stage %d)", e.Stage())
	}
	e.setStage(EngineStageRunning)
	e.clock.Start()

	for i := range e.config.Entities {
		ec := &e.config.Entities[i]
		transform, err := ec.WorldTransform()
		if err != nil {
			return err
		}
		path := e.config.EntityPath(ec)
		if _, err := e.scene.PushEntity(transform, path); err != nil {
			core.LogError("failed to load entity '%s'", path)
			return err
		}
	}
	e.clock.Mark("load")

	if err := e.uploads.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush scene uploads")
	}
	e.clock.Mark("upload")
	if err := e.scene.Build(); err != nil {
		return err
	}
	if err := e.uploads.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush acceleration structure builds")
	}
	e.clock.Mark("build")

	e.clock.Stop()
	for _, lap := range e.clock.Laps() {
		core.LogDebug("%s: %s", lap.Label, lap.Duration)
	}
	e.setStage(EngineStageReady)
	core.LogInfo("scene ready in %s: %s", e.clock.Elapsed(), e.metrics)
	return nil
}

func (e *Engine) Shutdown() error {
	e.mutex.Lock()
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageShutdown {
		e.mutex.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.mutex.Unlock()

	// requests for resources about to be destroyed are pointless
	if err := e.uploads.Flush(); err != nil {
		core.LogWarn("pending uploads failed during shutdown: %s", err)
	}
	e.scene.Destroy()
	e.textures.Clear()
	if err := e.jobSystem.Shutdown(); err != nil {
		return err
	}
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	e.events.Shutdown()

	e.setStage(EngineStageShutdown)
	return nil
}

func (e *Engine) setStage(stage Stage) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.currentStage = stage
}

func (e *Engine) Stage() Stage {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.currentStage
}

func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

func (e *Engine) Backend() *software.Backend {
	return e.backend
}

func (e *Engine) Metrics() *core.LoadMetrics {
	return e.metrics
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	switch code {
	case core.EventCodeModelLoaded:
		core.LogDebug("event: model '%s' loaded (%d primitives, %d materials)", context.Data.C[0], context.Data.U32[0], context.Data.U32[1])
	case core.EventCodeUploadsFlushed:
		core.LogDebug("event: %d upload requests flushed", context.Data.U64[0])
	case core.EventCodeSceneBuilt:
		core.LogDebug("event: scene built with %d instances over %d entities", context.Data.U32[0], context.Data.U32[1])
	case core.EventCodeTextureCacheCleared:
		core.LogDebug("event: %d cached textures released", context.Data.U32[0])
	default:
		core.LogWarn("unhandled event code %d", code)
		return false
	}
	// let other listeners see it too
	return false
}
