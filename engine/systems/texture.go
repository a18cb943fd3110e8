package systems

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const DefaultTextureName = "default"

type TextureCacheConfig struct {
	/** @brief The maximum number of textures that can be cached at once. 0 means unbounded. */
	MaxTextureCount uint32
}

// CachedTexture is the handle handed out by the cache. The same pointer is returned for
// every request of the same key until the cache is cleared.
type CachedTexture struct {
	Key     string
	Texture *metadata.Texture
	View    *metadata.View
	// HasTransparency is true when any texel has alpha below 255.
	HasTransparency bool
}

// Bindless returns the shader-visible index of the texture view.
func (ct *CachedTexture) Bindless() int32 {
	if ct == nil {
		return metadata.InvalidBindless
	}
	return ct.View.BindlessOrInvalid()
}

// TextureCache memoizes GPU textures by path: the first request decodes the image,
// creates the texture and its view and enqueues the upload; later requests return the
// cached handle. Entries live until Clear.
type TextureCache struct {
	Config *TextureCacheConfig

	mutex    sync.Mutex
	textures map[string]*CachedTexture
	fallback *CachedTexture

	// sub systems
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	uploader     renderer.Uploader
	metrics      *core.LoadMetrics
	events       *core.EventBus
}

// NewTextureCache creates an empty cache. metrics and events may be nil.
func NewTextureCache(config *TextureCacheConfig, am *assets.AssetManager, r *renderer.Renderer, uploader renderer.Uploader, metrics *core.LoadMetrics, events *core.EventBus) *TextureCache {
	if config == nil {
		config = &TextureCacheConfig{}
	}
	return &TextureCache{
		Config:       config,
		textures:     make(map[string]*CachedTexture),
		assetManager: am,
		renderer:     r,
		uploader:     uploader,
		metrics:      metrics,
		events:       events,
	}
}

// Get returns the texture for an image file, decoding and uploading it on first use.
func (tc *TextureCache) Get(path string) (*CachedTexture, error) {
	return tc.lookupOrInsert(path, func() (*metadata.Resource, error) {
		return tc.assetManager.LoadAsset(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: false})
	})
}

// GetEncoded is Get for images that have no file of their own. key must be unique per
// image, data holds the encoded (PNG, JPEG, ...) bytes.
func (tc *TextureCache) GetEncoded(key string, data []byte) (*CachedTexture, error) {
	return tc.lookupOrInsert(key, func() (*metadata.Resource, error) {
		return tc.assetManager.LoadAssetFromMemory(key, data, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: false})
	})
}

func (tc *TextureCache) lookupOrInsert(key string, decode func() (*metadata.Resource, error)) (*CachedTexture, error) {
	// held across the decode so two loads of the same key cannot both create a texture
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if ct, ok := tc.textures[key]; ok {
		if tc.metrics != nil {
			tc.metrics.TextureCacheHits.Add(1)
		}
		return ct, nil
	}

	if tc.Config.MaxTextureCount > 0 && uint32(len(tc.textures)) >= tc.Config.MaxTextureCount {
		return nil, errors.Errorf("texture cache is full (%d textures), cannot load '%s'", tc.Config.MaxTextureCount, key)
	}

	res, err := decode()
	if err != nil {
		core.LogError("failed to load image resource for texture '%s'", key)
		return nil, err
	}
	img, ok := res.Data.(*metadata.ImageResourceData)
	if !ok {
		return nil, errors.Wrapf(core.ErrTextureDecode, "resource '%s' is not an image", key)
	}
	if tc.metrics != nil {
		tc.metrics.TextureDecodes.Add(1)
	}

	ct, err := tc.create(key, img.Width, img.Height, img.Pixels)
	if err != nil {
		return nil, err
	}
	ct.HasTransparency = img.HasTransparency
	tc.textures[key] = ct

	core.LogDebug("cached texture '%s' (%dx%d) with bindless index %d", key, img.Width, img.Height, ct.Bindless())
	return ct, nil
}

func (tc *TextureCache) create(name string, width, height uint32, pixels []uint8) (*CachedTexture, error) {
	texture, err := tc.renderer.CreateTexture(metadata.TextureDesc{
		Name:   name,
		Width:  width,
		Height: height,
		Format: metadata.TextureFormatRGBA8SRGB,
		Usage:  metadata.TextureUsageShaderResource,
	})
	if err != nil {
		return nil, err
	}
	view, err := tc.renderer.CreateView(texture, metadata.ViewTypeShaderResource)
	if err != nil {
		tc.renderer.DestroyTexture(texture)
		return nil, err
	}
	tc.uploader.EnqueueTextureUpload(pixels, texture)

	return &CachedTexture{
		Key:     name,
		Texture: texture,
		View:    view,
	}, nil
}

// Default returns the 1x1 opaque black texture used when a material has no albedo map.
func (tc *TextureCache) Default() (*CachedTexture, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.fallback != nil {
		return tc.fallback, nil
	}
	ct, err := tc.create(DefaultTextureName, 1, 1, []uint8{0, 0, 0, 255})
	if err != nil {
		return nil, fmt.Errorf("failed to create default texture: %w", err)
	}
	tc.fallback = ct
	return ct, nil
}

// Len is the number of cached path entries, not counting the default texture.
func (tc *TextureCache) Len() int {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return len(tc.textures)
}

// Clear destroys every cached texture and view, the default one included, and returns
// how many entries were released. Handles obtained before the call must not be used.
func (tc *TextureCache) Clear() int {
	tc.mutex.Lock()
	released := 0
	for key, ct := range tc.textures {
		tc.destroy(ct)
		delete(tc.textures, key)
		released++
	}
	if tc.fallback != nil {
		tc.destroy(tc.fallback)
		tc.fallback = nil
	}
	tc.mutex.Unlock()

	core.LogDebug("texture cache cleared, %d textures released", released)
	if tc.events != nil {
		ctx := core.EventContext{}
		ctx.Data.U32[0] = uint32(released)
		tc.events.Fire(core.EventCodeTextureCacheCleared, tc, ctx)
	}
	return released
}

func (tc *TextureCache) destroy(ct *CachedTexture) {
	tc.renderer.DestroyView(ct.View)
	tc.renderer.DestroyTexture(ct.Texture)
}
