package systems

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	if path != "" {
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	}
	return buf.Bytes()
}

func newTextureCache(t *testing.T, f *uploadFixture, config *TextureCacheConfig) *TextureCache {
	t.Helper()
	am := assets.NewAssetManager()
	require.NoError(t, am.Initialize())
	return NewTextureCache(config, am, f.renderer, f.uploads, f.metrics, f.events)
}

func TestTextureCacheMemoizes(t *testing.T) {
	f := newUploadFixture(t)
	tc := newTextureCache(t, f, nil)
	path := filepath.Join(t.TempDir(), "albedo.png")
	writePNG(t, path, color.NRGBA{R: 200, A: 255})

	first, err := tc.Get(path)
	require.NoError(t, err)
	second, err := tc.Get(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), f.uploads.Stats().TextureUploads)
	assert.Equal(t, int64(1), f.metrics.TextureDecodes.Load())
	assert.Equal(t, int64(1), f.metrics.TextureCacheHits.Load())
	assert.Equal(t, 1, tc.Len())
	assert.Equal(t, uint32(4), first.Texture.Desc.Width)
	assert.Equal(t, uint32(2), first.Texture.Desc.Height)
	assert.NotEqual(t, metadata.InvalidBindless, first.Bindless())

	require.NoError(t, f.uploads.Flush())
	pixels, err := f.backend.TexturePixels(first.Texture)
	require.NoError(t, err)
	assert.Equal(t, []uint8{200, 0, 0, 255}, pixels[0:4])
}

func TestTextureCacheConcurrentGet(t *testing.T) {
	f := newUploadFixture(t)
	tc := newTextureCache(t, f, nil)
	path := filepath.Join(t.TempDir(), "shared.png")
	writePNG(t, path, color.NRGBA{G: 200, A: 255})

	var wg sync.WaitGroup
	handles := make([]*CachedTexture, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ct, err := tc.Get(path)
			assert.NoError(t, err)
			handles[i] = ct
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, int64(1), f.uploads.Stats().TextureUploads)
}

func TestTextureCacheClearReloads(t *testing.T) {
	f := newUploadFixture(t)
	tc := newTextureCache(t, f, nil)
	path := filepath.Join(t.TempDir(), "albedo.png")
	writePNG(t, path, color.NRGBA{B: 200, A: 100})

	first, err := tc.Get(path)
	require.NoError(t, err)
	assert.True(t, first.HasTransparency)
	def, err := tc.Default()
	require.NoError(t, err)
	assert.NotEqual(t, first.Bindless(), def.Bindless())
	descriptors := f.backend.DescriptorCount()
	assert.Equal(t, 2, descriptors)

	var released uint32
	f.events.Register(core.EventCodeTextureCacheCleared, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		released = data.Data.U32[0]
		return true
	})
	assert.Equal(t, 1, tc.Clear())
	assert.Equal(t, uint32(1), released)
	assert.Equal(t, 0, tc.Len())
	assert.Equal(t, 0, f.backend.DescriptorCount())

	again, err := tc.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
	// first load, default texture, reload
	assert.Equal(t, int64(3), f.uploads.Stats().TextureUploads)
}

func TestTextureCacheDefault(t *testing.T) {
	f := newUploadFixture(t)
	tc := newTextureCache(t, f, nil)

	a, err := tc.Default()
	require.NoError(t, err)
	b, err := tc.Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 0, tc.Len())

	require.NoError(t, f.uploads.Flush())
	pixels, err := f.backend.TexturePixels(a.Texture)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 255}, pixels)
}

func TestTextureCacheEncodedAndErrors(t *testing.T) {
	f := newUploadFixture(t)
	tc := newTextureCache(t, f, &TextureCacheConfig{MaxTextureCount: 1})

	data := writePNG(t, "", color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	ct, err := tc.GetEncoded("model.glb#image0", data)
	require.NoError(t, err)
	assert.Equal(t, "model.glb#image0", ct.Texture.Name())

	_, err = tc.GetEncoded("model.glb#image1", data)
	assert.Error(t, err)

	tc.Clear()
	_, err = tc.Get(filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.Is(err, core.ErrTextureDecode))
	assert.Equal(t, 0, tc.Len())
}
