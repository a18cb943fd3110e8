package loaders

import (
	"image"
	"io"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	// Open and decode the texture image file
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(core.ErrTextureDecode, "failed to open image '%s': %s", path, err)
	}
	defer file.Close()

	return il.LoadFrom(path, file, assetType, params)
}

func (il *ImageLoader) LoadFrom(name string, r io.Reader, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrapf(core.ErrTextureDecode, "failed to decode image '%s': %s", name, err)
	}

	flip := false
	if typedParams, ok := params.(*metadata.ImageResourceParams); ok && typedParams != nil {
		flip = typedParams.FlipY
	}

	data := toRGBA8(img, flip)
	core.LogDebug("decoded %s image '%s' (%dx%d)", format, name, data.Width, data.Height)

	return &metadata.Resource{
		Name:     name,
		FullPath: name,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(res *metadata.Resource) error {
	if res == nil {
		return errors.New("image loader: nil resource")
	}
	res.Data = nil
	res.DataSize = 0
	return nil
}

// toRGBA8 expands any decoded image to tightly packed, non-premultiplied RGBA8 rows.
func toRGBA8(img image.Image, flip bool) *metadata.ImageResourceData {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// straight alpha, textures are not premultiplied
	rgba, ok := img.(*image.NRGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	pixels := make([]uint8, width*height*4)
	rowSize := width * 4
	for y := 0; y < height; y++ {
		srcRow := y
		if flip {
			srcRow = height - 1 - y
		}
		copy(pixels[y*rowSize:(y+1)*rowSize], rgba.Pix[srcRow*rgba.Stride:srcRow*rgba.Stride+rowSize])
	}

	transparent := false
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] < 255 {
			transparent = true
			break
		}
	}

	return &metadata.ImageResourceData{
		Width:           uint32(width),
		Height:          uint32(height),
		Pixels:          pixels,
		HasTransparency: transparent,
		Source:          img,
	}
}
