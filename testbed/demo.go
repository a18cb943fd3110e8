// Package testbed writes a small self-contained scene to disk so the engine can be
// exercised without external assets.
package testbed

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/prism/engine"
)

const (
	DemoConfigName = "prism.toml"
	DemoSceneName  = "demo.glb"
	DemoFloorImage = "textures/floor.png"
)

// WriteDemo writes the demo scene, its external texture and a config placing the
// scene twice. It returns the config path.
func WriteDemo(dir string) (string, error) {
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(DemoFloorImage)), 0o755); err != nil {
		return "", errors.WithStack(err)
	}

	floor, err := checker(64, color.NRGBA{200, 200, 200, 255}, color.NRGBA{40, 40, 40, 255})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, DemoFloorImage), floor, 0o644); err != nil {
		return "", errors.WithStack(err)
	}

	doc, err := demoDocument()
	if err != nil {
		return "", err
	}
	if err := gltf.SaveBinary(doc, filepath.Join(dir, DemoSceneName)); err != nil {
		return "", errors.Wrap(err, "failed to save demo scene")
	}

	config := engine.ApplicationConfig{
		Name:     "Prism Demo",
		LogLevel: "info",
		Renderer: "software",
		Entities: []engine.EntityConfig{
			{Path: DemoSceneName},
			{Path: DemoSceneName, Translation: []float64{4, 0, 0}, Rotation: []float64{0, 0.7071068, 0, 0.7071068}},
		},
	}
	data, err := toml.Marshal(config)
	if err != nil {
		return "", errors.WithStack(err)
	}
	path := filepath.Join(dir, DemoConfigName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// demoDocument is a textured floor quad with a translucent marker triangle parented
// above it.
func demoDocument() (*gltf.Document, error) {
	doc := gltf.NewDocument()

	quad := &gltf.Primitive{
		Indices: gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2, 0, 2, 3})),
		Attributes: map[string]uint32{
			gltf.POSITION:   modeler.WritePosition(doc, [][3]float32{{-1, 0, -1}, {-1, 0, 1}, {1, 0, 1}, {1, 0, -1}}),
			gltf.NORMAL:     modeler.WriteNormal(doc, [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}}),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, [][2]float32{{0, 0}, {0, 1}, {1, 1}, {1, 0}}),
		},
	}
	doc.Images = append(doc.Images, &gltf.Image{URI: DemoFloorImage})
	doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(0)})
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name: "floor",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: 0},
		},
	})
	quad.Material = gltf.Index(0)

	// the marker texture lives in the binary chunk
	marker, err := checker(8, color.NRGBA{255, 64, 0, 128}, color.NRGBA{255, 200, 0, 255})
	if err != nil {
		return nil, err
	}
	img, err := modeler.WriteImage(doc, "marker", "image/png", bytes.NewReader(marker))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name:      "marker",
		AlphaMode: gltf.AlphaBlend,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: uint32(len(doc.Textures) - 1)},
		},
	})
	tri := &gltf.Primitive{
		Indices: gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2})),
		Attributes: map[string]uint32{
			gltf.POSITION:   modeler.WritePosition(doc, [][3]float32{{-0.5, 0, 0}, {0.5, 0, 0}, {0, 1, 0}}),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, [][2]float32{{0, 1}, {1, 1}, {0.5, 0}}),
		},
		Material: gltf.Index(1),
	}

	doc.Meshes = []*gltf.Mesh{
		{Name: "floor", Primitives: []*gltf.Primitive{quad}},
		{Name: "marker", Primitives: []*gltf.Primitive{tri}},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "Floor", Mesh: gltf.Index(0), Children: []uint32{1}},
		{Name: "Marker", Mesh: gltf.Index(1), Translation: [3]float32{0, 0.5, 0}},
	}
	doc.Scenes[0].Nodes = []uint32{0}
	return doc, nil
}

func checker(size int, a, b color.NRGBA) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	cell := max(size/8, 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetNRGBA(x, y, a)
			} else {
				img.SetNRGBA(x, y, b)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
