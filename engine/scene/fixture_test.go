package scene

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/software"
	"github.com/spaghettifunk/prism/engine/systems"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx     *LoadContext
	backend *software.Backend
	uploads *systems.UploadSystem
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := software.New()
	r := renderer.New(backend)
	require.NoError(t, r.Initialize("scene-test"))

	js, err := systems.NewJobSystem(2, 8)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })

	metrics := core.NewLoadMetrics()
	events := core.NewEventBus()
	uploads := systems.NewUploadSystem(backend, js, metrics, events)
	r.AttachUploader(uploads)
	am := assets.NewAssetManager()
	require.NoError(t, am.Initialize())
	textures := systems.NewTextureCache(nil, am, r, uploads, metrics, events)

	return &fixture{
		ctx:     NewLoadContext(r, uploads, textures, am, metrics, events),
		backend: backend,
		uploads: uploads,
		dir:     t.TempDir(),
	}
}

func encodePNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (f *fixture) writePNG(t *testing.T, name string, c color.NRGBA) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, encodePNG(t, c), 0o644))
	return path
}

// docBuilder assembles small glTF documents in memory.
type docBuilder struct {
	doc *gltf.Document
}

func newDoc() *docBuilder {
	return &docBuilder{doc: gltf.NewDocument()}
}

// triangleMesh adds a unit right triangle in the z=0 plane and returns the mesh index.
func (b *docBuilder) triangleMesh(name string, material *uint32) uint32 {
	prim := b.trianglePrimitive()
	prim.Material = material
	return b.mesh(name, prim)
}

func (b *docBuilder) trianglePrimitive() *gltf.Primitive {
	pos := modeler.WritePosition(b.doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	nrm := modeler.WriteNormal(b.doc, [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}})
	uv := modeler.WriteTextureCoord(b.doc, [][2]float32{{0, 0}, {1, 0}, {0, 1}})
	idx := modeler.WriteIndices(b.doc, []uint32{0, 1, 2})
	return &gltf.Primitive{
		Indices: gltf.Index(idx),
		Attributes: map[string]uint32{
			gltf.POSITION:   pos,
			gltf.NORMAL:     nrm,
			gltf.TEXCOORD_0: uv,
		},
	}
}

func (b *docBuilder) mesh(name string, prims ...*gltf.Primitive) uint32 {
	b.doc.Meshes = append(b.doc.Meshes, &gltf.Mesh{Name: name, Primitives: prims})
	return uint32(len(b.doc.Meshes) - 1)
}

func (b *docBuilder) node(n *gltf.Node) uint32 {
	b.doc.Nodes = append(b.doc.Nodes, n)
	return uint32(len(b.doc.Nodes) - 1)
}

func (b *docBuilder) root(nodes ...uint32) {
	b.doc.Scenes[0].Nodes = append(b.doc.Scenes[0].Nodes, nodes...)
}

func (b *docBuilder) material(m *gltf.Material) *uint32 {
	b.doc.Materials = append(b.doc.Materials, m)
	return gltf.Index(uint32(len(b.doc.Materials) - 1))
}

func (b *docBuilder) imageTexture(uri string) uint32 {
	b.doc.Images = append(b.doc.Images, &gltf.Image{URI: uri})
	b.doc.Textures = append(b.doc.Textures, &gltf.Texture{Source: gltf.Index(uint32(len(b.doc.Images) - 1))})
	return uint32(len(b.doc.Textures) - 1)
}

// hierarchyDoc is root A (1 primitive) with children B (2 primitives) and C (1 primitive),
// B has child D (1 primitive), plus a second scene root E without a mesh.
func hierarchyDoc() *gltf.Document {
	b := newDoc()
	single := b.triangleMesh("single", nil)
	double := b.mesh("double", b.trianglePrimitive(), b.trianglePrimitive())

	d := b.node(&gltf.Node{Name: "D", Mesh: gltf.Index(single), Translation: [3]float32{0, 0, 1}})
	bNode := b.node(&gltf.Node{Name: "B", Mesh: gltf.Index(double), Children: []uint32{d}, Translation: [3]float32{0, 2, 0}})
	c := b.node(&gltf.Node{Name: "C", Mesh: gltf.Index(single)})
	a := b.node(&gltf.Node{Name: "A", Mesh: gltf.Index(single), Children: []uint32{bNode, c}, Translation: [3]float32{1, 0, 0}})
	e := b.node(&gltf.Node{Name: "E"})
	b.root(a, e)
	return b.doc
}
