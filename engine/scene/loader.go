package scene

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/prism/engine/core"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

const RootNodeName = "RootNode"

// Load parses a glTF file and builds its node tree, geometry, acceleration structures
// and materials. Every GPU write is enqueued on the context's uploader; nothing may be
// read before the next flush. A malformed file is reported as core.ErrSceneParse.
func Load(ctx *LoadContext, path string) (*Model, error) {
	res, err := ctx.Assets.LoadAsset(path, metadata.ResourceTypeScene, nil)
	if err != nil {
		return nil, err
	}
	doc, ok := res.Data.(*gltf.Document)
	if !ok {
		return nil, errors.Wrapf(core.ErrSceneParse, "resource '%s' is not a glTF document", path)
	}
	return LoadDocument(ctx, path, doc)
}

// LoadDocument is Load for an already parsed document. path names the model and is the
// base for relative image URIs.
func LoadDocument(ctx *LoadContext, path string, doc *gltf.Document) (*Model, error) {
	b := &modelBuilder{
		ctx: ctx,
		doc: doc,
		model: &Model{
			Name:      filepath.Base(path),
			Path:      path,
			Directory: filepath.Dir(path),
			renderer:  ctx.Renderer,
		},
		visiting: make(map[uint32]bool),
	}
	if err := b.build(); err != nil {
		// destroying through the renderer also drops their queued uploads
		b.model.release()
		return nil, err
	}

	m := b.model
	ctx.Metrics.Models.Add(1)
	core.LogInfo("loaded model '%s': %d nodes, %d primitives, %d materials, %d vertices, %d indices",
		path, len(m.Nodes), m.PrimitiveCount(), len(m.Materials), m.VertexCount, m.IndexCount)

	data := core.EventContext{}
	data.Data.C[0] = path
	data.Data.U32[0] = uint32(m.PrimitiveCount())
	data.Data.U32[1] = uint32(len(m.Materials))
	ctx.fire(core.EventCodeModelLoaded, m, data)
	return m, nil
}

type modelBuilder struct {
	ctx      *LoadContext
	doc      *gltf.Document
	model    *Model
	visiting map[uint32]bool
}

func (b *modelBuilder) build() error {
	doc := b.doc
	if len(doc.Scenes) == 0 {
		return errors.Wrapf(core.ErrSceneParse, "'%s' has no scenes", b.model.Path)
	}
	sceneIndex := uint32(0)
	if doc.Scene != nil {
		sceneIndex = *doc.Scene
	}
	if int(sceneIndex) >= len(doc.Scenes) {
		return errors.Wrapf(core.ErrSceneParse, "'%s' default scene %d out of range", b.model.Path, sceneIndex)
	}
	gltfScene := doc.Scenes[sceneIndex]

	root := &Node{
		Name:     RootNodeName,
		Local:    mgl32.Ident4(),
		Parent:   NoParent,
		Children: make([]int, len(gltfScene.Nodes)),
	}
	b.model.Nodes = append(b.model.Nodes, root)
	for i, gltfNode := range gltfScene.Nodes {
		child, err := b.visit(gltfNode, 0)
		if err != nil {
			return err
		}
		root.Children[i] = child
	}

	return b.buildMaterialBuffer()
}

// visit appends the node, its primitives and then its subtree, and returns the node's
// arena index. Children is sized before the recursion and filled slot by slot.
func (b *modelBuilder) visit(gltfIndex uint32, parent int) (int, error) {
	if int(gltfIndex) >= len(b.doc.Nodes) {
		return 0, errors.Wrapf(core.ErrSceneParse, "node index %d out of range", gltfIndex)
	}
	if b.visiting[gltfIndex] {
		return 0, errors.Wrapf(core.ErrSceneParse, "node %d is its own ancestor", gltfIndex)
	}
	b.visiting[gltfIndex] = true
	defer delete(b.visiting, gltfIndex)

	gltfNode := b.doc.Nodes[gltfIndex]
	name := gltfNode.Name
	if name == "" {
		name = fmt.Sprintf("Unnamed Node %s", uuid.NewString())
	}
	node := &Node{
		Name:     name,
		Local:    localTransform(gltfNode),
		Parent:   parent,
		Children: make([]int, len(gltfNode.Children)),
	}
	index := len(b.model.Nodes)
	b.model.Nodes = append(b.model.Nodes, node)
	b.ctx.Metrics.Nodes.Add(1)

	if gltfNode.Mesh != nil {
		if err := b.loadMesh(node, *gltfNode.Mesh); err != nil {
			return 0, err
		}
	}

	for i, gltfChild := range gltfNode.Children {
		child, err := b.visit(gltfChild, index)
		if err != nil {
			return 0, err
		}
		node.Children[i] = child
	}
	return index, nil
}

// localTransform uses the explicit matrix when there is one, otherwise T * R * S with
// identity for every missing component.
func localTransform(n *gltf.Node) mgl32.Mat4 {
	if n.Matrix != gltf.DefaultMatrix && n.Matrix != [16]float32{} {
		return mathx.Mat4FromColumnMajor(n.Matrix)
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return mathx.ComposeTRS(
		mgl32.Vec3(t),
		mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}},
		mgl32.Vec3(s),
	)
}

func (b *modelBuilder) loadMesh(node *Node, meshIndex uint32) error {
	if int(meshIndex) >= len(b.doc.Meshes) {
		return errors.Wrapf(core.ErrSceneParse, "node '%s' references mesh %d out of range", node.Name, meshIndex)
	}
	mesh := b.doc.Meshes[meshIndex]
	for i, prim := range mesh.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			core.LogDebug("skipping primitive %d of mesh '%s': mode %d is not a triangle list", i, mesh.Name, prim.Mode)
			b.ctx.Metrics.SkippedPrimitives.Add(1)
			continue
		}
		if _, ok := prim.Attributes[gltf.POSITION]; !ok {
			core.LogWarn("skipping primitive %d of mesh '%s': no POSITION attribute", i, mesh.Name)
			b.ctx.Metrics.SkippedPrimitives.Add(1)
			continue
		}
		name := fmt.Sprintf("%s/%s#%d", node.Name, mesh.Name, i)
		p, err := b.loadPrimitive(name, prim)
		if err != nil {
			return err
		}
		p.Instance.Transform = mathx.ToTransform3x4(node.Local)
		node.Primitives = append(node.Primitives, p)
	}
	return nil
}

func (b *modelBuilder) accessor(index uint32) (*gltf.Accessor, error) {
	if int(index) >= len(b.doc.Accessors) {
		return nil, errors.Wrapf(core.ErrSceneParse, "accessor index %d out of range", index)
	}
	return b.doc.Accessors[index], nil
}

func (b *modelBuilder) loadPrimitive(name string, prim *gltf.Primitive) (*Primitive, error) {
	posAccessor, err := b.accessor(prim.Attributes[gltf.POSITION])
	if err != nil {
		return nil, err
	}
	vertexCount := int(posAccessor.Count)

	positions, err := modeler.ReadPosition(b.doc, posAccessor, nil)
	if err != nil {
		core.LogDebug("primitive '%s': unreadable positions, using the origin: %s", name, err)
		positions = nil
	}

	var texcoords [][2]float32
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		acr, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		if texcoords, err = modeler.ReadTextureCoord(b.doc, acr, nil); err != nil {
			core.LogDebug("primitive '%s': unreadable TEXCOORD_0, using (0,0): %s", name, err)
			texcoords = nil
		}
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		acr, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		if normals, err = modeler.ReadNormal(b.doc, acr, nil); err != nil {
			core.LogDebug("primitive '%s': unreadable NORMAL, using +Z: %s", name, err)
			normals = nil
		}
	}

	vertices := make([]mathx.Vertex, vertexCount)
	for i := range vertices {
		v := &vertices[i]
		if i < len(positions) {
			v.Position = positions[i]
		}
		if i < len(texcoords) {
			v.Texcoord = texcoords[i]
		}
		v.Normal = mgl32.Vec3{0, 0, 1}
		if i < len(normals) {
			v.Normal = normals[i]
		}
	}

	indices, err := b.readIndices(name, prim, vertexCount)
	if err != nil {
		return nil, err
	}

	mathx.GeometryGenerateTangents(vertices, indices)

	p := &Primitive{
		VertexCount: uint32(len(vertices)),
		IndexCount:  uint32(len(indices)),
	}
	if err := b.createGeometry(name, p, vertices, indices); err != nil {
		return nil, err
	}

	material, err := b.resolveMaterial(prim.Material)
	if err != nil {
		b.ctx.Renderer.DestroyAccelerationStructure(p.BLAS)
		b.ctx.Renderer.DestroyBuffer(p.VertexBuffer)
		b.ctx.Renderer.DestroyBuffer(p.IndexBuffer)
		return nil, err
	}
	b.model.Materials = append(b.model.Materials, material)
	p.MaterialIndex = int32(len(b.model.Materials) - 1)

	p.Instance = metadata.RaytracingInstance{
		InstanceID:            0,
		InstanceMask:          1,
		Flags:                 metadata.InstanceFlagForceOpaque,
		AccelerationStructure: p.BLAS.Address,
	}

	b.model.VertexCount += uint64(p.VertexCount)
	b.model.IndexCount += uint64(p.IndexCount)
	b.ctx.Metrics.Primitives.Add(1)
	b.ctx.Metrics.Vertices.Add(int64(p.VertexCount))
	b.ctx.Metrics.Indices.Add(int64(p.IndexCount))
	return p, nil
}

func (b *modelBuilder) readIndices(name string, prim *gltf.Primitive, vertexCount int) ([]uint32, error) {
	if prim.Indices == nil {
		indices := make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
		return indices, nil
	}

	acr, err := b.accessor(*prim.Indices)
	if err != nil {
		return nil, err
	}
	indices, err := modeler.ReadIndices(b.doc, acr, nil)
	if err != nil {
		return nil, errors.Wrapf(core.ErrSceneParse, "primitive '%s': unreadable indices: %s", name, err)
	}
	for _, idx := range indices {
		if int(idx) >= vertexCount {
			return nil, errors.Wrapf(core.ErrSceneParse, "primitive '%s': index %d out of range (vertex count %d)", name, idx, vertexCount)
		}
	}
	return indices, nil
}

func (b *modelBuilder) createGeometry(name string, p *Primitive, vertices []mathx.Vertex, indices []uint32) error {
	r := b.ctx.Renderer

	vertexData, err := metadata.EncodeLittleEndian(vertices)
	if err != nil {
		return errors.WithStack(err)
	}
	indexData, err := metadata.EncodeLittleEndian(indices)
	if err != nil {
		return errors.WithStack(err)
	}

	if p.VertexBuffer, err = r.CreateStorageBuffer(uint64(len(vertexData)), mathx.VertexSize, name+" vertices"); err != nil {
		return err
	}
	if p.IndexBuffer, err = r.CreateStorageBuffer(uint64(len(indexData)), 4, name+" indices"); err != nil {
		r.DestroyBuffer(p.VertexBuffer)
		return err
	}
	b.ctx.Uploader.EnqueueBufferUpload(vertexData, p.VertexBuffer)
	b.ctx.Uploader.EnqueueBufferUpload(indexData, p.IndexBuffer)

	if p.BLAS, err = r.CreateBLAS(p.VertexBuffer, p.IndexBuffer, p.VertexCount, p.IndexCount, name); err != nil {
		r.DestroyBuffer(p.VertexBuffer)
		r.DestroyBuffer(p.IndexBuffer)
		return err
	}
	b.ctx.Uploader.EnqueueAccelerationStructureBuild(p.BLAS)
	return nil
}

func (b *modelBuilder) resolveMaterial(index *uint32) (*Material, error) {
	albedo, err := b.ctx.Textures.Default()
	if err != nil {
		return nil, err
	}
	material := &Material{Albedo: albedo}
	if index == nil {
		return material, nil
	}
	if int(*index) >= len(b.doc.Materials) {
		return nil, errors.Wrapf(core.ErrSceneParse, "material index %d out of range", *index)
	}
	src := b.doc.Materials[*index]

	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorTexture != nil {
			tex, err := b.texture(pbr.BaseColorTexture.Index)
			if err != nil {
				return nil, err
			}
			if tex != nil {
				material.Albedo = tex
			}
		}
		if pbr.MetallicRoughnessTexture != nil {
			if material.PBR, err = b.texture(pbr.MetallicRoughnessTexture.Index); err != nil {
				return nil, err
			}
		}
	}
	if src.NormalTexture != nil && src.NormalTexture.Index != nil {
		if material.Normal, err = b.texture(*src.NormalTexture.Index); err != nil {
			return nil, err
		}
	}
	material.AlphaTested = src.AlphaMode != gltf.AlphaOpaque
	return material, nil
}

// texture resolves a glTF texture to a cached GPU texture. A texture without an image
// source yields nil.
func (b *modelBuilder) texture(index uint32) (*systems.CachedTexture, error) {
	if int(index) >= len(b.doc.Textures) {
		return nil, errors.Wrapf(core.ErrSceneParse, "texture index %d out of range", index)
	}
	src := b.doc.Textures[index].Source
	if src == nil {
		return nil, nil
	}
	if int(*src) >= len(b.doc.Images) {
		return nil, errors.Wrapf(core.ErrSceneParse, "image index %d out of range", *src)
	}
	img := b.doc.Images[*src]
	key := fmt.Sprintf("%s#image%d", b.model.Path, *src)

	switch {
	case img.BufferView != nil:
		if int(*img.BufferView) >= len(b.doc.BufferViews) {
			return nil, errors.Wrapf(core.ErrSceneParse, "image %d buffer view out of range", *src)
		}
		data, err := modeler.ReadBufferView(b.doc, b.doc.BufferViews[*img.BufferView])
		if err != nil {
			return nil, errors.Wrapf(core.ErrSceneParse, "image %d: %s", *src, err)
		}
		return b.ctx.Textures.GetEncoded(key, data)
	case img.IsEmbeddedResource():
		data, err := img.MarshalData()
		if err != nil {
			return nil, errors.Wrapf(core.ErrSceneParse, "image %d: %s", *src, err)
		}
		return b.ctx.Textures.GetEncoded(key, data)
	case img.URI != "":
		uri, err := url.PathUnescape(img.URI)
		if err != nil {
			uri = img.URI
		}
		return b.ctx.Textures.Get(filepath.Join(b.model.Directory, filepath.FromSlash(uri)))
	}
	return nil, errors.Wrapf(core.ErrSceneParse, "image %d has neither a URI nor a buffer view", *src)
}

func (b *modelBuilder) buildMaterialBuffer() error {
	m := b.model
	if len(m.Materials) == 0 {
		return nil
	}
	records := make([]metadata.MaterialRecord, len(m.Materials))
	for i, mat := range m.Materials {
		records[i] = mat.Record()
	}
	data, err := metadata.EncodeLittleEndian(records)
	if err != nil {
		return errors.WithStack(err)
	}

	m.MaterialBuffer, err = b.ctx.Renderer.CreateStorageBuffer(uint64(len(data)), metadata.MaterialRecordSize, m.Name+" materials")
	if err != nil {
		return err
	}
	b.ctx.Uploader.EnqueueBufferUpload(data, m.MaterialBuffer)
	return nil
}
