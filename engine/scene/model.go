package scene

import (
	"iter"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

// NoParent is the parent index of a model's root node.
const NoParent = -1

// Material references textures owned by the TextureCache. Normal and PBR are nil when
// the source material has no such map.
type Material struct {
	Albedo *systems.CachedTexture
	Normal *systems.CachedTexture
	PBR    *systems.CachedTexture
	// AlphaTested is set for any alpha mode other than opaque.
	AlphaTested bool
}

// Record packs the material the way shaders read it.
func (m *Material) Record() metadata.MaterialRecord {
	return metadata.MaterialRecord{
		AlbedoIndex: m.Albedo.Bindless(),
		NormalIndex: m.Normal.Bindless(),
		PBRIndex:    m.PBR.Bindless(),
	}
}

// Primitive is one triangle list with its GPU geometry and bottom level structure.
type Primitive struct {
	VertexBuffer *metadata.Buffer
	IndexBuffer  *metadata.Buffer
	VertexCount  uint32
	IndexCount   uint32
	// MaterialIndex addresses the owning model's Materials.
	MaterialIndex int32
	BLAS          *metadata.AccelerationStructure
	Instance      metadata.RaytracingInstance
}

// Node is one entry of a model's node arena with its local transform relative to Parent.
type Node struct {
	Name  string
	Local mgl32.Mat4
	// Parent is the index of the parent node in Model.Nodes, NoParent for the root.
	Parent     int
	Children   []int
	Primitives []*Primitive
}

// Model is one loaded scene file. Nodes is an arena: Nodes[0] is the root and nodes
// refer to each other by index only.
type Model struct {
	Name      string
	Path      string
	Directory string

	Nodes          []*Node
	Materials      []*Material
	MaterialBuffer *metadata.Buffer

	VertexCount uint64
	IndexCount  uint64

	renderer *renderer.Renderer
}

func (m *Model) Root() *Node {
	if len(m.Nodes) == 0 {
		return nil
	}
	return m.Nodes[0]
}

// Traverse visits every node depth first, parents before children and children in
// array order. The registry and the scene both depend on this order to agree on
// instance IDs.
func (m *Model) Traverse(visit func(index int, node *Node)) {
	if len(m.Nodes) == 0 {
		return
	}
	m.traverse(0, visit)
}

func (m *Model) traverse(index int, visit func(index int, node *Node)) {
	node := m.Nodes[index]
	visit(index, node)
	for _, child := range node.Children {
		m.traverse(child, visit)
	}
}

// Walk is the iterator form of Traverse and yields nodes in the same order.
func (m *Model) Walk() iter.Seq2[int, *Node] {
	return func(yield func(int, *Node) bool) {
		if len(m.Nodes) == 0 {
			return
		}
		stack := []int{0}
		for len(stack) > 0 {
			index := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			node := m.Nodes[index]
			if !yield(index, node) {
				return
			}
			for i := len(node.Children) - 1; i >= 0; i-- {
				stack = append(stack, node.Children[i])
			}
		}
	}
}

// GlobalTransform composes the local transforms from the root down to the node.
func (m *Model) GlobalTransform(index int) mgl32.Mat4 {
	global := mgl32.Ident4()
	for i := index; i != NoParent; i = m.Nodes[i].Parent {
		global = m.Nodes[i].Local.Mul4(global)
	}
	return global
}

// PrimitiveCount is the number of primitives over all nodes.
func (m *Model) PrimitiveCount() int {
	count := 0
	for _, n := range m.Nodes {
		count += len(n.Primitives)
	}
	return count
}

// Destroy releases every GPU resource the model owns, children before parents.
// Textures belong to the cache and are left alone.
func (m *Model) Destroy() {
	if len(m.Nodes) > 0 {
		m.destroyNode(0)
	}
	if m.renderer != nil {
		m.renderer.DestroyBuffer(m.MaterialBuffer)
	}
	m.MaterialBuffer = nil
	m.Nodes = nil
	m.Materials = nil
}

func (m *Model) destroyNode(index int) {
	node := m.Nodes[index]
	for _, child := range node.Children {
		m.destroyNode(child)
	}
	m.destroyPrimitives(node)
	node.Children = nil
}

func (m *Model) destroyPrimitives(node *Node) {
	if m.renderer != nil {
		for _, p := range node.Primitives {
			m.renderer.DestroyAccelerationStructure(p.BLAS)
			m.renderer.DestroyBuffer(p.VertexBuffer)
			m.renderer.DestroyBuffer(p.IndexBuffer)
		}
	}
	node.Primitives = nil
}

// release frees a model whose tree may be incomplete, so the arena is walked flat.
func (m *Model) release() {
	for _, node := range m.Nodes {
		m.destroyPrimitives(node)
	}
	if m.renderer != nil {
		m.renderer.DestroyBuffer(m.MaterialBuffer)
	}
	m.MaterialBuffer = nil
	m.Nodes = nil
	m.Materials = nil
}
