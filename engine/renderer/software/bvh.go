package software

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	mathx "github.com/spaghettifunk/prism/engine/math"
)

const maxLeafSize = 4

// bvhNode is stored depth-first: the left child of an interior node immediately
// follows it, the right child lives at rightChild.
type bvhNode struct {
	bounds     mathx.Extents3D
	rightChild int32
	first      int32
	count      int32
}

func (n *bvhNode) isLeaf() bool {
	return n.count > 0
}

// bvh is a binary bounding volume hierarchy over abstract items; order maps leaf
// slots back to item indices.
type bvh struct {
	nodes []bvhNode
	order []int32
}

func buildBVH(bounds []mathx.Extents3D) *bvh {
	b := &bvh{
		nodes: make([]bvhNode, 0, 2*len(bounds)),
		order: make([]int32, len(bounds)),
	}
	for i := range b.order {
		b.order[i] = int32(i)
	}
	if len(bounds) > 0 {
		b.split(bounds, 0, int32(len(bounds)))
	}
	return b
}

func (b *bvh) split(bounds []mathx.Extents3D, first, count int32) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{})

	nodeBounds := mathx.EmptyExtents()
	centroids := mathx.EmptyExtents()
	items := b.order[first : first+count]
	for _, item := range items {
		nodeBounds = nodeBounds.Union(bounds[item])
		centroids = centroids.Expand(bounds[item].Center())
	}
	b.nodes[idx].bounds = nodeBounds

	if count <= maxLeafSize {
		b.nodes[idx].first = first
		b.nodes[idx].count = count
		return idx
	}

	// median split along the longest centroid axis
	axis := centroids.LongestAxis()
	sort.SliceStable(items, func(i, j int) bool {
		return bounds[items[i]].Center()[axis] < bounds[items[j]].Center()[axis]
	})
	half := count / 2

	b.split(bounds, first, half)
	right := b.split(bounds, first+half, count-half)
	b.nodes[idx].rightChild = right
	return idx
}

// hitFunc tests one item against the ray, returning the hit distance when it is
// closer than tMax.
type hitFunc func(item int32, tMax float32) (float32, bool)

// closestHit walks the hierarchy front to back and returns the closest accepted item.
func (b *bvh) closestHit(origin, dir mgl32.Vec3, tMax float32, test hitFunc) (int32, float32, bool) {
	if len(b.nodes) == 0 {
		return -1, 0, false
	}
	invDir := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	best := int32(-1)
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &b.nodes[nodeIdx]
		if _, ok := node.bounds.IntersectRay(origin, invDir, tMax); !ok {
			continue
		}
		if node.isLeaf() {
			for _, item := range b.order[node.first : node.first+node.count] {
				if t, ok := test(item, tMax); ok {
					tMax = t
					best = item
				}
			}
			continue
		}
		stack = append(stack, node.rightChild, nodeIdx+1)
	}
	return best, tMax, best >= 0
}
