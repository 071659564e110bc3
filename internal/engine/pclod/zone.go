package pclod

import (
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// ZoneIndex addresses a node in the quadtree arena of a top zone.
type ZoneIndex int32

// NoZone marks a missing parent or child.
const NoZone ZoneIndex = -1

// zoneNode is one quadtree node. The root sits at index 0.
type zoneNode struct {
	parent   ZoneIndex
	children [4]ZoneIndex
	depth    int
	x0, y0   int // first cell inside the zone
	span     int // cells along one side
	center   mgl32.Vec3

	renderer *ZoneRenderer
}

func (n *zoneNode) leaf() bool {
	return n.children[0] == NoZone
}

// buildQuadtree splits the zone until nodes span blockSize cells.
func buildQuadtree(hm *terrain.Heightmap, size, blockSize int, origin [2]float32, unitSize float32) []zoneNode {
	nodes := []zoneNode{newZoneNode(hm, NoZone, 0, 0, 0, size, origin, unitSize)}
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if n.span <= blockSize || n.span < 2 {
			continue
		}
		half := n.span / 2
		for q := range 4 {
			x0 := n.x0 + (q%2)*half
			y0 := n.y0 + (q/2)*half
			nodes[i].children[q] = ZoneIndex(len(nodes))
			nodes = append(nodes, newZoneNode(hm, ZoneIndex(i), n.depth+1, x0, y0, half, origin, unitSize))
		}
	}
	return nodes
}

func newZoneNode(hm *terrain.Heightmap, parent ZoneIndex, depth, x0, y0, span int, origin [2]float32, unitSize float32) zoneNode {
	lo, hi := hm.At(x0, y0), hm.At(x0, y0)
	for y := y0; y <= y0+span; y++ {
		for x := x0; x <= x0+span; x++ {
			v := hm.At(x, y)
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	half := float32(span) / 2
	return zoneNode{
		parent:   parent,
		children: [4]ZoneIndex{NoZone, NoZone, NoZone, NoZone},
		depth:    depth,
		x0:       x0,
		y0:       y0,
		span:     span,
		center: mgl32.Vec3{
			origin[0] + (float32(x0)+half)*unitSize,
			(lo + hi) / 2,
			origin[1] + (float32(y0)+half)*unitSize,
		},
	}
}

// finestLod is the most detailed level a node can draw without exceeding
// blockSize quads per side.
func (z *TopZone) finestLod(n *zoneNode) int {
	steps := 0
	if n.span > z.blockSize {
		steps = bits.Len(uint(n.span/z.blockSize)) - 1
	}
	return clampLod(z.maxLod()-steps, z.maxLod())
}

// computeLod maps the camera distance to a detail level, the highest level
// being the full heightmap resolution.
func (z *TopZone) computeLod(n *zoneNode, camera mgl32.Vec3, cfg *Configs) int {
	dist := camera.Sub(n.center).Len()
	drop := int(dist / cfg.UnitSize * cfg.LodDistanceScale)
	return clampLod(z.maxLod()-drop, z.maxLod())
}

// lodStep is the number of cells per quad at a detail level.
func (z *TopZone) lodStep(n *zoneNode, lod int) int {
	return min(1<<(z.maxLod()-lod), n.span)
}

func clampLod(lod, maxLod int) int {
	return max(0, min(lod, maxLod))
}

// rendererHost creates and retires renderers on behalf of the quadtree.
type rendererHost interface {
	env() *renderEnv
	attach(r *ZoneRenderer)
	detach(r *ZoneRenderer)
}

// SelectLod walks the quadtree so that exactly one node on every
// root-to-leaf path owns a renderer at the level the camera calls for.
func (z *TopZone) SelectLod(camera mgl32.Vec3, host rendererHost) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.loaded {
		return
	}
	z.selectNode(0, camera, host)
}

func (z *TopZone) selectNode(idx ZoneIndex, camera mgl32.Vec3, host rendererHost) {
	n := &z.nodes[idx]
	env := host.env()
	lod := z.computeLod(n, camera, env.cfg)
	finest := z.finestLod(n)

	if !n.leaf() && lod > finest {
		// Split: the node gives up its renderer before the children build theirs.
		z.dropRenderer(idx, host)
		for _, c := range n.children {
			z.selectNode(c, camera, host)
		}
		return
	}

	lod = min(lod, finest)
	if n.renderer != nil && n.renderer.lod == lod {
		return
	}
	r, err := z.buildRenderer(idx, lod, env)
	if err != nil {
		env.log.Warn("building zone renderer",
			zap.Uint32("zone", z.header.ID),
			zap.Int32("node", int32(idx)),
			zap.Error(err))
		return
	}
	// Merge: descendants and the previous renderer go before the new one arrives.
	z.dropDescendants(idx, host)
	z.dropRenderer(idx, host)
	z.nodes[idx].renderer = r
	host.attach(r)
}

func (z *TopZone) buildRenderer(idx ZoneIndex, lod int, env *renderEnv) (*ZoneRenderer, error) {
	n := &z.nodes[idx]
	mesh, err := terrain.BuildBlock(z.heightmap, z.normals, terrain.BlockParams{
		X0:       n.x0,
		Y0:       n.y0,
		Span:     n.span,
		Step:     z.lodStep(n, lod),
		Origin:   z.origin,
		UnitSize: z.unitSize,
	})
	if err != nil {
		return nil, err
	}
	return newZoneRenderer(env, z.header.ID, idx, lod, n.center, mesh, float32(z.Size())), nil
}

func (z *TopZone) dropRenderer(idx ZoneIndex, host rendererHost) {
	n := &z.nodes[idx]
	if n.renderer == nil {
		return
	}
	r := n.renderer
	n.renderer = nil
	host.detach(r)
}

func (z *TopZone) dropDescendants(idx ZoneIndex, host rendererHost) {
	n := &z.nodes[idx]
	if n.leaf() {
		return
	}
	for _, c := range n.children {
		z.dropRenderer(c, host)
		z.dropDescendants(c, host)
	}
}

// ReleaseRenderers retires every renderer of the zone.
func (z *TopZone) ReleaseRenderers(host rendererHost) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for i := range z.nodes {
		z.dropRenderer(ZoneIndex(i), host)
	}
}

// Renderers returns the arena indices of the nodes that currently own a renderer.
func (z *TopZone) Renderers() []ZoneIndex {
	z.mu.Lock()
	defer z.mu.Unlock()
	var out []ZoneIndex
	for i := range z.nodes {
		if z.nodes[i].renderer != nil {
			out = append(out, ZoneIndex(i))
		}
	}
	return out
}

