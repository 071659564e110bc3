package terrain

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// BlockParams locates a quadtree block inside its zone heightmap.
type BlockParams struct {
	X0, Y0   int        // first cell of the block
	Span     int        // cells along one side
	Step     int        // cells per quad
	Origin   [2]float32 // world X/Z of sample (0,0)
	UnitSize float32
}

// BuildBlock creates the mesh of one block at the given step. Normals come
// from the zone normal map so that adjacent blocks agree on shared edges.
func BuildBlock(h *Heightmap, normals []mgl32.Vec3, p BlockParams) (*Mesh, error) {
	if p.Step <= 0 || p.Span <= 0 || p.Span%p.Step != 0 {
		return nil, fmt.Errorf("invalid block step %d for span %d", p.Step, p.Span)
	}
	if p.X0 < 0 || p.Y0 < 0 || p.X0+p.Span > h.Size || p.Y0+p.Span > h.Size {
		return nil, fmt.Errorf("block (%d,%d)+%d outside heightmap of size %d", p.X0, p.Y0, p.Span, h.Size)
	}
	samples := h.Size + 1
	if len(normals) != samples*samples {
		return nil, fmt.Errorf("normal map has %d entries, want %d", len(normals), samples*samples)
	}

	quads := p.Span / p.Step
	side := quads + 1
	vertices := make([]Vertex, 0, side*side)

	bounds := Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
	inv := 1 / float32(h.Size)

	for j := range side {
		y := p.Y0 + j*p.Step
		for i := range side {
			x := p.X0 + i*p.Step
			pos := [3]float32{
				p.Origin[0] + float32(x)*p.UnitSize,
				h.At(x, y),
				p.Origin[1] + float32(y)*p.UnitSize,
			}
			updateBounds(&bounds, pos)
			vertices = append(vertices, Vertex{
				Position:   pos,
				Normal:     normals[y*samples+x],
				ColormapUV: [2]float32{float32(x) * inv, float32(y) * inv},
				DetailUV:   [2]float32{float32(x), float32(y)},
			})
		}
	}

	// Each quad takes the material of its first sample.
	materialIndices := make(map[uint32][]uint32)
	for j := range quads {
		for i := range quads {
			mat := h.MaterialAt(p.X0+i*p.Step, p.Y0+j*p.Step)
			a := uint32(j*side + i)
			b := a + uint32(side)
			materialIndices[mat] = append(materialIndices[mat],
				a, b, a+1,
				a+1, b, b+1,
			)
		}
	}

	ids := make([]uint32, 0, len(materialIndices))
	for id := range materialIndices {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	indices := make([]uint32, 0, quads*quads*6)
	groups := make([]MaterialGroup, 0, len(ids))
	for _, id := range ids {
		idx := materialIndices[id]
		groups = append(groups, MaterialGroup{
			MaterialID: id,
			StartIndex: int32(len(indices)),
			IndexCount: int32(len(idx)),
		})
		indices = append(indices, idx...)
	}

	return &Mesh{
		Vertices: vertices,
		Indices:  indices,
		Groups:   groups,
		Bounds:   bounds,
	}, nil
}

func updateBounds(b *Bounds, p [3]float32) {
	for i := range 3 {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}
