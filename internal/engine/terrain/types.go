// Package terrain builds CPU-side geometry and lighting data for heightmap zones.
package terrain

// Vertex represents a terrain mesh vertex with all attributes.
type Vertex struct {
	Position   [3]float32
	Normal     [3]float32
	ColormapUV [2]float32 // 0..1 across the whole zone
	DetailUV   [2]float32 // one unit per heightmap cell
}

// MaterialGroup groups triangles by material for batched rendering.
type MaterialGroup struct {
	MaterialID uint32
	StartIndex int32
	IndexCount int32
}

// Mesh holds the geometry of one quadtree block ready for GPU upload.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Groups   []MaterialGroup
	Bounds   Bounds
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the middle of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Heightmap is a square grid of (Size+1)² samples, row-major with y rows.
// Heightmap x maps to world X, heightmap y to world Z and heights to world Y.
type Heightmap struct {
	Size      int
	Heights   []float32
	Materials []uint32
}
