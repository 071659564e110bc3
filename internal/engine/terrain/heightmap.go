package terrain

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// NewHeightmap wraps zone samples, checking that both grids hold (size+1)² entries.
func NewHeightmap(size int, heights []float32, materials []uint32) (*Heightmap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid heightmap size %d", size)
	}
	n := (size + 1) * (size + 1)
	if len(heights) != n {
		return nil, fmt.Errorf("heightmap size %d needs %d heights, got %d", size, n, len(heights))
	}
	if materials != nil && len(materials) != n {
		return nil, fmt.Errorf("heightmap size %d needs %d material ids, got %d", size, n, len(materials))
	}
	return &Heightmap{Size: size, Heights: heights, Materials: materials}, nil
}

// Samples returns the number of samples along one side.
func (h *Heightmap) Samples() int {
	return h.Size + 1
}

// At returns the height of a sample, clamping coordinates to the grid.
func (h *Heightmap) At(x, y int) float32 {
	x = clampi(x, 0, h.Size)
	y = clampi(y, 0, h.Size)
	return h.Heights[y*(h.Size+1)+x]
}

// MaterialAt returns the material id of a sample, 0 when the zone has none.
func (h *Heightmap) MaterialAt(x, y int) uint32 {
	if h.Materials == nil {
		return 0
	}
	x = clampi(x, 0, h.Size)
	y = clampi(y, 0, h.Size)
	return h.Materials[y*(h.Size+1)+x]
}

// Interpolated returns the bilinear height at fractional sample coordinates.
func (h *Heightmap) Interpolated(fx, fy float32) float32 {
	fx = clampf(fx, 0, float32(h.Size))
	fy = clampf(fy, 0, float32(h.Size))
	x := int(fx)
	y := int(fy)
	if x >= h.Size {
		x = h.Size - 1
	}
	if y >= h.Size {
		y = h.Size - 1
	}
	tx := fx - float32(x)
	ty := fy - float32(y)

	south := h.At(x, y)*(1-tx) + h.At(x+1, y)*tx
	north := h.At(x, y+1)*(1-tx) + h.At(x+1, y+1)*tx
	return south*(1-ty) + north*ty
}

// ComputeNormals derives one normal per sample with central differences.
func (h *Heightmap) ComputeNormals(unitSize float32) []mgl32.Vec3 {
	n := h.Size + 1
	normals := make([]mgl32.Vec3, n*n)
	for y := range n {
		for x := range n {
			dx := (h.At(x+1, y) - h.At(x-1, y)) / (spanOf(x, h.Size) * unitSize)
			dz := (h.At(x, y+1) - h.At(x, y-1)) / (spanOf(y, h.Size) * unitSize)
			normals[y*n+x] = mgl32.Vec3{-dx, 1, -dz}.Normalize()
		}
	}
	return normals
}

// SmoothNormals averages each normal with its 3x3 neighbourhood, passes
// times. normals holds samples² entries row-major.
func SmoothNormals(normals []mgl32.Vec3, samples, passes int) []mgl32.Vec3 {
	src := normals
	for range passes {
		dst := make([]mgl32.Vec3, len(src))
		for y := range samples {
			for x := range samples {
				var sum mgl32.Vec3
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx := clampi(x+dx, 0, samples-1)
						ny := clampi(y+dy, 0, samples-1)
						sum = sum.Add(src[ny*samples+nx])
					}
				}
				dst[y*samples+x] = sum.Normalize()
			}
		}
		src = dst
	}
	return src
}

// MinMax returns the lowest and highest sample.
func (h *Heightmap) MinMax() (lo, hi float32) {
	if len(h.Heights) == 0 {
		return 0, 0
	}
	lo, hi = h.Heights[0], h.Heights[0]
	for _, v := range h.Heights[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// spanOf is the sample distance covered by a central difference at i.
func spanOf(i, size int) float32 {
	if i == 0 || i == size {
		return 1
	}
	return 2
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampi(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
