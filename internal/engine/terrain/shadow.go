package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sweep is the scan order of a directional light over a heightmap.
type Sweep struct {
	// Axis is 0 when the light mostly travels along X, 1 along Y.
	Axis int
	// Reverse is set when the light travels toward decreasing coordinates.
	Reverse bool
	// Drop is the height a light ray loses between two samples.
	Drop float32
}

// SweepFor derives the sweep of a light travelling along dir. It reports
// false when the light comes from below the horizon.
func SweepFor(dir mgl32.Vec3, unitSize float32) (Sweep, bool) {
	if dir.Y() >= 0 {
		return Sweep{}, false
	}
	ax, az := absf(dir.X()), absf(dir.Z())
	horizontal := max(ax, az)
	if horizontal < 1e-6 {
		return Sweep{Drop: float32(math.Inf(1))}, true
	}
	s := Sweep{Drop: -dir.Y() / horizontal * unitSize}
	if az > ax {
		s.Axis = 1
		s.Reverse = dir.Z() < 0
	} else {
		s.Reverse = dir.X() < 0
	}
	return s, true
}

// UnseededEdge returns an incoming edge for a zone with no upwind neighbour.
func UnseededEdge(samples int) []float32 {
	edge := make([]float32, samples)
	for i := range edge {
		edge[i] = float32(math.Inf(-1))
	}
	return edge
}

// ScanShadow computes the binary shadow mask of a heightmap, 1 for lit and
// 0 for shadowed samples. seed holds the running maximum at the first
// sample of every scan line, as returned in edge by the upwind neighbour.
func ScanShadow(h *Heightmap, s Sweep, seed []float32) (mask []uint8, edge []float32) {
	n := h.Size + 1
	if len(seed) != n {
		seed = UnseededEdge(n)
	}
	mask = make([]uint8, n*n)
	edge = make([]float32, n)

	for line := range n {
		m := seed[line]
		for t := range n {
			pos := t
			if s.Reverse {
				pos = n - 1 - t
			}
			x, y := pos, line
			if s.Axis == 1 {
				x, y = line, pos
			}
			if t > 0 {
				m -= s.Drop
			}
			if v := h.At(x, y); v >= m {
				mask[y*n+x] = 1
				m = v
			}
		}
		edge[line] = m
	}
	return mask, edge
}

// ShadowAverage returns the mean of the four mask samples around a
// fractional position.
func ShadowAverage(mask []uint8, samples int, fx, fy float32) float32 {
	if samples < 2 {
		return float32(mask[0])
	}
	x := clampi(int(fx), 0, samples-2)
	y := clampi(int(fy), 0, samples-2)
	sum := int(mask[y*samples+x]) + int(mask[y*samples+x+1]) +
		int(mask[(y+1)*samples+x]) + int(mask[(y+1)*samples+x+1])
	return float32(sum) / 4
}

// Attenuation is the inverse-square falloff of a point light, fading to
// zero at radius. A zero radius disables the cutoff.
func Attenuation(distance, radius float32) float32 {
	if radius > 0 && distance >= radius {
		return 0
	}
	a := 1 / (1 + distance*distance)
	if radius > 0 {
		f := 1 - distance/radius
		a *= f * f
	}
	return a
}

// SpotFactor is the smooth cone falloff of a spot light between its inner
// and outer cone cosines.
func SpotFactor(spotDir, toPoint mgl32.Vec3, innerCos, outerCos float32) float32 {
	c := spotDir.Dot(toPoint)
	if c <= outerCos {
		return 0
	}
	if c >= innerCos || innerCos <= outerCos {
		return 1
	}
	t := (c - outerCos) / (innerCos - outerCos)
	return t * t * (3 - 2*t)
}

// Lambert is the diffuse factor of a surface lit from direction toLight.
func Lambert(normal, toLight mgl32.Vec3) float32 {
	return max(normal.Dot(toLight), 0)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
