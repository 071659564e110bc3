package lighting

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SunDirection converts longitude/latitude angles in degrees to a unit vector.
// Longitude is rotation around Y axis (0-360), latitude is elevation from horizon (0-90).
// Returns a normalized direction vector pointing towards the sun.
func SunDirection(longitude, latitude float32) mgl32.Vec3 {
	lonRad := float64(longitude) * math.Pi / 180.0
	latRad := float64(latitude) * math.Pi / 180.0

	// Spherical to Cartesian conversion
	x := float32(math.Cos(latRad) * math.Sin(lonRad))
	y := float32(math.Sin(latRad))
	z := float32(math.Cos(latRad) * math.Cos(lonRad))

	return mgl32.Vec3{x, y, z}
}

// NewSun creates a directional light shining from the given sun angles.
func NewSun(longitude, latitude float32, color mgl32.Vec3) *Light {
	return NewDirectional(SunDirection(longitude, latitude).Mul(-1), color)
}
