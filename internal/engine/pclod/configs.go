package pclod

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/logger"
)

// Configs is the tuning surface of a terrain. Zero values are not usable,
// start from DefaultConfigs.
type Configs struct {
	// ViewDistance is the radius of the visible zone window, in zones.
	ViewDistance int `yaml:"view_distance"`

	// RefreshFrequency is the refresh goroutine rate in Hz.
	RefreshFrequency float64 `yaml:"refresh_frequency"`
	Asynchronous     bool    `yaml:"asynchronous"`

	// UnitSize is the world size of one heightmap unit.
	UnitSize float32 `yaml:"unit_size"`
	// BlockSize is the number of cells along a quadtree leaf.
	BlockSize int `yaml:"block_size"`
	// LodDistanceScale converts heightmap-unit distances into lod steps.
	LodDistanceScale float32 `yaml:"lod_distance_scale"`

	// Lod curves indexed by the Chebyshev zone distance to the camera.
	ColormapLodCurve []int `yaml:"colormap_lod_curve"`
	LightmapLodCurve []int `yaml:"lightmap_lod_curve"`

	FrontToBack         bool    `yaml:"front_to_back"`
	FrontToBackPeriod   int     `yaml:"front_to_back_period"`
	FrontToBackMinDelta float32 `yaml:"front_to_back_min_delta"`

	Lighting         bool       `yaml:"lighting"`
	SelfShadowing    bool       `yaml:"self_shadowing"`
	LightMinCosAngle float32    `yaml:"light_min_cos_angle"`
	Ambient          [3]float32 `yaml:"ambient"`

	DebugLabels bool `yaml:"debug_labels"`
	Wireframe   bool `yaml:"wireframe"`

	Log logger.LevelGate `yaml:"log"`
}

// DefaultConfigs returns the configuration used when nothing is overridden.
func DefaultConfigs() Configs {
	return Configs{
		ViewDistance:        2,
		RefreshFrequency:    30,
		Asynchronous:        true,
		UnitSize:            1,
		BlockSize:           16,
		LodDistanceScale:    0.05,
		ColormapLodCurve:    []int{0, 0, 1, 2, 3},
		LightmapLodCurve:    []int{0, 1, 2, 3},
		FrontToBack:         true,
		FrontToBackPeriod:   10,
		FrontToBackMinDelta: 1,
		Lighting:            true,
		SelfShadowing:       true,
		LightMinCosAngle:    0.999,
		Ambient:             [3]float32{0.3, 0.3, 0.3},
		Log:                 logger.AllLevels(),
	}
}

// Validate reports the first setting that cannot drive a terrain.
func (c *Configs) Validate() error {
	switch {
	case c.ViewDistance < 0:
		return fmt.Errorf("view_distance must be >= 0, got %d", c.ViewDistance)
	case c.RefreshFrequency <= 0:
		return fmt.Errorf("refresh_frequency must be > 0, got %v", c.RefreshFrequency)
	case c.UnitSize <= 0:
		return fmt.Errorf("unit_size must be > 0, got %v", c.UnitSize)
	case c.BlockSize < 1 || c.BlockSize&(c.BlockSize-1) != 0:
		return fmt.Errorf("block_size must be a power of two, got %d", c.BlockSize)
	case c.LodDistanceScale < 0:
		return fmt.Errorf("lod_distance_scale must be >= 0, got %v", c.LodDistanceScale)
	case len(c.ColormapLodCurve) == 0 || len(c.LightmapLodCurve) == 0:
		return fmt.Errorf("lod curves must not be empty")
	case c.FrontToBackPeriod < 1:
		return fmt.Errorf("front_to_back_period must be >= 1, got %d", c.FrontToBackPeriod)
	}
	return nil
}

// RefreshPeriod returns the target duration of one refresh iteration.
func (c *Configs) RefreshPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.RefreshFrequency)
}

// WindowSize returns the side of the visible zone window.
func (c *Configs) WindowSize() int {
	return 2*c.ViewDistance + 1
}

func (c *Configs) ambient() mgl32.Vec3 {
	return mgl32.Vec3(c.Ambient)
}

// curveLevel reads a lod curve, clamping the distance to its last entry.
func curveLevel(curve []int, distance int) int {
	if len(curve) == 0 {
		return 0
	}
	if distance < 0 {
		distance = 0
	}
	if distance >= len(curve) {
		distance = len(curve) - 1
	}
	return curve[distance]
}
