// Package config handles terrain viewer configuration loading and management.
package config

import "github.com/Faultbox/pclod/internal/engine/pclod"

// Config holds all viewer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Terrain  pclod.Configs  `yaml:"terrain"`
	Data     DataConfig     `yaml:"data"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DataConfig holds terrain file paths. Relative directories are resolved
// against the directory of the header.
type DataConfig struct {
	Header      string `yaml:"header"`
	Manifest    string `yaml:"manifest"`
	MaterialDir string `yaml:"material_dir"`
	ColormapDir string `yaml:"colormap_dir"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
	Headless   bool `yaml:"headless"`
	// MSAA is the multisample count, 0 disables it.
	MSAA int `yaml:"msaa"`
}

// ViewerConfig holds the initial camera and scene.
type ViewerConfig struct {
	Start        [3]float32 `yaml:"start"`
	Distance     float32    `yaml:"distance"`
	SunLongitude float32    `yaml:"sun_longitude"`
	SunLatitude  float32    `yaml:"sun_latitude"`
	ShowStats    bool       `yaml:"show_stats"`
	// Frames stops a headless run after that many frames, 0 runs until interrupted.
	Frames int `yaml:"frames"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	// JSON writes the log file as JSON lines.
	JSON bool `yaml:"json"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint, empty to disable it.
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FPSLimit:   0,
			MSAA:       4,
		},
		Terrain: pclod.DefaultConfigs(),
		Data: DataConfig{
			Header:      "terrain.hclm",
			Manifest:    "terrain.tclm",
			MaterialDir: "materials",
			ColormapDir: "colormaps",
		},
		Viewer: ViewerConfig{
			Distance:     60,
			SunLongitude: 135,
			SunLatitude:  40,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
