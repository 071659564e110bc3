package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagTerrain      = flag.String("terrain", "", "Terrain header (.hclm) to open")
	flagSync         = flag.Bool("sync", false, "Run the terrain refresh on the render thread")
	flagViewDistance = flag.Int("view-distance", -1, "Visible window radius in zones")
	flagWidth        = flag.Int("width", 0, "Window width")
	flagHeight       = flag.Int("height", 0, "Window height")
	flagHeadless     = flag.Bool("headless", false, "Run without a window")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Viewer.ShowStats = true
	}
	if *flagTerrain != "" {
		cfg.Data.Header = *flagTerrain
	}
	if *flagSync {
		cfg.Terrain.Asynchronous = false
	}
	if *flagViewDistance >= 0 {
		cfg.Terrain.ViewDistance = *flagViewDistance
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagHeadless {
		cfg.Graphics.Headless = true
	}
}
