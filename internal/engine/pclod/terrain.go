package pclod

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/logger"
)

// Paths locates the files of a terrain on disk.
type Paths struct {
	Header      string
	Manifest    string
	MaterialDir string
	ColormapDir string
}

// Terrain is a streamed terrain ready to be driven by a render loop.
type Terrain struct {
	id      uuid.UUID
	cfg     Configs
	log     *zap.Logger
	metrics *terrainMetrics
	zones   *ZoneManager

	header *os.File
}

// New creates an empty terrain drawing through device. A nil base logger
// uses the global one.
func New(cfg Configs, base *zap.Logger, device gpu.Device) (*Terrain, error) {
	if device == nil {
		return nil, errors.New("pclod: nil device")
	}
	id := uuid.New()
	log := logger.Filter(base, cfg.Log).Named("pclod").With(zap.Stringer("terrain", id))
	metrics := newTerrainMetrics(id.String())

	zones, err := newZoneManager(cfg, log, device, metrics)
	if err != nil {
		metrics.forget()
		return nil, fmt.Errorf("pclod: invalid configs: %w", err)
	}
	return &Terrain{
		id:      id,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		zones:   zones,
	}, nil
}

// ID returns the instance id used in logs and metric labels.
func (t *Terrain) ID() uuid.UUID { return t.id }

// Configs returns the configuration the terrain was created with.
func (t *Terrain) Configs() Configs { return t.cfg }

// Zones returns the zone manager.
func (t *Terrain) Zones() *ZoneManager { return t.zones }

// Load opens the terrain header and the optional material manifest. The
// header stays open until Close since zone payloads are read from it.
func (t *Terrain) Load(p Paths) error {
	f, err := os.Open(p.Header)
	if err != nil {
		return fmt.Errorf("opening terrain header: %w", err)
	}

	opts := LoadOptions{MaterialDir: p.MaterialDir, ColormapDir: p.ColormapDir}
	if p.Manifest != "" {
		m, err := os.Open(p.Manifest)
		if err != nil {
			f.Close()
			return fmt.Errorf("opening material manifest: %w", err)
		}
		defer m.Close()
		opts.Manifest = m
	}

	if err := t.zones.Load(f, opts); err != nil {
		f.Close()
		t.log.Error("terrain load failed", zap.String("header", p.Header), zap.Error(err))
		return fmt.Errorf("loading %s: %w", p.Header, err)
	}
	t.header = f
	return nil
}

// Init runs the first refresh around pos.
func (t *Terrain) Init(pos mgl32.Vec3) error {
	return t.zones.Init(pos)
}

// SetCamera sets the camera the terrain follows.
func (t *Terrain) SetCamera(c Camera) { t.zones.SetCamera(c) }

// Run starts the refresh goroutine when the terrain is asynchronous.
func (t *Terrain) Run(ctx context.Context) error {
	return t.zones.Run(ctx)
}

// Update runs the main goroutine part of a frame.
func (t *Terrain) Update() { t.zones.Update() }

// Draw submits the visible terrain.
func (t *Terrain) Draw() { t.zones.Draw() }

// AddLight lights the terrain with l.
func (t *Terrain) AddLight(l *lighting.Light) *Light { return t.zones.AddLight(l) }

// RemoveLight stops lighting the terrain with l.
func (t *Terrain) RemoveLight(l *lighting.Light) bool { return t.zones.RemoveLight(l) }

// HeightAt returns the ground height under a world X/Z position.
func (t *Terrain) HeightAt(x, z float32) (float32, bool) { return t.zones.HeightAt(x, z) }

// Stats returns texture manager counts for debug overlays.
func (t *Terrain) Stats() TextureStats { return t.zones.Textures().Stats() }

// Close stops the terrain and frees every resource. It runs on the main goroutine.
func (t *Terrain) Close() error {
	t.zones.Destroy()
	t.metrics.forget()
	var err error
	if t.header != nil {
		err = t.header.Close()
		t.header = nil
	}
	t.log.Info("terrain closed")
	return err
}
