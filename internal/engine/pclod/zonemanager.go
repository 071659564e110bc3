package pclod

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/pkg/formats"
)

// Camera supplies the world transform of the viewpoint.
type Camera interface {
	AbsoluteMatrix() mgl32.Mat4
}

// ZoneEventKind tells whether a zone entered or left the visible window.
type ZoneEventKind int

const (
	ZoneVisible ZoneEventKind = iota
	ZoneHidden
)

func (k ZoneEventKind) String() string {
	if k == ZoneVisible {
		return "visible"
	}
	return "hidden"
}

// ZoneEvent is delivered to subscribers on the main goroutine.
type ZoneEvent struct {
	Kind   ZoneEventKind
	ZoneID uint32
	GridX  int
	GridY  int
}

// LoadOptions locates the resources that accompany a terrain header.
type LoadOptions struct {
	// Manifest lists the materials. Optional.
	Manifest    io.Reader
	MaterialDir string
	ColormapDir string
	// Reader overrides where zone payloads are read from. By default they
	// come from the header itself.
	Reader PayloadReader
}

// ZoneManager tracks the camera over the zone grid. Its refresh pass loads
// the zones around the camera, selects their detail levels and feeds the
// texture manager; the main goroutine draws what the pass published.
type ZoneManager struct {
	cfg       *Configs
	log       *zap.Logger
	device    gpu.Device
	bus       *eventBus
	metrics   *terrainMetrics
	rendering renderEnv

	textures *TextureManager
	render   *RenderManager

	header *formats.HCLM
	index  *spatialIndex
	reader PayloadReader

	mu    sync.RWMutex
	zones map[uint32]*TopZone

	// Refresh goroutine state.
	window *visibleWindow

	camMu     sync.Mutex
	camera    Camera
	cameraPos mgl32.Vec3
	hasPos    bool

	subMu       sync.Mutex
	subscribers []func(ZoneEvent)
	visible     map[uint32]struct{}

	pause  sync.Mutex
	paused bool

	runMu   sync.Mutex
	cancel  func()
	group   *errgroup.Group
	running bool

	noCamera rate.Sometimes
}

// NewZoneManager creates an empty manager drawing through device.
func NewZoneManager(cfg Configs, log *zap.Logger, device gpu.Device) (*ZoneManager, error) {
	return newZoneManager(cfg, log, device, nil)
}

func newZoneManager(cfg Configs, log *zap.Logger, device gpu.Device, metrics *terrainMetrics) (*ZoneManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	zm := &ZoneManager{
		cfg:      &cfg,
		log:      log.Named("zones"),
		device:   device,
		bus:      newEventBus(),
		metrics:  metrics,
		zones:    make(map[uint32]*TopZone),
		window:   newVisibleWindow(cfg.ViewDistance),
		visible:  make(map[uint32]struct{}),
		noCamera: rate.Sometimes{Interval: 5 * time.Second},
	}
	zm.textures = newTextureManager(zm.cfg, log.Named("textures"), device, zm.bus, metrics)
	zm.textures.releaseZone = zm.releaseZoneCounter
	zm.render = newRenderManager(zm.cfg, log.Named("render"))
	zm.rendering = renderEnv{cfg: zm.cfg, log: zm.log, device: device, textures: zm.textures}
	return zm, nil
}

// Textures returns the texture manager of the terrain.
func (zm *ZoneManager) Textures() *TextureManager { return zm.textures }

// Renderers returns the render manager of the terrain.
func (zm *ZoneManager) Renderers() *RenderManager { return zm.render }

// Header returns the parsed terrain header, nil before Load.
func (zm *ZoneManager) Header() *formats.HCLM { return zm.header }

// Load parses the terrain header and builds the spatial index.
func (zm *ZoneManager) Load(header io.ReadSeeker, opts LoadOptions) error {
	if zm.header != nil {
		return ErrAlreadyLoaded
	}
	h, err := formats.ParseHCLM(header)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	index, err := buildSpatialIndex(h, zm.cfg.UnitSize)
	if err != nil {
		return err
	}
	if opts.Manifest != nil {
		if err := zm.textures.Load(opts.Manifest, opts.MaterialDir); err != nil {
			return err
		}
	}
	zm.textures.SetColormapDir(opts.ColormapDir)
	zm.textures.zoneAt = index.zoneAt

	zm.reader = opts.Reader
	if zm.reader == nil {
		zm.reader = &filePayloadReader{r: header}
	}
	zm.header = h
	zm.index = index

	zm.log.Info("terrain loaded",
		zap.String("name", h.Name),
		zap.Stringer("version", h.Version),
		zap.Int("zones", len(h.Zones)),
		zap.Int("grid_width", index.width),
		zap.Int("grid_height", index.height),
		zap.Uint16("zone_size", h.ZoneSizeX))
	return nil
}

// SetCamera sets the camera followed from the next Update.
func (zm *ZoneManager) SetCamera(c Camera) {
	zm.camMu.Lock()
	zm.camera = c
	zm.camMu.Unlock()
}

// Subscribe registers fn for zone visibility events.
func (zm *ZoneManager) Subscribe(fn func(ZoneEvent)) {
	zm.subMu.Lock()
	zm.subscribers = append(zm.subscribers, fn)
	zm.subMu.Unlock()
}

// Init places the window around pos and runs one refresh pass before the
// first frame. It must be called on the main goroutine before Run.
func (zm *ZoneManager) Init(pos mgl32.Vec3) error {
	if zm.index == nil {
		return ErrNotLoaded
	}
	zm.camMu.Lock()
	zm.cameraPos = pos
	zm.hasPos = true
	zm.camMu.Unlock()

	zm.refresh()
	zm.bus.toMain.Pump()
	zm.textures.MtUpdate()
	zm.render.Update(pos)
	return nil
}

// Update runs the main goroutine part of a frame: it samples the camera,
// runs pending main events, uploads textures and reorders renderers. In
// synchronous mode it also runs the refresh pass.
func (zm *ZoneManager) Update() {
	pos, ok := zm.sampleCamera()
	if !zm.cfg.Asynchronous && zm.index != nil && zm.pause.TryLock() {
		zm.refresh()
		zm.pause.Unlock()
	}
	zm.bus.toMain.Pump()
	zm.textures.MtUpdate()
	if ok {
		zm.render.Update(pos)
	}
	zm.metrics.renderers(zm.render.Count())
}

// Draw submits every active renderer.
func (zm *ZoneManager) Draw() {
	zm.render.Draw()
}

func (zm *ZoneManager) sampleCamera() (mgl32.Vec3, bool) {
	zm.camMu.Lock()
	defer zm.camMu.Unlock()
	if zm.camera != nil {
		zm.cameraPos = zm.camera.AbsoluteMatrix().Col(3).Vec3()
		zm.hasPos = true
	} else if !zm.hasPos {
		zm.noCamera.Do(func() {
			zm.log.Warn("no camera available, terrain not updated")
		})
	}
	return zm.cameraPos, zm.hasPos
}

func (zm *ZoneManager) cameraSnapshot() (mgl32.Vec3, bool) {
	zm.camMu.Lock()
	defer zm.camMu.Unlock()
	return zm.cameraPos, zm.hasPos
}

// AddLight starts lighting the terrain with an engine light.
func (zm *ZoneManager) AddLight(l *lighting.Light) *Light {
	return zm.textures.AddLight(l)
}

// RemoveLight stops lighting the terrain with an engine light.
func (zm *ZoneManager) RemoveLight(l *lighting.Light) bool {
	return zm.textures.RemoveLight(l)
}

// DebugLabel anchors a renderer label in world space.
type DebugLabel struct {
	Text     string
	Position mgl32.Vec3
}

// DebugLabels returns one label per zone renderer in draw order, or nil
// when debug labels are off. It runs on the main goroutine.
func (zm *ZoneManager) DebugLabels() []DebugLabel {
	if !zm.cfg.DebugLabels {
		return nil
	}
	var labels []DebugLabel
	for _, r := range zm.render.Order() {
		if zr, ok := r.(*ZoneRenderer); ok {
			labels = append(labels, DebugLabel{Text: zr.Label(), Position: zr.Position()})
		}
	}
	return labels
}

// VisibleZones returns the ids of the zones announced visible, in ascending order.
func (zm *ZoneManager) VisibleZones() []uint32 {
	zm.subMu.Lock()
	defer zm.subMu.Unlock()
	ids := make([]uint32, 0, len(zm.visible))
	for id := range zm.visible {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ZoneCounters returns the reference counts of a zone in memory.
func (zm *ZoneManager) ZoneCounters(id uint32) (visibility, heightmap, material int, ok bool) {
	zm.mu.RLock()
	z, ok := zm.zones[id]
	zm.mu.RUnlock()
	if !ok {
		return 0, 0, 0, false
	}
	return z.Count(CounterVisibility), z.Count(CounterHeightmap), z.Count(CounterMaterial), true
}

// LoadedZones returns the number of zones held in memory.
func (zm *ZoneManager) LoadedZones() int {
	zm.mu.RLock()
	defer zm.mu.RUnlock()
	return len(zm.zones)
}

// HeightAt returns the terrain height under a world X/Z position when the
// zone there is loaded.
func (zm *ZoneManager) HeightAt(x, z float32) (float32, bool) {
	if zm.index == nil {
		return 0, false
	}
	cx, cy := zm.index.cellOf(mgl32.Vec3{x, 0, z})
	id := zm.index.zoneAt(cx, cy)
	if id == 0 {
		return 0, false
	}
	zm.mu.RLock()
	zone, ok := zm.zones[id]
	zm.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return zone.HeightAt(x, z)
}

func (zm *ZoneManager) deliver(ev ZoneEvent) {
	zm.subMu.Lock()
	if ev.Kind == ZoneVisible {
		zm.visible[ev.ZoneID] = struct{}{}
	} else {
		delete(zm.visible, ev.ZoneID)
	}
	subs := slices.Clone(zm.subscribers)
	n := len(zm.visible)
	zm.subMu.Unlock()

	zm.metrics.visibleZones(n)
	for _, fn := range subs {
		fn(ev)
	}
}

// Destroy stops the refresh goroutine, releases every zone and frees all
// GPU resources. It runs on the main goroutine.
func (zm *ZoneManager) Destroy() {
	if err := zm.Stop(); err != nil {
		zm.log.Warn("refresh goroutine stopped with error", zap.Error(err))
	}
	zm.window.clear(zm.releaseZone)
	zm.bus.drain()
	zm.textures.Destroy()
	zm.render.Destroy()

	zm.mu.Lock()
	for id, z := range zm.zones {
		if z.DataLoaded() {
			z.Unload()
			zm.metrics.zoneUnloaded()
		}
		delete(zm.zones, id)
	}
	zm.mu.Unlock()
	zm.metrics.renderers(0)
	zm.metrics.visibleZones(0)
	zm.log.Debug("zone manager destroyed")
}
