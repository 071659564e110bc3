package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Faultbox/pclod/internal/config"
	"github.com/Faultbox/pclod/internal/engine/camera"
	"github.com/Faultbox/pclod/internal/engine/debug"
	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/gpu/glgpu"
	"github.com/Faultbox/pclod/internal/engine/input"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/engine/pclod"
	"github.com/Faultbox/pclod/internal/engine/ui2d"
	"github.com/Faultbox/pclod/internal/engine/window"
)

const (
	headlessFPS = 60
	windowTitle = "PCLOD Terrain Viewer"
)

// viewer owns the window, the device and the terrain.
type viewer struct {
	cfg *config.Config
	log *zap.Logger

	win    *window.Window
	gl     *glgpu.Device
	device gpu.Device
	input  *input.Input
	ui     *ui2d.Renderer

	cam     *camera.OrbitCamera
	terrain *pclod.Terrain
	sun     *lighting.Light

	shots     *debug.ScreenshotCapture
	wireframe bool
	showStats bool
	shotNext  bool
	frames    int
	fps       int

	// frames at the previous stats tick
	tickFrames int
}

func newViewer(cfg *config.Config, log *zap.Logger) (_ *viewer, err error) {
	v := &viewer{
		cfg:       cfg,
		log:       log.Named("viewer"),
		cam:       camera.NewOrbitCamera(),
		shots:     debug.NewScreenshotCapture("screenshots", "terrain"),
		wireframe: cfg.Terrain.Wireframe,
		showStats: cfg.Viewer.ShowStats,
	}
	defer func() {
		if err != nil {
			v.Close()
		}
	}()

	if cfg.Graphics.Headless {
		v.device = gpu.NewNullDevice()
	} else {
		v.win, err = window.New(window.Config{
			Title:      windowTitle,
			Samples:    cfg.Graphics.MSAA,
			Width:      cfg.Graphics.Width,
			Height:     cfg.Graphics.Height,
			Fullscreen: cfg.Graphics.Fullscreen,
			VSync:      cfg.Graphics.VSync,
		}, log)
		if err != nil {
			return nil, err
		}
		v.gl, err = glgpu.New(log)
		if err != nil {
			return nil, err
		}
		v.gl.Viewport(v.win.Size())
		v.device = v.gl
		v.input = input.New()
		v.ui, err = ui2d.New(v.win.Size())
		if err != nil {
			return nil, fmt.Errorf("creating overlay: %w", err)
		}
	}

	v.terrain, err = pclod.New(cfg.Terrain, log, v.device)
	if err != nil {
		return nil, err
	}
	err = v.terrain.Load(pclod.Paths{
		Header:      cfg.Data.Header,
		Manifest:    cfg.DataPath(cfg.Data.Manifest),
		MaterialDir: cfg.DataPath(cfg.Data.MaterialDir),
		ColormapDir: cfg.DataPath(cfg.Data.ColormapDir),
	})
	if err != nil {
		return nil, err
	}

	v.cam.Distance = cfg.Viewer.Distance
	v.cam.SetCenter(mgl32.Vec3(cfg.Viewer.Start))
	v.terrain.SetCamera(v.cam)

	v.sun = lighting.NewSun(cfg.Viewer.SunLongitude, cfg.Viewer.SunLatitude, mgl32.Vec3{1, 0.95, 0.85})
	v.terrain.AddLight(v.sun)

	if err = v.terrain.Init(v.cam.Position()); err != nil {
		return nil, fmt.Errorf("initializing terrain: %w", err)
	}
	v.cam.FollowGround(v.terrain.HeightAt)

	v.log.Info("terrain ready",
		zap.String("header", cfg.Data.Header),
		zap.Stringer("terrain", v.terrain.ID()),
		zap.Bool("headless", cfg.Graphics.Headless),
	)
	return v, nil
}

// Run drives the terrain until the window closes, the context is done or
// the configured number of frames has been drawn.
func (v *viewer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if addr := v.cfg.Metrics.Listen; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux()}
		g.Go(func() error {
			v.log.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			return srv.Shutdown(shutdown)
		})
	}

	if err := v.terrain.Run(ctx); err != nil {
		cancel()
		return errors.Join(err, g.Wait())
	}

	v.frameLoop(ctx)
	if err := v.terrain.Zones().Stop(); err != nil {
		v.log.Warn("refresh goroutine stopped with error", zap.Error(err))
	}
	cancel()
	return g.Wait()
}

// frameLoop runs on the main thread, which owns the GL context.
func (v *viewer) frameLoop(ctx context.Context) {
	var limiter *rate.Limiter
	switch {
	case v.cfg.Graphics.Headless:
		limiter = rate.NewLimiter(headlessFPS, 1)
	case v.cfg.Graphics.FPSLimit > 0:
		limiter = rate.NewLimiter(rate.Limit(v.cfg.Graphics.FPSLimit), 1)
	}

	statsEvery := time.NewTicker(time.Second)
	defer statsEvery.Stop()

	last := time.Now()
	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		} else if ctx.Err() != nil {
			return
		}

		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		if v.handleInput(dt) {
			return
		}
		if v.cfg.Graphics.Headless {
			v.orbit(dt)
		}

		v.terrain.Update()
		v.cam.FollowGround(v.terrain.HeightAt)
		v.draw()

		v.frames++
		if n := v.cfg.Viewer.Frames; n > 0 && v.frames >= n {
			v.logStats()
			return
		}

		select {
		case <-statsEvery.C:
			v.updateTitle()
			if v.win == nil && v.showStats {
				v.logStats()
				v.logLabels()
			}
		default:
		}
	}
}

func (v *viewer) handleInput(dt float32) (quit bool) {
	if v.input == nil {
		return false
	}
	if v.input.Update() {
		return true
	}
	for _, e := range v.input.Events() {
		switch e.Type {
		case input.EventWindowResize:
			v.gl.Viewport(v.win.Size())
			v.ui.Resize(v.win.Size())
		case input.EventMouseDrag:
			v.cam.HandleDrag(e.DeltaX, e.DeltaY)
		case input.EventMouseWheel:
			v.cam.HandleZoom(e.DeltaY)
		}
	}
	if v.input.IsKeyPressed(sdl.SCANCODE_F1) {
		v.wireframe = !v.wireframe
	}
	if v.input.IsKeyPressed(sdl.SCANCODE_P) {
		zones := v.terrain.Zones()
		zones.Pause(!zones.Paused())
		v.log.Info("terrain refresh", zap.Bool("paused", zones.Paused()))
	}
	if v.input.IsKeyPressed(sdl.SCANCODE_F3) {
		v.showStats = !v.showStats
	}
	if v.input.IsKeyPressed(sdl.SCANCODE_F12) {
		v.shotNext = true
	}

	forward, right, up := v.input.Movement()
	if forward != 0 || right != 0 || up != 0 {
		scale := dt * 60
		v.cam.HandleMovement(forward*scale, right*scale, up*scale)
	}
	return false
}

// orbit turns the camera slowly so headless runs stream zones in and out.
func (v *viewer) orbit(dt float32) {
	v.cam.RotationY += 0.2 * dt
	v.cam.HandleMovement(dt*2, 0, 0)
}

func (v *viewer) draw() {
	aspect := float32(1)
	if v.win != nil {
		aspect = v.win.Aspect()
	}
	v.device.BeginFrame(gpu.FrameState{
		ViewProj:  v.cam.ViewProjection(aspect),
		CameraPos: v.cam.Position(),
		Wireframe: v.wireframe,
	})
	v.terrain.Draw()
	if v.win == nil {
		return
	}
	v.drawOverlay(aspect)
	if v.shotNext {
		v.shotNext = false
		w, h := v.win.Size()
		name, err := v.shots.CaptureFromPixels(v.gl.ReadPixels(w, h), w, h)
		if err != nil {
			v.log.Warn("screenshot failed", zap.Error(err))
		} else {
			v.log.Info("screenshot saved", zap.String("file", name))
		}
	}
	v.win.SwapBuffers()
}

// updateTitle shows frames per second and zone counts, once per stats tick.
func (v *viewer) updateTitle() {
	v.fps = v.frames - v.tickFrames
	v.tickFrames = v.frames
	if v.win == nil {
		return
	}
	zones := v.terrain.Zones()
	v.win.SetTitle(fmt.Sprintf("%s - %d fps, %d/%d zones, %d renderers",
		windowTitle, v.fps, len(zones.VisibleZones()), zones.LoadedZones(), zones.Renderers().Count()))
}

// drawOverlay draws the zone renderer labels and, when enabled, the stats panel.
func (v *viewer) drawOverlay(aspect float32) {
	width, height := v.win.Size()
	v.ui.Begin()
	for _, l := range v.screenLabels(aspect, width, height) {
		v.ui.DrawLabel(float32(l.X), float32(l.Y), l.Text, 1, ui2d.ColorLabel.Darken(l.Depth*0.6))
	}
	if v.showStats {
		zones := v.terrain.Zones()
		text := statsText(v.fps, len(zones.VisibleZones()), zones.LoadedZones(), zones.Renderers().Count(),
			v.terrain.Stats(), zones.Paused())
		w, h := v.ui.MeasureText(text, 1)
		v.ui.DrawPanel(8, 8, w+16, h+16, ui2d.ColorPanelBg, ui2d.ColorPanelRim)
		v.ui.DrawText(16, 16, text, 1, ui2d.ColorText)
	}
	v.ui.End()
}

// statsText renders the stats panel lines.
func statsText(fps, visible, loaded, renderers int, s pclod.TextureStats, paused bool) string {
	text := fmt.Sprintf("%d fps\nzones %d visible, %d loaded\nrenderers %d\nmaterials %d/%d\ncolormaps %d lightmaps %d\nlights %d",
		fps, visible, loaded, renderers,
		s.LoadedMaterials, s.Materials, s.Colormaps, s.Lightmaps, s.Lights)
	if paused {
		text += "\nrefresh paused"
	}
	return text
}

// screenLabels projects the zone renderer labels when debug labels are on.
func (v *viewer) screenLabels(aspect float32, width, height int) []debug.ScreenLabel {
	labels := v.terrain.Zones().DebugLabels()
	if len(labels) == 0 {
		return nil
	}
	texts := make([]string, len(labels))
	positions := make([]mgl32.Vec3, len(labels))
	for i, l := range labels {
		texts[i] = l.Text
		positions[i] = l.Position
	}
	return debug.ProjectLabels(texts, positions, v.cam.ViewProjection(aspect), width, height)
}

// logLabels prints the projected labels of a headless run.
func (v *viewer) logLabels() {
	for _, l := range v.screenLabels(1, v.cfg.Graphics.Width, v.cfg.Graphics.Height) {
		v.log.Debug("zone label",
			zap.String("label", l.Text),
			zap.Int("x", l.X),
			zap.Int("y", l.Y),
			zap.Float32("depth", l.Depth),
		)
	}
}

func (v *viewer) logStats() {
	s := v.terrain.Stats()
	zones := v.terrain.Zones()
	v.log.Info("terrain stats",
		zap.Int("frames", v.frames),
		zap.Int("zones_loaded", zones.LoadedZones()),
		zap.Int("zones_visible", len(zones.VisibleZones())),
		zap.Int("renderers", zones.Renderers().Count()),
		zap.Int("materials", s.Materials),
		zap.Int("materials_loaded", s.LoadedMaterials),
		zap.Int("colormaps", s.Colormaps),
		zap.Int("lightmaps", s.Lightmaps),
		zap.Int("lights", s.Lights),
		zap.Int("light_infos", s.LightInfos),
	)
}

// Close tears everything down in reverse creation order.
func (v *viewer) Close() error {
	var err error
	if v.terrain != nil {
		if v.sun != nil {
			v.terrain.RemoveLight(v.sun)
		}
		err = v.terrain.Close()
		v.terrain = nil
	}
	if v.ui != nil {
		v.ui.Close()
		v.ui = nil
	}
	if v.gl != nil {
		v.gl.Close()
		v.gl = nil
	}
	if v.win != nil {
		v.win.Close()
		v.win = nil
	}
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
