package pclod

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// refresh is one pass of the refresh goroutine. In synchronous mode the
// main goroutine runs it from Update.
func (zm *ZoneManager) refresh() {
	start := time.Now()
	zm.bus.toRefresh.Pump()

	pos, ok := zm.cameraSnapshot()
	if !ok {
		zm.log.Debug("camera position unknown, refresh skipped")
		return
	}

	cx, cy := zm.index.cellOf(pos)
	if zm.window.moveTo(cx, cy, zm.index.zoneAt, zm.acquireZone, zm.releaseZone) {
		zm.textures.OnQuadtreeMoved(cx, cy)
		zm.log.Debug("visible window moved", zap.Int("x", cx), zap.Int("y", cy))
	}

	for _, id := range zm.window.zoneIDs() {
		zm.mu.RLock()
		z := zm.zones[id]
		zm.mu.RUnlock()
		if z == nil {
			continue
		}
		// A zone whose payload failed to load is retried while visible.
		if !z.textured && z.Count(CounterVisibility) > 0 {
			zm.showZone(z)
		}
		if z.textured {
			z.SelectLod(pos, zm)
		}
	}

	zm.textures.RtUpdate()

	elapsed := time.Since(start)
	period := zm.cfg.RefreshPeriod()
	slipped := zm.cfg.Asynchronous && elapsed > period*105/100
	if slipped {
		zm.log.Warn("refresh overran its period",
			zap.Duration("elapsed", elapsed),
			zap.Duration("period", period))
	}
	zm.metrics.refreshed(elapsed.Seconds(), slipped)
}

// acquireZone takes a visibility use for a window slot, showing the zone
// when it is the first one.
func (zm *ZoneManager) acquireZone(id uint32) {
	zm.mu.Lock()
	z, ok := zm.zones[id]
	if !ok {
		e, found := zm.index.entry(id)
		if !found {
			zm.mu.Unlock()
			zm.log.Error("grid references a zone missing from the table", zap.Uint32("zone", id))
			return
		}
		z = newTopZone(e, zm.cfg)
		zm.zones[id] = z
	}
	zm.mu.Unlock()

	if z.Use(CounterVisibility) == 1 {
		zm.showZone(z)
	}
}

// releaseZone drops the visibility use of a window slot.
func (zm *ZoneManager) releaseZone(id uint32) {
	zm.mu.RLock()
	z, ok := zm.zones[id]
	zm.mu.RUnlock()
	if !ok {
		panic("pclod: release of a zone that is not tracked")
	}
	if z.Release(CounterVisibility) == 0 {
		zm.hideZone(z)
	}
	zm.checkUnused(z)
}

func (zm *ZoneManager) showZone(z *TopZone) {
	if !z.DataLoaded() {
		if err := z.Load(zm.reader); err != nil {
			if !z.loadFailed {
				zm.log.Error("zone load failed, retrying while visible", zap.Uint32("zone", z.ID()), zap.Error(err))
			}
			z.loadFailed = true
			return
		}
		zm.metrics.zoneLoaded()
		if z.loadFailed {
			zm.log.Info("zone loaded after retry", zap.Uint32("zone", z.ID()))
		} else {
			zm.log.Debug("zone loaded", zap.Uint32("zone", z.ID()))
		}
		z.loadFailed = false
	}

	for _, id := range z.MaterialIDs() {
		zm.textures.RtLoadMaterial(id)
	}
	zm.textures.RtLoadColormap(z)
	zm.textures.RtLoadLightmap(z)
	z.textured = true

	ev := ZoneEvent{Kind: ZoneVisible, ZoneID: z.ID(), GridX: z.gridX, GridY: z.gridY}
	zm.bus.toMain.Post(func() { zm.deliver(ev) })
}

func (zm *ZoneManager) hideZone(z *TopZone) {
	if !z.textured {
		return
	}
	z.ReleaseRenderers(zm)
	for _, id := range z.MaterialIDs() {
		if _, ok := zm.textures.MaterialState(id); ok {
			zm.textures.ReleaseMaterial(id)
		}
	}
	zm.textures.ReleaseColormap(z.ID())
	zm.textures.ReleaseLightmap(z.ID())
	z.textured = false

	ev := ZoneEvent{Kind: ZoneHidden, ZoneID: z.ID(), GridX: z.gridX, GridY: z.gridY}
	zm.bus.toMain.Post(func() { zm.deliver(ev) })
}

// releaseZoneCounter is the texture manager hook for colormap and lightmap removal.
func (zm *ZoneManager) releaseZoneCounter(z *TopZone, c Counter) {
	z.Release(c)
	zm.checkUnused(z)
}

func (zm *ZoneManager) checkUnused(z *TopZone) {
	if z.Unused() {
		zm.bus.toRefresh.Post(func() { zm.onZoneUnused(z) })
	}
}

// onZoneUnused unloads a zone nobody revived since it became unused.
func (zm *ZoneManager) onZoneUnused(z *TopZone) {
	zm.mu.Lock()
	if !z.Unused() || zm.zones[z.ID()] != z {
		zm.mu.Unlock()
		return
	}
	delete(zm.zones, z.ID())
	zm.mu.Unlock()

	if z.DataLoaded() {
		z.Unload()
		zm.metrics.zoneUnloaded()
		zm.log.Debug("zone unloaded", zap.Uint32("zone", z.ID()))
	}
}

func (zm *ZoneManager) env() *renderEnv {
	return &zm.rendering
}

// attach hands a new renderer to the main goroutine.
func (zm *ZoneManager) attach(r *ZoneRenderer) {
	zm.bus.toMain.Post(func() { zm.render.AddObject(r) })
}

// detach retires a renderer on the main goroutine.
func (zm *ZoneManager) detach(r *ZoneRenderer) {
	zm.bus.toMain.Post(func() {
		zm.render.RemoveObject(r)
		r.Clean()
	})
}

// Run starts the refresh goroutine. It does nothing in synchronous mode.
func (zm *ZoneManager) Run(ctx context.Context) error {
	if zm.index == nil {
		return ErrNotLoaded
	}
	if !zm.cfg.Asynchronous {
		zm.log.Info("synchronous refresh, no refresh goroutine started")
		return nil
	}

	zm.runMu.Lock()
	defer zm.runMu.Unlock()
	if zm.running {
		return errors.New("pclod: refresh goroutine already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return zm.loop(ctx) })
	zm.cancel = cancel
	zm.group = g
	zm.running = true
	zm.log.Info("refresh goroutine started", zap.Float64("frequency", zm.cfg.RefreshFrequency))
	return nil
}

func (zm *ZoneManager) loop(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(zm.cfg.RefreshFrequency), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		zm.pause.Lock()
		if ctx.Err() != nil {
			zm.pause.Unlock()
			return nil
		}
		zm.refresh()
		zm.pause.Unlock()
	}
}

// Stop ends the refresh goroutine and waits for the current pass.
func (zm *ZoneManager) Stop() error {
	zm.runMu.Lock()
	defer zm.runMu.Unlock()
	if !zm.running {
		return nil
	}
	zm.cancel()
	zm.Pause(false)
	err := zm.group.Wait()
	zm.running = false
	zm.cancel = nil
	zm.group = nil
	zm.log.Info("refresh goroutine stopped")
	return err
}

// Pause holds the refresh goroutine before its next pass; a pass in
// progress runs to completion. Pause(false) lets it continue. It is only
// called from the main goroutine.
func (zm *ZoneManager) Pause(on bool) {
	if on == zm.paused {
		return
	}
	if on {
		zm.pause.Lock()
	} else {
		zm.pause.Unlock()
	}
	zm.paused = on
}

// Paused reports whether the refresh pass is held.
func (zm *ZoneManager) Paused() bool {
	return zm.paused
}
