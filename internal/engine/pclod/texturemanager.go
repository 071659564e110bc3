package pclod

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"slices"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/engine/terrain"
	"github.com/Faultbox/pclod/internal/engine/texture"
	"github.com/Faultbox/pclod/pkg/formats"
)

// TextureManager owns the materials, colormaps, lightmaps and lights of a
// terrain. Resources are produced on the refresh goroutine and uploaded on
// the main goroutine. The last release of a resource starts a deferred
// chain: the unused handler on the refresh goroutine unregisters it, then
// the deletion handler on the main goroutine frees its texture.
//
// Maps are written only by the refresh goroutine, under mu. Fields of the
// resources marked as refresh state are not locked.
type TextureManager struct {
	cfg     *Configs
	log     *zap.Logger
	device  gpu.Device
	bus     *eventBus
	metrics *terrainMetrics

	// zoneAt resolves grid cells for shadow continuity.
	zoneAt func(x, y int) uint32
	// releaseZone drops the zone reference held by a colormap or lightmap.
	releaseZone func(z *TopZone, c Counter)

	mu          sync.RWMutex
	materials   map[uint32]*Material
	colormaps   map[uint32]*Colormap
	lightmaps   map[uint32]*Lightmap
	lights      map[weak.Pointer[lighting.Light]]*Light
	colormapDir string
	observer    func(Signal)

	cellX, cellY int
	nextInstance uint64
	nextLight    uint64

	unknownMaterial rate.Sometimes
}

// TextureStats is a snapshot of the manager contents.
type TextureStats struct {
	Materials       int
	LoadedMaterials int
	Colormaps       int
	Lightmaps       int
	Lights          int
	LightInfos      int
}

func newTextureManager(cfg *Configs, log *zap.Logger, device gpu.Device, bus *eventBus, metrics *terrainMetrics) *TextureManager {
	tm := &TextureManager{
		cfg:             cfg,
		log:             log,
		device:          device,
		bus:             bus,
		metrics:         metrics,
		materials:       make(map[uint32]*Material),
		colormaps:       make(map[uint32]*Colormap),
		lightmaps:       make(map[uint32]*Lightmap),
		lights:          make(map[weak.Pointer[lighting.Light]]*Light),
		unknownMaterial: rate.Sometimes{Interval: 5 * time.Second},
	}
	tm.releaseZone = func(z *TopZone, c Counter) { z.Release(c) }
	tm.materials[NullMaterial] = newMaterial(NullMaterial, "", tm.newInstance())
	return tm
}

func (tm *TextureManager) newInstance() uint64 {
	tm.nextInstance++
	return tm.nextInstance
}

// Load registers the materials of a manifest. Paths are resolved against matDir.
func (tm *TextureManager) Load(manifest io.Reader, matDir string) error {
	entries, err := formats.ParseTCLM(manifest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	// Nothing is registered unless the whole manifest is accepted.
	for _, e := range entries {
		if _, ok := tm.materials[e.ID]; ok {
			return fmt.Errorf("%w: material %d registered twice", ErrInvalidFormat, e.ID)
		}
	}
	for _, e := range entries {
		path := filepath.Join(matDir, filepath.FromSlash(e.Path))
		tm.materials[e.ID] = newMaterial(e.ID, path, tm.newInstance())
	}
	tm.log.Info("materials registered", zap.Int("count", len(entries)), zap.String("dir", matDir))
	return nil
}

// SetColormapDir sets the directory searched for colormap images.
func (tm *TextureManager) SetColormapDir(dir string) {
	tm.mu.Lock()
	tm.colormapDir = dir
	tm.mu.Unlock()
}

// SetSignalObserver installs a callback invoked for every unused and
// deletion signal as its handler runs.
func (tm *TextureManager) SetSignalObserver(fn func(Signal)) {
	tm.mu.Lock()
	tm.observer = fn
	tm.mu.Unlock()
}

func (tm *TextureManager) notify(s Signal) {
	tm.mu.RLock()
	fn := tm.observer
	tm.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// RtLoadMaterial takes a reference on a material, decoding its image if it
// was unloaded. It reports false for ids missing from the manifest.
func (tm *TextureManager) RtLoadMaterial(id uint32) bool {
	tm.mu.Lock()
	m, ok := tm.materials[id]
	if !ok {
		tm.mu.Unlock()
		tm.unknownMaterial.Do(func() {
			tm.log.Warn("zone references an unknown material", zap.Uint32("material", id))
		})
		return false
	}
	m.use()
	decoded := m.decoded
	tm.mu.Unlock()
	if decoded {
		return true
	}

	img, err := decodeMaterial(m.path)
	if err != nil {
		tm.log.Warn("decoding material, using the null material",
			zap.Uint32("material", id), zap.String("path", m.path), zap.Error(err))
		img = texture.Solid(4, 4, nullMaterialColor)
	}
	avg := texture.AverageColor(img)

	tm.mu.Lock()
	m.pending = img
	m.average = avg
	m.decoded = true
	tm.mu.Unlock()
	return true
}

// ReleaseMaterial drops a material reference.
func (tm *TextureManager) ReleaseMaterial(id uint32) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	m, ok := tm.materials[id]
	if !ok {
		panic(fmt.Sprintf("pclod: release of unknown material %d", id))
	}
	if m.release() {
		tm.bus.toRefresh.Post(func() { tm.onMaterialUnused(m) })
	}
}

func (tm *TextureManager) onMaterialUnused(m *Material) {
	tm.notify(m.signal(SignalUnused))

	tm.mu.Lock()
	if !m.unusedStill() {
		tm.mu.Unlock()
		return
	}
	m.state = StateUnloaded
	m.decoded = false
	m.pending = nil
	tm.mu.Unlock()

	tm.bus.toMain.Post(func() { tm.onMaterialDeletion(m) })
}

func (tm *TextureManager) onMaterialDeletion(m *Material) {
	tm.mu.Lock()
	if m.state != StateUnloaded {
		// Revived since the unused handler ran, the texture stays.
		tm.mu.Unlock()
		return
	}
	tex := m.texture
	m.texture = 0
	tm.mu.Unlock()

	tm.deleteTexture(KindMaterial, tex)
	tm.notify(m.signal(SignalDeletion))
}

// RtLoadColormap takes a reference on the colormap of a zone, creating it
// if needed. A new colormap holds a material use on the zone.
func (tm *TextureManager) RtLoadColormap(z *TopZone) {
	tm.mu.Lock()
	c, ok := tm.colormaps[z.ID()]
	if !ok {
		c = newColormap(z, tm.newInstance(), tm.lodFor(z, tm.cfg.ColormapLodCurve))
		tm.colormaps[z.ID()] = c
	}
	c.use()
	tm.mu.Unlock()
	if !ok {
		z.Use(CounterMaterial)
	}
}

// ReleaseColormap drops a colormap reference.
func (tm *TextureManager) ReleaseColormap(zoneID uint32) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	c, ok := tm.colormaps[zoneID]
	if !ok {
		panic(fmt.Sprintf("pclod: release of unknown colormap %d", zoneID))
	}
	if c.release() {
		tm.bus.toRefresh.Post(func() { tm.onColormapUnused(c) })
	}
}

func (tm *TextureManager) onColormapUnused(c *Colormap) {
	tm.notify(c.signal(SignalUnused))

	tm.mu.Lock()
	if !c.unusedStill() || tm.colormaps[c.id] != c {
		tm.mu.Unlock()
		return
	}
	delete(tm.colormaps, c.id)
	c.state = StateRemoved
	c.pending = nil
	tm.mu.Unlock()

	tm.releaseZone(c.zone, CounterMaterial)
	tm.bus.toMain.Post(func() { tm.onColormapDeletion(c) })
}

func (tm *TextureManager) onColormapDeletion(c *Colormap) {
	tm.mu.Lock()
	tex := c.texture
	c.texture = 0
	c.state = StateDestroyed
	tm.mu.Unlock()

	tm.deleteTexture(KindColormap, tex)
	tm.notify(c.signal(SignalDeletion))
}

// RtLoadLightmap takes a reference on the lightmap of a zone, creating it
// if needed. A new lightmap holds a heightmap use on the zone and changes
// the shadow neighbourhood, so directional lights are invalidated.
func (tm *TextureManager) RtLoadLightmap(z *TopZone) {
	tm.mu.Lock()
	lm, ok := tm.lightmaps[z.ID()]
	if !ok {
		lm = newLightmap(z, tm.newInstance(), tm.lodFor(z, tm.cfg.LightmapLodCurve))
		tm.lightmaps[z.ID()] = lm
	}
	lm.use()
	tm.mu.Unlock()
	if !ok {
		z.Use(CounterHeightmap)
		tm.invalidateDirectional()
	}
}

// ReleaseLightmap drops a lightmap reference.
func (tm *TextureManager) ReleaseLightmap(zoneID uint32) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	lm, ok := tm.lightmaps[zoneID]
	if !ok {
		panic(fmt.Sprintf("pclod: release of unknown lightmap %d", zoneID))
	}
	if lm.release() {
		tm.bus.toRefresh.Post(func() { tm.onLightmapUnused(lm) })
	}
}

func (tm *TextureManager) onLightmapUnused(lm *Lightmap) {
	tm.notify(lm.signal(SignalUnused))

	tm.mu.Lock()
	if !lm.unusedStill() || tm.lightmaps[lm.id] != lm {
		tm.mu.Unlock()
		return
	}
	delete(tm.lightmaps, lm.id)
	lm.state = StateRemoved
	lm.pending = nil
	tm.mu.Unlock()

	lm.infos = nil
	tm.invalidateDirectional()
	tm.releaseZone(lm.zone, CounterHeightmap)
	tm.bus.toMain.Post(func() { tm.onLightmapDeletion(lm) })
}

func (tm *TextureManager) onLightmapDeletion(lm *Lightmap) {
	tm.mu.Lock()
	tex := lm.texture
	lm.texture = 0
	lm.state = StateDestroyed
	tm.mu.Unlock()

	tm.deleteTexture(KindLightmap, tex)
	tm.notify(lm.signal(SignalDeletion))
}

// AddLight starts tracking an engine light. The terrain does not keep the
// light alive: once collected it is dropped on the next update.
func (tm *TextureManager) AddLight(l *lighting.Light) *Light {
	key := weak.Make(l)
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.lights[key]; ok {
		panic("pclod: light added twice")
	}
	tm.nextLight++
	pl := newLight(tm.nextLight, l)
	tm.lights[key] = pl
	return pl
}

// RemoveLight stops tracking an engine light and reports whether it was tracked.
func (tm *TextureManager) RemoveLight(l *lighting.Light) bool {
	key := weak.Make(l)
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.lights[key]; !ok {
		return false
	}
	delete(tm.lights, key)
	return true
}

func (tm *TextureManager) invalidateDirectional() {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, l := range tm.lights {
		if l.valid && l.snapshot.Kind == lighting.Directional {
			l.Invalidate()
		}
	}
}

// lodFor reads a lod curve at the distance between a zone and the camera cell.
func (tm *TextureManager) lodFor(z *TopZone, curve []int) int {
	gx, gy, ext := z.Grid()
	return curveLevel(curve, chebyshev(gx, gy, ext, tm.cellX, tm.cellY))
}

// OnQuadtreeMoved recomputes colormap and lightmap levels after the camera
// entered another grid cell.
func (tm *TextureManager) OnQuadtreeMoved(cellX, cellY int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.cellX, tm.cellY = cellX, cellY
	for _, c := range tm.colormaps {
		c.lod = tm.lodFor(c.zone, tm.cfg.ColormapLodCurve)
	}
	for _, lm := range tm.lightmaps {
		lm.lod = tm.lodFor(lm.zone, tm.cfg.LightmapLodCurve)
	}
}

// RtUpdate refreshes lights, shadows, lightmaps and colormaps. It runs on
// the refresh goroutine; results wait in pending images for MtUpdate.
func (tm *TextureManager) RtUpdate() {
	lights := tm.liveLights()
	for _, l := range lights {
		l.Update(tm.cfg.LightMinCosAngle)
	}
	if !tm.cfg.Lighting {
		lights = nil
	}

	active := make(map[uint64]bool, len(lights))
	for _, l := range lights {
		active[l.id] = true
	}
	lightmaps := tm.sortedLightmaps()
	for _, lm := range lightmaps {
		for id := range lm.infos {
			if !active[id] {
				delete(lm.infos, id)
				lm.dirty = true
			}
		}
		for _, l := range lights {
			if lm.infos[l.id] == nil {
				lm.infos[l.id] = newLightInfo(l)
			}
		}
	}

	if tm.cfg.SelfShadowing {
		for _, l := range lights {
			tm.updateShadows(l)
		}
	}

	for _, lm := range lightmaps {
		if !lm.needsUpdate() {
			continue
		}
		img, ok := generateLightmap(lm, tm.cfg)
		if !ok {
			tm.log.Debug("lightmap inputs not ready", zap.Uint32("zone", lm.id))
			continue
		}
		for _, info := range lm.infos {
			info.frameIndex = info.light.frameIndex
		}
		lm.generatedLod = lm.lod
		lm.dirty = false

		tm.mu.Lock()
		lm.pending = img
		tm.mu.Unlock()
	}

	for _, c := range tm.sortedColormaps() {
		if c.generatedLod == c.lod {
			continue
		}
		img, ok := tm.buildColormap(c)
		if !ok {
			continue
		}
		c.generatedLod = c.lod

		tm.mu.Lock()
		c.pending = img
		tm.mu.Unlock()
	}
}

// liveLights drops collected lights and returns the others by id.
func (tm *TextureManager) liveLights() []*Light {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	lights := make([]*Light, 0, len(tm.lights))
	for key, l := range tm.lights {
		if !l.Alive() {
			delete(tm.lights, key)
			tm.log.Debug("light collected", zap.Uint64("light", l.id))
			continue
		}
		lights = append(lights, l)
	}
	slices.SortFunc(lights, func(a, b *Light) int { return cmp.Compare(a.id, b.id) })
	return lights
}

func (tm *TextureManager) sortedLightmaps() []*Lightmap {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]*Lightmap, 0, len(tm.lightmaps))
	for _, lm := range tm.lightmaps {
		out = append(out, lm)
	}
	slices.SortFunc(out, func(a, b *Lightmap) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (tm *TextureManager) sortedColormaps() []*Colormap {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]*Colormap, 0, len(tm.colormaps))
	for _, c := range tm.colormaps {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Colormap) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (tm *TextureManager) buildColormap(c *Colormap) (*image.RGBA, bool) {
	if !c.sourceRead {
		tm.mu.RLock()
		dir := tm.colormapDir
		tm.mu.RUnlock()
		src, err := readColormapSource(dir, c.id)
		if err != nil {
			tm.log.Warn("colormap file unusable, generating from materials",
				zap.Uint32("zone", c.id), zap.Error(err))
		}
		c.source = src
		c.sourceRead = true
	}
	if c.source != nil {
		res := textureResolution(c.zone.Size(), c.lod)
		return texture.Resize(c.source, res, res), true
	}
	return generateColormap(c.zone, c.lod, tm.materialAverage)
}

func (tm *TextureManager) materialAverage(id uint32) color.RGBA {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if m, ok := tm.materials[id]; ok && m.decoded {
		return m.average
	}
	return nullMaterialColor
}

type textureUpload struct {
	kind ResourceKind
	img  *image.RGBA
	slot *gpu.TextureID
	id   gpu.TextureID
	opts gpu.TextureOptions
}

// MtUpdate uploads every pending image. It runs on the main goroutine.
func (tm *TextureManager) MtUpdate() {
	var uploads []textureUpload
	tm.mu.Lock()
	for _, m := range tm.materials {
		if m.pending != nil {
			uploads = append(uploads, textureUpload{KindMaterial, m.pending, &m.texture, m.texture, gpu.TextureOptions{Repeat: true, Mipmaps: true}})
			m.pending = nil
		}
	}
	for _, c := range tm.colormaps {
		if c.pending != nil {
			uploads = append(uploads, textureUpload{KindColormap, c.pending, &c.texture, c.texture, gpu.TextureOptions{}})
			c.pending = nil
		}
	}
	for _, lm := range tm.lightmaps {
		if lm.pending != nil {
			uploads = append(uploads, textureUpload{KindLightmap, lm.pending, &lm.texture, lm.texture, gpu.TextureOptions{}})
			lm.pending = nil
		}
	}
	tm.mu.Unlock()

	for i := range uploads {
		u := &uploads[i]
		if u.id != 0 {
			if err := tm.device.UpdateTexture(u.id, u.img); err == nil {
				continue
			}
			tm.deleteTexture(u.kind, u.id)
		}
		id, err := tm.device.CreateTexture(u.img, u.opts)
		if err != nil {
			tm.log.Warn("texture upload failed", zap.Stringer("kind", u.kind), zap.Error(err))
			id = 0
		} else {
			tm.metrics.textureCreated(u.kind)
		}
		u.id = id
	}

	tm.mu.Lock()
	for _, u := range uploads {
		*u.slot = u.id
	}
	tm.mu.Unlock()
}

func (tm *TextureManager) deleteTexture(kind ResourceKind, id gpu.TextureID) {
	if id == 0 {
		return
	}
	tm.device.DeleteTexture(id)
	tm.metrics.textureDeleted(kind)
}

// drawCall resolves the textures of a zone renderer. Missing textures stay
// zero and the device falls back to flat shading.
func (tm *TextureManager) drawCall(zoneID uint32, groups []terrain.MaterialGroup, buf []gpu.TextureID) gpu.DrawCall {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	var call gpu.DrawCall
	if c, ok := tm.colormaps[zoneID]; ok {
		call.Colormap = c.texture
	}
	if lm, ok := tm.lightmaps[zoneID]; ok {
		call.Lightmap = lm.texture
	}
	for i, g := range groups {
		buf[i] = 0
		if m, ok := tm.materials[g.MaterialID]; ok {
			buf[i] = m.texture
		}
	}
	call.Materials = buf
	return call
}

// MaterialState returns the lifecycle state of a registered material.
func (tm *TextureManager) MaterialState(id uint32) (ResourceState, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	m, ok := tm.materials[id]
	if !ok {
		return 0, false
	}
	return m.state, true
}

// Stats returns the current resource counts.
func (tm *TextureManager) Stats() TextureStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	s := TextureStats{
		Materials: len(tm.materials),
		Colormaps: len(tm.colormaps),
		Lightmaps: len(tm.lightmaps),
		Lights:    len(tm.lights),
	}
	for _, m := range tm.materials {
		if m.state == StateLoaded {
			s.LoadedMaterials++
		}
	}
	for _, lm := range tm.lightmaps {
		s.LightInfos += len(lm.infos)
	}
	return s
}

// Destroy runs every pending signal, then frees all remaining textures.
// The refresh goroutine must be stopped.
func (tm *TextureManager) Destroy() {
	tm.bus.drain()

	type leftover struct {
		kind ResourceKind
		id   gpu.TextureID
	}
	var textures []leftover
	tm.mu.Lock()
	for _, m := range tm.materials {
		textures = append(textures, leftover{KindMaterial, m.texture})
		m.texture = 0
		m.state = StateUnloaded
	}
	for _, c := range tm.colormaps {
		textures = append(textures, leftover{KindColormap, c.texture})
		c.state = StateDestroyed
	}
	for _, lm := range tm.lightmaps {
		textures = append(textures, leftover{KindLightmap, lm.texture})
		lm.state = StateDestroyed
	}
	clear(tm.colormaps)
	clear(tm.lightmaps)
	clear(tm.lights)
	tm.mu.Unlock()

	for _, t := range textures {
		tm.deleteTexture(t.kind, t.id)
	}
}
