package pclod

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/engine/terrain"
	"github.com/Faultbox/pclod/internal/engine/texture"
	"github.com/Faultbox/pclod/pkg/formats"
)

func newTestTextureManager(t *testing.T, cfg *Configs) (*TextureManager, *gpu.NullDevice) {
	t.Helper()
	dev := gpu.NewNullDevice()
	return newTextureManager(cfg, zaptest.NewLogger(t), dev, newEventBus(), nil), dev
}

// writeSolidPNG writes a 4×4 image of one color.
func writeSolidPNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, texture.Solid(4, 4, c)))
}

func manifest(t *testing.T, entries ...formats.TCLMEntry) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, formats.WriteTCLM(buf, entries))
	return buf
}

func TestTextureManager_LoadManifest(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)

	err := tm.Load(manifest(t,
		formats.TCLMEntry{ID: 1, Path: "grass.png"},
		formats.TCLMEntry{ID: 2, Path: "rock/granite.tga"},
	), "/data/materials")
	require.NoError(t, err)

	require.Equal(t, 3, tm.Stats().Materials)
	state, ok := tm.MaterialState(NullMaterial)
	require.True(t, ok)
	require.Equal(t, StateUnloaded, state)
	require.Equal(t, filepath.Join("/data/materials", "rock", "granite.tga"), tm.materials[2].Path())

	_, ok = tm.MaterialState(3)
	require.False(t, ok)
}

func TestTextureManager_LoadManifestRejectsDuplicates(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)

	err := tm.Load(manifest(t,
		formats.TCLMEntry{ID: 4, Path: "a.png"},
		formats.TCLMEntry{ID: 4, Path: "b.png"},
	), "")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestTextureManager_LightsWithoutLightmaps(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)

	sun := lighting.NewDirectional(mgl32.Vec3{1, -1, 0}, mgl32.Vec3{1, 1, 1})
	moon := lighting.NewDirectional(mgl32.Vec3{-1, -1, 0}, mgl32.Vec3{0.2, 0.2, 0.3})
	tm.AddLight(sun)
	tm.AddLight(moon)
	require.Panics(t, func() { tm.AddLight(sun) })

	tm.RtUpdate()
	stats := tm.Stats()
	require.Zero(t, stats.LightInfos)
	require.Zero(t, stats.Lightmaps)
	require.Equal(t, 2, stats.Lights)

	require.True(t, tm.RemoveLight(moon))
	require.False(t, tm.RemoveLight(moon))
	require.Equal(t, 1, tm.Stats().Lights)
	runtime.KeepAlive(sun)
}

func TestTextureManager_CollectedLightIsDropped(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)

	tm.AddLight(lighting.NewPoint(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 10))
	runtime.GC()
	runtime.GC()

	tm.RtUpdate()
	require.Zero(t, tm.Stats().Lights)
}

func TestTextureManager_ReleaseThenDestroyFreesTextures(t *testing.T) {
	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadLightmap(z)
	require.Equal(t, 1, z.Count(CounterHeightmap))
	tm.RtUpdate()
	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())

	tm.ReleaseLightmap(z.ID())
	tm.Destroy()

	require.Zero(t, dev.LiveTextures())
	require.Zero(t, z.Count(CounterHeightmap))
	require.Zero(t, tm.Stats().Lightmaps)
}

func TestTextureManager_UnusedBeforeDeletion(t *testing.T) {
	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	var signals []Signal
	tm.SetSignalObserver(func(s Signal) { signals = append(signals, s) })

	tm.RtLoadColormap(z)
	tm.RtUpdate()
	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())
	instance := tm.colormaps[1].instance

	tm.ReleaseColormap(1)
	require.Empty(t, signals)

	require.Equal(t, 1, tm.bus.toRefresh.Pump())
	require.Equal(t, []Signal{{Kind: SignalUnused, Resource: KindColormap, ID: 1, Instance: instance}}, signals)
	require.Zero(t, tm.Stats().Colormaps)
	require.Zero(t, z.Count(CounterMaterial))
	require.Equal(t, 1, dev.LiveTextures())

	require.Equal(t, 1, tm.bus.toMain.Pump())
	require.Len(t, signals, 2)
	require.Equal(t, SignalDeletion, signals[1].Kind)
	require.Equal(t, instance, signals[1].Instance)
	require.Zero(t, dev.LiveTextures())
}

func TestTextureManager_ReviveBeforeUnusedHandler(t *testing.T) {
	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadColormap(z)
	tm.RtUpdate()
	tm.MtUpdate()
	c := tm.colormaps[1]

	tm.ReleaseColormap(1)
	require.Equal(t, StateUnusedPending, c.state)
	tm.RtLoadColormap(z)
	require.Equal(t, StateLoaded, c.state)

	tm.bus.drain()
	require.Same(t, c, tm.colormaps[1])
	require.Equal(t, 1, z.Count(CounterMaterial))
	require.Equal(t, 1, dev.LiveTextures())
}

func TestTextureManager_RecreatedAfterRemoval(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	var signals []Signal
	tm.SetSignalObserver(func(s Signal) { signals = append(signals, s) })

	tm.RtLoadLightmap(z)
	first := tm.lightmaps[1]
	tm.ReleaseLightmap(1)
	tm.bus.toRefresh.Pump()
	require.Equal(t, StateRemoved, first.state)

	// The deletion of the first instance is still queued.
	tm.RtLoadLightmap(z)
	second := tm.lightmaps[1]
	require.NotSame(t, first, second)
	require.NotEqual(t, first.instance, second.instance)

	tm.bus.toMain.Pump()
	require.Equal(t, StateDestroyed, first.state)
	require.Equal(t, StateLoaded, second.state)
	require.Equal(t, 1, z.Count(CounterHeightmap))

	require.Len(t, signals, 2)
	require.Equal(t, first.instance, signals[1].Instance)
}

func TestTextureManager_MaterialLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "red.png"), color.RGBA{R: 255, A: 255})

	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	require.NoError(t, tm.Load(manifest(t, formats.TCLMEntry{ID: 5, Path: "red.png"}), dir))

	require.True(t, tm.RtLoadMaterial(5))
	require.True(t, tm.RtLoadMaterial(5))
	require.False(t, tm.RtLoadMaterial(77))
	require.Equal(t, color.RGBA{R: 255, A: 255}, tm.materialAverage(5))

	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())
	require.Equal(t, 1, tm.Stats().LoadedMaterials)

	tm.ReleaseMaterial(5)
	tm.bus.drain()
	require.Equal(t, 1, dev.LiveTextures())

	tm.ReleaseMaterial(5)
	tm.bus.drain()
	state, ok := tm.MaterialState(5)
	require.True(t, ok)
	require.Equal(t, StateUnloaded, state)
	require.Zero(t, dev.LiveTextures())
	require.Equal(t, 2, tm.Stats().Materials)

	require.True(t, tm.RtLoadMaterial(5))
	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())
	require.Panics(t, func() { tm.ReleaseMaterial(77) })
}

func TestTextureManager_LoadManifestIsAllOrNothing(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)
	require.NoError(t, tm.Load(manifest(t, formats.TCLMEntry{ID: 1, Path: "grass.png"}), ""))

	err := tm.Load(manifest(t,
		formats.TCLMEntry{ID: 2, Path: "rock.png"},
		formats.TCLMEntry{ID: 1, Path: "again.png"},
	), "")
	require.ErrorIs(t, err, ErrInvalidFormat)

	require.Equal(t, 2, tm.Stats().Materials)
	_, ok := tm.MaterialState(2)
	require.False(t, ok)
	require.Equal(t, "grass.png", tm.materials[1].Path())
}

func TestTextureManager_MaterialRevivedBeforeDeletion(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "red.png"), color.RGBA{R: 255, A: 255})

	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	require.NoError(t, tm.Load(manifest(t, formats.TCLMEntry{ID: 5, Path: "red.png"}), dir))

	var signals []Signal
	tm.SetSignalObserver(func(s Signal) { signals = append(signals, s) })

	require.True(t, tm.RtLoadMaterial(5))
	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())

	tm.ReleaseMaterial(5)
	tm.bus.toRefresh.Pump()
	state, _ := tm.MaterialState(5)
	require.Equal(t, StateUnloaded, state)

	// Revived while the deletion is queued on main.
	require.True(t, tm.RtLoadMaterial(5))
	tm.bus.toMain.Pump()

	require.Len(t, signals, 1)
	require.Equal(t, SignalUnused, signals[0].Kind)
	require.Equal(t, 1, dev.LiveTextures())

	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())
	state, _ = tm.MaterialState(5)
	require.Equal(t, StateLoaded, state)
}

func TestTextureManager_MissingMaterialFallsBack(t *testing.T) {
	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	require.NoError(t, tm.Load(manifest(t, formats.TCLMEntry{ID: 3, Path: "missing.png"}), t.TempDir()))

	require.True(t, tm.RtLoadMaterial(3))
	require.Equal(t, nullMaterialColor, tm.materialAverage(3))
	tm.MtUpdate()
	require.Equal(t, 1, dev.LiveTextures())
}

func TestTextureManager_ColormapFromMaterials(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "red.png"), color.RGBA{R: 255, A: 255})

	cfg := syncConfigs()
	tm, dev := newTestTextureManager(t, &cfg)
	require.NoError(t, tm.Load(manifest(t, formats.TCLMEntry{ID: 5, Path: "red.png"}), dir))
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 5))

	tm.RtLoadMaterial(5)
	tm.RtLoadColormap(z)
	tm.RtUpdate()

	c := tm.colormaps[1]
	require.NotNil(t, c.pending)
	require.Equal(t, testZoneSize, c.pending.Bounds().Dx())
	require.Equal(t, color.RGBA{R: 255, A: 255}, c.pending.RGBAAt(3, 3))

	tm.MtUpdate()
	w, _, ok := dev.TextureSize(c.texture)
	require.True(t, ok)
	require.Equal(t, testZoneSize, w)
}

func TestTextureManager_ColormapFromFile(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "1.png"), color.RGBA{B: 200, A: 255})

	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)
	tm.SetColormapDir(dir)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadColormap(z)
	tm.RtUpdate()
	c := tm.colormaps[1]
	require.NotNil(t, c.pending)
	require.Equal(t, testZoneSize, c.pending.Bounds().Dx())
	require.Equal(t, color.RGBA{B: 200, A: 255}, c.pending.RGBAAt(0, 0))
}

func TestTextureManager_LodFollowsCamera(t *testing.T) {
	cfg := syncConfigs()
	cfg.ColormapLodCurve = []int{0, 1, 2}
	tm, _ := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadColormap(z)
	tm.RtUpdate()
	require.Equal(t, testZoneSize, tm.colormaps[1].pending.Bounds().Dx())

	tm.OnQuadtreeMoved(2, 0)
	tm.RtUpdate()
	require.Equal(t, testZoneSize/4, tm.colormaps[1].pending.Bounds().Dx())
}

func TestTextureManager_LightmapLighting(t *testing.T) {
	cfg := syncConfigs()
	cfg.Ambient = [3]float32{0.2, 0.2, 0.2}
	cfg.SelfShadowing = false
	tm, _ := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadLightmap(z)
	tm.RtUpdate()
	dark := tm.lightmaps[1].pending.RGBAAt(2, 2)
	require.Equal(t, unitToByte(0.2), dark.R)

	sun := lighting.NewDirectional(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0.4, 0.4, 0.4})
	pl := tm.AddLight(sun)
	tm.RtUpdate()
	lm := tm.lightmaps[1]
	require.Len(t, lm.infos, 1)
	require.True(t, lm.infos[pl.ID()].Current())
	require.Equal(t, unitToByte(0.6), lm.pending.RGBAAt(2, 2).R)

	// Nothing changed, nothing regenerated.
	lm.pending = nil
	tm.RtUpdate()
	require.Nil(t, lm.pending)

	tm.RemoveLight(sun)
	tm.RtUpdate()
	require.Empty(t, lm.infos)
	require.Equal(t, unitToByte(0.2), lm.pending.RGBAAt(2, 2).R)
	runtime.KeepAlive(sun)
}

func TestTextureManager_LightmapInvalidatesDirectional(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)
	sun := lighting.NewDirectional(mgl32.Vec3{1, -1, 0}, mgl32.Vec3{1, 1, 1})
	lamp := lighting.NewPoint(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 10)
	psun := tm.AddLight(sun)
	plamp := tm.AddLight(lamp)
	tm.RtUpdate()
	require.False(t, psun.NeedUpdate(cfg.LightMinCosAngle))

	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))
	tm.RtLoadLightmap(z)
	require.True(t, psun.NeedUpdate(cfg.LightMinCosAngle))
	require.False(t, plamp.NeedUpdate(cfg.LightMinCosAngle))
	runtime.KeepAlive(sun)
	runtime.KeepAlive(lamp)
}

func TestTextureManager_DrawCall(t *testing.T) {
	cfg := syncConfigs()
	tm, _ := newTestTextureManager(t, &cfg)
	z := loadedZone(t, &cfg, formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0))

	tm.RtLoadMaterial(NullMaterial)
	tm.RtLoadColormap(z)
	tm.RtLoadLightmap(z)
	tm.RtUpdate()
	tm.MtUpdate()

	buf := make([]gpu.TextureID, 2)
	call := tm.drawCall(1, []terrain.MaterialGroup{{MaterialID: NullMaterial}, {MaterialID: 42}}, buf)
	require.NotZero(t, call.Colormap)
	require.NotZero(t, call.Lightmap)
	require.NotZero(t, call.Materials[0])
	require.Zero(t, call.Materials[1])

	call = tm.drawCall(9, nil, nil)
	require.Zero(t, call.Colormap)
}
