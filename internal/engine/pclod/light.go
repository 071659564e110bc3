package pclod

import (
	"weak"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/engine/lighting"
)

// Snapshot tolerances.
const (
	lightPositionTolerance = 0.1
	lightColorTolerance    = 0.01
)

// Light follows an engine light without keeping it alive. The snapshot is
// refreshed on the refresh goroutine whenever the engine light drifted past
// the tolerances or Invalidate was called; every refresh bumps frameIndex.
type Light struct {
	id  uint64
	ref weak.Pointer[lighting.Light]

	snapshot    lighting.State
	valid       bool
	invalidated bool
	frameIndex  uint64
}

func newLight(id uint64, l *lighting.Light) *Light {
	return &Light{id: id, ref: weak.Make(l)}
}

// ID returns the terrain-local id of the light.
func (l *Light) ID() uint64 { return l.id }

// Alive reports whether the engine light still exists.
func (l *Light) Alive() bool { return l.ref.Value() != nil }

// State returns the last snapshot.
func (l *Light) State() lighting.State { return l.snapshot }

// FrameIndex returns the number of snapshot refreshes so far.
func (l *Light) FrameIndex() uint64 { return l.frameIndex }

// Invalidate forces a snapshot refresh on the next update.
func (l *Light) Invalidate() { l.invalidated = true }

// NeedUpdate reports whether the snapshot must be refreshed.
func (l *Light) NeedUpdate(minCos float32) bool {
	if !l.valid || l.invalidated {
		return true
	}
	src := l.ref.Value()
	if src == nil {
		return false
	}
	return diverged(l.snapshot, src.State(), minCos)
}

// Update refreshes the snapshot when needed. It reports whether the
// snapshot changed and whether the engine light is still alive.
func (l *Light) Update(minCos float32) (changed, alive bool) {
	src := l.ref.Value()
	if src == nil {
		return false, false
	}
	if !l.NeedUpdate(minCos) {
		return false, true
	}
	l.snapshot = src.State()
	l.valid = true
	l.invalidated = false
	l.frameIndex++
	return true, true
}

func diverged(a, b lighting.State, minCos float32) bool {
	if a.Kind != b.Kind || a.Radius != b.Radius || a.InnerCos != b.InnerCos || a.OuterCos != b.OuterCos {
		return true
	}
	if a.Kind != lighting.Directional && a.Position.Sub(b.Position).Len() > lightPositionTolerance {
		return true
	}
	if a.Kind != lighting.Point && a.Direction.Dot(b.Direction) < minCos {
		return true
	}
	for i := range 3 {
		if mgl32.Abs(a.Color[i]-b.Color[i]) > lightColorTolerance {
			return true
		}
	}
	return false
}

// LightInfo caches the contribution of one light to one lightmap.
// frameIndex equals the light frame index exactly when the lightmap
// contribution is current.
type LightInfo struct {
	light      *Light
	frameIndex uint64

	// Directional lights only.
	shadow      []uint8
	edge        []float32
	shadowFrame uint64
}

// newLightInfo starts stale so that the next lightmap pass applies the light.
func newLightInfo(l *Light) *LightInfo {
	return &LightInfo{light: l, frameIndex: l.frameIndex - 1}
}

// Current reports whether the lightmap already holds this light's contribution.
func (i *LightInfo) Current() bool {
	return i.frameIndex == i.light.frameIndex
}

func (i *LightInfo) shadowCurrent() bool {
	return i.shadow != nil && i.shadowFrame == i.light.frameIndex
}
