package pclod

import (
	"runtime"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/pclod/internal/engine/lighting"
)

const testMinCos = 0.999

func TestLight_NeedUpdateTolerances(t *testing.T) {
	src := lighting.NewPoint(mgl32.Vec3{0, 10, 0}, mgl32.Vec3{1, 1, 1}, 50)
	l := newLight(1, src)
	require.True(t, l.NeedUpdate(testMinCos))

	changed, alive := l.Update(testMinCos)
	require.True(t, changed)
	require.True(t, alive)
	require.Equal(t, uint64(1), l.FrameIndex())
	require.False(t, l.NeedUpdate(testMinCos))

	src.SetPosition(mgl32.Vec3{0.05, 10, 0})
	require.False(t, l.NeedUpdate(testMinCos))
	src.SetPosition(mgl32.Vec3{0.2, 10, 0})
	require.True(t, l.NeedUpdate(testMinCos))
	l.Update(testMinCos)

	src.SetColor(mgl32.Vec3{1, 1, 0.995})
	require.False(t, l.NeedUpdate(testMinCos))
	src.SetColor(mgl32.Vec3{1, 1, 0.9})
	require.True(t, l.NeedUpdate(testMinCos))
	l.Update(testMinCos)
	require.Equal(t, uint64(3), l.FrameIndex())

	l.Invalidate()
	require.True(t, l.NeedUpdate(testMinCos))
	runtime.KeepAlive(src)
}

func TestLight_DirectionTolerance(t *testing.T) {
	src := lighting.NewDirectional(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1})
	l := newLight(1, src)
	l.Update(testMinCos)

	src.SetDirection(mgl32.Vec3{0.01, -1, 0})
	require.False(t, l.NeedUpdate(testMinCos))
	src.SetDirection(mgl32.Vec3{0.5, -1, 0})
	require.True(t, l.NeedUpdate(testMinCos))

	// Position does not matter for a light at infinity.
	l.Update(testMinCos)
	src.SetPosition(mgl32.Vec3{100, 100, 100})
	require.False(t, l.NeedUpdate(testMinCos))
	runtime.KeepAlive(src)
}

func TestLightInfo_StartsStale(t *testing.T) {
	src := lighting.NewPoint(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 0)
	l := newLight(1, src)
	info := newLightInfo(l)
	require.False(t, info.Current())

	l.Update(testMinCos)
	info = newLightInfo(l)
	require.False(t, info.Current())
	info.frameIndex = l.frameIndex
	require.True(t, info.Current())

	l.Invalidate()
	l.Update(testMinCos)
	require.False(t, info.Current())
	runtime.KeepAlive(src)
}

func TestLight_CollectedSource(t *testing.T) {
	l := newLight(1, lighting.NewPoint(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 0))
	runtime.GC()
	runtime.GC()

	require.False(t, l.Alive())
	changed, alive := l.Update(testMinCos)
	require.False(t, changed)
	require.False(t, alive)
}
