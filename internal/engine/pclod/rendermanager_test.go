package pclod

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRenderable struct {
	name    string
	pos     mgl32.Vec3
	ready   bool
	initErr error
	inits   int
	draws   int
	cleaned bool
}

func (f *fakeRenderable) IsReady() bool        { return f.ready }
func (f *fakeRenderable) Position() mgl32.Vec3 { return f.pos }
func (f *fakeRenderable) Draw()                { f.draws++ }
func (f *fakeRenderable) Clean()               { f.cleaned = true }

func (f *fakeRenderable) Init() error {
	f.inits++
	return f.initErr
}

func names(order []Renderable) []string {
	out := make([]string, len(order))
	for i, r := range order {
		out[i] = r.(*fakeRenderable).name
	}
	return out
}

func TestRenderManager_BubblePassPerPeriod(t *testing.T) {
	cfg := DefaultConfigs()
	cfg.FrontToBackPeriod = 2
	rm := newRenderManager(&cfg, zaptest.NewLogger(t))

	far := &fakeRenderable{name: "far", pos: mgl32.Vec3{30, 0, 0}}
	mid := &fakeRenderable{name: "mid", pos: mgl32.Vec3{20, 0, 0}}
	near := &fakeRenderable{name: "near", pos: mgl32.Vec3{10, 0, 0}}
	rm.AddObject(far)
	rm.AddObject(mid)
	rm.AddObject(near)

	// Frame 1 only measures distances.
	rm.Update(mgl32.Vec3{})
	require.Equal(t, []string{"far", "mid", "near"}, names(rm.Order()))

	// Frame 2 runs a single pass, which is not a full sort.
	rm.Update(mgl32.Vec3{})
	require.Equal(t, []string{"mid", "near", "far"}, names(rm.Order()))

	rm.Update(mgl32.Vec3{})
	rm.Update(mgl32.Vec3{})
	require.Equal(t, []string{"near", "mid", "far"}, names(rm.Order()))
}

func TestRenderManager_DistancesFollowCameraThreshold(t *testing.T) {
	cfg := DefaultConfigs()
	cfg.FrontToBackPeriod = 1
	cfg.FrontToBackMinDelta = 5
	rm := newRenderManager(&cfg, zaptest.NewLogger(t))

	a := &fakeRenderable{name: "a", pos: mgl32.Vec3{0, 0, 0}}
	b := &fakeRenderable{name: "b", pos: mgl32.Vec3{10, 0, 0}}
	rm.AddObject(a)
	rm.AddObject(b)
	rm.Update(mgl32.Vec3{})
	require.Equal(t, []string{"a", "b"}, names(rm.Order()))

	// Below the threshold the stored distances stay.
	rm.Update(mgl32.Vec3{4, 0, 0})
	require.Equal(t, []string{"a", "b"}, names(rm.Order()))

	rm.Update(mgl32.Vec3{12, 0, 0})
	require.Equal(t, []string{"b", "a"}, names(rm.Order()))
}

func TestRenderManager_NoOrderingWhenDisabled(t *testing.T) {
	cfg := DefaultConfigs()
	cfg.FrontToBack = false
	cfg.FrontToBackPeriod = 1
	rm := newRenderManager(&cfg, zaptest.NewLogger(t))

	rm.AddObject(&fakeRenderable{name: "far", pos: mgl32.Vec3{30, 0, 0}})
	rm.AddObject(&fakeRenderable{name: "near", pos: mgl32.Vec3{1, 0, 0}})
	rm.Update(mgl32.Vec3{})
	require.Equal(t, []string{"far", "near"}, names(rm.Order()))
}

func TestRenderManager_DrawInitsLazily(t *testing.T) {
	cfg := DefaultConfigs()
	rm := newRenderManager(&cfg, zaptest.NewLogger(t))

	pending := &fakeRenderable{name: "pending"}
	ready := &fakeRenderable{name: "ready", ready: true}
	broken := &fakeRenderable{name: "broken", ready: true, initErr: errors.New("no buffer")}
	rm.AddObject(pending)
	rm.AddObject(ready)
	rm.AddObject(broken)

	rm.Draw()
	rm.Draw()
	require.Zero(t, pending.inits)
	require.Zero(t, pending.draws)
	require.Equal(t, 1, ready.inits)
	require.Equal(t, 2, ready.draws)
	require.Equal(t, 2, broken.inits)
	require.Zero(t, broken.draws)

	pending.ready = true
	rm.Draw()
	require.Equal(t, 1, pending.draws)
}

func TestRenderManager_AddRemove(t *testing.T) {
	cfg := DefaultConfigs()
	rm := newRenderManager(&cfg, zaptest.NewLogger(t))
	r := &fakeRenderable{name: "r"}

	rm.AddObject(r)
	require.Panics(t, func() { rm.AddObject(r) })
	require.Equal(t, 1, rm.Count())
	require.True(t, rm.RemoveObject(r))
	require.False(t, rm.RemoveObject(r))
	require.Zero(t, rm.Count())

	rm.AddObject(r)
	rm.Destroy()
	require.True(t, r.cleaned)
	require.Zero(t, rm.Count())
}
