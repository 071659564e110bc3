package pclod

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

type renderEntry struct {
	distance    float32
	initialized bool
}

// RenderManager keeps the active renderers and the order they are drawn
// in. Ordering is approximate: distances are refreshed when the camera
// moved past a threshold and one bubble pass runs every period frames.
// It is only used from the main goroutine.
type RenderManager struct {
	cfg *Configs
	log *zap.Logger

	entries map[Renderable]*renderEntry
	order   []Renderable

	camera    mgl32.Vec3
	hasCamera bool
	frame     int
}

func newRenderManager(cfg *Configs, log *zap.Logger) *RenderManager {
	return &RenderManager{
		cfg:     cfg,
		log:     log,
		entries: make(map[Renderable]*renderEntry),
	}
}

// AddObject appends a renderer to the draw order.
func (rm *RenderManager) AddObject(r Renderable) {
	if _, ok := rm.entries[r]; ok {
		panic(fmt.Sprintf("pclod: renderer %p added twice", r))
	}
	e := &renderEntry{}
	if rm.hasCamera {
		e.distance = r.Position().Sub(rm.camera).Len()
	}
	rm.entries[r] = e
	rm.order = append(rm.order, r)
}

// RemoveObject drops a renderer and reports whether it was registered.
func (rm *RenderManager) RemoveObject(r Renderable) bool {
	if _, ok := rm.entries[r]; !ok {
		return false
	}
	delete(rm.entries, r)
	for i, o := range rm.order {
		if o == r {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	return true
}

// Count returns the number of registered renderers.
func (rm *RenderManager) Count() int {
	return len(rm.order)
}

// Order returns the current draw order.
func (rm *RenderManager) Order() []Renderable {
	return append([]Renderable(nil), rm.order...)
}

// Update advances one frame with the given camera position.
func (rm *RenderManager) Update(camera mgl32.Vec3) {
	rm.frame++
	if !rm.hasCamera || camera.Sub(rm.camera).Len() > rm.cfg.FrontToBackMinDelta {
		rm.camera = camera
		rm.hasCamera = true
		for r, e := range rm.entries {
			e.distance = r.Position().Sub(camera).Len()
		}
	}
	if rm.cfg.FrontToBack && rm.frame%rm.cfg.FrontToBackPeriod == 0 {
		rm.bubblePass()
	}
}

// bubblePass swaps each adjacent pair that is out of order once.
func (rm *RenderManager) bubblePass() {
	for i := 1; i < len(rm.order); i++ {
		if rm.entries[rm.order[i]].distance < rm.entries[rm.order[i-1]].distance {
			rm.order[i], rm.order[i-1] = rm.order[i-1], rm.order[i]
		}
	}
}

// Draw draws every ready renderer, initializing it on first use.
func (rm *RenderManager) Draw() {
	for _, r := range rm.order {
		e := rm.entries[r]
		if !e.initialized {
			if !r.IsReady() {
				continue
			}
			if err := r.Init(); err != nil {
				rm.log.Warn("renderer init failed", zap.Error(err))
				continue
			}
			e.initialized = true
		}
		r.Draw()
	}
}

// Destroy cleans every remaining renderer.
func (rm *RenderManager) Destroy() {
	for _, r := range rm.order {
		r.Clean()
	}
	clear(rm.entries)
	rm.order = nil
}
