package pclod

import (
	"slices"

	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// updateShadows brings the shadow mask of light l up to date on every
// lightmap. A zone is scanned after its upwind neighbour so that shadows
// continue across zone borders: each stale lightmap walks upwind until it
// reaches a current neighbour, a missing one or the grid edge, then the
// chain is computed back downwind. Runs on the refresh goroutine.
func (tm *TextureManager) updateShadows(l *Light) {
	s := l.snapshot
	if s.Kind != lighting.Directional {
		return
	}
	sweep, lit := terrain.SweepFor(s.Direction, tm.cfg.UnitSize)

	ids := make([]uint32, 0, len(tm.lightmaps))
	for id := range tm.lightmaps {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	visited := make(map[uint32]bool, len(ids))
	var chain []*Lightmap
	for _, id := range ids {
		lm := tm.lightmaps[id]
		if visited[id] || lm.infos[l.id] == nil || lm.infos[l.id].shadowCurrent() {
			continue
		}

		chain = append(chain[:0], lm)
		visited[id] = true
		for cur := lm; ; {
			up := tm.upwindLightmap(cur, sweep)
			if up == nil || visited[up.id] {
				break
			}
			info := up.infos[l.id]
			if info == nil || info.shadowCurrent() {
				break
			}
			visited[up.id] = true
			chain = append(chain, up)
			cur = up
		}

		for i := len(chain) - 1; i >= 0; i-- {
			tm.scanShadow(chain[i], l, sweep, lit)
		}
	}
}

// scanShadow computes one lightmap mask, seeded by the upwind neighbour
// when its mask is current.
func (tm *TextureManager) scanShadow(lm *Lightmap, l *Light, sweep terrain.Sweep, lit bool) {
	info := lm.infos[l.id]
	hm, _ := lm.zone.Heightmap()
	if hm == nil {
		return
	}
	if !lit {
		info.shadow = make([]uint8, hm.Samples()*hm.Samples())
		info.edge = terrain.UnseededEdge(hm.Samples())
		info.shadowFrame = l.frameIndex
		return
	}

	var seed []float32
	if up := tm.upwindLightmap(lm, sweep); up != nil {
		if upInfo := up.infos[l.id]; upInfo != nil && upInfo.shadowCurrent() {
			seed = upInfo.edge
		}
	}
	info.shadow, info.edge = terrain.ScanShadow(hm, sweep, seed)
	info.shadowFrame = l.frameIndex
}

// upwindLightmap returns the lightmap of the zone the light crosses just
// before reaching lm, nil when that zone is absent or not lit.
func (tm *TextureManager) upwindLightmap(lm *Lightmap, sweep terrain.Sweep) *Lightmap {
	if tm.zoneAt == nil {
		return nil
	}
	gx, gy, ext := lm.zone.Grid()
	step := -ext
	if sweep.Reverse {
		step = ext
	}
	if sweep.Axis == 0 {
		gx += step
	} else {
		gy += step
	}
	id := tm.zoneAt(gx, gy)
	if id == 0 {
		return nil
	}
	return tm.lightmaps[id]
}
