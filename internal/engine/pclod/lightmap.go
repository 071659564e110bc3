package pclod

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/lighting"
	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// Lightmap is the per-zone light texture.
type Lightmap struct {
	lifecycle
	zone *TopZone

	// Refresh goroutine state.
	lod          int
	generatedLod int
	infos        map[uint64]*LightInfo
	dirty        bool

	// Shared with the main goroutine under the manager lock.
	pending *image.RGBA
	texture gpu.TextureID
}

func newLightmap(z *TopZone, instance uint64, lod int) *Lightmap {
	return &Lightmap{
		lifecycle:    lifecycle{kind: KindLightmap, id: z.ID(), instance: instance},
		zone:         z,
		lod:          lod,
		generatedLod: -1,
		infos:        make(map[uint64]*LightInfo),
	}
}

// needsUpdate reports whether the texture is out of date.
func (lm *Lightmap) needsUpdate() bool {
	if lm.dirty || lm.generatedLod != lm.lod {
		return true
	}
	for _, info := range lm.infos {
		if !info.Current() {
			return true
		}
	}
	return false
}

// textureResolution returns the texel count along one side at a level.
func textureResolution(size, lod int) int {
	return max(size>>max(lod, 0), 1)
}

// generateLightmap renders the ambient term and every attached light. It
// returns false when the zone samples or a shadow mask are not available yet.
func generateLightmap(lm *Lightmap, cfg *Configs) (*image.RGBA, bool) {
	hm, normals := lm.zone.Heightmap()
	if hm == nil || normals == nil {
		return nil, false
	}
	for _, info := range lm.infos {
		if cfg.SelfShadowing && info.light.snapshot.Kind == lighting.Directional && !info.shadowCurrent() {
			return nil, false
		}
	}

	size := hm.Size
	samples := size + 1
	res := textureResolution(size, lm.lod)
	scale := float32(size) / float32(res)
	origin := lm.zone.origin
	unit := lm.zone.unitSize

	acc := make([]mgl32.Vec3, res*res)
	ambient := cfg.ambient()
	for i := range acc {
		acc[i] = ambient
	}

	for _, info := range lm.infos {
		s := info.light.snapshot
		for ty := range res {
			fy := (float32(ty) + 0.5) * scale
			for tx := range res {
				fx := (float32(tx) + 0.5) * scale
				n := normals[nearest(fy, size)*samples+nearest(fx, size)]

				var f float32
				switch s.Kind {
				case lighting.Point, lighting.Spot:
					p := mgl32.Vec3{origin[0] + fx*unit, hm.Interpolated(fx, fy), origin[1] + fy*unit}
					toLight := s.Position.Sub(p)
					d := toLight.Len()
					if d > 1e-6 {
						toLight = toLight.Mul(1 / d)
					}
					f = terrain.Attenuation(d, s.Radius) * terrain.Lambert(n, toLight)
					if s.Kind == lighting.Spot {
						f *= terrain.SpotFactor(s.Direction, toLight.Mul(-1), s.InnerCos, s.OuterCos)
					}
				case lighting.Directional:
					f = terrain.Lambert(n, s.Direction.Mul(-1))
					if f > 0 && cfg.SelfShadowing {
						f *= terrain.ShadowAverage(info.shadow, samples, fx, fy)
					}
				}
				if f > 0 {
					acc[ty*res+tx] = acc[ty*res+tx].Add(s.Color.Mul(f))
				}
			}
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, res, res))
	for i, c := range acc {
		img.SetRGBA(i%res, i/res, color.RGBA{
			R: unitToByte(c[0]),
			G: unitToByte(c[1]),
			B: unitToByte(c[2]),
			A: 255,
		})
	}
	return img, true
}

func nearest(f float32, size int) int {
	return max(0, min(int(math.Round(float64(f))), size))
}

func unitToByte(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
