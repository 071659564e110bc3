package debug

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ScreenLabel is a label projected into window pixels, origin top-left.
type ScreenLabel struct {
	Text  string
	X, Y  int
	Depth float32 // 0 near plane, 1 far plane
}

// ProjectLabels maps world-space labels to the screen and drops those
// behind the camera or outside the viewport.
func ProjectLabels(texts []string, positions []mgl32.Vec3, viewProj mgl32.Mat4, width, height int) []ScreenLabel {
	var out []ScreenLabel
	for i, p := range positions {
		clip := viewProj.Mul4x1(p.Vec4(1))
		if clip.W() <= 0 {
			continue
		}
		ndc := clip.Vec3().Mul(1 / clip.W())
		if ndc.X() < -1 || ndc.X() > 1 || ndc.Y() < -1 || ndc.Y() > 1 || ndc.Z() < -1 || ndc.Z() > 1 {
			continue
		}
		out = append(out, ScreenLabel{
			Text:  texts[i],
			X:     int((ndc.X() + 1) / 2 * float32(width)),
			Y:     int((1 - ndc.Y()) / 2 * float32(height)),
			Depth: (ndc.Z() + 1) / 2,
		})
	}
	return out
}
