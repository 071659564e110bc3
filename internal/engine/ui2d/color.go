package ui2d

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// Overlay colors.
var (
	ColorWhite    = Color{1, 1, 1, 1}
	ColorPanelBg  = Color{0.05, 0.06, 0.08, 0.75}
	ColorPanelRim = Color{0.3, 0.35, 0.4, 1}
	ColorText     = Color{0.9, 0.9, 0.9, 1}
	ColorLabel    = Color{1, 0.85, 0.3, 1}
)

// WithAlpha returns the color with a different alpha.
func (c Color) WithAlpha(a float32) Color {
	return Color{c.R, c.G, c.B, a}
}

// Darken scales the color channels towards black by factor.
func (c Color) Darken(factor float32) Color {
	return Color{
		R: c.R * (1 - factor),
		G: c.G * (1 - factor),
		B: c.B * (1 - factor),
		A: c.A,
	}
}
