package ui2d

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

// coverage sums the alpha of one atlas cell.
func coverage(f *Font, r rune) int {
	c := f.cell(r)
	sum := 0
	for y := c.Min.Y; y < c.Max.Y; y++ {
		for x := c.Min.X; x < c.Max.X; x++ {
			sum += int(f.atlas.AlphaAt(x, y).A)
		}
	}
	return sum
}

func TestFont_Atlas(t *testing.T) {
	f := NewFont()
	gw, gh := f.GlyphSize()
	require.Equal(t, 7, gw)
	require.Equal(t, 13, gh)
	require.Equal(t, image.Rect(0, 0, atlasCols*7, 6*13), f.atlas.Bounds())

	require.Zero(t, coverage(f, ' '))
	for _, r := range "AZaz09?#~" {
		require.Positive(t, coverage(f, r), "glyph %q", r)
	}
	require.NotEqual(t, coverage(f, 'A'), coverage(f, 'l'))
}

func TestFont_GlyphUV(t *testing.T) {
	f := NewFont()
	u0, v0, u1, v1 := f.GlyphUV(' ')
	require.Equal(t, []float32{0, 0, 1.0 / atlasCols, 1.0 / 6}, []float32{u0, v0, u1, v1})

	// The second row starts at '0'.
	_, v0, _, _ = f.GlyphUV('0')
	require.InDelta(t, 1.0/6, v0, 1e-6)

	a0, b0, a1, b1 := f.GlyphUV('é')
	q0, r0, q1, r1 := f.GlyphUV('?')
	require.Equal(t, []float32{q0, r0, q1, r1}, []float32{a0, b0, a1, b1})
}

func TestFont_MeasureText(t *testing.T) {
	f := NewFont()
	w, h := f.MeasureText("zone 12", 1)
	require.Equal(t, float32(7*7), w)
	require.Equal(t, float32(13), h)

	w, h = f.MeasureText("ab\nlonger\n", 2)
	require.Equal(t, float32(6*7*2), w)
	require.Equal(t, float32(3*13*2), h)
}

func TestRenderer_DrawText(t *testing.T) {
	r := newRenderer(640, 480, NewFont())
	r.Begin()
	r.DrawText(10, 20, "a b\ncd", 2, ColorText)

	// Four glyphs, six vertices each; the space emits nothing.
	require.Len(t, r.textVertices, 4*6*textStride)
	require.Empty(t, r.solidVertices)

	vertex := func(glyph, corner int) []float32 {
		i := (glyph*6 + corner) * textStride
		return r.textVertices[i : i+textStride]
	}
	require.Equal(t, []float32{10, 20}, vertex(0, 0)[:2])
	require.Equal(t, []float32{10 + 2*14, 20}, vertex(1, 0)[:2])
	require.Equal(t, []float32{10, 20 + 26}, vertex(2, 0)[:2])
	require.Equal(t, []float32{10 + 14, 20 + 2*26}, vertex(2, 2)[:2])
	require.Equal(t, []float32{0.9, 0.9, 0.9, 1}, vertex(3, 5)[5:])

	r.Begin()
	require.Empty(t, r.textVertices)
}

func TestRenderer_Panels(t *testing.T) {
	r := newRenderer(640, 480, NewFont())
	r.Begin()
	r.DrawPanel(0, 0, 100, 50, ColorPanelBg, ColorPanelRim)
	require.Len(t, r.solidVertices, 5*6*solidStride)

	r.Begin()
	r.DrawLabel(100, 100, "7/3 L2", 1, ColorLabel)
	require.Len(t, r.solidVertices, 6*solidStride)
	require.Len(t, r.textVertices, 5*6*textStride)

	// The label is centered on its anchor.
	w, h := r.MeasureText("7/3 L2", 1)
	require.Equal(t, []float32{100 - w/2, 100 - h/2}, r.textVertices[:2])
}
