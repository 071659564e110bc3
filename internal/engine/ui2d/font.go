package ui2d

import (
	"image"
	"image/draw"

	"github.com/go-gl/gl/v4.1-core/gl"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	firstGlyph = ' '
	lastGlyph  = '~'
	atlasCols  = 16
	fallback   = '?'
)

// Font is a fixed-width ASCII glyph atlas.
type Font struct {
	atlas   *image.Alpha
	glyphW  int
	glyphH  int
	texture uint32
}

// NewFont rasterizes the printable ASCII range of the 7x13 bitmap face into
// an alpha atlas. Upload must run before the atlas is sampled.
func NewFont() *Font {
	return newFont(basicfont.Face7x13)
}

func newFont(face font.Face) *Font {
	m := face.Metrics()
	adv, _ := face.GlyphAdvance('M')
	f := &Font{glyphW: adv.Ceil(), glyphH: m.Height.Ceil()}

	count := int(lastGlyph - firstGlyph + 1)
	rows := (count + atlasCols - 1) / atlasCols
	f.atlas = image.NewAlpha(image.Rect(0, 0, atlasCols*f.glyphW, rows*f.glyphH))

	ascent := m.Ascent.Ceil()
	for r := firstGlyph; r <= lastGlyph; r++ {
		cell := f.cell(r)
		dot := fixed.P(cell.Min.X, cell.Min.Y+ascent)
		dr, mask, mp, _, ok := face.Glyph(dot, r)
		if !ok {
			continue
		}
		draw.DrawMask(f.atlas, dr.Intersect(cell), image.Opaque, image.Point{}, mask, mp, draw.Over)
	}
	return f
}

func (f *Font) cell(r rune) image.Rectangle {
	if r < firstGlyph || r > lastGlyph {
		r = fallback
	}
	i := int(r - firstGlyph)
	x, y := (i%atlasCols)*f.glyphW, (i/atlasCols)*f.glyphH
	return image.Rect(x, y, x+f.glyphW, y+f.glyphH)
}

// GlyphSize returns the cell size of one glyph in pixels.
func (f *Font) GlyphSize() (int, int) {
	return f.glyphW, f.glyphH
}

// GlyphUV returns the atlas coordinates of a rune. Runes outside the atlas
// map to '?'.
func (f *Font) GlyphUV(r rune) (u0, v0, u1, v1 float32) {
	c := f.cell(r)
	size := f.atlas.Bounds().Size()
	w, h := float32(size.X), float32(size.Y)
	return float32(c.Min.X) / w, float32(c.Min.Y) / h, float32(c.Max.X) / w, float32(c.Max.Y) / h
}

// MeasureText returns the pixel size of text drawn at scale.
func (f *Font) MeasureText(text string, scale float32) (float32, float32) {
	lines, width, widest := 1, 0, 0
	for _, r := range text {
		if r == '\n' {
			lines++
			width = 0
			continue
		}
		width++
		widest = max(widest, width)
	}
	return float32(widest*f.glyphW) * scale, float32(lines*f.glyphH) * scale
}

// Upload creates the atlas texture on the current GL context.
func (f *Font) Upload() {
	if f.texture != 0 {
		return
	}
	size := f.atlas.Bounds().Size()
	gl.GenTextures(1, &f.texture)
	gl.BindTexture(gl.TEXTURE_2D, f.texture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.R8, int32(size.X), int32(size.Y), 0,
		gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(f.atlas.Pix))
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// TextureID returns the atlas texture, 0 before Upload.
func (f *Font) TextureID() uint32 {
	return f.texture
}

// Close deletes the atlas texture.
func (f *Font) Close() {
	if f.texture != 0 {
		gl.DeleteTextures(1, &f.texture)
		f.texture = 0
	}
}
