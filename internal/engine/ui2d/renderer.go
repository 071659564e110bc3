// Package ui2d draws screen-space overlays: solid panels and bitmap text.
package ui2d

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/engine/shader"
)

const (
	solidStride = 7 // pos3 + color4
	textStride  = 9 // pos3 + uv2 + color4
)

// Renderer batches quads for one frame and draws them in End.
type Renderer struct {
	width, height int

	solid *shader.Program
	text  *shader.Program

	solidVAO, solidVBO uint32
	textVAO, textVBO   uint32

	solidVertices []float32
	textVertices  []float32

	font *Font
}

// New creates a renderer on the current GL context.
func New(width, height int) (_ *Renderer, err error) {
	r := newRenderer(width, height, NewFont())
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if r.solid, err = shader.NewProgram(solidVertexSrc, solidFragmentSrc); err != nil {
		return nil, fmt.Errorf("solid shader: %w", err)
	}
	if r.text, err = shader.NewProgram(textVertexSrc, textFragmentSrc); err != nil {
		return nil, fmt.Errorf("text shader: %w", err)
	}
	r.solidVAO, r.solidVBO = createBuffers(3, 4)
	r.textVAO, r.textVBO = createBuffers(3, 2, 4)
	r.font.Upload()
	return r, nil
}

func newRenderer(width, height int, font *Font) *Renderer {
	return &Renderer{
		width:         width,
		height:        height,
		solidVertices: make([]float32, 0, 1024),
		textVertices:  make([]float32, 0, 4096),
		font:          font,
	}
}

// Resize updates the screen size in pixels.
func (r *Renderer) Resize(width, height int) {
	r.width = width
	r.height = height
}

// Begin starts a new frame.
func (r *Renderer) Begin() {
	r.solidVertices = r.solidVertices[:0]
	r.textVertices = r.textVertices[:0]
}

// End draws the queued panels, then the queued text over them.
func (r *Renderer) End() {
	if len(r.solidVertices) == 0 && len(r.textVertices) == 0 {
		return
	}

	var blend, depth, cull int32
	gl.GetIntegerv(gl.BLEND, &blend)
	gl.GetIntegerv(gl.DEPTH_TEST, &depth)
	gl.GetIntegerv(gl.CULL_FACE, &cull)

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)

	proj := mgl32.Ortho(0, float32(r.width), float32(r.height), 0, -1, 1)

	if len(r.solidVertices) > 0 {
		r.solid.Use()
		gl.UniformMatrix4fv(r.solid.Uniform("uProjection"), 1, false, &proj[0])
		upload(r.solidVAO, r.solidVBO, r.solidVertices)
		gl.DrawArrays(gl.TRIANGLES, 0, int32(len(r.solidVertices)/solidStride))
	}

	if len(r.textVertices) > 0 {
		r.text.Use()
		gl.UniformMatrix4fv(r.text.Uniform("uProjection"), 1, false, &proj[0])
		gl.Uniform1i(r.text.Uniform("uAtlas"), 0)
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, r.font.TextureID())
		upload(r.textVAO, r.textVBO, r.textVertices)
		gl.DrawArrays(gl.TRIANGLES, 0, int32(len(r.textVertices)/textStride))
	}

	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.UseProgram(0)

	if blend == gl.FALSE {
		gl.Disable(gl.BLEND)
	}
	if depth == gl.TRUE {
		gl.Enable(gl.DEPTH_TEST)
	}
	if cull == gl.TRUE {
		gl.Enable(gl.CULL_FACE)
	}
}

// Close releases the GL objects.
func (r *Renderer) Close() {
	r.font.Close()
	for _, vao := range []*uint32{&r.solidVAO, &r.textVAO} {
		if *vao != 0 {
			gl.DeleteVertexArrays(1, vao)
			*vao = 0
		}
	}
	for _, vbo := range []*uint32{&r.solidVBO, &r.textVBO} {
		if *vbo != 0 {
			gl.DeleteBuffers(1, vbo)
			*vbo = 0
		}
	}
	if r.solid != nil {
		r.solid.Delete()
	}
	if r.text != nil {
		r.text.Delete()
	}
}

// DrawRect queues a filled rectangle.
func (r *Renderer) DrawRect(x, y, w, h float32, c Color) {
	r.solidVertices = append(r.solidVertices,
		x, y, 0, c.R, c.G, c.B, c.A,
		x+w, y, 0, c.R, c.G, c.B, c.A,
		x+w, y+h, 0, c.R, c.G, c.B, c.A,
		x, y, 0, c.R, c.G, c.B, c.A,
		x+w, y+h, 0, c.R, c.G, c.B, c.A,
		x, y+h, 0, c.R, c.G, c.B, c.A,
	)
}

// DrawRectOutline queues the four sides of a rectangle.
func (r *Renderer) DrawRectOutline(x, y, w, h, thickness float32, c Color) {
	r.DrawRect(x, y, w, thickness, c)
	r.DrawRect(x, y+h-thickness, w, thickness, c)
	r.DrawRect(x, y+thickness, thickness, h-thickness*2, c)
	r.DrawRect(x+w-thickness, y+thickness, thickness, h-thickness*2, c)
}

// DrawPanel queues a filled rectangle with a one pixel border.
func (r *Renderer) DrawPanel(x, y, w, h float32, bg, border Color) {
	r.DrawRect(x, y, w, h, bg)
	r.DrawRectOutline(x, y, w, h, 1, border)
}

func (r *Renderer) addGlyph(x, y, w, h, u0, v0, u1, v1 float32, c Color) {
	r.textVertices = append(r.textVertices,
		x, y, 0, u0, v0, c.R, c.G, c.B, c.A,
		x+w, y, 0, u1, v0, c.R, c.G, c.B, c.A,
		x+w, y+h, 0, u1, v1, c.R, c.G, c.B, c.A,
		x, y, 0, u0, v0, c.R, c.G, c.B, c.A,
		x+w, y+h, 0, u1, v1, c.R, c.G, c.B, c.A,
		x, y+h, 0, u0, v1, c.R, c.G, c.B, c.A,
	)
}

// DrawText queues text with its top-left corner at x, y. Spaces advance
// the pen without emitting a quad.
func (r *Renderer) DrawText(x, y float32, text string, scale float32, c Color) {
	gw, gh := r.font.GlyphSize()
	charW, charH := float32(gw)*scale, float32(gh)*scale

	penX := x
	for _, ch := range text {
		switch ch {
		case '\n':
			penX = x
			y += charH
			continue
		case ' ':
			penX += charW
			continue
		}
		u0, v0, u1, v1 := r.font.GlyphUV(ch)
		r.addGlyph(penX, y, charW, charH, u0, v0, u1, v1, c)
		penX += charW
	}
}

// DrawLabel queues text centered on x, y over a padded panel.
func (r *Renderer) DrawLabel(x, y float32, text string, scale float32, c Color) {
	w, h := r.MeasureText(text, scale)
	pad := 2 * scale
	left, top := x-w/2, y-h/2
	r.DrawRect(left-pad, top-pad, w+2*pad, h+2*pad, ColorPanelBg)
	r.DrawText(left, top, text, scale, c)
}

// MeasureText returns the pixel size of text drawn at scale.
func (r *Renderer) MeasureText(text string, scale float32) (float32, float32) {
	return r.font.MeasureText(text, scale)
}

// createBuffers makes a VAO over one interleaved float VBO, one attribute
// per entry of sizes.
func createBuffers(sizes ...int32) (vao, vbo uint32) {
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)

	var stride int32
	for _, s := range sizes {
		stride += s * 4
	}
	var offset uintptr
	for i, s := range sizes {
		gl.VertexAttribPointerWithOffset(uint32(i), s, gl.FLOAT, false, stride, offset)
		gl.EnableVertexAttribArray(uint32(i))
		offset += uintptr(s * 4)
	}

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return vao, vbo
}

func upload(vao, vbo uint32, vertices []float32) {
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STREAM_DRAW)
}

const solidVertexSrc = `#version 410 core
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec4 aColor;
uniform mat4 uProjection;
out vec4 vColor;
void main() {
	gl_Position = uProjection * vec4(aPos, 1.0);
	vColor = aColor;
}
`

const solidFragmentSrc = `#version 410 core
in vec4 vColor;
out vec4 FragColor;
void main() {
	FragColor = vColor;
}
`

const textVertexSrc = `#version 410 core
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec2 aTexCoord;
layout (location = 2) in vec4 aColor;
uniform mat4 uProjection;
out vec2 vTexCoord;
out vec4 vColor;
void main() {
	gl_Position = uProjection * vec4(aPos, 1.0);
	vTexCoord = aTexCoord;
	vColor = aColor;
}
`

// The atlas is a single red channel holding glyph coverage.
const textFragmentSrc = `#version 410 core
uniform sampler2D uAtlas;
in vec2 vTexCoord;
in vec4 vColor;
out vec4 FragColor;
void main() {
	float coverage = texture(uAtlas, vTexCoord).r;
	FragColor = vec4(vColor.rgb, vColor.a * coverage);
}
`
