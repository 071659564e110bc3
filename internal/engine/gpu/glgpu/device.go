// Package glgpu implements gpu.Device on OpenGL 4.1 core.
package glgpu

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/shader"
	"github.com/Faultbox/pclod/internal/engine/terrain"
)

type mesh struct {
	vao, vbo, ebo uint32
	groups        []terrain.MaterialGroup
	indices       int32
}

// Device draws terrain meshes with a single shader. A GL context must be
// current on the calling thread.
type Device struct {
	log      *zap.Logger
	program  *shader.Program
	meshes   map[gpu.MeshID]*mesh
	textures map[gpu.TextureID]uint32
	next     uint32
}

// New initializes GL function pointers and compiles the terrain shader.
func New(log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	program, err := shader.NewProgram(terrainVertexShader, terrainFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("terrain shader: %w", err)
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.ClearColor(0.55, 0.7, 0.9, 1)

	return &Device{
		log:      log.Named("gl"),
		program:  program,
		meshes:   make(map[gpu.MeshID]*mesh),
		textures: make(map[gpu.TextureID]uint32),
	}, nil
}

// Viewport resizes the drawable area.
func (d *Device) Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (d *Device) BeginFrame(state gpu.FrameState) {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if state.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	d.program.Use()
	gl.UniformMatrix4fv(d.program.Uniform("uViewProj"), 1, false, &state.ViewProj[0])
	gl.Uniform1i(d.program.Uniform("uWireframe"), boolToInt(state.Wireframe))
	gl.Uniform1i(d.program.Uniform("uColormap"), 0)
	gl.Uniform1i(d.program.Uniform("uLightmap"), 1)
	gl.Uniform1i(d.program.Uniform("uMaterial"), 2)
}

func (d *Device) CreateMesh(m *terrain.Mesh) (gpu.MeshID, error) {
	if m == nil || len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return 0, fmt.Errorf("empty mesh")
	}

	out := &mesh{groups: m.Groups, indices: int32(len(m.Indices))}
	gl.GenVertexArrays(1, &out.vao)
	gl.BindVertexArray(out.vao)

	gl.GenBuffers(1, &out.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, out.vbo)
	vertexSize := int(unsafe.Sizeof(terrain.Vertex{}))
	gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*vertexSize, gl.Ptr(m.Vertices), gl.STATIC_DRAW)

	gl.GenBuffers(1, &out.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, out.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(m.Indices)*4, gl.Ptr(m.Indices), gl.STATIC_DRAW)

	stride := int32(vertexSize)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, unsafe.Offsetof(terrain.Vertex{}.Position))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, unsafe.Offsetof(terrain.Vertex{}.Normal))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, stride, unsafe.Offsetof(terrain.Vertex{}.ColormapUV))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointerWithOffset(3, 2, gl.FLOAT, false, stride, unsafe.Offsetof(terrain.Vertex{}.DetailUV))
	gl.EnableVertexAttribArray(3)

	gl.BindVertexArray(0)

	d.next++
	id := gpu.MeshID(d.next)
	d.meshes[id] = out
	return id, nil
}

func (d *Device) DeleteMesh(id gpu.MeshID) {
	m, ok := d.meshes[id]
	if !ok {
		panic(fmt.Sprintf("glgpu: delete of unknown mesh %d", id))
	}
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
	delete(d.meshes, id)
}

func (d *Device) DrawMesh(id gpu.MeshID, call gpu.DrawCall) {
	m, ok := d.meshes[id]
	if !ok {
		panic(fmt.Sprintf("glgpu: draw of unknown mesh %d", id))
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, d.textures[call.Colormap])
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, d.textures[call.Lightmap])
	gl.Uniform1i(d.program.Uniform("uUseLightmap"), boolToInt(call.Lightmap != 0))
	gl.Uniform1f(d.program.Uniform("uDetailScale"), call.DetailScale)

	gl.BindVertexArray(m.vao)
	if len(m.groups) == 0 {
		gl.Uniform1i(d.program.Uniform("uUseMaterial"), 0)
		gl.DrawElements(gl.TRIANGLES, m.indices, gl.UNSIGNED_INT, nil)
	}
	gl.ActiveTexture(gl.TEXTURE2)
	for i, group := range m.groups {
		var mat gpu.TextureID
		if i < len(call.Materials) {
			mat = call.Materials[i]
		}
		gl.Uniform1i(d.program.Uniform("uUseMaterial"), boolToInt(mat != 0))
		gl.BindTexture(gl.TEXTURE_2D, d.textures[mat])
		gl.DrawElementsWithOffset(gl.TRIANGLES, group.IndexCount, gl.UNSIGNED_INT, uintptr(group.StartIndex*4))
	}
	gl.BindVertexArray(0)
}

func (d *Device) CreateTexture(img *image.RGBA, opts gpu.TextureOptions) (gpu.TextureID, error) {
	if img == nil || img.Bounds().Empty() {
		return 0, fmt.Errorf("empty texture")
	}

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	upload(img)

	minFilter := int32(gl.LINEAR)
	if opts.Mipmaps {
		gl.GenerateMipmap(gl.TEXTURE_2D)
		minFilter = gl.LINEAR_MIPMAP_LINEAR
		gl.TexParameterf(gl.TEXTURE_2D, gl.TEXTURE_MAX_ANISOTROPY, 8.0)
	}
	wrap := int32(gl.CLAMP_TO_EDGE)
	if opts.Repeat {
		wrap = gl.REPEAT
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrap)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, wrap)

	d.next++
	id := gpu.TextureID(d.next)
	d.textures[id] = tex
	return id, nil
}

func (d *Device) UpdateTexture(id gpu.TextureID, img *image.RGBA) error {
	tex, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("update of unknown texture %d", id)
	}
	gl.BindTexture(gl.TEXTURE_2D, tex)
	upload(img)
	return nil
}

func (d *Device) DeleteTexture(id gpu.TextureID) {
	tex, ok := d.textures[id]
	if !ok {
		panic(fmt.Sprintf("glgpu: delete of unknown texture %d", id))
	}
	gl.DeleteTextures(1, &tex)
	delete(d.textures, id)
}

// ReadPixels returns the back buffer as bottom-up RGBA rows.
func (d *Device) ReadPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels
}

// Close releases the shader. Meshes and textures belong to the terrain.
func (d *Device) Close() {
	if len(d.meshes) > 0 || len(d.textures) > 0 {
		d.log.Warn("device closed with live objects",
			zap.Int("meshes", len(d.meshes)),
			zap.Int("textures", len(d.textures)),
		)
	}
	d.program.Delete()
}

func upload(img *image.RGBA) {
	b := img.Bounds()
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA,
		int32(b.Dx()), int32(b.Dy()),
		0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[img.PixOffset(b.Min.X, b.Min.Y)]))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

var _ gpu.Device = (*Device)(nil)
