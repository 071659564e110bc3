package pclod

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// Renderable is anything the render manager can order and draw.
type Renderable interface {
	// IsReady reports whether Init can be called.
	IsReady() bool
	// Init uploads the object to the GPU. It runs on the main goroutine.
	Init() error
	Draw()
	// Clean releases GPU resources.
	Clean()
	Position() mgl32.Vec3
}

// renderEnv is the shared context of every renderer of a terrain.
type renderEnv struct {
	cfg      *Configs
	log      *zap.Logger
	device   gpu.Device
	textures *TextureManager
}

// ZoneRenderer draws one quadtree node. Geometry is built on the refresh
// goroutine and uploaded on the main goroutine the first time it is drawn.
type ZoneRenderer struct {
	env    *renderEnv
	zoneID uint32
	node   ZoneIndex
	lod    int

	position    mgl32.Vec3
	detailScale float32

	mesh      *terrain.Mesh
	groups    []terrain.MaterialGroup
	meshID    gpu.MeshID
	materials []gpu.TextureID
}

var _ Renderable = (*ZoneRenderer)(nil)

func newZoneRenderer(env *renderEnv, zoneID uint32, node ZoneIndex, lod int, position mgl32.Vec3, mesh *terrain.Mesh, detailScale float32) *ZoneRenderer {
	return &ZoneRenderer{
		env:         env,
		zoneID:      zoneID,
		node:        node,
		lod:         lod,
		position:    position,
		detailScale: detailScale,
		mesh:        mesh,
		groups:      mesh.Groups,
		materials:   make([]gpu.TextureID, len(mesh.Groups)),
	}
}

// Zone returns the id of the zone the renderer draws.
func (r *ZoneRenderer) Zone() uint32 { return r.zoneID }

// Node returns the quadtree node the renderer draws.
func (r *ZoneRenderer) Node() ZoneIndex { return r.node }

// Lod returns the detail level of the geometry.
func (r *ZoneRenderer) Lod() int { return r.lod }

func (r *ZoneRenderer) Position() mgl32.Vec3 { return r.position }

// Label is the debug text of the renderer.
func (r *ZoneRenderer) Label() string {
	return fmt.Sprintf("%d/%d L%d", r.zoneID, r.node, r.lod)
}

func (r *ZoneRenderer) IsReady() bool {
	return r.meshID != 0 || r.mesh != nil
}

func (r *ZoneRenderer) Init() error {
	if r.meshID != 0 {
		return nil
	}
	if r.mesh == nil {
		return fmt.Errorf("zone %d node %d: no geometry", r.zoneID, r.node)
	}
	id, err := r.env.device.CreateMesh(r.mesh)
	if err != nil {
		return fmt.Errorf("zone %d node %d: %w", r.zoneID, r.node, err)
	}
	r.meshID = id
	r.mesh = nil
	return nil
}

func (r *ZoneRenderer) Draw() {
	if r.meshID == 0 {
		return
	}
	call := r.env.textures.drawCall(r.zoneID, r.groups, r.materials)
	call.DetailScale = r.detailScale
	r.env.device.DrawMesh(r.meshID, call)
}

func (r *ZoneRenderer) Clean() {
	if r.meshID != 0 {
		r.env.device.DeleteMesh(r.meshID)
		r.meshID = 0
	}
	r.mesh = nil
}
