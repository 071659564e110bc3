package pclod

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/engine/terrain"
	"github.com/Faultbox/pclod/pkg/formats"
)

// Counter names one of the three reasons a zone stays in memory.
type Counter int

const (
	// CounterVisibility counts visible-window slots covering the zone.
	CounterVisibility Counter = iota
	// CounterHeightmap counts users of the heights, such as the lightmap.
	CounterHeightmap
	// CounterMaterial counts users of the material ids, such as the colormap.
	CounterMaterial
	numCounters
)

func (c Counter) String() string {
	switch c {
	case CounterVisibility:
		return "visibility"
	case CounterHeightmap:
		return "heightmap"
	case CounterMaterial:
		return "material"
	default:
		return fmt.Sprintf("counter(%d)", int(c))
	}
}

// PayloadReader fetches the samples of a zone.
type PayloadReader interface {
	ReadPayload(h formats.ZoneHeader) (*formats.ZonePayload, error)
}

// filePayloadReader reads payloads from the terrain header file.
type filePayloadReader struct {
	mu sync.Mutex
	r  io.ReadSeeker
}

func (f *filePayloadReader) ReadPayload(h formats.ZoneHeader) (*formats.ZonePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return formats.ReadZonePayload(f.r, h)
}

// TopZone is a disk-backed terrain chunk and the root of its own quadtree.
type TopZone struct {
	header       formats.ZoneHeader
	gridX, gridY int
	extension    int
	origin       [2]float32
	unitSize     float32
	blockSize    int

	mu        sync.Mutex
	counters  [numCounters]int
	loaded    bool
	heightmap *terrain.Heightmap
	normals   []mgl32.Vec3
	minAlt    float32
	maxAlt    float32
	materials []uint32
	nodes     []zoneNode

	// Owned by the zone manager.
	textured   bool
	loadFailed bool
}

func newTopZone(e zoneEntry, cfg *Configs) *TopZone {
	return &TopZone{
		header:    e.header,
		gridX:     e.gridX,
		gridY:     e.gridY,
		extension: e.extension,
		origin: [2]float32{
			float32(e.header.OriginX) * cfg.UnitSize,
			float32(e.header.OriginY) * cfg.UnitSize,
		},
		unitSize:  cfg.UnitSize,
		blockSize: cfg.BlockSize,
	}
}

// ID returns the zone id.
func (z *TopZone) ID() uint32 { return z.header.ID }

// Grid returns the first grid cell of the zone and its extension in cells.
func (z *TopZone) Grid() (x, y, ext int) { return z.gridX, z.gridY, z.extension }

// Size returns the zone side in heightmap units.
func (z *TopZone) Size() int { return int(z.header.SizeX) }

// LodNumber returns the number of detail levels stored for the zone.
func (z *TopZone) LodNumber() int { return int(z.header.LodCount) }

func (z *TopZone) maxLod() int { return int(z.header.LodCount) - 1 }

// Use takes a reference of the given kind and returns the new count.
func (z *TopZone) Use(c Counter) int {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.counters[c]++
	return z.counters[c]
}

// Release drops a reference of the given kind and returns the new count.
func (z *TopZone) Release(c Counter) int {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.counters[c] <= 0 {
		panic(fmt.Sprintf("pclod: negative %s count on zone %d", c, z.header.ID))
	}
	z.counters[c]--
	return z.counters[c]
}

// Count returns the current reference count of the given kind.
func (z *TopZone) Count(c Counter) int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.counters[c]
}

// Unused reports whether every counter is zero.
func (z *TopZone) Unused() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.counters == [numCounters]int{}
}

// DataLoaded reports whether the payload is in memory.
func (z *TopZone) DataLoaded() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.loaded
}

// Load reads the payload and builds the quadtree. Loading a loaded zone is a no-op.
func (z *TopZone) Load(r PayloadReader) error {
	z.mu.Lock()
	loaded := z.loaded
	z.mu.Unlock()
	if loaded {
		return nil
	}

	p, err := r.ReadPayload(z.header)
	if err != nil {
		return fmt.Errorf("loading zone %d: %w", z.header.ID, err)
	}
	hm, err := terrain.NewHeightmap(z.Size(), p.Heights, p.Materials)
	if err != nil {
		return fmt.Errorf("loading zone %d: %w", z.header.ID, err)
	}
	normals := terrain.SmoothNormals(hm.ComputeNormals(z.unitSize), z.Size()+1, 1)

	materials := slices.Clone(p.Materials)
	slices.Sort(materials)
	materials = slices.Compact(materials)

	z.mu.Lock()
	defer z.mu.Unlock()
	z.heightmap = hm
	z.normals = normals
	z.minAlt, z.maxAlt = p.MinAltitude, p.MaxAltitude
	z.materials = materials
	z.nodes = buildQuadtree(hm, z.Size(), z.blockSize, z.origin, z.unitSize)
	z.loaded = true
	return nil
}

// Unload frees the payload. The zone must be hidden and without renderers.
func (z *TopZone) Unload() {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.counters[CounterVisibility] > 0 {
		panic(fmt.Sprintf("pclod: unloading visible zone %d", z.header.ID))
	}
	for i := range z.nodes {
		if z.nodes[i].renderer != nil {
			panic(fmt.Sprintf("pclod: unloading zone %d with a live renderer", z.header.ID))
		}
	}
	z.loaded = false
	z.heightmap = nil
	z.normals = nil
	z.materials = nil
	z.nodes = nil
}

// Heightmap returns the samples and normal map, nil while unloaded.
func (z *TopZone) Heightmap() (*terrain.Heightmap, []mgl32.Vec3) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.heightmap, z.normals
}

// MaterialIDs returns the distinct material ids of the zone in ascending order.
func (z *TopZone) MaterialIDs() []uint32 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return slices.Clone(z.materials)
}

// Altitudes returns the altitude range stored in the zone header.
func (z *TopZone) Altitudes() (lo, hi float32) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.minAlt, z.maxAlt
}

// HeightAt returns the terrain height under a world X/Z position.
func (z *TopZone) HeightAt(x, zPos float32) (float32, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.loaded {
		return 0, false
	}
	fx := (x - z.origin[0]) / z.unitSize
	fy := (zPos - z.origin[1]) / z.unitSize
	size := float32(z.heightmap.Size)
	if fx < 0 || fy < 0 || fx > size || fy > size {
		return 0, false
	}
	return z.heightmap.Interpolated(fx, fy), true
}

// Center returns the world position of the middle of the zone.
func (z *TopZone) Center() mgl32.Vec3 {
	half := float32(z.Size()) * z.unitSize / 2
	z.mu.Lock()
	y := (z.minAlt + z.maxAlt) / 2
	z.mu.Unlock()
	return mgl32.Vec3{z.origin[0] + half, y, z.origin[1] + half}
}
