package pclod

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/pkg/formats"
)

// zoneEntry is what the spatial index knows about a zone before it is loaded.
type zoneEntry struct {
	header       formats.ZoneHeader
	gridX, gridY int
	extension    int
}

// spatialIndex maps grid cells to zone ids. It is built once by Load and
// never written again, so both goroutines read it without locking.
type spatialIndex struct {
	width, height int
	cells         []uint32
	zones         map[uint32]zoneEntry

	zoneSizeX, zoneSizeY int
	extension            int
	unitSize             float32
}

func buildSpatialIndex(h *formats.HCLM, unitSize float32) (*spatialIndex, error) {
	idx := &spatialIndex{
		zones:     make(map[uint32]zoneEntry, len(h.Zones)),
		zoneSizeX: int(h.ZoneSizeX),
		zoneSizeY: int(h.ZoneSizeY),
		unitSize:  unitSize,
	}
	if err := h.CheckGrid(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	idx.width, idx.height = h.GridSize()
	idx.cells = make([]uint32, idx.width*idx.height)

	for _, z := range h.Zones {
		e := zoneEntry{
			header:    z,
			gridX:     z.GridX(h.ZoneSizeX),
			gridY:     z.GridY(h.ZoneSizeY),
			extension: z.ExtensionX(h.ZoneSizeX),
		}
		if idx.extension == 0 {
			idx.extension = e.extension
		} else if e.extension != idx.extension {
			return nil, fmt.Errorf("%w: zone %d spans %d cells, zone size is %d",
				ErrMixedZoneSizes, z.ID, e.extension, idx.extension)
		}
		for y := e.gridY; y < e.gridY+e.extension; y++ {
			for x := e.gridX; x < e.gridX+e.extension; x++ {
				idx.cells[y*idx.width+x] = z.ID
			}
		}
		idx.zones[z.ID] = e
	}
	return idx, nil
}

// zoneAt returns the zone covering a grid cell, 0 outside the grid or in holes.
func (s *spatialIndex) zoneAt(x, y int) uint32 {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return 0
	}
	return s.cells[y*s.width+x]
}

// cellOf returns the grid cell under a world position.
func (s *spatialIndex) cellOf(pos mgl32.Vec3) (x, y int) {
	x = int(math.Floor(float64(pos.X() / s.unitSize / float32(s.zoneSizeX))))
	y = int(math.Floor(float64(pos.Z() / s.unitSize / float32(s.zoneSizeY))))
	return x, y
}

func (s *spatialIndex) entry(id uint32) (zoneEntry, bool) {
	e, ok := s.zones[id]
	return e, ok
}

// chebyshev returns the distance in cells between a cell and the nearest
// cell of a zone spanning ext cells from (gx, gy).
func chebyshev(gx, gy, ext, cx, cy int) int {
	dx := max(gx-cx, cx-(gx+ext-1), 0)
	dy := max(gy-cy, cy-(gy+ext-1), 0)
	return max(dx, dy)
}
