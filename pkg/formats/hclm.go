package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HCLMMagic starts every terrain header file.
const HCLMMagic = "O3DHCLM "

// ZoneTag starts every zone record referenced by the zone table.
const ZoneTag = "ZONE"

// MaxLodCount bounds the number of detail levels a zone may declare.
const MaxLodCount = 16

// MaxGridSide bounds the zone grid width and height in base-zone cells.
const MaxGridSide = 1 << 12

// MaxGridCells bounds the total number of base-zone cells in a terrain.
const MaxGridCells = 1 << 22

// maxStringLen guards against garbage length prefixes.
const maxStringLen = 1 << 16

// HCLM format errors.
var (
	ErrInvalidHCLMMagic       = errors.New("invalid HCLM magic: expected 'O3DHCLM '")
	ErrUnsupportedHCLMVersion = errors.New("unsupported HCLM version")
	ErrTruncatedHCLMData      = errors.New("truncated HCLM data")
	ErrInvalidZoneTable       = errors.New("invalid HCLM zone table")
	ErrInvalidZoneTag         = errors.New("invalid zone tag: expected 'ZONE'")
	ErrInvalidZoneHeader      = errors.New("invalid zone header")
)

// HCLMVersion represents the header file version.
type HCLMVersion struct {
	Major uint16
	Minor uint16
}

// String returns the version as "Major.Minor".
func (v HCLMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ZoneHeader is the positional metadata stored in front of each zone payload.
type ZoneHeader struct {
	ID         uint32
	FileOffset uint32
	OriginX    uint32 // heightmap units
	OriginY    uint32
	SizeX      uint32 // heightmap units, multiple of the base zone size
	SizeY      uint32
	LodCount   uint32
}

// GridX returns the zone column in base-zone units.
func (z ZoneHeader) GridX(zoneSizeX uint16) int {
	return int(z.OriginX) / int(zoneSizeX)
}

// GridY returns the zone row in base-zone units.
func (z ZoneHeader) GridY(zoneSizeY uint16) int {
	return int(z.OriginY) / int(zoneSizeY)
}

// ExtensionX returns the number of grid cells the zone covers horizontally.
func (z ZoneHeader) ExtensionX(zoneSizeX uint16) int {
	return int(z.SizeX) / int(zoneSizeX)
}

// ExtensionY returns the number of grid cells the zone covers vertically.
func (z ZoneHeader) ExtensionY(zoneSizeY uint16) int {
	return int(z.SizeY) / int(zoneSizeY)
}

// SampleCount returns the number of height samples in the zone payload.
func (z ZoneHeader) SampleCount() int {
	return int(z.SizeX+1) * int(z.SizeY+1)
}

// PayloadOffset returns the file offset of the zone payload.
func (z ZoneHeader) PayloadOffset() int64 {
	return int64(z.FileOffset) + int64(len(ZoneTag)) + 5*4
}

// HCLM represents a parsed terrain header.
type HCLM struct {
	Version     HCLMVersion
	Name        string
	Description string
	ZoneSizeX   uint16
	ZoneSizeY   uint16
	Zones       []ZoneHeader
}

// GridSize returns the grid dimensions needed to hold every zone.
func (h *HCLM) GridSize() (width, height int) {
	for _, z := range h.Zones {
		if w := z.GridX(h.ZoneSizeX) + z.ExtensionX(h.ZoneSizeX); w > width {
			width = w
		}
		if hh := z.GridY(h.ZoneSizeY) + z.ExtensionY(h.ZoneSizeY); hh > height {
			height = hh
		}
	}
	return width, height
}

// CheckGrid rejects zone grids wider than MaxGridSide on either axis or
// larger than MaxGridCells.
func (h *HCLM) CheckGrid() error {
	w, ht := h.GridSize()
	if w > MaxGridSide || ht > MaxGridSide || w*ht > MaxGridCells {
		return fmt.Errorf("%w: zone grid %dx%d exceeds %dx%d or %d cells",
			ErrInvalidZoneTable, w, ht, MaxGridSide, MaxGridSide, MaxGridCells)
	}
	return nil
}

// ParseHCLM parses a terrain header and the zone headers it references.
func ParseHCLM(r io.ReadSeeker) (*HCLM, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measuring header: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding header: %w", err)
	}

	magic := make([]byte, len(HCLMMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic", ErrTruncatedHCLMData)
	}
	if string(magic) != HCLMMagic {
		return nil, ErrInvalidHCLMMagic
	}

	h := &HCLM{}
	var headerOffset, tableOffset uint32
	fields := []any{&h.Version.Major, &h.Version.Minor, &headerOffset, &tableOffset}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("%w: reading file header", ErrTruncatedHCLMData)
		}
	}
	if h.Version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHCLMVersion, h.Version)
	}
	if int64(headerOffset) >= size || int64(tableOffset) >= size {
		return nil, fmt.Errorf("%w: section offset beyond end of file", ErrTruncatedHCLMData)
	}

	// Header section
	if _, err := r.Seek(int64(headerOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking header section: %w", err)
	}
	if h.Name, err = readString(r); err != nil {
		return nil, fmt.Errorf("reading name: %w", err)
	}
	if h.Description, err = readString(r); err != nil {
		return nil, fmt.Errorf("reading description: %w", err)
	}

	// Zone table
	if _, err := r.Seek(int64(tableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking zone table: %w", err)
	}
	var tableSize uint32
	if err := binary.Read(r, binary.LittleEndian, &tableSize); err != nil {
		return nil, fmt.Errorf("%w: reading table size", ErrTruncatedHCLMData)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.ZoneSizeX); err != nil {
		return nil, fmt.Errorf("%w: reading zone size", ErrTruncatedHCLMData)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.ZoneSizeY); err != nil {
		return nil, fmt.Errorf("%w: reading zone size", ErrTruncatedHCLMData)
	}
	if h.ZoneSizeX == 0 || h.ZoneSizeY == 0 {
		return nil, fmt.Errorf("%w: zero zone size", ErrInvalidZoneTable)
	}

	// Each entry takes 8 bytes, the table must fit in the file.
	if int64(tableOffset)+8+int64(tableSize)*8 > size {
		return nil, fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrInvalidZoneTable, tableSize, size)
	}

	h.Zones = make([]ZoneHeader, tableSize)
	seen := make(map[uint32]struct{}, tableSize)
	for i := range h.Zones {
		z := &h.Zones[i]
		if err := binary.Read(r, binary.LittleEndian, &z.ID); err != nil {
			return nil, fmt.Errorf("%w: reading zone %d id", ErrTruncatedHCLMData, i)
		}
		if err := binary.Read(r, binary.LittleEndian, &z.FileOffset); err != nil {
			return nil, fmt.Errorf("%w: reading zone %d offset", ErrTruncatedHCLMData, i)
		}
		if z.ID == 0 {
			return nil, fmt.Errorf("%w: entry %d uses reserved id 0", ErrInvalidZoneTable, i)
		}
		if _, dup := seen[z.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate zone id %d", ErrInvalidZoneTable, z.ID)
		}
		seen[z.ID] = struct{}{}
	}

	for i := range h.Zones {
		if err := readZoneHeader(r, size, &h.Zones[i], h.ZoneSizeX, h.ZoneSizeY); err != nil {
			return nil, fmt.Errorf("zone %d: %w", h.Zones[i].ID, err)
		}
	}

	if err := checkOverlap(h); err != nil {
		return nil, err
	}

	return h, nil
}

func readZoneHeader(r io.ReadSeeker, size int64, z *ZoneHeader, zoneSizeX, zoneSizeY uint16) error {
	if _, err := r.Seek(int64(z.FileOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seeking zone record: %w", err)
	}
	tag := make([]byte, len(ZoneTag))
	if _, err := io.ReadFull(r, tag); err != nil {
		return fmt.Errorf("%w: reading zone tag", ErrTruncatedHCLMData)
	}
	if string(tag) != ZoneTag {
		return ErrInvalidZoneTag
	}

	fields := []*uint32{&z.OriginX, &z.OriginY, &z.SizeX, &z.SizeY, &z.LodCount}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("%w: reading zone header", ErrTruncatedHCLMData)
		}
	}

	switch {
	case z.SizeX == 0 || z.SizeY == 0:
		return fmt.Errorf("%w: empty zone", ErrInvalidZoneHeader)
	case z.SizeX != z.SizeY:
		return fmt.Errorf("%w: zone must be square, got %dx%d", ErrInvalidZoneHeader, z.SizeX, z.SizeY)
	case z.SizeX&(z.SizeX-1) != 0:
		return fmt.Errorf("%w: zone size %d is not a power of two", ErrInvalidZoneHeader, z.SizeX)
	case z.SizeX%uint32(zoneSizeX) != 0 || z.SizeY%uint32(zoneSizeY) != 0:
		return fmt.Errorf("%w: size %dx%d is not a multiple of %dx%d", ErrInvalidZoneHeader, z.SizeX, z.SizeY, zoneSizeX, zoneSizeY)
	case z.OriginX%uint32(zoneSizeX) != 0 || z.OriginY%uint32(zoneSizeY) != 0:
		return fmt.Errorf("%w: origin %d,%d is not aligned on the zone grid", ErrInvalidZoneHeader, z.OriginX, z.OriginY)
	case z.LodCount == 0 || z.LodCount > MaxLodCount:
		return fmt.Errorf("%w: lod count %d", ErrInvalidZoneHeader, z.LodCount)
	case 1<<(z.LodCount-1) > z.SizeX:
		return fmt.Errorf("%w: %d lods need a zone of at least %d units", ErrInvalidZoneHeader, z.LodCount, 1<<(z.LodCount-1))
	}

	payloadSize := int64(8) + int64(z.SampleCount())*8
	if z.PayloadOffset()+payloadSize > size {
		return fmt.Errorf("%w: zone payload", ErrTruncatedHCLMData)
	}
	return nil
}

func checkOverlap(h *HCLM) error {
	if err := h.CheckGrid(); err != nil {
		return err
	}
	w, ht := h.GridSize()
	owner := make([]uint32, w*ht)
	for _, z := range h.Zones {
		gx, gy := z.GridX(h.ZoneSizeX), z.GridY(h.ZoneSizeY)
		for y := gy; y < gy+z.ExtensionY(h.ZoneSizeY); y++ {
			for x := gx; x < gx+z.ExtensionX(h.ZoneSizeX); x++ {
				if prev := owner[y*w+x]; prev != 0 {
					return fmt.Errorf("%w: zones %d and %d overlap at %d,%d", ErrInvalidZoneTable, prev, z.ID, x, y)
				}
				owner[y*w+x] = z.ID
			}
		}
	}
	return nil
}

// ZonePayload holds the height and material samples of one zone.
type ZonePayload struct {
	MinAltitude float32
	MaxAltitude float32
	Heights     []float32 // (SizeX+1)*(SizeY+1), row-major
	Materials   []uint32  // one material id per height sample
}

// ReadZonePayload reads the payload of the given zone.
func ReadZonePayload(r io.ReadSeeker, z ZoneHeader) (*ZonePayload, error) {
	if _, err := r.Seek(z.PayloadOffset(), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking zone %d payload: %w", z.ID, err)
	}

	p := &ZonePayload{
		Heights:   make([]float32, z.SampleCount()),
		Materials: make([]uint32, z.SampleCount()),
	}
	if err := binary.Read(r, binary.LittleEndian, &p.MinAltitude); err != nil {
		return nil, fmt.Errorf("%w: reading zone %d altitude range", ErrTruncatedHCLMData, z.ID)
	}
	if err := binary.Read(r, binary.LittleEndian, &p.MaxAltitude); err != nil {
		return nil, fmt.Errorf("%w: reading zone %d altitude range", ErrTruncatedHCLMData, z.ID)
	}
	if err := binary.Read(r, binary.LittleEndian, p.Heights); err != nil {
		return nil, fmt.Errorf("%w: reading zone %d heights", ErrTruncatedHCLMData, z.ID)
	}
	if err := binary.Read(r, binary.LittleEndian, p.Materials); err != nil {
		return nil, fmt.Errorf("%w: reading zone %d materials", ErrTruncatedHCLMData, z.ID)
	}
	return p, nil
}

// readString reads a length prefixed string.
func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("%w: reading string length", ErrTruncatedHCLMData)
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d", ErrTruncatedHCLMData, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: reading string", ErrTruncatedHCLMData)
	}
	return string(buf), nil
}
