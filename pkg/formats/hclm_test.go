package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestHCLM writes a terrain with the given zones into memory.
func createTestHCLM(t *testing.T, zones ...ZoneBuild) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	err := WriteHCLM(buf, &HCLMBuild{
		Name:        "testland",
		Description: "generated for tests",
		ZoneSizeX:   8,
		ZoneSizeY:   8,
		Zones:       zones,
	})
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseHCLM_ValidFile(t *testing.T) {
	data := createTestHCLM(t,
		FlatZone(1, 0, 0, 8, 2, 5, 1),
		FlatZone(7, 8, 0, 8, 2, 3, 2),
	)

	h, err := ParseHCLM(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, HCLMVersion{1, 0}, h.Version)
	require.Equal(t, "testland", h.Name)
	require.Equal(t, "generated for tests", h.Description)
	require.Equal(t, uint16(8), h.ZoneSizeX)
	require.Len(t, h.Zones, 2)

	z := h.Zones[1]
	require.Equal(t, uint32(7), z.ID)
	require.Equal(t, 1, z.GridX(h.ZoneSizeX))
	require.Equal(t, 0, z.GridY(h.ZoneSizeY))
	require.Equal(t, 1, z.ExtensionX(h.ZoneSizeX))
	require.Equal(t, uint32(2), z.LodCount)

	w, ht := h.GridSize()
	require.Equal(t, 2, w)
	require.Equal(t, 1, ht)
}

func TestReadZonePayload(t *testing.T) {
	zone := FlatZone(3, 0, 0, 8, 3, 0, 4)
	zone.Payload.Heights[10] = 42
	zone.Payload.MaxAltitude = 42
	data := createTestHCLM(t, zone)

	r := bytes.NewReader(data)
	h, err := ParseHCLM(r)
	require.NoError(t, err)

	p, err := ReadZonePayload(r, h.Zones[0])
	require.NoError(t, err)
	require.Len(t, p.Heights, 81)
	require.Len(t, p.Materials, 81)
	require.Equal(t, float32(42), p.Heights[10])
	require.Equal(t, float32(42), p.MaxAltitude)
	require.Equal(t, uint32(4), p.Materials[80])
}

func TestParseHCLM_InvalidMagic(t *testing.T) {
	data := createTestHCLM(t, FlatZone(1, 0, 0, 8, 1, 0, 0))
	copy(data, "XXXXXXXX")

	_, err := ParseHCLM(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrInvalidHCLMMagic)
}

func TestParseHCLM_TruncatedData(t *testing.T) {
	_, err := ParseHCLM(bytes.NewReader([]byte("O3DHCLM ")))
	require.ErrorIs(t, err, ErrTruncatedHCLMData)

	data := createTestHCLM(t, FlatZone(1, 0, 0, 8, 1, 0, 0))
	_, err = ParseHCLM(bytes.NewReader(data[:len(data)-4]))
	require.ErrorIs(t, err, ErrTruncatedHCLMData)
}

func TestParseHCLM_UnsupportedVersion(t *testing.T) {
	data := createTestHCLM(t, FlatZone(1, 0, 0, 8, 1, 0, 0))
	binary.LittleEndian.PutUint16(data[8:], 2)

	_, err := ParseHCLM(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrUnsupportedHCLMVersion)
}

func TestParseHCLM_TableSizeMismatch(t *testing.T) {
	data := createTestHCLM(t, FlatZone(1, 0, 0, 8, 1, 0, 0))
	tableOffset := binary.LittleEndian.Uint32(data[16:])
	binary.LittleEndian.PutUint32(data[tableOffset:], 5000)

	_, err := ParseHCLM(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrInvalidZoneTable)
}

func TestParseHCLM_BadZoneTag(t *testing.T) {
	data := createTestHCLM(t, FlatZone(1, 0, 0, 8, 1, 0, 0))
	idx := bytes.Index(data, []byte(ZoneTag))
	require.GreaterOrEqual(t, idx, 0)
	copy(data[idx:], "ENOZ")

	_, err := ParseHCLM(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrInvalidZoneTag)
}

func TestParseHCLM_InvalidZones(t *testing.T) {
	tests := []struct {
		name  string
		zones []ZoneBuild
		want  error
	}{
		{"reserved id", []ZoneBuild{FlatZone(0, 0, 0, 8, 1, 0, 0)}, ErrInvalidZoneTable},
		{"duplicate id", []ZoneBuild{FlatZone(1, 0, 0, 8, 1, 0, 0), FlatZone(1, 8, 0, 8, 1, 0, 0)}, ErrInvalidZoneTable},
		{"overlap", []ZoneBuild{FlatZone(1, 0, 0, 16, 1, 0, 0), FlatZone(2, 8, 8, 8, 1, 0, 0)}, ErrInvalidZoneTable},
		{"not a multiple", []ZoneBuild{FlatZone(1, 0, 0, 4, 1, 0, 0)}, ErrInvalidZoneHeader},
		{"misaligned", []ZoneBuild{FlatZone(1, 4, 0, 8, 1, 0, 0)}, ErrInvalidZoneHeader},
		{"too many lods", []ZoneBuild{FlatZone(1, 0, 0, 8, 5, 0, 0)}, ErrInvalidZoneHeader},
		{"no lod", []ZoneBuild{FlatZone(1, 0, 0, 8, 0, 0, 0)}, ErrInvalidZoneHeader},
		{"origin far outside grid", []ZoneBuild{FlatZone(1, 1<<30, 1<<30, 8, 1, 0, 0)}, ErrInvalidZoneTable},
		{"grid too wide", []ZoneBuild{FlatZone(1, 8*MaxGridSide, 0, 8, 1, 0, 0)}, ErrInvalidZoneTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := createTestHCLM(t, tt.zones...)
			_, err := ParseHCLM(bytes.NewReader(data))
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestWriteHCLM_PayloadMismatch(t *testing.T) {
	z := FlatZone(1, 0, 0, 8, 1, 0, 0)
	z.Payload.Heights = z.Payload.Heights[:3]
	err := WriteHCLM(new(bytes.Buffer), &HCLMBuild{ZoneSizeX: 8, ZoneSizeY: 8, Zones: []ZoneBuild{z}})
	require.Error(t, err)
}

func TestHCLMVersion_String(t *testing.T) {
	require.Equal(t, "1.0", HCLMVersion{1, 0}.String())
	require.Equal(t, "2.13", HCLMVersion{2, 13}.String())
}

func TestHCLM_CheckGrid(t *testing.T) {
	h := &HCLM{ZoneSizeX: 8, ZoneSizeY: 8}
	h.Zones = []ZoneHeader{{ID: 1, OriginX: 8 * (MaxGridSide - 1), OriginY: 0, SizeX: 8, SizeY: 8}}
	require.NoError(t, h.CheckGrid())

	// Each side fits but the area does not.
	h.Zones[0].OriginY = 8 * (MaxGridSide - 1)
	require.ErrorIs(t, h.CheckGrid(), ErrInvalidZoneTable)
}
