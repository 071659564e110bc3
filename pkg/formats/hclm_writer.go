package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ZoneBuild describes one zone to be written by WriteHCLM.
type ZoneBuild struct {
	ID       uint32
	OriginX  uint32
	OriginY  uint32
	Size     uint32 // square, in heightmap units
	LodCount uint32
	Payload  ZonePayload
}

// HCLMBuild describes a complete terrain header file.
type HCLMBuild struct {
	Name        string
	Description string
	ZoneSizeX   uint16
	ZoneSizeY   uint16
	Zones       []ZoneBuild
}

// FlatZone returns a zone whose samples all share one height and material.
func FlatZone(id, originX, originY, size, lodCount uint32, height float32, material uint32) ZoneBuild {
	n := int(size+1) * int(size+1)
	z := ZoneBuild{
		ID:       id,
		OriginX:  originX,
		OriginY:  originY,
		Size:     size,
		LodCount: lodCount,
		Payload: ZonePayload{
			MinAltitude: height,
			MaxAltitude: height,
			Heights:     make([]float32, n),
			Materials:   make([]uint32, n),
		},
	}
	for i := range n {
		z.Payload.Heights[i] = height
		z.Payload.Materials[i] = material
	}
	return z
}

// WriteHCLM serializes a terrain header, its zone table and every zone record.
func WriteHCLM(w io.Writer, b *HCLMBuild) error {
	const fileHeaderSize = 8 + 2 + 2 + 4 + 4

	var section bytes.Buffer
	writeString(&section, b.Name)
	writeString(&section, b.Description)

	headerOffset := uint32(fileHeaderSize)
	tableOffset := headerOffset + uint32(section.Len())
	zoneOffset := tableOffset + 4 + 2 + 2 + uint32(len(b.Zones))*8

	buf := new(bytes.Buffer)
	buf.WriteString(HCLMMagic)
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, headerOffset)
	binary.Write(buf, binary.LittleEndian, tableOffset)
	buf.Write(section.Bytes())

	binary.Write(buf, binary.LittleEndian, uint32(len(b.Zones)))
	binary.Write(buf, binary.LittleEndian, b.ZoneSizeX)
	binary.Write(buf, binary.LittleEndian, b.ZoneSizeY)

	offset := zoneOffset
	for _, z := range b.Zones {
		n := int(z.Size+1) * int(z.Size+1)
		if len(z.Payload.Heights) != n || len(z.Payload.Materials) != n {
			return fmt.Errorf("zone %d: payload needs %d samples, got %d heights and %d materials",
				z.ID, n, len(z.Payload.Heights), len(z.Payload.Materials))
		}
		binary.Write(buf, binary.LittleEndian, z.ID)
		binary.Write(buf, binary.LittleEndian, offset)
		offset += uint32(len(ZoneTag)) + 5*4 + 8 + uint32(n)*8
	}

	for _, z := range b.Zones {
		buf.WriteString(ZoneTag)
		for _, v := range []uint32{z.OriginX, z.OriginY, z.Size, z.Size, z.LodCount} {
			binary.Write(buf, binary.LittleEndian, v)
		}
		binary.Write(buf, binary.LittleEndian, z.Payload.MinAltitude)
		binary.Write(buf, binary.LittleEndian, z.Payload.MaxAltitude)
		binary.Write(buf, binary.LittleEndian, z.Payload.Heights)
		binary.Write(buf, binary.LittleEndian, z.Payload.Materials)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}
