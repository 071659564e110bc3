package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// TCLMMagic starts every material manifest.
const TCLMMagic = "O3DCLM TEXFILE  "

// TCLM format errors.
var (
	ErrInvalidTCLMMagic  = errors.New("invalid TCLM magic: expected 'O3DCLM TEXFILE  '")
	ErrTruncatedTCLMData = errors.New("truncated TCLM data")
	ErrInvalidMaterialID = errors.New("invalid material id")
)

// TCLMEntry maps a material id to an image path relative to the material directory.
type TCLMEntry struct {
	ID   uint32
	Path string
}

// ParseTCLM parses a material manifest.
func ParseTCLM(r io.Reader) ([]TCLMEntry, error) {
	magic := make([]byte, len(TCLMMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic", ErrTruncatedTCLMData)
	}
	if string(magic) != TCLMMagic {
		return nil, ErrInvalidTCLMMagic
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading material count", ErrTruncatedTCLMData)
	}

	entries := make([]TCLMEntry, 0, min(count, 1024))
	seen := make(map[uint32]struct{})
	for i := uint32(0); i < count; i++ {
		var e TCLMEntry
		if err := binary.Read(r, binary.LittleEndian, &e.ID); err != nil {
			return nil, fmt.Errorf("%w: reading material %d id", ErrTruncatedTCLMData, i)
		}
		path, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading material %d path", ErrTruncatedTCLMData, i)
		}
		e.Path = path

		if e.ID == 0 {
			return nil, fmt.Errorf("%w: id 0 is reserved for the null material", ErrInvalidMaterialID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidMaterialID, e.ID)
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteTCLM serializes a material manifest.
func WriteTCLM(w io.Writer, entries []TCLMEntry) error {
	buf := new(bytes.Buffer)
	buf.WriteString(TCLMMagic)
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(buf, binary.LittleEndian, e.ID)
		writeString(buf, e.Path)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
