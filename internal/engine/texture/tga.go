package texture

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

const tgaHeaderSize = 18

// DecodeTGA decodes a TGA image file.
// Supports uncompressed true-color (type 2) and RLE compressed (type 10)
// files with 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("TGA data too short")
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(binary.LittleEndian.Uint16(data[12:14]))
	height := int(binary.LittleEndian.Uint16(data[14:16]))
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("unsupported TGA type %d (only uncompressed/RLE true-color supported)", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d (only 24/32 supported)", bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("TGA data truncated")
	}

	d := tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		width:       width,
		height:      height,
		pixelSize:   bpp / 8,
		topToBottom: descriptor&0x20 != 0,
	}
	if imageType == TGATypeUncompressed {
		if len(d.src) < width*height*d.pixelSize {
			return nil, fmt.Errorf("TGA pixel data truncated")
		}
		for d.written < width*height {
			d.put(d.next())
		}
		return d.img, nil
	}
	if err := d.decodeRLE(); err != nil {
		return nil, err
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.RGBA
	src         []byte
	pos         int
	written     int
	width       int
	height      int
	pixelSize   int
	topToBottom bool
}

// next reads one BGR(A) pixel from the source.
func (d *tgaDecoder) next() color.RGBA {
	p := d.src[d.pos : d.pos+d.pixelSize]
	d.pos += d.pixelSize
	c := color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if d.pixelSize == 4 {
		c.A = p[3]
	}
	return c
}

// put stores a pixel at the current output position.
func (d *tgaDecoder) put(c color.RGBA) {
	x := d.written % d.width
	y := d.written / d.width
	if !d.topToBottom {
		y = d.height - 1 - y
	}
	d.img.SetRGBA(x, y, c)
	d.written++
}

func (d *tgaDecoder) decodeRLE() error {
	total := d.width * d.height
	for d.written < total {
		if d.pos >= len(d.src) {
			return fmt.Errorf("TGA RLE data truncated at pixel %d", d.written)
		}
		packet := d.src[d.pos]
		d.pos++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			if d.pos+d.pixelSize > len(d.src) {
				return fmt.Errorf("TGA RLE data truncated at pixel %d", d.written)
			}
			c := d.next()
			for i := 0; i < count && d.written < total; i++ {
				d.put(c)
			}
			continue
		}
		for i := 0; i < count && d.written < total; i++ {
			if d.pos+d.pixelSize > len(d.src) {
				return fmt.Errorf("TGA RLE data truncated at pixel %d", d.written)
			}
			d.put(d.next())
		}
	}
	return nil
}

// EncodeTGA writes img as an uncompressed 32-bit top-to-bottom TGA file.
func EncodeTGA(w io.Writer, img image.Image) error {
	rgba := ImageToRGBA(img)
	b := rgba.Bounds()
	if b.Dx() > 0xFFFF || b.Dy() > 0xFFFF {
		return fmt.Errorf("image %dx%d too large for TGA", b.Dx(), b.Dy())
	}

	header := make([]byte, tgaHeaderSize)
	header[2] = TGATypeUncompressed
	binary.LittleEndian.PutUint16(header[12:14], uint16(b.Dx()))
	binary.LittleEndian.PutUint16(header[14:16], uint16(b.Dy()))
	header[16] = 32
	header[17] = 0x20 | 8 // top-to-bottom, 8 alpha bits
	if _, err := w.Write(header); err != nil {
		return err
	}

	row := make([]byte, b.Dx()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := rgba.PixOffset(x, y)
			o := (x - b.Min.X) * 4
			row[o] = rgba.Pix[i+2]
			row[o+1] = rgba.Pix[i+1]
			row[o+2] = rgba.Pix[i]
			row[o+3] = rgba.Pix[i+3]
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
