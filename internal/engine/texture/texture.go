// Package texture provides image decoding and texture processing utilities.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// Extensions lists the image files Decode understands, in lookup order.
var Extensions = []string{".png", ".bmp", ".tga"}

// Decode decodes an image, choosing the decoder from the file extension.
func Decode(path string, data []byte) (*image.RGBA, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tga":
		return DecodeTGA(data)
	case ".bmp":
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding BMP %s: %w", path, err)
		}
		return ImageToRGBA(img), nil
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding PNG %s: %w", path, err)
		}
		return ImageToRGBA(img), nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return ImageToRGBA(img), nil
}

// ImageToRGBA converts any image.Image to *image.RGBA with a zero origin.
func ImageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// AverageColor returns the mean color of an image.
func AverageColor(img *image.RGBA) color.RGBA {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return color.RGBA{}
	}
	var sum [4]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			for c := range 4 {
				sum[c] += int(img.Pix[i+c])
			}
		}
	}
	return color.RGBA{
		R: uint8(sum[0] / n),
		G: uint8(sum[1] / n),
		B: uint8(sum[2] / n),
		A: uint8(sum[3] / n),
	}
}

// Solid creates a w×h image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Resize box-filters img down, or replicates pixels up, to w×h.
func Resize(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		y0 := b.Min.Y + y*b.Dy()/h
		y1 := max(b.Min.Y+(y+1)*b.Dy()/h, y0+1)
		for x := range w {
			x0 := b.Min.X + x*b.Dx()/w
			x1 := max(b.Min.X+(x+1)*b.Dx()/w, x0+1)
			var sum [4]int
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					i := img.PixOffset(sx, sy)
					for c := range 4 {
						sum[c] += int(img.Pix[i+c])
					}
				}
			}
			n := (y1 - y0) * (x1 - x0)
			o := out.PixOffset(x, y)
			for c := range 4 {
				out.Pix[o+c] = uint8(sum[c] / n)
			}
		}
	}
	return out
}
