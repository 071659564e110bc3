package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	gomath "math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/pclod/internal/config"
	"github.com/Faultbox/pclod/internal/engine/texture"
	"github.com/Faultbox/pclod/pkg/formats"
)

// genOptions drives the procedural terrain generator.
type genOptions struct {
	Dir       string
	Name      string
	Zones     int // zones per side
	Size      int // heightmap units per zone side
	Lods      int
	Seed      uint64
	Amplitude float64
	Colormaps bool
}

// generated material ids and their altitude bands, low to high.
var genMaterials = []struct {
	id    uint32
	file  string
	color color.RGBA
}{
	{1, "grass.bmp", color.RGBA{86, 125, 70, 255}},
	{2, "rock.bmp", color.RGBA{120, 110, 100, 255}},
	{3, "snow.tga", color.RGBA{235, 240, 245, 255}},
}

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	opts := genOptions{}
	fs.StringVar(&opts.Name, "name", "generated", "Terrain name")
	fs.IntVar(&opts.Zones, "zones", 4, "Zones per side")
	fs.IntVar(&opts.Size, "size", 64, "Heightmap units per zone side (power of two)")
	fs.IntVar(&opts.Lods, "lods", 4, "Detail levels per zone")
	fs.Uint64Var(&opts.Seed, "seed", 1, "Random seed")
	fs.Float64Var(&opts.Amplitude, "amplitude", 40, "Height range in world units")
	fs.BoolVar(&opts.Colormaps, "colormaps", false, "Also write baked colormaps")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: hclmtool generate [options] <dir>")
	}
	opts.Dir = fs.Arg(0)

	if err := generate(opts); err != nil {
		return err
	}
	fmt.Printf("Wrote %dx%d zones to %s (run terrainview -config %s)\n", opts.Zones, opts.Zones, opts.Dir, filepath.Join(opts.Dir, "terrainview.yaml"))
	return nil
}

func generate(opts genOptions) error {
	if opts.Zones < 1 || opts.Size < 2 || opts.Size&(opts.Size-1) != 0 {
		return fmt.Errorf("need at least one zone and a power of two zone size")
	}
	if opts.Lods < 1 || opts.Lods > formats.MaxLodCount {
		return fmt.Errorf("lods must be in [1, %d]", formats.MaxLodCount)
	}

	materialDir := filepath.Join(opts.Dir, "materials")
	if err := os.MkdirAll(materialDir, 0o755); err != nil {
		return err
	}

	field := newHeightField(opts.Seed, opts.Amplitude)
	build := &formats.HCLMBuild{
		Name:        opts.Name,
		Description: fmt.Sprintf("procedural, seed %d", opts.Seed),
		ZoneSizeX:   uint16(opts.Size),
		ZoneSizeY:   uint16(opts.Size),
	}
	for zy := range opts.Zones {
		for zx := range opts.Zones {
			id := uint32(zy*opts.Zones + zx + 1)
			build.Zones = append(build.Zones, field.zone(id, zx*opts.Size, zy*opts.Size, opts.Size, opts.Lods))
		}
	}

	if err := writeFile(filepath.Join(opts.Dir, "terrain.hclm"), func(w io.Writer) error {
		return formats.WriteHCLM(w, build)
	}); err != nil {
		return err
	}

	entries := make([]formats.TCLMEntry, 0, len(genMaterials))
	for _, m := range genMaterials {
		entries = append(entries, formats.TCLMEntry{ID: m.id, Path: m.file})
		if err := writeImage(filepath.Join(materialDir, m.file), speckled(m.color, opts.Seed+uint64(m.id))); err != nil {
			return err
		}
	}
	if err := writeFile(filepath.Join(opts.Dir, "terrain.tclm"), func(w io.Writer) error {
		return formats.WriteTCLM(w, entries)
	}); err != nil {
		return err
	}

	if opts.Colormaps {
		dir := filepath.Join(opts.Dir, "colormaps")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, z := range build.Zones {
			path := filepath.Join(dir, strconv.FormatUint(uint64(z.ID), 10)+".bmp")
			if err := writeImage(path, bakeColormap(z)); err != nil {
				return err
			}
		}
	}

	return config.ForData(opts.Dir).SaveTo(filepath.Join(opts.Dir, "terrainview.yaml"))
}

// heightField is a sum of a few random waves sampled in global units, so
// neighbouring zones share their edge samples.
type heightField struct {
	amplitude float64
	waves     [6]struct{ fx, fy, phase, weight float64 }
}

func newHeightField(seed uint64, amplitude float64) *heightField {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	f := &heightField{amplitude: amplitude}
	total := 0.0
	for i := range f.waves {
		freq := 0.01 * float64(int(1)<<i) / 2
		angle := r.Float64() * 2 * gomath.Pi
		f.waves[i].fx = freq * gomath.Cos(angle)
		f.waves[i].fy = freq * gomath.Sin(angle)
		f.waves[i].phase = r.Float64() * 2 * gomath.Pi
		f.waves[i].weight = 1 / float64(int(1)<<i)
		total += f.waves[i].weight
	}
	for i := range f.waves {
		f.waves[i].weight /= total
	}
	return f
}

// at returns a height in [0, amplitude].
func (f *heightField) at(x, y int) float32 {
	v := 0.0
	for _, w := range f.waves {
		v += w.weight * gomath.Sin(w.fx*float64(x)+w.fy*float64(y)+w.phase)
	}
	return float32((v + 1) / 2 * f.amplitude)
}

func (f *heightField) materialFor(h float32) uint32 {
	switch t := float64(h) / f.amplitude; {
	case t > 0.7:
		return 3
	case t > 0.45:
		return 2
	default:
		return 1
	}
}

func (f *heightField) zone(id uint32, ox, oy, size, lods int) formats.ZoneBuild {
	z := formats.FlatZone(id, uint32(ox), uint32(oy), uint32(size), uint32(lods), 0, 0)
	n := size + 1
	lo, hi := float32(gomath.MaxFloat32), float32(-gomath.MaxFloat32)
	for y := range n {
		for x := range n {
			h := f.at(ox+x, oy+y)
			z.Payload.Heights[y*n+x] = h
			z.Payload.Materials[y*n+x] = f.materialFor(h)
			lo = min(lo, h)
			hi = max(hi, h)
		}
	}
	z.Payload.MinAltitude = lo
	z.Payload.MaxAltitude = hi
	return z
}

// speckled returns a small tileable material texture.
func speckled(base color.RGBA, seed uint64) *image.RGBA {
	r := rand.New(rand.NewPCG(seed, seed+1))
	img := texture.Solid(32, 32, base)
	for i := 0; i < len(img.Pix); i += 4 {
		d := uint8(r.IntN(24))
		for c := range 3 {
			img.Pix[i+c] = img.Pix[i+c] - min(img.Pix[i+c], d)
		}
	}
	return img
}

func bakeColormap(z formats.ZoneBuild) *image.RGBA {
	n := int(z.Size) + 1
	img := image.NewRGBA(image.Rect(0, 0, n, n))
	for y := range n {
		for x := range n {
			id := z.Payload.Materials[y*n+x]
			for _, m := range genMaterials {
				if m.id == id {
					img.SetRGBA(x, y, m.color)
				}
			}
		}
	}
	return img
}

func writeImage(path string, img *image.RGBA) error {
	return writeFile(path, func(w io.Writer) error {
		if filepath.Ext(path) == ".tga" {
			return texture.EncodeTGA(w, img)
		}
		return bmp.Encode(w, img)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
