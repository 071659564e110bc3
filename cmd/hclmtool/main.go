// hclmtool is a CLI utility for inspecting and generating PCLOD terrain files.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/Faultbox/pclod/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "zones", "ls":
		err = cmdZones(args)
	case "materials", "mat":
		err = cmdMaterials(args)
	case "generate", "gen":
		err = cmdGenerate(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hclmtool - PCLOD terrain file utility

Usage:
  hclmtool <command> [options]

Commands:
  info <file.hclm>                  Show header information
  zones <file.hclm> [-payload]      List zones and their extent
  materials <file.tclm>             List material manifest entries
  generate [options] <dir>          Write a procedural terrain

Examples:
  hclmtool info land.hclm
  hclmtool zones -payload land.hclm
  hclmtool generate -zones 8 -size 64 -seed 7 ./land`)
}

func openHeader(path string) (*formats.HCLM, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	h, err := formats.ParseHCLM(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, f, nil
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hclmtool info <file.hclm>")
	}

	h, f, err := openHeader(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	w, hgt := h.GridSize()
	fmt.Printf("Terrain:     %s\n", args[0])
	fmt.Printf("Version:     %s\n", h.Version)
	fmt.Printf("Name:        %s\n", h.Name)
	if h.Description != "" {
		fmt.Printf("Description: %s\n", h.Description)
	}
	fmt.Printf("Zone size:   %dx%d units\n", h.ZoneSizeX, h.ZoneSizeY)
	fmt.Printf("Zones:       %d\n", len(h.Zones))
	fmt.Printf("Grid:        %dx%d\n", w, hgt)

	// Count by extension
	sizes := make(map[[2]int]int)
	for _, z := range h.Zones {
		sizes[[2]int{z.ExtensionX(h.ZoneSizeX), z.ExtensionY(h.ZoneSizeY)}]++
	}
	if len(sizes) > 1 {
		fmt.Println()
		fmt.Println("Zones by extension:")
		keys := make([][2]int, 0, len(sizes))
		for k := range sizes {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return sizes[keys[i]] > sizes[keys[j]]
		})
		for _, k := range keys {
			fmt.Printf("  %dx%-6d %d\n", k[0], k[1], sizes[k])
		}
	}
	return nil
}

func cmdZones(args []string) error {
	fs := flag.NewFlagSet("zones", flag.ExitOnError)
	payload := fs.Bool("payload", false, "Read each payload and print its altitude range")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: hclmtool zones [-payload] <file.hclm>")
	}

	h, f, err := openHeader(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	zones := append([]formats.ZoneHeader(nil), h.Zones...)
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	fmt.Printf("%-8s %-10s %-10s %-6s %-5s", "ID", "ORIGIN", "SIZE", "GRID", "LODS")
	if *payload {
		fmt.Printf(" %-10s %-10s", "MIN", "MAX")
	}
	fmt.Println()
	for _, z := range zones {
		fmt.Printf("%-8d %-10s %-10s %-6s %-5d",
			z.ID,
			fmt.Sprintf("%d,%d", z.OriginX, z.OriginY),
			fmt.Sprintf("%dx%d", z.SizeX, z.SizeY),
			fmt.Sprintf("%d,%d", z.GridX(h.ZoneSizeX), z.GridY(h.ZoneSizeY)),
			z.LodCount,
		)
		if *payload {
			p, err := formats.ReadZonePayload(f, z)
			if err != nil {
				return err
			}
			fmt.Printf(" %-10.2f %-10.2f", p.MinAltitude, p.MaxAltitude)
		}
		fmt.Println()
	}
	return nil
}

func cmdMaterials(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hclmtool materials <file.tclm>")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := formats.ParseTCLM(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	for _, e := range entries {
		fmt.Printf("%-6d %s\n", e.ID, e.Path)
	}
	fmt.Fprintf(os.Stderr, "\n(%d materials)\n", len(entries))
	return nil
}
