// Package main provides the entry point for ppuxlate, a static binary
// translator for PPU (PowerPC) code segments.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cellforge/ppuxlate/config"
	"github.com/cellforge/ppuxlate/dcache"
	"github.com/cellforge/ppuxlate/ir"
	"github.com/cellforge/ppuxlate/ppc"
	"github.com/cellforge/ppuxlate/segment"
)

var (
	verbose    = flag.Bool("v", false, "Verbose output")
	dumpModule = flag.Bool("dump", false, "Print the translated IR module")
	configPath = flag.String("config", "", "Path to translator configuration JSON file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 3 {
		fmt.Fprintf(os.Stderr, "Usage: ppuxlate [options] <base-addr-hex> <size-hex> <image>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	address, err := parseHex(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing base address: %v\n", err)
		os.Exit(1)
	}

	size, err := parseHex(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing size: %v\n", err)
		os.Exit(1)
	}

	imagePath := flag.Arg(2)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading translator config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid translator config: %v\n", err)
		os.Exit(1)
	}

	mem, err := loadImage(imagePath, address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading image: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Image: %s\n", imagePath)
		fmt.Printf("Segment: %#x + %#x\n", address, size)
	}

	var cache *dcache.Cache
	if cfg.DecodeCacheEnabled {
		cache = dcache.New(dcache.Config{Sets: cfg.DecodeCacheSets, Associativity: cfg.DecodeCacheWays})
	}

	opts := segment.Options{
		OnUnknownFunction: func(entry uint32, err error) {
			fmt.Fprintf(os.Stderr, "warning: skipping function at %#x: %v\n", entry, err)
		},
		MaxFunctionSize: cfg.MaxFunctionSize,
		Cache:           cache,
		WarnUnknownOpcode: func(addr uint32, inst ppc.Instruction) {
			if cfg.WarnOnUnknownOpcode {
				fmt.Fprintf(os.Stderr, "warning: unknown opcode %q at %#x\n", inst.Mnemonic, addr)
			}
		},
	}

	seg, err := segment.Analyze(mem, address, size, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing segment: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Functions found: %d\n", len(seg.Functions))
	}

	err = segment.Translate(fmt.Sprintf("seg_%08x", address), ir.NewReferenceModule, seg, cfg.Passes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error translating segment: %v\n", err)
		os.Exit(1)
	}

	if *dumpModule {
		fmt.Print(seg.Module.Dump())
	}
}

func parseHex(s string) (uint32, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// flatMemory is a big-endian, zero-filled, word-addressable view over a
// raw binary image loaded at a fixed base address. Executable image
// loading (ELF/section parsing) is out of scope for this translator; a
// caller that needs it feeds a pre-extracted code segment straight in.
type flatMemory struct {
	base uint32
	data []byte
}

func loadImage(path string, base uint32) (*flatMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return &flatMemory{base: base, data: data}, nil
}

func (m *flatMemory) Read32(addr uint32) uint32 {
	off := int64(addr) - int64(m.base)
	if off < 0 || off+4 > int64(len(m.data)) {
		return 0
	}
	return binary.BigEndian.Uint32(m.data[off : off+4])
}
