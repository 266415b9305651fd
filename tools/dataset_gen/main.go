// dataset_gen generates a deterministic tree of synthetic resource files
// for local benchmarking and manual exercising of the mount/factory/
// preloader stack outside `go test` — point resourcectl or the factory's
// file provider at its output directory.
//
// Usage:
//   go run ./tools/dataset_gen -n 10000 --dist zipf --seed 42 --out ./fixtures
//
// © 2025 resourcecore authors. MIT License.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

var extensions = []string{"text", "bin", "cfg"}

func main() {
	var (
		n       = pflag.IntP("n", "n", 10_000, "number of resource files to generate")
		dist    = pflag.StringP("dist", "d", "uniform", "content-size distribution: uniform or zipf")
		zipfS   = pflag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = pflag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = pflag.Int64P("seed", "s", 42, "PRNG seed")
		outDir  = pflag.StringP("out", "o", "./fixtures", "output directory")
		maxSize = pflag.Int("max-size", 4096, "maximum resource body size in bytes")
	)
	pflag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var sizeOf func() int
	switch *dist {
	case "uniform":
		sizeOf = func() int { return rnd.Intn(*maxSize) + 1 }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, uint64(*maxSize-1))
		sizeOf = func() int { return int(z.Uint64()) + 1 }
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}

	body := make([]byte, *maxSize)
	for i := 0; i < *n; i++ {
		ext := extensions[rnd.Intn(len(extensions))]
		size := sizeOf()
		if size > len(body) {
			size = len(body)
		}
		rnd.Read(body[:size])
		name := fmt.Sprintf("res_%06d.%s", i, ext)
		if err := os.WriteFile(filepath.Join(*outDir, name), body[:size], 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("wrote %d resources to %s\n", *n, *outDir)
}
