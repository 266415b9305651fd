// Package bench provides reproducible micro-benchmarks for the typed
// resource factory. Run via: go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// Each benchmark builds its own pre-populated content directory and factory
// through the same helper, so results are comparable across versions:
//   1. Get                — cache-hit read path (refcount bump, no load)
//   2. GetReleaseParallel — matched Get/Release pairs under concurrency
//   3. GetMiss        — cold load through the file provider, one-shot type
//
// © 2025 resourcecore authors. MIT License.
package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/provider"

	_ "github.com/Voskan/resourcecore/pkg/provider/fileprovider"
)

type benchResource struct {
	body string
}

func benchType() *factory.ResourceType {
	return &factory.ResourceType{
		Extension: "bin",
		Create: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, buf []byte, _ any, _ string) (any, uint32, error) {
			return &benchResource{body: string(buf)}, uint32(len(buf)), nil
		},
		Destroy: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, _ any) error {
			return nil
		},
	}
}

const fileCount = 1024

func newBenchFactory(b *testing.B) (*factory.Factory, string) {
	b.Helper()
	dir := b.TempDir()
	for i := 0; i < fileCount; i++ {
		name := fmt.Sprintf("res_%04d.bin", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("payload-"+name), 0o644); err != nil {
			b.Fatal(err)
		}
	}

	archive, err := provider.Mount(context.Background(), "file://"+dir, nil)
	if err != nil {
		b.Fatalf("provider.Mount: %v", err)
	}
	tbl := mount.New()
	tbl.AddMount(&mount.Mount{Name: "content", Archive: archive, Priority: 1})

	f := factory.New(tbl)
	if err := f.RegisterType(benchType()); err != nil {
		b.Fatalf("RegisterType: %v", err)
	}
	return f, dir
}

func BenchmarkGet(b *testing.B) {
	f, _ := newBenchFactory(b)
	defer f.Close(context.Background())
	ctx := context.Background()

	// Warm the cache so the benchmark measures the hit path only.
	paths := make([]string, fileCount)
	for i := range paths {
		paths[i] = fmt.Sprintf("/res_%04d.bin", i)
		desc, err := f.Get(ctx, paths[i])
		if err != nil {
			b.Fatal(err)
		}
		f.Release(ctx, desc.Resource)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		desc, err := f.Get(ctx, paths[i%fileCount])
		if err != nil {
			b.Fatal(err)
		}
		f.Release(ctx, desc.Resource)
	}
}

func BenchmarkGetReleaseParallel(b *testing.B) {
	f, _ := newBenchFactory(b)
	defer f.Close(context.Background())
	ctx := context.Background()

	paths := make([]string, fileCount)
	for i := range paths {
		paths[i] = fmt.Sprintf("/res_%04d.bin", i)
		desc, err := f.Get(ctx, paths[i])
		if err != nil {
			b.Fatal(err)
		}
		f.Release(ctx, desc.Resource)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			desc, err := f.Get(ctx, paths[i%fileCount])
			if err != nil {
				b.Fatal(err)
			}
			f.Release(ctx, desc.Resource)
			i++
		}
	})
}

func BenchmarkGetMiss(b *testing.B) {
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		dir := b.TempDir()
		name := "res.bin"
		if err := os.WriteFile(filepath.Join(dir, name), []byte("payload"), 0o644); err != nil {
			b.Fatal(err)
		}
		archive, err := provider.Mount(ctx, "file://"+dir, nil)
		if err != nil {
			b.Fatal(err)
		}
		tbl := mount.New()
		tbl.AddMount(&mount.Mount{Name: "content", Archive: archive, Priority: 1})
		f := factory.New(tbl)
		if err := f.RegisterType(benchType()); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := f.Get(ctx, "/res.bin"); err != nil {
			b.Fatal(err)
		}

		b.StopTimer()
		f.Close(ctx)
		b.StartTimer()
	}
}
