package stream

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/provider"

	_ "github.com/Voskan/resourcecore/pkg/provider/fileprovider"
)

type chunkedResource struct {
	head string
}

func chunkedType() *factory.ResourceType {
	return &factory.ResourceType{
		Extension:   "chunked",
		PreloadSize: 4,
		Create: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, buf []byte, _ any, _ string) (any, uint32, error) {
			return &chunkedResource{head: string(buf)}, uint32(len(buf)), nil
		},
		Destroy: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, _ any) error {
			return nil
		},
	}
}

func TestPreloadDataReadsFollowUpChunk(t *testing.T) {
	dir := t.TempDir()
	content := "0123456789"
	if err := os.WriteFile(filepath.Join(dir, "a.chunked"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	archive, err := provider.Mount(context.Background(), "file://"+dir, nil)
	if err != nil {
		t.Fatalf("provider.Mount: %v", err)
	}
	tbl := mount.New()
	tbl.AddMount(&mount.Mount{Name: "content", Archive: archive, Priority: 1})

	f := factory.New(tbl)
	if err := f.RegisterType(chunkedType()); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	desc, err := f.Get(context.Background(), "/a.chunked")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if desc.Resource.(*chunkedResource).head != content[:4] {
		t.Fatalf("head = %q, want first 4 bytes", desc.Resource.(*chunkedResource).head)
	}

	done := make(chan string, 1)
	err = PreloadData(context.Background(), f, "/a.chunked", 4, 6, func(_ context.Context, _ *factory.Factory, d *factory.Descriptor, offset, nread uint32, buf []byte) {
		if d.PathHash != desc.PathHash {
			t.Errorf("callback descriptor mismatch")
		}
		done <- string(buf)
	})
	if err != nil {
		t.Fatalf("PreloadData: %v", err)
	}

	select {
	case tail := <-done:
		if tail != content[4:] {
			t.Fatalf("tail = %q, want %q", tail, content[4:])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PreloadData callback")
	}
}

func TestPreloadDataMissingDescriptor(t *testing.T) {
	dir := t.TempDir()
	archive, err := provider.Mount(context.Background(), "file://"+dir, nil)
	if err != nil {
		t.Fatalf("provider.Mount: %v", err)
	}
	tbl := mount.New()
	tbl.AddMount(&mount.Mount{Name: "content", Archive: archive, Priority: 1})
	f := factory.New(tbl)

	if err := PreloadData(context.Background(), f, "/never-loaded.chunked", 0, 4, nil); err == nil {
		t.Fatal("expected ResourceNotFound for a path with no cached descriptor")
	}
}
