package mount

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"

	_ "github.com/Voskan/resourcecore/pkg/provider/fileprovider"
)

// fakeArchive is a minimal in-memory provider.Archive for table-ordering
// tests that don't need a real filesystem/provider round-trip.
type fakeArchive struct {
	files map[uint64][]byte
}

func newFakeArchive(files map[uint64][]byte) *fakeArchive {
	return &fakeArchive{files: files}
}

func (a *fakeArchive) GetFileSize(_ context.Context, h uint64, _ string) (uint32, error) {
	buf, ok := a.files[h]
	if !ok {
		return 0, rpath.Errf(rpath.ResourceNotFound, "fakeArchive", "", nil)
	}
	return uint32(len(buf)), nil
}

func (a *fakeArchive) ReadFile(_ context.Context, h uint64, _ string) ([]byte, error) {
	buf, ok := a.files[h]
	if !ok {
		return nil, rpath.Errf(rpath.ResourceNotFound, "fakeArchive", "", nil)
	}
	return buf, nil
}

func (a *fakeArchive) ReadFilePartial(ctx context.Context, h uint64, path string, offset, size uint32) ([]byte, error) {
	full, err := a.ReadFile(ctx, h, path)
	if err != nil {
		return nil, err
	}
	end := offset + size
	if end > uint32(len(full)) {
		end = uint32(len(full))
	}
	return full[offset:end], nil
}

func (a *fakeArchive) Manifest() *manifest.Manifest { return nil }
func (a *fakeArchive) Close() error                 { return nil }

var _ provider.Archive = (*fakeArchive)(nil)

func TestFirstHitWinsByPriority(t *testing.T) {
	tbl := New()
	low := newFakeArchive(map[uint64][]byte{1: []byte("low-priority")})
	high := newFakeArchive(map[uint64][]byte{1: []byte("high-priority")})

	tbl.AddMount(&Mount{Name: "low", Archive: low, Priority: 1})
	tbl.AddMount(&Mount{Name: "high", Archive: high, Priority: 10})

	buf, err := tbl.ReadResource(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if string(buf) != "high-priority" {
		t.Fatalf("got %q, want high-priority content", buf)
	}
}

func TestNotFoundFallsThroughToNextMount(t *testing.T) {
	tbl := New()
	a := newFakeArchive(map[uint64][]byte{})
	b := newFakeArchive(map[uint64][]byte{2: []byte("found")})
	tbl.AddMount(&Mount{Name: "a", Archive: a, Priority: 10})
	tbl.AddMount(&Mount{Name: "b", Archive: b, Priority: 1})

	buf, err := tbl.ReadResource(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if string(buf) != "found" {
		t.Fatalf("got %q", buf)
	}
}

func TestSyntheticFileWinsAgainstProviders(t *testing.T) {
	tbl := New()
	a := newFakeArchive(map[uint64][]byte{5: []byte("from-provider")})
	tbl.AddMount(&Mount{Name: "a", Archive: a, Priority: 10})

	if err := tbl.AddFile(5, []byte("synthetic")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	buf, err := tbl.ReadResource(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if string(buf) != "synthetic" {
		t.Fatalf("got %q, want synthetic content to win", buf)
	}

	if err := tbl.AddFile(5, []byte("again")); rpath.ResultOf(err) != rpath.AlreadyRegistered {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}

	tbl.RemoveFile(5)
	buf, err = tbl.ReadResource(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("ReadResource after RemoveFile: %v", err)
	}
	if string(buf) != "from-provider" {
		t.Fatalf("got %q, want provider content after removing synthetic file", buf)
	}
}

func TestRemoveMountPreservesOrder(t *testing.T) {
	tbl := New()
	a := newFakeArchive(nil)
	b := newFakeArchive(nil)
	c := newFakeArchive(nil)
	tbl.AddMount(&Mount{Name: "a", Archive: a, Priority: 30})
	tbl.AddMount(&Mount{Name: "b", Archive: b, Priority: 20})
	tbl.AddMount(&Mount{Name: "c", Archive: c, Priority: 10})

	if err := tbl.RemoveMount(b); err != nil {
		t.Fatalf("RemoveMount: %v", err)
	}

	names := []string{}
	for _, m := range tbl.Mounts() {
		names = append(names, m.Name)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Fatalf("mounts after removal = %v, want [a c]", names)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "content")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl := New()
	archive, err := provider.Mount(context.Background(), "file://"+root, nil)
	if err != nil {
		t.Fatalf("provider.Mount: %v", err)
	}
	tbl.AddMount(&Mount{Name: "content", Archive: archive, Priority: 5, Persist: true, URI: "file://" + root})

	mountsFile := filepath.Join(dir, "liveupdate.mounts")
	if err := tbl.Save(mountsFile); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New()
	if err := loaded.Load(context.Background(), mountsFile); err != nil {
		t.Fatalf("Load: %v", err)
	}
	mounts := loaded.Mounts()
	if len(mounts) != 1 || mounts[0].Name != "content" || mounts[0].Priority != 5 {
		t.Fatalf("loaded mounts = %+v", mounts)
	}
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "liveupdate.mounts")
	if err := os.WriteFile(path, []byte("VERSION@,@999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl := New()
	if err := tbl.Load(context.Background(), path); rpath.ResultOf(err) != rpath.VersionMismatch {
		t.Fatalf("expected VersionMismatch, got %v", err)
	}
}
