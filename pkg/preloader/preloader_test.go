package preloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"

	_ "github.com/Voskan/resourcecore/pkg/provider/fileprovider"
)

type treeResource struct {
	name     string
	children []*treeResource
	closed   bool
}

// treeType's Preload reads the file's content as a newline-separated list of
// child paths (a "#"-prefixed first line means "no children") and hints each
// one, exercising the hint-channel / tree-building path; Create just walks
// the already-created children off the factory.
func treeType() *factory.ResourceType {
	return &factory.ResourceType{
		Extension: "tree",
		Preload: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, buf []byte, _ uint32, _ bool, _ string, hint factory.PreloadHint) (any, error) {
			lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
			var childPaths []string
			for _, l := range lines {
				l = strings.TrimSpace(l)
				if l == "" || l == "leaf" {
					continue
				}
				childPaths = append(childPaths, l)
				if hint != nil {
					hint.Hint(l)
				}
			}
			return childPaths, nil
		},
		Create: func(_ context.Context, f *factory.Factory, _ *factory.ResourceType, _ []byte, preloadData any, filename string) (any, uint32, error) {
			r := &treeResource{name: filename}
			return r, 1, nil
		},
		Destroy: func(_ context.Context, _ *factory.Factory, _ *factory.ResourceType, resource any) error {
			resource.(*treeResource).closed = true
			return nil
		},
	}
}

func newTestEnv(t *testing.T) (*factory.Factory, string) {
	t.Helper()
	dir := t.TempDir()

	archive, err := provider.Mount(context.Background(), "file://"+dir, nil)
	if err != nil {
		t.Fatalf("provider.Mount: %v", err)
	}
	tbl := mount.New()
	tbl.AddMount(&mount.Mount{Name: "content", Archive: archive, Priority: 1})

	f := factory.New(tbl)
	if err := f.RegisterType(treeType()); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}
	return f, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPreloaderSingleLeaf(t *testing.T) {
	f, dir := newTestEnv(t)
	writeFile(t, dir, "a.tree", "leaf")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, accepted := New(f, queue, []string{"/a.tree"}, nil)
	if len(accepted) != 1 {
		t.Fatalf("accepted = %v, want 1 root", accepted)
	}

	result := pl.Update(context.Background(), 200*time.Millisecond)
	if result != rpath.OK {
		t.Fatalf("Update result = %v, want OK (err=%v)", result, pl.Err())
	}
	desc := pl.RootDescriptor(0)
	if desc == nil || desc.Resource.(*treeResource).name != "/a.tree" {
		t.Fatalf("unexpected root descriptor: %+v", desc)
	}
	pl.Close(context.Background())
}

func TestPreloaderBuildsDependencyTree(t *testing.T) {
	f, dir := newTestEnv(t)
	writeFile(t, dir, "root.tree", "/child1.tree\n/child2.tree")
	writeFile(t, dir, "child1.tree", "leaf")
	writeFile(t, dir, "child2.tree", "leaf")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, _ := New(f, queue, []string{"/root.tree"}, nil)

	result := pl.Update(context.Background(), time.Second)
	if result != rpath.OK {
		t.Fatalf("Update result = %v, want OK (err=%v)", result, pl.Err())
	}
	desc := pl.RootDescriptor(0)
	if desc == nil {
		t.Fatal("expected a root descriptor")
	}
	if desc.Resource.(*treeResource).name != "/root.tree" {
		t.Fatalf("unexpected root resource: %+v", desc.Resource)
	}

	snap := f.Snapshot()
	var sawRoot bool
	for _, s := range snap {
		if s.Filename == "/root.tree" {
			sawRoot = true
		}
		// children should have been released back down to refcount 0 and
		// removed from the cache once the parent was created.
		if s.Filename == "/child1.tree" || s.Filename == "/child2.tree" {
			t.Fatalf("expected child %q to be released after parent create, found refcount=%d", s.Filename, s.RefCount)
		}
	}
	if !sawRoot {
		t.Fatal("expected the root resource to remain live")
	}
	pl.Close(context.Background())
}

func TestPreloaderDedupesTwoRootsSamePath(t *testing.T) {
	f, dir := newTestEnv(t)
	writeFile(t, dir, "shared.tree", "leaf")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, accepted := New(f, queue, []string{"/shared.tree", "/shared.tree"}, nil)
	if len(accepted) != 1 {
		t.Fatalf("expected the sibling-duplicate check to collapse to one root, got %v", accepted)
	}

	result := pl.Update(context.Background(), 200*time.Millisecond)
	if result != rpath.OK {
		t.Fatalf("Update result = %v, want OK", result)
	}
	pl.Close(context.Background())
}

func TestPreloaderCompleteCallbackShortCircuit(t *testing.T) {
	f, dir := newTestEnv(t)
	writeFile(t, dir, "a.tree", "leaf")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	called := false
	pl, _ := New(f, queue, []string{"/a.tree"}, func(context.Context) bool {
		called = true
		return false
	})

	result := pl.Update(context.Background(), 200*time.Millisecond)
	if !called {
		t.Fatal("expected the completion callback to run")
	}
	if result != rpath.NotLoaded {
		t.Fatalf("result = %v, want NotLoaded after a false completion callback", result)
	}
	pl.Close(context.Background())
}

func TestPreloaderSelfReferenceReportsLoopError(t *testing.T) {
	f, dir := newTestEnv(t)
	// a.tree hints itself as a child: the hinted node's parent (a.tree
	// itself) already carries a.tree's path hash, so ancestorHasPathHash
	// must catch it before the second a.tree node is ever loaded.
	writeFile(t, dir, "a.tree", "/a.tree")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, accepted := New(f, queue, []string{"/a.tree"}, nil)
	if len(accepted) != 1 {
		t.Fatalf("accepted = %v, want 1 root", accepted)
	}

	result := pl.Update(context.Background(), time.Second)
	if result != rpath.ResourceLoopError {
		t.Fatalf("Update result = %v, want ResourceLoopError (err=%v)", result, pl.Err())
	}
	pl.Close(context.Background())
}

func TestPreloaderTwoStepCycleReportsLoopError(t *testing.T) {
	f, dir := newTestEnv(t)
	// a.tree -> b.tree -> a.tree: by the time b.tree's hint reintroduces
	// a.tree, a.tree's hash is already on the ancestor chain (root's child).
	writeFile(t, dir, "a.tree", "/b.tree")
	writeFile(t, dir, "b.tree", "/a.tree")

	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, _ := New(f, queue, []string{"/a.tree"}, nil)

	result := pl.Update(context.Background(), time.Second)
	if result != rpath.ResourceLoopError {
		t.Fatalf("Update result = %v, want ResourceLoopError (err=%v)", result, pl.Err())
	}
	pl.Close(context.Background())
}

func TestPreloaderMissingPathReportsError(t *testing.T) {
	f, _ := newTestEnv(t)
	queue := NewSyncQueue(context.Background(), f.Mounts())
	pl, _ := New(f, queue, []string{"/missing.tree"}, nil)

	result := pl.Update(context.Background(), 200*time.Millisecond)
	if result != rpath.ResourceNotFound {
		t.Fatalf("result = %v, want ResourceNotFound", result)
	}
	pl.Close(context.Background())
}
