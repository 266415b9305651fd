// Package mount implements the per-factory mount table: a priority-ordered
// list of provider archives behind a single first-hit lookup API, plus a
// plain-text persistence format for the subset of mounts flagged to survive
// process restarts. Grounded on mount.h/mount.cpp's AddMount/RemoveMount/
// ResourceExists/ReadResource family and the liveupdate.mounts file format.
//
// © 2025 resourcecore authors. MIT License.
package mount

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// separator is the literal 3-character field separator in liveupdate.mounts.
const separator = "@,@"

// fileVersion is the only liveupdate.mounts header version this reader
// accepts; a mismatch aborts the whole read.
const fileVersion = 1

// Mount is one entry in the table: a named, prioritised provider archive.
type Mount struct {
	Name     string
	Archive  provider.Archive
	Priority int
	Persist  bool
	URI      string // retained only for persistence round-trips
}

// syntheticFile is an in-memory resource registered via AddFile. These
// always win against every mounted provider.
type syntheticFile struct {
	size  uint32
	bytes []byte
}

// Table is the ordered set of mounts a factory resolves resource reads
// against, plus the synthetic-file overlay. Safe for concurrent use; callers
// needing atomicity across a read-modify-write sequence (the factory's load
// mutex) should still serialize externally.
type Table struct {
	mu     sync.RWMutex
	mounts []*Mount
	files  map[uint64]*syntheticFile
}

// New returns an empty mount table.
func New() *Table {
	return &Table{files: make(map[uint64]*syntheticFile)}
}

// AddMount inserts m in descending-priority order; ties keep insertion
// order, matching a stable sort over the existing slice.
func (t *Table) AddMount(m *Mount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mounts = append(t.mounts, m)
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return t.mounts[i].Priority > t.mounts[j].Priority
	})
}

// RemoveMount unmounts and removes the entry whose Archive == archive,
// preserving the relative order of the remaining mounts.
func (t *Table) RemoveMount(archive provider.Archive) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.mounts {
		if m.Archive == archive {
			if err := m.Archive.Close(); err != nil {
				return err
			}
			t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
			return nil
		}
	}
	return rpath.Errf(rpath.ResourceNotFound, "mount.RemoveMount", "", nil)
}

// Mounts returns a priority-ordered snapshot of the table.
func (t *Table) Mounts() []*Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mount, len(t.mounts))
	copy(out, t.mounts)
	return out
}

// AddFile registers a synthetic in-memory resource that always wins against
// providers. Fails with rpath.AlreadyRegistered if pathHash is already taken
// by another synthetic file.
func (t *Table) AddFile(pathHash uint64, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.files[pathHash]; ok {
		return rpath.Errf(rpath.AlreadyRegistered, "mount.AddFile", "", nil)
	}
	t.files[pathHash] = &syntheticFile{size: uint32(len(data)), bytes: data}
	return nil
}

// RemoveFile unregisters a synthetic resource. A miss is not an error.
func (t *Table) RemoveFile(pathHash uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, pathHash)
}

// ResourceExists reports whether pathHash resolves through a synthetic file
// or any mounted provider.
func (t *Table) ResourceExists(ctx context.Context, pathHash uint64, path string) bool {
	_, err := t.GetResourceSize(ctx, pathHash, path)
	return err == nil
}

// GetResourceSize checks the synthetic-file overlay first, then walks the
// mount list in priority order, skipping rpath.ResourceNotFound and
// terminating on any other error.
func (t *Table) GetResourceSize(ctx context.Context, pathHash uint64, path string) (uint32, error) {
	t.mu.RLock()
	if f, ok := t.files[pathHash]; ok {
		t.mu.RUnlock()
		return f.size, nil
	}
	mounts := append([]*Mount(nil), t.mounts...)
	t.mu.RUnlock()

	for _, m := range mounts {
		size, err := m.Archive.GetFileSize(ctx, pathHash, path)
		if err == nil {
			return size, nil
		}
		if rpath.ResultOf(err) != rpath.ResourceNotFound {
			return 0, err
		}
	}
	return 0, rpath.Errf(rpath.ResourceNotFound, "mount.GetResourceSize", path, nil)
}

// ReadResource reads the complete decoded resource bytes for pathHash,
// checking the synthetic-file overlay before walking mounted providers.
func (t *Table) ReadResource(ctx context.Context, pathHash uint64, path string) ([]byte, error) {
	t.mu.RLock()
	if f, ok := t.files[pathHash]; ok {
		t.mu.RUnlock()
		return f.bytes, nil
	}
	mounts := append([]*Mount(nil), t.mounts...)
	t.mu.RUnlock()

	for _, m := range mounts {
		buf, err := m.Archive.ReadFile(ctx, pathHash, path)
		if err == nil {
			return buf, nil
		}
		if rpath.ResultOf(err) != rpath.ResourceNotFound {
			return nil, err
		}
	}
	return nil, rpath.Errf(rpath.ResourceNotFound, "mount.ReadResource", path, nil)
}

// ReadResourcePartial reads [offset, offset+size) from the first mount (or
// synthetic file) that serves pathHash.
func (t *Table) ReadResourcePartial(ctx context.Context, pathHash uint64, path string, offset, size uint32) ([]byte, error) {
	t.mu.RLock()
	if f, ok := t.files[pathHash]; ok {
		t.mu.RUnlock()
		end := offset + size
		if end > uint32(len(f.bytes)) {
			end = uint32(len(f.bytes))
		}
		if offset >= uint32(len(f.bytes)) {
			return nil, nil
		}
		return f.bytes[offset:end], nil
	}
	mounts := append([]*Mount(nil), t.mounts...)
	t.mu.RUnlock()

	for _, m := range mounts {
		buf, err := m.Archive.ReadFilePartial(ctx, pathHash, path, offset, size)
		if err == nil {
			return buf, nil
		}
		if rpath.ResultOf(err) != rpath.ResourceNotFound {
			return nil, err
		}
	}
	return nil, rpath.Errf(rpath.ResourceNotFound, "mount.ReadResourcePartial", path, nil)
}

// DependencyEntry is what GetDependencies reports for each url-hash it
// visits: the manifest-declared digest and whether any mount currently
// serves that url.
type DependencyEntry struct {
	UrlHash uint64
	Digest  []byte
	Missing bool
}

// DependencyCallback is invoked once per visited url-hash. Returning false
// stops the walk early.
type DependencyCallback func(e DependencyEntry) bool

// GetDependencies walks every mounted provider's manifest entries in mount
// order, invoking cb once per url-hash with its digest and a missing flag
// (whether ResourceExists currently resolves it). onlyMissing restricts the
// callback to entries with Missing == true.
func (t *Table) GetDependencies(ctx context.Context, cb DependencyCallback, onlyMissing bool) {
	t.mu.RLock()
	mounts := append([]*Mount(nil), t.mounts...)
	t.mu.RUnlock()

	seen := make(map[uint64]bool)
	for _, m := range mounts {
		man := m.Archive.Manifest()
		if man == nil {
			continue
		}
		for _, e := range man.Entries() {
			if seen[e.UrlHash] {
				continue
			}
			seen[e.UrlHash] = true
			missing := !t.ResourceExists(ctx, e.UrlHash, e.Url)
			if onlyMissing && !missing {
				continue
			}
			if !cb(DependencyEntry{UrlHash: e.UrlHash, Digest: e.Hash, Missing: missing}) {
				return
			}
		}
	}
}

// Save writes the persist-flagged mounts to path in the liveupdate.mounts
// CSV-like format: a VERSION header line, then one MOUNT line per entry.
func (t *Table) Save(path string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "VERSION%s%d\n", separator, fileVersion)
	for _, m := range t.mounts {
		if !m.Persist {
			continue
		}
		fmt.Fprintf(&b, "MOUNT%s%d%s%s%s%s\n", separator, m.Priority, separator, m.Name, separator, m.URI)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Load reads a liveupdate.mounts file, re-resolving each persisted mount's
// URI through the provider registry in the file's priority order. A version
// mismatch on the header line aborts the whole read; malformed or
// negative-priority MOUNT lines are skipped individually.
func (t *Table) Load(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rpath.Errf(rpath.IOError, "mount.Load", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	sawVersion := false
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, separator)
		switch fields[0] {
		case "VERSION":
			if len(fields) != 2 {
				continue
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil || v != fileVersion {
				return rpath.Errf(rpath.VersionMismatch, "mount.Load", path, nil)
			}
			sawVersion = true
		case "MOUNT":
			if !sawVersion || len(fields) != 4 {
				continue
			}
			priority, err := strconv.Atoi(fields[1])
			if err != nil || priority < 0 {
				continue
			}
			name, uri := fields[2], fields[3]
			archive, err := provider.Mount(ctx, uri, nil)
			if err != nil {
				continue
			}
			t.AddMount(&Mount{Name: name, Archive: archive, Priority: priority, Persist: true, URI: uri})
		}
	}
	return scanner.Err()
}
