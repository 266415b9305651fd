package factory

// preloader_support.go is the seam the preloader package schedules through:
// reading bytes off the load mutex's critical section, looking up or
// installing a cache entry, and destroying a type's resource directly. Kept
// separate from factory.go because every method here is reachable only from
// pkg/preloader, not from an ordinary Get/Release caller.
//
// © 2025 resourcecore authors. MIT License.

import (
	"context"

	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// Mounts exposes the factory's mount table so the preloader's load queue can
// read bytes off the same path the synchronous Get flow uses.
func (f *Factory) Mounts() *mount.Table {
	return f.mounts
}

// TypeForPath resolves the registered ResourceType for path's extension,
// under the same lock Get itself uses.
func (f *Factory) TypeForPath(path string) (*ResourceType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typeForPath(path)
}

// LookupAndAddRef returns the cached descriptor for hash, bumping its
// refcount, if one already exists. Used by the preloader to detect that
// another Get or preloader already finished the same path before this node
// got around to loading it.
func (f *Factory) LookupAndAddRef(hash uint64) (*Descriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.cache[hash]
	if !ok {
		return nil, false
	}
	d.RefCount++
	return d, true
}

// InsertCreated installs a freshly Create'd resource into the cache under
// hash. If the cache already holds an entry for hash — another Get or a
// sibling preloader finished first — that existing descriptor's refcount is
// bumped instead and duplicate is true: the caller owns resource and must
// destroy it itself once any PostCreate on it has settled.
func (f *Factory) InsertCreated(hash uint64, cpath string, rt *ResourceType, resource any, resourceSize uint32) (desc *Descriptor, duplicate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.cache[hash]; ok {
		existing.RefCount++
		return existing, true
	}

	f.version++
	if f.version == 0 {
		f.version++
	}
	desc = &Descriptor{
		Resource:     resource,
		ResourceSize: resourceSize,
		RefCount:     1,
		Version:      f.version,
		Type:         rt,
		Filename:     cpath,
		PathHash:     hash,
	}
	f.cache[hash] = desc
	f.reverse[resource] = hash
	if f.flags&FlagReloadSupport != 0 {
		f.reloadNames[hash] = cpath
	}
	f.metrics.setLiveResources(len(f.cache))
	return desc, false
}

// DestroyResource runs rt.Destroy directly on a resource that was never
// inserted into the cache — the losing side of InsertCreated's duplicate
// resolution, or a node whose Create succeeded but a later step failed.
func (f *Factory) DestroyResource(ctx context.Context, rt *ResourceType, resource any) error {
	return rt.Destroy(ctx, f, rt, resource)
}

// ResourceLoopErr reports path as the site of a detected preload cycle, in
// the same vocabulary Get's own recursion guard uses.
func ResourceLoopErr(op, path string) error {
	return rpath.Errf(rpath.ResourceLoopError, op, path, nil)
}
