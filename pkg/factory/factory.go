package factory

// factory.go is the core of the typed resource cache: RegisterType, Get,
// GetRaw, Release, Reload, SetResource, CreateResourcePartial and the
// dependency-query passthrough. Grounded on resource_factory.cpp's
// ResourceCreate/ResourceGet/ResourceRelease/ResourceReloadResource family.
//
// © 2025 resourcecore authors. MIT License.

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// Factory owns the typed cache, the mount table, and the type table. All
// cache/type-table mutations happen under mu, matching the single
// load-mutex concurrency model: workers may load bytes off the lock, but
// every structural mutation is serialized.
//
// The recursion-depth guard is carried on ctx rather than as factory state:
// cycle detection must track the current call chain, which for concurrent
// Get calls (or a type's Create recursing into Get for a dependency) is
// per-goroutine, not global to the factory.
type Factory struct {
	mu sync.Mutex

	mounts *mount.Table
	types  map[string]*ResourceType

	cache   map[uint64]*Descriptor
	reverse map[any]uint64

	reloadNames     map[uint64]string
	reloadCallbacks []ReloadCallback

	maxResources int
	flags        uint32
	version      uint16 // monotonic, skips 0

	group singleflight.Group

	reloadBus chan ReloadRequest

	logger  *zap.Logger
	metrics metricsSink
}

// New constructs a Factory over the given mount table (typically built via
// pkg/mount, already populated with the application's base/live-update
// mounts) plus construction-time options.
func New(mounts *mount.Table, opts ...Option) *Factory {
	p := defaultParams()
	applyOptions(p, opts)
	mountBuiltin(mounts, p.BuiltinArchive)

	return &Factory{
		mounts:       mounts,
		types:        make(map[string]*ResourceType),
		cache:        make(map[uint64]*Descriptor),
		reverse:      make(map[any]uint64),
		reloadNames:  make(map[uint64]string),
		maxResources: p.MaxResources,
		flags:        p.Flags,
		logger:       p.logger,
		metrics:      p.metrics,
	}
}

// RegisterType installs a new extension's lifecycle callbacks. Duplicate
// registration fails with rpath.AlreadyRegistered; a missing Create or
// Destroy, or an extension containing '.', fails with rpath.Inval.
func (f *Factory) RegisterType(rt *ResourceType) error {
	if strings.Contains(rt.Extension, ".") {
		return rpath.Errf(rpath.Inval, "factory.RegisterType", rt.Extension, nil)
	}
	if rt.Create == nil || rt.Destroy == nil {
		return rpath.Errf(rpath.Inval, "factory.RegisterType", rt.Extension, nil)
	}
	if rt.PreloadSize == 0 {
		rt.PreloadSize = StreamSentinel
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.types[rt.Extension]; exists {
		return rpath.Errf(rpath.AlreadyRegistered, "factory.RegisterType", rt.Extension, nil)
	}
	f.types[rt.Extension] = rt
	return nil
}

func (f *Factory) typeForPath(path string) (*ResourceType, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, rpath.Errf(rpath.MissingFileExtension, "factory.typeForPath", path, nil)
	}
	rt, ok := f.types[ext]
	if !ok {
		return nil, rpath.Errf(rpath.UnknownResourceType, "factory.typeForPath", path, nil)
	}
	return rt, nil
}

type pathStackKey struct{}

// withPathHash returns a ctx with hash appended to the recursion-guard
// stack, erroring with rpath.ResourceLoopError if hash is already present
// (a type's Create/Preload calling back into Get for a cyclic dependency).
func withPathHash(ctx context.Context, hash uint64) (context.Context, error) {
	stack, _ := ctx.Value(pathStackKey{}).([]uint64)
	for _, h := range stack {
		if h == hash {
			return nil, rpath.Errf(rpath.ResourceLoopError, "factory.Get", "", nil)
		}
	}
	next := make([]uint64, len(stack)+1)
	copy(next, stack)
	next[len(stack)] = hash
	return context.WithValue(ctx, pathStackKey{}, next), nil
}

// Get resolves path to a live, refcounted resource: cache hit bumps
// refcount; a miss loads bytes via mounts, runs Preload/Create, caches the
// descriptor, and spins on PostCreate until it settles.
func (f *Factory) Get(ctx context.Context, path string) (*Descriptor, error) {
	cpath, hash := rpath.CanonicalizeAndHash(path)

	f.mu.Lock()
	if d, ok := f.cache[hash]; ok {
		d.RefCount++
		f.mu.Unlock()
		f.metrics.incGetHit()
		return d, nil
	}

	nextCtx, err := withPathHash(ctx, hash)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	ctx = nextCtx

	rt, err := f.typeForPath(cpath)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}

	if len(f.cache) >= f.maxResources {
		f.mu.Unlock()
		f.metrics.incOutOfResources()
		return nil, rpath.Errf(rpath.OutOfResources, "factory.Get", cpath, nil)
	}
	f.mu.Unlock()
	f.metrics.incGetMiss()

	// Deduplicate concurrent Get calls for the same path: only one
	// goroutine actually loads+creates, the rest share its result. This is
	// the same singleflight.Group keyed-dedup shape used elsewhere in this
	// codebase for thundering-herd loads, keyed by the path hash instead of
	// a cache key.
	key := strconv.FormatUint(hash, 16)
	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.loadAndCreate(ctx, cpath, hash, rt)
	})
	if err != nil {
		return nil, err
	}
	d := v.(*Descriptor)

	f.mu.Lock()
	d.RefCount++
	f.mu.Unlock()
	return d, nil
}

func (f *Factory) loadAndCreate(ctx context.Context, cpath string, hash uint64, rt *ResourceType) (_ *Descriptor, err error) {
	fileSize, sizeErr := f.mounts.GetResourceSize(ctx, hash, cpath)
	isPartial := rt.PreloadSize != StreamSentinel
	var buf []byte
	if isPartial && sizeErr == nil && rt.PreloadSize < fileSize {
		buf, err = f.mounts.ReadResourcePartial(ctx, hash, cpath, 0, rt.PreloadSize)
	} else {
		buf, err = f.mounts.ReadResource(ctx, hash, cpath)
		isPartial = false
	}
	if err != nil {
		return nil, err
	}

	var preloadData any
	if rt.Preload != nil {
		preloadData, err = rt.Preload(ctx, f, rt, buf, fileSize, isPartial, cpath, nil)
		if err != nil {
			return nil, err
		}
	}

	resource, resourceSize, err := rt.Create(ctx, f, rt, buf, preloadData, cpath)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		Resource:     resource,
		ResourceSize: resourceSize,
		RefCount:     0,
		Type:         rt,
		Filename:     cpath,
		PathHash:     hash,
	}

	f.mu.Lock()
	f.version++
	if f.version == 0 {
		f.version++ // skip the invalid sentinel
	}
	desc.Version = f.version
	f.cache[hash] = desc
	f.reverse[resource] = hash
	if f.flags&FlagReloadSupport != 0 {
		f.reloadNames[hash] = cpath
	}
	f.metrics.setLiveResources(len(f.cache))
	f.mu.Unlock()

	if rt.PostCreate != nil {
		for {
			done, perr := rt.PostCreate(ctx, f, rt, desc)
			if perr != nil {
				f.destroyAndUncache(ctx, desc)
				return nil, perr
			}
			if done {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	return desc, nil
}

func (f *Factory) destroyAndUncache(ctx context.Context, desc *Descriptor) {
	f.mu.Lock()
	delete(f.cache, desc.PathHash)
	delete(f.reverse, desc.Resource)
	delete(f.reloadNames, desc.PathHash)
	f.metrics.setLiveResources(len(f.cache))
	f.mu.Unlock()
	_ = desc.Type.Destroy(ctx, f, desc.Type, desc.Resource)
}

// GetRaw loads path's bytes via the mount table into a caller-owned buffer,
// bypassing the cache and type table entirely.
func (f *Factory) GetRaw(ctx context.Context, path string) ([]byte, error) {
	cpath, hash := rpath.CanonicalizeAndHash(path)
	buf, err := f.mounts.ReadResource(ctx, hash, cpath)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Descriptor returns the live descriptor cached for path, without touching
// its refcount — for callers (pkg/stream) that already hold a reference and
// just need the cached metadata for a chunked follow-up read.
func (f *Factory) Descriptor(path string) (*Descriptor, bool) {
	_, hash := rpath.CanonicalizeAndHash(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.cache[hash]
	return d, ok
}

// Release decrements the refcount for a resource found by its live pointer;
// at zero it destroys the resource and removes it from both maps.
func (f *Factory) Release(ctx context.Context, resource any) error {
	f.mu.Lock()
	hash, ok := f.reverse[resource]
	if !ok {
		f.mu.Unlock()
		return rpath.Errf(rpath.ResourceNotFound, "factory.Release", "", nil)
	}
	desc := f.cache[hash]
	desc.RefCount--
	if desc.RefCount > 0 {
		f.mu.Unlock()
		return nil
	}
	delete(f.cache, hash)
	delete(f.reverse, resource)
	delete(f.reloadNames, hash)
	f.metrics.setLiveResources(len(f.cache))
	f.mu.Unlock()

	return desc.Type.Destroy(ctx, f, desc.Type, desc.Resource)
}

// Reload re-runs Recreate for an already-cached path, migrating state out of
// the previous resource and invoking every registered reload callback in
// order. If Recreate returns a different resource value than prev, prev is
// destroyed once the callbacks have run.
func (f *Factory) Reload(ctx context.Context, path string) error {
	_, hash := rpath.CanonicalizeAndHash(path)

	f.mu.Lock()
	desc, ok := f.cache[hash]
	if !ok {
		f.mu.Unlock()
		return rpath.Errf(rpath.ResourceNotFound, "factory.Reload", path, nil)
	}
	rt := desc.Type
	cpath := desc.Filename
	f.mu.Unlock()

	buf, err := f.mounts.ReadResource(ctx, hash, cpath)
	if err != nil {
		return err
	}
	if rt.Recreate == nil {
		return rpath.Errf(rpath.NotSupported, "factory.Reload", cpath, nil)
	}

	prev := desc.Resource
	newResource, newSize, err := rt.Recreate(ctx, f, rt, buf, prev, cpath)
	if err != nil {
		return err
	}

	f.mu.Lock()
	delete(f.reverse, prev)
	desc.Resource = newResource
	desc.ResourceSize = newSize
	f.reverse[newResource] = hash
	callbacks := append([]ReloadCallback(nil), f.reloadCallbacks...)
	f.metrics.incReload()
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(desc, cpath, hash, rt)
	}

	if newResource != prev {
		return rt.Destroy(ctx, f, rt, prev)
	}
	return nil
}

// RegisterReloadCallback appends cb to the list invoked after every
// successful Reload/SetResource.
func (f *Factory) RegisterReloadCallback(cb ReloadCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadCallbacks = append(f.reloadCallbacks, cb)
}

// UnregisterAllReloadCallbacks clears the reload callback list. Go function
// values aren't comparable, so unlike the original's per-callback
// unregister, callers needing selective removal should wrap their callback
// in a closure that checks a capturable flag instead.
func (f *Factory) UnregisterAllReloadCallbacks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadCallbacks = nil
}

// SetResource replaces a cached resource's payload in place by calling
// Recreate with a caller-supplied buffer, without touching the mount table.
func (f *Factory) SetResource(ctx context.Context, path string, buf []byte) error {
	_, hash := rpath.CanonicalizeAndHash(path)

	f.mu.Lock()
	desc, ok := f.cache[hash]
	if !ok {
		f.mu.Unlock()
		return rpath.Errf(rpath.ResourceNotFound, "factory.SetResource", path, nil)
	}
	rt := desc.Type
	cpath := desc.Filename
	f.mu.Unlock()

	if rt.Recreate == nil {
		return rpath.Errf(rpath.NotSupported, "factory.SetResource", cpath, nil)
	}

	prev := desc.Resource
	newResource, newSize, err := rt.Recreate(ctx, f, rt, buf, prev, cpath)
	if err != nil {
		return err
	}

	f.mu.Lock()
	delete(f.reverse, prev)
	desc.Resource = newResource
	desc.ResourceSize = newSize
	f.reverse[newResource] = hash
	callbacks := append([]ReloadCallback(nil), f.reloadCallbacks...)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(desc, cpath, hash, rt)
	}

	if newResource != prev {
		return rt.Destroy(ctx, f, rt, prev)
	}
	return nil
}

// CreateResourcePartial injects a resource from a caller-supplied in-memory
// buffer (no mount lookup) but otherwise follows the full create path,
// including caching and refcounting under name.
func (f *Factory) CreateResourcePartial(ctx context.Context, name string, buf []byte) (*Descriptor, error) {
	cpath, hash := rpath.CanonicalizeAndHash(name)

	f.mu.Lock()
	if d, ok := f.cache[hash]; ok {
		d.RefCount++
		f.mu.Unlock()
		return d, nil
	}
	rt, err := f.typeForPath(cpath)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if len(f.cache) >= f.maxResources {
		f.mu.Unlock()
		f.metrics.incOutOfResources()
		return nil, rpath.Errf(rpath.OutOfResources, "factory.CreateResourcePartial", cpath, nil)
	}
	f.mu.Unlock()

	var preloadData any
	if rt.Preload != nil {
		preloadData, err = rt.Preload(ctx, f, rt, buf, uint32(len(buf)), false, cpath, nil)
		if err != nil {
			return nil, err
		}
	}
	resource, resourceSize, err := rt.Create(ctx, f, rt, buf, preloadData, cpath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.version++
	if f.version == 0 {
		f.version++
	}
	desc := &Descriptor{
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
	f.metrics.setLiveResources(len(f.cache))
	f.mu.Unlock()

	return desc, nil
}

// Dependencies delegates to the mount table's GetDependencies, which is the
// canonical source of manifest-derived dependency edges.
func (f *Factory) Dependencies(ctx context.Context, cb mount.DependencyCallback, onlyMissing bool) {
	f.mounts.GetDependencies(ctx, cb, onlyMissing)
}

// Snapshot reports every currently-live resource, supplementing the core
// operations with the profiling view resource_profile.cpp exposes over the
// engine's profiler socket.
type Snapshot struct {
	PathHash     uint64
	Filename     string
	Extension    string
	RefCount     uint32
	ResourceSize uint32
	Version      uint16
}

// Snapshot returns a point-in-time view of every cached descriptor, for
// tests and diagnostics that need to inspect live factory state
// without affecting refcounts.
func (f *Factory) Snapshot() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Snapshot, 0, len(f.cache))
	for _, d := range f.cache {
		out = append(out, Snapshot{
			PathHash:     d.PathHash,
			Filename:     d.Filename,
			Extension:    d.Type.Extension,
			RefCount:     d.RefCount,
			ResourceSize: d.ResourceSize,
			Version:      d.Version,
		})
	}
	return out
}

// Close destroys every resource still in the cache, logging each leak with
// its name and refcount rather than blocking teardown on them.
func (f *Factory) Close(ctx context.Context) {
	f.mu.Lock()
	leaked := make([]*Descriptor, 0, len(f.cache))
	for _, d := range f.cache {
		leaked = append(leaked, d)
	}
	f.cache = make(map[uint64]*Descriptor)
	f.reverse = make(map[any]uint64)
	f.mu.Unlock()

	for _, d := range leaked {
		f.logger.Warn("leaked resource at factory shutdown",
			zap.String("filename", d.Filename),
			zap.Uint32("refcount", d.RefCount))
		_ = d.Type.Destroy(ctx, f, d.Type, d.Resource)
	}
}
