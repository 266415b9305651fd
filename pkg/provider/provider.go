// Package provider defines the uniform archive interface every content
// source (file tree, bundle archive, mutable archive, ZIP pack, HTTP
// endpoint) implements, plus the process-wide scheme registry providers
// install themselves into at init time. Grounded on providers/provider.h
// and providers/provider.cpp's registration-by-name-hash pattern.
//
// © 2025 resourcecore authors. MIT License.
package provider

import (
	"context"
	"net/url"
	"sync"

	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// URI is the parsed form of a mount URI: scheme://location/path.
type URI struct {
	Scheme   string
	Location string
	Path     string
}

// ParseURI splits a mount URI string into its scheme/location/path parts.
// A bare filesystem path with no "scheme://" prefix is treated as scheme
// "file" with an empty location, matching the original's default-to-file
// behaviour for relative mount strings.
func ParseURI(raw string) (URI, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return URI{Scheme: "file", Path: raw}, nil
	}
	return URI{Scheme: u.Scheme, Location: u.Host, Path: u.Path}, nil
}

// Archive is one mounted content source. Implementations correspond to the
// file, bundle-archive, mutable-archive, ZIP-pack and HTTP providers; all
// methods must be safe for concurrent ReadFile calls against the same
// instance.
type Archive interface {
	// GetFileSize returns the final (decompressed) size of the resource at
	// pathHash/path, or an error — rpath.ResourceNotFound on a miss.
	GetFileSize(ctx context.Context, pathHash uint64, path string) (uint32, error)

	// ReadFile reads the complete, decoded resource into memory.
	ReadFile(ctx context.Context, pathHash uint64, path string) ([]byte, error)

	// ReadFilePartial reads [offset, offset+size) of the decoded resource,
	// returning the bytes actually read (which may be short at EOF).
	ReadFilePartial(ctx context.Context, pathHash uint64, path string, offset, size uint32) ([]byte, error)

	// Manifest returns the provider's manifest, or nil if it has none (the
	// file and ZIP-without-manifest providers, for instance).
	Manifest() *manifest.Manifest

	// Close releases any open file handles or network resources.
	Close() error
}

// Writable is implemented by providers that accept live-update writes (only
// the mutable archive provider, currently).
type Writable interface {
	WriteFile(ctx context.Context, pathHash uint64, path string, liveUpdatePayload []byte) error
}

// Factory constructs a provider's Archive for a parsed URI. baseArchive is
// non-nil when mounting one provider "on top of" another (e.g. mutable
// archives layer onto the manifest of a base bundle archive).
type Factory func(ctx context.Context, uri URI, baseArchive Archive) (Archive, error)

// Registration pairs a scheme matcher with its constructor.
type Registration struct {
	Name       string
	CanMount   func(uri URI) bool
	NewArchive Factory
}

var (
	registryMu sync.RWMutex
	registry   []Registration
)

// Register installs a provider into the process-wide registry. Intended to
// be called from each provider package's init(): a single process-wide
// registry populated once at startup, immutable after the first mount.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, reg)
}

// Lookup returns the first registered provider whose CanMount matches uri.
func Lookup(uri URI) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, r := range registry {
		if r.CanMount(uri) {
			return r, true
		}
	}
	return Registration{}, false
}

// Mount resolves uri against the registry and constructs its Archive.
func Mount(ctx context.Context, raw string, baseArchive Archive) (Archive, error) {
	uri, err := ParseURI(raw)
	if err != nil {
		return nil, rpath.Errf(rpath.InvalidData, "provider.Mount", raw, err)
	}
	reg, ok := Lookup(uri)
	if !ok {
		return nil, rpath.Errf(rpath.NotSupported, "provider.Mount", raw, nil)
	}
	return reg.NewArchive(ctx, uri, baseArchive)
}
