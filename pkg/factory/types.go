// Package factory implements the typed resource cache: path-hash keyed,
// refcounted, with a pluggable per-extension type table driving the
// preload/create/destroy/recreate lifecycle. Grounded on
// resource_factory.cpp/resource.h's ResourceType/SResourceDescriptor model.
//
// © 2025 resourcecore authors. MIT License.
package factory

import "context"

// PreloadHint lets a type's Preload callback register dependent child paths
// before Create runs — consumed by the preloader, ignored by synchronous Get.
type PreloadHint interface {
	Hint(name string)
}

// PreloadFunc inspects the raw loaded bytes before Create is called. It may
// return arbitrary preload-phase state that Create receives back. isPartial
// is true when buf holds fewer bytes than the full file (streaming types).
type PreloadFunc func(ctx context.Context, f *Factory, rt *ResourceType, buf []byte, fileSize uint32, isPartial bool, filename string, hint PreloadHint) (preloadData any, err error)

// CreateFunc builds the typed resource from loaded bytes (and any
// PreloadFunc state) and reports its logical size for bookkeeping.
type CreateFunc func(ctx context.Context, f *Factory, rt *ResourceType, buf []byte, preloadData any, filename string) (resource any, resourceSize uint32, err error)

// PostCreateFunc runs after Create succeeds and the descriptor is already
// cached. Returning (false, nil) means "call me again next tick" (the
// PENDING case); the factory's synchronous Get spins on this.
type PostCreateFunc func(ctx context.Context, f *Factory, rt *ResourceType, desc *Descriptor) (done bool, err error)

// DestroyFunc releases a resource when its refcount reaches zero.
type DestroyFunc func(ctx context.Context, f *Factory, rt *ResourceType, resource any) error

// RecreateFunc rebuilds a resource in place for Reload/SetResource. prev is
// the resource being replaced, so the type can migrate state out of it;
// returning a different resource value than prev signals the factory to
// destroy prev once recreate returns.
type RecreateFunc func(ctx context.Context, f *Factory, rt *ResourceType, buf []byte, prev any, filename string) (resource any, resourceSize uint32, err error)

// StreamSentinel marks a type as loading the whole file rather than a fixed
// preload chunk (the "sentinel" preload size from the canonical Get flow).
const StreamSentinel uint32 = 0xFFFFFFFF

// ResourceType is one registered extension's lifecycle: how to turn raw
// bytes into a live resource and back.
type ResourceType struct {
	Extension  string
	Context    any
	Preload    PreloadFunc
	Create     CreateFunc
	PostCreate PostCreateFunc
	Destroy    DestroyFunc
	Recreate   RecreateFunc

	// PreloadSize is StreamSentinel for types loaded whole, or the fixed
	// chunk size for streaming types (see pkg/stream).
	PreloadSize uint32
}

// Descriptor is the cached record for one live resource.
type Descriptor struct {
	Resource     any
	ResourceSize uint32
	RefCount     uint32
	Version      uint16
	Type         *ResourceType
	Filename     string
	PathHash     uint64
}

// ReloadCallback is invoked after a successful Reload/SetResource recreate.
type ReloadCallback func(desc *Descriptor, filename string, pathHash uint64, rt *ResourceType)
