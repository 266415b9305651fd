// Package stream implements the chunked resource-streaming API: for a type
// registered with a preload size smaller than the full file (so Get itself
// only ever reads the first chunk), PreloadData schedules a follow-up
// partial read and hands the bytes to a callback, which typically schedules
// the next chunk itself until the whole resource is present.
//
// © 2025 resourcecore authors. MIT License.
package stream

import (
	"context"

	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// Callback receives one streamed chunk. desc is the resource's live,
// already-cached descriptor; offset/nread describe the chunk's position in
// the underlying file and its actual length (nread may be less than the
// requested size at end of file); buf holds exactly nread bytes.
//
// Grounded on resource_factory.cpp's partial-read path: types with a
// declared preload size smaller than the full file get the rest of their
// bytes through follow-up calls like this one instead of a second full Get.
type Callback func(ctx context.Context, f *factory.Factory, desc *factory.Descriptor, offset, nread uint32, buf []byte)

// PreloadData enqueues a background read of [offset, offset+size) for path
// and invokes cb once it completes; if the read fails, cb is not invoked
// and the error is dropped. It returns immediately — the read runs
// on its own goroutine (the job-thread equivalent) and goes through the
// same mount table Get itself reads through, so it is naturally serialized
// against any concurrent structural mutation the factory performs.
//
// path must already have a live, cached descriptor (typically the result of
// an earlier Get against a type with a declared preload size) — PreloadData
// never creates a resource itself, only streams more of its bytes in.
func PreloadData(ctx context.Context, f *factory.Factory, path string, offset, size uint32, cb Callback) error {
	desc, ok := f.Descriptor(path)
	if !ok {
		return rpath.Errf(rpath.ResourceNotFound, "stream.PreloadData", path, nil)
	}

	go func() {
		buf, err := f.Mounts().ReadResourcePartial(ctx, desc.PathHash, desc.Filename, offset, size)
		if err != nil {
			return
		}
		cb(ctx, f, desc, offset, uint32(len(buf)), buf)
	}()
	return nil
}
