package archive

import (
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// DataSource is the minimal surface an .arcd payload source needs to
// support: random-access reads by offset. *os.File satisfies it directly;
// tests and the mutable provider use an in-memory implementation.
type DataSource interface {
	io.ReaderAt
}

// ReadEntry reads e's payload from data, decrypting and decompressing as
// e's flags dictate, and returns the final, ready-to-use resource bytes.
// Grounded on ReadResource/DecryptBuffer/DecompressBuffer in
// resource_archive.cpp: decrypt happens on the stored (possibly compressed)
// bytes first, then decompression, matching the original's dispatch order.
func ReadEntry(data DataSource, e Entry) ([]byte, error) {
	stored := make([]byte, e.StoredSize())
	if len(stored) > 0 {
		if _, err := data.ReadAt(stored, int64(e.DataOffset)); err != nil && err != io.EOF {
			return nil, rpath.Errf(rpath.IOError, "archive.ReadEntry", "", err)
		}
	}

	if e.IsEncrypted() {
		if err := rpath.Decrypt(stored); err != nil {
			return nil, rpath.Errf(rpath.UnknownError, "archive.ReadEntry", "", err)
		}
	}

	if !e.IsCompressed() {
		return stored, nil
	}

	out := make([]byte, e.ResourceSize)
	n, err := lz4.UncompressBlock(stored, out)
	if err != nil {
		return nil, rpath.Errf(rpath.OutOfMemory, "archive.ReadEntry", "", err)
	}
	return out[:n], nil
}
