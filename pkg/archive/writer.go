package archive

import (
	"io"
	"os"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// DataWriter appends resource payloads to a growing .arcd file, tracking
// the current end-of-file offset so callers can build the Entry for what
// they just wrote. Grounded on WriteResourceToArchive in
// resource_archive.cpp (fseek-to-end, fwrite, fflush); resourcecore opens
// the data file in append mode instead of seeking before every write, which
// is equivalent for a single writer goroutine but avoids a redundant seek.
type DataWriter struct {
	f      *os.File
	offset int64
}

// OpenDataWriter opens (or creates) path for appending and records its
// current length as the next write offset.
func OpenDataWriter(path string) (*DataWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "archive.OpenDataWriter", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, rpath.Errf(rpath.IOError, "archive.OpenDataWriter", path, err)
	}
	return &DataWriter{f: f, offset: info.Size()}, nil
}

// Append writes payload at the current end of file and returns the offset
// it was written at. Equivalent to the original's (bytes_written, offset)
// return pair from WriteResourceToArchive, minus the mmap-remap branch
// (resourcecore's mutable archive never memory-maps its data file, so no
// UnmapFile/MapFile dance is needed).
func (w *DataWriter) Append(payload []byte) (offset int64, err error) {
	offset = w.offset
	n, err := w.f.Write(payload)
	if err != nil {
		return 0, rpath.Errf(rpath.IOError, "archive.DataWriter.Append", "", err)
	}
	w.offset += int64(n)
	if err := w.f.Sync(); err != nil {
		return 0, rpath.Errf(rpath.IOError, "archive.DataWriter.Append", "", err)
	}
	return offset, nil
}

// Close flushes and closes the underlying file.
func (w *DataWriter) Close() error { return w.f.Close() }

// ReadAt satisfies DataSource so a DataWriter's file can double as the
// DataSource for ReadEntry once an entry has been appended.
func (w *DataWriter) ReadAt(p []byte, off int64) (int, error) { return w.f.ReadAt(p, off) }

// WriteIndexTmp serialises idx and writes it to tmpPath, matching
// WriteArchiveIndex's write-to-a-.tmp-path-first pattern so the caller can
// atomically rename it into place afterward.
func WriteIndexTmp(idx *Index, tmpPath string) error {
	f, err := os.Create(tmpPath)
	if err != nil {
		return rpath.Errf(rpath.IOError, "archive.WriteIndexTmp", tmpPath, err)
	}
	defer f.Close()

	if _, err := f.Write(idx.Serialize()); err != nil {
		return rpath.Errf(rpath.IOError, "archive.WriteIndexTmp", tmpPath, err)
	}
	return f.Sync()
}

var _ io.ReaderAt = (*DataWriter)(nil)
