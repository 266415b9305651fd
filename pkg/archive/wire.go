package archive

import (
	"encoding/binary"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// Serialize lays out the full .arci file: header, then the hash table
// (MaxHash bytes per slot, only HashLength significant), then the entry
// table, contiguous — mirroring WriteArchiveIndex in resource_archive.cpp.
func (idx *Index) Serialize() []byte {
	idx.Header.EntryCount = uint32(len(idx.Entries))
	idx.Header.HashOffset = HeaderSize
	idx.Header.EntryDataOffset = HeaderSize + uint32(len(idx.Hashes))*MaxHash

	buf := make([]byte, 0, idx.Header.EntryDataOffset+uint32(len(idx.Entries))*16)
	buf = appendHeader(buf, idx.Header)
	buf = append(buf, idx.serializeTables()...)
	return buf
}

func appendHeader(buf []byte, h Header) []byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint32(b[0:4], h.Version)
	binary.BigEndian.PutUint32(b[4:8], h.Pad)
	binary.BigEndian.PutUint64(b[8:16], h.UserData)
	binary.BigEndian.PutUint32(b[16:20], h.EntryCount)
	binary.BigEndian.PutUint32(b[20:24], h.EntryDataOffset)
	binary.BigEndian.PutUint32(b[24:28], h.HashOffset)
	binary.BigEndian.PutUint32(b[28:32], h.HashLength)
	copy(b[32:48], h.IndexMD5[:])
	return append(buf, b[:]...)
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, rpath.Errf(rpath.IOError, "archive.parseHeader", "", nil)
	}
	var h Header
	h.Version = binary.BigEndian.Uint32(buf[0:4])
	h.Pad = binary.BigEndian.Uint32(buf[4:8])
	h.UserData = binary.BigEndian.Uint64(buf[8:16])
	h.EntryCount = binary.BigEndian.Uint32(buf[16:20])
	h.EntryDataOffset = binary.BigEndian.Uint32(buf[20:24])
	h.HashOffset = binary.BigEndian.Uint32(buf[24:28])
	h.HashLength = binary.BigEndian.Uint32(buf[28:32])
	copy(h.IndexMD5[:], buf[32:48])
	return h, nil
}

// Parse decodes a complete .arci buffer into an Index, checking Version and
// the index MD5 (Verify).
// Grounded on LoadArchiveFromFile's header-then-hashes-then-entries read
// order in resource_archive.cpp, adapted from two fseek/fread passes over a
// file handle to one in-memory buffer slice (resourcecore loads the whole
// index file at mount time rather than streaming it).
func Parse(buf []byte) (*Index, error) {
	h, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Version != Version {
		return nil, rpath.Errf(rpath.VersionMismatch, "archive.Parse", "", nil)
	}

	hashLen := int(h.HashLength)
	n := int(h.EntryCount)

	hashEnd := int(h.HashOffset) + n*MaxHash
	if hashEnd > len(buf) {
		return nil, rpath.Errf(rpath.IOError, "archive.Parse", "", nil)
	}
	hashes := make([][]byte, n)
	for i := 0; i < n; i++ {
		slot := buf[int(h.HashOffset)+i*MaxHash : int(h.HashOffset)+i*MaxHash+MaxHash]
		hashes[i] = append([]byte(nil), slot[:hashLen]...)
	}

	entryEnd := int(h.EntryDataOffset) + n*16
	if entryEnd > len(buf) {
		return nil, rpath.Errf(rpath.IOError, "archive.Parse", "", nil)
	}
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		e := buf[int(h.EntryDataOffset)+i*16 : int(h.EntryDataOffset)+i*16+16]
		entries[i] = Entry{
			DataOffset:     binary.BigEndian.Uint32(e[0:4]),
			ResourceSize:   binary.BigEndian.Uint32(e[4:8]),
			CompressedSize: binary.BigEndian.Uint32(e[8:12]),
			Flags:          binary.BigEndian.Uint32(e[12:16]),
		}
	}

	idx := &Index{Header: h, Hashes: hashes, Entries: entries}
	if err := idx.Verify(); err != nil {
		return nil, err
	}
	return idx, nil
}
