// Package archive implements the bundle archive's binary index (.arci) and
// data (.arcd) format: big-endian fixed headers, a sorted hash table, entry
// lookup by binary search, entry read with optional decrypt+decompress, and
// in-place sorted insertion for the mutable (live-update) archive. Grounded
// on resource_archive.cpp / resource_archive.h, with the sorted-entries
// scheme additionally cross-checked against icza/mpq's hash-table/
// block-table wire reader (_examples/icza-mpq/mpq.go), which reads the same
// kind of fixed-width binary header/table pair by field.
//
// © 2025 resourcecore authors. MIT License.
package archive

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// Version is the only .arci wire version resourcecore accepts.
const Version = 5

// MaxHash is the fixed hash-slot width on disk; only HashLength bytes of
// each slot are significant, the remainder is zero padding.
const MaxHash = 64

// HeaderSize is the fixed, 48-byte .arci header.
const HeaderSize = 4 + 4 + 8 + 4 + 4 + 4 + 4 + 16

// Entry flag bits.
const (
	FlagEncrypted         uint32 = 1
	FlagCompressed        uint32 = 2
	FlagLiveUpdate        uint32 = 4
	uncompressedSentinel  uint32 = 0xFFFFFFFF
)

// Header is the fixed 48-byte .arci header: version, padding, userdata,
// entry count, entry-data offset, hash-table offset, hash length, and an
// MD5 digest of the serialized hash+entry tables.
type Header struct {
	Version         uint32
	Pad             uint32
	UserData        uint64
	EntryCount      uint32
	EntryDataOffset uint32
	HashOffset      uint32
	HashLength      uint32
	IndexMD5        [16]byte
}

// Entry is one 16-byte entry-table row.
type Entry struct {
	DataOffset     uint32
	ResourceSize   uint32
	CompressedSize uint32
	Flags          uint32
}

// IsCompressed reports whether e's CompressedSize sentinel indicates the
// payload is LZ4-compressed on disk.
func (e Entry) IsCompressed() bool { return e.CompressedSize != uncompressedSentinel }

// IsEncrypted reports whether e.Flags has the ENCRYPTED bit set.
func (e Entry) IsEncrypted() bool { return e.Flags&FlagEncrypted != 0 }

// IsLiveUpdate reports whether e.Flags has the LIVEUPDATE_DATA bit set.
func (e Entry) IsLiveUpdate() bool { return e.Flags&FlagLiveUpdate != 0 }

// StoredSize is the number of bytes of this entry's payload actually present
// in the .arcd file (compressed size when compressed, else resource size).
func (e Entry) StoredSize() uint32 {
	if e.IsCompressed() {
		return e.CompressedSize
	}
	return e.ResourceSize
}

// Index is the parsed in-memory form of an .arci file: header, sorted hash
// slots (HashLength significant bytes each) and the parallel entry table.
type Index struct {
	Header  Header
	Hashes  [][]byte // len == Header.EntryCount, each HashLength bytes
	Entries []Entry  // len == Header.EntryCount, Entries[i] pairs with Hashes[i]
}

// NewEmpty builds a zero-entry index with the header conventions the
// original's ArchiveIndex() constructor establishes: entry_data_offset and
// hash_offset both start at sizeof(header) before any entries exist.
func NewEmpty(hashLength int) *Index {
	return &Index{
		Header: Header{
			Version:         Version,
			EntryDataOffset: HeaderSize,
			HashOffset:      HeaderSize,
			HashLength:      uint32(hashLength),
		},
	}
}

// entryAt returns the hash+entry pair at position i.
func (idx *Index) entryAt(i int) ([]byte, Entry) { return idx.Hashes[i], idx.Entries[i] }

// lowerBound returns the first index i such that Hashes[i] >= digest
// (lexicographic, first HashLength bytes), matching the original's
// LowerBound over the flat hash array.
func (idx *Index) lowerBound(digest []byte) int {
	lo, hi := 0, len(idx.Hashes)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareDigest(idx.Hashes[mid], digest) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func compareDigest(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// FindEntry performs a lower-bound binary search over the sorted hash
// table, returning rpath.ResourceNotFound on a miss.
func (idx *Index) FindEntry(digest []byte) (*Entry, error) {
	i := idx.lowerBound(digest)
	if i >= len(idx.Hashes) {
		return nil, rpath.Errf(rpath.ResourceNotFound, "archive.FindEntry", "", nil)
	}
	if compareDigest(idx.Hashes[i], digest) != 0 {
		return nil, rpath.Errf(rpath.ResourceNotFound, "archive.FindEntry", "", nil)
	}
	e := idx.Entries[i]
	return &e, nil
}

// GetInsertionIndex returns the sorted position at which digest should be
// inserted, or rpath.AlreadyStored if an entry with that exact digest
// already exists (mirrors GetInsertionIndex in resource_archive.cpp).
func (idx *Index) GetInsertionIndex(digest []byte) (int, error) {
	i := idx.lowerBound(digest)
	if i < len(idx.Hashes) && compareDigest(idx.Hashes[i], digest) == 0 {
		return 0, rpath.Errf(rpath.AlreadyStored, "archive.GetInsertionIndex", "", nil)
	}
	return i, nil
}

// Verify recomputes the MD5 of the serialized hash+entry tables and compares
// it against Header.IndexMD5, guarding against a truncated or hand-edited
// index file (resource_archive.cpp: ArchiveIndex::m_IndexMD5, checked on
// non-mmap loads).
func (idx *Index) Verify() error {
	sum := md5.Sum(idx.serializeTables())
	if sum != idx.Header.IndexMD5 {
		return rpath.Errf(rpath.InvalidData, "archive.Verify", "", nil)
	}
	return nil
}

func (idx *Index) serializeTables() []byte {
	hashLen := int(idx.Header.HashLength)
	n := len(idx.Hashes)
	buf := make([]byte, 0, n*MaxHash+n*16)
	for _, h := range idx.Hashes {
		slot := make([]byte, MaxHash)
		copy(slot, h[:min(hashLen, len(h))])
		buf = append(buf, slot...)
	}
	for _, e := range idx.Entries {
		var eb [16]byte
		binary.BigEndian.PutUint32(eb[0:4], e.DataOffset)
		binary.BigEndian.PutUint32(eb[4:8], e.ResourceSize)
		binary.BigEndian.PutUint32(eb[8:12], e.CompressedSize)
		binary.BigEndian.PutUint32(eb[12:16], e.Flags)
		buf = append(buf, eb[:]...)
	}
	return buf
}

// RecomputeMD5 fills Header.IndexMD5 from the current table contents;
// callers rewriting an index (insertion) must call this before Serialize.
func (idx *Index) RecomputeMD5() {
	idx.Header.IndexMD5 = md5.Sum(idx.serializeTables())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
