package archive

// CloneWithSlack deep-copies idx into a new Index, reserving room for
// extraSlots additional entries before any insertion happens. Grounded on
// NewArchiveIndexFromCopy in resource_archive.cpp, which takes an
// extra_entries_alloc parameter for exactly this purpose — promoted here to
// an explicit, caller-chosen batch size rather than the original's
// call-site constant of 1, so a batch live-update apply can grow the table
// once instead of once per resource (REDESIGN: explicit batch-insert size).
func (idx *Index) CloneWithSlack(extraSlots int) *Index {
	n := len(idx.Hashes)
	hashes := make([][]byte, n, n+extraSlots)
	for i, h := range idx.Hashes {
		hashes[i] = append([]byte(nil), h...)
	}
	entries := make([]Entry, n, n+extraSlots)
	copy(entries, idx.Entries)

	clone := &Index{
		Header:  idx.Header,
		Hashes:  hashes,
		Entries: entries,
	}
	return clone
}

// InsertResult carries the outcome of inserting one resource into a
// mutable archive index: its position and the new index it was applied to.
type InsertResult struct {
	Index *Index
	Pos   int
}

// ShiftAndInsert inserts digest/entry at the sorted position pos, shifting
// every following slot down by one (memmove in the original's
// ShiftAndInsert; Go's append-based slice growth plays the same role).
// Callers must have already reserved room via CloneWithSlack, or append
// will silently reallocate — acceptable, just not the batch-friendly path.
func (idx *Index) ShiftAndInsert(pos int, digest []byte, e Entry) {
	hashCopy := append([]byte(nil), digest...)

	idx.Hashes = append(idx.Hashes, nil)
	copy(idx.Hashes[pos+1:], idx.Hashes[pos:])
	idx.Hashes[pos] = hashCopy

	idx.Entries = append(idx.Entries, Entry{})
	copy(idx.Entries[pos+1:], idx.Entries[pos:])
	idx.Entries[pos] = e

	idx.Header.EntryCount = uint32(len(idx.Entries))
}

// InsertSorted finds digest's sorted insertion position in idx and inserts
// e there, returning rpath.AlreadyStored if digest is already present —
// the single-resource composition of GetInsertionIndex + ShiftAndInsert
// that NewArchiveIndexWithResource performs in the original.
func (idx *Index) InsertSorted(digest []byte, e Entry) (int, error) {
	pos, err := idx.GetInsertionIndex(digest)
	if err != nil {
		return 0, err
	}
	idx.ShiftAndInsert(pos, digest, e)
	return pos, nil
}

// InsertBatch clones idx with slack for len(items), inserts every item in
// sorted order, recomputes the header MD5 and returns the new index.
// Duplicate digests (already present, or duplicated within the batch) are
// reported via rpath.AlreadyStored and left out of the result; the caller
// decides whether a partial batch is acceptable.
func (idx *Index) InsertBatch(digests [][]byte, entries []Entry) (*Index, []error) {
	clone := idx.CloneWithSlack(len(digests))
	var errs []error
	for i, d := range digests {
		if _, err := clone.InsertSorted(d, entries[i]); err != nil {
			errs = append(errs, err)
		}
	}
	clone.RecomputeMD5()
	return clone, errs
}
