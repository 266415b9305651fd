// Package mutableprovider implements the writable live-update archive
// (scheme "mutable", alias "dmanif"): the same on-disk layout as the
// read-only bundle archive, but extended in place at runtime by verified
// downloaded resources. Grounded on providers/provider_archive_mutable.cpp.
//
// © 2025 resourcecore authors. MIT License.
package mutableprovider

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"os"
	"sync"

	"github.com/Voskan/resourcecore/pkg/archive"
	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/manifest/manifestpb"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

func init() {
	provider.Register(provider.Registration{
		Name: "mutable",
		CanMount: func(uri provider.URI) bool {
			return uri.Scheme == "mutable" || uri.Scheme == "dmanif"
		},
		NewArchive: func(ctx context.Context, uri provider.URI, base provider.Archive) (provider.Archive, error) {
			return Mount(uri.Location+uri.Path, base)
		},
	})
}

type entryPair struct {
	manifestEntry *manifestpb.ResourceEntry
	archiveEntry  archive.Entry
}

// Archive is the mounted, writable live-update archive.
type Archive struct {
	mu       sync.Mutex
	base     string
	manifest *manifest.Manifest
	index    *archive.Index
	data     *archive.DataWriter
	entries  map[uint64]entryPair
}

// Mount runs the ordered bring-up sequence for a mutable archive: publish
// any pending batch from a prior run, load or fork the manifest, then build
// the entry map over EXCLUDED entries only (the entries a live-update
// archive is responsible for serving, as opposed to the bundled ones).
func Mount(base string, baseArchive provider.Archive) (*Archive, error) {
	// (a) promote a pending *.arci.tmp from the previous run.
	tmpPath := base + ".arci.tmp"
	if _, err := os.Stat(tmpPath); err == nil {
		if err := os.Rename(tmpPath, base+".arci"); err != nil {
			return nil, rpath.Errf(rpath.IOError, "mutableprovider.Mount", base, err)
		}
	}

	a := &Archive{base: base}

	// (b) load the manifest if present, else fork the base archive's.
	if mb, err := os.ReadFile(base + ".dmanifest"); err == nil {
		m, err := manifest.Load(mb)
		if err != nil {
			return nil, err
		}
		a.manifest = m
	} else if baseArchive != nil && baseArchive.Manifest() != nil {
		a.manifest = baseArchive.Manifest().Clone()
	} else {
		return nil, rpath.Errf(rpath.InvalidData, "mutableprovider.Mount", base, nil)
	}

	hashLen := rpath.HashLength(hashAlgoOf(a.manifest))
	if ib, err := os.ReadFile(base + ".arci"); err == nil {
		idx, err := archive.Parse(ib)
		if err != nil {
			return nil, err
		}
		a.index = idx
	} else {
		a.index = archive.NewEmpty(hashLen)
	}

	dw, err := archive.OpenDataWriter(base + ".arcd")
	if err != nil {
		return nil, err
	}
	a.data = dw

	a.buildEntryMap()
	return a, nil
}

func hashAlgoOf(m *manifest.Manifest) rpath.HashAlgorithm {
	switch m.Data.Header.ResourceHashAlgorithm {
	case manifestpb.HashAlgorithmMD5:
		return rpath.HashMD5
	case manifestpb.HashAlgorithmSHA256:
		return rpath.HashSHA256
	case manifestpb.HashAlgorithmSHA512:
		return rpath.HashSHA512
	default:
		return rpath.HashSHA1
	}
}

// buildEntryMap walks only EXCLUDED manifest entries (those the base
// bundle archive doesn't serve and the live-update archive must) and
// resolves whichever already have a matching archive-index entry.
func (a *Archive) buildEntryMap() {
	a.entries = make(map[uint64]entryPair)
	for i := range a.manifest.Entries() {
		me := &a.manifest.Entries()[i]
		if me.Flags&uint32(manifestpb.FlagExcluded) == 0 {
			continue
		}
		if ae, err := a.index.FindEntry(me.Hash); err == nil {
			a.entries[me.UrlHash] = entryPair{manifestEntry: me, archiveEntry: *ae}
		}
	}
}

func (a *Archive) lookup(pathHash uint64) (entryPair, error) {
	p, ok := a.entries[pathHash]
	if !ok {
		return entryPair{}, rpath.Errf(rpath.ResourceNotFound, "mutableprovider", "", nil)
	}
	return p, nil
}

func (a *Archive) GetFileSize(_ context.Context, pathHash uint64, _ string) (uint32, error) {
	p, err := a.lookup(pathHash)
	if err != nil {
		return 0, err
	}
	return p.archiveEntry.ResourceSize, nil
}

func (a *Archive) ReadFile(_ context.Context, pathHash uint64, _ string) ([]byte, error) {
	p, err := a.lookup(pathHash)
	if err != nil {
		return nil, err
	}
	return archive.ReadEntry(a.data, p.archiveEntry)
}

func (a *Archive) ReadFilePartial(ctx context.Context, pathHash uint64, path string, offset, size uint32) ([]byte, error) {
	full, err := a.ReadFile(ctx, pathHash, path)
	if err != nil {
		return nil, err
	}
	if offset >= uint32(len(full)) {
		return nil, nil
	}
	end := offset + size
	if end > uint32(len(full)) {
		end = uint32(len(full))
	}
	return full[offset:end], nil
}

// WriteFile implements provider.Writable: verify the downloaded payload's
// digest against the manifest entry, append it to the data file, and
// splice a new index entry in, publishing atomically via a .tmp rename.
// digestOf computes the payload digest under the manifest's declared
// resource-hash algorithm.
func (a *Archive) WriteFile(_ context.Context, pathHash uint64, _ string, liveUpdatePayload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	me, err := a.manifest.FindEntry(pathHash)
	if err != nil {
		return err
	}

	_, flags, payload, err := archive.UnwrapLiveUpdate(liveUpdatePayload)
	if err != nil {
		return err
	}

	got := digestOf(hashAlgoOf(a.manifest), payload)
	if res := rpath.CompareDigest(got, me.Hash); res != rpath.OK {
		return rpath.Errf(rpath.SignatureMismatch, "mutableprovider.WriteFile", "", nil)
	}

	offset, err := a.data.Append(payload)
	if err != nil {
		return err
	}

	entry := archive.Entry{
		DataOffset:     uint32(offset),
		ResourceSize:   uint32(len(payload)),
		CompressedSize: 0xFFFFFFFF,
		Flags:          flags | uint32(archive.FlagLiveUpdate),
	}

	newIndex := a.index.CloneWithSlack(1)
	pos, err := newIndex.InsertSorted(me.Hash, entry)
	if err != nil {
		return err
	}
	newIndex.RecomputeMD5()

	if err := archive.WriteIndexTmp(newIndex, a.base+".arci.tmp"); err != nil {
		return err
	}

	a.index = newIndex
	a.entries[pathHash] = entryPair{manifestEntry: me, archiveEntry: newIndex.Entries[pos]}
	return nil
}

func digestOf(algo rpath.HashAlgorithm, buf []byte) []byte {
	switch algo {
	case rpath.HashMD5:
		sum := md5.Sum(buf)
		return sum[:]
	case rpath.HashSHA256:
		sum := sha256.Sum256(buf)
		return sum[:]
	case rpath.HashSHA512:
		sum := sha512.Sum512(buf)
		return sum[:]
	default:
		sum := sha1.Sum(buf)
		return sum[:]
	}
}

func (a *Archive) Manifest() *manifest.Manifest { return a.manifest }

func (a *Archive) Close() error { return a.data.Close() }

var (
	_ provider.Archive  = (*Archive)(nil)
	_ provider.Writable = (*Archive)(nil)
)
