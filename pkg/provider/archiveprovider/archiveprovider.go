// Package archiveprovider implements the read-only bundle archive provider
// (schemes "archive", "dmanif"): derives <base>.arci/.arcd/.dmanifest paths
// from the mount URI, loads the manifest and archive index, and builds an
// entry map from url-hash to the matching manifest+archive entry pair.
// Grounded on providers/provider_archive.cpp.
//
// © 2025 resourcecore authors. MIT License.
package archiveprovider

import (
	"context"
	"os"

	"github.com/Voskan/resourcecore/pkg/archive"
	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/manifest/manifestpb"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

func init() {
	provider.Register(provider.Registration{
		Name: "archive",
		CanMount: func(uri provider.URI) bool {
			return uri.Scheme == "archive" || uri.Scheme == "dmanif"
		},
		NewArchive: func(ctx context.Context, uri provider.URI, base provider.Archive) (provider.Archive, error) {
			return Mount(uri.Location + uri.Path)
		},
	})
}

// entryPair is what the entry map resolves a url-hash to.
type entryPair struct {
	manifestEntry *manifestpb.ResourceEntry
	archiveEntry  *archive.Entry
}

// Archive is the mounted, read-only bundle archive.
type Archive struct {
	manifest *manifest.Manifest
	index    *archive.Index
	data     *os.File
	entries  map[uint64]entryPair
}

// Mount derives <base>.dmanifest, <base>.arci and <base>.arcd from base,
// loads all three, and builds the url-hash entry map (providers/
// provider_archive.cpp Mount/BuildEntryMap).
func Mount(base string) (*Archive, error) {
	manifestBytes, err := os.ReadFile(base + ".dmanifest")
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "archiveprovider.Mount", base, err)
	}
	m, err := manifest.Load(manifestBytes)
	if err != nil {
		return nil, err
	}

	indexBytes, err := os.ReadFile(base + ".arci")
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "archiveprovider.Mount", base, err)
	}
	idx, err := archive.Parse(indexBytes)
	if err != nil {
		return nil, err
	}

	dataFile, err := os.Open(base + ".arcd")
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "archiveprovider.Mount", base, err)
	}

	a := &Archive{manifest: m, index: idx, data: dataFile}
	a.buildEntryMap()
	return a, nil
}

// buildEntryMap iterates manifest entries and looks each content digest up
// in the archive index; entries with no archive-side match (excluded or
// live-update resources) are skipped, not an error.
func (a *Archive) buildEntryMap() {
	a.entries = make(map[uint64]entryPair, len(a.manifest.Entries()))
	for i := range a.manifest.Entries() {
		me := &a.manifest.Entries()[i]
		ae, err := a.index.FindEntry(me.Hash)
		if err != nil {
			continue
		}
		a.entries[me.UrlHash] = entryPair{manifestEntry: me, archiveEntry: ae}
	}
}

func (a *Archive) lookup(pathHash uint64) (entryPair, error) {
	p, ok := a.entries[pathHash]
	if !ok {
		return entryPair{}, rpath.Errf(rpath.ResourceNotFound, "archiveprovider", "", nil)
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

// ReadFile verifies the entry exists, then delegates to archive.ReadEntry,
// propagating every failure rather than masking any of them as success.
func (a *Archive) ReadFile(_ context.Context, pathHash uint64, _ string) ([]byte, error) {
	p, err := a.lookup(pathHash)
	if err != nil {
		return nil, err
	}
	buf, err := archive.ReadEntry(a.data, *p.archiveEntry)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (a *Archive) ReadFilePartial(_ context.Context, pathHash uint64, _ string, offset, size uint32) ([]byte, error) {
	full, err := a.ReadFile(context.Background(), pathHash, "")
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

func (a *Archive) Manifest() *manifest.Manifest { return a.manifest }

func (a *Archive) Close() error { return a.data.Close() }

var _ provider.Archive = (*Archive)(nil)
