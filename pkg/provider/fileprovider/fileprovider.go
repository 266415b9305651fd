// Package fileprovider implements the "file" scheme provider: a thin
// pass-through onto the local filesystem, with no verification or
// decryption of its own. Grounded on providers/provider_file.cpp.
//
// © 2025 resourcecore authors. MIT License.
package fileprovider

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

func init() {
	provider.Register(provider.Registration{
		Name: "file",
		CanMount: func(uri provider.URI) bool {
			switch uri.Scheme {
			case "file", "data", "host":
				return true
			default:
				return false
			}
		},
		NewArchive: func(_ context.Context, uri provider.URI, _ provider.Archive) (provider.Archive, error) {
			return &Archive{root: filepath.Join(uri.Location, uri.Path)}, nil
		},
	})
}

// Archive resolves resource paths relative to a root directory, matching
// the original's ResolveMountFileName(location+path, relative).
type Archive struct {
	root string
}

func (a *Archive) resolve(path string) string {
	return filepath.Join(a.root, filepath.FromSlash(path))
}

func (a *Archive) GetFileSize(_ context.Context, _ uint64, path string) (uint32, error) {
	info, err := os.Stat(a.resolve(path))
	if err != nil {
		return 0, rpath.Errf(rpath.ResourceNotFound, "fileprovider.GetFileSize", path, err)
	}
	return uint32(info.Size()), nil
}

func (a *Archive) ReadFile(_ context.Context, _ uint64, path string) ([]byte, error) {
	buf, err := os.ReadFile(a.resolve(path))
	if err != nil {
		return nil, rpath.Errf(rpath.ResourceNotFound, "fileprovider.ReadFile", path, err)
	}
	return buf, nil
}

func (a *Archive) ReadFilePartial(_ context.Context, _ uint64, path string, offset, size uint32) ([]byte, error) {
	f, err := os.Open(a.resolve(path))
	if err != nil {
		return nil, rpath.Errf(rpath.ResourceNotFound, "fileprovider.ReadFilePartial", path, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && n == 0 {
		return nil, rpath.Errf(rpath.IOError, "fileprovider.ReadFilePartial", path, err)
	}
	return buf[:n], nil
}

func (a *Archive) Manifest() *manifest.Manifest { return nil }

func (a *Archive) Close() error { return nil }

var _ provider.Archive = (*Archive)(nil)
