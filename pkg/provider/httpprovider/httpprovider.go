// Package httpprovider implements the HTTP/HTTPS content provider: resources
// are fetched by URL built from the mount's base URI plus the resource path,
// with an optional on-disk cache so repeated GETs don't re-download content
// that's already been verified once. Grounded on providers/provider_http.cpp.
//
// net/http is the standard library's HTTP client; no pack example repo rolls
// its own, so there's no ecosystem alternative to reach for here. The cache
// layer uses badger/v4 as an embedded on-disk key-value store; this cache is
// its only use in resourcecore.
//
// © 2025 resourcecore authors. MIT License.
package httpprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

func init() {
	provider.Register(provider.Registration{
		Name: "http",
		CanMount: func(uri provider.URI) bool {
			return uri.Scheme == "http" || uri.Scheme == "https"
		},
		NewArchive: func(_ context.Context, uri provider.URI, _ provider.Archive) (provider.Archive, error) {
			scheme := uri.Scheme
			return New(scheme+"://"+uri.Location+uri.Path, nil), nil
		},
	})
}

// Cache is the subset of badger.DB's API the provider needs, so tests can
// substitute an in-memory fake without pulling in a real DB file.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
}

// BadgerCache adapts a *badger.DB to the Cache interface, keyed by request
// URL. Resources fetched over HTTP are content-addressed at the manifest
// layer already, so a simple URL-keyed cache is safe to reuse indefinitely.
type BadgerCache struct {
	DB *badger.DB
}

func (c *BadgerCache) Get(key string) ([]byte, bool) {
	var out []byte
	err := c.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

func (c *BadgerCache) Put(key string, value []byte) {
	_ = c.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Archive is a mounted HTTP(S) content source. baseURL is the mount's root;
// every resource path is appended to it verbatim.
type Archive struct {
	baseURL string
	client  *http.Client
	cache   Cache
}

// New builds an HTTP provider archive rooted at baseURL. A nil cache disables
// caching and every read hits the network.
func New(baseURL string, cache Cache) *Archive {
	return &Archive{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		cache:   cache,
	}
}

func (a *Archive) url(path string) string {
	return a.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// GetFileSize issues a HEAD request and reads Content-Length.
func (a *Archive) GetFileSize(ctx context.Context, _ uint64, path string) (uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.url(path), nil)
	if err != nil {
		return 0, rpath.Errf(rpath.IOError, "httpprovider.GetFileSize", path, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, rpath.Errf(rpath.IOError, "httpprovider.GetFileSize", path, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode, "httpprovider.GetFileSize", path); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 32)
	if err != nil {
		return 0, rpath.Errf(rpath.IOError, "httpprovider.GetFileSize", path, err)
	}
	return uint32(n), nil
}

// ReadFile GETs the resource in full, checking the cache first and
// populating it on a successful fetch.
func (a *Archive) ReadFile(ctx context.Context, pathHash uint64, path string) ([]byte, error) {
	key := cacheKey(pathHash, path)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url(path), nil)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFile", path, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFile", path, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode, "httpprovider.ReadFile", path); err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFile", path, err)
	}

	if a.cache != nil {
		a.cache.Put(key, buf)
	}
	return buf, nil
}

// ReadFilePartial issues a ranged GET for [offset, offset+size). A 206
// response is the expected success case; a 200 response means the server
// ignored the Range header, so the slice is taken client-side instead.
func (a *Archive) ReadFilePartial(ctx context.Context, pathHash uint64, path string, offset, size uint32) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url(path), nil)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFilePartial", path, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFilePartial", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case http.StatusOK:
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, rpath.Errf(rpath.IOError, "httpprovider.ReadFilePartial", path, err)
		}
		if offset >= uint32(len(buf)) {
			return nil, nil
		}
		end := offset + size
		if end > uint32(len(buf)) {
			end = uint32(len(buf))
		}
		return buf[offset:end], nil
	default:
		return nil, statusToError(resp.StatusCode, "httpprovider.ReadFilePartial", path)
	}
}

func cacheKey(pathHash uint64, path string) string {
	return strconv.FormatUint(pathHash, 16) + ":" + path
}

func statusToError(status int, op, path string) error {
	switch {
	case status == http.StatusOK || status == http.StatusPartialContent || status == http.StatusNotModified:
		return nil
	case status == http.StatusNotFound:
		return rpath.Errf(rpath.ResourceNotFound, op, path, nil)
	default:
		return rpath.Errf(rpath.IOError, op, path, fmt.Errorf("unexpected status %d", status))
	}
}

func (a *Archive) Manifest() *manifest.Manifest { return nil }

func (a *Archive) Close() error { return nil }

var _ provider.Archive = (*Archive)(nil)
