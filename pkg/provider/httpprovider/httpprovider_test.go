package httpprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type memCache struct {
	data map[string][]byte
	hits int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(key string) ([]byte, bool) {
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *memCache) Put(key string, value []byte) { c.data[key] = value }

func TestGetFileSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	size, err := a.GetFileSize(context.Background(), 1, "/hello.txt")
	if err != nil {
		t.Fatalf("GetFileSize: %v", err)
	}
	if size != 11 {
		t.Fatalf("size = %d, want 11", size)
	}
}

func TestReadFileUsesCacheOnSecondCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	cache := newMemCache()
	a := New(srv.URL, cache)

	buf, err := a.ReadFile(context.Background(), 42, "/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(buf) != "hello world" {
		t.Fatalf("content = %q", buf)
	}

	buf2, err := a.ReadFile(context.Background(), 42, "/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile (cached): %v", err)
	}
	if string(buf2) != "hello world" {
		t.Fatalf("cached content = %q", buf2)
	}
	if calls != 1 {
		t.Fatalf("server was hit %d times, want 1 (second read should be served from cache)", calls)
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", cache.hits)
	}
}

func TestReadFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	if _, err := a.ReadFile(context.Background(), 1, "/missing.txt"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestReadFilePartialWithRangeSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "" {
			t.Fatal("expected Range header")
		}
		w.Header().Set("Content-Range", "bytes 3-6/11")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("lo w"))
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	buf, err := a.ReadFilePartial(context.Background(), 1, "/hello.txt", 3, 4)
	if err != nil {
		t.Fatalf("ReadFilePartial: %v", err)
	}
	if string(buf) != "lo w" {
		t.Fatalf("partial = %q", buf)
	}
}

func TestReadFilePartialServerIgnoresRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	a := New(srv.URL, nil)
	buf, err := a.ReadFilePartial(context.Background(), 1, "/hello.txt", 6, 5)
	if err != nil {
		t.Fatalf("ReadFilePartial: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("partial = %q", buf)
	}
}
