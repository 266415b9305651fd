package mutableprovider

import (
	"bytes"
	"context"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/Voskan/resourcecore/pkg/archive"
	"github.com/Voskan/resourcecore/pkg/manifest"
	"github.com/Voskan/resourcecore/pkg/manifest/manifestpb"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// writeFixtureManifest builds a minimal, unsigned .dmanifest naming one
// EXCLUDED entry (the only kind a mutable archive is responsible for) and
// writes it to base+".dmanifest". The default (zero-value) resource-hash
// algorithm maps to SHA1 in hashAlgoOf, so digests here are sha1.Sum.
func writeFixtureManifest(t *testing.T, base string, entries []manifestpb.ResourceEntry) {
	t.Helper()
	data := &manifestpb.ManifestData{ResourceEntries: entries}
	file := &manifestpb.ManifestFile{Version: manifest.SupportedVersion, Data: data.Marshal()}
	if err := os.WriteFile(base+".dmanifest", file.Marshal(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWriteFileRemountReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "live")

	payload := []byte("the original resource bytes, downloaded over live-update")
	digest := sha1.Sum(payload)
	const pathHash = 42

	writeFixtureManifest(t, base, []manifestpb.ResourceEntry{
		{Url: "/live.bin", UrlHash: pathHash, Hash: digest[:], Flags: uint32(manifestpb.FlagExcluded)},
	})

	a, err := Mount(base, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// Nothing has been written yet: the entry map is still empty.
	if _, err := a.ReadFile(context.Background(), pathHash, "/live.bin"); err == nil {
		t.Fatal("expected ResourceNotFound before WriteFile")
	}

	wrapped := archive.WrapLiveUpdate(payload, 0)
	if err := a.WriteFile(context.Background(), pathHash, "/live.bin", wrapped); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// The in-memory entry map already reflects the write.
	got, err := a.ReadFile(context.Background(), pathHash, "/live.bin")
	if err != nil {
		t.Fatalf("ReadFile after WriteFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}

	if _, err := os.Stat(base + ".arci.tmp"); err != nil {
		t.Fatalf("expected a pending .arci.tmp after WriteFile: %v", err)
	}
	if _, err := os.Stat(base + ".arci"); err == nil {
		t.Fatal("expected .arci to not exist yet; publish is deferred to the next Mount")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Remounting promotes the pending batch: .arci.tmp -> .arci, then the
	// freshly loaded index is what buildEntryMap resolves the manifest's
	// EXCLUDED entry against.
	a2, err := Mount(base, nil)
	if err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer a2.Close()

	if _, err := os.Stat(base + ".arci.tmp"); err == nil {
		t.Fatal("expected .arci.tmp to be gone after promotion on remount")
	}
	if _, err := os.Stat(base + ".arci"); err != nil {
		t.Fatalf("expected .arci to exist after promotion: %v", err)
	}

	got2, err := a2.ReadFile(context.Background(), pathHash, "/live.bin")
	if err != nil {
		t.Fatalf("ReadFile after remount: %v", err)
	}
	if !bytes.Equal(got2, payload) {
		t.Fatalf("got %q want %q after remount", got2, payload)
	}
}

func TestWriteFileDigestMismatchIsRejected(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "live")

	wantDigest := sha1.Sum([]byte("the bytes the manifest actually promises"))
	const pathHash = 7

	writeFixtureManifest(t, base, []manifestpb.ResourceEntry{
		{Url: "/live.bin", UrlHash: pathHash, Hash: wantDigest[:], Flags: uint32(manifestpb.FlagExcluded)},
	})

	a, err := Mount(base, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer a.Close()

	before := len(a.index.Entries)

	wrapped := archive.WrapLiveUpdate([]byte("not what the manifest's digest names"), 0)
	err = a.WriteFile(context.Background(), pathHash, "/live.bin", wrapped)
	if err == nil {
		t.Fatal("expected an error for a payload whose digest doesn't match the manifest")
	}
	if got := rpath.ResultOf(err); got != rpath.SignatureMismatch {
		t.Fatalf("ResultOf(err) = %v, want SignatureMismatch", got)
	}

	if len(a.index.Entries) != before {
		t.Fatalf("index entry count changed after a rejected write: %d -> %d", before, len(a.index.Entries))
	}
	if _, err := a.ReadFile(context.Background(), pathHash, "/live.bin"); err == nil {
		t.Fatal("expected no readable entry after a rejected write")
	}
	if _, err := os.Stat(base + ".arci.tmp"); err == nil {
		t.Fatal("a rejected write must not publish a pending index batch")
	}
}
