package rpath

import "testing"

func TestCanonicalizeCollapsesAndPrefixes(t *testing.T) {
	cases := map[string]string{
		"foo/bar":       "/foo/bar",
		"/foo//bar":     "/foo/bar",
		"//foo///bar//": "/foo/bar/",
		"":              "/",
		"/already/fine": "/already/fine",
	}
	for in, want := range cases {
		got := Canonicalize(in)
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for _, p := range []string{"a//b///c", "/x/y", "weird//path//"} {
		once := Canonicalize(p)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q vs %q", p, once, twice)
		}
	}
}

func TestHashStableAcrossCalls(t *testing.T) {
	p, h1 := CanonicalizeAndHash("/archive_data/file1.adc")
	h2 := Hash(p)
	if h1 != h2 {
		t.Fatalf("hash not stable: %d vs %d", h1, h2)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"/a/b.cont":  "cont",
		"/a/b":       "",
		"/a.b/c":     "",
		"/a/b.tar.gz": "gz",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	digest := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	s := BytesToHexString(digest)
	back, err := HexStringToBytes(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(digest) {
		t.Fatalf("length mismatch after round trip")
	}
	for i := range digest {
		if back[i] != digest[i] {
			t.Fatalf("round trip mismatch at %d", i)
		}
	}
}

func TestCompareDigest(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}
	d := []byte{1, 2}

	if r := CompareDigest(a, b); r != OK {
		t.Fatalf("expected OK, got %v", r)
	}
	if r := CompareDigest(a, c); r != Mismatch {
		t.Fatalf("expected Mismatch, got %v", r)
	}
	if r := CompareDigest(a, d); r != LengthMismatch {
		t.Fatalf("expected LengthMismatch, got %v", r)
	}
}

func TestDecryptRoundTrip(t *testing.T) {
	RegisterDecryptor(nil) // ensure default

	plain := []byte("hello resourcecore, this spans more than one xtea block!")
	buf := append([]byte(nil), plain...)

	if err := Decrypt(buf); err != nil {
		t.Fatal(err)
	}
	// Decrypting again with the same CTR keystream XORs back to plaintext.
	if err := Decrypt(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != string(plain) {
		t.Fatalf("xtea ctr round trip failed: got %q", buf)
	}
}
