package rpath

// path.go implements canonical-path normalisation and its 64-bit hash,
// grounded on dlib's GetCanonicalPath/GetCanonicalPathFromBase
// (resource_util.cpp): write a leading "/" if missing, collapse repeated "/"
// separators, and bound the result to MaxPathLength bytes.

import (
	"hash/maphash"
	"strings"

	"github.com/Voskan/resourcecore/internal/unsafehelpers"
)

// MaxPathLength is the hard ceiling on a canonicalized path, matching the
// original's RESOURCE_PATH_MAX.
const MaxPathLength = 1024

// pathSeed is process-wide so that Hash(cpath) is stable across every
// invocation within one process. Go randomises maphash's seed per process by
// default; pinning one seed for the process lifetime gives within-process
// stability without claiming the cross-process stability a fixed
// non-cryptographic hash would have.
var pathSeed = maphash.MakeSeed()

// Canonicalize normalises p into an absolute, separator-collapsed path and
// returns it truncated to MaxPathLength bytes. Idempotent: Canonicalize(
// Canonicalize(p)) == Canonicalize(p).
func Canonicalize(p string) string {
	if p == "" {
		return "/"
	}
	if isCanonical(p) {
		if len(p) > MaxPathLength {
			return p[:MaxPathLength]
		}
		return p
	}

	buf := make([]byte, 0, len(p)+1)
	if p[0] != '/' {
		buf = append(buf, '/')
	}

	var lastWasSlash bool
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' && lastWasSlash {
			continue
		}
		buf = append(buf, c)
		lastWasSlash = c == '/'
	}

	if len(buf) > MaxPathLength {
		buf = buf[:MaxPathLength]
	}
	return unsafehelpers.BytesToString(buf)
}

// isCanonical reports whether p is already a leading-slash,
// no-repeated-separator path, letting the common case (a path that was
// already canonical, e.g. a descriptor's cached Filename) skip the rewrite
// buffer entirely.
func isCanonical(p string) bool {
	if p[0] != '/' {
		return false
	}
	for i := 1; i < len(p); i++ {
		if p[i] == '/' && p[i-1] == '/' {
			return false
		}
	}
	return true
}

// Hash returns the 64-bit key resourcecore uses internally for a canonical
// path. Callers should pass an already-Canonicalize'd path; Hash does not
// canonicalize on your behalf so that call sites which already hold the
// canonical form (e.g. a cached descriptor) avoid recomputation.
func Hash(canonical string) uint64 {
	var h maphash.Hash
	h.SetSeed(pathSeed)
	h.WriteString(canonical)
	return h.Sum64()
}

// CanonicalizeAndHash is the common-case helper used by factory.Get and the
// preloader: normalise, then hash the normalised form.
func CanonicalizeAndHash(p string) (string, uint64) {
	c := Canonicalize(p)
	return c, Hash(c)
}

// Extension returns the file extension (without the leading dot) of a
// canonical path, or "" if none is present. Extensions never contain dots
// themselves, so the extension is everything after the last '.' in the
// final path segment.
func Extension(canonical string) string {
	slash := strings.LastIndexByte(canonical, '/')
	base := canonical
	if slash >= 0 {
		base = canonical[slash+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || dot == len(base)-1 {
		return ""
	}
	return base[dot+1:]
}
