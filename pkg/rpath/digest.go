package rpath

// digest.go implements hex digest encoding and constant-time comparison,
// grounded on dlib's BytesToHexString/MemCompare
// (original_source/engine/resource/src/resource_util.cpp). Unlike the
// original's char-by-char dmSnPrintf loop, Go's encoding/hex gives the exact
// same output with none of the original's off-by-one slicing hazards.

import (
	"crypto/subtle"
	"encoding/hex"
)

// HashAlgorithm mirrors dmLiveUpdateDDF.HashAlgorithm: the algorithm used for
// a manifest's resource-content digests or its signature hash.
type HashAlgorithm int

const (
	HashUnknown HashAlgorithm = iota
	HashMD5
	HashSHA1
	HashSHA256
	HashSHA512
)

// hashLengths is the bit-length table from HashLength() in the original,
// expressed in bytes.
var hashLengths = map[HashAlgorithm]int{
	HashMD5:    16,
	HashSHA1:   20,
	HashSHA256: 32,
	HashSHA512: 64,
}

// HashLength returns the digest length in bytes for algorithm, or 0 if
// unrecognised.
func HashLength(algorithm HashAlgorithm) int {
	return hashLengths[algorithm]
}

// BytesToHexString lower-case hex-encodes buf, matching the original's
// %02x formatting.
func BytesToHexString(buf []byte) string {
	return hex.EncodeToString(buf)
}

// HexStringToBytes is the inverse of BytesToHexString.
func HexStringToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// CompareDigest performs a length-then-content comparison, returning
// distinct results so callers can tell a corrupt digest (LengthMismatch)
// from a digest that is well-formed but simply wrong (Mismatch) — mirrors
// dmResource::MemCompare.
func CompareDigest(got, expected []byte) Result {
	if len(got) != len(expected) {
		return LengthMismatch
	}
	if subtle.ConstantTimeCompare(got, expected) != 1 {
		return Mismatch
	}
	return OK
}
