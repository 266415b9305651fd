package rpath

// crypt.go implements the pluggable symmetric decrypt hook as a process-wide
// registration slot. resourcecore owns only the slot and the default
// wiring, grounded on dlib's g_ResourceDecryption global in
// resource_util.cpp and resource_archive.cpp (both point at the same
// hard-coded key, "KEY").
//
// golang.org/x/crypto/xtea provides the block cipher; it is applied here in
// CTR mode to match the original's in-place stream behaviour
// (dmCrypt::Decrypt mutates the buffer and needs no IV transmitted out of
// band — the keystream is the cipher applied to a per-block counter, XORed
// into the buffer).

import (
	"sync"

	"golang.org/x/crypto/xtea"
)

// defaultKey is the compile-time XTEA key baked into the original binary
// (KEY = "aQj8CScgNP4VsfXK" in both resource_util.cpp and
// resource_archive.cpp). Any deployment that cares about this being
// embedded in the open should register its own Decryptor via
// RegisterDecryptor — exactly the escape hatch the original exposes via
// RegisterResourceDecryptionFunction.
var defaultKey = []byte("aQj8CScgNP4VsfXK")

// Decryptor decrypts buf in place. It must be safe for concurrent use by
// multiple goroutines — providers may read different entries of the same
// archive in parallel.
type Decryptor func(buf []byte) error

var (
	decryptMu  sync.RWMutex
	decryptFn  Decryptor = decryptXTEA
)

// RegisterDecryptor replaces the process-wide decrypt hook. Passing nil
// restores the default XTEA implementation, mirroring
// RegisterResourceDecryptionFunction's "g_ResourceDecryption = 0 ⇒ reset to
// DecryptWithXtea" behaviour.
func RegisterDecryptor(fn Decryptor) {
	decryptMu.Lock()
	defer decryptMu.Unlock()
	if fn == nil {
		decryptFn = decryptXTEA
		return
	}
	decryptFn = fn
}

// Decrypt runs the currently registered Decryptor over buf in place.
func Decrypt(buf []byte) error {
	decryptMu.RLock()
	fn := decryptFn
	decryptMu.RUnlock()
	return fn(buf)
}

// decryptXTEA is the default Decryptor. XTEA operates on fixed 8-byte
// blocks; archive payloads are arbitrary length, so each block's keystream
// is derived by encrypting a little-endian block counter and XORing it over
// the plaintext — a standard CTR construction, chosen because (unlike ECB)
// it tolerates a final partial block without padding, which archive/
// live-update payloads frequently have.
func decryptXTEA(buf []byte) error {
	c, err := xtea.NewCipher(defaultKey)
	if err != nil {
		return err
	}
	var counter [8]byte
	var keystream [8]byte
	for off := 0; off < len(buf); off += 8 {
		putCounter(&counter, uint64(off/8))
		c.Encrypt(keystream[:], counter[:])
		end := off + 8
		if end > len(buf) {
			end = len(buf)
		}
		for i := off; i < end; i++ {
			buf[i] ^= keystream[i-off]
		}
	}
	return nil
}

func putCounter(dst *[8]byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}
