// Package manifest parses, verifies and queries the signed manifest that
// accompanies every bundle archive, grounded on resource_manifest.cpp and
// resource_verify.cpp.
//
// © 2025 resourcecore authors. MIT License.
package manifest

import (
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"sort"

	"github.com/Voskan/resourcecore/pkg/manifest/manifestpb"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// SupportedVersion is the only manifest wire version resourcecore accepts,
// matching dmResource::MANIFEST_VERSION (=5) from resource_manifest.h.
const SupportedVersion = 5

// Manifest is the parsed, queryable form of a ManifestFile. Entries are kept
// sorted by UrlHash so FindEntry can binary search.
type Manifest struct {
	File    *manifestpb.ManifestFile
	Data    *manifestpb.ManifestData
	entries []manifestpb.ResourceEntry // sorted by UrlHash
}

// Load parses the outer signed envelope, checks its version, then parses the
// inner data body. It does not verify the signature — call Verify for that.
func Load(buf []byte) (*Manifest, error) {
	file := &manifestpb.ManifestFile{}
	if err := file.Unmarshal(buf); err != nil {
		return nil, rpath.Errf(rpath.DDFError, "manifest.Load", "", err)
	}
	if file.Version != SupportedVersion {
		return nil, rpath.Errf(rpath.VersionMismatch, "manifest.Load", "", nil)
	}

	data := &manifestpb.ManifestData{}
	if err := data.Unmarshal(file.Data); err != nil {
		return nil, rpath.Errf(rpath.DDFError, "manifest.Load", "", err)
	}

	entries := append([]manifestpb.ResourceEntry(nil), data.ResourceEntries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].UrlHash < entries[j].UrlHash })

	return &Manifest{File: file, Data: data, entries: entries}, nil
}

// Save serialises m back into a ManifestFile wire buffer.
func Save(m *Manifest) []byte {
	m.File.Data = m.Data.Marshal()
	return m.File.Marshal()
}

// Clone deep-copies a Manifest so the mutable archive provider can own an
// independent manifest instance without aliasing the base archive's data or
// slice backing arrays.
func (m *Manifest) Clone() *Manifest {
	f := *m.File
	f.Data = append([]byte(nil), m.File.Data...)
	f.Signature = append([]byte(nil), m.File.Signature...)
	f.ArchiveIdentifier = append([]byte(nil), m.File.ArchiveIdentifier...)

	d := *m.Data
	d.EngineVersions = append([]string(nil), m.Data.EngineVersions...)
	d.ResourceEntries = make([]manifestpb.ResourceEntry, len(m.Data.ResourceEntries))
	copy(d.ResourceEntries, m.Data.ResourceEntries)

	entries := append([]manifestpb.ResourceEntry(nil), m.entries...)
	return &Manifest{File: &f, Data: &d, entries: entries}
}

// FindEntry binary-searches the sorted resource entries for urlHash,
// returning rpath.ResourceNotFound when absent.
func (m *Manifest) FindEntry(urlHash uint64) (*manifestpb.ResourceEntry, error) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].UrlHash >= urlHash })
	if i < len(m.entries) && m.entries[i].UrlHash == urlHash {
		return &m.entries[i], nil
	}
	return nil, rpath.Errf(rpath.ResourceNotFound, "manifest.FindEntry", "", nil)
}

// GetDependencies returns the direct dependency url-hashes of urlHash.
func (m *Manifest) GetDependencies(urlHash uint64) ([]uint64, error) {
	e, err := m.FindEntry(urlHash)
	if err != nil {
		return nil, err
	}
	return e.Dependants, nil
}

// Entries exposes the sorted entry slice read-only, for providers that need
// to walk every entry once (archive provider entry-map construction, mount
// table dependency walks).
func (m *Manifest) Entries() []manifestpb.ResourceEntry {
	return m.entries
}

// digestFor computes the content hash of buf under algo.
func digestFor(algo manifestpb.HashAlgorithm, buf []byte) ([]byte, error) {
	switch algo {
	case manifestpb.HashAlgorithmMD5:
		sum := md5.Sum(buf)
		return sum[:], nil
	case manifestpb.HashAlgorithmSHA1:
		sum := sha1.Sum(buf)
		return sum[:], nil
	case manifestpb.HashAlgorithmSHA256:
		sum := sha256.Sum256(buf)
		return sum[:], nil
	case manifestpb.HashAlgorithmSHA512:
		sum := sha512.Sum512(buf)
		return sum[:], nil
	default:
		return nil, rpath.Errf(rpath.InvalidData, "manifest.digestFor", "", nil)
	}
}

// DecryptSignatureHash RSA-decrypts the manifest's signature against
// publicKey, returning the recovered digest (resource_util.cpp
// DecryptSignatureHash). It performs only a raw RSA public-key "decrypt"
// (the original's signature verification done manually rather than through
// a signing API); there is no crypto/rsa.VerifyPKCS1v15 fallback.
func DecryptSignatureHash(m *Manifest, publicKey *rsa.PublicKey) ([]byte, error) {
	// RSA "decrypt" of a signature with the public key is textbook
	// RSA^e mod n applied directly to the signature bytes; the recovered
	// block still carries whatever padding scheme the signer used, which
	// VerifyManifest accounts for by comparing only the digest tail.
	recovered, err := rsaPublicDecrypt(publicKey, m.File.Signature)
	if err != nil {
		return nil, rpath.Errf(rpath.InvalidData, "manifest.DecryptSignatureHash", "", err)
	}
	return recovered, nil
}

// VerifyManifest recomputes the digest of the manifest's data body using the
// declared signature-hash algorithm, RSA-decrypts the signature, compares
// the two, and checks the running engine's identifier against the
// supported-engine-version list.
func VerifyManifest(m *Manifest, publicKey *rsa.PublicKey, runningEngineSHA1 string) error {
	hashAlgo := m.Data.Header.SignatureHashAlgorithm
	want, err := digestFor(hashAlgo, m.File.Data)
	if err != nil {
		return err
	}

	got, err := DecryptSignatureHash(m, publicKey)
	if err != nil {
		return err
	}

	// PKCS#1v1.5 signature padding places the DigestInfo (algorithm OID +
	// digest) at the tail of the recovered block; for our purposes
	// (resourcecore controls both sides of this format, as does the
	// original dmCrypt::Decrypt contract) we compare the trailing bytes.
	if len(got) < len(want) {
		return rpath.Errf(rpath.InvalidData, "manifest.VerifyManifest", "", nil)
	}
	tail := got[len(got)-len(want):]
	if res := rpath.CompareDigest(tail, want); res != rpath.OK {
		return rpath.Errf(rpath.SignatureMismatch, "manifest.VerifyManifest", "", nil)
	}

	supported := false
	for _, ev := range m.Data.EngineVersions {
		if ev == runningEngineSHA1 {
			supported = true
			break
		}
	}
	if !supported {
		return rpath.Errf(rpath.VersionMismatch, "manifest.VerifyManifest", "", nil)
	}
	return nil
}

// EngineVersionSHA1 hex-encodes a raw 20-byte SHA1 engine identifier the way
// the manifest's EngineVersions list stores it, for callers assembling the
// "running engine" comparison value.
func EngineVersionSHA1(raw [20]byte) string {
	return hex.EncodeToString(raw[:])
}
