package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/Voskan/resourcecore/pkg/manifest/manifestpb"
)

func buildSignedManifest(t *testing.T, priv *rsa.PrivateKey, engineSHA1 string, entries []manifestpb.ResourceEntry) []byte {
	t.Helper()

	data := &manifestpb.ManifestData{
		Header: manifestpb.Header{
			ResourceHashAlgorithm:  manifestpb.HashAlgorithmSHA1,
			SignatureHashAlgorithm: manifestpb.HashAlgorithmSHA256,
			SignatureSignAlgorithm: manifestpb.SignAlgorithmRSA,
			ProjectIdentifier:      "test-project",
		},
		EngineVersions:  []string{engineSHA1},
		ResourceEntries: entries,
	}
	dataBytes := data.Marshal()

	digest := sha256.Sum256(dataBytes)
	sig, err := rsaSignRecoverable(priv, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	file := &manifestpb.ManifestFile{
		Version:   SupportedVersion,
		Data:      dataBytes,
		Signature: sig,
	}
	return file.Marshal()
}

// rsaSignRecoverable computes sig = digest_padded ^ D mod N, the inverse of
// rsaPublicDecrypt, so tests can produce a signature that
// DecryptSignatureHash's raw public-exponent operation recovers correctly.
func rsaSignRecoverable(priv *rsa.PrivateKey, digest []byte) ([]byte, error) {
	size := (priv.N.BitLen() + 7) / 8
	padded := make([]byte, size)
	copy(padded[size-len(digest):], digest)
	return rsaRawSign(priv, padded)
}

func TestLoadAndVerifyManifest(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}

	entries := []manifestpb.ResourceEntry{
		{Url: "/a.txt", UrlHash: 10, Dependants: []uint64{20}},
		{Url: "/b.txt", UrlHash: 20},
	}
	raw := buildSignedManifest(t, priv, "deadbeef", entries)

	m, err := Load(raw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := VerifyManifest(m, &priv.PublicKey, "deadbeef"); err != nil {
		t.Fatalf("VerifyManifest: %v", err)
	}

	if err := VerifyManifest(m, &priv.PublicKey, "wrong-engine"); err == nil {
		t.Fatalf("expected VersionMismatch for wrong engine id")
	}

	e, err := m.FindEntry(10)
	if err != nil {
		t.Fatalf("FindEntry: %v", err)
	}
	if e.Url != "/a.txt" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	deps, err := m.GetDependencies(10)
	if err != nil || len(deps) != 1 || deps[0] != 20 {
		t.Fatalf("unexpected deps: %v err=%v", deps, err)
	}

	if _, err := m.FindEntry(999); err == nil {
		t.Fatalf("expected not-found for missing hash")
	}
}

func TestVerifyManifestTamperedKey(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 1024)
	other, _ := rsa.GenerateKey(rand.Reader, 1024)

	raw := buildSignedManifest(t, priv, "abc123", nil)
	m, err := Load(raw)
	if err != nil {
		t.Fatal(err)
	}

	if err := VerifyManifest(m, &other.PublicKey, "abc123"); err == nil {
		t.Fatalf("expected verification failure with mismatched key")
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	file := &manifestpb.ManifestFile{Version: 4, Data: (&manifestpb.ManifestData{}).Marshal()}
	if _, err := Load(file.Marshal()); err == nil {
		t.Fatalf("expected version mismatch error")
	}
}
