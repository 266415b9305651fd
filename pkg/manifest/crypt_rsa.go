package manifest

// crypt_rsa.go implements the raw RSA public-key "decrypt" operation used to
// recover a manifest's signed digest, grounded on dlib's dmCrypt::Decrypt
// (original_source/engine/resource/src/resource_util.cpp
// DecryptSignatureHash). The original performs textbook RSA^e mod n directly
// on the signature bytes rather than calling a signature-verification API,
// because the "signature" here is itself a proprietary wrapper, not a
// standard PKCS#1 DigestInfo the stdlib's rsa.VerifyPKCS1v15 could check
// end-to-end. crypto/rsa is used only for the PublicKey type and the
// underlying big.Int machinery; the modular exponentiation is the textbook
// operation crypto/rsa's own EncryptPKCS1v15/VerifyPKCS1v15 build on
// internally.

import (
	"crypto/rsa"
	"math/big"

	"github.com/Voskan/resourcecore/pkg/rpath"
)

// rsaPublicDecrypt computes sig^E mod N, returning the recovered block
// left-padded with zero bytes to the modulus size.
func rsaPublicDecrypt(pub *rsa.PublicKey, sig []byte) ([]byte, error) {
	if pub == nil || pub.N == nil {
		return nil, rpath.Errf(rpath.InvalidData, "manifest.rsaPublicDecrypt", "", nil)
	}
	c := new(big.Int).SetBytes(sig)
	if c.Cmp(pub.N) >= 0 {
		return nil, rpath.Errf(rpath.InvalidData, "manifest.rsaPublicDecrypt", "", nil)
	}
	e := big.NewInt(int64(pub.E))
	m := new(big.Int).Exp(c, e, pub.N)

	size := (pub.N.BitLen() + 7) / 8
	out := make([]byte, size)
	m.FillBytes(out)
	return out, nil
}
