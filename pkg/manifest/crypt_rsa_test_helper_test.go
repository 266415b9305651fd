package manifest

import (
	"crypto/rsa"
	"math/big"
)

// rsaRawSign computes padded^D mod N — the textbook inverse of
// rsaPublicDecrypt's padded^E mod N — so tests can fabricate a signature our
// raw-RSA verification path will recover correctly. Only used by tests; the
// production code never signs, only verifies.
func rsaRawSign(priv *rsa.PrivateKey, padded []byte) ([]byte, error) {
	m := new(big.Int).SetBytes(padded)
	d := priv.D
	n := priv.N
	s := new(big.Int).Exp(m, d, n)

	size := (n.BitLen() + 7) / 8
	out := make([]byte, size)
	s.FillBytes(out)
	return out, nil
}
