package sealcrypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

var (
	hashToScalarPrefix = []byte("RPSv1|hash_to_scalar|")
	handlePrefix       = []byte("RPSv1|handle|")
)

func updateLenBytes(h hash.Hash, b []byte) {
	h.Write(u32le(uint32(len(b))))
	h.Write(b)
}

func HashToScalar(domainSep string, msgs ...[]byte) (Scalar, error) {
	h := sha512.New()
	h.Write(hashToScalarPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		if m == nil {
			return Scalar{}, fmt.Errorf("hashToScalar: nil msg")
		}
		updateLenBytes(h, m)
	}
	return ScalarFromUniformBytes(h.Sum(nil))
}

// DeriveHandle names a ciphertext registered under contract. Ciphertexts are
// randomized, so two encryptions of the same value get different handles.
func DeriveHandle(contract string, ct Ciphertext) [32]byte {
	h := sha256.New()
	h.Write(handlePrefix)
	updateLenBytes(h, []byte(contract))
	h.Write(ct.C1.Bytes())
	h.Write(ct.C2.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
