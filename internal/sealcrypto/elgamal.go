package sealcrypto

import "fmt"

const CiphertextBytes = 2 * PointBytes

type Ciphertext struct {
	C1 Point
	C2 Point
}

// EncryptPoint is ElGamal in additive notation:
//
//	PK = Y = x*G
//	Enc(Y, M; r) = (r*G, M + r*Y)
func EncryptPoint(pk Point, m Point, r Scalar) (Ciphertext, error) {
	if r.IsZero() {
		// Zero randomness is valid mathematically but leaks the plaintext.
		return Ciphertext{}, fmt.Errorf("elgamal: r must be non-zero")
	}
	c1 := MulBase(r)
	c2 := PointAdd(m, MulPoint(pk, r))
	return Ciphertext{C1: c1, C2: c2}, nil
}

// Encrypt encodes m in the exponent (m*G) so ciphertexts add homomorphically.
func Encrypt(pk Point, m uint64, r Scalar) (Ciphertext, error) {
	return EncryptPoint(pk, MulBase(ScalarFromUint64(m)), r)
}

// Decrypt returns M = c2 - x*c1. For exponential ciphertexts M = m*G; use
// DecodeSmall to recover m.
func Decrypt(sk Scalar, ct Ciphertext) Point {
	return PointSub(ct.C2, MulPoint(ct.C1, sk))
}

// Sub returns Enc(a - b) under the same key.
func Sub(a, b Ciphertext) Ciphertext {
	return Ciphertext{C1: PointSub(a.C1, b.C1), C2: PointSub(a.C2, b.C2)}
}

// AddPlain returns Enc(m + k) from Enc(m) without fresh randomness.
func AddPlain(ct Ciphertext, k uint64) Ciphertext {
	return Ciphertext{C1: ct.C1, C2: PointAdd(ct.C2, MulBase(ScalarFromUint64(k)))}
}

func (ct Ciphertext) Bytes() []byte {
	return concatBytes(ct.C1.Bytes(), ct.C2.Bytes())
}

func DecodeCiphertext(b []byte) (Ciphertext, error) {
	if len(b) != CiphertextBytes {
		return Ciphertext{}, fmt.Errorf("ciphertext: expected %d bytes", CiphertextBytes)
	}
	c1, err := PointFromBytesCanonical(b[:PointBytes])
	if err != nil {
		return Ciphertext{}, err
	}
	c2, err := PointFromBytesCanonical(b[PointBytes:])
	if err != nil {
		return Ciphertext{}, err
	}
	return Ciphertext{C1: c1, C2: c2}, nil
}

// DecodeSmall solves M = m*G for m in [0, max] by walking the multiples of G.
func DecodeSmall(p Point, max uint64) (uint64, error) {
	g := PointBase()
	acc := PointZero()
	for m := uint64(0); m <= max; m++ {
		if PointEq(acc, p) {
			return m, nil
		}
		acc = PointAdd(acc, g)
	}
	return 0, fmt.Errorf("elgamal: plaintext not in [0, %d]", max)
}
