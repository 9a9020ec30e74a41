package sealcrypto

import "fmt"

// DecryptionShare is d = x*c1 together with a proof that the same x is the
// secret behind the network key.
type DecryptionShare struct {
	D     Point
	Proof ChaumPedersenProof
}

// ProveDecryption decrypts ct with sk and proves the decryption is honest.
func ProveDecryption(sk Scalar, ct Ciphertext, src ScalarSource) (DecryptionShare, error) {
	w, err := nonZeroScalar(src)
	if err != nil {
		return DecryptionShare{}, err
	}
	pk := MulBase(sk)
	d := MulPoint(ct.C1, sk)
	proof, err := ChaumPedersenProve(pk, ct.C1, d, sk, w)
	if err != nil {
		return DecryptionShare{}, err
	}
	return DecryptionShare{D: d, Proof: proof}, nil
}

// VerifyDecryption checks that value is the plaintext of ct under pk.
func VerifyDecryption(pk Point, ct Ciphertext, share DecryptionShare, value uint64) error {
	ok, err := ChaumPedersenVerify(pk, ct.C1, share.D, share.Proof)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("decryption proof does not verify")
	}
	m := PointSub(ct.C2, share.D)
	if !PointEq(m, MulBase(ScalarFromUint64(value))) {
		return fmt.Errorf("decrypted value does not match ciphertext")
	}
	return nil
}

// DecodeDecryptionShare parses the wire form: d(32) and a separate 96-byte proof.
func DecodeDecryptionShare(d []byte, proof []byte) (DecryptionShare, error) {
	dp, err := PointFromBytesCanonical(d)
	if err != nil {
		return DecryptionShare{}, fmt.Errorf("share: %w", err)
	}
	p, err := DecodeChaumPedersenProof(proof)
	if err != nil {
		return DecryptionShare{}, err
	}
	return DecryptionShare{D: dp, Proof: p}, nil
}
