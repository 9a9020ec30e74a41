package sealcrypto

// KeyPair is a network decryption key: PK = SK*G.
type KeyPair struct {
	SK Scalar
	PK Point
}

func GenerateKeyPair(src ScalarSource) (KeyPair, error) {
	sk, err := nonZeroScalar(src)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{SK: sk, PK: MulBase(sk)}, nil
}

// KeyPairFromSecret rebuilds a key pair from a hex-encoded secret scalar.
func KeyPairFromSecret(hexSecret string) (KeyPair, error) {
	sk, err := ScalarFromHex(hexSecret)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{SK: sk, PK: MulBase(sk)}, nil
}
