package authz

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// Keypair is the requester's box key pair. Gateway replies are sealed to
// Public and can only be opened with Private.
type Keypair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeypair draws a fresh key pair from r, or crypto/rand when r is nil.
func GenerateKeypair(r io.Reader) (Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate box key: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// Open decrypts a reply sealed to kp.
func (kp Keypair) Open(sealed []byte) ([]byte, error) {
	out, ok := box.OpenAnonymous(nil, sealed, kp.Public, kp.Private)
	if !ok {
		return nil, fmt.Errorf("sealed reply does not open with this key")
	}
	return out, nil
}

// Seal encrypts msg to the holder of pub.
func Seal(pub *[32]byte, msg []byte) ([]byte, error) {
	return box.SealAnonymous(nil, msg, pub, rand.Reader)
}
