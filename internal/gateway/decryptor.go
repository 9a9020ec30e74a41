package gateway

import (
	"fmt"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// maxCleartext bounds the discrete log search. Stored values are choices
// (0..2) and outcomes (1..5).
const maxCleartext = 16

// Decryptor holds the network secret key.
type Decryptor struct {
	kp  sealcrypto.KeyPair
	src sealcrypto.ScalarSource
}

func NewDecryptor(kp sealcrypto.KeyPair, src sealcrypto.ScalarSource) *Decryptor {
	if src == nil {
		src = sealcrypto.NewRandSource(nil)
	}
	return &Decryptor{kp: kp, src: src}
}

func (d *Decryptor) PublicKey() sealcrypto.Point {
	return d.kp.PK
}

// Decrypt opens rec and proves the opening against the network key.
func (d *Decryptor) Decrypt(rec types.CiphertextRecord) (types.Decryption, error) {
	ct, err := sealcrypto.DecodeCiphertext(append(append([]byte(nil), rec.C1...), rec.C2...))
	if err != nil {
		return types.Decryption{}, fmt.Errorf("ciphertext %s: %w", rec.Handle, err)
	}
	value, err := sealcrypto.DecodeSmall(sealcrypto.Decrypt(d.kp.SK, ct), maxCleartext)
	if err != nil {
		return types.Decryption{}, fmt.Errorf("ciphertext %s: %w", rec.Handle, err)
	}
	share, err := sealcrypto.ProveDecryption(d.kp.SK, ct, d.src)
	if err != nil {
		return types.Decryption{}, fmt.Errorf("prove decryption %s: %w", rec.Handle, err)
	}
	return types.Decryption{
		Handle: rec.Handle,
		Value:  value,
		Share:  share.D.Bytes(),
		Proof:  sealcrypto.EncodeChaumPedersenProof(share.Proof),
	}, nil
}
