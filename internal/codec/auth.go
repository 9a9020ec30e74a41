package codec

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const txAuthDomainV1 = "rps/tx/v1"

// SignBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
func SignBytes(typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV1)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV1)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// SignDigest is the 32-byte digest a wallet signs for env.
func SignDigest(env TxEnvelope) []byte {
	return crypto.Keccak256(SignBytes(env.Type, env.Value, env.Nonce, strings.ToLower(env.Signer)))
}

// RecoverSigner returns the lowercase hex address that produced env.Sig and
// checks it matches env.Signer.
func RecoverSigner(env TxEnvelope) (string, error) {
	if env.Nonce == "" {
		return "", fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return "", fmt.Errorf("missing tx.signer")
	}
	if !common.IsHexAddress(env.Signer) {
		return "", fmt.Errorf("tx.signer is not a hex address")
	}
	if len(env.Sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), crypto.SignatureLength)
	}
	sig := append([]byte(nil), env.Sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(SignDigest(env), sig)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(env.Signer) {
		return "", fmt.Errorf("tx signer mismatch: signer=%s recovered=%s", env.Signer, recovered.Hex())
	}
	return strings.ToLower(recovered.Hex()), nil
}
