package authz

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"sealedrps/internal/types"
)

// Wallet signs on behalf of a user. Any refusal must be reported as
// types.ErrUserCancelled.
type Wallet interface {
	Address() string
	SignTypedData(ctx context.Context, a Authorization) ([]byte, error)
	SignDigest(ctx context.Context, digest []byte) ([]byte, error)
}

// ApprovalFunc is asked before every signature. A non-nil error refuses it.
type ApprovalFunc func(ctx context.Context, what string) error

// KeyWallet signs with an in-memory secp256k1 key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	addr    string
	approve ApprovalFunc
}

func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key, addr: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())}
}

// KeyWalletFromHex parses a hex private key, with or without 0x.
func KeyWalletFromHex(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return NewKeyWallet(key), nil
}

// WithApproval installs a hook consulted before each signature.
func (w *KeyWallet) WithApproval(fn ApprovalFunc) *KeyWallet {
	w.approve = fn
	return w
}

func (w *KeyWallet) Address() string {
	return w.addr
}

func (w *KeyWallet) SignTypedData(ctx context.Context, a Authorization) ([]byte, error) {
	if err := w.confirm(ctx, PrimaryType); err != nil {
		return nil, err
	}
	digest, err := a.Hash()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, w.key)
}

func (w *KeyWallet) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if err := w.confirm(ctx, "transaction"); err != nil {
		return nil, err
	}
	return crypto.Sign(digest, w.key)
}

func (w *KeyWallet) confirm(ctx context.Context, what string) error {
	if err := ctx.Err(); err != nil {
		return types.ErrUserCancelled.Wrap(err.Error())
	}
	if w.approve == nil {
		return nil
	}
	if err := w.approve(ctx, what); err != nil {
		return types.ErrUserCancelled.Wrapf("%s: %v", what, err)
	}
	return nil
}
