// Package engine builds encrypted inputs for the ledger. It holds the
// network key once fetched and binds every proof to (contract, user).
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"cosmossdk.io/log"
	"golang.org/x/sync/singleflight"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// KeySource supplies the decryption network's public key.
type KeySource interface {
	NetworkKey(ctx context.Context) ([]byte, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) ([]byte, error)

func (f KeySourceFunc) NetworkKey(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticKey is a KeySource for a key known up front.
type StaticKey []byte

func (k StaticKey) NetworkKey(context.Context) ([]byte, error) {
	return append([]byte(nil), k...), nil
}

// EncryptedInput is what the ledger accepts for a confidential value.
type EncryptedInput struct {
	Handle types.Handle
	Proof  []byte
}

type Engine struct {
	keys     KeySource
	contract string
	src      sealcrypto.ScalarSource
	logger   log.Logger

	group singleflight.Group
	key   atomic.Pointer[sealcrypto.Point]
}

type Option func(*Engine)

// WithScalarSource replaces the crypto/rand randomness, for tests.
func WithScalarSource(src sealcrypto.ScalarSource) Option {
	return func(e *Engine) { e.src = src }
}

func WithLogger(logger log.Logger) Option {
	return func(e *Engine) { e.logger = logger.With("module", "engine") }
}

func New(keys KeySource, contract string, opts ...Option) *Engine {
	e := &Engine{
		keys:     keys,
		contract: contract,
		src:      sealcrypto.NewRandSource(nil),
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Contract() string {
	return e.contract
}

// Init fetches and validates the network key. Concurrent callers share one
// fetch; a success is kept for the life of the engine, a failure is not.
func (e *Engine) Init(ctx context.Context) error {
	_, err := e.networkKey(ctx)
	return err
}

// Ready reports whether Init has succeeded.
func (e *Engine) Ready() bool {
	return e.key.Load() != nil
}

func (e *Engine) networkKey(ctx context.Context) (sealcrypto.Point, error) {
	if pk := e.key.Load(); pk != nil {
		return *pk, nil
	}
	ch := e.group.DoChan("init", func() (interface{}, error) {
		if pk := e.key.Load(); pk != nil {
			return *pk, nil
		}
		// One caller cancelling must not fail the others.
		raw, err := e.keys.NetworkKey(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		pk, err := sealcrypto.PointFromBytesCanonical(raw)
		if err != nil {
			return nil, fmt.Errorf("network key: %w", err)
		}
		if pk.IsIdentity() {
			return nil, fmt.Errorf("network key is the identity")
		}
		e.key.Store(&pk)
		e.logger.Info("encryption engine ready", "contract", e.contract)
		return pk, nil
	})
	select {
	case <-ctx.Done():
		return sealcrypto.Point{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			e.logger.Error("encryption engine init failed", "err", res.Err)
			return sealcrypto.Point{}, types.ErrEngineInitFailed.Wrap(res.Err.Error())
		}
		return res.Val.(sealcrypto.Point), nil
	}
}

// Encrypt seals value in [0, bound) for user and returns the ledger handle
// with its input proof.
func (e *Engine) Encrypt(ctx context.Context, user string, value uint64, bound uint8) (EncryptedInput, error) {
	pk, err := e.networkKey(ctx)
	if err != nil {
		return EncryptedInput{}, err
	}
	if value >= uint64(bound) {
		return EncryptedInput{}, types.ErrInvalidRequest.Wrapf("value %d out of range [0, %d)", value, bound)
	}
	bind := sealcrypto.ProofBinding{Contract: e.contract, User: types.NormalizeAddress(user)}
	in, err := sealcrypto.SealInput(bind, pk, value, bound, e.src)
	if err != nil {
		return EncryptedInput{}, fmt.Errorf("seal input: %w", err)
	}
	return EncryptedInput{
		Handle: types.Handle(sealcrypto.DeriveHandle(e.contract, in.Ciphertext)),
		Proof:  in.Bytes(),
	}, nil
}

// EncryptChoice is Encrypt for a game hand.
func (e *Engine) EncryptChoice(ctx context.Context, user string, c types.Choice) (EncryptedInput, error) {
	return e.Encrypt(ctx, user, uint64(c), types.ChoiceBound)
}
