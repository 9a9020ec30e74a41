package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

const contract = "0x00000000000000000000000000000000000000c0"

func testKey(t *testing.T) sealcrypto.KeyPair {
	t.Helper()
	rng, err := sealcrypto.NewDeterministicRng([]byte(t.Name()))
	require.NoError(t, err)
	kp, err := sealcrypto.GenerateKeyPair(rng)
	require.NoError(t, err)
	return kp
}

func TestEncrypt_ProducesVerifiableInput(t *testing.T) {
	kp := testKey(t)
	e := New(StaticKey(kp.PK.Bytes()), contract)

	in, err := e.EncryptChoice(context.Background(), "0xABC", types.ChoicePaper)
	require.NoError(t, err)
	require.True(t, e.Ready())
	require.False(t, in.Handle.IsZero())

	proof, err := sealcrypto.DecodeInputProof(in.Proof)
	require.NoError(t, err)
	require.Equal(t, types.Handle(sealcrypto.DeriveHandle(contract, proof.Ciphertext)), in.Handle)
	bind := sealcrypto.ProofBinding{Contract: contract, User: "0xabc"}
	require.NoError(t, sealcrypto.VerifyMembership(bind, kp.PK, proof.Ciphertext, types.ChoiceBound, proof.Membership))

	v, err := sealcrypto.DecodeSmall(sealcrypto.Decrypt(kp.SK, proof.Ciphertext), types.ChoiceBound)
	require.NoError(t, err)
	require.Equal(t, uint64(types.ChoicePaper), v)

	// Same value, fresh randomness: distinct handles.
	again, err := e.EncryptChoice(context.Background(), "0xabc", types.ChoicePaper)
	require.NoError(t, err)
	require.NotEqual(t, in.Handle, again.Handle)
}

func TestEncrypt_RejectsOutOfRange(t *testing.T) {
	e := New(StaticKey(testKey(t).PK.Bytes()), contract)
	_, err := e.Encrypt(context.Background(), "0xabc", 3, types.ChoiceBound)
	require.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestInit_SingleFlight(t *testing.T) {
	kp := testKey(t)
	var calls atomic.Int32
	release := make(chan struct{})
	src := KeySourceFunc(func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return kp.PK.Bytes(), nil
	})
	e := New(src, contract)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Init(context.Background())
		}()
	}
	// Let the callers pile up on the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), calls.Load())

	require.NoError(t, e.Init(context.Background()))
	require.Equal(t, int32(1), calls.Load())
}

func TestInit_FailureIsNotCached(t *testing.T) {
	kp := testKey(t)
	var calls atomic.Int32
	src := KeySourceFunc(func(context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("gateway unavailable")
		}
		return kp.PK.Bytes(), nil
	})
	e := New(src, contract)

	err := e.Init(context.Background())
	require.ErrorIs(t, err, types.ErrEngineInitFailed)
	require.True(t, types.IsTransient(err))
	require.False(t, e.Ready())

	require.NoError(t, e.Init(context.Background()))
	require.True(t, e.Ready())
}

func TestInit_RejectsBadKey(t *testing.T) {
	e := New(StaticKey(make([]byte, 32)), contract)
	require.ErrorIs(t, e.Init(context.Background()), types.ErrEngineInitFailed)
}

func TestInit_CancelledWaiterDoesNotPoisonInit(t *testing.T) {
	kp := testKey(t)
	release := make(chan struct{})
	src := KeySourceFunc(func(context.Context) ([]byte, error) {
		<-release
		return kp.PK.Bytes(), nil
	})
	e := New(src, contract)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Init(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.NoError(t, e.Init(context.Background()))
}
