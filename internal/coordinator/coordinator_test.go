package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"sealedrps/internal/authz"
	"sealedrps/internal/gateway"
	"sealedrps/internal/retry"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

const contract = "0x00000000000000000000000000000000000000c0"

var testNow = time.Unix(1_700_000_000, 0)

// gatewayFunc lets tests intercept or rewrite gateway replies.
type gatewayFunc func(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error)

func (f gatewayFunc) UserDecrypt(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
	return f(ctx, req)
}

type harness struct {
	kp      sealcrypto.KeyPair
	rng     *sealcrypto.DeterministicRng
	records map[types.Handle]types.CiphertextRecord
	source  gateway.CiphertextSource
	wallet  *authz.KeyWallet
	svc     *gateway.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rng, err := sealcrypto.NewDeterministicRng([]byte(t.Name()))
	require.NoError(t, err)
	kp, err := sealcrypto.GenerateKeyPair(rng)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	h := &harness{kp: kp, rng: rng, records: map[types.Handle]types.CiphertextRecord{}, wallet: authz.NewKeyWallet(key)}
	h.source = gateway.CiphertextSourceFunc(func(_ context.Context, handle types.Handle) (types.CiphertextRecord, error) {
		rec, ok := h.records[handle]
		if !ok {
			return types.CiphertextRecord{}, types.ErrNotFound.Wrapf("ciphertext %s", handle)
		}
		return rec, nil
	})
	h.svc = gateway.NewService(gateway.NewDecryptor(kp, rng), h.source, authz.Domain{}, gateway.WithClock(func() time.Time { return testNow }))
	return h
}

func (h *harness) store(t *testing.T, value uint64) types.Handle {
	t.Helper()
	r, err := h.rng.NextScalar()
	require.NoError(t, err)
	ct, err := sealcrypto.Encrypt(h.kp.PK, value, r)
	require.NoError(t, err)
	handle := types.Handle(sealcrypto.DeriveHandle(contract, ct))
	h.records[handle] = types.CiphertextRecord{Handle: handle, C1: ct.C1.Bytes(), C2: ct.C2.Bytes(), Allowed: []string{h.wallet.Address()}}
	return handle
}

func (h *harness) request(t *testing.T, issuedAt time.Time, handles ...types.Handle) Request {
	t.Helper()
	return h.requestAs(t, h.wallet, issuedAt, handles...)
}

func (h *harness) requestAs(t *testing.T, w *authz.KeyWallet, issuedAt time.Time, handles ...types.Handle) Request {
	t.Helper()
	kp, err := authz.GenerateKeypair(nil)
	require.NoError(t, err)
	a, err := authz.BuildAuthorization(authz.Domain{}, kp.Public[:], []string{contract}, issuedAt, 10)
	require.NoError(t, err)
	sig, err := w.SignTypedData(context.Background(), a)
	require.NoError(t, err)
	req := Request{Authorization: a, Signature: sig, Keypair: kp, User: w.Address()}
	for _, handle := range handles {
		req.Pairs = append(req.Pairs, gateway.HandleContractPair{Handle: handle, ContractAddress: contract})
	}
	return req
}

func (h *harness) coordinator(t *testing.T, gw Gateway) *Coordinator {
	t.Helper()
	c, err := New(gw, h.source, h.kp.PK.Bytes(), 16,
		WithClock(func() time.Time { return testNow }),
		WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1.5}),
	)
	require.NoError(t, err)
	return c
}

// reseal rewrites the payload inside a reply, as a misbehaving gateway would.
func reseal(t *testing.T, kp authz.Keypair, resp *gateway.UserDecryptResponse, edit func(*gateway.SealedPayload)) *gateway.UserDecryptResponse {
	t.Helper()
	plain, err := kp.Open(resp.Sealed)
	require.NoError(t, err)
	var payload gateway.SealedPayload
	require.NoError(t, json.Unmarshal(plain, &payload))
	edit(&payload)
	plain, err = json.Marshal(payload)
	require.NoError(t, err)
	sealed, err := authz.Seal(kp.Public, plain)
	require.NoError(t, err)
	return &gateway.UserDecryptResponse{RequestID: resp.RequestID, Sealed: sealed}
}

func TestRequestDecryption_VerifiesAndCaches(t *testing.T) {
	h := newHarness(t)
	a, b, r := h.store(t, 0), h.store(t, 1), h.store(t, 4)
	calls := 0
	gw := gatewayFunc(func(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return h.svc.UserDecrypt(ctx, req)
	})
	c := h.coordinator(t, gw)

	got, err := c.RequestDecryption(context.Background(), h.request(t, testNow, a, b, r))
	require.NoError(t, err)
	require.Equal(t, uint64(0), got[a].Value)
	require.Equal(t, uint64(1), got[b].Value)
	require.Equal(t, uint64(4), got[r].Value)
	require.Equal(t, 1, calls)
	require.True(t, c.Cached(h.wallet.Address(), r))

	again, err := c.RequestDecryption(context.Background(), h.request(t, testNow, a, b, r))
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, 1, calls)
}

func TestRequestDecryption_PartialResponseIsIncomplete(t *testing.T) {
	h := newHarness(t)
	a, b, r := h.store(t, 0), h.store(t, 2), h.store(t, 5)
	req := h.request(t, testNow, a, b, r)
	gw := gatewayFunc(func(ctx context.Context, wire gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		resp, err := h.svc.UserDecrypt(ctx, wire)
		if err != nil {
			return nil, err
		}
		return reseal(t, req.Keypair, resp, func(p *gateway.SealedPayload) {
			p.Decryptions = p.Decryptions[:2]
		}), nil
	})
	c := h.coordinator(t, gw)

	_, err := c.RequestDecryption(context.Background(), req)
	require.ErrorIs(t, err, types.ErrDecryptionIncomplete)
	for _, handle := range []types.Handle{a, b, r} {
		require.False(t, c.Cached(h.wallet.Address(), handle))
	}
}

func TestRequestDecryption_CacheServesOnlyTheSigner(t *testing.T) {
	h := newHarness(t)
	a, b := h.store(t, 1), h.store(t, 3)
	calls := 0
	gw := gatewayFunc(func(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return h.svc.UserDecrypt(ctx, req)
	})
	c := h.coordinator(t, gw)

	_, err := c.RequestDecryption(context.Background(), h.request(t, testNow, a, b))
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := authz.NewKeyWallet(key)

	// Unsigned request naming someone else.
	forged := h.request(t, testNow, a, b)
	forged.User = other.Address()
	forged.Signature = make([]byte, 65)
	got, err := c.RequestDecryption(context.Background(), forged)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.Nil(t, got)

	// Valid signature, wrong user.
	borrowed := h.request(t, testNow, a, b)
	borrowed.User = other.Address()
	_, err = c.RequestDecryption(context.Background(), borrowed)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.Equal(t, 1, calls)

	// A properly signed request from a user outside the ACL misses the cache
	// and is refused by the gateway.
	_, err = c.RequestDecryption(context.Background(), h.requestAs(t, other, testNow, a, b))
	require.ErrorIs(t, err, types.ErrGatewayRejected)
	require.False(t, c.Cached(other.Address(), a))
	require.Greater(t, calls, 1)
}

func TestRequestDecryption_AuthorizationMustCoverContract(t *testing.T) {
	h := newHarness(t)
	a := h.store(t, 1)
	req := h.request(t, testNow, a)
	req.Pairs[0].ContractAddress = "0x00000000000000000000000000000000000000c1"
	calls := 0
	gw := gatewayFunc(func(context.Context, gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return nil, errors.New("unreachable")
	})

	_, err := h.coordinator(t, gw).RequestDecryption(context.Background(), req)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.Zero(t, calls)
}

func TestRequestDecryption_ForgedValueIsRejected(t *testing.T) {
	h := newHarness(t)
	a := h.store(t, 1)
	req := h.request(t, testNow, a)
	gw := gatewayFunc(func(ctx context.Context, wire gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		resp, err := h.svc.UserDecrypt(ctx, wire)
		if err != nil {
			return nil, err
		}
		return reseal(t, req.Keypair, resp, func(p *gateway.SealedPayload) {
			p.Decryptions[0].Value = 2
		}), nil
	})

	_, err := h.coordinator(t, gw).RequestDecryption(context.Background(), req)
	require.ErrorIs(t, err, types.ErrGatewayResponseInvalid)
}

func TestRequestDecryption_ExpiredAuthorizationIsDistinct(t *testing.T) {
	h := newHarness(t)
	a := h.store(t, 1)
	calls := 0
	gw := gatewayFunc(func(context.Context, gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return nil, errors.New("unreachable")
	})

	_, err := h.coordinator(t, gw).RequestDecryption(context.Background(), h.request(t, testNow.Add(-30*24*time.Hour), a))
	require.ErrorIs(t, err, types.ErrAuthorizationExpired)
	require.False(t, types.IsTransient(err))
	require.Zero(t, calls)
}

func TestRequestDecryption_RetryWindow(t *testing.T) {
	h := newHarness(t)
	a := h.store(t, 2)

	calls := 0
	down := gatewayFunc(func(context.Context, gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	_, err := h.coordinator(t, down).RequestDecryption(context.Background(), h.request(t, testNow, a))
	require.ErrorIs(t, err, types.ErrGatewayTimeout)
	require.True(t, types.IsTransient(err))
	require.Equal(t, 3, calls)

	calls = 0
	flaky := gatewayFunc(func(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return h.svc.UserDecrypt(ctx, req)
	})
	got, err := h.coordinator(t, flaky).RequestDecryption(context.Background(), h.request(t, testNow, a))
	require.NoError(t, err)
	require.Equal(t, uint64(2), got[a].Value)
	require.Equal(t, 2, calls)
}

func TestRequestDecryption_RejectionIsNotRetried(t *testing.T) {
	h := newHarness(t)
	a := h.store(t, 2)
	calls := 0
	gw := gatewayFunc(func(context.Context, gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error) {
		calls++
		return nil, retry.Permanent(types.ErrGatewayRejected.Wrap("acl"))
	})

	_, err := h.coordinator(t, gw).RequestDecryption(context.Background(), h.request(t, testNow, a))
	require.ErrorIs(t, err, types.ErrGatewayRejected)
	require.Equal(t, 1, calls)
}
