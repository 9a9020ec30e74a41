// Package coordinator obtains verified cleartexts for ledger handles from a
// decryption gateway.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"sealedrps/internal/authz"
	"sealedrps/internal/gateway"
	"sealedrps/internal/retry"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

const DefaultCacheSize = 1024

// Gateway is the user-decrypt surface; *gateway.Client satisfies it.
type Gateway interface {
	UserDecrypt(ctx context.Context, req gateway.UserDecryptRequest) (*gateway.UserDecryptResponse, error)
}

// Request is one batched decryption: every handle of a game at once.
type Request struct {
	Pairs         []gateway.HandleContractPair
	Authorization authz.Authorization
	Signature     []byte
	Keypair       authz.Keypair
	User          string
}

type Coordinator struct {
	gw         Gateway
	source     gateway.CiphertextSource
	networkKey sealcrypto.Point
	policy     retry.Policy
	now        func() time.Time
	logger     log.Logger

	// Handles are immutable, so a verified cleartext never goes stale. Entries
	// are per user: a hit only returns what the gateway released to that user.
	cache *lru.Cache[cacheKey, types.Decryption]
}

type cacheKey struct {
	user   string
	handle types.Handle
}

type Option func(*Coordinator)

func WithPolicy(p retry.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger.With("module", "coordinator") }
}

func New(gw Gateway, source gateway.CiphertextSource, networkKey []byte, cacheSize int, opts ...Option) (*Coordinator, error) {
	pk, err := sealcrypto.PointFromBytesCanonical(networkKey)
	if err != nil {
		return nil, fmt.Errorf("coordinator: network key: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, types.Decryption](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("coordinator: cache: %w", err)
	}
	c := &Coordinator{
		gw:         gw,
		source:     source,
		networkKey: pk,
		policy:     retry.DefaultPolicy(),
		now:        time.Now,
		logger:     log.NewNopLogger(),
		cache:      cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RequestDecryption returns a verified cleartext for every requested handle,
// or fails as a whole.
func (c *Coordinator) RequestDecryption(ctx context.Context, req Request) (map[types.Handle]types.Decryption, error) {
	if len(req.Pairs) == 0 {
		return nil, types.ErrInvalidRequest.Wrap("no handles requested")
	}
	if req.Authorization.Expired(c.now()) {
		return nil, types.ErrAuthorizationExpired.Wrapf("expired at %s", req.Authorization.ExpiresAt().UTC().Format(time.RFC3339))
	}

	user, err := authorizedUser(req)
	if err != nil {
		return nil, err
	}

	out := make(map[types.Handle]types.Decryption, len(req.Pairs))
	var missing []gateway.HandleContractPair
	for _, p := range req.Pairs {
		if d, ok := c.cache.Get(cacheKey{user, p.Handle}); ok {
			out[p.Handle] = d
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return out, nil
	}

	wire := gateway.UserDecryptRequest{
		RequestID:     uuid.NewString(),
		Pairs:         missing,
		Authorization: req.Authorization,
		Signature:     req.Signature,
		UserAddress:   req.User,
	}
	var resp *gateway.UserDecryptResponse
	attempt := 0
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		r, err := c.gw.UserDecrypt(ctx, wire)
		if err != nil {
			c.logger.Debug("user-decrypt attempt failed", "requestId", wire.RequestID, "attempt", attempt, "err", err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrAuthorizationExpired),
			errors.Is(err, types.ErrGatewayRejected),
			errors.Is(err, types.ErrGatewayResponseInvalid),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		return nil, types.ErrGatewayTimeout.Wrapf("no answer after %d attempts: %v", attempt, err)
	}

	decs, err := c.open(req.Keypair, wire.RequestID, resp)
	if err != nil {
		return nil, err
	}
	for _, p := range missing {
		d, ok := decs[p.Handle]
		if !ok {
			return nil, types.ErrDecryptionIncomplete.Wrapf("no value for handle %s", p.Handle)
		}
		if err := c.verify(ctx, d); err != nil {
			return nil, err
		}
	}
	for _, p := range missing {
		d := decs[p.Handle]
		c.cache.Add(cacheKey{user, p.Handle}, d)
		out[p.Handle] = d
	}
	c.logger.Debug("decryption complete", "requestId", wire.RequestID, "handles", len(out))
	return out, nil
}

func (c *Coordinator) open(kp authz.Keypair, requestID string, resp *gateway.UserDecryptResponse) (map[types.Handle]types.Decryption, error) {
	if resp == nil {
		return nil, types.ErrGatewayResponseInvalid.Wrap("empty response")
	}
	plain, err := kp.Open(resp.Sealed)
	if err != nil {
		return nil, types.ErrGatewayResponseInvalid.Wrap(err.Error())
	}
	var payload gateway.SealedPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, types.ErrGatewayResponseInvalid.Wrapf("decode payload: %v", err)
	}
	if payload.RequestID != requestID {
		return nil, types.ErrGatewayResponseInvalid.Wrapf("reply for request %q, sent %q", payload.RequestID, requestID)
	}
	decs := make(map[types.Handle]types.Decryption, len(payload.Decryptions))
	for _, d := range payload.Decryptions {
		decs[d.Handle] = d
	}
	return decs, nil
}

// verify checks d against the ciphertext stored on the ledger.
func (c *Coordinator) verify(ctx context.Context, d types.Decryption) error {
	rec, err := c.source.Ciphertext(ctx, d.Handle)
	if err != nil {
		return fmt.Errorf("load ciphertext %s: %w", d.Handle, err)
	}
	ct, err := sealcrypto.DecodeCiphertext(append(append([]byte(nil), rec.C1...), rec.C2...))
	if err != nil {
		return fmt.Errorf("ciphertext %s: %w", d.Handle, err)
	}
	share, err := sealcrypto.DecodeDecryptionShare(d.Share, d.Proof)
	if err != nil {
		return types.ErrGatewayResponseInvalid.Wrapf("handle %s: %v", d.Handle, err)
	}
	if err := sealcrypto.VerifyDecryption(c.networkKey, ct, share, d.Value); err != nil {
		return types.ErrGatewayResponseInvalid.Wrapf("handle %s: %v", d.Handle, err)
	}
	return nil
}

// Cached reports whether user has a verified cleartext for h in the cache.
func (c *Coordinator) Cached(user string, h types.Handle) bool {
	return c.cache.Contains(cacheKey{types.NormalizeAddress(user), h})
}

// authorizedUser checks that req is signed by its user and covers every
// requested contract. It runs before the cache is consulted.
func authorizedUser(req Request) (string, error) {
	user := types.NormalizeAddress(req.User)
	if user == "" {
		return "", types.ErrInvalidRequest.Wrap("missing user address")
	}
	signer, err := authz.RecoverSigner(req.Authorization, req.Signature)
	if err != nil {
		return "", types.ErrUnauthorized.Wrapf("authorization signature: %v", err)
	}
	if signer != user {
		return "", types.ErrUnauthorized.Wrapf("authorization signed by %s, not %s", signer, user)
	}
	for _, p := range req.Pairs {
		if !req.Authorization.Covers(p.ContractAddress) {
			return "", types.ErrUnauthorized.Wrapf("authorization does not cover contract %s", p.ContractAddress)
		}
	}
	return user, nil
}
