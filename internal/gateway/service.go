package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"sealedrps/internal/authz"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/telemetry"
	"sealedrps/internal/types"
)

// CiphertextSource resolves a handle to its ledger record.
type CiphertextSource interface {
	Ciphertext(ctx context.Context, h types.Handle) (types.CiphertextRecord, error)
}

// CiphertextSourceFunc adapts a function to CiphertextSource.
type CiphertextSourceFunc func(ctx context.Context, h types.Handle) (types.CiphertextRecord, error)

func (f CiphertextSourceFunc) Ciphertext(ctx context.Context, h types.Handle) (types.CiphertextRecord, error) {
	return f(ctx, h)
}

// Service releases cleartexts to requesters holding a valid, signed
// authorization and decrypt rights on every requested handle.
type Service struct {
	dec     *Decryptor
	source  CiphertextSource
	domain  authz.Domain
	now     func() time.Time
	logger  log.Logger
	metrics *telemetry.GatewayMetrics
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger.With("module", "gateway") }
}

func WithMetrics(m *telemetry.GatewayMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(dec *Decryptor, source CiphertextSource, domain authz.Domain, opts ...ServiceOption) *Service {
	s := &Service{
		dec:     dec,
		source:  source,
		domain:  domain,
		now:     time.Now,
		logger:  log.NewNopLogger(),
		metrics: telemetry.NewGatewayMetrics(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PublicKey() []byte {
	return s.dec.PublicKey().Bytes()
}

func (s *Service) UserDecrypt(ctx context.Context, req UserDecryptRequest) (*UserDecryptResponse, error) {
	start := s.now()
	resp, err := s.userDecrypt(ctx, req)
	s.metrics.Latency.Observe(time.Since(start).Seconds())
	s.metrics.Requests.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		s.logger.Info("user-decrypt refused", "requestId", req.RequestID, "user", req.UserAddress, "err", err)
		return nil, err
	}
	s.metrics.HandlesReleased.Add(float64(len(req.Pairs)))
	s.logger.Debug("user-decrypt served", "requestId", req.RequestID, "user", req.UserAddress, "handles", len(req.Pairs))
	return resp, nil
}

func (s *Service) userDecrypt(ctx context.Context, req UserDecryptRequest) (*UserDecryptResponse, error) {
	if len(req.Pairs) == 0 {
		return nil, types.ErrInvalidRequest.Wrap("no handles requested")
	}
	if len(req.Pairs) > MaxPairsPerRequest {
		return nil, types.ErrInvalidRequest.Wrapf("%d handles exceeds batch limit %d", len(req.Pairs), MaxPairsPerRequest)
	}
	if !common.IsHexAddress(req.UserAddress) {
		return nil, types.ErrInvalidRequest.Wrapf("user address %q", req.UserAddress)
	}
	user := types.NormalizeAddress(req.UserAddress)

	a := req.Authorization
	if a.Expired(s.now()) {
		return nil, types.ErrAuthorizationExpired.Wrapf("expired at %s", a.ExpiresAt().UTC().Format(time.RFC3339))
	}
	if a.DurationDays > authz.MaxDurationDays {
		return nil, types.ErrGatewayRejected.Wrap("authorization duration too long")
	}
	if a.Domain.ChainID != s.domain.ChainID || !strings.EqualFold(a.Domain.VerifyingContract, s.domain.VerifyingContract) {
		return nil, types.ErrGatewayRejected.Wrap("authorization signed for another domain")
	}
	if len(a.PublicKey) != 32 {
		return nil, types.ErrInvalidRequest.Wrap("authorization public key must be 32 bytes")
	}
	signer, err := authz.RecoverSigner(a, req.Signature)
	if err != nil {
		return nil, types.ErrGatewayRejected.Wrap(err.Error())
	}
	if signer != user {
		return nil, types.ErrGatewayRejected.Wrapf("authorization signed by %s, not %s", signer, user)
	}

	payload := SealedPayload{RequestID: req.RequestID, Decryptions: make([]types.Decryption, 0, len(req.Pairs))}
	for _, pair := range req.Pairs {
		if !a.Covers(pair.ContractAddress) {
			return nil, types.ErrGatewayRejected.Wrapf("contract %s not authorized", pair.ContractAddress)
		}
		rec, err := s.source.Ciphertext(ctx, pair.Handle)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return nil, err
			}
			return nil, internal(err)
		}
		ct, err := sealcrypto.DecodeCiphertext(append(append([]byte(nil), rec.C1...), rec.C2...))
		if err != nil {
			return nil, internal(err)
		}
		if types.Handle(sealcrypto.DeriveHandle(pair.ContractAddress, ct)) != pair.Handle {
			return nil, types.ErrGatewayRejected.Wrapf("handle %s does not belong to %s", pair.Handle, pair.ContractAddress)
		}
		if !rec.IsAllowed(user) {
			return nil, types.ErrGatewayRejected.Wrapf("%s may not decrypt %s", user, pair.Handle)
		}
		d, err := s.dec.Decrypt(rec)
		if err != nil {
			return nil, internal(err)
		}
		payload.Decryptions = append(payload.Decryptions, d)
	}

	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, internal(err)
	}
	var pub [32]byte
	copy(pub[:], a.PublicKey)
	sealed, err := authz.Seal(&pub, plain)
	if err != nil {
		return nil, internal(err)
	}
	return &UserDecryptResponse{RequestID: req.RequestID, Sealed: sealed}, nil
}

// internalError is a failure on the gateway's side, reported as 5xx.
type internalError struct{ err error }

func (e internalError) Error() string { return e.err.Error() }
func (e internalError) Unwrap() error { return e.err }

func internal(err error) error {
	return internalError{err: err}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrAuthorizationExpired):
		return "expired"
	case errors.Is(err, types.ErrGatewayRejected):
		return "rejected"
	case errors.Is(err, types.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
