package authz

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"sealedrps/internal/types"
)

const (
	DefaultDurationDays uint64 = 10
	MaxDurationDays     uint64 = 365

	PrimaryType = "UserDecryptRequestVerification"

	domainName    = "Decryption"
	domainVersion = "1"
)

// Domain pins the EIP-712 domain a signature is valid in.
type Domain struct {
	ChainID           uint64 `json:"chainId" mapstructure:"chain-id"`
	VerifyingContract string `json:"verifyingContract" mapstructure:"verifying-contract"`
}

// Authorization grants the holder of PublicKey the right to receive
// cleartexts of ciphertexts owned by ContractAddresses, for DurationDays
// starting at StartTimestamp.
type Authorization struct {
	Domain            Domain        `json:"domain"`
	PublicKey         hexutil.Bytes `json:"publicKey"`
	ContractAddresses []string      `json:"contractAddresses"`
	StartTimestamp    int64         `json:"startTimestamp"`
	DurationDays      uint64        `json:"durationDays"`
}

// BuildAuthorization validates its inputs and returns the authorization
// payload. durationDays of zero selects DefaultDurationDays.
func BuildAuthorization(domain Domain, publicKey []byte, addresses []string, issuedAt time.Time, durationDays uint64) (Authorization, error) {
	if len(publicKey) != 32 {
		return Authorization{}, types.ErrInvalidRequest.Wrapf("public key must be 32 bytes, got %d", len(publicKey))
	}
	if len(addresses) == 0 {
		return Authorization{}, types.ErrInvalidRequest.Wrap("at least one contract address is required")
	}
	if durationDays == 0 {
		durationDays = DefaultDurationDays
	}
	if durationDays > MaxDurationDays {
		return Authorization{}, types.ErrInvalidRequest.Wrapf("duration %d days exceeds %d", durationDays, MaxDurationDays)
	}
	if domain.VerifyingContract != "" && !common.IsHexAddress(domain.VerifyingContract) {
		return Authorization{}, types.ErrInvalidRequest.Wrapf("verifying contract %q is not an address", domain.VerifyingContract)
	}
	normalized := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return Authorization{}, types.ErrInvalidRequest.Wrapf("contract %q is not an address", addr)
		}
		normalized = append(normalized, types.NormalizeAddress(addr))
	}
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	return Authorization{
		Domain:            domain,
		PublicKey:         append(hexutil.Bytes(nil), publicKey...),
		ContractAddresses: normalized,
		StartTimestamp:    issuedAt.Unix(),
		DurationDays:      durationDays,
	}, nil
}

func (a Authorization) ExpiresAt() time.Time {
	return time.Unix(a.StartTimestamp, 0).Add(time.Duration(a.DurationDays) * 24 * time.Hour)
}

// Expired reports whether now is outside the validity window.
func (a Authorization) Expired(now time.Time) bool {
	return now.Before(time.Unix(a.StartTimestamp, 0)) || !now.Before(a.ExpiresAt())
}

// Covers reports whether contract is one of the authorized addresses.
func (a Authorization) Covers(contract string) bool {
	for _, c := range a.ContractAddresses {
		if strings.EqualFold(c, contract) {
			return true
		}
	}
	return false
}

func (a Authorization) TypedData() apitypes.TypedData {
	addrs := make([]interface{}, len(a.ContractAddresses))
	for i, c := range a.ContractAddresses {
		addrs[i] = c
	}
	domain := apitypes.TypedDataDomain{
		Name:              domainName,
		Version:           domainVersion,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(a.Domain.ChainID)),
		VerifyingContract: a.Domain.VerifyingContract,
	}
	if domain.VerifyingContract == "" {
		domain.VerifyingContract = common.Address{}.Hex()
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: PrimaryType,
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"publicKey":         []byte(a.PublicKey),
			"contractAddresses": addrs,
			"startTimestamp":    (*math.HexOrDecimal256)(big.NewInt(a.StartTimestamp)),
			"durationDays":      (*math.HexOrDecimal256)(new(big.Int).SetUint64(a.DurationDays)),
		},
	}
}

// Hash returns the EIP-712 digest keccak256("\x19\x01" || domainSeparator || structHash).
func (a Authorization) Hash() ([]byte, error) {
	td := a.TypedData()
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", td.PrimaryType, err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverSigner returns the lowercase address that signed a.
func RecoverSigner(a Authorization, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	digest, err := a.Hash()
	if err != nil {
		return "", err
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}
