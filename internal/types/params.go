package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultEntryFee            uint64 = 1_000_000_000_000_000
	DefaultRewardMultiplierNum uint64 = 180
	DefaultRewardMultiplierDen uint64 = 100
)

// Params configures the ledger. Fees and the multiplier are never hard-coded in
// protocol logic.
type Params struct {
	// ContractAddress identifies this ledger instance. Ciphertext handles and
	// input proofs are bound to it.
	ContractAddress string `json:"contractAddress" mapstructure:"contract-address"`

	EntryFee            uint64 `json:"entryFee" mapstructure:"entry-fee"`
	RewardMultiplierNum uint64 `json:"rewardMultiplierNum" mapstructure:"reward-multiplier-num"`
	RewardMultiplierDen uint64 `json:"rewardMultiplierDen" mapstructure:"reward-multiplier-den"`

	// NetworkKey is the hex-encoded ristretto255 public key of the decryption
	// network.
	NetworkKey string `json:"networkKey" mapstructure:"network-key"`

	RandomnessProvider string   `json:"randomnessProvider" mapstructure:"randomness-provider"`
	Settlers           []string `json:"settlers,omitempty" mapstructure:"settlers"`

	// AllowMint enables bank/mint for devnets.
	AllowMint bool `json:"allowMint,omitempty" mapstructure:"allow-mint"`
}

func DefaultParams() Params {
	return Params{
		EntryFee:            DefaultEntryFee,
		RewardMultiplierNum: DefaultRewardMultiplierNum,
		RewardMultiplierDen: DefaultRewardMultiplierDen,
	}
}

func (p Params) Validate() error {
	if p.ContractAddress == "" {
		return fmt.Errorf("params: contract address is required")
	}
	if !common.IsHexAddress(p.ContractAddress) {
		return fmt.Errorf("params: contract address %q is not a hex address", p.ContractAddress)
	}
	if p.RewardMultiplierDen == 0 {
		return fmt.Errorf("params: reward multiplier denominator must be non-zero")
	}
	if p.RandomnessProvider == "" {
		return fmt.Errorf("params: randomness provider is required")
	}
	if !common.IsHexAddress(p.RandomnessProvider) {
		return fmt.Errorf("params: randomness provider %q is not a hex address", p.RandomnessProvider)
	}
	for _, s := range p.Settlers {
		if !common.IsHexAddress(s) {
			return fmt.Errorf("params: settler %q is not a hex address", s)
		}
	}
	key, err := hex.DecodeString(strings.TrimPrefix(p.NetworkKey, "0x"))
	if err != nil {
		return fmt.Errorf("params: network key: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("params: network key must be 32 bytes")
	}
	return nil
}

// NetworkKeyBytes decodes NetworkKey. Call Validate first.
func (p Params) NetworkKeyBytes() []byte {
	key, _ := hex.DecodeString(strings.TrimPrefix(p.NetworkKey, "0x"))
	return key
}

// IsSettler reports whether addr holds the settler role.
func (p Params) IsSettler(addr string) bool {
	for _, s := range p.Settlers {
		if strings.EqualFold(s, addr) {
			return true
		}
	}
	return false
}

// ComputeReward is the payout rule: a win pays bet*num/den, a draw refunds the
// bet, a loss pays nothing.
func ComputeReward(result Result, bet uint64, num uint64, den uint64) (uint64, error) {
	switch result {
	case ResultPlayerWin:
		if den == 0 {
			return 0, fmt.Errorf("reward multiplier denominator is zero")
		}
		if bet != 0 && num > ^uint64(0)/bet {
			return 0, fmt.Errorf("reward overflows uint64")
		}
		return bet * num / den, nil
	case ResultDraw:
		return bet, nil
	case ResultPlayerLoss:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot compute reward for result %s", result)
	}
}
