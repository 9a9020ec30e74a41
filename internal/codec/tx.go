package codec

import (
	"encoding/json"
	"fmt"

	"sealedrps/internal/types"
)

// TxEnvelope is the transaction container. CometBFT transactions are opaque
// bytes; the ledger uses JSON-encoded envelopes.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth:
	// - Nonce: decimal u64 included in the signed message; must increase per signer.
	// - Signer: hex account address recovered from Sig.
	// - Sig: 65-byte secp256k1 signature over keccak256(SignBytes).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

const (
	TypeBankMint             = "bank/mint"
	TypeBankSend             = "bank/send"
	TypeHouseFund            = "house/fund"
	TypeCreateGame           = "rps/create_game"
	TypeRecordSystemChoice   = "rps/record_system_choice"
	TypeRequestDecryption    = "rps/request_decryption"
	TypeSettleGame           = "rps/settle_game"
	TypeClaimReward          = "rps/claim_reward"
	TypeClaimMultipleRewards = "rps/claim_multiple_rewards"
)

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type HouseFundTx struct {
	From   string `json:"from"`
	Amount uint64 `json:"amount"`
}

// ---- Game ----

type CreateGameTx struct {
	Player    string       `json:"player"`
	BetAmount uint64       `json:"betAmount"`
	Handle    types.Handle `json:"handle"`
	Proof     []byte       `json:"proof"` // base64 in JSON
}

type RecordSystemChoiceTx struct {
	Provider string       `json:"provider"`
	GameID   uint64       `json:"gameId"`
	Handle   types.Handle `json:"handle"`
	Proof    []byte       `json:"proof"`
}

type RequestDecryptionTx struct {
	Caller string `json:"caller"`
	GameID uint64 `json:"gameId"`
}

type SettleGameTx struct {
	Caller string                 `json:"caller"`
	GameID uint64                 `json:"gameId"`
	Values types.SettlementValues `json:"values"`
}

type ClaimRewardTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}

type ClaimMultipleRewardsTx struct {
	Player  string   `json:"player"`
	GameIDs []uint64 `json:"gameIds,omitempty"`
}
