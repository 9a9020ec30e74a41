package gateway

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"sealedrps/internal/authz"
	"sealedrps/internal/types"
)

const (
	RouteUserDecrypt = "/v1/user-decrypt"
	RoutePublicKey   = "/v1/public-key"
	RouteHealth      = "/health"

	// MaxPairsPerRequest bounds one user-decrypt batch.
	MaxPairsPerRequest = 16
)

// HandleContractPair names one ciphertext and the contract it belongs to.
type HandleContractPair struct {
	Handle          types.Handle `json:"handle"`
	ContractAddress string       `json:"contractAddress"`
}

type UserDecryptRequest struct {
	RequestID     string               `json:"requestId"`
	Pairs         []HandleContractPair `json:"handleContractPairs"`
	Authorization authz.Authorization  `json:"authorization"`
	Signature     hexutil.Bytes        `json:"signature"`
	UserAddress   string               `json:"userAddress"`
}

// UserDecryptResponse carries the cleartexts sealed to the requester's
// public key. Only the requester can open Sealed.
type UserDecryptResponse struct {
	RequestID string `json:"requestId"`
	Sealed    []byte `json:"sealed"`
}

// SealedPayload is the plaintext inside UserDecryptResponse.Sealed.
type SealedPayload struct {
	RequestID   string             `json:"requestId"`
	Decryptions []types.Decryption `json:"decryptions"`
}

type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeAuthorizationExpired = "authorization_expired"
	CodeRejected             = "rejected"
	CodeNotFound             = "not_found"
	CodeInternal             = "internal"
)
