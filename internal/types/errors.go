package types

import errorsmod "cosmossdk.io/errors"

// ProtocolCodespace groups failures raised off-ledger, in the decryption and
// session layers.
const ProtocolCodespace = "rpsprotocol"

// Ledger sentinel errors. These are permanent: retrying the same call against
// the same state yields the same error.
var (
	ErrInvalidRequest      = errorsmod.Register(ModuleName, 2, "invalid request")
	ErrInvalidProof        = errorsmod.Register(ModuleName, 3, "invalid input proof")
	ErrInsufficientPayment = errorsmod.Register(ModuleName, 4, "bet below entry fee")
	ErrAlreadySet          = errorsmod.Register(ModuleName, 5, "system choice already set")
	ErrNotFound            = errorsmod.Register(ModuleName, 6, "not found")
	ErrAlreadySettled      = errorsmod.Register(ModuleName, 7, "game already settled")
	ErrUnauthorized        = errorsmod.Register(ModuleName, 8, "unauthorized")
	ErrNotSettled          = errorsmod.Register(ModuleName, 9, "game not settled")
	ErrAlreadyRewarded     = errorsmod.Register(ModuleName, 10, "reward already claimed")
	ErrNothingToClaim      = errorsmod.Register(ModuleName, 11, "no reward to claim")
	ErrSystemChoicePending = errorsmod.Register(ModuleName, 12, "system choice not recorded")
	ErrHandleMismatch      = errorsmod.Register(ModuleName, 13, "decrypted value does not belong to game")
	ErrInvalidDecryption   = errorsmod.Register(ModuleName, 14, "invalid decryption proof")
	ErrInsufficientFunds   = errorsmod.Register(ModuleName, 15, "insufficient funds")
	ErrTreasuryShortfall   = errorsmod.Register(ModuleName, 16, "house balance cannot cover reward")
)

// Protocol sentinel errors.
var (
	ErrDecryptionIncomplete   = errorsmod.Register(ProtocolCodespace, 2, "decryption response incomplete")
	ErrGatewayTimeout         = errorsmod.Register(ProtocolCodespace, 3, "decryption gateway timed out")
	ErrUserCancelled          = errorsmod.Register(ProtocolCodespace, 4, "user cancelled signing")
	ErrEngineInitFailed       = errorsmod.Register(ProtocolCodespace, 5, "encryption engine initialization failed")
	ErrAuthorizationExpired   = errorsmod.Register(ProtocolCodespace, 6, "decryption authorization expired")
	ErrGatewayRejected        = errorsmod.Register(ProtocolCodespace, 7, "decryption gateway rejected request")
	ErrGatewayResponseInvalid = errorsmod.Register(ProtocolCodespace, 8, "decryption gateway response failed verification")
	ErrOutcomeUnknown         = errorsmod.Register(ProtocolCodespace, 9, "ledger outcome unknown")
)

// IsTransient reports whether the whole step that produced err may be retried
// by the caller. Ledger errors and authorization expiry are never transient.
func IsTransient(err error) bool {
	return errorsmod.IsOf(err, ErrGatewayTimeout, ErrEngineInitFailed)
}
