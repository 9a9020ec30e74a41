// Package ledgerclient gives off-ledger components one view of the game
// ledger, whether it runs in-process or behind a CometBFT node.
package ledgerclient

import (
	"context"

	"sealedrps/internal/ledger"
	"sealedrps/internal/types"
)

// Ledger is the game ledger as seen by one account. Writes act as Address().
//
// A write that returns a ledger sentinel error did not change state. A write
// that returns types.ErrOutcomeUnknown may or may not have been applied; the
// caller reconciles by reading the ledger.
type Ledger interface {
	Address() string

	CreateGame(ctx context.Context, bet uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error)
	RecordSystemChoice(ctx context.Context, gameID uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error)
	RequestDecryption(ctx context.Context, gameID uint64) (*ledger.Receipt, error)
	SettleGame(ctx context.Context, gameID uint64, vals types.SettlementValues) (*ledger.Receipt, error)
	ClaimReward(ctx context.Context, gameID uint64) (*ledger.Receipt, error)
	ClaimMultipleRewards(ctx context.Context, gameIDs []uint64) (*ledger.Receipt, error)
	FundHouse(ctx context.Context, amount uint64) (*ledger.Receipt, error)

	Game(ctx context.Context, id uint64) (types.Game, error)
	PlayerGames(ctx context.Context, player string) ([]uint64, error)
	GameCount(ctx context.Context) (uint64, error)
	PendingSystemChoice(ctx context.Context) ([]uint64, error)
	Ciphertext(ctx context.Context, h types.Handle) (types.CiphertextRecord, error)
	Params(ctx context.Context) (types.Params, error)
	Balance(ctx context.Context, addr string) (uint64, error)
	HouseBalance(ctx context.Context) (uint64, error)
}
