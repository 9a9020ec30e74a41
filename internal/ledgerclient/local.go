package ledgerclient

import (
	"context"
	"time"

	"sealedrps/internal/ledger"
	"sealedrps/internal/types"
)

// Local drives an in-process keeper as a fixed caller.
type Local struct {
	k      *ledger.Keeper
	caller string
	now    func() time.Time
}

var _ Ledger = (*Local)(nil)

func NewLocal(k *ledger.Keeper, caller string) *Local {
	return &Local{k: k, caller: types.NormalizeAddress(caller), now: time.Now}
}

// WithClock sets the block time used for writes.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.now = now
	return l
}

// As returns a view of the same keeper acting as another caller.
func (l *Local) As(caller string) *Local {
	return &Local{k: l.k, caller: types.NormalizeAddress(caller), now: l.now}
}

func (l *Local) Address() string {
	return l.caller
}

func (l *Local) block(ctx context.Context) (ledger.BlockInfo, error) {
	// Nothing has been submitted yet, so cancellation is free here.
	if err := ctx.Err(); err != nil {
		return ledger.BlockInfo{}, err
	}
	return ledger.BlockInfo{Height: l.k.Height(), Time: l.now()}, nil
}

func (l *Local) CreateGame(ctx context.Context, bet uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.CreateGame(bi, l.caller, bet, handle, proof)
}

func (l *Local) RecordSystemChoice(ctx context.Context, gameID uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.RecordSystemChoice(bi, l.caller, gameID, handle, proof)
}

func (l *Local) RequestDecryption(ctx context.Context, gameID uint64) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.RequestDecryption(bi, l.caller, gameID)
}

func (l *Local) SettleGame(ctx context.Context, gameID uint64, vals types.SettlementValues) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.SettleGame(bi, l.caller, gameID, vals)
}

func (l *Local) ClaimReward(ctx context.Context, gameID uint64) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.ClaimReward(bi, l.caller, gameID)
}

func (l *Local) ClaimMultipleRewards(ctx context.Context, gameIDs []uint64) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.ClaimMultipleRewards(bi, l.caller, gameIDs)
}

func (l *Local) FundHouse(ctx context.Context, amount uint64) (*ledger.Receipt, error) {
	bi, err := l.block(ctx)
	if err != nil {
		return nil, err
	}
	return l.k.FundHouse(bi, l.caller, amount)
}

func (l *Local) Game(_ context.Context, id uint64) (types.Game, error) {
	return l.k.Game(id)
}

func (l *Local) PlayerGames(_ context.Context, player string) ([]uint64, error) {
	return l.k.PlayerGames(player), nil
}

func (l *Local) GameCount(context.Context) (uint64, error) {
	return l.k.GameCount(), nil
}

func (l *Local) PendingSystemChoice(context.Context) ([]uint64, error) {
	return l.k.PendingSystemChoice(), nil
}

func (l *Local) Ciphertext(_ context.Context, h types.Handle) (types.CiphertextRecord, error) {
	return l.k.Ciphertext(h)
}

func (l *Local) Params(context.Context) (types.Params, error) {
	return l.k.Params(), nil
}

func (l *Local) Balance(_ context.Context, addr string) (uint64, error) {
	return l.k.Balance(addr), nil
}

func (l *Local) HouseBalance(context.Context) (uint64, error) {
	return l.k.HouseBalance(), nil
}
