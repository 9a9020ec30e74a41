package ledger

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"sealedrps/internal/types"
)

// FundHouse moves caller funds into the house account.
func (k *Keeper) FundHouse(_ BlockInfo, from string, amount uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	from = types.NormalizeAddress(from)
	if from == "" || amount == 0 {
		return nil, types.ErrInvalidRequest.Wrap("missing from/amount")
	}
	if err := k.st.Transfer(from, types.HouseAccount, amount); err != nil {
		return nil, types.ErrInsufficientFunds.Wrap(err.Error())
	}
	return &Receipt{
		Amount: amount,
		Events: []abci.Event{newEvent(types.EventTypeHouseFunded, map[string]string{
			types.AttributeKeyFrom:   from,
			types.AttributeKeyAmount: strconv.FormatUint(amount, 10),
		})},
	}, nil
}

// Mint credits new funds. Only enabled on devnets.
func (k *Keeper) Mint(_ BlockInfo, to string, amount uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.st.Params.AllowMint {
		return nil, types.ErrUnauthorized.Wrap("bank/mint is disabled")
	}
	to = types.NormalizeAddress(to)
	if to == "" || amount == 0 {
		return nil, types.ErrInvalidRequest.Wrap("missing to/amount")
	}
	if err := k.st.Credit(to, amount); err != nil {
		return nil, types.ErrInvalidRequest.Wrap(err.Error())
	}
	return &Receipt{
		Amount: amount,
		Events: []abci.Event{newEvent(types.EventTypeBankMinted, map[string]string{
			types.AttributeKeyTo:     to,
			types.AttributeKeyAmount: strconv.FormatUint(amount, 10),
		})},
	}, nil
}

func (k *Keeper) Send(_ BlockInfo, from, to string, amount uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	from, to = types.NormalizeAddress(from), types.NormalizeAddress(to)
	if from == "" || to == "" || amount == 0 {
		return nil, types.ErrInvalidRequest.Wrap("missing from/to/amount")
	}
	if to == types.HouseAccount {
		return nil, types.ErrInvalidRequest.Wrap("use house/fund to pay the house")
	}
	if err := k.st.Transfer(from, to, amount); err != nil {
		return nil, types.ErrInsufficientFunds.Wrap(err.Error())
	}
	return &Receipt{
		Amount: amount,
		Events: []abci.Event{newEvent(types.EventTypeBankSent, map[string]string{
			types.AttributeKeyFrom:   from,
			types.AttributeKeyTo:     to,
			types.AttributeKeyAmount: strconv.FormatUint(amount, 10),
		})},
	}, nil
}
