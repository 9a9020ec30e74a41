// Package settlement carries verified cleartexts back to the ledger and
// collects rewards.
package settlement

import (
	"context"

	"cosmossdk.io/log"

	"sealedrps/internal/ledger"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/types"
)

// Values picks the game's three decryptions out of clear.
func Values(g types.Game, clear map[types.Handle]types.Decryption) (types.SettlementValues, error) {
	var vals types.SettlementValues
	for _, slot := range []struct {
		h   types.Handle
		dst *types.Decryption
	}{
		{g.EncryptedPlayerChoice, &vals.PlayerChoice},
		{g.EncryptedSystemChoice, &vals.SystemChoice},
		{g.EncryptedResult, &vals.Result},
	} {
		d, ok := clear[slot.h]
		if !ok || slot.h.IsZero() {
			return types.SettlementValues{}, types.ErrDecryptionIncomplete.Wrapf("game %d: no value for handle %s", g.ID, slot.h)
		}
		*slot.dst = d
	}
	return vals, nil
}

// Submitter calls settle exactly once per Submit. It never retries: a second
// submission is the ledger's to refuse with ErrAlreadySettled.
type Submitter struct {
	ledger ledgerclient.Ledger
	logger log.Logger
}

func NewSubmitter(l ledgerclient.Ledger, logger log.Logger) *Submitter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Submitter{ledger: l, logger: logger.With("module", "settlement")}
}

func (s *Submitter) Submit(ctx context.Context, g types.Game, clear map[types.Handle]types.Decryption) (*ledger.Receipt, error) {
	vals, err := Values(g, clear)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.ledger.SettleGame(ctx, g.ID, vals)
	if err != nil {
		s.logger.Info("settle refused", "gameId", g.ID, "err", err)
		return nil, err
	}
	s.logger.Info("game settled", "gameId", g.ID, "outcome", vals.Result.Value)
	return rcpt, nil
}

// Claimer collects rewards for the ledger's account.
type Claimer struct {
	ledger ledgerclient.Ledger
	logger log.Logger
}

func NewClaimer(l ledgerclient.Ledger, logger log.Logger) *Claimer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Claimer{ledger: l, logger: logger.With("module", "claimer")}
}

// Claim pays one game's reward and returns the amount.
func (c *Claimer) Claim(ctx context.Context, gameID uint64) (uint64, error) {
	rcpt, err := c.ledger.ClaimReward(ctx, gameID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("reward claimed", "gameId", gameID, "amount", rcpt.Amount)
	return rcpt.Amount, nil
}

// ClaimAll claims every claimable game among ids, or among all of the
// account's games when ids is empty, in one transition.
func (c *Claimer) ClaimAll(ctx context.Context, ids []uint64) (uint64, []uint64, error) {
	rcpt, err := c.ledger.ClaimMultipleRewards(ctx, ids)
	if err != nil {
		return 0, nil, err
	}
	c.logger.Info("rewards claimed", "games", len(rcpt.GameIDs), "amount", rcpt.Amount)
	return rcpt.Amount, rcpt.GameIDs, nil
}
