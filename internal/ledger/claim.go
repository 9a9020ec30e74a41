package ledger

import (
	"strconv"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"

	"sealedrps/internal/types"
)

func rewardClaimedEvent(g *types.Game) abci.Event {
	return newEvent(types.EventTypeRewardClaimed, map[string]string{
		types.AttributeKeyGameID: strconv.FormatUint(g.ID, 10),
		types.AttributeKeyPlayer: g.Player,
		types.AttributeKeyAmount: strconv.FormatUint(g.Reward, 10),
	})
}

// ClaimReward pays a settled game's reward to its player, once.
func (k *Keeper) ClaimReward(bi BlockInfo, caller string, gameID uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller = types.NormalizeAddress(caller)
	g, ok := k.st.Games[gameID]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("game %d", gameID)
	}
	if !g.Settled {
		return nil, types.ErrNotSettled.Wrapf("game %d", gameID)
	}
	if caller != g.Player {
		return nil, types.ErrUnauthorized.Wrap("only the player may claim")
	}
	if g.Rewarded {
		return nil, types.ErrAlreadyRewarded.Wrapf("game %d", gameID)
	}
	if g.Reward == 0 {
		return nil, types.ErrNothingToClaim.Wrapf("game %d", gameID)
	}
	if house := k.st.Balance(types.HouseAccount); house < g.Reward {
		return nil, types.ErrTreasuryShortfall.Wrapf("house has %d, reward is %d", house, g.Reward)
	}
	if err := k.st.Transfer(types.HouseAccount, g.Player, g.Reward); err != nil {
		return nil, types.ErrTreasuryShortfall.Wrap(err.Error())
	}
	g.Rewarded = true

	k.metrics.RewardsClaimed.Inc()
	k.metrics.RewardsPaid.Add(float64(g.Reward))
	k.logger.Info("reward claimed", "gameId", gameID, "player", g.Player, "amount", g.Reward, "height", bi.Height)

	return &Receipt{
		GameID: gameID,
		Amount: g.Reward,
		Events: []abci.Event{rewardClaimedEvent(g)},
	}, nil
}

// ClaimMultipleRewards pays every claimable game among ids in one transition,
// skipping ids that are not claimable by caller. An empty ids claims all of the
// caller's games.
func (k *Keeper) ClaimMultipleRewards(bi BlockInfo, caller string, ids []uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller = types.NormalizeAddress(caller)
	if len(ids) == 0 {
		ids = k.st.GamesOf(caller)
	}

	var (
		claim []*types.Game
		total uint64
		seen  = make(map[uint64]struct{}, len(ids))
	)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g, ok := k.st.Games[id]
		if !ok || !g.Claimable(caller) {
			continue
		}
		next, err := addUint64Checked(total, g.Reward, "total reward")
		if err != nil {
			return nil, types.ErrInvalidRequest.Wrap(err.Error())
		}
		total = next
		claim = append(claim, g)
	}
	if len(claim) == 0 {
		return nil, types.ErrNothingToClaim.Wrap("no claimable games")
	}
	if house := k.st.Balance(types.HouseAccount); house < total {
		return nil, types.ErrTreasuryShortfall.Wrapf("house has %d, rewards total %d", house, total)
	}
	if err := k.st.Transfer(types.HouseAccount, caller, total); err != nil {
		return nil, types.ErrTreasuryShortfall.Wrap(err.Error())
	}

	rec := &Receipt{Amount: total}
	paid := make([]string, 0, len(claim))
	for _, g := range claim {
		g.Rewarded = true
		rec.GameIDs = append(rec.GameIDs, g.ID)
		rec.Events = append(rec.Events, rewardClaimedEvent(g))
		paid = append(paid, strconv.FormatUint(g.ID, 10))
	}

	k.metrics.RewardsClaimed.Add(float64(len(claim)))
	k.metrics.RewardsPaid.Add(float64(total))
	k.logger.Info("rewards claimed", "player", caller, "games", strings.Join(paid, ","), "amount", total, "height", bi.Height)
	return rec, nil
}
