package ledger

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// checkDecryption enforces provenance: d must name the handle the game stores
// for this slot, and its proof must show d.Value is the true plaintext of the
// stored ciphertext under the network key.
func (k *Keeper) checkDecryption(kind types.HandleKind, want types.Handle, d types.Decryption) error {
	if d.Handle != want {
		return types.ErrHandleMismatch.Wrapf("%s value names %s, game stores %s", kind, d.Handle, want)
	}
	rec, ok := k.st.Ciphertexts[want]
	if !ok {
		return types.ErrNotFound.Wrapf("ciphertext %s", want)
	}
	ct, err := ciphertextOf(rec)
	if err != nil {
		return types.ErrInvalidRequest.Wrapf("stored ciphertext: %v", err)
	}
	share, err := sealcrypto.DecodeDecryptionShare(d.Share, d.Proof)
	if err != nil {
		return types.ErrInvalidDecryption.Wrapf("%s: %v", kind, err)
	}
	if err := sealcrypto.VerifyDecryption(k.networkKey, ct, share, d.Value); err != nil {
		return types.ErrInvalidDecryption.Wrapf("%s: %v", kind, err)
	}
	return nil
}

// SettleGame records the decrypted outcome and fixes the reward. It succeeds at
// most once per game.
func (k *Keeper) SettleGame(bi BlockInfo, caller string, gameID uint64, vals types.SettlementValues) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller = types.NormalizeAddress(caller)
	g, ok := k.st.Games[gameID]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("game %d", gameID)
	}
	if g.Settled {
		return nil, types.ErrAlreadySettled.Wrapf("game %d", gameID)
	}
	if caller != g.Player && !k.isSettler(caller) {
		return nil, types.ErrUnauthorized.Wrap("only the player or a settler may settle")
	}
	if !g.HasSystemChoice() {
		return nil, types.ErrSystemChoicePending.Wrapf("game %d", gameID)
	}

	if err := k.checkDecryption(types.HandleKindPlayerChoice, g.EncryptedPlayerChoice, vals.PlayerChoice); err != nil {
		return nil, err
	}
	if err := k.checkDecryption(types.HandleKindSystemChoice, g.EncryptedSystemChoice, vals.SystemChoice); err != nil {
		return nil, err
	}
	if err := k.checkDecryption(types.HandleKindResult, g.EncryptedResult, vals.Result); err != nil {
		return nil, err
	}

	if vals.PlayerChoice.Value >= types.ChoiceBound || vals.SystemChoice.Value >= types.ChoiceBound {
		return nil, types.ErrInvalidDecryption.Wrap("choice out of range")
	}
	player, system := types.Choice(vals.PlayerChoice.Value), types.Choice(vals.SystemChoice.Value)
	result, err := types.ResultFromOutcome(vals.Result.Value)
	if err != nil {
		return nil, types.ErrInvalidDecryption.Wrap(err.Error())
	}
	if result != types.ResultOf(player, system) {
		return nil, types.ErrInvalidDecryption.Wrapf("result %s inconsistent with %s vs %s", result, player, system)
	}
	reward, err := types.ComputeReward(result, g.BetAmount, k.st.Params.RewardMultiplierNum, k.st.Params.RewardMultiplierDen)
	if err != nil {
		return nil, types.ErrInvalidRequest.Wrap(err.Error())
	}

	g.DecryptedPlayerChoice = uint8(player)
	g.DecryptedSystemChoice = uint8(system)
	g.FinalResult = result
	g.Reward = reward
	g.Settled = true
	g.SettledAt = bi.Time.Unix()

	k.metrics.GamesSettled.WithLabelValues(result.String()).Inc()
	k.logger.Info("game settled", "gameId", gameID, "result", result.String(), "reward", reward, "settler", caller)

	return &Receipt{
		GameID: gameID,
		Amount: reward,
		Events: []abci.Event{newEvent(types.EventTypeGameSettled, map[string]string{
			types.AttributeKeyGameID:       strconv.FormatUint(gameID, 10),
			types.AttributeKeyPlayer:       g.Player,
			types.AttributeKeyPlayerChoice: strconv.FormatUint(uint64(player), 10),
			types.AttributeKeySystemChoice: strconv.FormatUint(uint64(system), 10),
			types.AttributeKeyResult:       strconv.FormatUint(uint64(result), 10),
			types.AttributeKeyReward:       strconv.FormatUint(reward, 10),
			types.AttributeKeyTimestamp:    strconv.FormatInt(bi.Time.Unix(), 10),
		})},
	}, nil
}
