package ledger

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// verifyInput checks that proof carries the ciphertext named by handle and that
// the ciphertext encrypts a valid choice for (contract, user).
func (k *Keeper) verifyInput(handle types.Handle, proof []byte, user string) (sealcrypto.Ciphertext, error) {
	in, err := sealcrypto.DecodeInputProof(proof)
	if err != nil {
		return sealcrypto.Ciphertext{}, types.ErrInvalidProof.Wrap(err.Error())
	}
	contract := k.st.Params.ContractAddress
	if types.Handle(sealcrypto.DeriveHandle(contract, in.Ciphertext)) != handle {
		return sealcrypto.Ciphertext{}, types.ErrInvalidProof.Wrap("handle does not match proof ciphertext")
	}
	bind := sealcrypto.ProofBinding{Contract: contract, User: user}
	if err := sealcrypto.VerifyMembership(bind, k.networkKey, in.Ciphertext, types.ChoiceBound, in.Membership); err != nil {
		return sealcrypto.Ciphertext{}, types.ErrInvalidProof.Wrap(err.Error())
	}
	if _, exists := k.st.Ciphertexts[handle]; exists {
		return sealcrypto.Ciphertext{}, types.ErrInvalidProof.Wrapf("handle %s already registered", handle)
	}
	return in.Ciphertext, nil
}

// CreateGame escrows bet and opens a game around the player's encrypted choice.
func (k *Keeper) CreateGame(bi BlockInfo, player string, bet uint64, handle types.Handle, proof []byte) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	player = types.NormalizeAddress(player)
	if player == "" {
		return nil, types.ErrInvalidRequest.Wrap("missing player")
	}
	if player == types.HouseAccount {
		return nil, types.ErrUnauthorized.Wrap("house account cannot play")
	}
	if bet < k.st.Params.EntryFee {
		return nil, types.ErrInsufficientPayment.Wrapf("bet %d below entry fee %d", bet, k.st.Params.EntryFee)
	}
	ct, err := k.verifyInput(handle, proof, player)
	if err != nil {
		return nil, err
	}
	if bal := k.st.Balance(player); bal < bet {
		return nil, types.ErrInsufficientFunds.Wrapf("have %d need %d", bal, bet)
	}

	if err := k.st.Transfer(player, types.HouseAccount, bet); err != nil {
		return nil, types.ErrInsufficientFunds.Wrap(err.Error())
	}
	id := k.st.AddGame(types.Game{
		Player:                player,
		BetAmount:             bet,
		EncryptedPlayerChoice: handle,
		DecryptedPlayerChoice: types.Unrevealed,
		DecryptedSystemChoice: types.Unrevealed,
		FinalResult:           types.ResultPending,
		Timestamp:             bi.Time.Unix(),
		CreatedHeight:         bi.Height,
	})
	k.st.Ciphertexts[handle] = &types.CiphertextRecord{
		Handle:  handle,
		C1:      ct.C1.Bytes(),
		C2:      ct.C2.Bytes(),
		GameID:  id,
		Kind:    types.HandleKindPlayerChoice,
		Allowed: k.aclFor(player),
	}

	k.metrics.GamesCreated.Inc()
	k.metrics.EscrowedTotal.Add(float64(bet))
	k.logger.Info("game created", "gameId", id, "player", player, "bet", bet)

	return &Receipt{
		GameID: id,
		Amount: bet,
		Handle: handle,
		Events: []abci.Event{newEvent(types.EventTypeGameCreated, map[string]string{
			types.AttributeKeyGameID:    strconv.FormatUint(id, 10),
			types.AttributeKeyPlayer:    player,
			types.AttributeKeyAmount:    strconv.FormatUint(bet, 10),
			types.AttributeKeyTimestamp: strconv.FormatInt(bi.Time.Unix(), 10),
			types.AttributeKeyHandle:    handle.String(),
		})},
	}, nil
}

// RecordSystemChoice attaches the randomness provider's encrypted choice and
// derives the encrypted outcome Enc(system - player + 3).
func (k *Keeper) RecordSystemChoice(bi BlockInfo, caller string, gameID uint64, handle types.Handle, proof []byte) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller = types.NormalizeAddress(caller)
	if caller != types.NormalizeAddress(k.st.Params.RandomnessProvider) {
		return nil, types.ErrUnauthorized.Wrap("only the randomness provider may record a system choice")
	}
	g, ok := k.st.Games[gameID]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("game %d", gameID)
	}
	if g.HasSystemChoice() {
		return nil, types.ErrAlreadySet.Wrapf("game %d", gameID)
	}
	if g.Settled {
		return nil, types.ErrAlreadySettled.Wrapf("game %d", gameID)
	}
	systemCt, err := k.verifyInput(handle, proof, caller)
	if err != nil {
		return nil, err
	}
	playerRec, ok := k.st.Ciphertexts[g.EncryptedPlayerChoice]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("ciphertext %s for game %d", g.EncryptedPlayerChoice, gameID)
	}
	playerCt, err := ciphertextOf(playerRec)
	if err != nil {
		return nil, types.ErrInvalidRequest.Wrapf("stored ciphertext: %v", err)
	}
	outcome := sealcrypto.AddPlain(sealcrypto.Sub(systemCt, playerCt), types.OutcomeOffset)
	resultHandle := types.Handle(sealcrypto.DeriveHandle(k.st.Params.ContractAddress, outcome))
	if _, exists := k.st.Ciphertexts[resultHandle]; exists {
		return nil, types.ErrInvalidProof.Wrapf("handle %s already registered", resultHandle)
	}

	allowed := k.aclFor(g.Player)
	k.st.Ciphertexts[handle] = &types.CiphertextRecord{
		Handle: handle, C1: systemCt.C1.Bytes(), C2: systemCt.C2.Bytes(),
		GameID: gameID, Kind: types.HandleKindSystemChoice, Allowed: allowed,
	}
	k.st.Ciphertexts[resultHandle] = &types.CiphertextRecord{
		Handle: resultHandle, C1: outcome.C1.Bytes(), C2: outcome.C2.Bytes(),
		GameID: gameID, Kind: types.HandleKindResult, Allowed: append([]string(nil), allowed...),
	}
	g.EncryptedSystemChoice = handle
	g.EncryptedResult = resultHandle

	k.logger.Info("system choice recorded", "gameId", gameID, "height", bi.Height)

	return &Receipt{
		GameID: gameID,
		Handle: resultHandle,
		Events: []abci.Event{newEvent(types.EventTypeSystemChoiceRecorded, map[string]string{
			types.AttributeKeyGameID:       strconv.FormatUint(gameID, 10),
			types.AttributeKeyHandle:       handle.String(),
			types.AttributeKeyResultHandle: resultHandle.String(),
		})},
	}, nil
}

// RequestDecryption marks a game ready for off-ledger decryption. Repeating it
// is a no-op.
func (k *Keeper) RequestDecryption(bi BlockInfo, caller string, gameID uint64) (*Receipt, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller = types.NormalizeAddress(caller)
	g, ok := k.st.Games[gameID]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("game %d", gameID)
	}
	if caller != g.Player && !k.isSettler(caller) {
		return nil, types.ErrUnauthorized.Wrap("only the player or a settler may request decryption")
	}
	if g.Settled {
		return nil, types.ErrAlreadySettled.Wrapf("game %d", gameID)
	}
	if !g.HasSystemChoice() {
		return nil, types.ErrSystemChoicePending.Wrapf("game %d", gameID)
	}
	if g.DecryptionRequested {
		return &Receipt{GameID: gameID}, nil
	}
	g.DecryptionRequested = true

	k.logger.Debug("decryption requested", "gameId", gameID, "height", bi.Height)

	return &Receipt{
		GameID: gameID,
		Events: []abci.Event{newEvent(types.EventTypeDecryptionRequested, map[string]string{
			types.AttributeKeyGameID: strconv.FormatUint(gameID, 10),
			types.AttributeKeyPlayer: g.Player,
		})},
	}, nil
}
