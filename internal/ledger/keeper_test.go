package ledger_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"

	"sealedrps/internal/ledger"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/state"
	"sealedrps/internal/types"
)

const (
	contract = "0x00000000000000000000000000000000000000c0"
	alice    = "0x00000000000000000000000000000000000000a1"
	bob      = "0x00000000000000000000000000000000000000b0"
	provider = "0x00000000000000000000000000000000000000f0"
	settler  = "0x00000000000000000000000000000000000000e0"

	entryFee = uint64(1_000)
)

type fixture struct {
	k   *ledger.Keeper
	kp  sealcrypto.KeyPair
	rng *sealcrypto.DeterministicRng
	bi  ledger.BlockInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rng, err := sealcrypto.NewDeterministicRng([]byte(t.Name()))
	require.NoError(t, err)
	kp, err := sealcrypto.GenerateKeyPair(rng)
	require.NoError(t, err)

	params := types.DefaultParams()
	params.ContractAddress = contract
	params.EntryFee = entryFee
	params.NetworkKey = sealcrypto.BytesToHex(kp.PK.Bytes())
	params.RandomnessProvider = provider
	params.Settlers = []string{settler}
	params.AllowMint = true

	k, err := ledger.NewKeeper(state.NewState(params), nil, nil)
	require.NoError(t, err)

	f := &fixture{k: k, kp: kp, rng: rng, bi: ledger.BlockInfo{Height: 1, Time: time.Unix(1_700_000_000, 0)}}
	_, err = k.Mint(f.bi, alice, 1_000_000)
	require.NoError(t, err)
	_, err = k.Mint(f.bi, bob, 1_000_000)
	require.NoError(t, err)
	_, err = k.Mint(f.bi, provider, 1_000_000)
	require.NoError(t, err)
	_, err = k.FundHouse(f.bi, provider, 500_000)
	require.NoError(t, err)
	return f
}

func (f *fixture) seal(t *testing.T, user string, v types.Choice) (types.Handle, []byte) {
	t.Helper()
	in, err := sealcrypto.SealInput(sealcrypto.ProofBinding{Contract: contract, User: user}, f.kp.PK, uint64(v), types.ChoiceBound, f.rng)
	require.NoError(t, err)
	return types.Handle(sealcrypto.DeriveHandle(contract, in.Ciphertext)), in.Bytes()
}

func (f *fixture) create(t *testing.T, player string, bet uint64, v types.Choice) uint64 {
	t.Helper()
	h, proof := f.seal(t, player, v)
	rec, err := f.k.CreateGame(f.bi, player, bet, h, proof)
	require.NoError(t, err)
	return rec.GameID
}

func (f *fixture) recordSystem(t *testing.T, gameID uint64, v types.Choice) {
	t.Helper()
	h, proof := f.seal(t, provider, v)
	_, err := f.k.RecordSystemChoice(f.bi, provider, gameID, h, proof)
	require.NoError(t, err)
}

func (f *fixture) decrypt(t *testing.T, h types.Handle) types.Decryption {
	t.Helper()
	rec, err := f.k.Ciphertext(h)
	require.NoError(t, err)
	ct, err := sealcrypto.DecodeCiphertext(append(append([]byte(nil), rec.C1...), rec.C2...))
	require.NoError(t, err)
	v, err := sealcrypto.DecodeSmall(sealcrypto.Decrypt(f.kp.SK, ct), 8)
	require.NoError(t, err)
	share, err := sealcrypto.ProveDecryption(f.kp.SK, ct, f.rng)
	require.NoError(t, err)
	return types.Decryption{
		Handle: h,
		Value:  v,
		Share:  share.D.Bytes(),
		Proof:  sealcrypto.EncodeChaumPedersenProof(share.Proof),
	}
}

func (f *fixture) values(t *testing.T, gameID uint64) types.SettlementValues {
	t.Helper()
	g, err := f.k.Game(gameID)
	require.NoError(t, err)
	return types.SettlementValues{
		PlayerChoice: f.decrypt(t, g.EncryptedPlayerChoice),
		SystemChoice: f.decrypt(t, g.EncryptedSystemChoice),
		Result:       f.decrypt(t, g.EncryptedResult),
	}
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func TestCreateGame_EscrowsAndStoresHandle(t *testing.T) {
	f := newFixture(t)
	h, proof := f.seal(t, alice, types.ChoiceRock)

	rec, err := f.k.CreateGame(f.bi, alice, 2_000, h, proof)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.GameID)

	ev := findEvent(rec.Events, types.EventTypeGameCreated)
	require.NotNil(t, ev)
	require.Equal(t, "1", attr(ev, types.AttributeKeyGameID))
	require.Equal(t, alice, attr(ev, types.AttributeKeyPlayer))
	require.Equal(t, "2000", attr(ev, types.AttributeKeyAmount))

	g, err := f.k.Game(rec.GameID)
	require.NoError(t, err)
	require.Equal(t, h, g.EncryptedPlayerChoice)
	require.NotEqual(t, types.Handle{byte(types.ChoiceRock)}, g.EncryptedPlayerChoice)
	require.NotEqual(t, types.Handle{31: byte(types.ChoiceRock)}, g.EncryptedPlayerChoice)
	require.Equal(t, types.Unrevealed, g.DecryptedPlayerChoice)
	require.Equal(t, types.Unrevealed, g.DecryptedSystemChoice)
	require.Equal(t, types.ResultPending, g.FinalResult)
	require.Equal(t, types.StatusCreated, g.Status())
	require.Equal(t, int64(1_700_000_000), g.Timestamp)

	require.Equal(t, uint64(998_000), f.k.Balance(alice))
	require.Equal(t, uint64(502_000), f.k.HouseBalance())

	ct, err := f.k.Ciphertext(h)
	require.NoError(t, err)
	require.True(t, ct.IsAllowed(alice))
	require.True(t, ct.IsAllowed(settler))
	require.False(t, ct.IsAllowed(bob))

	// The same choice sealed again gets an unrelated handle.
	again, _ := f.seal(t, alice, types.ChoiceRock)
	require.NotEqual(t, h, again)
}

func TestCreateGame_Rejections(t *testing.T) {
	f := newFixture(t)

	h, proof := f.seal(t, alice, types.ChoicePaper)
	_, err := f.k.CreateGame(f.bi, alice, entryFee-1, h, proof)
	require.ErrorIs(t, err, types.ErrInsufficientPayment)

	// A proof bound to another user is rejected.
	_, err = f.k.CreateGame(f.bi, bob, entryFee, h, proof)
	require.ErrorIs(t, err, types.ErrInvalidProof)

	// Handle must name the proof's ciphertext.
	other, _ := f.seal(t, alice, types.ChoicePaper)
	_, err = f.k.CreateGame(f.bi, alice, entryFee, other, proof)
	require.ErrorIs(t, err, types.ErrInvalidProof)

	_, err = f.k.CreateGame(f.bi, alice, entryFee, h, proof[:10])
	require.ErrorIs(t, err, types.ErrInvalidProof)

	_, err = f.k.CreateGame(f.bi, alice, 2_000_000, h, proof)
	require.ErrorIs(t, err, types.ErrInsufficientFunds)

	// Nothing moved.
	require.Equal(t, uint64(1_000_000), f.k.Balance(alice))
	require.Zero(t, f.k.GameCount())

	_, err = f.k.CreateGame(f.bi, alice, entryFee, h, proof)
	require.NoError(t, err)
	// The same ciphertext cannot back a second game.
	_, err = f.k.CreateGame(f.bi, alice, entryFee, h, proof)
	require.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestCreateGame_DistinctIncreasingIDsInOrder(t *testing.T) {
	f := newFixture(t)
	id1 := f.create(t, alice, entryFee, types.ChoiceRock)
	id2 := f.create(t, bob, entryFee, types.ChoiceRock)
	id3 := f.create(t, alice, entryFee, types.ChoiceScissors)

	require.Less(t, id1, id2)
	require.Less(t, id2, id3)
	require.Equal(t, []uint64{id1, id3}, f.k.PlayerGames(alice))
	require.Equal(t, []uint64{id2}, f.k.PlayerGames(bob))
	require.Equal(t, uint64(3), f.k.GameCount())
	require.Equal(t, []uint64{id1, id2, id3}, f.k.PendingSystemChoice())
}

func TestRecordSystemChoice_ProviderOnlyAndOnce(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, entryFee, types.ChoiceRock)

	h, proof := f.seal(t, alice, types.ChoiceScissors)
	_, err := f.k.RecordSystemChoice(f.bi, alice, id, h, proof)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	h, proof = f.seal(t, provider, types.ChoiceScissors)
	_, err = f.k.RecordSystemChoice(f.bi, provider, 99, h, proof)
	require.ErrorIs(t, err, types.ErrNotFound)

	rec, err := f.k.RecordSystemChoice(f.bi, provider, id, h, proof)
	require.NoError(t, err)
	require.NotNil(t, findEvent(rec.Events, types.EventTypeSystemChoiceRecorded))

	g, err := f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, h, g.EncryptedSystemChoice)
	require.False(t, g.EncryptedResult.IsZero())
	require.Empty(t, f.k.PendingSystemChoice())

	h2, proof2 := f.seal(t, provider, types.ChoicePaper)
	_, err = f.k.RecordSystemChoice(f.bi, provider, id, h2, proof2)
	require.ErrorIs(t, err, types.ErrAlreadySet)

	g2, err := f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, g, g2)
}

func TestRequestDecryption(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, entryFee, types.ChoiceRock)

	_, err := f.k.RequestDecryption(f.bi, alice, id)
	require.ErrorIs(t, err, types.ErrSystemChoicePending)

	f.recordSystem(t, id, types.ChoicePaper)

	_, err = f.k.RequestDecryption(f.bi, bob, id)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	rec, err := f.k.RequestDecryption(f.bi, alice, id)
	require.NoError(t, err)
	ev := findEvent(rec.Events, types.EventTypeDecryptionRequested)
	require.Equal(t, alice, attr(ev, types.AttributeKeyPlayer))

	// Idempotent.
	rec, err = f.k.RequestDecryption(f.bi, settler, id)
	require.NoError(t, err)
	require.Empty(t, rec.Events)

	g, err := f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, types.StatusDecryptionRequested, g.Status())
}

func TestSettleAndClaim_RockBeatsScissorsPaysOnce(t *testing.T) {
	f := newFixture(t)
	const bet = uint64(10_000)
	id := f.create(t, alice, bet, types.ChoiceRock)
	f.recordSystem(t, id, types.ChoiceScissors)

	vals := f.values(t, id)
	require.Equal(t, uint64(types.ChoiceRock), vals.PlayerChoice.Value)
	require.Equal(t, uint64(types.ChoiceScissors), vals.SystemChoice.Value)

	rec, err := f.k.SettleGame(f.bi, alice, id, vals)
	require.NoError(t, err)
	ev := findEvent(rec.Events, types.EventTypeGameSettled)
	require.Equal(t, strconv.Itoa(int(types.ResultPlayerWin)), attr(ev, types.AttributeKeyResult))
	require.Equal(t, "18000", attr(ev, types.AttributeKeyReward))

	g, err := f.k.Game(id)
	require.NoError(t, err)
	require.True(t, g.Settled)
	require.Equal(t, types.ResultPlayerWin, g.FinalResult)
	require.Equal(t, uint64(18_000), g.Reward)
	require.Equal(t, uint8(types.ChoiceRock), g.DecryptedPlayerChoice)
	require.Equal(t, uint8(types.ChoiceScissors), g.DecryptedSystemChoice)

	before := f.k.Balance(alice)
	rec, err = f.k.ClaimReward(f.bi, alice, id)
	require.NoError(t, err)
	require.Equal(t, uint64(18_000), rec.Amount)
	require.Equal(t, before+18_000, f.k.Balance(alice))

	_, err = f.k.ClaimReward(f.bi, alice, id)
	require.ErrorIs(t, err, types.ErrAlreadyRewarded)
	require.Equal(t, before+18_000, f.k.Balance(alice))
}

func TestSettle_SecondCallAlwaysAlreadySettled(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, entryFee, types.ChoicePaper)
	f.recordSystem(t, id, types.ChoicePaper)
	vals := f.values(t, id)

	_, err := f.k.SettleGame(f.bi, settler, id, vals)
	require.NoError(t, err)
	settled, err := f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, types.ResultDraw, settled.FinalResult)
	require.Equal(t, uint64(entryFee), settled.Reward)

	_, err = f.k.SettleGame(f.bi, alice, id, vals)
	require.ErrorIs(t, err, types.ErrAlreadySettled)
	_, err = f.k.SettleGame(f.bi, bob, id, types.SettlementValues{})
	require.ErrorIs(t, err, types.ErrAlreadySettled)

	after, err := f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, settled, after)
}

func TestSettle_Rejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.k.SettleGame(f.bi, alice, 42, types.SettlementValues{})
	require.ErrorIs(t, err, types.ErrNotFound)

	id := f.create(t, alice, entryFee, types.ChoiceRock)
	_, err = f.k.SettleGame(f.bi, alice, id, types.SettlementValues{})
	require.ErrorIs(t, err, types.ErrSystemChoicePending)

	f.recordSystem(t, id, types.ChoicePaper)
	vals := f.values(t, id)

	_, err = f.k.SettleGame(f.bi, bob, id, vals)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	// Values from another game are rejected by provenance.
	other := f.create(t, bob, entryFee, types.ChoiceRock)
	f.recordSystem(t, other, types.ChoicePaper)
	foreign := f.values(t, other)
	swapped := vals
	swapped.PlayerChoice = foreign.PlayerChoice
	_, err = f.k.SettleGame(f.bi, alice, id, swapped)
	require.ErrorIs(t, err, types.ErrHandleMismatch)

	// A forged cleartext fails the decryption proof.
	forged := vals
	forged.SystemChoice.Value = uint64(types.ChoiceScissors)
	_, err = f.k.SettleGame(f.bi, alice, id, forged)
	require.ErrorIs(t, err, types.ErrInvalidDecryption)

	forged = vals
	forged.Result.Proof = nil
	_, err = f.k.SettleGame(f.bi, alice, id, forged)
	require.ErrorIs(t, err, types.ErrInvalidDecryption)

	g, err := f.k.Game(id)
	require.NoError(t, err)
	require.False(t, g.Settled)

	_, err = f.k.SettleGame(f.bi, alice, id, vals)
	require.NoError(t, err)
	g, err = f.k.Game(id)
	require.NoError(t, err)
	require.Equal(t, types.ResultPlayerLoss, g.FinalResult)
	require.Zero(t, g.Reward)
	require.Equal(t, types.StatusSettledNoReward, g.Status())
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.k.ClaimReward(f.bi, alice, 7)
	require.ErrorIs(t, err, types.ErrNotFound)

	id := f.create(t, alice, entryFee, types.ChoiceRock)
	_, err = f.k.ClaimReward(f.bi, alice, id)
	require.ErrorIs(t, err, types.ErrNotSettled)

	f.recordSystem(t, id, types.ChoicePaper)
	_, err = f.k.SettleGame(f.bi, alice, id, f.values(t, id))
	require.NoError(t, err)

	_, err = f.k.ClaimReward(f.bi, bob, id)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.k.ClaimReward(f.bi, alice, id)
	require.ErrorIs(t, err, types.ErrNothingToClaim)
}

func TestClaim_TreasuryShortfall(t *testing.T) {
	f := newFixture(t)
	bet := uint64(900_000)
	id := f.create(t, alice, bet, types.ChoiceRock)
	f.recordSystem(t, id, types.ChoiceScissors)
	_, err := f.k.SettleGame(f.bi, alice, id, f.values(t, id))
	require.NoError(t, err)

	// House holds 500k funding + 900k escrow; the reward is 1.62M.
	_, err = f.k.ClaimReward(f.bi, alice, id)
	require.ErrorIs(t, err, types.ErrTreasuryShortfall)

	_, err = f.k.FundHouse(f.bi, bob, 300_000)
	require.NoError(t, err)
	_, err = f.k.ClaimReward(f.bi, alice, id)
	require.NoError(t, err)
}

func TestClaimMultipleRewards(t *testing.T) {
	f := newFixture(t)
	win := f.create(t, alice, entryFee, types.ChoiceRock)
	draw := f.create(t, alice, entryFee, types.ChoiceRock)
	loss := f.create(t, alice, entryFee, types.ChoiceRock)
	open := f.create(t, alice, entryFee, types.ChoiceRock)
	bobs := f.create(t, bob, entryFee, types.ChoiceRock)

	for id, sys := range map[uint64]types.Choice{win: types.ChoiceScissors, draw: types.ChoiceRock, loss: types.ChoicePaper, bobs: types.ChoiceScissors} {
		f.recordSystem(t, id, sys)
		_, err := f.k.SettleGame(f.bi, settler, id, f.values(t, id))
		require.NoError(t, err)
	}

	_, err := f.k.ClaimMultipleRewards(f.bi, alice, []uint64{loss, open, bobs})
	require.ErrorIs(t, err, types.ErrNothingToClaim)

	before := f.k.Balance(alice)
	rec, err := f.k.ClaimMultipleRewards(f.bi, alice, []uint64{win, draw, draw, loss, open, bobs})
	require.NoError(t, err)
	require.Equal(t, []uint64{win, draw}, rec.GameIDs)
	require.Equal(t, uint64(1_800+1_000), rec.Amount)
	require.Len(t, rec.Events, 2)
	require.Equal(t, before+2_800, f.k.Balance(alice))

	_, err = f.k.ClaimReward(f.bi, alice, win)
	require.ErrorIs(t, err, types.ErrAlreadyRewarded)

	// Empty ids claims everything claimable for the caller.
	rec, err = f.k.ClaimMultipleRewards(f.bi, bob, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{bobs}, rec.GameIDs)
}

func TestSettle_ConcurrentCallsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, entryFee, types.ChoiceScissors)
	f.recordSystem(t, id, types.ChoicePaper)
	vals := f.values(t, id)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.k.SettleGame(f.bi, alice, id, vals)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, types.ErrAlreadySettled) {
				conflict++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflict)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.k.ClaimReward(f.bi, alice, id)
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(1_000_000-entryFee+1_800), f.k.Balance(alice))
}

func TestClaim_ConcurrentCallsPayOnce(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, entryFee, types.ChoiceRock)
	f.recordSystem(t, id, types.ChoiceScissors)
	_, err := f.k.SettleGame(f.bi, alice, id, f.values(t, id))
	require.NoError(t, err)
	before := f.k.Balance(alice)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.k.ClaimReward(f.bi, alice, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, types.ErrAlreadyRewarded) {
				conflict++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflict)
	require.Equal(t, before+1_800, f.k.Balance(alice))
}

func TestMintDisabled(t *testing.T) {
	f := newFixture(t)
	p := f.k.Params()
	p.AllowMint = false
	k, err := ledger.NewKeeper(state.NewState(p), nil, nil)
	require.NoError(t, err)
	_, err = k.Mint(f.bi, alice, 1)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestAcceptNonce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.k.AcceptNonce(alice, 1))
	require.NoError(t, f.k.AcceptNonce(alice, 5))
	require.ErrorIs(t, f.k.AcceptNonce(alice, 5), types.ErrUnauthorized)
	require.ErrorIs(t, f.k.AcceptNonce(alice, 2), types.ErrUnauthorized)
	require.NoError(t, f.k.AcceptNonce(bob, 1))
}
