package randomness

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sealedrps/internal/engine"
	"sealedrps/internal/ledger"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/state"
	"sealedrps/internal/types"
)

const (
	contract = "0x00000000000000000000000000000000000000c0"
	alice    = "0x00000000000000000000000000000000000000a1"
	provider = "0x00000000000000000000000000000000000000f0"
)

func setup(t *testing.T) (*ledgerclient.Local, *Provider, sealcrypto.KeyPair) {
	t.Helper()
	rng, err := sealcrypto.NewDeterministicRng([]byte(t.Name()))
	require.NoError(t, err)
	kp, err := sealcrypto.GenerateKeyPair(rng)
	require.NoError(t, err)

	params := types.DefaultParams()
	params.ContractAddress = contract
	params.EntryFee = 1
	params.NetworkKey = sealcrypto.BytesToHex(kp.PK.Bytes())
	params.RandomnessProvider = provider
	params.AllowMint = true
	k, err := ledger.NewKeeper(state.NewState(params), nil, nil)
	require.NoError(t, err)
	_, err = k.Mint(ledger.BlockInfo{}, alice, 1_000)
	require.NoError(t, err)

	player := ledgerclient.NewLocal(k, alice)
	eng := engine.New(engine.StaticKey(kp.PK.Bytes()), contract, engine.WithScalarSource(rng))
	return player, NewProvider(player.As(provider), eng), kp
}

func createGame(t *testing.T, l *ledgerclient.Local, kp sealcrypto.KeyPair) uint64 {
	t.Helper()
	eng := engine.New(engine.StaticKey(kp.PK.Bytes()), contract)
	in, err := eng.EncryptChoice(context.Background(), alice, types.ChoiceRock)
	require.NoError(t, err)
	rcpt, err := l.CreateGame(context.Background(), 10, in.Handle, in.Proof)
	require.NoError(t, err)
	return rcpt.GameID
}

func TestDraw_InRangeAndDeterministicWithFixedReader(t *testing.T) {
	_, p, _ := setup(t)
	for i := 0; i < 50; i++ {
		c, err := p.Draw()
		require.NoError(t, err)
		require.True(t, c.Valid())
	}

	fixed := NewProvider(nil, nil, WithRand(bytes.NewReader(bytes.Repeat([]byte{0x01}, 64))))
	c, err := fixed.Draw()
	require.NoError(t, err)
	require.True(t, c.Valid())
}

func TestTick_AnswersEveryPendingGameOnce(t *testing.T) {
	player, p, kp := setup(t)
	ctx := context.Background()
	first := createGame(t, player, kp)
	second := createGame(t, player, kp)

	n, err := p.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, id := range []uint64{first, second} {
		g, err := player.Game(ctx, id)
		require.NoError(t, err)
		require.True(t, g.HasSystemChoice())
		require.False(t, g.EncryptedResult.IsZero())
	}

	n, err = p.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	err = p.Supply(ctx, first)
	require.ErrorIs(t, err, types.ErrAlreadySet)
}

func TestRun_StopsOnCancel(t *testing.T) {
	player, p, kp := setup(t)
	p.interval = 5 * time.Millisecond
	id := createGame(t, player, kp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		g, err := player.Game(context.Background(), id)
		return err == nil && g.HasSystemChoice()
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
