package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultOf_AllPairs(t *testing.T) {
	cases := []struct {
		player, system Choice
		want           Result
	}{
		{ChoiceRock, ChoiceRock, ResultDraw},
		{ChoiceRock, ChoiceScissors, ResultPlayerWin},
		{ChoiceRock, ChoicePaper, ResultPlayerLoss},
		{ChoiceScissors, ChoiceRock, ResultPlayerLoss},
		{ChoiceScissors, ChoiceScissors, ResultDraw},
		{ChoiceScissors, ChoicePaper, ResultPlayerWin},
		{ChoicePaper, ChoiceRock, ResultPlayerWin},
		{ChoicePaper, ChoiceScissors, ResultPlayerLoss},
		{ChoicePaper, ChoicePaper, ResultDraw},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ResultOf(tc.player, tc.system), "%s vs %s", tc.player, tc.system)

		// The encrypted outcome decodes to the same result.
		outcome := uint64(tc.system) + OutcomeOffset - uint64(tc.player)
		got, err := ResultFromOutcome(outcome)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "outcome %d", outcome)
	}
}

func TestResultFromOutcome_OutOfRange(t *testing.T) {
	_, err := ResultFromOutcome(0)
	require.Error(t, err)
	_, err = ResultFromOutcome(6)
	require.Error(t, err)
}

func TestComputeReward(t *testing.T) {
	got, err := ComputeReward(ResultPlayerWin, 1_000_000, 180, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1_800_000), got)

	got, err = ComputeReward(ResultDraw, 1_000_000, 180, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), got)

	got, err = ComputeReward(ResultPlayerLoss, 1_000_000, 180, 100)
	require.NoError(t, err)
	require.Zero(t, got)

	_, err = ComputeReward(ResultPending, 1, 180, 100)
	require.Error(t, err)

	_, err = ComputeReward(ResultPlayerWin, ^uint64(0), 180, 100)
	require.ErrorContains(t, err, "overflow")
}

func TestGameStatus(t *testing.T) {
	g := Game{ID: 1, Player: "0xabc", BetAmount: 10}
	require.Equal(t, StatusCreated, g.Status())

	g.DecryptionRequested = true
	require.Equal(t, StatusDecryptionRequested, g.Status())

	g.Settled = true
	require.Equal(t, StatusSettledNoReward, g.Status())

	g.Reward = 18
	require.Equal(t, StatusSettled, g.Status())
	require.True(t, g.Claimable("0xABC"))
	require.False(t, g.Claimable("0xdef"))

	g.Rewarded = true
	require.Equal(t, StatusRewarded, g.Status())
	require.False(t, g.Claimable("0xabc"))
}

func TestHandle_TextRoundTripAndParseErrors(t *testing.T) {
	var h Handle
	h[0], h[31] = 0xab, 0x01
	txt, err := h.MarshalText()
	require.NoError(t, err)
	require.Equal(t, h.String(), string(txt))

	var back Handle
	require.NoError(t, back.UnmarshalText(txt))
	require.Equal(t, h, back)

	_, err = ParseHandle("0x1234")
	require.Error(t, err)
	_, err = ParseHandle("zz")
	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(ErrGatewayTimeout.Wrap("window elapsed")))
	require.True(t, IsTransient(ErrEngineInitFailed))
	require.False(t, IsTransient(ErrAuthorizationExpired))
	require.False(t, IsTransient(ErrAlreadySettled))
}

func TestParamsValidate_Addresses(t *testing.T) {
	valid := func() Params {
		p := DefaultParams()
		p.ContractAddress = "0x00000000000000000000000000000000000000c0"
		p.RandomnessProvider = "0x00000000000000000000000000000000000000f0"
		p.Settlers = []string{"0x00000000000000000000000000000000000000e0"}
		p.NetworkKey = "0x" + strings.Repeat("ab", 32)
		return p
	}
	require.NoError(t, valid().Validate())

	for name, edit := range map[string]func(*Params){
		"contract":    func(p *Params) { p.ContractAddress = "0xledger" },
		"short":       func(p *Params) { p.ContractAddress = "0x00c0" },
		"provider":    func(p *Params) { p.RandomnessProvider = "random" },
		"settler":     func(p *Params) { p.Settlers = append(p.Settlers, "0xsettler") },
		"network key": func(p *Params) { p.NetworkKey = "0x1234" },
		"no contract": func(p *Params) { p.ContractAddress = "" },
		"denominator": func(p *Params) { p.RewardMultiplierDen = 0 },
	} {
		p := valid()
		edit(&p)
		require.Error(t, p.Validate(), name)
	}
}
