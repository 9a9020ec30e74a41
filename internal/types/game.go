package types

import (
	"fmt"
	"strings"
)

// Choice encodes a hand: 0=Rock, 1=Scissors, 2=Paper.
type Choice uint8

const (
	ChoiceRock     Choice = 0
	ChoiceScissors Choice = 1
	ChoicePaper    Choice = 2

	// ChoiceBound is the number of valid choices.
	ChoiceBound = 3

	// Unrevealed marks a decrypted choice field before settlement.
	Unrevealed uint8 = 0xff
)

func (c Choice) Valid() bool {
	return c < ChoiceBound
}

func (c Choice) String() string {
	switch c {
	case ChoiceRock:
		return "Rock"
	case ChoiceScissors:
		return "Scissors"
	case ChoicePaper:
		return "Paper"
	default:
		return "Unknown"
	}
}

func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r", "0":
		return ChoiceRock, nil
	case "scissors", "s", "1":
		return ChoiceScissors, nil
	case "paper", "p", "2":
		return ChoicePaper, nil
	}
	return 0, fmt.Errorf("unknown choice %q", s)
}

// Result is the settled outcome from the player's point of view.
type Result uint8

const (
	ResultPending    Result = 0
	ResultPlayerWin  Result = 1
	ResultPlayerLoss Result = 2
	ResultDraw       Result = 3
)

func (r Result) String() string {
	switch r {
	case ResultPending:
		return "Pending"
	case ResultPlayerWin:
		return "Win"
	case ResultPlayerLoss:
		return "Loss"
	case ResultDraw:
		return "Draw"
	default:
		return "Unknown"
	}
}

// OutcomeOffset keeps the encrypted outcome system-player+OutcomeOffset
// non-negative.
const OutcomeOffset = 3

// ResultOf decides a round in cleartext.
func ResultOf(player, system Choice) Result {
	switch {
	case player == system:
		return ResultDraw
	case (player+1)%ChoiceBound == system:
		// Rock beats Scissors, Scissors beats Paper, Paper beats Rock.
		return ResultPlayerWin
	default:
		return ResultPlayerLoss
	}
}

// ResultFromOutcome maps the cleartext of the encrypted outcome, which lies in
// [1, 5], to a result code.
func ResultFromOutcome(v uint64) (Result, error) {
	if v < 1 || v > 2*(ChoiceBound-1)+1 {
		return ResultPending, fmt.Errorf("outcome %d out of range", v)
	}
	switch v % ChoiceBound {
	case 1:
		return ResultPlayerWin, nil
	case 2:
		return ResultPlayerLoss, nil
	default:
		return ResultDraw, nil
	}
}

// GameStatus is the lifecycle stage of a game.
type GameStatus string

const (
	StatusCreated             GameStatus = "created"
	StatusDecryptionRequested GameStatus = "decryption-requested"
	StatusSettled             GameStatus = "settled"
	StatusRewarded            GameStatus = "rewarded"
	StatusSettledNoReward     GameStatus = "settled-no-reward"
)

type Game struct {
	ID        uint64 `json:"id"`
	Player    string `json:"player"`
	BetAmount uint64 `json:"betAmount"`

	EncryptedPlayerChoice Handle `json:"encryptedPlayerChoice"`
	EncryptedSystemChoice Handle `json:"encryptedSystemChoice"`
	EncryptedResult       Handle `json:"encryptedResult"`

	DecryptedPlayerChoice uint8  `json:"decryptedPlayerChoice"`
	DecryptedSystemChoice uint8  `json:"decryptedSystemChoice"`
	FinalResult           Result `json:"finalResult"`
	Reward                uint64 `json:"reward"`

	Settled             bool `json:"settled"`
	Rewarded            bool `json:"rewarded"`
	DecryptionRequested bool `json:"decryptionRequested,omitempty"`

	Timestamp     int64 `json:"timestamp"`
	CreatedHeight int64 `json:"createdHeight"`
	SettledAt     int64 `json:"settledAt,omitempty"`
}

func (g Game) HasSystemChoice() bool {
	return !g.EncryptedSystemChoice.IsZero()
}

func (g Game) Status() GameStatus {
	switch {
	case g.Rewarded:
		return StatusRewarded
	case g.Settled && g.Reward == 0:
		return StatusSettledNoReward
	case g.Settled:
		return StatusSettled
	case g.DecryptionRequested:
		return StatusDecryptionRequested
	default:
		return StatusCreated
	}
}

// Claimable reports whether owner may claim the game's reward now.
func (g Game) Claimable(owner string) bool {
	return g.Settled && !g.Rewarded && g.Reward > 0 && strings.EqualFold(g.Player, owner)
}

// Handles lists the game's ciphertext handles in player, system, result order.
func (g Game) Handles() []Handle {
	return []Handle{g.EncryptedPlayerChoice, g.EncryptedSystemChoice, g.EncryptedResult}
}

// Decryption is one cleartext with the proof that it is the decryption of a
// ledger ciphertext under the network key.
type Decryption struct {
	Handle Handle `json:"handle"`
	Value  uint64 `json:"value"`
	// Share is d = x*c1 for the stored ciphertext (c1, c2).
	Share []byte `json:"share"`
	// Proof is a Chaum-Pedersen proof that log_G(networkKey) = log_c1(Share).
	Proof []byte `json:"proof"`
}

// SettlementValues is the decrypted input to settle.
type SettlementValues struct {
	PlayerChoice Decryption `json:"playerChoice"`
	SystemChoice Decryption `json:"systemChoice"`
	Result       Decryption `json:"result"`
}
