package session

import "fmt"

// Stage names the step of a play that failed.
type Stage string

const (
	StageEncrypt           Stage = "encrypt"
	StageCreate            Stage = "create"
	StageLoad              Stage = "load"
	StageAwaitRandomness   Stage = "await-randomness"
	StageRequestDecryption Stage = "request-decryption"
	StageAuthorize         Stage = "authorize"
	StageDecrypt           Stage = "decrypt"
	StageSettle            Stage = "settle"
	StageClaim             Stage = "claim"
)

// Funds tells the caller where the bet stands after a failure.
type Funds string

const (
	// FundsUntouched: nothing was escrowed.
	FundsUntouched Funds = "untouched"
	// FundsEscrowed: the bet is held by the house; Resume can finish the game.
	FundsEscrowed Funds = "escrowed"
	// FundsOwed: the game is settled and its reward waits on the ledger.
	// Resume or a manual claim collects it.
	FundsOwed Funds = "owed"
	// FundsPaidOut: the reward was claimed.
	FundsPaidOut Funds = "paid-out"
	// FundsUnknown: a write may or may not have landed; read the ledger.
	FundsUnknown Funds = "unknown"
)

type StageError struct {
	Stage  Stage
	GameID uint64
	Funds  Funds
	Err    error
}

func (e *StageError) Error() string {
	if e.GameID == 0 {
		return fmt.Sprintf("%s failed (funds %s): %v", e.Stage, e.Funds, e.Err)
	}
	return fmt.Sprintf("%s failed for game %d (funds %s): %v", e.Stage, e.GameID, e.Funds, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, gameID uint64, funds Funds, err error) *StageError {
	return &StageError{Stage: stage, GameID: gameID, Funds: funds, Err: err}
}
