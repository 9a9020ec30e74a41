// Package session runs one player's game end to end: encrypt, create, wait
// for randomness, decrypt, settle and claim.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"cosmossdk.io/log"

	"sealedrps/internal/authz"
	"sealedrps/internal/coordinator"
	"sealedrps/internal/engine"
	"sealedrps/internal/gateway"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/settlement"
	"sealedrps/internal/types"
)

const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultRandomnessTimeout = 2 * time.Minute
)

type Config struct {
	Domain            authz.Domain  `mapstructure:"domain"`
	AuthorizationDays uint64        `mapstructure:"authorization-days"`
	PollInterval      time.Duration `mapstructure:"poll-interval"`
	RandomnessTimeout time.Duration `mapstructure:"randomness-timeout"`
	AutoClaim         bool          `mapstructure:"auto-claim"`
}

func DefaultConfig() Config {
	return Config{
		AuthorizationDays: authz.DefaultDurationDays,
		PollInterval:      DefaultPollInterval,
		RandomnessTimeout: DefaultRandomnessTimeout,
		AutoClaim:         true,
	}
}

// Outcome is a finished (settled) game as the player sees it.
type Outcome struct {
	Game         types.Game
	PlayerChoice types.Choice
	SystemChoice types.Choice
	Result       types.Result
	Reward       uint64
	Claimed      bool
}

// grant is a signed authorization with the key pair replies are sealed to.
type grant struct {
	auth    authz.Authorization
	sig     []byte
	keypair authz.Keypair
}

type Session struct {
	ledger  ledgerclient.Ledger
	engine  *engine.Engine
	coord   *coordinator.Coordinator
	wallet  authz.Wallet
	submit  *settlement.Submitter
	claimer *settlement.Claimer
	cfg     Config
	now     func() time.Time
	logger  log.Logger

	mu    sync.Mutex
	grant *grant
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger log.Logger) Option {
	return func(s *Session) { s.logger = logger.With("module", "session") }
}

// New wires a session. The ledger client must act as the wallet's address.
func New(l ledgerclient.Ledger, e *engine.Engine, c *coordinator.Coordinator, w authz.Wallet, cfg Config, opts ...Option) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RandomnessTimeout <= 0 {
		cfg.RandomnessTimeout = DefaultRandomnessTimeout
	}
	s := &Session{
		ledger: l,
		engine: e,
		coord:  c,
		wallet: w,
		cfg:    cfg,
		now:    time.Now,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.submit = settlement.NewSubmitter(l, s.logger)
	s.claimer = settlement.NewClaimer(l, s.logger)
	return s
}

// Play wagers bet on choice and drives the game to settlement.
func (s *Session) Play(ctx context.Context, choice types.Choice, bet uint64) (*Outcome, error) {
	if !choice.Valid() {
		return nil, stageErr(StageEncrypt, 0, FundsUntouched, types.ErrInvalidRequest.Wrapf("choice %d", choice))
	}
	in, err := s.engine.EncryptChoice(ctx, s.wallet.Address(), choice)
	if err != nil {
		return nil, stageErr(StageEncrypt, 0, FundsUntouched, err)
	}

	rcpt, err := s.ledger.CreateGame(ctx, bet, in.Handle, in.Proof)
	if err != nil {
		funds := FundsUntouched
		if errors.Is(err, types.ErrOutcomeUnknown) {
			funds = FundsUnknown
		}
		return nil, stageErr(StageCreate, 0, funds, err)
	}
	s.logger.Info("game created", "gameId", rcpt.GameID, "bet", bet)
	return s.advance(ctx, rcpt.GameID)
}

// Resume reconciles an existing game with the ledger and finishes whatever
// remains to be done.
func (s *Session) Resume(ctx context.Context, gameID uint64) (*Outcome, error) {
	return s.advance(ctx, gameID)
}

func (s *Session) advance(ctx context.Context, id uint64) (*Outcome, error) {
	g, err := s.ledger.Game(ctx, id)
	if err != nil {
		return nil, stageErr(StageLoad, id, FundsUnknown, err)
	}

	if !g.Settled {
		if g, err = s.awaitRandomness(ctx, g); err != nil {
			return nil, stageErr(StageAwaitRandomness, id, FundsEscrowed, err)
		}
		// Sign first so a refused signature leaves the game untouched.
		gr, err := s.authorize(ctx)
		if err != nil {
			return nil, stageErr(StageAuthorize, id, FundsEscrowed, err)
		}
		if !g.DecryptionRequested {
			if _, err := s.ledger.RequestDecryption(ctx, id); err != nil {
				return nil, stageErr(StageRequestDecryption, id, writeFunds(err), err)
			}
		}
		plain, err := s.coord.RequestDecryption(ctx, coordinator.Request{
			Pairs:         s.pairs(g),
			Authorization: gr.auth,
			Signature:     gr.sig,
			Keypair:       gr.keypair,
			User:          s.wallet.Address(),
		})
		if err != nil {
			return nil, stageErr(StageDecrypt, id, FundsEscrowed, err)
		}
		if _, err := s.submit.Submit(ctx, g, plain); err != nil && !errors.Is(err, types.ErrAlreadySettled) {
			if !errors.Is(err, types.ErrOutcomeUnknown) {
				return nil, stageErr(StageSettle, id, FundsEscrowed, err)
			}
			// The settle may have landed; the ledger decides.
			if g, err = s.ledger.Game(ctx, id); err != nil || !g.Settled {
				return nil, stageErr(StageSettle, id, FundsUnknown, types.ErrOutcomeUnknown.Wrapf("game %d", id))
			}
		}
		if g, err = s.ledger.Game(ctx, id); err != nil {
			return nil, stageErr(StageLoad, id, FundsEscrowed, err)
		}
	}

	if s.cfg.AutoClaim && g.Claimable(s.wallet.Address()) {
		if _, err := s.claimer.Claim(ctx, id); err != nil && !errors.Is(err, types.ErrAlreadyRewarded) {
			return nil, stageErr(StageClaim, id, claimFunds(err), err)
		}
		if g, err = s.ledger.Game(ctx, id); err != nil {
			return nil, stageErr(StageLoad, id, FundsPaidOut, err)
		}
	}
	return outcomeOf(g), nil
}

// writeFunds classifies the bet after a failed write on an escrowed game.
func writeFunds(err error) Funds {
	if errors.Is(err, types.ErrOutcomeUnknown) {
		return FundsUnknown
	}
	return FundsEscrowed
}

// claimFunds classifies the reward after a failed claim on a settled game.
func claimFunds(err error) Funds {
	if errors.Is(err, types.ErrOutcomeUnknown) {
		return FundsUnknown
	}
	return FundsOwed
}

func outcomeOf(g types.Game) *Outcome {
	return &Outcome{
		Game:         g,
		PlayerChoice: types.Choice(g.DecryptedPlayerChoice),
		SystemChoice: types.Choice(g.DecryptedSystemChoice),
		Result:       g.FinalResult,
		Reward:       g.Reward,
		Claimed:      g.Rewarded,
	}
}

// awaitRandomness polls until the system choice is on the ledger or the
// randomness timeout passes.
func (s *Session) awaitRandomness(ctx context.Context, g types.Game) (types.Game, error) {
	if g.HasSystemChoice() {
		return g, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RandomnessTimeout)
	defer cancel()
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return g, types.ErrSystemChoicePending.Wrapf("game %d: no randomness after %s", g.ID, s.cfg.RandomnessTimeout)
			}
			return g, ctx.Err()
		case <-t.C:
		}
		next, err := s.ledger.Game(ctx, g.ID)
		if err != nil {
			return g, err
		}
		if next.HasSystemChoice() {
			return next, nil
		}
	}
}

// authorize returns the cached grant while it is valid, else asks the wallet
// to sign a new one.
func (s *Session) authorize(ctx context.Context) (*grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant != nil && !s.grant.auth.Expired(s.now()) {
		return s.grant, nil
	}
	kp, err := authz.GenerateKeypair(nil)
	if err != nil {
		return nil, err
	}
	a, err := authz.BuildAuthorization(s.cfg.Domain, kp.Public[:], []string{s.engine.Contract()}, s.now(), s.cfg.AuthorizationDays)
	if err != nil {
		return nil, err
	}
	sig, err := s.wallet.SignTypedData(ctx, a)
	if err != nil {
		return nil, err
	}
	s.grant = &grant{auth: a, sig: sig, keypair: kp}
	s.logger.Debug("decryption authorized", "expires", a.ExpiresAt().UTC())
	return s.grant, nil
}

func (s *Session) pairs(g types.Game) []gateway.HandleContractPair {
	out := make([]gateway.HandleContractPair, 0, 3)
	for _, h := range g.Handles() {
		out = append(out, gateway.HandleContractPair{Handle: h, ContractAddress: s.engine.Contract()})
	}
	return out
}
