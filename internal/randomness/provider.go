// Package randomness is the reference randomness collaborator: it answers
// every pending game with an encrypted uniform system choice.
package randomness

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"cosmossdk.io/log"

	"sealedrps/internal/engine"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/types"
)

const DefaultPollInterval = 2 * time.Second

type Provider struct {
	ledger   ledgerclient.Ledger
	engine   *engine.Engine
	rand     io.Reader
	interval time.Duration
	logger   log.Logger
}

type Option func(*Provider)

// WithRand replaces crypto/rand as the source of choices.
func WithRand(r io.Reader) Option {
	return func(p *Provider) { p.rand = r }
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.interval = d }
}

func WithLogger(logger log.Logger) Option {
	return func(p *Provider) { p.logger = logger.With("module", "randomness") }
}

func NewProvider(l ledgerclient.Ledger, e *engine.Engine, opts ...Option) *Provider {
	p := &Provider{
		ledger:   l,
		engine:   e,
		rand:     rand.Reader,
		interval: DefaultPollInterval,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Draw picks a choice uniformly from [0, ChoiceBound).
func (p *Provider) Draw() (types.Choice, error) {
	n, err := rand.Int(p.rand, big.NewInt(types.ChoiceBound))
	if err != nil {
		return 0, fmt.Errorf("draw system choice: %w", err)
	}
	return types.Choice(n.Uint64()), nil
}

// Supply records an encrypted system choice for one game.
func (p *Provider) Supply(ctx context.Context, gameID uint64) error {
	c, err := p.Draw()
	if err != nil {
		return err
	}
	in, err := p.engine.EncryptChoice(ctx, p.ledger.Address(), c)
	if err != nil {
		return err
	}
	if _, err := p.ledger.RecordSystemChoice(ctx, gameID, in.Handle, in.Proof); err != nil {
		return err
	}
	p.logger.Info("system choice supplied", "gameId", gameID, "handle", in.Handle.String())
	return nil
}

// Tick answers every game currently pending and returns how many it supplied.
// Games another provider instance answered first are skipped.
func (p *Provider) Tick(ctx context.Context) (int, error) {
	ids, err := p.ledger.PendingSystemChoice(ctx)
	if err != nil {
		return 0, err
	}
	supplied := 0
	var errs []error
	for _, id := range ids {
		err := p.Supply(ctx, id)
		switch {
		case err == nil:
			supplied++
		case errors.Is(err, types.ErrAlreadySet), errors.Is(err, types.ErrAlreadySettled):
		default:
			p.logger.Error("supply failed", "gameId", id, "err", err)
			errs = append(errs, fmt.Errorf("game %d: %w", id, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return supplied, errors.Join(errs...)
}

// Run polls until ctx ends.
func (p *Provider) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("randomness tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
