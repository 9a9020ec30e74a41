package app

import (
	"strconv"

	"sealedrps/internal/codec"
	"sealedrps/internal/types"
)

// authenticate verifies the envelope signature and consumes its nonce. It
// returns the normalized signer address.
func (a *RPSApp) authenticate(env codec.TxEnvelope) (string, error) {
	signer, err := codec.RecoverSigner(env)
	if err != nil {
		return "", types.ErrUnauthorized.Wrap(err.Error())
	}
	nonce, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return "", types.ErrUnauthorized.Wrapf("invalid tx.nonce %q", env.Nonce)
	}
	if err := a.keeper.AcceptNonce(signer, nonce); err != nil {
		return "", err
	}
	return signer, nil
}

// requireActor binds the message's acting account to the tx signer.
func requireActor(signer, actor string) error {
	if actor == "" {
		return types.ErrInvalidRequest.Wrap("missing actor")
	}
	if types.NormalizeAddress(actor) != signer {
		return types.ErrUnauthorized.Wrapf("tx signer mismatch: signer=%s actor=%s", signer, types.NormalizeAddress(actor))
	}
	return nil
}
