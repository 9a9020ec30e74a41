package ledgerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	cmttypes "github.com/cometbft/cometbft/types"

	"sealedrps/internal/authz"
	"sealedrps/internal/codec"
	"sealedrps/internal/ledger"
	"sealedrps/internal/types"
)

// RPC reaches the ledger through a CometBFT node. Writes are signed by the
// wallet and broadcast with commit.
type RPC struct {
	node   *rpchttp.HTTP
	wallet authz.Wallet
	logger log.Logger

	mu        sync.Mutex
	lastNonce uint64
}

var _ Ledger = (*RPC)(nil)

func DialRPC(remote string, wallet authz.Wallet, logger log.Logger) (*RPC, error) {
	node, err := rpchttp.New(remote)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", remote, err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RPC{node: node, wallet: wallet, logger: logger.With("module", "ledgerclient")}, nil
}

func (c *RPC) Address() string {
	return c.wallet.Address()
}

// nextNonce is time-based so a restarted client never reuses a nonce.
func (c *RPC) nextNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := uint64(time.Now().UnixNano())
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// signTx builds and signs the envelope for one message.
func (c *RPC) signTx(ctx context.Context, typ string, msg any) ([]byte, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	env := codec.TxEnvelope{
		Type:   typ,
		Value:  value,
		Nonce:  strconv.FormatUint(c.nextNonce(), 10),
		Signer: c.wallet.Address(),
	}
	env.Sig, err = c.wallet.SignDigest(ctx, codec.SignDigest(env))
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (c *RPC) broadcast(ctx context.Context, typ string, msg any) (*ledger.Receipt, error) {
	tx, err := c.signTx(ctx, typ, msg)
	if err != nil {
		return nil, err
	}
	// Past this point the tx may land; finish waiting even if ctx ends.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := c.node.BroadcastTxCommit(context.WithoutCancel(ctx), cmttypes.Tx(tx))
	if err != nil {
		c.logger.Error("broadcast failed", "type", typ, "err", err)
		return nil, types.ErrOutcomeUnknown.Wrapf("%s: %v", typ, err)
	}
	if res.CheckTx.Code != abci.CodeTypeOK {
		return nil, abciError(res.CheckTx.Codespace, res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.TxResult.Code != abci.CodeTypeOK {
		return nil, abciError(res.TxResult.Codespace, res.TxResult.Code, res.TxResult.Log)
	}
	rcpt := &ledger.Receipt{Events: res.TxResult.Events}
	if len(res.TxResult.Data) > 0 {
		if err := json.Unmarshal(res.TxResult.Data, rcpt); err != nil {
			return nil, fmt.Errorf("decode %s receipt: %w", typ, err)
		}
	}
	c.logger.Debug("tx committed", "type", typ, "height", res.Height, "hash", res.Hash.String())
	return rcpt, nil
}

// abciError rebuilds the registered sentinel behind an ABCI result so callers
// can match it with errors.Is.
func abciError(codespace string, code uint32, logMsg string) error {
	return errorsmod.ABCIError(codespace, code, logMsg)
}

func (c *RPC) query(ctx context.Context, path string, out any) error {
	res, err := c.node.ABCIQuery(ctx, path, cmtbytes.HexBytes(nil))
	if err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	if res.Response.Code != abci.CodeTypeOK {
		return abciError(res.Response.Codespace, res.Response.Code, res.Response.Log)
	}
	if err := json.Unmarshal(res.Response.Value, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ---- Writes ----

func (c *RPC) CreateGame(ctx context.Context, bet uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeCreateGame, codec.CreateGameTx{Player: c.Address(), BetAmount: bet, Handle: handle, Proof: proof})
}

func (c *RPC) RecordSystemChoice(ctx context.Context, gameID uint64, handle types.Handle, proof []byte) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeRecordSystemChoice, codec.RecordSystemChoiceTx{Provider: c.Address(), GameID: gameID, Handle: handle, Proof: proof})
}

func (c *RPC) RequestDecryption(ctx context.Context, gameID uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeRequestDecryption, codec.RequestDecryptionTx{Caller: c.Address(), GameID: gameID})
}

func (c *RPC) SettleGame(ctx context.Context, gameID uint64, vals types.SettlementValues) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeSettleGame, codec.SettleGameTx{Caller: c.Address(), GameID: gameID, Values: vals})
}

func (c *RPC) ClaimReward(ctx context.Context, gameID uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeClaimReward, codec.ClaimRewardTx{Player: c.Address(), GameID: gameID})
}

func (c *RPC) ClaimMultipleRewards(ctx context.Context, gameIDs []uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeClaimMultipleRewards, codec.ClaimMultipleRewardsTx{Player: c.Address(), GameIDs: gameIDs})
}

func (c *RPC) FundHouse(ctx context.Context, amount uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeHouseFund, codec.HouseFundTx{From: c.Address(), Amount: amount})
}

// Mint credits to on devnets that enable bank/mint.
func (c *RPC) Mint(ctx context.Context, to string, amount uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeBankMint, codec.BankMintTx{To: to, Amount: amount})
}

func (c *RPC) Send(ctx context.Context, to string, amount uint64) (*ledger.Receipt, error) {
	return c.broadcast(ctx, codec.TypeBankSend, codec.BankSendTx{From: c.Address(), To: to, Amount: amount})
}

// ---- Queries ----

func (c *RPC) Game(ctx context.Context, id uint64) (types.Game, error) {
	var g types.Game
	err := c.query(ctx, "/game/"+strconv.FormatUint(id, 10), &g)
	return g, err
}

func (c *RPC) PlayerGames(ctx context.Context, player string) ([]uint64, error) {
	var ids []uint64
	err := c.query(ctx, "/player/"+types.NormalizeAddress(player)+"/games", &ids)
	return ids, err
}

func (c *RPC) GameCount(ctx context.Context) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	err := c.query(ctx, "/games/count", &out)
	return out.Count, err
}

func (c *RPC) PendingSystemChoice(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := c.query(ctx, "/games/pending", &ids)
	return ids, err
}

func (c *RPC) Ciphertext(ctx context.Context, h types.Handle) (types.CiphertextRecord, error) {
	var rec types.CiphertextRecord
	err := c.query(ctx, "/ciphertext/"+h.String(), &rec)
	return rec, err
}

func (c *RPC) Params(ctx context.Context) (types.Params, error) {
	var p types.Params
	err := c.query(ctx, "/params", &p)
	return p, err
}

func (c *RPC) Balance(ctx context.Context, addr string) (uint64, error) {
	var out struct {
		Balance uint64 `json:"balance"`
	}
	err := c.query(ctx, "/account/"+types.NormalizeAddress(addr), &out)
	return out.Balance, err
}

func (c *RPC) HouseBalance(ctx context.Context) (uint64, error) {
	var out struct {
		Balance uint64 `json:"balance"`
	}
	err := c.query(ctx, "/house", &out)
	return out.Balance, err
}
