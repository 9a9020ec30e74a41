package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cosmos/cosmos-db"

	"sealedrps/internal/codec"
	"sealedrps/internal/ledger"
	"sealedrps/internal/state"
	"sealedrps/internal/telemetry"
	"sealedrps/internal/types"
)

const (
	AppVersion uint64 = 1
)

type RPSApp struct {
	*abci.BaseApplication

	db     dbm.DB
	logger log.Logger

	mu       sync.Mutex
	keeper   *ledger.Keeper
	lastHash []byte
}

// New loads the ledger from db. genesis is used only when db is empty.
func New(db dbm.DB, genesis types.Params, logger log.Logger, metrics *telemetry.LedgerMetrics) (*RPSApp, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	st, err := state.Load(db, genesis)
	if err != nil {
		return nil, err
	}
	k, err := ledger.NewKeeper(st, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &RPSApp{
		BaseApplication: abci.NewBaseApplication(),
		db:              db,
		logger:          logger.With("module", "app"),
		keeper:          k,
		lastHash:        k.AppHash(),
	}, nil
}

// Keeper exposes the ledger for in-process clients.
func (a *RPSApp) Keeper() *ledger.Keeper {
	return a.keeper
}

func (a *RPSApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "sealed-rps",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.keeper.Height(),
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *RPSApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkTxError(types.ErrInvalidRequest.Wrap(err.Error())), nil
	}
	if _, err := codec.RecoverSigner(env); err != nil {
		return checkTxError(types.ErrUnauthorized.Wrap(err.Error())), nil
	}
	return &abci.CheckTxResponse{Code: abci.CodeTypeOK}, nil
}

func checkTxError(err error) *abci.CheckTxResponse {
	space, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Codespace: space, Code: code, Log: logMsg}
}

func (a *RPSApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// Genesis params come from node configuration.
	return &abci.InitChainResponse{}, nil
}

func (a *RPSApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.keeper.SetHeight(req.Height)
	bi := ledger.BlockInfo{Height: req.Height, Time: req.Time}

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		txResults = append(txResults, a.deliverTx(txBytes, bi))
	}

	a.lastHash = a.keeper.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *RPSApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Returning an error halts the node rather than diverging from disk.
	if err := a.keeper.Save(a.db); err != nil {
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *RPSApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	// Paths:
	// - /game/<id>
	// - /player/<addr>/games
	// - /games/count
	// - /games/pending
	// - /ciphertext/<handle>
	// - /params
	// - /account/<addr>
	// - /house
	k := a.keeper
	height := k.Height()
	path := strings.TrimSpace(req.Path)

	var (
		v   any
		err error
	)
	switch {
	case path == "/params":
		v = k.Params()
	case path == "/house":
		v = map[string]any{"addr": types.HouseAccount, "balance": k.HouseBalance()}
	case path == "/games/count":
		v = map[string]any{"count": k.GameCount()}
	case path == "/games/pending":
		v = k.PendingSystemChoice()
	case strings.HasPrefix(path, "/game/"):
		var id uint64
		id, err = strconv.ParseUint(strings.TrimPrefix(path, "/game/"), 10, 64)
		if err != nil {
			err = types.ErrInvalidRequest.Wrap("invalid game id")
			break
		}
		v, err = k.Game(id)
	case strings.HasPrefix(path, "/player/") && strings.HasSuffix(path, "/games"):
		addr := strings.TrimSuffix(strings.TrimPrefix(path, "/player/"), "/games")
		v = k.PlayerGames(addr)
	case strings.HasPrefix(path, "/ciphertext/"):
		var h types.Handle
		h, err = types.ParseHandle(strings.TrimPrefix(path, "/ciphertext/"))
		if err != nil {
			err = types.ErrInvalidRequest.Wrap(err.Error())
			break
		}
		v, err = k.Ciphertext(h)
	case strings.HasPrefix(path, "/account/"):
		addr := types.NormalizeAddress(strings.TrimPrefix(path, "/account/"))
		v = map[string]any{"addr": addr, "balance": k.Balance(addr)}
	default:
		err = types.ErrInvalidRequest.Wrapf("unknown query path %q", path)
	}
	if err != nil {
		space, code, logMsg := errorsmod.ABCIInfo(err, false)
		return &abci.QueryResponse{Codespace: space, Code: code, Log: logMsg, Height: height}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &abci.QueryResponse{Code: abci.CodeTypeOK, Value: b, Height: height}, nil
}

func (a *RPSApp) deliverTx(txBytes []byte, bi ledger.BlockInfo) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return a.txError("", types.ErrInvalidRequest.Wrap(err.Error()))
	}
	rcpt, err := a.route(env, bi)
	if err != nil {
		return a.txError(env.Type, err)
	}
	res := &abci.ExecTxResult{Code: abci.CodeTypeOK, Events: rcpt.Events}
	if data, err := json.Marshal(rcpt); err == nil {
		res.Data = data
	}
	return res
}

func (a *RPSApp) txError(typ string, err error) *abci.ExecTxResult {
	space, code, logMsg := errorsmod.ABCIInfo(err, false)
	a.keeper.Metrics().TxRejected.WithLabelValues(typ, space, strconv.FormatUint(uint64(code), 10)).Inc()
	a.logger.Debug("tx rejected", "type", typ, "codespace", space, "code", code, "log", logMsg)
	return &abci.ExecTxResult{Codespace: space, Code: code, Log: logMsg}
}

// route authenticates env, decodes its value and hands it to the keeper.
func (a *RPSApp) route(env codec.TxEnvelope, bi ledger.BlockInfo) (*ledger.Receipt, error) {
	k := a.keeper
	signer, err := a.authenticate(env)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case codec.TypeBankMint:
		var msg codec.BankMintTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		return k.Mint(bi, msg.To, msg.Amount)

	case codec.TypeBankSend:
		var msg codec.BankSendTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.From); err != nil {
			return nil, err
		}
		return k.Send(bi, msg.From, msg.To, msg.Amount)

	case codec.TypeHouseFund:
		var msg codec.HouseFundTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.From); err != nil {
			return nil, err
		}
		return k.FundHouse(bi, msg.From, msg.Amount)

	case codec.TypeCreateGame:
		var msg codec.CreateGameTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Player); err != nil {
			return nil, err
		}
		return k.CreateGame(bi, msg.Player, msg.BetAmount, msg.Handle, msg.Proof)

	case codec.TypeRecordSystemChoice:
		var msg codec.RecordSystemChoiceTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Provider); err != nil {
			return nil, err
		}
		return k.RecordSystemChoice(bi, msg.Provider, msg.GameID, msg.Handle, msg.Proof)

	case codec.TypeRequestDecryption:
		var msg codec.RequestDecryptionTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Caller); err != nil {
			return nil, err
		}
		return k.RequestDecryption(bi, msg.Caller, msg.GameID)

	case codec.TypeSettleGame:
		var msg codec.SettleGameTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Caller); err != nil {
			return nil, err
		}
		return k.SettleGame(bi, msg.Caller, msg.GameID, msg.Values)

	case codec.TypeClaimReward:
		var msg codec.ClaimRewardTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Player); err != nil {
			return nil, err
		}
		return k.ClaimReward(bi, msg.Player, msg.GameID)

	case codec.TypeClaimMultipleRewards:
		var msg codec.ClaimMultipleRewardsTx
		if err := decodeValue(env, &msg); err != nil {
			return nil, err
		}
		if err := requireActor(signer, msg.Player); err != nil {
			return nil, err
		}
		return k.ClaimMultipleRewards(bi, msg.Player, msg.GameIDs)

	default:
		return nil, types.ErrInvalidRequest.Wrapf("unknown tx type: %s", env.Type)
	}
}

func decodeValue(env codec.TxEnvelope, v any) error {
	if err := json.Unmarshal(env.Value, v); err != nil {
		return types.ErrInvalidRequest.Wrapf("bad %s value: %v", env.Type, err)
	}
	return nil
}
