package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cosmos/cosmos-db"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/state"
	"sealedrps/internal/telemetry"
	"sealedrps/internal/types"
)

// BlockInfo carries the height and time a transition executes at.
type BlockInfo struct {
	Height int64
	Time   time.Time
}

// Receipt describes a successful transition.
type Receipt struct {
	GameID  uint64       `json:"gameId,omitempty"`
	GameIDs []uint64     `json:"gameIds,omitempty"`
	Amount  uint64       `json:"amount,omitempty"`
	Handle  types.Handle `json:"handle"`
	Events  []abci.Event `json:"-"`
}

// Keeper owns the game ledger state. Every state-changing method validates
// all preconditions before its first write and runs under one lock, so each
// call is an atomic check-then-write.
type Keeper struct {
	mu sync.Mutex
	st *state.State

	networkKey sealcrypto.Point
	logger     log.Logger
	metrics    *telemetry.LedgerMetrics
}

func NewKeeper(st *state.State, logger log.Logger, metrics *telemetry.LedgerMetrics) (*Keeper, error) {
	if st == nil {
		return nil, fmt.Errorf("ledger keeper: state is nil")
	}
	if err := st.Params.Validate(); err != nil {
		return nil, err
	}
	pk, err := sealcrypto.PointFromBytesCanonical(st.Params.NetworkKeyBytes())
	if err != nil {
		return nil, fmt.Errorf("ledger keeper: network key: %w", err)
	}
	if pk.IsIdentity() {
		return nil, fmt.Errorf("ledger keeper: network key is the identity")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewLedgerMetrics(nil)
	}
	return &Keeper{
		st:         st,
		networkKey: pk,
		logger:     logger.With("module", "x/"+types.ModuleName),
		metrics:    metrics,
	}, nil
}

func (k *Keeper) Metrics() *telemetry.LedgerMetrics {
	return k.metrics
}

// ---- Block lifecycle ----

func (k *Keeper) Height() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.Height
}

func (k *Keeper) SetHeight(h int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.st.Height = h
}

func (k *Keeper) AppHash() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.AppHash()
}

func (k *Keeper) Save(db dbm.DB) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.Save(db)
}

// AcceptNonce enforces strictly increasing nonces per signer.
func (k *Keeper) AcceptNonce(signer string, nonce uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	signer = types.NormalizeAddress(signer)
	if last, ok := k.st.NonceMax[signer]; ok && nonce <= last {
		return types.ErrUnauthorized.Wrapf("nonce %d replayed (last accepted %d)", nonce, last)
	}
	k.st.NonceMax[signer] = nonce
	return nil
}

// ---- Queries ----

func (k *Keeper) Params() types.Params {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.Params
}

func (k *Keeper) Game(id uint64) (types.Game, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	g, ok := k.st.Games[id]
	if !ok {
		return types.Game{}, types.ErrNotFound.Wrapf("game %d", id)
	}
	return *g, nil
}

// PlayerGames returns the player's game ids in creation order.
func (k *Keeper) PlayerGames(player string) []uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.GamesOf(types.NormalizeAddress(player))
}

func (k *Keeper) GameCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.NextGameID - 1
}

func (k *Keeper) PendingSystemChoice() []uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.PendingSystemChoice()
}

func (k *Keeper) Ciphertext(h types.Handle) (types.CiphertextRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rec, ok := k.st.Ciphertexts[h]
	if !ok {
		return types.CiphertextRecord{}, types.ErrNotFound.Wrapf("ciphertext %s", h)
	}
	out := *rec
	out.Allowed = append([]string(nil), rec.Allowed...)
	return out, nil
}

func (k *Keeper) Balance(addr string) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.Balance(types.NormalizeAddress(addr))
}

func (k *Keeper) HouseBalance() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.st.Balance(types.HouseAccount)
}

// ---- helpers ----

func newEvent(typ string, attrs map[string]string) abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: key, Value: attrs[key], Index: true})
	}
	return ev
}

func (k *Keeper) isSettler(addr string) bool {
	return k.st.Params.IsSettler(addr)
}

func (k *Keeper) aclFor(player string) []string {
	allowed := []string{player}
	for _, s := range k.st.Params.Settlers {
		s = types.NormalizeAddress(s)
		if s != player {
			allowed = append(allowed, s)
		}
	}
	return allowed
}

func ciphertextOf(rec *types.CiphertextRecord) (sealcrypto.Ciphertext, error) {
	return sealcrypto.DecodeCiphertext(append(append([]byte(nil), rec.C1...), rec.C2...))
}
