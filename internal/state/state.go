package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	dbm "github.com/cosmos/cosmos-db"

	"sealedrps/internal/types"
)

type State struct {
	Height int64        `json:"height"`
	Params types.Params `json:"params"`

	NextGameID  uint64                                   `json:"nextGameId"`
	Accounts    map[string]uint64                        `json:"accounts"`
	NonceMax    map[string]uint64                        `json:"nonceMax,omitempty"` // signer -> last accepted tx.nonce, for replay protection
	Games       map[uint64]*types.Game                   `json:"games"`
	PlayerGames map[string][]uint64                      `json:"playerGames"` // player -> game ids in creation order
	Ciphertexts map[types.Handle]*types.CiphertextRecord `json:"ciphertexts"`
}

func NewState(params types.Params) *State {
	return &State{
		Params:      params,
		NextGameID:  1,
		Accounts:    map[string]uint64{},
		NonceMax:    map[string]uint64{},
		Games:       map[uint64]*types.Game{},
		PlayerGames: map[string][]uint64{},
		Ciphertexts: map[types.Handle]*types.CiphertextRecord{},
	}
}

// Load reads the state from db. An empty db yields a fresh state carrying
// genesis; a populated db keeps its stored params.
func Load(db dbm.DB, genesis types.Params) (*State, error) {
	st := NewState(genesis)

	bz, err := db.Get(types.ParamsKey)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	if bz == nil {
		return st, nil
	}
	if err := json.Unmarshal(bz, &st.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	if bz, err = db.Get(types.HeightKey); err != nil {
		return nil, fmt.Errorf("read height: %w", err)
	}
	if len(bz) == 8 {
		st.Height = int64(binary.BigEndian.Uint64(bz))
	}
	if bz, err = db.Get(types.NextGameIDKey); err != nil {
		return nil, fmt.Errorf("read next game id: %w", err)
	}
	if len(bz) == 8 {
		st.NextGameID = binary.BigEndian.Uint64(bz)
	}
	if st.NextGameID == 0 {
		st.NextGameID = 1
	}

	err = iteratePrefix(db, types.AccountKeyPrefix, func(k, v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("invalid balance encoding for %q", k[1:])
		}
		st.Accounts[string(k[1:])] = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = iteratePrefix(db, types.NonceKeyPrefix, func(k, v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("invalid nonce encoding for %q", k[1:])
		}
		st.NonceMax[string(k[1:])] = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = iteratePrefix(db, types.GameKeyPrefix, func(_, v []byte) error {
		var g types.Game
		if err := json.Unmarshal(v, &g); err != nil {
			return fmt.Errorf("decode game: %w", err)
		}
		st.Games[g.ID] = &g
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys are ordered by u64be(id), so each player's slice comes out in
	// creation order.
	err = iteratePrefix(db, types.PlayerGameKeyPrefix, func(k, _ []byte) error {
		if len(k) < 2 || len(k) != 2+int(k[1])+8 {
			return fmt.Errorf("invalid player index key %x", k)
		}
		player := string(k[2 : 2+int(k[1])])
		id := binary.BigEndian.Uint64(k[2+int(k[1]):])
		st.PlayerGames[player] = append(st.PlayerGames[player], id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = iteratePrefix(db, types.CiphertextKeyPrefix, func(_, v []byte) error {
		var rec types.CiphertextRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decode ciphertext: %w", err)
		}
		st.Ciphertexts[rec.Handle] = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Save writes the full state in one synced batch.
func (s *State) Save(db dbm.DB) error {
	batch := db.NewBatch()
	defer func() { _ = batch.Close() }()

	set := func(k, v []byte) error {
		if err := batch.Set(k, v); err != nil {
			return fmt.Errorf("write %x: %w", k, err)
		}
		return nil
	}

	params, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := set(types.ParamsKey, params); err != nil {
		return err
	}
	if err := set(types.HeightKey, u64be(uint64(s.Height))); err != nil {
		return err
	}
	if err := set(types.NextGameIDKey, u64be(s.NextGameID)); err != nil {
		return err
	}
	for addr, bal := range s.Accounts {
		if err := set(types.AccountKey(addr), u64be(bal)); err != nil {
			return err
		}
	}
	for signer, n := range s.NonceMax {
		if err := set(types.NonceKey(signer), u64be(n)); err != nil {
			return err
		}
	}
	for id, g := range s.Games {
		bz, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode game %d: %w", id, err)
		}
		if err := set(types.GameKey(id), bz); err != nil {
			return err
		}
	}
	for player, ids := range s.PlayerGames {
		for _, id := range ids {
			if err := set(types.PlayerGameKey(player, id), []byte{1}); err != nil {
				return err
			}
		}
	}
	for h, rec := range s.Ciphertexts {
		bz, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode ciphertext %s: %w", h, err)
		}
		if err := set(types.CiphertextKey(h), bz); err != nil {
			return err
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash over a normalized view: maps become slices
	// ordered by key.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	games := make([]*types.Game, 0, len(s.Games))
	for _, g := range s.Games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	cts := make([]*types.CiphertextRecord, 0, len(s.Ciphertexts))
	for _, rec := range s.Ciphertexts {
		cts = append(cts, rec)
	}
	sort.Slice(cts, func(i, j int) bool { return cts[i].Handle.String() < cts[j].Handle.String() })

	normalized := struct {
		Height      int64                     `json:"height"`
		Params      types.Params              `json:"params"`
		NextGameID  uint64                    `json:"nextGameId"`
		Accounts    []accountKV               `json:"accounts"`
		NonceMax    []nonceKV                 `json:"nonceMax,omitempty"`
		Games       []*types.Game             `json:"games"`
		Ciphertexts []*types.CiphertextRecord `json:"ciphertexts"`
	}{
		Height:      s.Height,
		Params:      s.Params,
		NextGameID:  s.NextGameID,
		Accounts:    accounts,
		NonceMax:    nonces,
		Games:       games,
		Ciphertexts: cts,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// Transfer moves amount atomically: on error neither balance changes.
func (s *State) Transfer(from, to string, amount uint64) error {
	if s.Accounts[from] < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", s.Accounts[from], amount)
	}
	if from != to && s.Accounts[to] > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", s.Accounts[to], amount)
	}
	s.Accounts[from] -= amount
	s.Accounts[to] += amount
	return nil
}

// ---- Games ----

// AddGame stores g under the next id and indexes it by player.
func (s *State) AddGame(g types.Game) uint64 {
	id := s.NextGameID
	s.NextGameID++
	g.ID = id
	s.Games[id] = &g
	s.PlayerGames[g.Player] = append(s.PlayerGames[g.Player], id)
	return id
}

func (s *State) GamesOf(player string) []uint64 {
	return append([]uint64(nil), s.PlayerGames[player]...)
}

// PendingSystemChoice lists games still waiting for randomness, by id.
func (s *State) PendingSystemChoice() []uint64 {
	ids := make([]uint64, 0)
	for id, g := range s.Games {
		if !g.HasSystemChoice() && !g.Settled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func u64be(x uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, x)
	return b
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func iteratePrefix(db dbm.DB, prefix []byte, fn func(k, v []byte) error) error {
	it, err := db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("iterate %x: %w", prefix, err)
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
