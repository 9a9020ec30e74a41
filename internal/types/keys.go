package types

import (
	"encoding/binary"
	"strings"
)

const (
	// ModuleName defines the ledger module name. It doubles as the error
	// codespace and as the house account that holds escrowed bets.
	ModuleName = "rps"

	// HouseAccount holds escrow and pays rewards.
	HouseAccount = ModuleName
)

var (
	// NextGameIDKey stores the next game id as big-endian u64.
	NextGameIDKey = []byte{0x01}

	// GameKeyPrefix stores Game by id: GameKeyPrefix || u64be(gameID).
	GameKeyPrefix = []byte{0x02}

	// PlayerGameKeyPrefix indexes games by player:
	// PlayerGameKeyPrefix || len(addr) || addr || u64be(gameID).
	PlayerGameKeyPrefix = []byte{0x03}

	// CiphertextKeyPrefix stores CiphertextRecord by handle: CiphertextKeyPrefix || handle.
	CiphertextKeyPrefix = []byte{0x04}

	// AccountKeyPrefix stores balances: AccountKeyPrefix || addr.
	AccountKeyPrefix = []byte{0x05}

	// NonceKeyPrefix stores the last accepted tx nonce per signer.
	NonceKeyPrefix = []byte{0x06}

	// ParamsKey stores the JSON-encoded Params.
	ParamsKey = []byte{0x07}

	// HeightKey stores the last committed block height.
	HeightKey = []byte{0x08}
)

func GameKey(gameID uint64) []byte {
	bz := make([]byte, 1+8)
	bz[0] = GameKeyPrefix[0]
	binary.BigEndian.PutUint64(bz[1:], gameID)
	return bz
}

func PlayerGamesPrefix(player string) []byte {
	bz := make([]byte, 0, 2+len(player))
	bz = append(bz, PlayerGameKeyPrefix[0], byte(len(player)))
	return append(bz, player...)
}

func PlayerGameKey(player string, gameID uint64) []byte {
	prefix := PlayerGamesPrefix(player)
	bz := make([]byte, len(prefix)+8)
	copy(bz, prefix)
	binary.BigEndian.PutUint64(bz[len(prefix):], gameID)
	return bz
}

func CiphertextKey(h Handle) []byte {
	return append([]byte{CiphertextKeyPrefix[0]}, h[:]...)
}

func AccountKey(addr string) []byte {
	return append([]byte{AccountKeyPrefix[0]}, addr...)
}

func NonceKey(signer string) []byte {
	return append([]byte{NonceKeyPrefix[0]}, signer...)
}

// NormalizeAddress is the canonical form of an account address used as a map
// and store key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
