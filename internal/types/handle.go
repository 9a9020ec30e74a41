package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// Handle is an opaque reference to a ciphertext stored on the ledger. It
// carries no information about the plaintext.
type Handle [HandleSize]byte

func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseHandle(s string) (Handle, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"))
	if err != nil {
		return Handle{}, fmt.Errorf("handle: %w", err)
	}
	if len(raw) != HandleSize {
		return Handle{}, fmt.Errorf("handle: expected %d bytes, got %d", HandleSize, len(raw))
	}
	var h Handle
	copy(h[:], raw)
	return h, nil
}

// HandleKind tags which game value a ciphertext represents.
type HandleKind string

const (
	HandleKindPlayerChoice HandleKind = "player"
	HandleKindSystemChoice HandleKind = "system"
	HandleKindResult       HandleKind = "result"
)

// CiphertextRecord is the ledger copy of a ciphertext and its decrypt ACL.
type CiphertextRecord struct {
	Handle  Handle     `json:"handle"`
	C1      []byte     `json:"c1"`
	C2      []byte     `json:"c2"`
	GameID  uint64     `json:"gameId"`
	Kind    HandleKind `json:"kind"`
	Allowed []string   `json:"allowed"`
}

// IsAllowed reports whether addr may request user decryption of the record.
func (r CiphertextRecord) IsAllowed(addr string) bool {
	for _, a := range r.Allowed {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}
