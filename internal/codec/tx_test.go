package codec

import (
	"encoding/json"
	"testing"

	"sealedrps/internal/types"
)

func TestDecodeTxEnvelope_OK(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":  TypeBankMint,
		"value": map[string]any{"to": "alice", "amount": 123},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Type != TypeBankMint {
		t.Fatalf("unexpected type: %q", env.Type)
	}

	var v BankMintTx
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if v.To != "alice" || v.Amount != 123 {
		t.Fatalf("unexpected value: %+v", v)
	}
}

func TestDecodeTxEnvelope_MissingType(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"value": map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodeTxEnvelope(b); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeTxEnvelope_InvalidJSON(t *testing.T) {
	if _, err := DecodeTxEnvelope([]byte("{")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCreateGameTx_HandleIsHexOnTheWire(t *testing.T) {
	var h types.Handle
	h[31] = 0x2a
	b, err := json.Marshal(CreateGameTx{Player: "0xabc", BetAmount: 5, Handle: h, Proof: []byte{1, 2}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["handle"] != h.String() {
		t.Fatalf("handle encoded as %#v, want %q", raw["handle"], h.String())
	}
	var back CreateGameTx
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal tx: %v", err)
	}
	if back.Handle != h {
		t.Fatalf("handle mismatch after decode")
	}
}
