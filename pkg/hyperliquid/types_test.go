package hyperliquid

import (
	"encoding/json"
	"testing"
)

func TestDecodeSizeVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"bare number", `-2.5`, -2.5},
		{"object with size", `{"size": 3.25}`, 3.25},
		{"single element list", `[-1.5]`, -1.5},
		{"list wrapping object", `[{"size": 4.0}]`, 4.0},
		{"empty list", `[]`, 0},
		{"absent", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSize(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("decodeSize(%s): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("decodeSize(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeSizeMalformed(t *testing.T) {
	if _, err := decodeSize(json.RawMessage(`"not a size"`)); err == nil {
		t.Error("expected an error for an unrecognized payload shape")
	}
}

func TestPositionPayloadNormalize(t *testing.T) {
	var payload positionPayload
	raw := `{"symbol": "SOL/USDC:USDC", "size": {"size": -50}, "notional": 7150, "leverage": 10, "entryPrice": 143.0}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}

	pos, err := payload.normalize()
	if err != nil {
		t.Fatal(err)
	}
	if pos.Size != -50 {
		t.Errorf("size = %v, want -50", pos.Size)
	}
	if pos.Symbol != "SOL/USDC:USDC" || pos.Notional != 7150 || pos.Leverage != 10 {
		t.Errorf("normalized position mismatch: %+v", pos)
	}
}
