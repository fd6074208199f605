package ai

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRecoverJSONStrict(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want map[string]any
	}{
		{
			name: "bare object",
			resp: `{"product_name": "Valve Assembly", "quantity": 12}`,
			want: map[string]any{"product_name": "Valve Assembly", "quantity": float64(12)},
		},
		{
			name: "markdown fenced",
			resp: "```json\n{\"product_name\": \"Valve Assembly\"}\n```",
			want: map[string]any{"product_name": "Valve Assembly"},
		},
		{
			name: "prose around object",
			resp: `Here is the extracted data: {"unit": "EA"} Let me know if you need more.`,
			want: map[string]any{"unit": "EA"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, tier, err := RecoverJSON(tt.resp)
			if err != nil {
				t.Fatalf("RecoverJSON() error = %v", err)
			}
			if tier != TierStrict {
				t.Errorf("tier = %q, want %q", tier, TierStrict)
			}
			var got map[string]any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("unmarshal recovered JSON: %v", err)
			}
			for k, want := range tt.want {
				if got[k] != want {
					t.Errorf("field %q = %v, want %v", k, got[k], want)
				}
			}
		})
	}
}

func TestRecoverJSONTruncatedArray(t *testing.T) {
	resp := `{"clins": [{"clin_number": "0001", "product_name": "Pump"}, {"clin_num`

	raw, tier, err := RecoverJSON(resp)
	if err != nil {
		t.Fatalf("RecoverJSON() error = %v", err)
	}
	if tier != TierRepaired {
		t.Errorf("tier = %q, want %q", tier, TierRepaired)
	}

	var got struct {
		CLINs []struct {
			CLINNumber  string `json:"clin_number"`
			ProductName string `json:"product_name"`
		} `json:"clins"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal repaired JSON: %v", err)
	}
	if len(got.CLINs) != 1 {
		t.Fatalf("recovered %d CLINs, want 1 complete entry", len(got.CLINs))
	}
	if got.CLINs[0].CLINNumber != "0001" {
		t.Errorf("clin_number = %q, want %q", got.CLINs[0].CLINNumber, "0001")
	}
}

func TestRecoverJSONUnterminatedString(t *testing.T) {
	resp := `{"product_name": "Hydraulic Pump", "description": "High pressure un`

	raw, tier, err := RecoverJSON(resp)
	if err != nil {
		t.Fatalf("RecoverJSON() error = %v", err)
	}
	if tier != TierRepaired {
		t.Errorf("tier = %q, want %q", tier, TierRepaired)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal repaired JSON: %v", err)
	}
	if got["product_name"] != "Hydraulic Pump" {
		t.Errorf("product_name = %v, want %q", got["product_name"], "Hydraulic Pump")
	}
}

func TestRecoverJSONNoJSON(t *testing.T) {
	_, _, err := RecoverJSON("I could not find any contract line items in this document.")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("error = %v, want ErrNoJSON", err)
	}
}

func TestExtractObjects(t *testing.T) {
	resp := `[{"clin_number": "0001"}, {"clin_number": "0002"}, {"clin_number": "00`

	objects := ExtractObjects(resp)
	if len(objects) != 2 {
		t.Fatalf("extracted %d objects, want 2", len(objects))
	}
	for i, want := range []string{"0001", "0002"} {
		var got struct {
			CLINNumber string `json:"clin_number"`
		}
		if err := json.Unmarshal(objects[i], &got); err != nil {
			t.Fatalf("unmarshal fragment %d: %v", i, err)
		}
		if got.CLINNumber != want {
			t.Errorf("fragment %d clin_number = %q, want %q", i, got.CLINNumber, want)
		}
	}
}
