package model

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"whole number", "99", "99.00", false},
		{"with cents", "123.45", "123.45", false},
		{"one decimal", "99.9", "99.90", false},
		{"empty string", "", "0.00", false},
		{"rounds half up", "0.005", "0.01", false},
		{"invalid string", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMoney(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseMoney(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoney_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"number", `19.99`, "19.99"},
		{"integer", `150`, "150.00"},
		{"string", `"19.99"`, "19.99"},
		{"null", `null`, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Money
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if m.String() != tt.want {
				t.Errorf("Unmarshal(%s) = %s, want %s", tt.input, m, tt.want)
			}
		})
	}
}

func TestMoney_UnmarshalJSONRejectsGarbage(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`"twelve"`), &m); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestMoney_MarshalJSONIsNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		Price Money `json:"price"`
	}{Price: MustParseMoney("12.5")})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(b) != `{"price":12.50}` {
		t.Errorf("Marshal = %s", b)
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	// Float math would give 0.30000000000000004 here.
	sum := MustParseMoney("0.10").Add(MustParseMoney("0.20"))
	if !sum.Equal(MustParseMoney("0.30")) {
		t.Errorf("0.10 + 0.20 = %s", sum)
	}

	if got := MustParseMoney("19.99").Times(3); got.String() != "59.97" {
		t.Errorf("19.99 × 3 = %s", got)
	}
}
