package models

import (
	"math/big"
	"strings"
	"testing"
)

func TestParseAmountToWei(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"0.001234", "1234000000000000", true},
		{"1", "1000000000000000000", true},
		{"1.5", "1500000000000000000", true},
		{".5", "500000000000000000", true},
		{"0.0000000000000000019", "1", true},
		{"0.001999", "1999000000000000", true},
		{"", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"-1", "", false},
		{"0.-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmountToWei(tt.input)
			if !tt.valid {
				if err == nil {
					t.Fatalf("ParseAmountToWei(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmountToWei(%q) unexpected error: %v", tt.input, err)
			}
			want, _ := new(big.Int).SetString(tt.expected, 10)
			if got.Cmp(want) != 0 {
				t.Errorf("ParseAmountToWei(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestRandomVerificationAmountRange(t *testing.T) {
	low, _ := ParseAmountToWei("0.001")
	high, _ := ParseAmountToWei("0.002")

	for i := 0; i < 500; i++ {
		amount := RandomVerificationAmount()
		if !strings.HasPrefix(amount, "0.001") || len(amount) != len("0.001234") {
			t.Fatalf("unexpected amount format %q", amount)
		}
		wei, err := ParseAmountToWei(amount)
		if err != nil {
			t.Fatalf("generated amount %q does not parse: %v", amount, err)
		}
		if wei.Cmp(low) < 0 || wei.Cmp(high) >= 0 {
			t.Fatalf("amount %q outside [0.001, 0.002)", amount)
		}
	}
}

func TestFormatWei(t *testing.T) {
	wei, _ := ParseAmountToWei("0.001234")
	if got := FormatWei(wei); got != "0.001234000" {
		t.Errorf("FormatWei = %q", got)
	}
	if got := FormatWei(nil); got != "0" {
		t.Errorf("FormatWei(nil) = %q", got)
	}
}
