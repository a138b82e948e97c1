package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"46.00", 4600, false},
		{"46", 4600, false},
		{"0", 0, false},
		{"25.50", 2550, false},
		{"0.01", 1, false},
		{"-12.30", -1230, false},
		{"1.005", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromDecimalRejectsSubMinorPrecision(t *testing.T) {
	d := decimal.RequireFromString("10.001")
	if _, err := FromDecimal(d); err != ErrTooPrecise {
		t.Fatalf("expected ErrTooPrecise, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{4600, "46.00"},
		{0, "0.00"},
		{1, "0.01"},
		{2550, "25.50"},
		{-1230, "-12.30"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoundToUnit(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{49, 0},
		{50, 100},
		{100, 100},
		{149, 100},
		{150, 200},
		{4600, 4600},
		{-49, 0},
		{-50, -100},
		{-150, -200},
	}
	for _, tt := range tests {
		if got := RoundToUnit(tt.in); got != tt.want {
			t.Errorf("RoundToUnit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
