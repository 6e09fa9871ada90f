package market

import (
	"testing"

	"github.com/mr-tron/base58"
)

const wrappedSOL = "So11111111111111111111111111111111111111112"

func TestIsValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{wrappedSOL, true},
		{base58.Encode(make([]byte, 32)), true}, // system program
		{"", false},
		{"not-base58-0OIl", false},
		{"abc", false}, // decodes short
		{"So11111111111111111111111111111111111111112X", false}, // wrong length
	}
	for _, tc := range cases {
		if got := IsValidAddress(tc.addr); got != tc.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestDecodeAddress(t *testing.T) {
	raw, err := DecodeAddress(wrappedSOL)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(raw))
	}

	if _, err := DecodeAddress("tooshort"); err == nil {
		t.Error("expected error for short address")
	}
}

func TestIsOnCurve(t *testing.T) {
	if IsOnCurve("") {
		t.Error("empty address cannot be on curve")
	}
	if IsOnCurve("tooshort") {
		t.Error("short address cannot be on curve")
	}
	// On-curve implies well-formed.
	if IsOnCurve(wrappedSOL) && !IsValidAddress(wrappedSOL) {
		t.Error("on-curve address must be valid")
	}
}
