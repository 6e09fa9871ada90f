package market

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DecodeAddress base58-decodes a Solana address and checks its length.
func DecodeAddress(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("address %q: got %d bytes, want 32", s, len(raw))
	}
	return raw, nil
}

// IsValidAddress reports whether s is a well-formed Solana address.
// Providers occasionally echo symbols or EVM addresses in the address
// field; those are discarded before merging.
func IsValidAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// IsOnCurve reports whether the address decodes to a point on the
// ed25519 curve. Regular mint accounts are on-curve; program-derived
// addresses are not.
func IsOnCurve(s string) bool {
	raw, err := DecodeAddress(s)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
