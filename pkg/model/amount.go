package model

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit quantity. It is a value type, so copying an
// entity copies its balances, and it encodes as a decimal string.
type Amount uint256.Int

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	return Amount(*uint256.NewInt(v))
}

// AmountFromUint256 converts a uint256 value.
func AmountFromUint256(v *uint256.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount(*v)
}

// ParseAmount parses a decimal or 0x-prefixed hex string.
func ParseAmount(s string) (Amount, error) {
	var v uint256.Int
	if err := v.UnmarshalText([]byte(s)); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount(v), nil
}

// Uint256 returns a copy of a as *uint256.Int.
func (a Amount) Uint256() *uint256.Int {
	v := uint256.Int(a)
	return &v
}

// Add returns a+b, saturating at the maximum 256-bit value.
func (a Amount) Add(b Amount) Amount {
	sum, overflow := new(uint256.Int).AddOverflow(a.Uint256(), b.Uint256())
	if overflow {
		return Amount(*new(uint256.Int).SetAllOne())
	}
	return Amount(*sum)
}

// Sub returns a-b, saturating at zero.
func (a Amount) Sub(b Amount) Amount {
	diff, underflow := new(uint256.Int).SubOverflow(a.Uint256(), b.Uint256())
	if underflow {
		return Amount{}
	}
	return Amount(*diff)
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.Uint256().Cmp(b.Uint256())
}

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool {
	return a.Uint256().IsZero()
}

func (a Amount) String() string {
	return a.Uint256().Dec()
}

// MarshalText implements encoding.TextMarshaler with a value receiver so map
// values and non-addressable fields encode as decimal strings too.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
