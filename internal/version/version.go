// Package version implements the arbitrary-precision identifiers that order
// migration scripts and changelog rows.
package version

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ID is an immutable, exactly comparable migration version.
type ID struct {
	n *big.Int
}

var errEmpty = errors.New("empty version")

// Parse reads an integer version. Values that a driver hands back in decimal or
// exponent form ("20240101000000.0", "2.0240101e+13") are accepted as long as
// they denote an integer exactly.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, errEmpty
	}
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return ID{n: n}, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || !r.IsInt() {
		return ID{}, fmt.Errorf("%q is not an integer", s)
	}
	return ID{n: new(big.Int).Set(r.Num())}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the ID was never parsed.
func (v ID) IsZero() bool { return v.n == nil }

// Cmp returns -1, 0 or +1. The zero ID sorts before every parsed ID.
func (v ID) Cmp(o ID) int {
	switch {
	case v.n == nil && o.n == nil:
		return 0
	case v.n == nil:
		return -1
	case o.n == nil:
		return 1
	}
	return v.n.Cmp(o.n)
}

func (v ID) Equal(o ID) bool { return v.Cmp(o) == 0 }

func (v ID) Less(o ID) bool { return v.Cmp(o) < 0 }

// String returns the canonical decimal digits, which also serve as the map key
// for set lookups.
func (v ID) String() string {
	if v.n == nil {
		return ""
	}
	return v.n.String()
}

// Digits is the number of decimal digits in the absolute value.
func (v ID) Digits() int {
	if v.n == nil {
		return 0
	}
	return len(new(big.Int).Abs(v.n).String())
}

// IsInt64 reports whether the ID fits a signed 64-bit integer.
func (v ID) IsInt64() bool { return v.n != nil && v.n.IsInt64() }

func (v ID) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *ID) UnmarshalText(b []byte) error {
	id, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = id
	return nil
}
