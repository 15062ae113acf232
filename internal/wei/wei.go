// Package wei converts between human-readable decimal ether amounts and
// their fixed-point base-unit (wei) representation. All arithmetic is
// exact big-integer arithmetic; floating point is never involved.
package wei

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/nftbay/marketd/internal/domain"
)

// Decimals is the fixed-point precision of the currency.
const Decimals = 18

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ToBaseUnits parses a non-negative decimal string ("1", "0.5", ".25")
// into base units. It fails with domain.ErrInvalidAmount when the string
// is not a plain decimal number or carries more than Decimals fractional
// digits.
func ToBaseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("wei: empty amount: %w", domain.ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("wei: signed amount %q: %w", s, domain.ErrInvalidAmount)
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("wei: malformed amount %q: %w", s, domain.ErrInvalidAmount)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnly(intPart) || (fracPart != "" && !digitsOnly(fracPart)) {
		return nil, fmt.Errorf("wei: malformed amount %q: %w", s, domain.ErrInvalidAmount)
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("wei: amount %q exceeds %d fractional digits: %w", s, Decimals, domain.ErrInvalidAmount)
	}

	n, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("wei: malformed amount %q: %w", s, domain.ErrInvalidAmount)
	}
	n.Mul(n, unit)

	if fracPart != "" {
		// Right-pad the fraction to exactly Decimals digits.
		frac, ok := new(big.Int).SetString(fracPart+strings.Repeat("0", Decimals-len(fracPart)), 10)
		if !ok {
			return nil, fmt.Errorf("wei: malformed amount %q: %w", s, domain.ErrInvalidAmount)
		}
		n.Add(n, frac)
	}
	return n, nil
}

// ToDecimalString formats base units as a canonical decimal string: no
// trailing fractional zeros, no trailing dot, "0" for zero. It is the
// exact inverse of ToBaseUnits for any non-negative input.
func ToDecimalString(n *big.Int) string {
	if n == nil || n.Sign() == 0 {
		return "0"
	}
	q, r := new(big.Int).QuoRem(n, unit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%0*s", Decimals, r.String())
	frac = strings.TrimRight(frac, "0")
	return q.String() + "." + frac
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
