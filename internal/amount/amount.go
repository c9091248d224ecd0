// Package amount parses and formats ledger amounts. Balances are base-10
// integer strings in the asset's smallest indivisible unit; all arithmetic
// goes through math/big so no floating point ever touches a balance.
package amount

import (
	"fmt"
	"math/big"
)

// Parse decodes a non-negative base-10 integer string. It rejects signs,
// decimals, scientific notation and anything else big.Int would otherwise
// tolerate from a non-decimal base.
func Parse(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("amount %q is not a base-10 integer", s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", s)
	}
	return n, nil
}

// ParsePositive decodes an amount and additionally rejects zero.
func ParsePositive(s string) (*big.Int, error) {
	n, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if n.Sign() == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return n, nil
}

// Format renders an amount back to its canonical decimal string.
func Format(n *big.Int) string {
	return n.String()
}

// Add returns a+b for two stored balance strings.
func Add(a, b string) (string, error) {
	x, err := Parse(a)
	if err != nil {
		return "", err
	}
	y, err := Parse(b)
	if err != nil {
		return "", err
	}
	return Format(new(big.Int).Add(x, y)), nil
}

// Sub returns a-b. The result must not go negative; callers check
// sufficiency with Cmp before subtracting.
func Sub(a, b string) (string, error) {
	x, err := Parse(a)
	if err != nil {
		return "", err
	}
	y, err := Parse(b)
	if err != nil {
		return "", err
	}
	if x.Cmp(y) < 0 {
		return "", fmt.Errorf("subtraction would underflow: %s - %s", a, b)
	}
	return Format(new(big.Int).Sub(x, y)), nil
}

// Cmp compares two balance strings, returning -1, 0 or +1.
func Cmp(a, b string) (int, error) {
	x, err := Parse(a)
	if err != nil {
		return 0, err
	}
	y, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}
