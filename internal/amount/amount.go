// Package amount is the single boundary where on-chain integer amounts are
// converted to and from human-readable decimal strings. All amounts are
// expressed on-chain in the smallest native-currency unit (18-decimal fixed
// point); nothing else in the codebase is allowed to do this arithmetic.
package amount

import (
	"fmt"
	"math/big"

	"github.com/chainraise/chainraise/internal/types"
	"github.com/shopspring/decimal"
)

// Decimals of the native currency's smallest unit.
const Decimals = 18

// ToWei converts a human-readable decimal string ("1.5") into the smallest
// native-currency unit. The conversion is exact; more than 18 fractional
// digits is rejected rather than rounded.
func ToWei(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed amount %q", types.ErrInvalidInput, s)
	}

	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", types.ErrInvalidInput, s, Decimals)
	}

	return shifted.BigInt(), nil
}

// ToWeiPositive converts like ToWei and additionally requires the result to
// be strictly positive.
func ToWeiPositive(s string) (*big.Int, error) {
	wei, err := ToWei(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero, got %q", types.ErrInvalidInput, s)
	}
	return wei, nil
}

// FromWei converts a smallest-unit integer into its canonical decimal string.
// The round trip FromWei(ToWei(s)) preserves the numeric value exactly.
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// Progress derives the funding progress percentage from raw smallest-unit
// values: min(100, raised/goal*100) when goal > 0, else 0.
func Progress(goal, raised *big.Int) float64 {
	if goal == nil || goal.Sign() <= 0 {
		return 0
	}
	if raised == nil || raised.Sign() <= 0 {
		return 0
	}

	pct := decimal.NewFromBigInt(raised, 0).
		Div(decimal.NewFromBigInt(goal, 0)).
		Mul(decimal.NewFromInt(100))

	out, _ := pct.Float64()
	if out > 100 {
		return 100
	}
	return out
}

// FormatBalance renders a decimal balance string with four fixed decimal
// places for display, falling back to "0.0000" for unparseable input.
func FormatBalance(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0.0000"
	}
	return d.StringFixed(4)
}
