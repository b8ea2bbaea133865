// Package fixed provides the big-integer fixed-point arithmetic the engine
// uses for prices, quantities and quote amounts. float64 cannot satisfy the
// truncating-division and no-overflow invariants the settlement math
// requires, so every amount that crosses the matching/settlement boundary is
// a *big.Int here and nowhere does it become a float.
package fixed

import (
	"fmt"
	"math/big"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// Bps is a basis-point rate, 1/10_000. Valid range is [0, 10_000].
type Bps uint32

const BpsDenominator = 10_000

// Pow10 returns 10^n as a fresh *big.Int.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Zero returns a fresh zero-valued amount.
func Zero() *big.Int { return new(big.Int) }

// FromUint64 lifts a uint64 into the fixed-point domain.
func FromUint64(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// MulDivTrunc computes floor(x*y/denom). denom must be non-zero; callers are
// expected to have validated this ahead of time (a zero denominator here is
// always a programming error, not bad input).
func MulDivTrunc(x, y, denom *big.Int) *big.Int {
	if denom.Sign() == 0 {
		panic("fixed: MulDivTrunc with zero denominator")
	}
	num := new(big.Int).Mul(x, y)
	if num.CmpAbs(ethmath.MaxBig256) > 0 {
		panic("fixed: MulDivTrunc intermediate product overflows 256 bits")
	}
	return num.Quo(num, denom)
}

// QuoteAmount computes quantity * price / 10^baseDecimals, truncated, per
// the settlement fee-arithmetic rule.
func QuoteAmount(quantity, price *big.Int, baseDecimals uint8) *big.Int {
	return MulDivTrunc(quantity, price, Pow10(baseDecimals))
}

// BpsTrunc computes floor(amount * bps / 10_000). The fee is never rounded
// up: the payer is never charged more than the exact rate, and the
// recipient receives less than the exact fraction by under one unit.
func BpsTrunc(amount *big.Int, bps Bps) *big.Int {
	return MulDivTrunc(amount, big.NewInt(int64(bps)), big.NewInt(BpsDenominator))
}

// Min returns the lesser of two amounts without mutating either, via
// go-ethereum's common/math helper (the same big-int discipline on-chain
// amount arithmetic uses).
func Min(a, b *big.Int) *big.Int {
	return ethmath.BigMin(new(big.Int).Set(a), new(big.Int).Set(b))
}

// ParseDecimal parses a human-entered decimal string (e.g. "1.50") at the
// wire boundary into a fixed-point integer scaled by 10^decimals, the way a
// CLI or REST front-end would accept user input before it reaches the core.
func ParseDecimal(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fixed: parse decimal %q: %w", s, err)
	}
	scaled := d.Shift(int32(decimals)).Truncate(0)
	bi, ok := new(big.Int).SetString(scaled.String(), 10)
	if !ok {
		return nil, fmt.Errorf("fixed: scaled value %q is not an integer", scaled.String())
	}
	return bi, nil
}

// FormatDecimal renders a fixed-point integer back to a human decimal
// string for display at the wire/CLI boundary.
func FormatDecimal(v *big.Int, decimals uint8) string {
	d := decimal.NewFromBigInt(v, -int32(decimals))
	return d.String()
}
