package math

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision used for token amounts and rates
const Decimals = 18

var (
	// Wad is 1.0 in 18-decimal fixed point
	Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	bpsDenominator = big.NewInt(10000)

	ErrNotRepresentable = errors.New("value not representable in base units")
)

// BpsOf returns amount * bps / 10000, rounded down
func BpsOf(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Div(out, bpsDenominator)
}

// MulWad returns amount * rate / 1e18, rounded down
func MulWad(amount, rate *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, rate)
	return out.Div(out, Wad)
}

// ProfitBps expresses profit as basis points of principal, truncated
func ProfitBps(profit, principal *big.Int) int64 {
	if principal == nil || principal.Sign() == 0 || profit == nil {
		return 0
	}
	out := new(big.Int).Mul(profit, bpsDenominator)
	return out.Quo(out, principal).Int64()
}

// ParseUnits converts a human decimal string ("1.1", "100") into base units
// with the given number of decimals.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return DecimalToUnits(d, decimals)
}

// DecimalToUnits scales d into base units, refusing fractional remainders
func DecimalToUnits(d decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrNotRepresentable, d.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a human decimal string
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
