// Package money provides the integer-cent scalar type used for every
// monetary quantity in the simulator. Floats never represent money.
package money

import "math/big"

// Cents is a signed monetary quantity in integer cents. Overdrafts are
// legal, so this is always signed, never unsigned.
type Cents int64

const (
	// MaxCents and MinCents bound the saturating arithmetic below.
	MaxCents Cents = 1<<63 - 1
	MinCents Cents = -(1 << 63)
)

// Add returns a+b, saturating to MaxCents/MinCents on overflow.
func (a Cents) Add(b Cents) Cents {
	sum := big.NewInt(0).Add(big.NewInt(int64(a)), big.NewInt(int64(b)))
	return saturate(sum)
}

// AddChecked is Add but also reports whether the result saturated, so
// callers can emit a NumericSaturation event.
func (a Cents) AddChecked(b Cents) (Cents, bool) {
	sum := big.NewInt(0).Add(big.NewInt(int64(a)), big.NewInt(int64(b)))
	return saturate(sum), Saturated(sum)
}

// Sub returns a-b, saturating on overflow.
func (a Cents) Sub(b Cents) Cents {
	diff := big.NewInt(0).Sub(big.NewInt(int64(a)), big.NewInt(int64(b)))
	return saturate(diff)
}

// SubChecked is Sub but also reports whether the result saturated.
func (a Cents) SubChecked(b Cents) (Cents, bool) {
	diff := big.NewInt(0).Sub(big.NewInt(int64(a)), big.NewInt(int64(b)))
	return saturate(diff), Saturated(diff)
}

// Neg returns -a, saturating on overflow (only relevant for MinCents).
func (a Cents) Neg() Cents {
	return saturate(big.NewInt(0).Neg(big.NewInt(int64(a))))
}

// Abs returns |a|, saturating on overflow.
func (a Cents) Abs() Cents {
	if a < 0 {
		return a.Neg()
	}
	return a
}

// MulFrac multiplies a by the ratio num/den, truncating the fractional
// cent toward zero, computed via a 128-bit intermediate (big.Int) per
// ("all arithmetic performed in 128-bit intermediate then
// saturated to i64; fractional cents truncated toward zero").
func (a Cents) MulFrac(num, den int64) Cents {
	if den == 0 {
		return 0
	}
	prod := big.NewInt(0).Mul(big.NewInt(int64(a)), big.NewInt(num))
	q := big.NewInt(0).Quo(prod, big.NewInt(den)) // Quo truncates toward zero
	return saturate(q)
}

// MulBps computes a * bpsPerTick / 10_000, the shape used throughout
// the per-tick cost formulas (overdraft, collateral, liquidity
// opportunity).
func (a Cents) MulBps(bps int64) Cents {
	return a.MulFrac(bps, 10_000)
}

// Min returns the lesser of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// Max returns the greater of a and b.
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

func saturate(v *big.Int) Cents {
	max := big.NewInt(int64(MaxCents))
	min := big.NewInt(int64(MinCents))
	if v.Cmp(max) > 0 {
		return MaxCents
	}
	if v.Cmp(min) < 0 {
		return MinCents
	}
	return Cents(v.Int64())
}

// Saturated reports whether v overflowed int64 range before saturation,
// letting callers emit a NumericSaturation event without
// recomputing the big.Int arithmetic.
func Saturated(v *big.Int) bool {
	max := big.NewInt(int64(MaxCents))
	min := big.NewInt(int64(MinCents))
	return v.Cmp(max) > 0 || v.Cmp(min) < 0
}
