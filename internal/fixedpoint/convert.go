package fixedpoint

import (
	"errors"
	"math/big"
)

var (
	// ErrArithmeticOverflow is returned when an intermediate product exceeds
	// the 256-bit working width. Under a valid asset configuration this is
	// unreachable and indicates a registration bug.
	ErrArithmeticOverflow = errors.New("fixedpoint: intermediate exceeds 256 bits")

	// ErrDivisionByZero is returned when the computed denominator is zero,
	// e.g. conversion against a zero price.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

// maxIntermediateBits bounds every intermediate product. Amounts are
// unsigned fixed-point integers with 256-bit semantics.
const maxIntermediateBits = 256

// pow10 returns 10^n without mutating shared state.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToAccountingUnits converts amount from an asset's native precision into
// the accounting unit's precision at the given price:
//
//	result = amount * price * 10^target / (10^source * 10^pricePrecision)
//
// Multiplication happens before division to preserve precision; the result
// is truncated toward zero, favoring the ledger over the depositor.
func ToAccountingUnits(amount *big.Int, sourcePrecision uint8, price *big.Int, pricePrecision uint8, targetPrecision uint8) (*big.Int, error) {
	numerator := new(big.Int).Mul(amount, price)
	numerator.Mul(numerator, pow10(targetPrecision))
	if numerator.BitLen() > maxIntermediateBits {
		return nil, ErrArithmeticOverflow
	}

	denominator := pow10(sourcePrecision)
	denominator.Mul(denominator, pow10(pricePrecision))
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}

	return numerator.Quo(numerator, denominator), nil
}

// FromAccountingUnits is the inverse of ToAccountingUnits: it converts an
// amount in accounting units back into an asset's native precision at the
// given price. Truncates toward zero. A zero price makes the denominator
// zero and fails with ErrDivisionByZero.
func FromAccountingUnits(amount *big.Int, targetPrecision uint8, price *big.Int, pricePrecision uint8, sourcePrecision uint8) (*big.Int, error) {
	numerator := new(big.Int).Mul(amount, pow10(sourcePrecision))
	numerator.Mul(numerator, pow10(pricePrecision))
	if numerator.BitLen() > maxIntermediateBits {
		return nil, ErrArithmeticOverflow
	}

	denominator := new(big.Int).Mul(price, pow10(targetPrecision))
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}

	return numerator.Quo(numerator, denominator), nil
}

// Rescale converts an amount between two precisions of the same asset
// (identity price). Truncates toward zero when scaling down.
func Rescale(amount *big.Int, fromPrecision, toPrecision uint8) *big.Int {
	if fromPrecision == toPrecision {
		return new(big.Int).Set(amount)
	}
	if toPrecision > fromPrecision {
		return new(big.Int).Mul(amount, pow10(toPrecision-fromPrecision))
	}
	return new(big.Int).Quo(new(big.Int).Set(amount), pow10(fromPrecision-toPrecision))
}

// MinOutputAfterSlippage applies a basis-point slippage tolerance to a quote:
//
//	minOut = estimate * (10000 - toleranceBps) / 10000
//
// toleranceBps above 10000 clamps minOut to zero.
func MinOutputAfterSlippage(estimate *big.Int, toleranceBps uint64) *big.Int {
	if toleranceBps >= 10_000 {
		return new(big.Int)
	}
	minOut := new(big.Int).Mul(estimate, big.NewInt(10_000-int64(toleranceBps)))
	return minOut.Quo(minOut, big.NewInt(10_000))
}
