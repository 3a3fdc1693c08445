// Package fixedpoint implements the scale-aware integer arithmetic for the
// vault: price accretion, mint-unit conversion, and the haircut/spread math
// the repo engine depends on. All quantities are int64 values scaled by
// Scale; every operation is checked and fails with domain.ErrArithmetic
// instead of wrapping. MulDiv widens to big.Int so the intermediate product
// can never overflow before the division, and always truncates toward zero.
package fixedpoint

import (
	"fmt"
	"math"
	"math/big"

	"github.com/alanyoungcy/billvault/internal/domain"
)

const (
	// Scale is the fixed-point scale factor: 7 fractional digits.
	Scale int64 = 10_000_000

	// Par is the face value a claim unit converges to at maturity: 1.0 in
	// scaled terms.
	Par int64 = 1 * Scale

	// BasisPoints is the denominator for haircut and spread percentages.
	BasisPoints int64 = 10_000
)

var (
	minInt64 = big.NewInt(math.MinInt64)
	maxInt64 = big.NewInt(math.MaxInt64)
)

// Add returns a+b, failing on int64 overflow.
func Add(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("fixedpoint: add %d + %d: %w", a, b, domain.ErrArithmetic)
	}
	return sum, nil
}

// Sub returns a-b, failing on int64 overflow.
func Sub(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, fmt.Errorf("fixedpoint: sub %d - %d: %w", a, b, domain.ErrArithmetic)
	}
	return diff, nil
}

// MulDiv returns a*b/c with the product carried at full width before the
// division. The quotient truncates toward zero. It fails when c is zero or
// the result does not fit in int64.
func MulDiv(a, b, c int64) (int64, error) {
	if c == 0 {
		return 0, fmt.Errorf("fixedpoint: muldiv %d * %d / 0: %w", a, b, domain.ErrArithmetic)
	}
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	// big.Int Quo truncates toward zero, matching the contract exactly.
	q := prod.Quo(prod, big.NewInt(c))
	if q.Cmp(minInt64) < 0 || q.Cmp(maxInt64) > 0 {
		return 0, fmt.Errorf("fixedpoint: muldiv %d * %d / %d out of range: %w", a, b, c, domain.ErrArithmetic)
	}
	return q.Int64(), nil
}

// MintedUnits converts a cash payment into claim units at the given price:
// payAmount * par / price, truncated.
func MintedUnits(payAmount, price, par int64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("fixedpoint: minted units at price %d: %w", price, domain.ErrArithmetic)
	}
	return MulDiv(payAmount, par, price)
}

// CollateralValue marks collateral units at the given price:
// units * price / par.
func CollateralValue(units, price, par int64) (int64, error) {
	if par <= 0 {
		return 0, fmt.Errorf("fixedpoint: collateral value with par %d: %w", par, domain.ErrArithmetic)
	}
	return MulDiv(units, price, par)
}

// MaxCash returns the most cash lendable against the collateral after the
// haircut: collateralValue * (BasisPoints - haircutBps) / BasisPoints.
func MaxCash(units, price, par, haircutBps int64) (int64, error) {
	if haircutBps < 0 || haircutBps >= BasisPoints {
		return 0, fmt.Errorf("fixedpoint: haircut %d bps: %w", haircutBps, domain.ErrArithmetic)
	}
	value, err := CollateralValue(units, price, par)
	if err != nil {
		return 0, err
	}
	return MulDiv(value, BasisPoints-haircutBps, BasisPoints)
}

// Repurchase returns the amount a borrower must repay to close a repo:
// cashOut * (BasisPoints + spreadBps) / BasisPoints.
func Repurchase(cashOut, spreadBps int64) (int64, error) {
	if spreadBps < 0 {
		return 0, fmt.Errorf("fixedpoint: spread %d bps: %w", spreadBps, domain.ErrArithmetic)
	}
	return MulDiv(cashOut, BasisPoints+spreadBps, BasisPoints)
}
