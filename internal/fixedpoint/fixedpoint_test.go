package fixedpoint

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// TestAdd_Overflow verifies checked addition traps instead of wrapping.
func TestAdd_Overflow(t *testing.T) {
	sum, err := Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum)

	_, err = Add(math.MaxInt64, 1)
	require.ErrorIs(t, err, domain.ErrArithmetic)

	_, err = Add(math.MinInt64, -1)
	require.ErrorIs(t, err, domain.ErrArithmetic)
}

// TestSub_Overflow verifies checked subtraction traps instead of wrapping.
func TestSub_Overflow(t *testing.T) {
	diff, err := Sub(5, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), diff)

	_, err = Sub(math.MinInt64, 1)
	require.ErrorIs(t, err, domain.ErrArithmetic)

	_, err = Sub(math.MaxInt64, -1)
	require.ErrorIs(t, err, domain.ErrArithmetic)
}

// TestMulDiv_TruncatesTowardZero verifies the wide-intermediate quotient
// truncates rather than rounds.
func TestMulDiv_TruncatesTowardZero(t *testing.T) {
	// 7/2 = 3.5 -> 3
	q, err := MulDiv(7, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), q)

	// -7/2 = -3.5 -> -3 (toward zero, not floor)
	q, err = MulDiv(-7, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), q)
}

// TestMulDiv_WideIntermediate verifies products beyond int64 survive when the
// quotient fits.
func TestMulDiv_WideIntermediate(t *testing.T) {
	// a*b overflows int64 but the quotient is exactly a.
	a := int64(5_000_000_000_000_000)
	b := int64(4_000_000)
	q, err := MulDiv(a, b, b)
	require.NoError(t, err)
	assert.Equal(t, a, q)
}

// TestMulDiv_Faults verifies division by zero and out-of-range quotients fail.
func TestMulDiv_Faults(t *testing.T) {
	_, err := MulDiv(1, 1, 0)
	require.ErrorIs(t, err, domain.ErrArithmetic)

	_, err = MulDiv(math.MaxInt64, 2, 1)
	require.ErrorIs(t, err, domain.ErrArithmetic)
}

// TestMulDiv_Int64Boundary pins the quotient range: quantities are int64
// throughout the system, so the full int64 range passes and the first value
// beyond it faults.
func TestMulDiv_Int64Boundary(t *testing.T) {
	q, err := MulDiv(math.MaxInt64, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), q)

	q, err = MulDiv(math.MinInt64, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), q)

	_, err = MulDiv(math.MaxInt64/2+1, 2, 1)
	require.ErrorIs(t, err, domain.ErrArithmetic)
}

// TestMintedUnits_Scenario checks the reference subscription conversion:
// paying 1_000_000_000 at price 9_800_000 with par 10_000_000 mints
// 1_020_408_163 units, truncated.
func TestMintedUnits_Scenario(t *testing.T) {
	units, err := MintedUnits(1_000_000_000, 9_800_000, Par)
	require.NoError(t, err)
	assert.Equal(t, int64(1_020_408_163), units)
}

// TestMaxCash_Scenario checks the reference loan-to-value computation:
// 10,000 par units at price 0.99 with a 3% haircut.
func TestMaxCash_Scenario(t *testing.T) {
	collateral := 10_000 * Scale
	maxCash, err := MaxCash(collateral, 9_900_000, Par, 300)
	require.NoError(t, err)

	// 10,000 * 0.99 * 97% = 9,603 in scaled units.
	assert.Equal(t, 9_603*Scale, maxCash)
}

// TestRepurchase_Scenario checks the spread application: 9,000 cash at a 2%
// spread repays 9,180.
func TestRepurchase_Scenario(t *testing.T) {
	rep, err := Repurchase(9_000*Scale, 200)
	require.NoError(t, err)
	assert.Equal(t, 9_180*Scale, rep)
}

// TestMaxCash_InvalidHaircut rejects haircuts at or above 100%.
func TestMaxCash_InvalidHaircut(t *testing.T) {
	_, err := MaxCash(Scale, Par, Par, BasisPoints)
	require.ErrorIs(t, err, domain.ErrArithmetic)

	_, err = MaxCash(Scale, Par, Par, -1)
	require.ErrorIs(t, err, domain.ErrArithmetic)
}

func testDates() (time.Time, time.Time) {
	issue := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return issue, issue.Add(365 * 24 * time.Hour)
}

// TestPriceAt_Bounds verifies the accretion endpoints: issue price at or
// before the issue date, par at or after maturity.
func TestPriceAt_Bounds(t *testing.T) {
	issue, maturity := testDates()
	issuePrice := int64(9_500_000)

	assert.Equal(t, issuePrice, PriceAt(issuePrice, Par, issue, maturity, issue))
	assert.Equal(t, issuePrice, PriceAt(issuePrice, Par, issue, maturity, issue.Add(-time.Hour)))
	assert.Equal(t, Par, PriceAt(issuePrice, Par, issue, maturity, maturity))
	assert.Equal(t, Par, PriceAt(issuePrice, Par, issue, maturity, maturity.Add(time.Hour)))
}

// TestPriceAt_Halfway verifies linear interpolation: 0.95 issue price halfway
// to maturity prices at 0.975.
func TestPriceAt_Halfway(t *testing.T) {
	issue := time.Unix(1000, 0)
	maturity := time.Unix(2000, 0)

	price := PriceAt(9_500_000, Par, issue, maturity, time.Unix(1500, 0))
	assert.Equal(t, int64(9_750_000), price)
}

// TestPriceAt_Monotonic verifies the price never decreases and stays within
// [issuePrice, par] across the whole series lifetime.
func TestPriceAt_Monotonic(t *testing.T) {
	issue, maturity := testDates()
	issuePrice := int64(9_800_000)

	prev := int64(0)
	for ts := issue.Add(-time.Hour); ts.Before(maturity.Add(2 * time.Hour)); ts = ts.Add(6 * time.Hour) {
		p := PriceAt(issuePrice, Par, issue, maturity, ts)
		assert.GreaterOrEqual(t, p, issuePrice)
		assert.LessOrEqual(t, p, Par)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

// TestHaircutSafety verifies the repo default guarantee: for every permitted
// haircut and open price below par, collateral valued at par always covers
// the maximum cash-out.
func TestHaircutSafety(t *testing.T) {
	collateral := 10_000 * Scale
	haircuts := []int64{0, 1, 100, 300, 2_500, 5_000, 9_999}
	prices := []int64{9_000_000, 9_500_000, 9_800_000, 9_999_999, Par}

	for _, h := range haircuts {
		for _, p := range prices {
			maxCash, err := MaxCash(collateral, p, Par, h)
			require.NoError(t, err)

			parValue, err := CollateralValue(collateral, Par, Par)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, parValue, maxCash,
				"haircut=%d price=%d: default must never lose money", h, p)
		}
	}
}
