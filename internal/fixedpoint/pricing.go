package fixedpoint

import "time"

// PriceAt returns the deterministic accreted price of a series at time t:
// the issue price before the issue date, par at or after maturity, and a
// linear interpolation in between. It is a pure function of its arguments
// and is monotonically non-decreasing in t with output in
// [issuePrice, par].
func PriceAt(issuePrice, par int64, issueDate, maturityDate, t time.Time) int64 {
	if !t.After(issueDate) {
		return issuePrice
	}
	if !t.Before(maturityDate) {
		return par
	}

	elapsed := t.Unix() - issueDate.Unix()
	total := maturityDate.Unix() - issueDate.Unix()

	// total > 0 and elapsed < total here; the product fits the wide
	// intermediate inside MulDiv, and delta*elapsed/total < delta, so the
	// accreted price cannot exceed par.
	delta := par - issuePrice
	accreted, err := MulDiv(delta, elapsed, total)
	if err != nil {
		// Unreachable for validated series parameters.
		return issuePrice
	}
	return issuePrice + accreted
}
