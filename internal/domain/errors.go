package domain

import "errors"

// Sentinel errors returned by the vault services. Every public operation
// fails with one of these specific kinds (wrapped with context) so callers
// can present an actionable message rather than a generic failure.
var (
	// Authorization
	ErrUnauthorized = errors.New("caller is not the required principal")

	// Validation
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidTimestamp  = errors.New("maturity date must be after issue date")
	ErrInvalidIssuePrice = errors.New("issue price must be in (0, par]")
	ErrInvalidCapAmounts = errors.New("caps must be positive and per-holder cap must not exceed series cap")

	// State
	ErrSeriesNotFound          = errors.New("series not found")
	ErrSeriesExists            = errors.New("series already exists")
	ErrSeriesNotActive         = errors.New("series is not active")
	ErrSeriesNotMatured        = errors.New("series has not matured")
	ErrInvalidStatusTransition = errors.New("invalid series status transition")
	ErrPositionNotFound        = errors.New("repo position not found")
	ErrInvalidStatus           = errors.New("repo position is not open")

	// Capacity
	ErrExceedsSeriesCap = errors.New("subscription exceeds series cap")
	ErrExceedsHolderCap = errors.New("subscription exceeds holder cap")
	ErrExceedsMaxCash   = errors.New("requested cash exceeds collateral loan-to-value limit")

	// Balances
	ErrInsufficientBalance = errors.New("insufficient claim balance")
	ErrInsufficientFunds   = errors.New("insufficient cash balance")

	// Timing
	ErrInvalidDeadline    = errors.New("deadline exceeds series maturity date")
	ErrDeadlinePassed     = errors.New("repo deadline has passed")
	ErrDeadlineNotPassed  = errors.New("repo deadline has not passed")

	// Arithmetic
	ErrArithmetic = errors.New("arithmetic overflow or invalid operand")

	// Infrastructure
	ErrNotFound         = errors.New("not found")
	ErrOperatorRequired = errors.New("caller is not a registered ledger operator")
	ErrLockHeld         = errors.New("lock already held")
)
