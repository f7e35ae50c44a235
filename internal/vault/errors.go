package vault

import "errors"

// Validation errors: caller mistakes, rejected before any state change.
var (
	ErrInvalidAmount   = errors.New("vault: amount must be positive")
	ErrInvalidSlippage = errors.New("vault: slippage tolerance exceeds configured maximum")
)

// Policy errors: business-rule violations, rejected before state change.
var (
	ErrAssetNotAccepted        = errors.New("vault: asset not accepted")
	ErrDepositTooSmall         = errors.New("vault: deposit below minimum")
	ErrCapacityExceeded        = errors.New("vault: global capacity exceeded")
	ErrWithdrawalLimitExceeded = errors.New("vault: withdrawal exceeds per-operation ceiling")
	ErrInsufficientBalance     = errors.New("vault: insufficient balance")
)

// ErrInvalidConfig is returned at construction when configuration invariants
// do not hold.
var ErrInvalidConfig = errors.New("vault: invalid configuration")
