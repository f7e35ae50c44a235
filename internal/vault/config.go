package vault

import (
	"fmt"
	"math/big"
	"time"
)

// Config holds the ledger's limits. All fields except the slippage
// tolerance are immutable after construction; the tolerance is mutated only
// through UpdateSlippageTolerance, bounded by MaxSlippageBps.
type Config struct {
	// GlobalCapacity is the ceiling on totalHeld, in accounting units.
	GlobalCapacity *big.Int

	// WithdrawalCeiling caps a single withdrawal, in accounting units.
	// Must not exceed GlobalCapacity; checked once at construction.
	WithdrawalCeiling *big.Int

	// MinimumDeposit is the smallest credit accepted, in accounting units.
	MinimumDeposit *big.Int

	// MaxSlippageBps bounds the mutable tolerance. At most 10000.
	MaxSlippageBps uint64

	// SlippageBps is the initial tolerance applied to swap quotes.
	SlippageBps uint64

	// ExecuteDeadline is how far in the future the swap deadline is set.
	// The router enforces it, not the ledger.
	ExecuteDeadline time.Duration

	// VaultPrincipal is the recipient identity for swap outputs.
	VaultPrincipal string
}

// Validate checks the construction-time invariants.
func (c Config) Validate() error {
	if c.GlobalCapacity == nil || c.GlobalCapacity.Sign() <= 0 {
		return fmt.Errorf("%w: global capacity must be positive", ErrInvalidConfig)
	}
	if c.WithdrawalCeiling == nil || c.WithdrawalCeiling.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal ceiling must be positive", ErrInvalidConfig)
	}
	if c.WithdrawalCeiling.Cmp(c.GlobalCapacity) > 0 {
		return fmt.Errorf("%w: withdrawal ceiling exceeds global capacity", ErrInvalidConfig)
	}
	if c.MinimumDeposit == nil || c.MinimumDeposit.Sign() < 0 {
		return fmt.Errorf("%w: minimum deposit must be non-negative", ErrInvalidConfig)
	}
	if c.MaxSlippageBps > 10_000 {
		return fmt.Errorf("%w: max slippage above 10000 bps", ErrInvalidConfig)
	}
	if c.SlippageBps > c.MaxSlippageBps {
		return fmt.Errorf("%w: initial slippage above maximum", ErrInvalidConfig)
	}
	if c.ExecuteDeadline < 0 {
		return fmt.Errorf("%w: execute deadline must be non-negative", ErrInvalidConfig)
	}
	return nil
}
