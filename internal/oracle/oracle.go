package oracle

import (
	"context"
	"errors"
	"math/big"
	"time"

	"VaultLedger/internal/asset"
)

var (
	// ErrInvalidPrice is returned when a feed reports a non-positive price.
	ErrInvalidPrice = errors.New("oracle: price must be positive")

	// ErrStalePrice is returned when a quote is older than the staleness bound.
	ErrStalePrice = errors.New("oracle: price quote is stale")

	// ErrSlippageExceeded is returned when the realized swap output would
	// fall below the caller's minimum.
	ErrSlippageExceeded = errors.New("oracle: output below minimum, slippage exceeded")

	// ErrRouteInvalid is returned when a route's first hop is not the input
	// asset, its last hop is not the accounting asset, or a hop has no pool.
	ErrRouteInvalid = errors.New("oracle: invalid conversion route")

	// ErrDeadlineExceeded is returned when execution is attempted after the
	// caller-supplied deadline.
	ErrDeadlineExceeded = errors.New("oracle: execution deadline exceeded")
)

// PriceQuote is a point-in-time price report from an external feed.
type PriceQuote struct {
	Price     *big.Int // fixed-point at the feed's price precision
	UpdatedAt time.Time
}

// PriceFeed is the quote-only external price source.
type PriceFeed interface {
	Price(ctx context.Context, s asset.Symbol) (PriceQuote, error)
}

// SwapRouter is the external AMM execution surface. Execute transfers asset
// custody atomically as part of the call and returns the realized output; a
// failed Execute leaves no custody change behind.
type SwapRouter interface {
	Quote(ctx context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error)
	Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error)
}

// ConversionSource is the capability the ledger depends on to value a
// deposit in accounting units. Two implementations exist: a price-feed
// lookup (FeedSource) and an AMM quote/execute pair (AMMSource), selected
// at construction time.
type ConversionSource interface {
	// Quote estimates the accounting-unit output for amountIn along route.
	// Read-only; safe to call outside the ledger's write lock.
	Quote(ctx context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error)

	// Execute performs the conversion and returns the realized output.
	// For custodial sources this is a state-changing external call; the
	// ledger mutates no state before it succeeds.
	Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error)

	// Custodial reports whether Execute moves asset custody. The ledger
	// uses this to pick the correct compensation path on post-conversion
	// failures.
	Custodial() bool
}
