package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/fixedpoint"
)

// DefaultMaxQuoteAge is the staleness bound applied when none is configured.
const DefaultMaxQuoteAge = 3600 * time.Second

// FeedSource values deposits through a direct price-feed lookup. It never
// moves custody: the normalized quote is the credited amount. Quotes are
// rejected when the feed reports a non-positive price or the quote is older
// than the staleness bound.
type FeedSource struct {
	feed     PriceFeed
	registry *asset.Registry
	// priceDecimals is the feed's fixed price precision.
	priceDecimals uint8
	maxAge        time.Duration
	now           func() time.Time
}

// NewFeedSource wires a price feed against the asset registry. maxAge <= 0
// selects DefaultMaxQuoteAge.
func NewFeedSource(feed PriceFeed, registry *asset.Registry, priceDecimals uint8, maxAge time.Duration) *FeedSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxQuoteAge
	}
	return &FeedSource{
		feed:          feed,
		registry:      registry,
		priceDecimals: priceDecimals,
		maxAge:        maxAge,
		now:           time.Now,
	}
}

func (f *FeedSource) Quote(ctx context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error) {
	if len(route) == 0 {
		return nil, ErrRouteInvalid
	}
	sym := route[0]

	sourceDecimals, ok := f.registry.DecimalsOf(sym)
	if !ok {
		return nil, fmt.Errorf("%w: no precision for %q", ErrRouteInvalid, sym)
	}
	_, targetDecimals := f.registry.Accounting()

	quote, err := f.feed.Price(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("price feed %q: %w", sym, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q reported %v", ErrInvalidPrice, sym, quote.Price)
	}
	if age := f.now().Sub(quote.UpdatedAt); age > f.maxAge {
		return nil, fmt.Errorf("%w: %q quote is %s old (bound %s)", ErrStalePrice, sym, age, f.maxAge)
	}

	return fixedpoint.ToAccountingUnits(amountIn, sourceDecimals, quote.Price, f.priceDecimals, targetDecimals)
}

// Execute on a feed source is the quote itself; there is no custody
// movement to perform. The minimum-output check still applies so callers
// get uniform semantics across sources.
func (f *FeedSource) Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	if !deadline.IsZero() && f.now().After(deadline) {
		return nil, ErrDeadlineExceeded
	}
	out, err := f.Quote(ctx, route, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: realized %s below minimum %s", ErrSlippageExceeded, out, minAmountOut)
	}
	return out, nil
}

func (f *FeedSource) Custodial() bool { return false }

// StaticFeed is an in-memory PriceFeed for development and tests.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[asset.Symbol]PriceQuote
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[asset.Symbol]PriceQuote)}
}

// Set records a price quote for an asset.
func (s *StaticFeed) Set(sym asset.Symbol, price *big.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[sym] = PriceQuote{Price: new(big.Int).Set(price), UpdatedAt: updatedAt}
}

func (s *StaticFeed) Price(_ context.Context, sym asset.Symbol) (PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[sym]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: no feed for %q", ErrInvalidPrice, sym)
	}
	return PriceQuote{Price: new(big.Int).Set(q.Price), UpdatedAt: q.UpdatedAt}, nil
}
