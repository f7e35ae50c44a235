package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"VaultLedger/internal/asset"
)

// AMMSource values deposits by executing an actual swap along the route.
// The wrapped router owns custody of the swapped assets; Execute either
// completes the conversion atomically or fails leaving no custody change.
type AMMSource struct {
	router   SwapRouter
	registry *asset.Registry
}

func NewAMMSource(router SwapRouter, registry *asset.Registry) *AMMSource {
	return &AMMSource{router: router, registry: registry}
}

// validateRoute enforces the execution contract: first hop is the input
// asset's position, last hop is the accounting asset.
func (a *AMMSource) validateRoute(route []asset.Symbol) error {
	accounting, _ := a.registry.Accounting()
	if len(route) < 2 {
		return fmt.Errorf("%w: route %v too short", ErrRouteInvalid, route)
	}
	if route[len(route)-1] != accounting {
		return fmt.Errorf("%w: route %v does not end at %q", ErrRouteInvalid, route, accounting)
	}
	return nil
}

func (a *AMMSource) Quote(ctx context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error) {
	if err := a.validateRoute(route); err != nil {
		return nil, err
	}
	return a.router.Quote(ctx, route, amountIn)
}

func (a *AMMSource) Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	if err := a.validateRoute(route); err != nil {
		return nil, err
	}
	out, err := a.router.Execute(ctx, route, amountIn, minAmountOut, recipient, deadline)
	if err != nil {
		return nil, fmt.Errorf("swap execute %v: %w", route, err)
	}
	return out, nil
}

func (a *AMMSource) Custodial() bool { return true }

// pairKey identifies a directed pool edge.
type pairKey struct {
	in, out asset.Symbol
}

// PoolRouter is an in-memory constant-product SwapRouter for development
// and tests. Each registered pair holds reserves; quoting applies
// out = reserveOut * in / (reserveIn + in) per hop and executing commits
// the reserve changes. Reserves can drift between Quote and Execute, which
// is exactly the window the slippage tolerance guards.
type PoolRouter struct {
	mu    sync.Mutex
	pools map[pairKey]*poolState
	now   func() time.Time
}

type poolState struct {
	reserveIn  *big.Int
	reserveOut *big.Int
}

func NewPoolRouter() *PoolRouter {
	return &PoolRouter{
		pools: make(map[pairKey]*poolState),
		now:   time.Now,
	}
}

// AddPool registers a directed pool with the given reserves.
func (p *PoolRouter) AddPool(in, out asset.Symbol, reserveIn, reserveOut *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[pairKey{in, out}] = &poolState{
		reserveIn:  new(big.Int).Set(reserveIn),
		reserveOut: new(big.Int).Set(reserveOut),
	}
}

// SetReserves replaces the reserves of an existing pool. Used to simulate
// market movement between quote and execution.
func (p *PoolRouter) SetReserves(in, out asset.Symbol, reserveIn, reserveOut *big.Int) {
	p.AddPool(in, out, reserveIn, reserveOut)
}

// swapOut computes the constant-product output for one hop.
func swapOut(pool *poolState, amountIn *big.Int) *big.Int {
	numerator := new(big.Int).Mul(pool.reserveOut, amountIn)
	denominator := new(big.Int).Add(pool.reserveIn, amountIn)
	return numerator.Quo(numerator, denominator)
}

// quoteLocked walks the route hop by hop without committing reserves.
func (p *PoolRouter) quoteLocked(route []asset.Symbol, amountIn *big.Int) (*big.Int, error) {
	amount := new(big.Int).Set(amountIn)
	for i := 0; i+1 < len(route); i++ {
		pool, ok := p.pools[pairKey{route[i], route[i+1]}]
		if !ok {
			return nil, fmt.Errorf("%w: no pool %s→%s", ErrRouteInvalid, route[i], route[i+1])
		}
		amount = swapOut(pool, amount)
	}
	return amount, nil
}

func (p *PoolRouter) Quote(_ context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error) {
	if len(route) < 2 {
		return nil, ErrRouteInvalid
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(route, amountIn)
}

func (p *PoolRouter) Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	if len(route) < 2 {
		return nil, ErrRouteInvalid
	}
	if !deadline.IsZero() && p.now().After(deadline) {
		return nil, ErrDeadlineExceeded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Dry-run first: a failed execute must leave the pools untouched.
	out, err := p.quoteLocked(route, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: realized %s below minimum %s", ErrSlippageExceeded, out, minAmountOut)
	}

	// Commit the reserve changes hop by hop.
	amount := new(big.Int).Set(amountIn)
	for i := 0; i+1 < len(route); i++ {
		pool := p.pools[pairKey{route[i], route[i+1]}]
		hopOut := swapOut(pool, amount)
		pool.reserveIn.Add(pool.reserveIn, amount)
		pool.reserveOut.Sub(pool.reserveOut, hopOut)
		amount = hopOut
	}
	return amount, nil
}
