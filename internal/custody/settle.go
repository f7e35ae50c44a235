package custody

import (
	"context"
	"math/big"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/oracle"
)

// SettlingRouter wraps a swap router and mirrors each executed swap into
// the custodian, so vault holdings are re-denominated from the input asset
// to the output asset. Quotes pass through untouched; a failed Execute
// leaves custody unchanged.
type SettlingRouter struct {
	router    oracle.SwapRouter
	custodian *MemoryCustodian
}

func NewSettlingRouter(router oracle.SwapRouter, custodian *MemoryCustodian) *SettlingRouter {
	return &SettlingRouter{router: router, custodian: custodian}
}

func (s *SettlingRouter) Quote(ctx context.Context, route []asset.Symbol, amountIn *big.Int) (*big.Int, error) {
	return s.router.Quote(ctx, route, amountIn)
}

func (s *SettlingRouter) Execute(ctx context.Context, route []asset.Symbol, amountIn, minAmountOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	out, err := s.router.Execute(ctx, route, amountIn, minAmountOut, recipient, deadline)
	if err != nil {
		return nil, err
	}
	s.custodian.Convert(route[0], route[len(route)-1], amountIn, out)
	return out, nil
}
