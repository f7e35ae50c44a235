package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"VaultLedger/internal/asset"

	"github.com/stretchr/testify/require"
)

func ammFixture(t *testing.T) (*PoolRouter, *AMMSource) {
	t.Helper()
	registry := asset.NewRegistry("USDC", 6, 18)
	require.NoError(t, registry.Register("WETH", 18, nil))

	router := NewPoolRouter()
	// 1000 WETH against 2,000,000 USDC, spot price 2000
	weth := new(big.Int)
	weth.SetString("1000000000000000000000", 10)
	router.AddPool("WETH", "USDC", weth, big.NewInt(2_000_000_000_000))

	return router, NewAMMSource(router, registry)
}

func TestPoolRouter_ConstantProductQuote(t *testing.T) {
	_, src := ammFixture(t)

	amountIn := new(big.Int)
	amountIn.SetString("1000000000000000000", 10) // 1 WETH

	out, err := src.Quote(context.Background(), []asset.Symbol{"WETH", "USDC"}, amountIn)
	require.NoError(t, err)

	// out = 2_000_000e6 * 1e18 / (1000e18 + 1e18) ≈ 1998.001998 USDC
	require.Equal(t, "1998001998", out.String())
}

func TestAMMSource_ExecuteCommitsReserves(t *testing.T) {
	_, src := ammFixture(t)
	ctx := context.Background()
	route := []asset.Symbol{"WETH", "USDC"}

	amountIn := new(big.Int)
	amountIn.SetString("1000000000000000000", 10)

	first, err := src.Execute(ctx, route, amountIn, nil, "vault", time.Now().Add(time.Minute))
	require.NoError(t, err)

	// A second identical swap gets a worse price off the shifted reserves.
	second, err := src.Execute(ctx, route, amountIn, nil, "vault", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Negative(t, second.Cmp(first), "second swap should realize less than the first")
}

func TestAMMSource_SlippageExceeded(t *testing.T) {
	router, src := ammFixture(t)
	ctx := context.Background()
	route := []asset.Symbol{"WETH", "USDC"}

	amountIn := new(big.Int)
	amountIn.SetString("1000000000000000000", 10)

	estimate, err := src.Quote(ctx, route, amountIn)
	require.NoError(t, err)

	// Market moves 1% against the depositor between quote and execute.
	weth := new(big.Int)
	weth.SetString("1000000000000000000000", 10)
	router.SetReserves("WETH", "USDC", weth, big.NewInt(1_980_000_000_000))

	// Tolerance 0.5%: minOut above what the drifted pool can deliver.
	minOut := new(big.Int).Mul(estimate, big.NewInt(9950))
	minOut.Quo(minOut, big.NewInt(10_000))

	_, err = src.Execute(ctx, route, amountIn, minOut, "vault", time.Now().Add(time.Minute))
	require.ErrorIs(t, err, ErrSlippageExceeded)

	// The failed execute must not have consumed reserves.
	again, err := src.Quote(ctx, route, amountIn)
	require.NoError(t, err)
	expected := new(big.Int).Mul(big.NewInt(1_980_000_000_000), amountIn)
	expected.Quo(expected, new(big.Int).Add(weth, amountIn))
	require.Zero(t, again.Cmp(expected), "reserves changed after failed execute")
}

func TestAMMSource_RouteValidation(t *testing.T) {
	_, src := ammFixture(t)
	ctx := context.Background()

	_, err := src.Execute(ctx, []asset.Symbol{"WETH"}, big.NewInt(1), nil, "vault", time.Time{})
	require.ErrorIs(t, err, ErrRouteInvalid)

	_, err = src.Execute(ctx, []asset.Symbol{"WETH", "WBTC"}, big.NewInt(1), nil, "vault", time.Time{})
	require.ErrorIs(t, err, ErrRouteInvalid)
}

func TestPoolRouter_DeadlineEnforced(t *testing.T) {
	_, src := ammFixture(t)

	_, err := src.Execute(context.Background(), []asset.Symbol{"WETH", "USDC"},
		big.NewInt(1), nil, "vault", time.Now().Add(-time.Second))
	require.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestPoolRouter_MultiHopRoute(t *testing.T) {
	registry := asset.NewRegistry("USDC", 6, 18)
	require.NoError(t, registry.Register("WBTC", 8, []asset.Symbol{"WBTC", "WETH", "USDC"}))

	router := NewPoolRouter()
	weth := new(big.Int)
	weth.SetString("1000000000000000000000", 10)
	wethOut := new(big.Int)
	wethOut.SetString("500000000000000000000", 10)
	router.AddPool("WBTC", "WETH", big.NewInt(50_00000000), wethOut)
	router.AddPool("WETH", "USDC", weth, big.NewInt(2_000_000_000_000))

	src := NewAMMSource(router, registry)
	out, err := src.Quote(context.Background(), registry.RouteFor("WBTC"), big.NewInt(1_00000000))
	require.NoError(t, err)
	require.Positive(t, out.Sign(), "multi-hop quote should produce output")
}
