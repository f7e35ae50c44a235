package custody

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/oracle"
)

func TestMemoryCustodian_TransferInRequiresFunds(t *testing.T) {
	c := NewMemoryCustodian()
	ctx := context.Background()

	err := c.TransferIn(ctx, "alice", "USDV", big.NewInt(100))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("want ErrTransferFailed, got %v", err)
	}

	c.Fund("alice", "USDV", big.NewInt(100))
	if err := c.TransferIn(ctx, "alice", "USDV", big.NewInt(100)); err != nil {
		t.Fatalf("funded transfer in: %v", err)
	}
	if got := c.VaultHolding("USDV"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault holding = %s, want 100", got)
	}
	if got := c.HoldingOf("alice", "USDV"); got.Sign() != 0 {
		t.Fatalf("alice holding = %s, want 0", got)
	}
}

func TestMemoryCustodian_TransferOut(t *testing.T) {
	c := NewMemoryCustodian()
	ctx := context.Background()

	c.Fund("alice", "USDV", big.NewInt(100))
	if err := c.TransferIn(ctx, "alice", "USDV", big.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	if err := c.TransferOut(ctx, "bob", "USDV", big.NewInt(60)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if got := c.HoldingOf("bob", "USDV"); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("bob holding = %s, want 60", got)
	}

	// Vault cannot go negative.
	err := c.TransferOut(ctx, "bob", "USDV", big.NewInt(60))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("want ErrTransferFailed, got %v", err)
	}

	c.FailTransfersOut(true)
	err = c.TransferOut(ctx, "bob", "USDV", big.NewInt(1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("forced failure: want ErrTransferFailed, got %v", err)
	}
}

func TestSettlingRouter_MirrorsSwapIntoCustody(t *testing.T) {
	weth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	reserveIn := new(big.Int).Mul(big.NewInt(1000), weth)

	router := oracle.NewPoolRouter()
	router.AddPool("WETH", "USDV", reserveIn, big.NewInt(2_000_000_000_000))

	c := NewMemoryCustodian()
	c.Fund("alice", "WETH", weth)
	if err := c.TransferIn(context.Background(), "alice", "WETH", weth); err != nil {
		t.Fatal(err)
	}

	settling := NewSettlingRouter(router, c)
	route := []asset.Symbol{"WETH", "USDV"}
	deadline := time.Now().Add(time.Minute)

	out, err := settling.Execute(context.Background(), route, weth, big.NewInt(0), "vault", deadline)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := c.VaultHolding("WETH"); got.Sign() != 0 {
		t.Fatalf("vault WETH = %s, want 0", got)
	}
	if got := c.VaultHolding("USDV"); got.Cmp(out) != 0 {
		t.Fatalf("vault USDV = %s, want %s", got, out)
	}
}

func TestSettlingRouter_FailedExecuteLeavesCustody(t *testing.T) {
	weth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	router := oracle.NewPoolRouter()
	router.AddPool("WETH", "USDV", new(big.Int).Mul(big.NewInt(1000), weth), big.NewInt(2_000_000_000_000))

	c := NewMemoryCustodian()
	c.Fund("alice", "WETH", weth)
	if err := c.TransferIn(context.Background(), "alice", "WETH", weth); err != nil {
		t.Fatal(err)
	}

	settling := NewSettlingRouter(router, c)
	route := []asset.Symbol{"WETH", "USDV"}

	// Impossible minOut forces a slippage rejection.
	_, err := settling.Execute(context.Background(), route, weth, big.NewInt(3_000_000_000), "vault", time.Now().Add(time.Minute))
	if !errors.Is(err, oracle.ErrSlippageExceeded) {
		t.Fatalf("want ErrSlippageExceeded, got %v", err)
	}

	if got := c.VaultHolding("WETH"); got.Cmp(weth) != 0 {
		t.Fatalf("vault WETH = %s, want %s", got, weth)
	}
	if got := c.VaultHolding("USDV"); got.Sign() != 0 {
		t.Fatalf("vault USDV = %s, want 0", got)
	}
}
