package asset_test

import (
	"errors"
	"testing"

	"VaultLedger/internal/asset"
)

func newTestRegistry() *asset.Registry {
	return asset.NewRegistry("USDC", 6, 18)
}

func TestRegistry_AccountingAlwaysAccepted(t *testing.T) {
	r := newTestRegistry()

	if !r.IsAccepted("USDC") {
		t.Error("accounting asset should be accepted at construction")
	}
	route := r.RouteFor("USDC")
	if len(route) != 1 || route[0] != "USDC" {
		t.Errorf("accounting asset route should be identity, got %v", route)
	}
	if err := r.SetAccepted("USDC", false); err == nil {
		t.Error("un-accepting the accounting asset should fail")
	}
}

func TestRegistry_NativeSentinelPreRegistered(t *testing.T) {
	r := newTestRegistry()

	if !r.IsAccepted(asset.NativeSymbol) {
		t.Error("native sentinel should be accepted at construction")
	}
	dec, ok := r.DecimalsOf(asset.NativeSymbol)
	if !ok || dec != 18 {
		t.Errorf("native decimals: got %d, want 18", dec)
	}
}

func TestRegistry_DefaultRoute(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("WETH", 18, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	route := r.RouteFor("WETH")
	want := []asset.Symbol{"WETH", "USDC"}
	if len(route) != 2 || route[0] != want[0] || route[1] != want[1] {
		t.Errorf("got %v, want %v", route, want)
	}
}

func TestRegistry_CustomRoute(t *testing.T) {
	r := newTestRegistry()
	custom := []asset.Symbol{"WBTC", "WETH", "USDC"}
	if err := r.Register("WBTC", 8, custom); err != nil {
		t.Fatalf("register: %v", err)
	}

	route := r.RouteFor("WBTC")
	if len(route) != 3 || route[1] != "WETH" {
		t.Errorf("got %v, want %v", route, custom)
	}
}

func TestRegistry_RegisterRejectsBadRoute(t *testing.T) {
	r := newTestRegistry()

	err := r.Register("WBTC", 8, []asset.Symbol{"WETH", "USDC"})
	if !errors.Is(err, asset.ErrInvalidRoute) {
		t.Errorf("route not starting at asset: got %v, want ErrInvalidRoute", err)
	}

	err = r.Register("WBTC", 8, []asset.Symbol{"WBTC", "WETH"})
	if !errors.Is(err, asset.ErrInvalidRoute) {
		t.Errorf("route not ending at accounting asset: got %v, want ErrInvalidRoute", err)
	}
}

func TestRegistry_RegisterRejectsReservedSymbols(t *testing.T) {
	r := newTestRegistry()

	for _, s := range []asset.Symbol{"", asset.NativeSymbol, "USDC"} {
		if err := r.Register(s, 6, nil); !errors.Is(err, asset.ErrInvalidAsset) {
			t.Errorf("register %q: got %v, want ErrInvalidAsset", s, err)
		}
	}
}

func TestRegistry_SetAccepted(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("WETH", 18, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.SetAccepted("WETH", false); err != nil {
		t.Fatalf("set accepted: %v", err)
	}
	if r.IsAccepted("WETH") {
		t.Error("WETH should no longer be accepted")
	}

	if err := r.SetAccepted("DOGE", false); !errors.Is(err, asset.ErrUnknownAsset) {
		t.Errorf("unknown asset: got %v, want ErrUnknownAsset", err)
	}
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("WETH", 18, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	snap := r.Snapshot()

	restored := asset.NewRegistry("USDC", 6, 18)
	restored.Restore(snap)

	if !restored.IsAccepted("WETH") {
		t.Error("restored registry should accept WETH")
	}
	dec, _ := restored.DecimalsOf("WETH")
	if dec != 18 {
		t.Errorf("restored decimals: got %d, want 18", dec)
	}
}
