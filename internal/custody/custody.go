package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"VaultLedger/internal/asset"
)

// ErrTransferFailed is surfaced when a custody movement is rejected by the
// external transfer surface, e.g. a missing pre-authorization or an
// insufficient external balance.
var ErrTransferFailed = errors.New("custody: transfer failed")

// Custodian moves asset ownership into and out of the vault's control.
// Both operations are external, possibly-failing calls: the ledger treats
// them as its only custody boundary and never mutates balance state between
// issuing a transfer and handling its result.
//
// TransferIn assumes the principal has pre-authorized the pull
// (approval-style); a violated precondition is reported as ErrTransferFailed.
type Custodian interface {
	TransferIn(ctx context.Context, principal string, sym asset.Symbol, amount *big.Int) error
	TransferOut(ctx context.Context, principal string, sym asset.Symbol, amount *big.Int) error
}

type holdingKey struct {
	owner string
	sym   asset.Symbol
}

// MemoryCustodian is an in-memory Custodian for development and tests. It
// tracks external holdings per principal plus the vault's own holdings, and
// fails transfers the external balance cannot cover.
type MemoryCustodian struct {
	mu       sync.Mutex
	holdings map[holdingKey]*big.Int
	vault    map[asset.Symbol]*big.Int

	// failOut, when set, makes every TransferOut fail. Lets tests exercise
	// the ledger's rollback path.
	failOut bool
}

func NewMemoryCustodian() *MemoryCustodian {
	return &MemoryCustodian{
		holdings: make(map[holdingKey]*big.Int),
		vault:    make(map[asset.Symbol]*big.Int),
	}
}

// Fund credits a principal's external holding.
func (m *MemoryCustodian) Fund(principal string, sym asset.Symbol, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(m.holdingOf(principal, sym), amount)
}

// FailTransfersOut toggles forced TransferOut failure.
func (m *MemoryCustodian) FailTransfersOut(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOut = fail
}

// HoldingOf reports a principal's external balance.
func (m *MemoryCustodian) HoldingOf(principal string, sym asset.Symbol) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.holdingOf(principal, sym))
}

// VaultHolding reports the vault's custody balance for an asset.
func (m *MemoryCustodian) VaultHolding(sym asset.Symbol) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vault[sym]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (m *MemoryCustodian) TransferIn(_ context.Context, principal string, sym asset.Symbol, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	holding := m.holdingOf(principal, sym)
	if holding.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrTransferFailed, principal, holding, sym, amount)
	}
	holding.Sub(holding, amount)
	m.add(m.vaultOf(sym), amount)
	return nil
}

func (m *MemoryCustodian) TransferOut(_ context.Context, principal string, sym asset.Symbol, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOut {
		return fmt.Errorf("%w: outbound transfers disabled", ErrTransferFailed)
	}
	vault := m.vaultOf(sym)
	if vault.Cmp(amount) < 0 {
		return fmt.Errorf("%w: vault holds %s %s, needs %s", ErrTransferFailed, vault, sym, amount)
	}
	vault.Sub(vault, amount)
	m.add(m.holdingOf(principal, sym), amount)
	return nil
}

// Convert re-denominates vault custody after a swap: amountIn of `from`
// leaves custody, amountOut of `to` enters it. The in-memory router used in
// dev does not hold vault assets itself, so the custodian mirrors the swap.
func (m *MemoryCustodian) Convert(from, to asset.Symbol, amountIn, amountOut *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBal := m.vaultOf(from)
	fromBal.Sub(fromBal, amountIn)
	m.add(m.vaultOf(to), amountOut)
}

func (m *MemoryCustodian) holdingOf(principal string, sym asset.Symbol) *big.Int {
	k := holdingKey{principal, sym}
	if _, ok := m.holdings[k]; !ok {
		m.holdings[k] = new(big.Int)
	}
	return m.holdings[k]
}

func (m *MemoryCustodian) vaultOf(sym asset.Symbol) *big.Int {
	if _, ok := m.vault[sym]; !ok {
		m.vault[sym] = new(big.Int)
	}
	return m.vault[sym]
}

func (m *MemoryCustodian) add(dst, amount *big.Int) {
	dst.Add(dst, amount)
}
