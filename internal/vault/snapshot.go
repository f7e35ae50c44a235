package vault

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/event"
)

// State is the serializable form of the ledger used for snapshots.
// Amounts are decimal strings so the JSON round-trips losslessly.
type State struct {
	Sequence        int64             `json:"sequence"`
	StateHash       string            `json:"state_hash"`
	Balances        map[string]string `json:"balances"`
	TotalHeld       string            `json:"total_held"`
	DepositCount    int64             `json:"deposit_count"`
	WithdrawalCount int64             `json:"withdrawal_count"`
	SlippageBps     uint64            `json:"slippage_bps"`
	Assets          []asset.Info      `json:"assets"`
}

// CaptureState copies the ledger into its serializable form.
func (l *Ledger) CaptureState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[string]string, len(l.balances))
	for p, bal := range l.balances {
		balances[p] = bal.String()
	}
	hash := l.hasher.PrevHash()

	return State{
		Sequence:        l.sequence,
		StateHash:       fmt.Sprintf("%x", hash),
		Balances:        balances,
		TotalHeld:       l.totalHeld.String(),
		DepositCount:    l.depositCount,
		WithdrawalCount: l.withdrawalCount,
		SlippageBps:     l.slippageBps,
		Assets:          l.registry.Snapshot(),
	}
}

// RestoreState loads a snapshot into an empty ledger. The hash chain is
// re-seeded from the snapshot's hash so subsequent events continue the
// chain.
func (l *Ledger) RestoreState(s State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sequence != 0 || len(l.balances) != 0 {
		return fmt.Errorf("restore requires an empty ledger")
	}

	balances := make(map[string]*big.Int, len(s.Balances))
	total := new(big.Int)
	for p, raw := range s.Balances {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok || v.Sign() < 0 {
			return fmt.Errorf("invalid balance %q for %q", raw, p)
		}
		balances[p] = v
		total.Add(total, v)
	}

	held, ok := new(big.Int).SetString(s.TotalHeld, 10)
	if !ok {
		return fmt.Errorf("invalid total_held %q", s.TotalHeld)
	}
	if total.Cmp(held) != 0 {
		return fmt.Errorf("snapshot conservation violated: sum %s, total_held %s", total, held)
	}
	if s.SlippageBps > l.cfg.MaxSlippageBps {
		return fmt.Errorf("%w: snapshot slippage %d above maximum %d", ErrInvalidSlippage, s.SlippageBps, l.cfg.MaxSlippageBps)
	}

	var hash [32]byte
	if s.StateHash != "" {
		raw, err := hex.DecodeString(s.StateHash)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("invalid state_hash %q", s.StateHash)
		}
		copy(hash[:], raw)
	}

	l.registry.Restore(s.Assets)

	l.balances = balances
	l.totalHeld = held
	l.depositCount = s.DepositCount
	l.withdrawalCount = s.WithdrawalCount
	l.slippageBps = s.SlippageBps
	l.sequence = s.Sequence
	l.hasher.Reset(hash)

	if l.metrics != nil {
		l.metrics.LedgerSequence.Set(float64(l.sequence))
		l.metrics.TotalHeld.Set(bigFloat(l.totalHeld))
		l.metrics.AvailableCapacity.Set(bigFloat(new(big.Int).Sub(l.cfg.GlobalCapacity, l.totalHeld)))
		l.metrics.AccountCount.Set(float64(len(l.balances)))
		l.metrics.SlippageBps.Set(float64(l.slippageBps))
	}
	return nil
}

// ApplyReplay re-applies the effects of a persisted event during recovery.
// No custody or conversion calls run; the event records what already
// happened. Events must arrive in sequence order.
func (l *Ledger) ApplyReplay(env event.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if env.Sequence != l.sequence+1 {
		return fmt.Errorf("replay sequence gap: have %d, got %d", l.sequence, env.Sequence)
	}

	switch p := env.Payload.(type) {
	case event.Deposited:
		bal := l.balanceRefLocked(p.Principal)
		bal.Add(bal, p.AmountCredited)
		l.totalHeld.Add(l.totalHeld, p.AmountCredited)
		l.depositCount++
	case event.Withdrawn:
		bal := l.balanceRefLocked(p.Principal)
		if bal.Cmp(p.Amount) < 0 {
			return fmt.Errorf("replay withdrawal exceeds balance at sequence %d", env.Sequence)
		}
		bal.Sub(bal, p.Amount)
		l.totalHeld.Sub(l.totalHeld, p.Amount)
		l.withdrawalCount++
	case event.Swapped:
		// Custody re-denomination only; balances unchanged.
	case event.AssetRegistered:
		if err := l.registry.Register(p.Asset, p.Decimals, p.Route); err != nil {
			return fmt.Errorf("replay asset registration at sequence %d: %w", env.Sequence, err)
		}
	case event.SlippageUpdated:
		l.slippageBps = p.NewBps
	default:
		return fmt.Errorf("replay: unknown payload %T at sequence %d", env.Payload, env.Sequence)
	}

	l.sequence = env.Sequence
	l.hasher.Reset(env.StateHash)
	return nil
}
