package vault

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/event"
	"VaultLedger/internal/fixedpoint"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Output is what the ledger hands downstream after committing an operation:
// the event envelope plus the projection rows it touched. The persist
// channel uses blocking sends (backpressure); the publish channel drops
// when full.
type Output struct {
	Envelope event.Envelope
	Balances []BalanceUpdate
	Totals   TotalsSnapshot
}

// BalanceUpdate is the post-commit balance of one touched account.
type BalanceUpdate struct {
	Principal string
	Balance   *big.Int
}

// TotalsSnapshot is the post-commit aggregate state.
type TotalsSnapshot struct {
	TotalHeld       *big.Int
	DepositCount    int64
	WithdrawalCount int64
}

// Stats is the read-model for the bank-stats query.
type Stats struct {
	TotalHeld         *big.Int
	DepositCount      int64
	WithdrawalCount   int64
	AvailableCapacity *big.Int
}

// Deps are the ledger's collaborators, injected at construction.
type Deps struct {
	Registry  *asset.Registry
	Source    oracle.ConversionSource
	Custodian custody.Custodian
	Metrics   *observability.Metrics
	Logger    zerolog.Logger

	// PersistChan receives every committed output; sends block so no event
	// is lost. Optional (nil in unit tests).
	PersistChan chan<- Output

	// PublishChan receives committed outputs for NATS publishing; sends
	// drop when the channel is full. Optional.
	PublishChan chan<- Output
}

// Ledger is the accounting core: it owns per-user balances, global totals,
// and counters, and enforces capacity and limit invariants. All mutating
// operations serialize through one exclusive lock; the custody transfers
// and the conversion Execute call are the only points where control leaves
// the ledger while the lock is held, and no ledger state is read or written
// between issuing such a call and handling its result.
//
// Go offers no whole-operation transactional rollback across external
// calls, so the ledger compensates explicitly: a deposit rejected after
// custody-in refunds through the custodian, and a withdrawal whose outbound
// transfer fails restores the already-applied effects before returning.
type Ledger struct {
	mu sync.RWMutex

	cfg         Config
	slippageBps uint64

	registry  *asset.Registry
	source    oracle.ConversionSource
	custodian custody.Custodian
	hasher    *StateHasher
	metrics   *observability.Metrics
	log       zerolog.Logger

	balances        map[string]*big.Int
	totalHeld       *big.Int
	depositCount    int64
	withdrawalCount int64
	sequence        int64

	persistChan chan<- Output
	publishChan chan<- Output

	now func() time.Time
}

// NewLedger validates the configuration and constructs an empty ledger.
func NewLedger(cfg Config, deps Deps) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Source == nil || deps.Custodian == nil {
		return nil, fmt.Errorf("%w: registry, source, and custodian are required", ErrInvalidConfig)
	}

	l := &Ledger{
		cfg:         cfg,
		slippageBps: cfg.SlippageBps,
		registry:    deps.Registry,
		source:      deps.Source,
		custodian:   deps.Custodian,
		hasher:      NewStateHasher(),
		metrics:     deps.Metrics,
		log:         deps.Logger,
		balances:    make(map[string]*big.Int),
		totalHeld:   new(big.Int),
		persistChan: deps.PersistChan,
		publishChan: deps.PublishChan,
		now:         time.Now,
	}
	if l.metrics != nil {
		l.metrics.SlippageBps.Set(float64(l.slippageBps))
		l.metrics.AvailableCapacity.Set(bigFloat(cfg.GlobalCapacity))
	}
	return l, nil
}

// Deposit pulls amountNative of sym from the principal, converts it into
// accounting units, enforces the minimum-deposit and capacity invariants on
// the realized amount, and credits the principal's balance. Returns the
// credited amount.
func (l *Ledger) Deposit(ctx context.Context, principal string, sym asset.Symbol, amountNative *big.Int) (*big.Int, error) {
	start := l.now()

	// Preconditions, no state touched.
	if amountNative == nil || amountNative.Sign() <= 0 {
		l.rejectDeposit(sym, "invalid_amount")
		return nil, ErrInvalidAmount
	}
	if !l.registry.IsAccepted(sym) {
		l.rejectDeposit(sym, "asset_not_accepted")
		return nil, fmt.Errorf("%w: %q", ErrAssetNotAccepted, sym)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Custody in. Fails with no state change.
	if err := l.custodian.TransferIn(ctx, principal, sym, amountNative); err != nil {
		l.rejectDeposit(sym, "transfer_failed")
		return nil, fmt.Errorf("custody in %s %s: %w", amountNative, sym, err)
	}

	accounting, _ := l.registry.Accounting()

	// Valuation. The accounting asset credits one-to-one; everything else
	// goes through the conversion source.
	credited := new(big.Int).Set(amountNative)
	var swapped *event.Swapped
	if sym != accounting {
		route := l.registry.RouteFor(sym)

		estimate, err := l.source.Quote(ctx, route, amountNative)
		if err != nil {
			l.refundNative(ctx, principal, sym, amountNative)
			l.rejectDeposit(sym, "quote_failed")
			l.swapFailed(sym, "quote")
			return nil, fmt.Errorf("quote %q: %w", sym, err)
		}

		minOut := fixedpoint.MinOutputAfterSlippage(estimate, l.slippageBps)
		deadline := l.now().Add(l.cfg.ExecuteDeadline)

		out, err := l.source.Execute(ctx, route, amountNative, minOut, l.cfg.VaultPrincipal, deadline)
		if err != nil {
			// A failed Execute leaves no custody change behind (router
			// contract), so the pulled native amount is refundable.
			l.refundNative(ctx, principal, sym, amountNative)
			l.rejectDeposit(sym, "execute_failed")
			l.swapFailed(sym, "execute")
			return nil, fmt.Errorf("execute %q: %w", sym, err)
		}

		credited = out
		if l.source.Custodial() {
			swapped = &event.Swapped{
				AssetIn:   sym,
				AssetOut:  accounting,
				AmountIn:  new(big.Int).Set(amountNative),
				AmountOut: new(big.Int).Set(out),
			}
		}
	}

	// Invariants on the realized amount. Rejection after conversion must
	// hand the pulled value back.
	if credited.Cmp(l.cfg.MinimumDeposit) < 0 {
		l.compensate(ctx, principal, sym, amountNative, credited, swapped != nil)
		l.rejectDeposit(sym, "deposit_too_small")
		return nil, fmt.Errorf("%w: credited %s, minimum %s", ErrDepositTooSmall, credited, l.cfg.MinimumDeposit)
	}
	newTotal := new(big.Int).Add(l.totalHeld, credited)
	if newTotal.Cmp(l.cfg.GlobalCapacity) > 0 {
		l.compensate(ctx, principal, sym, amountNative, credited, swapped != nil)
		l.rejectDeposit(sym, "capacity_exceeded")
		return nil, fmt.Errorf("%w: total would reach %s, capacity %s", ErrCapacityExceeded, newTotal, l.cfg.GlobalCapacity)
	}

	// Effects.
	bal := l.balanceRefLocked(principal)
	bal.Add(bal, credited)
	l.totalHeld = newTotal
	l.depositCount++

	if swapped != nil {
		l.emitLocked(event.TypeSwapped, *swapped, nil)
		if l.metrics != nil {
			l.metrics.SwapsExecuted.WithLabelValues(string(sym)).Inc()
		}
	}
	l.emitLocked(event.TypeDeposited, event.Deposited{
		Principal:      principal,
		Asset:          sym,
		AmountNative:   new(big.Int).Set(amountNative),
		AmountCredited: new(big.Int).Set(credited),
	}, []BalanceUpdate{{Principal: principal, Balance: new(big.Int).Set(bal)}})

	l.log.Info().
		Str("principal", principal).
		Str("asset", string(sym)).
		Str("amount_native", amountNative.String()).
		Str("amount_credited", credited.String()).
		Int64("sequence", l.sequence).
		Msg("deposit credited")

	if l.metrics != nil {
		l.metrics.DepositsCredited.WithLabelValues(string(sym)).Inc()
		l.metrics.DepositDuration.WithLabelValues(string(sym)).Observe(l.now().Sub(start).Seconds())
	}

	return new(big.Int).Set(credited), nil
}

// Withdraw debits amount accounting units from the principal and transfers
// them out. Effects are applied before the outbound custody call and rolled
// back if it fails.
func (l *Ledger) Withdraw(ctx context.Context, principal string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		l.rejectWithdraw("invalid_amount")
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[principal]
	if !ok || bal.Cmp(amount) < 0 {
		l.rejectWithdraw("insufficient_balance")
		return fmt.Errorf("%w: %s has %s, requested %s", ErrInsufficientBalance, principal, l.balanceValueLocked(principal), amount)
	}
	if amount.Cmp(l.cfg.WithdrawalCeiling) > 0 {
		l.rejectWithdraw("limit_exceeded")
		return fmt.Errorf("%w: %s above ceiling %s", ErrWithdrawalLimitExceeded, amount, l.cfg.WithdrawalCeiling)
	}

	return l.withdrawLocked(ctx, principal, amount)
}

// WithdrawAll withdraws min(balance, ceiling) and returns the amount moved.
func (l *Ledger) WithdrawAll(ctx context.Context, principal string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[principal]
	if !ok || bal.Sign() == 0 {
		l.rejectWithdraw("insufficient_balance")
		return nil, fmt.Errorf("%w: %s has no balance", ErrInsufficientBalance, principal)
	}

	amount := new(big.Int).Set(bal)
	if amount.Cmp(l.cfg.WithdrawalCeiling) > 0 {
		amount.Set(l.cfg.WithdrawalCeiling)
	}

	if err := l.withdrawLocked(ctx, principal, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// withdrawLocked applies the effects-before-interaction ordering: the
// balance is decremented before the outbound transfer, so a reentrant call
// observes the reduced balance; a failed transfer restores the effects.
func (l *Ledger) withdrawLocked(ctx context.Context, principal string, amount *big.Int) error {
	start := l.now()

	bal := l.balances[principal]
	bal.Sub(bal, amount)
	l.totalHeld.Sub(l.totalHeld, amount)
	l.withdrawalCount++

	accounting, _ := l.registry.Accounting()
	if err := l.custodian.TransferOut(ctx, principal, accounting, amount); err != nil {
		bal.Add(bal, amount)
		l.totalHeld.Add(l.totalHeld, amount)
		l.withdrawalCount--
		l.rejectWithdraw("transfer_failed")
		return fmt.Errorf("custody out %s: %w", amount, err)
	}

	l.emitLocked(event.TypeWithdrawn, event.Withdrawn{
		Principal: principal,
		Amount:    new(big.Int).Set(amount),
	}, []BalanceUpdate{{Principal: principal, Balance: new(big.Int).Set(bal)}})

	l.log.Info().
		Str("principal", principal).
		Str("amount", amount.String()).
		Int64("sequence", l.sequence).
		Msg("withdrawal applied")

	if l.metrics != nil {
		l.metrics.WithdrawalsApplied.Inc()
		l.metrics.WithdrawDuration.Observe(l.now().Sub(start).Seconds())
	}
	return nil
}

// UpdateSlippageTolerance sets the tolerance applied to swap quotes.
// Administrative; gating happens at the service edge.
func (l *Ledger) UpdateSlippageTolerance(newBps uint64) error {
	if newBps > l.cfg.MaxSlippageBps {
		return fmt.Errorf("%w: %d above maximum %d", ErrInvalidSlippage, newBps, l.cfg.MaxSlippageBps)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.slippageBps
	l.slippageBps = newBps

	l.emitLocked(event.TypeSlippageUpdated, event.SlippageUpdated{OldBps: old, NewBps: newBps}, nil)
	if l.metrics != nil {
		l.metrics.SlippageBps.Set(float64(newBps))
	}
	l.log.Info().Uint64("old_bps", old).Uint64("new_bps", newBps).Msg("slippage tolerance updated")
	return nil
}

// RegisterAsset registers an asset and emits the registration event.
// Administrative; gating happens at the service edge.
func (l *Ledger) RegisterAsset(sym asset.Symbol, decimals uint8, route []asset.Symbol) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.registry.Register(sym, decimals, route); err != nil {
		return err
	}

	l.emitLocked(event.TypeAssetRegistered, event.AssetRegistered{
		Asset:    sym,
		Decimals: decimals,
		Route:    l.registry.RouteFor(sym),
	}, nil)
	l.log.Info().Str("asset", string(sym)).Uint8("decimals", decimals).Msg("asset registered")
	return nil
}

// --- Queries (consistent snapshots under the read lock) ---

// BalanceOf returns the principal's balance in accounting units. Accounts
// are implicitly zero on first reference.
func (l *Ledger) BalanceOf(principal string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceValueLocked(principal)
}

// Stats returns the aggregate totals plus remaining capacity.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		TotalHeld:         new(big.Int).Set(l.totalHeld),
		DepositCount:      l.depositCount,
		WithdrawalCount:   l.withdrawalCount,
		AvailableCapacity: new(big.Int).Sub(l.cfg.GlobalCapacity, l.totalHeld),
	}
}

// SlippageBps returns the current slippage tolerance.
func (l *Ledger) SlippageBps() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slippageBps
}

// Sequence returns the last committed event sequence.
func (l *Ledger) Sequence() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequence
}

// EstimateConversion is the read-only valuation of a prospective deposit.
// The external quote runs outside the ledger lock; it depends on no ledger
// state beyond the route captured up front.
func (l *Ledger) EstimateConversion(ctx context.Context, sym asset.Symbol, amountNative *big.Int) (*big.Int, error) {
	if amountNative == nil || amountNative.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !l.registry.IsAccepted(sym) {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotAccepted, sym)
	}

	accounting, _ := l.registry.Accounting()
	if sym == accounting {
		return new(big.Int).Set(amountNative), nil
	}
	return l.source.Quote(ctx, l.registry.RouteFor(sym), amountNative)
}

// CheckConservation recomputes the sum of all balances and compares it to
// totalHeld. A mismatch means corrupted accounting.
func (l *Ledger) CheckConservation() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum := new(big.Int)
	for _, bal := range l.balances {
		if bal.Sign() < 0 {
			return fmt.Errorf("negative balance found: %s", bal)
		}
		sum.Add(sum, bal)
	}
	if sum.Cmp(l.totalHeld) != 0 {
		return fmt.Errorf("conservation violated: sum %s, totalHeld %s", sum, l.totalHeld)
	}
	return nil
}

// --- Internals ---

func (l *Ledger) balanceRefLocked(principal string) *big.Int {
	if _, ok := l.balances[principal]; !ok {
		l.balances[principal] = new(big.Int)
	}
	return l.balances[principal]
}

func (l *Ledger) balanceValueLocked(principal string) *big.Int {
	if bal, ok := l.balances[principal]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// refundNative returns the pulled native amount after a conversion failure.
func (l *Ledger) refundNative(ctx context.Context, principal string, sym asset.Symbol, amount *big.Int) {
	if err := l.custodian.TransferOut(ctx, principal, sym, amount); err != nil {
		l.log.Error().
			Str("principal", principal).
			Str("asset", string(sym)).
			Str("amount", amount.String()).
			Err(err).
			Msg("refund failed, manual reconciliation required")
	}
}

// compensate hands the pulled value back after a post-conversion policy
// rejection: the realized accounting output when the swap moved custody,
// the original native amount otherwise.
func (l *Ledger) compensate(ctx context.Context, principal string, sym asset.Symbol, amountNative, credited *big.Int, custodialSwap bool) {
	if custodialSwap {
		accounting, _ := l.registry.Accounting()
		l.refundNative(ctx, principal, accounting, credited)
		return
	}
	l.refundNative(ctx, principal, sym, amountNative)
}

// stateDigestLocked serializes balances and totals deterministically for
// the hash chain.
func (l *Ledger) stateDigestLocked() []byte {
	principals := make([]string, 0, len(l.balances))
	for p := range l.balances {
		principals = append(principals, p)
	}
	sort.Strings(principals)

	var digest []byte
	for _, p := range principals {
		digest = append(digest, p...)
		digest = append(digest, ':')
		digest = append(digest, l.balances[p].String()...)
		digest = append(digest, ';')
	}
	digest = append(digest, l.totalHeld.String()...)
	digest = append(digest, fmt.Sprintf("|%d|%d|%d", l.depositCount, l.withdrawalCount, l.slippageBps)...)
	return digest
}

// emitLocked assigns the next sequence, extends the hash chain, and hands
// the output downstream.
func (l *Ledger) emitLocked(t event.Type, payload any, updates []BalanceUpdate) {
	l.sequence++

	prev := l.hasher.PrevHash()
	hash := l.hasher.ComputeHash(l.sequence, l.stateDigestLocked())

	out := Output{
		Envelope: event.Envelope{
			Sequence:  l.sequence,
			EventID:   uuid.New(),
			Type:      t,
			Timestamp: l.now(),
			Payload:   payload,
			StateHash: hash,
			PrevHash:  prev,
		},
		Balances: updates,
		Totals: TotalsSnapshot{
			TotalHeld:       new(big.Int).Set(l.totalHeld),
			DepositCount:    l.depositCount,
			WithdrawalCount: l.withdrawalCount,
		},
	}

	if l.persistChan != nil {
		l.persistChan <- out
	}
	if l.publishChan != nil {
		select {
		case l.publishChan <- out:
		default:
			if l.metrics != nil {
				l.metrics.PublishDrops.Inc()
			}
		}
	}

	if l.metrics != nil {
		l.metrics.LedgerSequence.Set(float64(l.sequence))
		l.metrics.TotalHeld.Set(bigFloat(l.totalHeld))
		l.metrics.AvailableCapacity.Set(bigFloat(new(big.Int).Sub(l.cfg.GlobalCapacity, l.totalHeld)))
		l.metrics.AccountCount.Set(float64(len(l.balances)))
	}
}

func (l *Ledger) rejectDeposit(sym asset.Symbol, reason string) {
	if l.metrics != nil {
		l.metrics.DepositsRejected.WithLabelValues(string(sym), reason).Inc()
	}
}

func (l *Ledger) rejectWithdraw(reason string) {
	if l.metrics != nil {
		l.metrics.WithdrawalsRejected.WithLabelValues(reason).Inc()
	}
}

func (l *Ledger) swapFailed(sym asset.Symbol, reason string) {
	if l.metrics != nil {
		l.metrics.SwapsFailed.WithLabelValues(string(sym), reason).Inc()
	}
}

func bigFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
