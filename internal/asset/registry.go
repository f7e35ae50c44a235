package asset

import (
	"errors"
	"fmt"
	"sync"
)

// Symbol identifies an asset within the vault.
type Symbol string

// NativeSymbol is the reserved sentinel for the chain-native asset.
const NativeSymbol Symbol = "NATIVE"

var (
	// ErrInvalidAsset is returned when registering the zero symbol, the
	// native sentinel, or the accounting asset itself.
	ErrInvalidAsset = errors.New("asset: invalid asset for registration")

	// ErrInvalidRoute is returned when a custom route does not start with
	// the registered asset or does not end at the accounting asset.
	ErrInvalidRoute = errors.New("asset: route must start at the asset and end at the accounting asset")

	// ErrUnknownAsset is returned by acceptance-flag updates on assets that
	// were never registered.
	ErrUnknownAsset = errors.New("asset: unknown asset")
)

// Info is the registry record for one accepted asset.
type Info struct {
	Symbol   Symbol
	Decimals uint8 // native precision
	Accepted bool
	Route    []Symbol // conversion route ending at the accounting asset; nil means default
}

// Registry tracks which assets the vault accepts, their native precision,
// and the conversion route to the accounting asset. The accounting asset is
// always accepted with an identity route; the native sentinel is registered
// at construction. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	accounting Symbol
	assets     map[Symbol]Info
}

// NewRegistry creates a registry for the given accounting asset. The
// accounting asset and the native sentinel are pre-registered and accepted.
func NewRegistry(accounting Symbol, accountingDecimals, nativeDecimals uint8) *Registry {
	r := &Registry{
		accounting: accounting,
		assets:     make(map[Symbol]Info),
	}
	r.assets[accounting] = Info{Symbol: accounting, Decimals: accountingDecimals, Accepted: true}
	if accounting != NativeSymbol {
		r.assets[NativeSymbol] = Info{Symbol: NativeSymbol, Decimals: nativeDecimals, Accepted: true}
	}
	return r
}

// Accounting returns the accounting asset and its precision.
func (r *Registry) Accounting() (Symbol, uint8) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounting, r.assets[r.accounting].Decimals
}

// IsAccepted reports whether the asset is currently accepted for deposits.
func (r *Registry) IsAccepted(s Symbol) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[s]
	return ok && info.Accepted
}

// DecimalsOf returns the native precision of a registered asset.
func (r *Registry) DecimalsOf(s Symbol) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[s]
	return info.Decimals, ok
}

// Get returns the full registry record for an asset.
func (r *Registry) Get(s Symbol) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[s]
	if ok && info.Route != nil {
		info.Route = append([]Symbol(nil), info.Route...)
	}
	return info, ok
}

// RouteFor returns the conversion route from an asset to the accounting
// asset: the identity singleton for the accounting asset itself, the
// registered custom route if present, or the default direct two-hop route.
func (r *Registry) RouteFor(s Symbol) []Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s == r.accounting {
		return []Symbol{r.accounting}
	}
	if info, ok := r.assets[s]; ok && len(info.Route) > 0 {
		return append([]Symbol(nil), info.Route...)
	}
	return []Symbol{s, r.accounting}
}

// Register adds an asset with its native precision and an optional custom
// conversion route. An empty route selects the default direct route.
func (r *Registry) Register(s Symbol, decimals uint8, route []Symbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s == "" || s == NativeSymbol {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	if s == r.accounting {
		return fmt.Errorf("%w: %q is the accounting asset", ErrInvalidAsset, s)
	}
	if len(route) > 0 {
		if route[0] != s || route[len(route)-1] != r.accounting {
			return fmt.Errorf("%w: got %v", ErrInvalidRoute, route)
		}
	}

	r.assets[s] = Info{
		Symbol:   s,
		Decimals: decimals,
		Accepted: true,
		Route:    append([]Symbol(nil), route...),
	}
	return nil
}

// SetAccepted toggles the acceptance flag of a registered asset. The
// accounting asset cannot be un-accepted.
func (r *Registry) SetAccepted(s Symbol, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s == r.accounting && !accepted {
		return fmt.Errorf("%w: accounting asset is always accepted", ErrInvalidAsset)
	}
	info, ok := r.assets[s]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	info.Accepted = accepted
	r.assets[s] = info
	return nil
}

// Snapshot returns a copy of all registry records, for persistence.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.assets))
	for _, info := range r.assets {
		if info.Route != nil {
			info.Route = append([]Symbol(nil), info.Route...)
		}
		out = append(out, info)
	}
	return out
}

// Restore replaces registry records from a snapshot. The accounting asset's
// record is kept if the snapshot omits it.
func (r *Registry) Restore(infos []Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range infos {
		if info.Symbol == "" {
			continue
		}
		r.assets[info.Symbol] = info
	}
}
