package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Action classifies gated operations.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
	ActionAdmin    Action = "admin"
)

var (
	// ErrNotAuthorized is returned when the principal lacks the role for
	// the requested action.
	ErrNotAuthorized = errors.New("gate: not authorized")

	// ErrPaused is returned while the vault is paused.
	ErrPaused = errors.New("gate: vault is paused")
)

// AccessGate supplies allow/deny decisions consumed by the service as a
// precondition on every mutating operation. Role management and the pause
// circuit breaker live outside the core; this is the seam they plug into.
type AccessGate interface {
	Authorize(ctx context.Context, principal string, action Action) error
}

// StaticGate is a minimal AccessGate: user actions are open unless paused,
// admin actions require a listed principal. Enough for dev and tests; a
// production deployment substitutes its own implementation.
type StaticGate struct {
	mu     sync.RWMutex
	paused atomic.Bool
	admins map[string]struct{}
}

func NewStaticGate(admins ...string) *StaticGate {
	g := &StaticGate{admins: make(map[string]struct{}, len(admins))}
	for _, a := range admins {
		g.admins[a] = struct{}{}
	}
	return g
}

// SetPaused toggles the pause state.
func (g *StaticGate) SetPaused(paused bool) {
	g.paused.Store(paused)
}

func (g *StaticGate) Authorize(_ context.Context, principal string, action Action) error {
	if g.paused.Load() {
		return ErrPaused
	}
	if action != ActionAdmin {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.admins[principal]; !ok {
		return fmt.Errorf("%w: %q may not perform %s", ErrNotAuthorized, principal, action)
	}
	return nil
}
