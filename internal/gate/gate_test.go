package gate

import (
	"context"
	"errors"
	"testing"
)

func TestStaticGate_UserActionsOpen(t *testing.T) {
	g := NewStaticGate("root")
	ctx := context.Background()

	if err := g.Authorize(ctx, "alice", ActionDeposit); err != nil {
		t.Fatalf("deposit should be open: %v", err)
	}
	if err := g.Authorize(ctx, "alice", ActionWithdraw); err != nil {
		t.Fatalf("withdraw should be open: %v", err)
	}
}

func TestStaticGate_AdminRequiresListing(t *testing.T) {
	g := NewStaticGate("root")
	ctx := context.Background()

	if err := g.Authorize(ctx, "root", ActionAdmin); err != nil {
		t.Fatalf("listed admin rejected: %v", err)
	}
	if err := g.Authorize(ctx, "alice", ActionAdmin); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("want ErrNotAuthorized, got %v", err)
	}
}

func TestStaticGate_PauseBlocksEverything(t *testing.T) {
	g := NewStaticGate("root")
	ctx := context.Background()

	g.SetPaused(true)
	for _, action := range []Action{ActionDeposit, ActionWithdraw, ActionAdmin} {
		if err := g.Authorize(ctx, "root", action); !errors.Is(err, ErrPaused) {
			t.Fatalf("%s: want ErrPaused, got %v", action, err)
		}
	}

	g.SetPaused(false)
	if err := g.Authorize(ctx, "alice", ActionDeposit); err != nil {
		t.Fatalf("unpause should reopen: %v", err)
	}
}
