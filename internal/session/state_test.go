package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateIdle, StateBrowsingMenu, true},
		{StateIdle, StateOrderCompleted, false},
		{StateAddingItem, StateChoosingAddons, true},
		{StateAddingItem, StateConfirmingItem, true}, // addon-less product skips choosing_addons
		{StateConfirmingItem, StateBrowsingMenu, true},
		{StateConfirmingItem, StateCollectingAddress, true},
		{StateConfirmingOrder, StateBrowsingMenu, true}, // rejection regresses
		{StateConfirmingOrder, StateOrderCompleted, true},
		{StateOrderCompleted, StateIdle, true},
		{StateOrderCompleted, StateBrowsingMenu, false},
		{StateBrowsingMenu, StateBrowsingMenu, true}, // self-loop always legal
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStateValid(t *testing.T) {
	if !StateBrowsingMenu.Valid() {
		t.Error("browsing_menu should be valid")
	}
	if State("shopping").Valid() {
		t.Error("unknown state should be invalid")
	}
}

func TestMemoryStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	key := Key{RestaurantID: uuid.New(), Phone: "+351912345678"}

	conv, err := store.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if conv.State != StateIdle {
		t.Errorf("new conversation state = %s, want idle", conv.State)
	}

	// Second call returns the same conversation, not a fresh one.
	conv.State = StateBrowsingMenu
	if err := store.Update(ctx, conv); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, err := store.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if again.State != StateBrowsingMenu {
		t.Errorf("state after update = %s, want browsing_menu", again.State)
	}
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	key := Key{RestaurantID: uuid.New(), Phone: "+351912345678"}

	a, _ := store.GetOrCreate(ctx, key)
	b, _ := store.GetOrCreate(ctx, key)

	a.State = StateBrowsingMenu
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}

	b.State = StateAddingItem
	if err := store.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale update error = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	key := Key{RestaurantID: uuid.New(), Phone: "+351912345678"}

	conv, _ := store.GetOrCreate(ctx, key)
	cartID := uuid.New()
	conv.State = StateConfirmingOrder
	conv.CartID = &cartID
	if err := store.Update(ctx, conv); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, _ := store.GetOrCreate(ctx, key)
	if got.State != StateIdle || got.CartID != nil {
		t.Errorf("after reset: state=%s cart=%v, want idle/nil", got.State, got.CartID)
	}
}
