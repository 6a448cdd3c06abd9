package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"slotledger/internal/core"
	"slotledger/internal/ledger"
	"slotledger/internal/ledger/memory"
)

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	acc, err := store.CreateAccount(ctx, core.Account{BankID: "088", AccountNo: "1"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	fixed := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	h := New(store).WithClock(func() time.Time { return fixed })

	var first core.SlotHistoryEntry
	err = store.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		var err error
		first, err = h.Append(ctx, tx, Change{AccountID: acc.ID, SlotID: 5, OldBudget: 0, NewBudget: 100, Reason: core.ReasonCommit})
		if err != nil {
			return err
		}
		_, err = h.Append(ctx, tx, Change{AccountID: acc.ID, SlotID: 5, OldBudget: 100, NewBudget: 60, Reason: core.ReasonReallocate, Acknowledged: true})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Fatalf("entry id should be a uuid: %q", first.ID)
	}
	if !first.ChangedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamp: %v", first.ChangedAt)
	}

	entries, err := h.List(ctx, acc.ID, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].NewBudget != 60 || !entries[0].Acknowledged || entries[1].ID != first.ID {
		t.Fatalf("expected most recent first: %+v", entries)
	}

	other, _ := h.List(ctx, acc.ID, 6)
	if len(other) != 0 {
		t.Fatalf("unexpected entries for other slot: %+v", other)
	}
}

func TestAppendDiscardedOnRollback(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	acc, _ := store.CreateAccount(ctx, core.Account{BankID: "088", AccountNo: "1"})
	h := New(store)

	_ = store.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if _, err := h.Append(ctx, tx, Change{AccountID: acc.ID, SlotID: 1, NewBudget: 10}); err != nil {
			return err
		}
		return core.ErrInsufficientSource
	})
	entries, _ := h.List(ctx, acc.ID, 1)
	if len(entries) != 0 {
		t.Fatalf("rolled back entry leaked: %+v", entries)
	}
}
