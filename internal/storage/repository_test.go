package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	if v, _, err := MigrationVersion(path); err != nil || v != 0 {
		t.Fatalf("fresh database: version=%d err=%v", v, err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Running twice is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, dirty, err := MigrationVersion(path)
	if err != nil || v != 1 || dirty {
		t.Fatalf("unexpected version: v=%d dirty=%v err=%v", v, dirty, err)
	}
}

func TestSQLiteAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	acc, err := repo.CreateAccount(ctx, core.Account{BankID: "088", AccountNo: "110-222"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if acc.ID == 0 || acc.BalanceKnown || acc.Version != 0 {
		t.Fatalf("unexpected new account: %+v", acc)
	}

	asOf := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var food core.AccountSlot
	err = repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if err := tx.SetBalance(ctx, acc.ID, 1_500_000, asOf); err != nil {
			return err
		}
		food, err = tx.CreateSlot(ctx, core.AccountSlot{
			AccountID: acc.ID, CategoryCode: "FOOD", DisplayName: "Food",
			Budget: 420_000, Remaining: 420_000,
		})
		if err != nil {
			return err
		}
		if _, err := tx.CreateSlot(ctx, core.AccountSlot{
			AccountID: acc.ID, DisplayName: "Trip", IsCustom: true,
		}); err != nil {
			return err
		}
		return tx.BumpVersion(ctx, acc.ID, 0)
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	got, slots, err := repo.Snapshot(ctx, acc.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !got.BalanceKnown || got.Balance != 1_500_000 || got.Version != 1 || !got.BalanceAsOf.Equal(asOf) {
		t.Fatalf("unexpected account: %+v", got)
	}
	if len(slots) != 2 || slots[0].ID != food.ID || slots[1].CategoryCode != "" || !slots[1].IsCustom {
		t.Fatalf("unexpected slots: %+v", slots)
	}

	if _, err := repo.GetAccount(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	acc, _ := repo.CreateAccount(ctx, core.Account{BankID: "004", AccountNo: "1"})

	boom := errors.New("boom")
	err := repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if err := tx.SetBalance(ctx, acc.ID, 10, time.Now()); err != nil {
			return err
		}
		if _, err := tx.CreateSlot(ctx, core.AccountSlot{AccountID: acc.ID, CategoryCode: "CAFE", DisplayName: "Cafe"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, slots, _ := repo.Snapshot(ctx, acc.ID)
	if got.BalanceKnown || len(slots) != 0 {
		t.Fatalf("rollback leaked writes: %+v %+v", got, slots)
	}

	err = repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error { return tx.BumpVersion(ctx, acc.ID, 7) })
	if !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestSQLiteTransactionsSplitsAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	acc, _ := repo.CreateAccount(ctx, core.Account{BankID: "004", AccountNo: "1"})
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var slot core.AccountSlot
	err := repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		var err error
		slot, err = tx.CreateSlot(ctx, core.AccountSlot{AccountID: acc.ID, CategoryCode: "FOOD", DisplayName: "Food"})
		if err != nil {
			return err
		}
		txs := []core.Transaction{
			{ID: "t1", AccountID: acc.ID, SlotID: slot.ID, Type: core.Withdrawal, Amount: 12_000, OccurredAt: day.Add(9 * time.Hour)},
			{ID: "t2", AccountID: acc.ID, SlotID: slot.ID, Type: core.Withdrawal, Amount: 3_000, OccurredAt: day.Add(30 * time.Hour)},
			{ID: "t3", AccountID: acc.ID, SlotID: core.UncategorizedSlotID, Type: core.Deposit, Amount: 50_000, OccurredAt: day},
		}
		for _, tr := range txs {
			if ok, err := tx.InsertTransaction(ctx, tr); err != nil || !ok {
				t.Fatalf("insert %s: ok=%v err=%v", tr.ID, ok, err)
			}
		}
		if ok, err := tx.InsertTransaction(ctx, txs[0]); err != nil || ok {
			t.Fatalf("duplicate insert: ok=%v err=%v", ok, err)
		}
		if err := tx.InsertSplit(ctx, core.Split{TransactionID: "t1", AccountID: acc.ID, SlotID: slot.ID, Participants: 3, PerPerson: 4000, OthersShare: 8000}); err != nil {
			return err
		}
		for i, budget := range []core.Money{100, 200} {
			if err := tx.AppendHistory(ctx, core.SlotHistoryEntry{
				ID: string(rune('a' + i)), AccountID: acc.ID, AccountSlotID: slot.ID,
				OldBudget: budget - 100, NewBudget: budget, Reason: core.ReasonReallocate, ChangedAt: day,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	inDay, err := repo.ListSlotTransactions(ctx, acc.ID, slot.ID, day, day.Add(24*time.Hour))
	if err != nil || len(inDay) != 1 || inDay[0].ID != "t1" || !inDay[0].OccurredAt.Equal(day.Add(9*time.Hour)) {
		t.Fatalf("unexpected day range: %+v err=%v", inDay, err)
	}
	uncat, _ := repo.ListSlotTransactions(ctx, acc.ID, core.UncategorizedSlotID, day, day.Add(time.Hour))
	if len(uncat) != 1 || uncat[0].ID != "t3" || !uncat[0].SlotID.IsUncategorized() {
		t.Fatalf("unexpected uncategorized: %+v", uncat)
	}

	split, ok, err := repo.GetSplit(ctx, acc.ID, "t1")
	if err != nil || !ok || split.OthersShare != 8000 {
		t.Fatalf("unexpected split: %+v ok=%v err=%v", split, ok, err)
	}
	err = repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		return tx.InsertSplit(ctx, core.Split{TransactionID: "t1", AccountID: acc.ID, SlotID: slot.ID, Participants: 2})
	})
	if !errors.Is(err, core.ErrAlreadySplit) {
		t.Fatalf("expected ErrAlreadySplit, got %v", err)
	}

	hist, _ := repo.ListHistory(ctx, acc.ID, slot.ID)
	if len(hist) != 2 || hist[0].NewBudget != 200 || hist[1].NewBudget != 100 {
		t.Fatalf("history should be most recent first: %+v", hist)
	}

	err = repo.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if n, err := tx.UnassignSlotTransactions(ctx, acc.ID, slot.ID); err != nil || n != 2 {
			t.Fatalf("unassign: n=%d err=%v", n, err)
		}
		return tx.DeleteSlot(ctx, acc.ID, slot.ID)
	})
	if err != nil {
		t.Fatalf("delete slot: %v", err)
	}
	moved, _ := repo.GetTransaction(ctx, acc.ID, "t2")
	if !moved.SlotID.IsUncategorized() {
		t.Fatalf("expected t2 uncategorized: %+v", moved)
	}
	if _, err := repo.GetSlot(ctx, acc.ID, slot.ID); !errors.Is(err, core.ErrSlotNotFound) {
		t.Fatalf("expected slot not found, got %v", err)
	}
}
