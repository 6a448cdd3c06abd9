package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/ledger"
)

func linkAccount(t *testing.T, s *Store) core.Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), core.Account{BankID: "088", AccountNo: "110-222-333"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func TestCreateAccountAssignsIDs(t *testing.T) {
	s := New()
	a := linkAccount(t, s)
	b := linkAccount(t, s)
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("unexpected ids: %d %d", a.ID, b.ID)
	}
	if a.BalanceKnown || a.LinkedAt.IsZero() {
		t.Fatalf("new account should have unknown balance and a link time: %+v", a)
	}
	if _, err := s.CreateAccount(context.Background(), core.Account{}); !errors.Is(err, core.ErrEmptyBankID) {
		t.Fatalf("expected ErrEmptyBankID, got %v", err)
	}
	all, _ := s.ListAccounts(context.Background())
	if len(all) != 2 || all[0].ID != 1 {
		t.Fatalf("unexpected accounts: %+v", all)
	}
}

func TestAtomicCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := linkAccount(t, s)

	err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if err := tx.SetBalance(ctx, acc.ID, 1000, time.Now()); err != nil {
			return err
		}
		_, err := tx.CreateSlot(ctx, core.AccountSlot{AccountID: acc.ID, CategoryCode: "FOOD", Budget: 400, Remaining: 400})
		return err
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	boom := errors.New("boom")
	err = s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if err := tx.SetBalance(ctx, acc.ID, 5, time.Now()); err != nil {
			return err
		}
		if _, err := tx.CreateSlot(ctx, core.AccountSlot{AccountID: acc.ID, CategoryCode: "CAFE"}); err != nil {
			return err
		}
		// Reads inside the unit see its own writes.
		slots, _ := tx.ListSlots(ctx, acc.ID)
		if len(slots) != 2 {
			t.Errorf("expected 2 slots in flight, got %d", len(slots))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, slots, err := s.Snapshot(ctx, acc.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got.Balance != 1000 || len(slots) != 1 || slots[0].CategoryCode != "FOOD" {
		t.Fatalf("rollback leaked writes: %+v %+v", got, slots)
	}
}

func TestAtomicCancelledContextRollsBack(t *testing.T) {
	s := New()
	acc := linkAccount(t, s)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		if err := tx.SetBalance(ctx, acc.ID, 700, time.Now()); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got, _ := s.GetAccount(context.Background(), acc.ID)
	if got.BalanceKnown {
		t.Fatalf("cancelled unit of work should not commit: %+v", got)
	}
}

func TestTransactionsAndHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := linkAccount(t, s)
	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	var food core.AccountSlot
	err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		var err error
		food, err = tx.CreateSlot(ctx, core.AccountSlot{AccountID: acc.ID, CategoryCode: "FOOD"})
		if err != nil {
			return err
		}
		for i, id := range []core.TransactionID{"b", "a", "c"} {
			inserted, err := tx.InsertTransaction(ctx, core.Transaction{
				ID: id, AccountID: acc.ID, SlotID: food.ID, Type: core.Withdrawal,
				Amount: 100, OccurredAt: day.Add(time.Duration(i) * time.Hour),
			})
			if err != nil || !inserted {
				t.Fatalf("insert %s: %v %v", id, inserted, err)
			}
		}
		if dup, _ := tx.InsertTransaction(ctx, core.Transaction{ID: "a", AccountID: acc.ID}); dup {
			t.Fatal("duplicate id should not insert")
		}
		for _, budget := range []core.Money{10, 20} {
			if err := tx.AppendHistory(ctx, core.SlotHistoryEntry{AccountID: acc.ID, AccountSlotID: food.ID, NewBudget: budget}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	txs, _ := s.ListSlotTransactions(ctx, acc.ID, food.ID, day, day.Add(2*time.Hour))
	if len(txs) != 2 || txs[0].ID != "b" || txs[1].ID != "a" {
		t.Fatalf("unexpected range result: %+v", txs)
	}

	hist, _ := s.ListHistory(ctx, acc.ID, food.ID)
	if len(hist) != 2 || hist[0].NewBudget != 20 {
		t.Fatalf("history should be most recent first: %+v", hist)
	}

	err = s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error {
		n, err := tx.UnassignSlotTransactions(ctx, acc.ID, food.ID)
		if n != 3 {
			t.Errorf("expected 3 unassigned, got %d", n)
		}
		return err
	})
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	tx, _ := s.GetTransaction(ctx, acc.ID, "c")
	if !tx.SlotID.IsUncategorized() {
		t.Fatalf("transaction should be uncategorized: %+v", tx)
	}
	if _, err := s.GetTransaction(ctx, acc.ID, "zzz"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBumpVersionDetectsStaleExpectation(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := linkAccount(t, s)

	if err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error { return tx.BumpVersion(ctx, acc.ID, 0) }); err != nil {
		t.Fatalf("bump: %v", err)
	}
	err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error { return tx.BumpVersion(ctx, acc.ID, 0) })
	if !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestTxRejectsOtherAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := linkAccount(t, s)
	b := linkAccount(t, s)

	err := s.Atomic(ctx, a.ID, func(tx ledger.Tx) error {
		return tx.SetBalance(ctx, b.ID, 1, time.Now())
	})
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if err := s.Atomic(ctx, 99, func(ledger.Tx) error { return nil }); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for unknown account, got %v", err)
	}
}

func TestSplitsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := linkAccount(t, s)
	split := core.Split{TransactionID: "t1", AccountID: acc.ID, Participants: 2}

	if err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error { return tx.InsertSplit(ctx, split) }); err != nil {
		t.Fatalf("insert split: %v", err)
	}
	err := s.Atomic(ctx, acc.ID, func(tx ledger.Tx) error { return tx.InsertSplit(ctx, split) })
	if !errors.Is(err, core.ErrAlreadySplit) {
		t.Fatalf("expected ErrAlreadySplit, got %v", err)
	}
	got, ok, _ := s.GetSplit(ctx, acc.ID, "t1")
	if !ok || got.Participants != 2 {
		t.Fatalf("unexpected split: %+v %v", got, ok)
	}
}
