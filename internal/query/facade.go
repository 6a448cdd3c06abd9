// Package query provides the read-only projections served to clients: the
// reconciled slot list, daily spending of a slot and its budget history.
package query

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/history"
	"slotledger/internal/ledger"
	"slotledger/internal/reconcile"
)

// MaxPeriodDays bounds a daily spending request.
const MaxPeriodDays = 366

const day = 24 * time.Hour

type Facade struct {
	store   ledger.Store
	catalog *catalog.Catalog
	history *history.Ledger
}

func New(store ledger.Store, cat *catalog.Catalog) *Facade {
	return &Facade{store: store, catalog: cat, history: history.New(store)}
}

// ListSlots returns the reconciled slots of an account, Uncategorized included.
func (f *Facade) ListSlots(ctx context.Context, accountID core.AccountID) (reconcile.Reconciliation, error) {
	acc, slots, err := f.store.Snapshot(ctx, accountID)
	if err != nil {
		return reconcile.Reconciliation{}, err
	}
	return reconcile.Compute(acc, slots, f.catalog)
}

// History returns the budget changes of a slot, most recent first.
func (f *Facade) History(ctx context.Context, accountID core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error) {
	if err := f.checkSlot(ctx, accountID, slotID); err != nil {
		return nil, err
	}
	return f.history.List(ctx, accountID, slotID)
}

// DailySpend is the spending of one calendar day (UTC).
type DailySpend struct {
	Date       time.Time
	Spent      core.Money
	Cumulative core.Money
}

// SpendingSeries is a single-use sequence of DailySpend values.
type SpendingSeries struct {
	start, end time.Time
	spent      map[time.Time]core.Money
	used       atomic.Bool
}

// Days reports how many values the series yields.
func (s *SpendingSeries) Days() int {
	return int(s.end.Sub(s.start)/day) + 1
}

// All yields one value per day from start to end inclusive, days without
// spending included. It can be ranged over once; later ranges yield nothing.
func (s *SpendingSeries) All() iter.Seq[DailySpend] {
	return func(yield func(DailySpend) bool) {
		if !s.used.CompareAndSwap(false, true) {
			return
		}
		var total core.Money
		for d := s.start; !d.After(s.end); d = d.Add(day) {
			spent := s.spent[d]
			total += spent
			if !yield(DailySpend{Date: d, Spent: spent, Cumulative: total}) {
				return
			}
		}
	}
}

// DailySpending aggregates the outflows charged to a slot per calendar day
// over [start, end], both dates inclusive. Credits do not reduce spending.
// A split withdrawal counts only the account holder's share.
func (f *Facade) DailySpending(ctx context.Context, accountID core.AccountID, slotID core.SlotID, start, end time.Time) (*SpendingSeries, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("period %s..%s is inverted: %w", start.Format(time.DateOnly), end.Format(time.DateOnly), core.ErrInvalidPeriod)
	}
	if end.Sub(start)/day+1 > MaxPeriodDays {
		return nil, fmt.Errorf("period longer than %d days: %w", MaxPeriodDays, core.ErrInvalidPeriod)
	}
	if err := f.checkSlot(ctx, accountID, slotID); err != nil {
		return nil, err
	}

	txs, err := f.store.ListSlotTransactions(ctx, accountID, slotID, start, end.Add(day))
	if err != nil {
		return nil, fmt.Errorf("list slot transactions: %w", err)
	}
	spent := make(map[time.Time]core.Money)
	for _, t := range txs {
		if !t.Type.IsDebit() {
			continue
		}
		amount := t.Amount
		split, ok, err := f.store.GetSplit(ctx, accountID, t.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			amount = split.PerPerson
		}
		spent[truncateDay(t.OccurredAt)] += amount
	}
	return &SpendingSeries{start: start, end: end, spent: spent}, nil
}

func (f *Facade) checkSlot(ctx context.Context, accountID core.AccountID, slotID core.SlotID) error {
	if slotID.IsUncategorized() {
		_, err := f.store.GetAccount(ctx, accountID)
		return err
	}
	_, err := f.store.GetSlot(ctx, accountID, slotID)
	return err
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
