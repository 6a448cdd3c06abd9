// Package reconcile derives the Uncategorized remainder of an account and
// checks that the slot set adds up to the account balance.
//
// Everything here is a pure function of its inputs. Callers pass the account
// and slots they read inside their own unit of work.
package reconcile

import (
	"fmt"
	"slices"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
)

// SlotView is a slot decorated for display.
type SlotView struct {
	core.AccountSlot
	Label      string
	Color      string
	Icon       string
	OverBudget bool
}

// Reconciliation is the consistent view of one account.
type Reconciliation struct {
	Account       core.Account
	Slots         []SlotView // persisted slots in display order
	Uncategorized SlotView
	Balance       core.Money
	OverBudget    []core.SlotID
}

// Compute builds the reconciliation of acc over slots.
// It fails with core.ErrBalanceUnavailable until the feed has reported a balance.
func Compute(acc core.Account, slots []core.AccountSlot, cat *catalog.Catalog) (Reconciliation, error) {
	if !acc.BalanceKnown {
		return Reconciliation{}, fmt.Errorf("account %d: %w", acc.ID, core.ErrBalanceUnavailable)
	}

	ordered := SortSlots(slots, cat)
	rec := Reconciliation{
		Account: acc,
		Slots:   make([]SlotView, 0, len(ordered)),
		Balance: acc.Balance,
	}

	var allocated core.Money
	for _, s := range ordered {
		allocated += s.Remaining
		v := decorate(s, cat)
		if v.OverBudget {
			rec.OverBudget = append(rec.OverBudget, s.ID)
		}
		rec.Slots = append(rec.Slots, v)
	}

	rec.Uncategorized = SlotView{
		AccountSlot: core.AccountSlot{
			ID:          core.UncategorizedSlotID,
			AccountID:   acc.ID,
			DisplayName: core.UncategorizedName,
			Remaining:   acc.Balance - allocated,
		},
		Label: core.UncategorizedName,
	}
	if rec.Uncategorized.Remaining < 0 {
		rec.Uncategorized.OverBudget = true
		rec.OverBudget = append(rec.OverBudget, core.UncategorizedSlotID)
	}
	return rec, nil
}

// Verify re-checks the balance invariant and the structural rules of a
// reconciliation. Any failure wraps core.ErrInvariantViolated.
func Verify(rec Reconciliation) error {
	var sum core.Money
	seen := make(map[core.SlotID]struct{}, len(rec.Slots))
	for _, s := range rec.Slots {
		if s.ID.IsUncategorized() {
			return fmt.Errorf("persisted slot uses reserved id: %w", core.ErrInvariantViolated)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("slot %d listed twice: %w", s.ID, core.ErrInvariantViolated)
		}
		seen[s.ID] = struct{}{}
		if s.AccountID != rec.Account.ID {
			return fmt.Errorf("slot %d belongs to account %d: %w", s.ID, s.AccountID, core.ErrInvariantViolated)
		}
		if s.Budget < 0 {
			return fmt.Errorf("slot %d has negative budget %s: %w", s.ID, s.Budget, core.ErrInvariantViolated)
		}
		sum += s.Remaining
	}
	if rec.Uncategorized.Budget != 0 {
		return fmt.Errorf("uncategorized budget is %s: %w", rec.Uncategorized.Budget, core.ErrInvariantViolated)
	}
	if got := sum + rec.Uncategorized.Remaining; got != rec.Balance {
		return fmt.Errorf("slots sum to %s, balance is %s: %w", got, rec.Balance, core.ErrInvariantViolated)
	}
	if rec.Balance != rec.Account.Balance {
		return fmt.Errorf("stale balance %s, account reports %s: %w", rec.Balance, rec.Account.Balance, core.ErrInvariantViolated)
	}
	return nil
}

// All returns the persisted slots followed by Uncategorized.
func (r Reconciliation) All() []SlotView {
	out := make([]SlotView, 0, len(r.Slots)+1)
	out = append(out, r.Slots...)
	return append(out, r.Uncategorized)
}

// Find returns the view of slotID, including Uncategorized.
func (r Reconciliation) Find(slotID core.SlotID) (SlotView, bool) {
	if slotID.IsUncategorized() {
		return r.Uncategorized, true
	}
	for _, s := range r.Slots {
		if s.ID == slotID {
			return s, true
		}
	}
	return SlotView{}, false
}

// TotalBudget sums the budgets of persisted slots.
func (r Reconciliation) TotalBudget() core.Money {
	var total core.Money
	for _, s := range r.Slots {
		total += s.Budget
	}
	return total
}

// SortSlots returns slots in display order: catalog slots by catalog
// position, then slots whose category the catalog no longer knows, then
// custom slots. Ties break on creation time and id.
func SortSlots(slots []core.AccountSlot, cat *catalog.Catalog) []core.AccountSlot {
	out := slices.Clone(slots)
	group := func(s core.AccountSlot) (int, int) {
		if s.IsCustom {
			return 2, 0
		}
		if pos := cat.Position(s.CategoryCode); pos >= 0 {
			return 0, pos
		}
		return 1, 0
	}
	slices.SortStableFunc(out, func(a, b core.AccountSlot) int {
		ga, pa := group(a)
		gb, pb := group(b)
		if ga != gb {
			return ga - gb
		}
		if pa != pb {
			return pa - pb
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func decorate(s core.AccountSlot, cat *catalog.Catalog) SlotView {
	v := SlotView{AccountSlot: s, Label: s.DisplayName, OverBudget: s.OverBudget()}
	if s.IsCustom {
		return v
	}
	if c, ok := cat.Lookup(s.CategoryCode); ok {
		if v.Label == "" {
			v.Label = c.Label
		}
		v.Color = c.Color
		v.Icon = c.Icon
	}
	if v.Label == "" {
		v.Label = s.CategoryCode
	}
	return v
}
