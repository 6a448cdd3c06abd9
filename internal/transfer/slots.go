package transfer

import (
	"context"
	"fmt"
	"strings"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/history"
	"slotledger/internal/ledger"
	"slotledger/internal/log"
	"slotledger/internal/reconcile"
)

// SlotProposal is one entry of a recommended initial slot set.
type SlotProposal struct {
	// CategoryID or CategoryCode names the catalog category; both are
	// ignored for custom slots. When both are set they must agree.
	CategoryID    int64
	CategoryCode  string
	CustomName    string
	InitialBudget core.Money
	IsCustom      bool
	IsSaving      bool // custom slots only; catalog slots take the category default
}

// CommitSlots installs the initial slot set of an account. The whole
// proposal is rejected if any entry is invalid, if the account already has
// slots, or if the budgets add up to more than the balance.
func (e *Engine) CommitSlots(ctx context.Context, accountID core.AccountID, proposal []SlotProposal) (reconcile.Reconciliation, error) {
	if len(proposal) == 0 {
		return reconcile.Reconciliation{}, core.ErrEmptyProposal
	}

	return e.mutate(ctx, accountID, log.OpCommit, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		if !acc.BalanceKnown {
			return outcome{}, fmt.Errorf("account %d: %w", acc.ID, core.ErrBalanceUnavailable)
		}
		existing, err := tx.ListSlots(ctx, accountID)
		if err != nil {
			return outcome{}, err
		}
		if len(existing) > 0 {
			return outcome{}, fmt.Errorf("account %d has %d slots: %w", accountID, len(existing), core.ErrSlotsAlreadyCommitted)
		}

		slots := make([]core.AccountSlot, 0, len(proposal))
		seen := make(map[string]struct{}, len(proposal))
		var total core.Money
		for i, p := range proposal {
			slot, err := e.slotFromProposal(accountID, p)
			if err != nil {
				return outcome{}, fmt.Errorf("slot %d: %w", i, err)
			}
			if !slot.IsCustom {
				if _, dup := seen[slot.CategoryCode]; dup {
					return outcome{}, fmt.Errorf("slot %d %s: %w", i, slot.CategoryCode, core.ErrDuplicateCategory)
				}
				seen[slot.CategoryCode] = struct{}{}
			}
			// Each budget is at most MaxAmount and total never passes the
			// balance, so the sum cannot overflow.
			total += slot.Budget
			if total > acc.Balance {
				return outcome{}, fmt.Errorf("budgets exceed balance %s at slot %d: %w", acc.Balance, i, core.ErrBudgetExceedsBalance)
			}
			slots = append(slots, slot)
		}

		ids := make([]core.SlotID, 0, len(slots))
		for _, s := range slots {
			created, err := tx.CreateSlot(ctx, s)
			if err != nil {
				return outcome{}, err
			}
			ids = append(ids, created.ID)
			if err := e.appendHistory(ctx, tx, history.Change{
				AccountID: accountID,
				SlotID:    created.ID,
				NewBudget: created.Budget,
				Reason:    core.ReasonCommit,
			}); err != nil {
				return outcome{}, err
			}
		}
		return outcome{events: []core.LedgerEvent{{
			Type:      core.EventSlotsCommitted,
			AccountID: accountID,
			SlotIDs:   ids,
			Amount:    total,
		}}}, nil
	})
}

func (e *Engine) slotFromProposal(accountID core.AccountID, p SlotProposal) (core.AccountSlot, error) {
	slot := core.AccountSlot{
		AccountID:   accountID,
		DisplayName: strings.TrimSpace(p.CustomName),
		Budget:      p.InitialBudget,
		Remaining:   p.InitialBudget,
		IsCustom:    p.IsCustom,
		CreatedAt:   e.now().UTC(),
	}
	if p.IsCustom {
		slot.IsSaving = p.IsSaving
	} else {
		cat, err := e.lookupCategory(p)
		if err != nil {
			return core.AccountSlot{}, err
		}
		slot.CategoryCode = cat.Code
		slot.IsSaving = cat.Saving
		if slot.DisplayName == "" {
			slot.DisplayName = cat.Label
		}
	}
	if err := slot.Validate(); err != nil {
		return core.AccountSlot{}, err
	}
	return slot, nil
}

func (e *Engine) lookupCategory(p SlotProposal) (catalog.Category, error) {
	if p.CategoryID == 0 {
		cat, ok := e.catalog.Lookup(p.CategoryCode)
		if !ok {
			return catalog.Category{}, fmt.Errorf("%q: %w", p.CategoryCode, core.ErrUnknownCategory)
		}
		return cat, nil
	}
	cat, ok := e.catalog.LookupID(p.CategoryID)
	if !ok {
		return catalog.Category{}, fmt.Errorf("category id %d: %w", p.CategoryID, core.ErrUnknownCategory)
	}
	if code := strings.TrimSpace(p.CategoryCode); code != "" && !strings.EqualFold(code, cat.Code) {
		return catalog.Category{}, fmt.Errorf("category id %d is %s, not %q: %w", p.CategoryID, cat.Code, code, core.ErrUnknownCategory)
	}
	return cat, nil
}

// CreateSlot adds one slot after the initial commit. A positive initial
// budget is funded from Uncategorized and may not exceed what it holds.
func (e *Engine) CreateSlot(ctx context.Context, accountID core.AccountID, p SlotProposal) (core.AccountSlot, reconcile.Reconciliation, error) {
	var created core.AccountSlot
	rec, err := e.mutate(ctx, accountID, log.OpCreate, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		slot, err := e.slotFromProposal(accountID, p)
		if err != nil {
			return outcome{}, err
		}
		existing, err := tx.ListSlots(ctx, accountID)
		if err != nil {
			return outcome{}, err
		}
		if !slot.IsCustom {
			for _, s := range existing {
				if !s.IsCustom && s.CategoryCode == slot.CategoryCode {
					return outcome{}, fmt.Errorf("%s: %w", slot.CategoryCode, core.ErrDuplicateCategory)
				}
			}
		}
		if slot.Budget > 0 {
			before, err := reconcile.Compute(acc, existing, e.catalog)
			if err != nil {
				return outcome{}, err
			}
			if before.Uncategorized.Remaining < slot.Budget {
				return outcome{}, fmt.Errorf("uncategorized holds %s, budget %s: %w",
					before.Uncategorized.Remaining, slot.Budget, core.ErrInsufficientSource)
			}
		}

		created, err = tx.CreateSlot(ctx, slot)
		if err != nil {
			return outcome{}, err
		}
		if created.Budget > 0 {
			if err := e.appendHistory(ctx, tx, history.Change{
				AccountID: accountID,
				SlotID:    created.ID,
				NewBudget: created.Budget,
				Reason:    core.ReasonCreate,
			}); err != nil {
				return outcome{}, err
			}
		}
		return outcome{events: []core.LedgerEvent{{
			Type:      core.EventSlotCreated,
			AccountID: accountID,
			SlotIDs:   []core.SlotID{created.ID},
			Amount:    created.Budget,
		}}}, nil
	})
	if err != nil {
		return core.AccountSlot{}, reconcile.Reconciliation{}, err
	}
	return created, rec, nil
}

// DeleteSlot removes a slot. Its remaining folds into Uncategorized and its
// transactions become uncategorized.
func (e *Engine) DeleteSlot(ctx context.Context, accountID core.AccountID, slotID core.SlotID) (reconcile.Reconciliation, error) {
	if slotID.IsUncategorized() {
		return reconcile.Reconciliation{}, core.ErrUncategorizedImmutable
	}
	return e.mutate(ctx, accountID, log.OpDelete, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		slot, err := tx.GetSlot(ctx, accountID, slotID)
		if err != nil {
			return outcome{}, err
		}
		moved, err := tx.UnassignSlotTransactions(ctx, accountID, slotID)
		if err != nil {
			return outcome{}, err
		}
		if err := tx.DeleteSlot(ctx, accountID, slotID); err != nil {
			return outcome{}, err
		}
		if err := e.appendHistory(ctx, tx, history.Change{
			AccountID: accountID,
			SlotID:    slotID,
			OldBudget: slot.Budget,
			Reason:    core.ReasonDelete,
		}); err != nil {
			return outcome{}, err
		}
		e.logger.DebugContext(ctx, "Slot deleted",
			log.FieldAccountID, accountID,
			log.FieldSlotID, slotID,
			"transactions_moved", moved)
		return outcome{events: []core.LedgerEvent{{
			Type:      core.EventSlotDeleted,
			AccountID: accountID,
			SlotIDs:   []core.SlotID{slotID},
			Amount:    slot.Remaining,
		}}}, nil
	})
}
