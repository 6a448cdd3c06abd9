package transfer

import (
	"context"
	"fmt"

	"slotledger/internal/core"
	"slotledger/internal/history"
	"slotledger/internal/ledger"
	"slotledger/internal/log"
	"slotledger/internal/reconcile"
)

// ReallocateRequest moves Delta of budget capacity from one slot to another.
type ReallocateRequest struct {
	AccountID core.AccountID
	From      core.SlotID
	To        core.SlotID
	Delta     core.Money
	// Acknowledged confirms a move into a saving slot or Uncategorized.
	Acknowledged bool
}

type ReallocateResult struct {
	Reconciliation reconcile.Reconciliation
	// RequiresConfirmation is set when nothing was written because the
	// target needs an acknowledged re-submission.
	RequiresConfirmation bool
}

// ReallocateBudget performs a zero-sum budget transfer. The source budget
// may not go negative; its remaining may.
func (e *Engine) ReallocateBudget(ctx context.Context, req ReallocateRequest) (ReallocateResult, error) {
	if err := req.Delta.Validate(); err != nil {
		return ReallocateResult{}, fmt.Errorf("delta %d: %w", req.Delta, core.ErrInvalidDelta)
	}
	if req.From == req.To {
		return ReallocateResult{}, core.ErrSameSlot
	}

	var needsConfirmation bool
	rec, err := e.mutate(ctx, req.AccountID, log.OpReallocate, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		if !acc.BalanceKnown {
			return outcome{}, fmt.Errorf("account %d: %w", acc.ID, core.ErrBalanceUnavailable)
		}

		var (
			to  core.AccountSlot
			err error
		)
		if !req.To.IsUncategorized() {
			if to, err = tx.GetSlot(ctx, req.AccountID, req.To); err != nil {
				return outcome{}, err
			}
		}
		// Uncategorized has no budget to give.
		if req.From.IsUncategorized() {
			return outcome{}, fmt.Errorf("uncategorized has no budget: %w", core.ErrInsufficientSource)
		}
		from, err := tx.GetSlot(ctx, req.AccountID, req.From)
		if err != nil {
			return outcome{}, err
		}
		if from.Budget-req.Delta < 0 {
			return outcome{}, fmt.Errorf("slot %d budget %s, delta %s: %w",
				from.ID, from.Budget, req.Delta, core.ErrInsufficientSource)
		}

		gated := req.To.IsUncategorized() || to.IsSaving
		if gated && !req.Acknowledged {
			needsConfirmation = true
			return outcome{noop: true}, nil
		}

		if err := e.shiftBudget(ctx, tx, from, -req.Delta, gated); err != nil {
			return outcome{}, err
		}
		if !req.To.IsUncategorized() {
			if err := e.shiftBudget(ctx, tx, to, req.Delta, gated); err != nil {
				return outcome{}, err
			}
		}
		return outcome{events: []core.LedgerEvent{{
			Type:         core.EventSlotReallocated,
			AccountID:    req.AccountID,
			SlotIDs:      []core.SlotID{req.From, req.To},
			Amount:       req.Delta,
			Acknowledged: gated,
		}}}, nil
	})
	if err != nil {
		return ReallocateResult{}, err
	}
	return ReallocateResult{Reconciliation: rec, RequiresConfirmation: needsConfirmation}, nil
}

// shiftBudget moves budget and remaining of slot by delta and records it.
func (e *Engine) shiftBudget(ctx context.Context, tx ledger.Tx, slot core.AccountSlot, delta core.Money, acknowledged bool) error {
	old := slot.Budget
	slot.Budget += delta
	slot.Remaining += delta
	if err := tx.UpdateSlot(ctx, slot); err != nil {
		return err
	}
	return e.appendHistory(ctx, tx, history.Change{
		AccountID:    slot.AccountID,
		SlotID:       slot.ID,
		OldBudget:    old,
		NewBudget:    slot.Budget,
		Reason:       core.ReasonReallocate,
		Acknowledged: acknowledged,
	})
}

// ReassignTransaction moves a transaction's attribution to target. The
// remaining balances of the two slots shift by the account holder's share
// of the transaction, so Σ remaining is unchanged.
//
// Re-assigning to the slot the transaction already sits in fails with
// core.ErrAlreadyAssigned, so a blind retry of a completed move is rejected
// instead of shifting the slots a second time.
func (e *Engine) ReassignTransaction(ctx context.Context, accountID core.AccountID, txID core.TransactionID, target core.SlotID) (reconcile.Reconciliation, error) {
	return e.mutate(ctx, accountID, log.OpReassign, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		t, err := tx.GetTransaction(ctx, accountID, txID)
		if err != nil {
			return outcome{}, err
		}
		if t.SlotID == target {
			return outcome{}, fmt.Errorf("transaction %s in slot %d: %w", txID, target, core.ErrAlreadyAssigned)
		}

		var dst core.AccountSlot
		if !target.IsUncategorized() {
			if dst, err = tx.GetSlot(ctx, accountID, target); err != nil {
				return outcome{}, err
			}
		}

		share := t.Amount
		if split, ok, err := tx.GetSplit(ctx, accountID, txID); err != nil {
			return outcome{}, err
		} else if ok {
			share = split.PerPerson
		}
		effect := share
		if t.Type.IsDebit() {
			effect = -share
		}

		if !t.SlotID.IsUncategorized() {
			src, err := tx.GetSlot(ctx, accountID, t.SlotID)
			if err != nil {
				return outcome{}, err
			}
			src.Remaining -= effect
			if err := tx.UpdateSlot(ctx, src); err != nil {
				return outcome{}, err
			}
		}
		if !target.IsUncategorized() {
			dst.Remaining += effect
			if err := tx.UpdateSlot(ctx, dst); err != nil {
				return outcome{}, err
			}
		}
		if err := tx.AssignTransaction(ctx, accountID, txID, target); err != nil {
			return outcome{}, err
		}
		return outcome{events: []core.LedgerEvent{{
			Type:          core.EventTransactionReassigned,
			AccountID:     accountID,
			SlotIDs:       []core.SlotID{t.SlotID, target},
			TransactionID: txID,
			Amount:        share,
		}}}, nil
	})
}

// SplitShares divides amount between participants. The account holder keeps
// the floor share; the truncation remainder goes to the others.
func SplitShares(amount core.Money, participants int) (perPerson, othersShare core.Money, err error) {
	if participants < 2 {
		return 0, 0, fmt.Errorf("%d participants: %w", participants, core.ErrInvalidParticipantCount)
	}
	if err := amount.Validate(); err != nil {
		return 0, 0, err
	}
	perPerson = amount / core.Money(participants)
	return perPerson, amount - perPerson, nil
}

type SplitResult struct {
	Reconciliation reconcile.Reconciliation
	Split          core.Split
}

// SplitTransaction applies a dutch-pay to a withdrawal: the part owed by the
// other participants is credited back to the transaction's slot. A
// transaction can be split only once.
func (e *Engine) SplitTransaction(ctx context.Context, accountID core.AccountID, txID core.TransactionID, participants int) (SplitResult, error) {
	if participants < 2 {
		return SplitResult{}, fmt.Errorf("%d participants: %w", participants, core.ErrInvalidParticipantCount)
	}

	var split core.Split
	rec, err := e.mutate(ctx, accountID, log.OpSplit, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		t, err := tx.GetTransaction(ctx, accountID, txID)
		if err != nil {
			return outcome{}, err
		}
		if t.Type != core.Withdrawal {
			return outcome{}, fmt.Errorf("transaction %s is a %s: %w", txID, t.Type, core.ErrNotWithdrawal)
		}
		if t.SlotID.IsUncategorized() {
			return outcome{}, fmt.Errorf("transaction %s: %w", txID, core.ErrUncategorizedSplit)
		}
		if _, ok, err := tx.GetSplit(ctx, accountID, txID); err != nil {
			return outcome{}, err
		} else if ok {
			return outcome{}, fmt.Errorf("transaction %s: %w", txID, core.ErrAlreadySplit)
		}

		perPerson, others, err := SplitShares(t.Amount, participants)
		if err != nil {
			return outcome{}, err
		}
		slot, err := tx.GetSlot(ctx, accountID, t.SlotID)
		if err != nil {
			return outcome{}, err
		}
		slot.Remaining += others
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return outcome{}, err
		}

		split = core.Split{
			TransactionID: txID,
			AccountID:     accountID,
			SlotID:        slot.ID,
			Participants:  participants,
			PerPerson:     perPerson,
			OthersShare:   others,
			CreatedAt:     e.now().UTC(),
		}
		if err := tx.InsertSplit(ctx, split); err != nil {
			return outcome{}, err
		}
		return outcome{events: []core.LedgerEvent{{
			Type:          core.EventTransactionSplit,
			AccountID:     accountID,
			SlotIDs:       []core.SlotID{slot.ID},
			TransactionID: txID,
			Amount:        others,
		}}}, nil
	})
	if err != nil {
		return SplitResult{}, err
	}
	return SplitResult{Reconciliation: rec, Split: split}, nil
}
