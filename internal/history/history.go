// Package history keeps the append-only audit trail of slot budget changes.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slotledger/internal/core"
	"slotledger/internal/ledger"
)

// Change describes one budget change to record.
type Change struct {
	AccountID    core.AccountID
	SlotID       core.SlotID
	OldBudget    core.Money
	NewBudget    core.Money
	Reason       core.HistoryReason
	Acknowledged bool
}

// Ledger appends and lists history entries. It never updates or removes one.
type Ledger struct {
	reader ledger.Reader
	now    func() time.Time
	newID  func() string
}

func New(reader ledger.Reader) *Ledger {
	return &Ledger{
		reader: reader,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock returns a copy of l that stamps entries using now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	cp := *l
	cp.now = now
	return &cp
}

// Append writes c inside tx. Validation is the caller's job.
func (l *Ledger) Append(ctx context.Context, tx ledger.Tx, c Change) (core.SlotHistoryEntry, error) {
	entry := core.SlotHistoryEntry{
		ID:            l.newID(),
		AccountID:     c.AccountID,
		AccountSlotID: c.SlotID,
		OldBudget:     c.OldBudget,
		NewBudget:     c.NewBudget,
		Reason:        c.Reason,
		Acknowledged:  c.Acknowledged,
		ChangedAt:     l.now().UTC(),
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return core.SlotHistoryEntry{}, fmt.Errorf("append history for slot %d: %w", c.SlotID, err)
	}
	return entry, nil
}

// List returns the entries for one slot, most recent first.
func (l *Ledger) List(ctx context.Context, accountID core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error) {
	entries, err := l.reader.ListHistory(ctx, accountID, slotID)
	if err != nil {
		return nil, fmt.Errorf("list history for slot %d: %w", slotID, err)
	}
	return entries, nil
}
