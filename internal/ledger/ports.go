// Package ledger defines the ports every ledger store backend implements.
package ledger

import (
	"context"
	"time"

	"slotledger/internal/core"
)

// Ports for ledger store backends.
type (
	// Reader exposes the read side of the store. Inside a Tx the reads observe
	// the transaction's own uncommitted writes.
	Reader interface {
		GetAccount(ctx context.Context, accountID core.AccountID) (core.Account, error)
		// ListSlots returns persisted slots in creation order.
		ListSlots(ctx context.Context, accountID core.AccountID) ([]core.AccountSlot, error)
		GetSlot(ctx context.Context, accountID core.AccountID, slotID core.SlotID) (core.AccountSlot, error)
		GetTransaction(ctx context.Context, accountID core.AccountID, txID core.TransactionID) (core.Transaction, error)
		// ListSlotTransactions returns transactions assigned to slotID whose
		// OccurredAt lies in [from, to), ordered by OccurredAt.
		ListSlotTransactions(ctx context.Context, accountID core.AccountID, slotID core.SlotID, from, to time.Time) ([]core.Transaction, error)
		// ListHistory returns budget changes for one slot, most recent first.
		ListHistory(ctx context.Context, accountID core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error)
		// GetSplit returns the split applied to a transaction, if any.
		GetSplit(ctx context.Context, accountID core.AccountID, txID core.TransactionID) (core.Split, bool, error)
	}

	// Tx is one all-or-nothing unit of work scoped to a single account.
	Tx interface {
		Reader

		SetBalance(ctx context.Context, accountID core.AccountID, balance core.Money, asOf time.Time) error
		CreateSlot(ctx context.Context, slot core.AccountSlot) (core.AccountSlot, error)
		// UpdateSlot writes Budget and Remaining of an existing slot.
		UpdateSlot(ctx context.Context, slot core.AccountSlot) error
		DeleteSlot(ctx context.Context, accountID core.AccountID, slotID core.SlotID) error
		// InsertTransaction stores a feed transaction. It reports false when a
		// transaction with the same id already exists.
		InsertTransaction(ctx context.Context, tx core.Transaction) (bool, error)
		AssignTransaction(ctx context.Context, accountID core.AccountID, txID core.TransactionID, slotID core.SlotID) error
		// UnassignSlotTransactions moves every transaction of slotID to Uncategorized.
		UnassignSlotTransactions(ctx context.Context, accountID core.AccountID, slotID core.SlotID) (int64, error)
		InsertSplit(ctx context.Context, split core.Split) error
		AppendHistory(ctx context.Context, entry core.SlotHistoryEntry) error
		// BumpVersion advances the account version when it still equals
		// expected, and fails with core.ErrConcurrentModification otherwise.
		BumpVersion(ctx context.Context, accountID core.AccountID, expected int64) error
	}

	Store interface {
		Reader

		CreateAccount(ctx context.Context, account core.Account) (core.Account, error)
		ListAccounts(ctx context.Context) ([]core.Account, error)
		// Snapshot returns the account and its slots as of one consistent point.
		Snapshot(ctx context.Context, accountID core.AccountID) (core.Account, []core.AccountSlot, error)
		// Atomic runs fn in a single unit of work. Any error returned by fn,
		// or a cancelled ctx, discards every write fn made.
		Atomic(ctx context.Context, accountID core.AccountID, fn func(tx Tx) error) error
		Close() error
	}
)
