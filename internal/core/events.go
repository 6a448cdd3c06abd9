package core

import "time"

// EventType names a committed ledger change announced to other services.
type EventType string

const (
	EventAccountLinked         EventType = "account.linked"
	EventBalanceApplied        EventType = "account.balance_applied"
	EventTransactionIngested   EventType = "transaction.ingested"
	EventSlotsCommitted        EventType = "slots.committed"
	EventSlotCreated           EventType = "slot.created"
	EventSlotDeleted           EventType = "slot.deleted"
	EventSlotReallocated       EventType = "slot.reallocated"
	EventTransactionReassigned EventType = "transaction.reassigned"
	EventTransactionSplit      EventType = "transaction.split"
)

// LedgerEvent is published after the change it describes has committed.
type LedgerEvent struct {
	Type          EventType
	AccountID     AccountID
	Version       int64
	SlotIDs       []SlotID
	TransactionID TransactionID
	Amount        Money
	Acknowledged  bool
	OccurredAt    time.Time
}
