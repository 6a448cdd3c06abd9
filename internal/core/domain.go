package core

import (
	"strings"
	"time"
)

const (
	Deposit     TransactionType = "deposit"
	Withdrawal  TransactionType = "withdrawal"
	TransferIn  TransactionType = "transfer-in"
	TransferOut TransactionType = "transfer-out"
)

// UncategorizedSlotID is the reserved identifier of the derived remainder slot.
// Persisted slots always have positive identifiers.
const UncategorizedSlotID SlotID = -1

// UncategorizedName is the display name of the derived remainder slot.
const UncategorizedName = "Uncategorized"

type (
	AccountID int64

	SlotID int64

	TransactionID string

	TransactionType string

	Account struct {
		ID           AccountID
		BankID       string
		AccountNo    string
		Balance      Money
		BalanceKnown bool // false until the banking feed reported a balance
		BalanceAsOf  time.Time
		Version      int64
		LinkedAt     time.Time
	}

	AccountSlot struct {
		ID           SlotID
		AccountID    AccountID
		CategoryCode string // empty for custom slots
		DisplayName  string
		Budget       Money
		Remaining    Money
		IsSaving     bool
		IsCustom     bool
		CreatedAt    time.Time
	}

	Transaction struct {
		ID                    TransactionID
		AccountID             AccountID
		SlotID                SlotID
		Type                  TransactionType
		Amount                Money
		PostBalance           Money
		OccurredAt            time.Time
		CounterpartyAccountNo string
	}

	SlotHistoryEntry struct {
		ID            string
		AccountID     AccountID
		AccountSlotID SlotID
		OldBudget     Money
		NewBudget     Money
		Reason        HistoryReason
		Acknowledged  bool
		ChangedAt     time.Time
	}

	// Split records a dutch-pay applied to a withdrawal.
	Split struct {
		TransactionID TransactionID
		AccountID     AccountID
		SlotID        SlotID
		Participants  int
		PerPerson     Money
		OthersShare   Money
		CreatedAt     time.Time
	}

	HistoryReason string
)

const (
	ReasonReallocate HistoryReason = "reallocate"
	ReasonCommit     HistoryReason = "commit"
	ReasonCreate     HistoryReason = "create"
	ReasonDelete     HistoryReason = "delete"
)

// IsUncategorized reports whether id names the derived remainder slot.
func (id SlotID) IsUncategorized() bool {
	return id == UncategorizedSlotID
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Deposit, Withdrawal, TransferIn, TransferOut:
		return true
	}
	return false
}

// IsDebit reports whether the transaction takes money out of the account.
func (t TransactionType) IsDebit() bool {
	return t == Withdrawal || t == TransferOut
}

// Signed returns the transaction's effect on the account balance.
func (tx Transaction) Signed() Money {
	if tx.Type.IsDebit() {
		return -tx.Amount
	}
	return tx.Amount
}

// OverBudget reports whether the slot has spent past its remaining balance.
func (s AccountSlot) OverBudget() bool {
	return s.Remaining < 0
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.BankID) == "" {
		return ErrEmptyBankID
	}
	if strings.TrimSpace(a.AccountNo) == "" {
		return ErrEmptyAccountNo
	}
	return nil
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(string(tx.ID)) == "" {
		return ErrEmptyTransactionID
	}
	if !tx.Type.Valid() {
		return ErrInvalidTransactionType
	}
	if err := tx.Amount.Validate(); err != nil {
		return err
	}
	if !tx.PostBalance.InRange() {
		return ErrAmountOutOfRange
	}
	if tx.OccurredAt.IsZero() {
		return ErrZeroOccurredAt
	}
	return nil
}

// Validate checks the fields a manually created or committed slot must carry.
func (s AccountSlot) Validate() error {
	if s.IsCustom {
		if strings.TrimSpace(s.DisplayName) == "" {
			return ErrEmptySlotName
		}
	} else if strings.TrimSpace(s.CategoryCode) == "" {
		return ErrEmptyCategory
	}
	if len(s.DisplayName) > 100 {
		return ErrSlotNameTooLong
	}
	if s.Budget < 0 {
		return ErrNegativeBudget
	}
	if s.Budget > MaxAmount {
		return ErrAmountOutOfRange
	}
	return nil
}
