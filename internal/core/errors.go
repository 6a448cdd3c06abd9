package core

import (
	"errors"
	"fmt"
)

// Ledger error taxonomy. Callers classify with errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrBalanceUnavailable      = errors.New("account balance not yet fetched")
	ErrInsufficientSource      = errors.New("source slot budget would go negative")
	ErrInvalidParticipantCount = errors.New("participant count must be at least 2")
	ErrConcurrentModification  = errors.New("account modified concurrently")
	ErrInvariantViolated       = errors.New("ledger invariant violated")
)

var (
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
)

// Validation errors.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrInvalidDelta           = errors.New("delta must be positive")
	ErrSameSlot               = errors.New("source and target slot are the same")
	ErrAlreadyAssigned        = errors.New("transaction already assigned to target slot")
	ErrAlreadySplit           = errors.New("transaction already split")
	ErrNotWithdrawal          = errors.New("only withdrawals can be split")
	ErrUncategorizedSplit     = errors.New("transaction must be assigned to a real slot")
	ErrUncategorizedImmutable = errors.New("uncategorized slot cannot be modified")
	ErrSlotsAlreadyCommitted  = errors.New("account already has slots")
	ErrDuplicateCategory      = errors.New("duplicate category in proposal")
	ErrUnknownCategory        = errors.New("unknown category code")
	ErrBudgetExceedsBalance   = errors.New("total budget exceeds account balance")
	ErrEmptyProposal          = errors.New("proposal has no slots")
	ErrEmptyBankID            = errors.New("empty bank id")
	ErrEmptyAccountNo         = errors.New("empty account number")
	ErrEmptyTransactionID     = errors.New("empty transaction id")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrZeroOccurredAt         = errors.New("transaction time cannot be zero")
	ErrEmptySlotName          = errors.New("custom slot needs a name")
	ErrEmptyCategory          = errors.New("catalog slot needs a category code")
	ErrSlotNameTooLong        = errors.New("slot name too long (max 100 characters)")
	ErrNegativeBudget         = errors.New("budget cannot be negative")
	ErrInvalidPeriod          = errors.New("invalid period")
)

// IsValidation reports whether err is a caller mistake rather than a
// state or infrastructure failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrAmountOutOfRange, ErrInvalidDelta, ErrSameSlot, ErrNotWithdrawal,
		ErrUncategorizedSplit, ErrUncategorizedImmutable, ErrDuplicateCategory,
		ErrUnknownCategory, ErrBudgetExceedsBalance, ErrEmptyProposal,
		ErrEmptyBankID, ErrEmptyAccountNo, ErrEmptyTransactionID,
		ErrInvalidTransactionType, ErrZeroOccurredAt, ErrEmptySlotName,
		ErrEmptyCategory, ErrSlotNameTooLong, ErrNegativeBudget, ErrInvalidPeriod,
		ErrInsufficientSource, ErrInvalidParticipantCount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err means the request clashed with current state
// and should be re-evaluated from a fresh read.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrAlreadyAssigned) ||
		errors.Is(err, ErrAlreadySplit) ||
		errors.Is(err, ErrSlotsAlreadyCommitted)
}
