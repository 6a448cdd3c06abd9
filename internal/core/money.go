// Package core provides money parsing and handling utilities.
//
// This file contains the Money type used for every balance, budget and
// transaction amount, and functions for parsing amounts from user input.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units. It is signed: slot remainders
// go negative when a slot is over budget.
type Money int64

// MaxAmount bounds every amount entering the ledger, so sums over a few
// thousand slots and transactions cannot overflow int64.
const MaxAmount Money = 1 << 50

// Validate checks that m is usable as a transaction or transfer amount.
func (m Money) Validate() error {
	if m <= 0 {
		return ErrInvalidAmount
	}
	if m > MaxAmount {
		return ErrAmountOutOfRange
	}
	return nil
}

// InRange reports whether m is a storable balance or budget.
func (m Money) InRange() bool {
	return m >= -MaxAmount && m <= MaxAmount
}

// Abs returns the absolute value of m.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// String formats m with thousands separators (e.g. "-1,500,000").
func (m Money) String() string {
	neg := m < 0
	digits := strconv.FormatInt(int64(m.Abs()), 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseAmount converts a decimal string to a positive Money value.
//
// Thousands separators ("," and "_") and surrounding whitespace are ignored.
// A fractional part is accepted only when it is zero, since amounts are kept
// in whole minor units. Returns ErrInvalidAmount for anything else.
//
// Examples:
//
//	ParseAmount("12000")     -> 12000, nil
//	ParseAmount("1,500,000") -> 1500000, nil
//	ParseAmount("12000.00")  -> 12000, nil
//	ParseAmount("12.5")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "_", "").Replace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if d.GreaterThan(decimal.NewFromInt(int64(MaxAmount))) {
		return 0, ErrInvalidAmount
	}
	return Money(d.IntPart()), nil
}
