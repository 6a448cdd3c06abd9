package http

import (
	"time"

	"slotledger/internal/core"
	"slotledger/internal/query"
	"slotledger/internal/reconcile"
)

// Wire representations. Amounts are integers in minor units.

type accountDTO struct {
	ID          int64      `json:"id"`
	BankID      string     `json:"bankId"`
	AccountNo   string     `json:"accountNo"`
	Balance     *int64     `json:"balance"`
	BalanceAsOf *time.Time `json:"balanceAsOf,omitempty"`
	Version     int64      `json:"version"`
	LinkedAt    time.Time  `json:"linkedAt"`
}

type slotDTO struct {
	ID              int64     `json:"id"`
	CategoryCode    string    `json:"categoryCode,omitempty"`
	Name            string    `json:"name"`
	Label           string    `json:"label"`
	Color           string    `json:"color,omitempty"`
	Icon            string    `json:"icon,omitempty"`
	Budget          int64     `json:"budget"`
	Remaining       int64     `json:"remaining"`
	IsSaving        bool      `json:"isSaving"`
	IsCustom        bool      `json:"isCustom"`
	IsUncategorized bool      `json:"isUncategorized"`
	OverBudget      bool      `json:"overBudget"`
	CreatedAt       time.Time `json:"createdAt"`
}

type reconciliationDTO struct {
	AccountID   int64     `json:"accountId"`
	Version     int64     `json:"version"`
	Balance     int64     `json:"balance"`
	BalanceAsOf time.Time `json:"balanceAsOf"`
	// Slots lists persisted slots in display order, Uncategorized last.
	Slots      []slotDTO `json:"slots"`
	OverBudget []int64   `json:"overBudget"`
}

type historyDTO struct {
	ID           string    `json:"id"`
	SlotID       int64     `json:"slotId"`
	OldBudget    int64     `json:"oldBudget"`
	NewBudget    int64     `json:"newBudget"`
	Reason       string    `json:"reason"`
	Acknowledged bool      `json:"acknowledged"`
	ChangedAt    time.Time `json:"changedAt"`
}

type dailySpendDTO struct {
	Date       string `json:"date"`
	Spent      int64  `json:"spent"`
	Cumulative int64  `json:"cumulative"`
}

type splitDTO struct {
	TransactionID string `json:"transactionId"`
	SlotID        int64  `json:"slotId"`
	Participants  int    `json:"participants"`
	PerPerson     int64  `json:"perPerson"`
	OthersShare   int64  `json:"othersShare"`
}

func toAccountDTO(a core.Account) accountDTO {
	dto := accountDTO{
		ID:        int64(a.ID),
		BankID:    a.BankID,
		AccountNo: a.AccountNo,
		Version:   a.Version,
		LinkedAt:  a.LinkedAt,
	}
	if a.BalanceKnown {
		balance := int64(a.Balance)
		asOf := a.BalanceAsOf
		dto.Balance = &balance
		dto.BalanceAsOf = &asOf
	}
	return dto
}

func toSlotDTO(v reconcile.SlotView) slotDTO {
	return slotDTO{
		ID:              int64(v.ID),
		CategoryCode:    v.CategoryCode,
		Name:            v.DisplayName,
		Label:           v.Label,
		Color:           v.Color,
		Icon:            v.Icon,
		Budget:          int64(v.Budget),
		Remaining:       int64(v.Remaining),
		IsSaving:        v.IsSaving,
		IsCustom:        v.IsCustom,
		IsUncategorized: v.ID.IsUncategorized(),
		OverBudget:      v.OverBudget,
		CreatedAt:       v.CreatedAt,
	}
}

func toReconciliationDTO(rec reconcile.Reconciliation) reconciliationDTO {
	dto := reconciliationDTO{
		AccountID:   int64(rec.Account.ID),
		Version:     rec.Account.Version,
		Balance:     int64(rec.Balance),
		BalanceAsOf: rec.Account.BalanceAsOf,
		Slots:       make([]slotDTO, 0, len(rec.Slots)+1),
		OverBudget:  make([]int64, 0, len(rec.OverBudget)),
	}
	for _, v := range rec.All() {
		dto.Slots = append(dto.Slots, toSlotDTO(v))
	}
	for _, id := range rec.OverBudget {
		dto.OverBudget = append(dto.OverBudget, int64(id))
	}
	return dto
}

func toHistoryDTOs(entries []core.SlotHistoryEntry) []historyDTO {
	out := make([]historyDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyDTO{
			ID:           e.ID,
			SlotID:       int64(e.AccountSlotID),
			OldBudget:    int64(e.OldBudget),
			NewBudget:    int64(e.NewBudget),
			Reason:       string(e.Reason),
			Acknowledged: e.Acknowledged,
			ChangedAt:    e.ChangedAt,
		})
	}
	return out
}

func toDailySpendDTO(d query.DailySpend) dailySpendDTO {
	return dailySpendDTO{
		Date:       d.Date.Format(time.DateOnly),
		Spent:      int64(d.Spent),
		Cumulative: int64(d.Cumulative),
	}
}

func toSplitDTO(s core.Split) splitDTO {
	return splitDTO{
		TransactionID: string(s.TransactionID),
		SlotID:        int64(s.SlotID),
		Participants:  s.Participants,
		PerPerson:     int64(s.PerPerson),
		OthersShare:   int64(s.OthersShare),
	}
}
