package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"slotledger/internal/core"
)

// Message types carried in the AMQP Type property.
const (
	TypeBalanceUpdated    = "balance.updated"
	TypeTransactionPosted = "transaction.posted"
)

// BalanceUpdatedMessage is the banking feed reporting an account balance.
type BalanceUpdatedMessage struct {
	AccountID int64     `json:"accountId"`
	Balance   int64     `json:"balance"`
	AsOf      time.Time `json:"asOf"`
}

// TransactionPostedMessage is a transaction the bank has settled. SlotID is
// optional; zero leaves the transaction uncategorized.
type TransactionPostedMessage struct {
	ID                    string    `json:"id"`
	AccountID             int64     `json:"accountId"`
	SlotID                int64     `json:"slotId,omitempty"`
	Type                  string    `json:"type"`
	Amount                int64     `json:"amount"`
	PostBalance           int64     `json:"postBalance"`
	OccurredAt            time.Time `json:"occurredAt"`
	CounterpartyAccountNo string    `json:"counterpartyAccountNo,omitempty"`
}

// Transaction converts the message to the ledger's transaction type.
func (m *TransactionPostedMessage) Transaction() core.Transaction {
	return core.Transaction{
		ID:                    core.TransactionID(m.ID),
		AccountID:             core.AccountID(m.AccountID),
		SlotID:                core.SlotID(m.SlotID),
		Type:                  core.TransactionType(m.Type),
		Amount:                core.Money(m.Amount),
		PostBalance:           core.Money(m.PostBalance),
		OccurredAt:            m.OccurredAt,
		CounterpartyAccountNo: m.CounterpartyAccountNo,
	}
}

// LedgerEventMessage announces a committed ledger change. It carries ids and
// amounts only; consumers read current state over HTTP.
type LedgerEventMessage struct {
	Type          string    `json:"type"`
	AccountID     int64     `json:"accountId"`
	Version       int64     `json:"version"`
	SlotIDs       []int64   `json:"slotIds,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Acknowledged  bool      `json:"acknowledged,omitempty"`
	OccurredAt    time.Time `json:"occurredAt,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	msg := &LedgerEventMessage{
		Type:          string(ev.Type),
		AccountID:     int64(ev.AccountID),
		Version:       ev.Version,
		TransactionID: string(ev.TransactionID),
		Amount:        int64(ev.Amount),
		Acknowledged:  ev.Acknowledged,
		OccurredAt:    ev.OccurredAt,
		Timestamp:     time.Now().UTC(),
	}
	for _, id := range ev.SlotIDs {
		msg.SlotIDs = append(msg.SlotIDs, int64(id))
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func BalanceUpdatedMessageFromJSON(data []byte) (*BalanceUpdatedMessage, error) {
	var msg BalanceUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID <= 0 {
		return nil, fmt.Errorf("balance message: invalid account id %d", msg.AccountID)
	}
	return &msg, nil
}

func TransactionPostedMessageFromJSON(data []byte) (*TransactionPostedMessage, error) {
	var msg TransactionPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID <= 0 {
		return nil, fmt.Errorf("transaction message: invalid account id %d", msg.AccountID)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("transaction message: missing id")
	}
	return &msg, nil
}
