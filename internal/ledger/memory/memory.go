// Package memory is an in-process ledger store.
//
// Each account's data lives behind its own lock. Atomic works on a private
// copy of one account and swaps it in only when the unit of work succeeds,
// so readers never see a half-applied operation and unrelated accounts never
// wait on each other.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/ledger"
)

type Store struct {
	mu          sync.RWMutex
	accounts    map[core.AccountID]*accountState
	nextAccount core.AccountID
	nextSlot    core.SlotID
	now         func() time.Time
}

type accountState struct {
	mu   sync.RWMutex
	data *accountData
}

type accountData struct {
	account core.Account
	slots   []core.AccountSlot
	txs     map[core.TransactionID]core.Transaction
	history []core.SlotHistoryEntry
	splits  map[core.TransactionID]core.Split
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[core.AccountID]*accountState),
		now:      time.Now,
	}
}

func (d *accountData) clone() *accountData {
	return &accountData{
		account: d.account,
		slots:   slices.Clone(d.slots),
		txs:     maps.Clone(d.txs),
		history: slices.Clone(d.history),
		splits:  maps.Clone(d.splits),
	}
}

func (s *Store) state(id core.AccountID) (*accountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, core.ErrAccountNotFound)
	}
	return st, nil
}

// read runs fn against a committed view of one account.
func (s *Store) read(id core.AccountID, fn func(d *accountData) error) error {
	st, err := s.state(id)
	if err != nil {
		return err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return fn(st.data)
}

func (s *Store) allocSlotID() core.SlotID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlot++
	return s.nextSlot
}

// CreateAccount registers a newly linked account without a known balance.
func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAccount++
	a.ID = s.nextAccount
	a.Balance = 0
	a.BalanceKnown = false
	a.BalanceAsOf = time.Time{}
	a.Version = 0
	if a.LinkedAt.IsZero() {
		a.LinkedAt = s.now().UTC()
	}
	s.accounts[a.ID] = &accountState{data: &accountData{
		account: a,
		txs:     make(map[core.TransactionID]core.Transaction),
		splits:  make(map[core.TransactionID]core.Split),
	}}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.RLock()
	states := make([]*accountState, 0, len(s.accounts))
	for _, st := range s.accounts {
		states = append(states, st)
	}
	s.mu.RUnlock()

	out := make([]core.Account, 0, len(states))
	for _, st := range states {
		st.mu.RLock()
		out = append(out, st.data.account)
		st.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b core.Account) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *Store) Snapshot(_ context.Context, id core.AccountID) (core.Account, []core.AccountSlot, error) {
	var (
		acc   core.Account
		slots []core.AccountSlot
	)
	err := s.read(id, func(d *accountData) error {
		acc = d.account
		slots = slices.Clone(d.slots)
		return nil
	})
	return acc, slots, err
}

// Atomic holds the account's write lock for the whole unit of work.
func (s *Store) Atomic(ctx context.Context, id core.AccountID, fn func(tx ledger.Tx) error) error {
	st, err := s.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := st.data.clone()
	if err := fn(&memTx{store: s, data: work}); err != nil {
		return err
	}
	// A caller that gave up mid-operation gets a full rollback.
	if err := ctx.Err(); err != nil {
		return err
	}
	st.data = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) GetAccount(_ context.Context, id core.AccountID) (core.Account, error) {
	var acc core.Account
	err := s.read(id, func(d *accountData) error {
		acc = d.account
		return nil
	})
	return acc, err
}

func (s *Store) ListSlots(_ context.Context, id core.AccountID) ([]core.AccountSlot, error) {
	var slots []core.AccountSlot
	err := s.read(id, func(d *accountData) error {
		slots = slices.Clone(d.slots)
		return nil
	})
	return slots, err
}

func (s *Store) GetSlot(_ context.Context, id core.AccountID, slotID core.SlotID) (core.AccountSlot, error) {
	var slot core.AccountSlot
	err := s.read(id, func(d *accountData) error {
		var err error
		slot, err = d.getSlot(slotID)
		return err
	})
	return slot, err
}

func (s *Store) GetTransaction(_ context.Context, id core.AccountID, txID core.TransactionID) (core.Transaction, error) {
	var tx core.Transaction
	err := s.read(id, func(d *accountData) error {
		var err error
		tx, err = d.getTransaction(txID)
		return err
	})
	return tx, err
}

func (s *Store) ListSlotTransactions(_ context.Context, id core.AccountID, slotID core.SlotID, from, to time.Time) ([]core.Transaction, error) {
	var txs []core.Transaction
	err := s.read(id, func(d *accountData) error {
		txs = d.slotTransactions(slotID, from, to)
		return nil
	})
	return txs, err
}

func (s *Store) ListHistory(_ context.Context, id core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error) {
	var entries []core.SlotHistoryEntry
	err := s.read(id, func(d *accountData) error {
		entries = d.slotHistory(slotID)
		return nil
	})
	return entries, err
}

func (s *Store) GetSplit(_ context.Context, id core.AccountID, txID core.TransactionID) (core.Split, bool, error) {
	var (
		split core.Split
		ok    bool
	)
	err := s.read(id, func(d *accountData) error {
		split, ok = d.splits[txID]
		return nil
	})
	return split, ok, err
}

func (d *accountData) slotIndex(slotID core.SlotID) int {
	return slices.IndexFunc(d.slots, func(s core.AccountSlot) bool { return s.ID == slotID })
}

func (d *accountData) getSlot(slotID core.SlotID) (core.AccountSlot, error) {
	i := d.slotIndex(slotID)
	if i < 0 {
		return core.AccountSlot{}, fmt.Errorf("slot %d: %w", slotID, core.ErrSlotNotFound)
	}
	return d.slots[i], nil
}

func (d *accountData) getTransaction(txID core.TransactionID) (core.Transaction, error) {
	tx, ok := d.txs[txID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", txID, core.ErrTransactionNotFound)
	}
	return tx, nil
}

func (d *accountData) slotTransactions(slotID core.SlotID, from, to time.Time) []core.Transaction {
	var out []core.Transaction
	for _, tx := range d.txs {
		if tx.SlotID != slotID {
			continue
		}
		if tx.OccurredAt.Before(from) || !tx.OccurredAt.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (d *accountData) slotHistory(slotID core.SlotID) []core.SlotHistoryEntry {
	var out []core.SlotHistoryEntry
	for i := len(d.history) - 1; i >= 0; i-- {
		if d.history[i].AccountSlotID == slotID {
			out = append(out, d.history[i])
		}
	}
	return out
}

// memTx mutates a private copy of one account. It needs no locking: Atomic
// holds the account's write lock for its whole lifetime.
type memTx struct {
	store *Store
	data  *accountData
}

func (t *memTx) checkAccount(id core.AccountID) error {
	if id != t.data.account.ID {
		return fmt.Errorf("account %d outside unit of work: %w", id, core.ErrAccountNotFound)
	}
	return nil
}

func (t *memTx) GetAccount(_ context.Context, id core.AccountID) (core.Account, error) {
	if err := t.checkAccount(id); err != nil {
		return core.Account{}, err
	}
	return t.data.account, nil
}

func (t *memTx) ListSlots(_ context.Context, id core.AccountID) ([]core.AccountSlot, error) {
	if err := t.checkAccount(id); err != nil {
		return nil, err
	}
	return slices.Clone(t.data.slots), nil
}

func (t *memTx) GetSlot(_ context.Context, id core.AccountID, slotID core.SlotID) (core.AccountSlot, error) {
	if err := t.checkAccount(id); err != nil {
		return core.AccountSlot{}, err
	}
	return t.data.getSlot(slotID)
}

func (t *memTx) GetTransaction(_ context.Context, id core.AccountID, txID core.TransactionID) (core.Transaction, error) {
	if err := t.checkAccount(id); err != nil {
		return core.Transaction{}, err
	}
	return t.data.getTransaction(txID)
}

func (t *memTx) ListSlotTransactions(_ context.Context, id core.AccountID, slotID core.SlotID, from, to time.Time) ([]core.Transaction, error) {
	if err := t.checkAccount(id); err != nil {
		return nil, err
	}
	return t.data.slotTransactions(slotID, from, to), nil
}

func (t *memTx) ListHistory(_ context.Context, id core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error) {
	if err := t.checkAccount(id); err != nil {
		return nil, err
	}
	return t.data.slotHistory(slotID), nil
}

func (t *memTx) GetSplit(_ context.Context, id core.AccountID, txID core.TransactionID) (core.Split, bool, error) {
	if err := t.checkAccount(id); err != nil {
		return core.Split{}, false, err
	}
	split, ok := t.data.splits[txID]
	return split, ok, nil
}

func (t *memTx) SetBalance(_ context.Context, id core.AccountID, balance core.Money, asOf time.Time) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	t.data.account.Balance = balance
	t.data.account.BalanceKnown = true
	t.data.account.BalanceAsOf = asOf
	return nil
}

func (t *memTx) CreateSlot(_ context.Context, slot core.AccountSlot) (core.AccountSlot, error) {
	if err := t.checkAccount(slot.AccountID); err != nil {
		return core.AccountSlot{}, err
	}
	slot.ID = t.store.allocSlotID()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = t.store.now().UTC()
	}
	t.data.slots = append(t.data.slots, slot)
	return slot, nil
}

func (t *memTx) UpdateSlot(_ context.Context, slot core.AccountSlot) error {
	if err := t.checkAccount(slot.AccountID); err != nil {
		return err
	}
	i := t.data.slotIndex(slot.ID)
	if i < 0 {
		return fmt.Errorf("slot %d: %w", slot.ID, core.ErrSlotNotFound)
	}
	t.data.slots[i].Budget = slot.Budget
	t.data.slots[i].Remaining = slot.Remaining
	return nil
}

func (t *memTx) DeleteSlot(_ context.Context, id core.AccountID, slotID core.SlotID) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	i := t.data.slotIndex(slotID)
	if i < 0 {
		return fmt.Errorf("slot %d: %w", slotID, core.ErrSlotNotFound)
	}
	t.data.slots = slices.Delete(t.data.slots, i, i+1)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tx core.Transaction) (bool, error) {
	if err := t.checkAccount(tx.AccountID); err != nil {
		return false, err
	}
	if _, exists := t.data.txs[tx.ID]; exists {
		return false, nil
	}
	t.data.txs[tx.ID] = tx
	return true, nil
}

func (t *memTx) AssignTransaction(_ context.Context, id core.AccountID, txID core.TransactionID, slotID core.SlotID) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	tx, err := t.data.getTransaction(txID)
	if err != nil {
		return err
	}
	tx.SlotID = slotID
	t.data.txs[txID] = tx
	return nil
}

func (t *memTx) UnassignSlotTransactions(_ context.Context, id core.AccountID, slotID core.SlotID) (int64, error) {
	if err := t.checkAccount(id); err != nil {
		return 0, err
	}
	var n int64
	for txID, tx := range t.data.txs {
		if tx.SlotID == slotID {
			tx.SlotID = core.UncategorizedSlotID
			t.data.txs[txID] = tx
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertSplit(_ context.Context, split core.Split) error {
	if err := t.checkAccount(split.AccountID); err != nil {
		return err
	}
	if _, exists := t.data.splits[split.TransactionID]; exists {
		return fmt.Errorf("transaction %s: %w", split.TransactionID, core.ErrAlreadySplit)
	}
	t.data.splits[split.TransactionID] = split
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, entry core.SlotHistoryEntry) error {
	if err := t.checkAccount(entry.AccountID); err != nil {
		return err
	}
	t.data.history = append(t.data.history, entry)
	return nil
}

func (t *memTx) BumpVersion(_ context.Context, id core.AccountID, expected int64) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	if t.data.account.Version != expected {
		return fmt.Errorf("account %d at version %d, expected %d: %w",
			id, t.data.account.Version, expected, core.ErrConcurrentModification)
	}
	t.data.account.Version++
	return nil
}
