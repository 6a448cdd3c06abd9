package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ledger.Store on a single SQLite file.
type SQLiteRepository struct {
	reader
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// dsnPragmas make concurrent writers wait for the lock instead of failing
// with SQLITE_BUSY, and take the write lock when a transaction begins.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens so it never sees a partial schema.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		reader: reader{q: New(db)},
		db:     db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	linkedAt := a.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = time.Now()
	}
	row, err := r.q.CreateAccount(ctx, CreateAccountParams{
		BankID:    a.BankID,
		AccountNo: a.AccountNo,
		LinkedAt:  linkedAt.UTC(),
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	return toAccount(row), nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.q.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, len(rows))
	for i, row := range rows {
		out[i] = toAccount(row)
	}
	return out, nil
}

// Snapshot reads the account and its slots inside one transaction.
func (r *SQLiteRepository) Snapshot(ctx context.Context, accountID core.AccountID) (core.Account, []core.AccountSlot, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Account{}, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer sqlTx.Rollback()

	rd := reader{q: New(sqlTx)}
	acc, err := rd.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, nil, err
	}
	slots, err := rd.ListSlots(ctx, accountID)
	if err != nil {
		return core.Account{}, nil, err
	}
	return acc, slots, sqlTx.Commit()
}

// Atomic runs fn inside one SQL transaction. It commits only when fn
// succeeds and ctx is still live.
func (r *SQLiteRepository) Atomic(ctx context.Context, accountID core.AccountID, fn func(tx ledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer sqlTx.Rollback()

	tx := &sqliteTx{reader: reader{q: New(sqlTx)}, accountID: accountID}
	if _, err := tx.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// reader serves the read side for both the pool and open transactions.
type reader struct {
	q *Queries
}

func (r reader) GetAccount(ctx context.Context, id core.AccountID) (core.Account, error) {
	row, err := r.q.GetAccount(ctx, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %d: %w", id, core.ErrAccountNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return toAccount(row), nil
}

func (r reader) ListSlots(ctx context.Context, id core.AccountID) ([]core.AccountSlot, error) {
	rows, err := r.q.ListSlots(ctx, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	out := make([]core.AccountSlot, len(rows))
	for i, row := range rows {
		out[i] = toSlot(row)
	}
	return out, nil
}

func (r reader) GetSlot(ctx context.Context, id core.AccountID, slotID core.SlotID) (core.AccountSlot, error) {
	row, err := r.q.GetSlot(ctx, GetSlotParams{AccountID: int64(id), ID: int64(slotID)})
	if errors.Is(err, sql.ErrNoRows) {
		return core.AccountSlot{}, fmt.Errorf("slot %d: %w", slotID, core.ErrSlotNotFound)
	}
	if err != nil {
		return core.AccountSlot{}, fmt.Errorf("get slot: %w", err)
	}
	return toSlot(row), nil
}

func (r reader) GetTransaction(ctx context.Context, id core.AccountID, txID core.TransactionID) (core.Transaction, error) {
	row, err := r.q.GetTransaction(ctx, GetTransactionParams{AccountID: int64(id), ID: string(txID)})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", txID, core.ErrTransactionNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return toTransaction(row), nil
}

func (r reader) ListSlotTransactions(ctx context.Context, id core.AccountID, slotID core.SlotID, from, to time.Time) ([]core.Transaction, error) {
	var (
		rows []Transaction
		err  error
	)
	if slotID.IsUncategorized() {
		rows, err = r.q.ListUncategorizedTransactions(ctx, ListUncategorizedTransactionsParams{
			AccountID:    int64(id),
			OccurredAt:   from.UnixNano(),
			OccurredAt_2: to.UnixNano(),
		})
	} else {
		rows, err = r.q.ListSlotTransactions(ctx, ListSlotTransactionsParams{
			AccountID:    int64(id),
			SlotID:       slotParam(slotID),
			OccurredAt:   from.UnixNano(),
			OccurredAt_2: to.UnixNano(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("list slot transactions: %w", err)
	}
	out := make([]core.Transaction, len(rows))
	for i, row := range rows {
		out[i] = toTransaction(row)
	}
	return out, nil
}

func (r reader) ListHistory(ctx context.Context, id core.AccountID, slotID core.SlotID) ([]core.SlotHistoryEntry, error) {
	rows, err := r.q.ListHistory(ctx, ListHistoryParams{AccountID: int64(id), AccountSlotID: int64(slotID)})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]core.SlotHistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = core.SlotHistoryEntry{
			ID:            row.ID,
			AccountID:     core.AccountID(row.AccountID),
			AccountSlotID: core.SlotID(row.AccountSlotID),
			OldBudget:     core.Money(row.OldBudget),
			NewBudget:     core.Money(row.NewBudget),
			Reason:        core.HistoryReason(row.Reason),
			Acknowledged:  row.Acknowledged,
			ChangedAt:     row.ChangedAt,
		}
	}
	return out, nil
}

func (r reader) GetSplit(ctx context.Context, id core.AccountID, txID core.TransactionID) (core.Split, bool, error) {
	row, err := r.q.GetSplit(ctx, GetSplitParams{AccountID: int64(id), TransactionID: string(txID)})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Split{}, false, nil
	}
	if err != nil {
		return core.Split{}, false, fmt.Errorf("get split: %w", err)
	}
	return core.Split{
		TransactionID: core.TransactionID(row.TransactionID),
		AccountID:     core.AccountID(row.AccountID),
		SlotID:        core.SlotID(row.SlotID),
		Participants:  int(row.Participants),
		PerPerson:     core.Money(row.PerPerson),
		OthersShare:   core.Money(row.OthersShare),
		CreatedAt:     row.CreatedAt,
	}, true, nil
}

// sqliteTx is the write side of one Atomic call.
type sqliteTx struct {
	reader
	accountID core.AccountID
}

func (t *sqliteTx) checkAccount(id core.AccountID) error {
	if id != t.accountID {
		return fmt.Errorf("account %d outside unit of work: %w", id, core.ErrAccountNotFound)
	}
	return nil
}

func (t *sqliteTx) SetBalance(ctx context.Context, id core.AccountID, balance core.Money, asOf time.Time) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	_, err := t.q.SetAccountBalance(ctx, SetAccountBalanceParams{
		Balance:     int64(balance),
		BalanceAsOf: sql.NullTime{Time: asOf.UTC(), Valid: true},
		ID:          int64(id),
	})
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (t *sqliteTx) CreateSlot(ctx context.Context, slot core.AccountSlot) (core.AccountSlot, error) {
	if err := t.checkAccount(slot.AccountID); err != nil {
		return core.AccountSlot{}, err
	}
	createdAt := slot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row, err := t.q.CreateSlot(ctx, CreateSlotParams{
		AccountID:    int64(slot.AccountID),
		CategoryCode: sql.NullString{String: slot.CategoryCode, Valid: slot.CategoryCode != ""},
		DisplayName:  slot.DisplayName,
		Budget:       int64(slot.Budget),
		Remaining:    int64(slot.Remaining),
		IsSaving:     slot.IsSaving,
		IsCustom:     slot.IsCustom,
		CreatedAt:    createdAt.UTC(),
	})
	if err != nil {
		return core.AccountSlot{}, fmt.Errorf("create slot: %w", err)
	}
	return toSlot(row), nil
}

func (t *sqliteTx) UpdateSlot(ctx context.Context, slot core.AccountSlot) error {
	if err := t.checkAccount(slot.AccountID); err != nil {
		return err
	}
	n, err := t.q.UpdateSlotBudget(ctx, UpdateSlotBudgetParams{
		Budget:    int64(slot.Budget),
		Remaining: int64(slot.Remaining),
		AccountID: int64(slot.AccountID),
		ID:        int64(slot.ID),
	})
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", slot.ID, core.ErrSlotNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteSlot(ctx context.Context, id core.AccountID, slotID core.SlotID) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	n, err := t.q.DeleteSlot(ctx, DeleteSlotParams{AccountID: int64(id), ID: int64(slotID)})
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", slotID, core.ErrSlotNotFound)
	}
	return nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tx core.Transaction) (bool, error) {
	if err := t.checkAccount(tx.AccountID); err != nil {
		return false, err
	}
	n, err := t.q.InsertTransaction(ctx, InsertTransactionParams{
		AccountID:             int64(tx.AccountID),
		ID:                    string(tx.ID),
		SlotID:                slotParam(tx.SlotID),
		Type:                  string(tx.Type),
		Amount:                int64(tx.Amount),
		PostBalance:           int64(tx.PostBalance),
		OccurredAt:            tx.OccurredAt.UnixNano(),
		CounterpartyAccountNo: tx.CounterpartyAccountNo,
	})
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) AssignTransaction(ctx context.Context, id core.AccountID, txID core.TransactionID, slotID core.SlotID) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	n, err := t.q.AssignTransaction(ctx, AssignTransactionParams{
		SlotID:    slotParam(slotID),
		AccountID: int64(id),
		ID:        string(txID),
	})
	if err != nil {
		return fmt.Errorf("assign transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", txID, core.ErrTransactionNotFound)
	}
	return nil
}

func (t *sqliteTx) UnassignSlotTransactions(ctx context.Context, id core.AccountID, slotID core.SlotID) (int64, error) {
	if err := t.checkAccount(id); err != nil {
		return 0, err
	}
	n, err := t.q.UnassignSlotTransactions(ctx, UnassignSlotTransactionsParams{
		AccountID: int64(id),
		SlotID:    slotParam(slotID),
	})
	if err != nil {
		return 0, fmt.Errorf("unassign slot transactions: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) InsertSplit(ctx context.Context, split core.Split) error {
	if err := t.checkAccount(split.AccountID); err != nil {
		return err
	}
	if _, exists, err := t.GetSplit(ctx, split.AccountID, split.TransactionID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("transaction %s: %w", split.TransactionID, core.ErrAlreadySplit)
	}
	createdAt := split.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := t.q.InsertSplit(ctx, InsertSplitParams{
		AccountID:     int64(split.AccountID),
		TransactionID: string(split.TransactionID),
		SlotID:        int64(split.SlotID),
		Participants:  int64(split.Participants),
		PerPerson:     int64(split.PerPerson),
		OthersShare:   int64(split.OthersShare),
		CreatedAt:     createdAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert split: %w", err)
	}
	return nil
}

func (t *sqliteTx) AppendHistory(ctx context.Context, entry core.SlotHistoryEntry) error {
	if err := t.checkAccount(entry.AccountID); err != nil {
		return err
	}
	err := t.q.InsertHistory(ctx, InsertHistoryParams{
		ID:            entry.ID,
		AccountID:     int64(entry.AccountID),
		AccountSlotID: int64(entry.AccountSlotID),
		OldBudget:     int64(entry.OldBudget),
		NewBudget:     int64(entry.NewBudget),
		Reason:        string(entry.Reason),
		Acknowledged:  entry.Acknowledged,
		ChangedAt:     entry.ChangedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (t *sqliteTx) BumpVersion(ctx context.Context, id core.AccountID, expected int64) error {
	if err := t.checkAccount(id); err != nil {
		return err
	}
	n, err := t.q.BumpAccountVersion(ctx, BumpAccountVersionParams{ID: int64(id), Version: expected})
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d not at version %d: %w", id, expected, core.ErrConcurrentModification)
	}
	return nil
}

// slotParam maps the Uncategorized pseudo-slot to NULL.
func slotParam(id core.SlotID) sql.NullInt64 {
	if id.IsUncategorized() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func toAccount(row Account) core.Account {
	return core.Account{
		ID:           core.AccountID(row.ID),
		BankID:       row.BankID,
		AccountNo:    row.AccountNo,
		Balance:      core.Money(row.Balance),
		BalanceKnown: row.BalanceKnown,
		BalanceAsOf:  row.BalanceAsOf.Time,
		Version:      row.Version,
		LinkedAt:     row.LinkedAt,
	}
}

func toSlot(row AccountSlot) core.AccountSlot {
	return core.AccountSlot{
		ID:           core.SlotID(row.ID),
		AccountID:    core.AccountID(row.AccountID),
		CategoryCode: row.CategoryCode.String,
		DisplayName:  row.DisplayName,
		Budget:       core.Money(row.Budget),
		Remaining:    core.Money(row.Remaining),
		IsSaving:     row.IsSaving,
		IsCustom:     row.IsCustom,
		CreatedAt:    row.CreatedAt,
	}
}

func toTransaction(row Transaction) core.Transaction {
	slotID := core.UncategorizedSlotID
	if row.SlotID.Valid {
		slotID = core.SlotID(row.SlotID.Int64)
	}
	return core.Transaction{
		ID:                    core.TransactionID(row.ID),
		AccountID:             core.AccountID(row.AccountID),
		SlotID:                slotID,
		Type:                  core.TransactionType(row.Type),
		Amount:                core.Money(row.Amount),
		PostBalance:           core.Money(row.PostBalance),
		OccurredAt:            time.Unix(0, row.OccurredAt).UTC(),
		CounterpartyAccountNo: row.CounterpartyAccountNo,
	}
}
