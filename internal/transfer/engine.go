// Package transfer implements every ledger mutation: budget reallocation,
// transaction reassignment, split payments, slot lifecycle and the banking
// feed updates.
//
// Each mutation runs under an exclusive per-account lock inside one
// store.Atomic unit of work: read, validate, write, append history,
// reconcile, verify, bump the account version, commit. Ledger events are
// published only after the commit.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/history"
	"slotledger/internal/ledger"
	"slotledger/internal/log"
	"slotledger/internal/reconcile"
)

// DefaultLockTimeout bounds how long a mutation waits for its account.
const DefaultLockTimeout = 5 * time.Second

// Notifier receives ledger events after commit. Delivery is best effort.
type Notifier interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

type Engine struct {
	store    ledger.Store
	catalog  *catalog.Catalog
	history  *history.Ledger
	locks    *accountLocks
	notifier Notifier
	logger   *log.Logger
	audit    *log.StructuredLogger
	now      func() time.Time
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.locks = newAccountLocks(d)
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent(log.ComponentTransfer)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store ledger.Store, cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: cat,
		locks:   newAccountLocks(DefaultLockTimeout),
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentTransfer),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.history = history.New(store).WithClock(e.now)
	e.audit = log.NewStructuredLogger(e.logger)
	return e
}

// outcome is what a mutation body reports back to mutate.
type outcome struct {
	events []core.LedgerEvent
	// noop skips the version bump and event publication; nothing was written.
	noop bool
}

type mutation func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error)

// mutate runs body as one serialized, all-or-nothing ledger operation and
// returns the reconciliation of the committed state.
func (e *Engine) mutate(ctx context.Context, accountID core.AccountID, op string, body mutation) (reconcile.Reconciliation, error) {
	release, err := e.locks.acquire(ctx, accountID)
	if err != nil {
		return reconcile.Reconciliation{}, err
	}
	defer release()

	var (
		rec reconcile.Reconciliation
		out outcome
	)
	err = e.store.Atomic(ctx, accountID, func(tx ledger.Tx) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		out, err = body(ctx, tx, acc)
		if err != nil {
			return err
		}

		after, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		slots, err := tx.ListSlots(ctx, accountID)
		if err != nil {
			return err
		}
		rec, err = reconcile.Compute(after, slots, e.catalog)
		if err != nil {
			return err
		}
		if err := reconcile.Verify(rec); err != nil {
			return err
		}
		if out.noop {
			return nil
		}
		if err := tx.BumpVersion(ctx, accountID, acc.Version); err != nil {
			return err
		}
		rec.Account.Version = acc.Version + 1
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrInvariantViolated) {
			e.audit.LogError(ctx, "Ledger invariant check failed, rolled back", err, op,
				log.NewFields().WithAccount(int64(accountID)))
		}
		return reconcile.Reconciliation{}, err
	}
	if out.noop {
		return rec, nil
	}

	e.audit.LogMutation(ctx, op, int64(accountID), rec.Account.Version, nil)
	e.publish(ctx, rec.Account.Version, out.events)
	return rec, nil
}

func (e *Engine) publish(ctx context.Context, version int64, events []core.LedgerEvent) {
	if e.notifier == nil {
		return
	}
	for _, ev := range events {
		ev.Version = version
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = e.now().UTC()
		}
		if err := e.notifier.PublishLedgerEvent(ctx, ev); err != nil {
			// The change is committed; a lost event does not undo it.
			e.logger.WarnContext(ctx, "Failed to publish ledger event",
				"event", ev.Type,
				log.FieldAccountID, ev.AccountID,
				log.FieldError, err)
		}
	}
}

// Reconcile returns the current reconciliation of an account without
// taking the account lock.
func (e *Engine) Reconcile(ctx context.Context, accountID core.AccountID) (reconcile.Reconciliation, error) {
	acc, slots, err := e.store.Snapshot(ctx, accountID)
	if err != nil {
		return reconcile.Reconciliation{}, err
	}
	return reconcile.Compute(acc, slots, e.catalog)
}

// LinkAccount registers a bank account. Its balance stays unknown until the
// banking feed reports one.
func (e *Engine) LinkAccount(ctx context.Context, bankID, accountNo string) (core.Account, error) {
	acc, err := e.store.CreateAccount(ctx, core.Account{
		BankID:    bankID,
		AccountNo: accountNo,
		LinkedAt:  e.now().UTC(),
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("link account: %w", err)
	}
	e.logger.InfoContext(ctx, "Account linked",
		log.FieldAccountID, acc.ID,
		"bank_id", acc.BankID)
	e.publish(ctx, acc.Version, []core.LedgerEvent{{Type: core.EventAccountLinked, AccountID: acc.ID}})
	return acc, nil
}

// ApplyBalance records a balance reported by the banking feed. Reports older
// than the stored one are ignored; applied tells which case happened.
func (e *Engine) ApplyBalance(ctx context.Context, accountID core.AccountID, balance core.Money, asOf time.Time) (rec reconcile.Reconciliation, applied bool, err error) {
	if !balance.InRange() {
		return reconcile.Reconciliation{}, false, fmt.Errorf("balance %d: %w", balance, core.ErrAmountOutOfRange)
	}
	if asOf.IsZero() {
		asOf = e.now()
	}
	asOf = asOf.UTC()
	rec, err = e.mutate(ctx, accountID, log.OpBalance, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		if acc.BalanceKnown && asOf.Before(acc.BalanceAsOf) {
			return outcome{noop: true}, nil
		}
		if acc.BalanceKnown && asOf.Equal(acc.BalanceAsOf) && balance == acc.Balance {
			return outcome{noop: true}, nil
		}
		if err := tx.SetBalance(ctx, accountID, balance, asOf); err != nil {
			return outcome{}, err
		}
		applied = true
		return outcome{events: []core.LedgerEvent{{
			Type:       core.EventBalanceApplied,
			AccountID:  accountID,
			Amount:     balance,
			OccurredAt: asOf,
		}}}, nil
	})
	if err != nil {
		return reconcile.Reconciliation{}, false, err
	}
	if !applied {
		e.logger.DebugContext(ctx, "Ignored stale balance update",
			log.FieldAccountID, accountID,
			log.FieldBalance, int64(balance))
	}
	return rec, applied, nil
}

// IngestResult reports the effect of one feed transaction.
type IngestResult struct {
	Reconciliation reconcile.Reconciliation
	// Inserted is false when the transaction id was already known.
	Inserted bool
}

// IngestTransaction stores a transaction posted by the banking feed and
// charges it to its slot. A zero or unknown slot id means Uncategorized.
// The account balance follows the transaction's post balance unless the
// feed already reported a newer one.
func (e *Engine) IngestTransaction(ctx context.Context, t core.Transaction) (IngestResult, error) {
	if err := t.Validate(); err != nil {
		return IngestResult{}, err
	}
	t.OccurredAt = t.OccurredAt.UTC()
	if t.SlotID <= 0 {
		t.SlotID = core.UncategorizedSlotID
	}

	var inserted bool
	rec, err := e.mutate(ctx, t.AccountID, log.OpIngest, func(ctx context.Context, tx ledger.Tx, acc core.Account) (outcome, error) {
		var slot core.AccountSlot
		if !t.SlotID.IsUncategorized() {
			s, err := tx.GetSlot(ctx, t.AccountID, t.SlotID)
			switch {
			case errors.Is(err, core.ErrNotFound):
				e.logger.WarnContext(ctx, "Feed transaction names unknown slot, keeping it uncategorized",
					log.FieldTransactionID, t.ID,
					log.FieldSlotID, t.SlotID)
				t.SlotID = core.UncategorizedSlotID
			case err != nil:
				return outcome{}, err
			default:
				slot = s
			}
		}

		ok, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			return outcome{noop: true}, nil
		}
		inserted = true

		if !t.SlotID.IsUncategorized() {
			slot.Remaining += t.Signed()
			if err := tx.UpdateSlot(ctx, slot); err != nil {
				return outcome{}, err
			}
		}
		if !acc.BalanceKnown || !t.OccurredAt.Before(acc.BalanceAsOf) {
			if err := tx.SetBalance(ctx, t.AccountID, t.PostBalance, t.OccurredAt); err != nil {
				return outcome{}, err
			}
		}
		return outcome{events: []core.LedgerEvent{{
			Type:          core.EventTransactionIngested,
			AccountID:     t.AccountID,
			SlotIDs:       []core.SlotID{t.SlotID},
			TransactionID: t.ID,
			Amount:        t.Amount,
			OccurredAt:    t.OccurredAt,
		}}}, nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Reconciliation: rec, Inserted: inserted}, nil
}

func (e *Engine) appendHistory(ctx context.Context, tx ledger.Tx, c history.Change) error {
	_, err := e.history.Append(ctx, tx, c)
	return err
}
