package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"slotledger/internal/amqp"
	"slotledger/internal/core"
	"slotledger/internal/feed"
	"slotledger/internal/log"
	"slotledger/internal/reconcile"
	"slotledger/internal/transfer"
)

// Ledger is the part of the transfer engine the feed drives.
type Ledger interface {
	ApplyBalance(ctx context.Context, accountID core.AccountID, balance core.Money, asOf time.Time) (reconcile.Reconciliation, bool, error)
	IngestTransaction(ctx context.Context, t core.Transaction) (transfer.IngestResult, error)
}

type AccountLister interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
}

// BalanceSource fetches balances on demand.
type BalanceSource interface {
	FetchBalance(ctx context.Context, accountID core.AccountID) (feed.Balance, error)
}

// FeedWorkerConfig holds configuration for the feed worker
type FeedWorkerConfig struct {
	// PollInterval is how often every account balance is polled (default: 5m)
	PollInterval time.Duration

	// Concurrency caps parallel balance requests per poll (default: 4)
	Concurrency int
}

func DefaultFeedWorkerConfig() FeedWorkerConfig {
	return FeedWorkerConfig{
		PollInterval: 5 * time.Minute,
		Concurrency:  4,
	}
}

// FeedWorker applies banking feed messages to the ledger and, when a
// balance source is configured, polls balances for every linked account.
type FeedWorker struct {
	ledger   Ledger
	accounts AccountLister
	source   BalanceSource
	config   FeedWorkerConfig
	logger   *log.Logger

	applied  atomic.Int64
	ingested atomic.Int64
}

var _ amqp.FeedHandler = (*FeedWorker)(nil)

// NewFeedWorker creates a feed worker. source may be nil, which disables polling.
func NewFeedWorker(ledger Ledger, accounts AccountLister, source BalanceSource, config FeedWorkerConfig, logger *log.Logger) *FeedWorker {
	defaults := DefaultFeedWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &FeedWorker{
		ledger:   ledger,
		accounts: accounts,
		source:   source,
		config:   config,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleBalanceUpdated processes a single balance report from AMQP
func (w *FeedWorker) HandleBalanceUpdated(ctx context.Context, msg *amqp.BalanceUpdatedMessage) error {
	_, applied, err := w.ledger.ApplyBalance(ctx, core.AccountID(msg.AccountID), core.Money(msg.Balance), msg.AsOf)
	if err != nil {
		return classify(fmt.Errorf("apply balance for account %d: %w", msg.AccountID, err))
	}
	if applied {
		w.applied.Add(1)
	}
	w.logger.DebugContext(ctx, "Processed balance update",
		log.FieldAccountID, msg.AccountID,
		log.FieldBalance, msg.Balance,
		"applied", applied)
	return nil
}

// HandleTransactionPosted processes a single posted transaction from AMQP
func (w *FeedWorker) HandleTransactionPosted(ctx context.Context, msg *amqp.TransactionPostedMessage) error {
	res, err := w.ledger.IngestTransaction(ctx, msg.Transaction())
	if err != nil {
		return classify(fmt.Errorf("ingest transaction %s: %w", msg.ID, err))
	}
	if res.Inserted {
		w.ingested.Add(1)
	}
	w.logger.DebugContext(ctx, "Processed posted transaction",
		log.FieldTransactionID, msg.ID,
		log.FieldAccountID, msg.AccountID,
		"inserted", res.Inserted)
	return nil
}

// classify marks errors that retrying cannot fix so the message is dropped.
func classify(err error) error {
	if core.IsValidation(err) || errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %w", amqp.ErrUnprocessable, err)
	}
	return err
}

// PollBalances fetches and applies the balance of every linked account. A
// failing account is logged and does not stop the others.
func (w *FeedWorker) PollBalances(ctx context.Context) (int, error) {
	if w.source == nil {
		return 0, nil
	}
	accounts, err := w.accounts.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	var applied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			b, err := w.source.FetchBalance(gctx, acc.ID)
			if err != nil {
				w.logger.WarnContext(gctx, "Balance poll failed",
					log.FieldAccountID, acc.ID,
					log.FieldError, err)
				return nil
			}
			_, ok, err := w.ledger.ApplyBalance(gctx, acc.ID, b.Balance, b.AsOf)
			if err != nil {
				w.logger.ErrorContext(gctx, "Failed to apply polled balance",
					log.FieldAccountID, acc.ID,
					log.FieldError, err)
				return nil
			}
			if ok {
				applied.Add(1)
				w.applied.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(applied.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(applied.Load()), err
	}
	w.logger.InfoContext(ctx, "Balance poll complete",
		"accounts", len(accounts),
		"applied", applied.Load())
	return int(applied.Load()), nil
}

// Run polls immediately and then every PollInterval until ctx is cancelled.
func (w *FeedWorker) Run(ctx context.Context) error {
	if w.source == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.PollBalances(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Periodic balance poll failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats reports how many balances and transactions changed the ledger.
func (w *FeedWorker) Stats() (balancesApplied, transactionsIngested int64) {
	return w.applied.Load(), w.ingested.Load()
}
