package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"slotledger/internal/amqp"
	"slotledger/internal/cli"
	"slotledger/internal/feed"
	"slotledger/internal/log"
	"slotledger/internal/transfer"
	"slotledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting slotledger-feed", "backend", cfg.DataBackend)

	if cfg.AMQPURL == "" && cfg.FeedBaseURL == "" {
		logger.Error("Nothing to do: set AMQP_URL, FEED_BASE_URL or both")
		os.Exit(1)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is private to this process; balances will not reach the API server")
	}

	cat := cli.LoadCatalog(logger, cfg.CatalogFile)
	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	engineOpts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithLockTimeout(cfg.LockTimeout),
	}

	var client *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		client, err = amqp.NewClient(amqp.Config{
			URL:              cfg.AMQPURL,
			Exchange:         cfg.AMQPExchange,
			FeedQueue:        cfg.AMQPFeedQueue,
			EventsRoutingKey: cfg.AMQPEventsRoutingKey,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		engineOpts = append(engineOpts, transfer.WithNotifier(client))
	}

	var source worker.BalanceSource
	if cfg.FeedBaseURL != "" {
		fc, err := feed.NewClient(cfg.FeedBaseURL)
		if err != nil {
			logger.Error("Failed to initialize feed client", log.FieldError, err)
			os.Exit(1)
		}
		source = fc
		logger.Info("Balance polling enabled", "url", cfg.FeedBaseURL, "interval", cfg.FeedPollInterval)
	}

	engine := transfer.New(res.Store, cat, engineOpts...)
	feedWorker := worker.NewFeedWorker(engine, res.Store, source, worker.FeedWorkerConfig{
		PollInterval: cfg.FeedPollInterval,
	}, logger)

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	if client != nil {
		g.Go(func() error {
			return client.ConsumeFeed(gctx, feedWorker)
		})
	}
	if source != nil {
		g.Go(func() error {
			return feedWorker.Run(gctx)
		})
	}

	err := g.Wait()
	balances, transactions := feedWorker.Stats()
	logger.Info("Feed worker stopped",
		"balances_applied", balances,
		"transactions_ingested", transactions)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Feed worker failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
