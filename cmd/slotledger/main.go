package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"slotledger/internal/amqp"
	"slotledger/internal/cli"
	apphttp "slotledger/internal/http"
	"slotledger/internal/log"
	"slotledger/internal/query"
	"slotledger/internal/transfer"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting slotledger", "port", cfg.Port, "backend", cfg.DataBackend)

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
	serverOpts := []apphttp.Option{
		apphttp.WithReadinessCheck("store", res.Ping),
	}

	// Ledger events are published only when a broker is configured.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(amqp.Config{
			URL:              cfg.AMQPURL,
			Exchange:         cfg.AMQPExchange,
			FeedQueue:        cfg.AMQPFeedQueue,
			EventsRoutingKey: cfg.AMQPEventsRoutingKey,
		}, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, ledger events disabled", log.FieldError, err)
		} else {
			defer client.Close()
			engineOpts = append(engineOpts, transfer.WithNotifier(client))
			serverOpts = append(serverOpts, apphttp.WithReadinessCheck("amqp", client.Ping))
			logger.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange,
				"routing_key", cfg.AMQPEventsRoutingKey)
		}
	}

	engine := transfer.New(res.Store, cat, engineOpts...)
	httpCfg := apphttp.DefaultConfig()
	httpCfg.Addr = cfg.Addr()
	httpCfg.RateLimitPerMinute = cfg.RateLimitPerMinute
	httpCfg.IdempotencyTTL = cfg.IdempotencyTTL
	srv := apphttp.NewServer(httpCfg, engine, query.New(res.Store, cat), logger, serverOpts...)

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("HTTP server listening", "addr", httpCfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
