package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"slotledger/internal/cache"
	"slotledger/internal/log"
	"slotledger/internal/middleware/ratelimit"
	"slotledger/internal/middleware/security"
	"slotledger/internal/middleware/trace"
	"slotledger/internal/query"
	"slotledger/internal/transfer"
)

// Config holds the server's tunables.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
	IdempotencyEntries int
	// RetryAfter is advertised while an account balance is still unknown.
	RetryAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":8081",
		RateLimitPerMinute: 120,
		IdempotencyTTL:     10 * time.Minute,
		IdempotencyEntries: 10_000,
		RetryAfter:         30 * time.Second,
	}
}

type readinessCheck struct {
	name string
	fn   func(context.Context) error
}

type Server struct {
	http.Server
	cfg    Config
	engine *transfer.Engine
	query  *query.Facade
	logger *log.Logger
	now    func() time.Time

	tracer    *trace.Middleware
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	responses *cache.LRUCache[storedResponse]
	caches    *cache.Manager
	checks    []readinessCheck
	started   time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithReadinessCheck registers a dependency probed by /readyz.
func WithReadinessCheck(name string, fn func(context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, readinessCheck{name: name, fn: fn})
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, engine *transfer.Engine, q *query.Facade, logger *log.Logger, opts ...Option) *Server {
	defaults := DefaultConfig()
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaults.IdempotencyTTL
	}
	if cfg.IdempotencyEntries <= 0 {
		cfg.IdempotencyEntries = defaults.IdempotencyEntries
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaults.RetryAfter
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		cfg:       cfg,
		engine:    engine,
		query:     q,
		logger:    logger,
		now:       time.Now,
		detector:  security.NewDetector(logger),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		responses: cache.NewLRUCache[storedResponse](cfg.IdempotencyEntries, cfg.IdempotencyTTL),
		caches:    cache.NewManager(logger),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.caches.Register(s.responses)
	s.caches.StartCleanup(time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /accounts", s.handleLinkAccount)
	mux.HandleFunc("POST /accounts/{accountId}/balance", s.handleApplyBalance)

	mux.HandleFunc("GET /accounts/{accountId}/slots", s.handleListSlots)
	mux.HandleFunc("POST /accounts/{accountId}/slots", s.handleCreateSlot)
	mux.HandleFunc("POST /accounts/{accountId}/slots/reassign", s.handleCommitSlots)
	mux.HandleFunc("DELETE /accounts/{accountId}/slots/{slotId}", s.handleDeleteSlot)
	mux.HandleFunc("PATCH /accounts/{accountId}/slots/{slotId}/budget", s.handleReallocateBudget)
	mux.HandleFunc("GET /accounts/{accountId}/slots/{slotId}/daily-spending", s.handleDailySpending)
	mux.HandleFunc("GET /accounts/{accountId}/slots/{slotId}/history", s.handleSlotHistory)

	mux.HandleFunc("POST /accounts/{accountId}/transactions/{txId}/move", s.handleMoveTransaction)
	mux.HandleFunc("POST /accounts/{accountId}/transactions/{txId}/split", s.handleSplitTransaction)

	// Outermost first: trace, security, rate limit, idempotency.
	var handler http.Handler = mux
	handler = newIdempotency(s.responses).Middleware(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, retry later").Write(w)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
