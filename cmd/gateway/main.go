package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/api"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/audit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/budget"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/config"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/enforce"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/envelope"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/nonce"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/observability"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/quote"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/ratelimit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/receipts"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/registry"
	goredis "github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"         // Postgres driver
	_ "modernc.org/sqlite"        // SQLite driver
)

const nonceTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routes, err := config.LoadRoutes(cfg.RoutesPath)
	if err != nil {
		return err
	}
	logger.Info("route policies loaded", "path", cfg.RoutesPath, "routes", len(routes))

	metrics, err := observability.New(ctx, &observability.Config{
		ServiceName:  "route-gateway",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
		Insecure:     true,
	})
	if err != nil {
		return err
	}

	auditLog := audit.NewLog(1024, logger)
	defer auditLog.Close()

	srv := &server{auditLog: auditLog, logger: logger}
	deps := enforce.Deps{
		Verifier: envelope.NewSignatureVerifier(),
		Events:   auditLog,
		Metrics:  metrics,
		Logger:   logger,
	}

	// Durable stores in persistent mode, in-process otherwise. The pipeline
	// semantics are identical; only crash durability and horizontal
	// sharing differ.
	if cfg.Persistent() {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		logger.Info("postgres connected")

		budgetStore := budget.NewPostgresService(db)
		if err := budgetStore.Migrate(ctx); err != nil {
			return err
		}

		sdb, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer sdb.Close()

		quoteStore, err := quote.NewSQLiteStore(sdb)
		if err != nil {
			return err
		}
		receiptStore, err := receipts.NewSQLiteStore(sdb)
		if err != nil {
			return err
		}

		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("redis connected", "addr", cfg.RedisAddr)

		deps.Budget = budgetStore
		deps.Nonces = nonce.NewRedisStore(rdb, nonceTTL)
		deps.Limiter = ratelimit.NewRedisLimiter(rdb)
		deps.Quotes = quoteStore
		deps.Receipts = receiptStore
		srv.db = db
		srv.redis = rdb
		srv.quotes = quoteStore
		srv.receipts = receiptStore
	} else {
		logger.Info("memory store backend; state is lost on restart")
		quoteStore := quote.NewMemoryStore()
		receiptStore := receipts.NewMemoryStore()
		deps.Budget = budget.NewMemoryService()
		deps.Nonces = nonce.NewMemoryStore()
		deps.Limiter = ratelimit.NewMemoryLimiter()
		deps.Quotes = quoteStore
		deps.Receipts = receiptStore
		srv.quotes = quoteStore
		srv.receipts = receiptStore
	}

	if cfg.RegistryURL != "" {
		client := registry.NewHTTPClient(cfg.RegistryURL, 5*time.Second, logger)
		deps.Passports = client
		deps.Sessions = client
	} else {
		logger.Warn("REGISTRY_URL not set; in-memory registry is empty and every request will be denied")
		mem := registry.NewMemoryRegistry()
		deps.Passports = mem
		deps.Sessions = mem
	}

	facilitator := payment.NewFacilitatorClient(cfg.FacilitatorURL, 10*time.Second, logger)
	deps.Payments = payment.NewService(payment.Config{
		PayTo:          cfg.PayToAddress,
		Asset:          cfg.PaymentAsset,
		FacilitatorURL: cfg.FacilitatorURL,
		QuoteTTL:       cfg.QuoteTTL,
	}, facilitator, logger)

	enforcer, err := enforce.NewEnforcer(deps)
	if err != nil {
		return err
	}
	srv.enforcer = enforcer

	limiter := api.NewGlobalRateLimiter(50, 100)
	handler := api.RequestIDMiddleware(limiter.Middleware(srv.routes(routes)))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
