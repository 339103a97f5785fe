package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const idempotencySweepInterval = time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(dbpool, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, sync locks disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	roleTargets, err := mappings.LoadRoleFile(cfg.LedgerAccountRolesFile)
	if err != nil {
		logger.Error("load account roles", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	accountRepo := accounts.NewRepository(dbpool)
	accountService := accounts.NewService(accountRepo)
	roleResolver := mappings.NewResolver(mappings.NewRepository(dbpool), accountRepo, roleTargets, cfg.LedgerRoleCacheTTL)

	ledgerService := accounting.NewService(accounting.NewRepository(dbpool), auditLogger, logger)
	ledgerService.WithMetrics(metrics)
	reportService := reports.NewService(reports.NewRepository(dbpool), logger)

	documents := integration.NewPGDocuments(dbpool)
	hooks := integration.NewHooks(ledgerService, documents, roleResolver, logger)
	reconciler := integration.NewReconciler(hooks, documents, shared.NewDocumentLocker(redisClient, cfg.LedgerSyncLockTTL), logger)

	inspector := asynq.NewInspector(cache.AsynqOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, ledgerService, idempotencyStore),
		AccountsHandler:   accounts.NewHandler(logger, accountService),
		ReportsHandler:    reports.NewHandler(logger, reportService),
		SyncHandler:       integration.NewHandler(logger, hooks, reconciler),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Ready:             readiness(dbpool, redisClient),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go sweepIdempotencyKeys(ctx, idempotencyStore, cfg.LedgerIdempotencyTTL, logger)

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func readiness(pool *pgxpool.Pool, client *redis.Client) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		if client == nil {
			return nil
		}
		return client.Ping(ctx).Err()
	}
}

func sweepIdempotencyKeys(ctx context.Context, store *shared.IdempotencyStore, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx, ttl)
			if err != nil {
				logger.Warn("idempotency cleanup", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency keys expired", slog.Int64("removed", removed))
			}
		}
	}
}
