package cmd

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ledgerServices bundles the services a command needs against one pool.
type ledgerServices struct {
	pool       *pgxpool.Pool
	redis      *redis.Client
	accounts   accounts.Repository
	roles      *mappings.PGRepository
	hooks      *integration.Hooks
	reconciler *integration.Reconciler
	reports    *reports.Service
	integrity  *jobs.GLIntegrityJob
}

func newLedgerServices(ctx context.Context) (*ledgerServices, error) {
	pool, err := openPool(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := mappings.LoadRoleFile(cfg.LedgerAccountRolesFile)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// Redis only guards concurrent reconciles; a one-off run proceeds without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, sync locks disabled", slog.Any("error", err))
	}

	accountRepo := accounts.NewRepository(pool)
	roleRepo := mappings.NewRepository(pool)
	resolver := mappings.NewResolver(roleRepo, accountRepo, targets, cfg.LedgerRoleCacheTTL)
	ledgerRepo := accounting.NewRepository(pool)
	ledger := accounting.NewService(ledgerRepo, shared.NewAuditLogger(pool), logger)
	documents := integration.NewPGDocuments(pool)
	hooks := integration.NewHooks(ledger, documents, resolver, logger).WithActor(operator())
	reportService := reports.NewService(reports.NewRepository(pool), logger)

	return &ledgerServices{
		pool:       pool,
		redis:      redisClient,
		accounts:   accountRepo,
		roles:      roleRepo,
		hooks:      hooks,
		reconciler: integration.NewReconciler(hooks, documents, shared.NewDocumentLocker(redisClient, cfg.LedgerSyncLockTTL), logger),
		reports:    reportService,
		integrity:  jobs.NewGLIntegrityJob(ledgerRepo, reportService, logger, jobmetrics.NewMetrics(prometheus.NewRegistry())),
	}, nil
}

func (s *ledgerServices) opsCLI() (*cli.LedgerOpsCLI, error) {
	return cli.NewLedgerOpsCLI(s.reports, s.integrity)
}

func (s *ledgerServices) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.pool.Close()
}
