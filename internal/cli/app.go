package cli

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/config"
	"github.com/spec-kit/issuelog/internal/events"
	"github.com/spec-kit/issuelog/internal/observability"
	"github.com/spec-kit/issuelog/internal/persistence"
	"github.com/spec-kit/issuelog/internal/repository"
	"github.com/spec-kit/issuelog/internal/schema"
	"github.com/spec-kit/issuelog/internal/service"
)

var errNoDatabase = errors.New("POSTGRES_DSN is required")

// app holds the connections and services shared by the replay and serve commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pg      *persistence.Postgres
	sqlx    *persistence.SQLX
	redis   *persistence.Redis
	metrics *observability.Metrics
	replay  *service.ReplayService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	a.pg = pg
	pool := pg.PoolHandle()
	if pool == nil {
		return nil, errNoDatabase
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, os.DirFS(persistence.MigrationsDir), pg.Exec, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	var sink repository.DBAdapter = repository.NewPGXAdapter(pool)
	if cfg.Postgres.Driver == config.DriverSQLX {
		sx, err := persistence.NewSQLX(ctx, cfg.Postgres, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sqlx = sx
		sink = repository.NewSQLXAdapter(sx.Handle())
	}

	var overrides schema.Overrides
	if cfg.Replay.MappingFile != "" {
		overrides, err = schema.LoadOverrides(cfg.Replay.MappingFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("loaded label overrides", zap.String("file", cfg.Replay.MappingFile), zap.Int("kinds", len(overrides)))
	}

	a.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	var (
		cache repository.PersonCache
		kv    service.KeyValue
	)
	if client := a.redis.Handle(); client != nil {
		cache = client
		kv = client
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewOutcomeNotifier(dispatcher, logger, a.metrics).RegisterHandlers()

	resolver := repository.NewCachedPersonResolver(
		repository.NewPeopleRepository(pool), cache, cfg.Replay.PersonCacheTTL(), logger)

	a.replay = service.NewReplayService(service.ReplayDependencies{
		IssueRepo:    repository.NewIssueRepository(pool),
		ChangeRepo:   repository.NewChangeRepository(pool),
		SnapshotRepo: repository.NewSnapshotRepository(sink, logger),
		Resolver:     resolver,
		Dispatcher:   dispatcher,
		Reports:      service.NewReportStore(kv, logger),
		Overrides:    overrides,
	}, cfg.Replay, logger)

	return a, nil
}

// Close releases every connection that was opened.
func (a *app) Close() {
	a.sqlx.Close()
	a.redis.Close()
	a.pg.Close()
}
