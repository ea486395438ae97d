package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-paychain/adapters/gologger"
	"github.com/goliatone/go-paychain/core"
	paychainmigrations "github.com/goliatone/go-paychain/migrations"
	"github.com/goliatone/go-paychain/ratelimit"
	"github.com/goliatone/go-paychain/security"
	sqlstore "github.com/goliatone/go-paychain/store/sql"
	"github.com/goliatone/go-paychain/transport"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return driverSQLite
	case "postgres", "postgresql", "pg":
		return driverPostgres
	default:
		return strings.TrimSpace(driver)
	}
}

// runtime is the wired service graph one CLI invocation works against.
type runtime struct {
	cfg      appConfig
	logs     *gologger.ZapProvider
	logger   glog.Logger
	client   *persistence.Client
	factory  *sqlstore.RepositoryFactory
	ledger   *sqlstore.LedgerStore
	secrets  *security.AppKeySecretProvider
	throttle *ratelimit.AdaptivePolicy
	swap     *transport.SwapForwarder
	svc      *core.Service
}

func openRuntime(ctx context.Context, v *viper.Viper, cfg appConfig, extra ...core.Option) (*runtime, error) {
	logs, err := gologger.NewZapProvider(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		cfg:      cfg,
		logs:     logs,
		logger:   logs.GetLogger("paychain.cmd"),
		throttle: ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()),
	}

	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.client = client
	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, client, cfg.Database.Driver); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("paychain: build read cache: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithReadCache(cacheService))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.factory = factory
	rt.ledger = factory.LedgerStore()

	opts := []core.Option{
		core.WithLoggerProvider(logs),
		core.WithConfigProvider(core.NewCfgxConfigProvider(viperRawConfigLoader{v: v})),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithTokenLedger(rt.ledger),
	}
	if key := strings.TrimSpace(cfg.Secrets.AppKey); key != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.secrets = secrets
		opts = append(opts, core.WithSecretProvider(secrets))
	}
	if swap, err := rt.newSwapForwarder(); err != nil {
		_ = rt.Close()
		return nil, err
	} else if swap != nil {
		rt.swap = swap
		opts = append(opts, core.WithSwapExecutor(swap))
	}
	opts = append(opts, extra...)

	svc, err := core.NewService(core.Config{}, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.svc = svc
	return rt, nil
}

func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	var closeErr error
	if r.client != nil {
		closeErr = r.client.Close()
	}
	if r.logs != nil {
		_ = r.logs.Sync()
	}
	return closeErr
}

func openPersistence(ctx context.Context, cfg databaseConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.Driver {
	case driverSQLite:
		dialect = sqlitedialect.New()
	case driverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("paychain: unsupported database driver %q", cfg.Driver)
	}
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("paychain: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("paychain: ping %s: %w", cfg.Driver, err)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("paychain: persistence client: %w", err)
	}
	return client, nil
}

// migrate registers the embedded migrations for the active dialect only.
func migrate(ctx context.Context, client *persistence.Client, driver string) error {
	target, err := paychainmigrations.DialectForDriver(driver)
	if err != nil {
		return err
	}
	_, err = paychainmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, paychainmigrations.WithValidationTargets(target))
	if err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("paychain: migrate: %w", err)
	}
	return nil
}

// outboundAdapter builds a transport adapter of kind behind the shared
// throttle policy.
func (r *runtime) outboundAdapter(kind string, timeout time.Duration) (transport.Adapter, error) {
	adapter, err := transport.NewDefaultRegistry().Build(kind, map[string]any{
		"timeout": timeout.String(),
	})
	if err != nil {
		return nil, err
	}
	return ratelimit.NewThrottledAdapter(adapter, r.throttle), nil
}

func (r *runtime) newSwapForwarder() (*transport.SwapForwarder, error) {
	kind := strings.TrimSpace(r.cfg.Swap.Adapter)
	if kind == "" {
		return nil, nil
	}
	adapter, err := r.outboundAdapter(kind, r.cfg.Swap.Timeout)
	if err != nil {
		return nil, err
	}
	return transport.NewSwapForwarder(adapter, r.cfg.Swap.Endpoint, transport.WithSwapTimeout(r.cfg.Swap.Timeout))
}
