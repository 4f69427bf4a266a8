package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/billing"
	"github.com/platinummonkey/quartermaster/pkg/config"
	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/projects"
	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
	"github.com/platinummonkey/quartermaster/pkg/users"
)

// App is the wired set of services a command runs against
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Conn     *storage.ConnectionManager
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Deps     rbac.Deps

	Catalog  *rbac.Catalog
	Ledger   *rbac.Ledger
	Checker  *rbac.Checker
	Users    *users.Store
	Projects *projects.Service
	Billing  *billing.Service

	// Watcher is set when the policy file is watched for changes
	Watcher *rbac.PolicyWatcher

	closers []func() error
}

// OpenApp loads the configuration from the environment and opens the app
func OpenApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	conn, err := storage.NewConnectionManager(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	return NewApp(ctx, cfg, logger, conn)
}

// NewApp wires the services on top of conn. Extra audit loggers receive
// every event next to the structured log. The app owns conn afterwards.
func NewApp(ctx context.Context, cfg *config.Config, logger *observability.Logger, conn *storage.ConnectionManager, extraAudit ...audit.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Conn:   conn,
	}
	app.closers = append(app.closers, conn.Close)

	if cfg.Observability.MetricsEnabled {
		app.Registry = prometheus.NewRegistry()
		app.Metrics = observability.NewMetrics(app.Registry)
	}

	if cfg.Redis.URL != "" {
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Redis = client
		app.closers = append(app.closers, client.Close)
	}

	cache, err := app.decisionCache()
	if err != nil {
		app.Close()
		return nil, err
	}

	policy, err := app.policySource()
	if err != nil {
		app.Close()
		return nil, err
	}

	auditLoggers := append([]audit.Logger{audit.NewStructuredLogger(logger)}, extraAudit...)
	app.Deps = rbac.Deps{
		Clock:   clockwork.NewRealClock(),
		Audit:   audit.NewMultiLogger(auditLoggers...),
		Cache:   cache,
		Metrics: app.Metrics,
		Logger:  logger,
	}

	db := conn.Primary()
	app.Ledger = rbac.NewLedger(db, app.Deps)
	app.Catalog = app.Ledger.Catalog()
	app.Checker = rbac.NewChecker(db, policy, app.Deps)
	app.Users = users.NewStore(db, app.Deps.Clock)
	app.Projects = projects.NewService(db, app.Checker, app.Deps)
	app.Billing = billing.NewService(db, app.Checker, app.Deps)

	return app, nil
}

func (a *App) decisionCache() (rbac.DecisionCache, error) {
	switch a.Config.Cache.Mode {
	case config.CacheModeMemory:
		return rbac.NewMemoryDecisionCache(a.Config.Cache.Size, a.Config.Cache.TTL), nil
	case config.CacheModeRedis:
		if a.Redis == nil {
			return nil, errors.New("redis cache selected without a redis connection")
		}
		return rbac.NewRedisDecisionCache(a.Redis, a.Config.Cache.TTL), nil
	case config.CacheModeNone, "":
		return rbac.NoopDecisionCache{}, nil
	default:
		return nil, fmt.Errorf("invalid cache mode: %s", a.Config.Cache.Mode)
	}
}

func (a *App) policySource() (rbac.PolicySource, error) {
	path := a.Config.Policy.File
	if path == "" {
		return rbac.StaticPolicy{P: rbac.DefaultPolicy()}, nil
	}

	if a.Config.Policy.Watch {
		watcher, err := rbac.NewPolicyWatcher(path, a.Logger)
		if err != nil {
			return nil, err
		}
		a.Watcher = watcher
		a.closers = append(a.closers, watcher.Close)
		return watcher, nil
	}

	policy, err := rbac.LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	return rbac.StaticPolicy{P: policy}, nil
}

// Close releases everything the app opened, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) runMigrations(ctx context.Context) error {
	return storage.RunMigrations(ctx, a.Conn.Primary(), a.Conn.Dialect(), a.Logger)
}
