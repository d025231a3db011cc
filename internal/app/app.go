// Package app wires configuration into the running queue: database,
// template source, provider, processor, supervisor and adapters. The
// binaries share it so they start the same components the same way.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/config"
	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/notify"
	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/storage"
	"github.com/sungwon/mailqueue/internal/supervisor"
	"github.com/sungwon/mailqueue/internal/template"
	"github.com/sungwon/mailqueue/internal/wakeup"
)

// App holds the constructed components. DB and Redis are nil when the
// configuration does not need them.
type App struct {
	Config     *config.Config
	DB         *storage.DB
	Redis      *redis.Client
	Provider   provider.Provider
	Health     *provider.HealthChecker
	Processor  *queue.Processor
	Supervisor *supervisor.Supervisor
	Adapters   *notify.Adapters

	log zerolog.Logger
}

// New builds every component from cfg. Nothing is started; call Start.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	if needsDatabase(cfg) {
		db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.DB = db
		log.Info().Msg("database connection established")

		if cfg.Database.Migrate {
			if err := storage.Migrate(ctx, db.Pool, logger.Component(log, "migrate")); err != nil {
				a.Close()
				return nil, err
			}
		}
	}

	if cfg.Redis.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")
	}

	source, err := a.templateSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	compiler := template.NewCompiler(source, template.Defaults{
		SiteName:     cfg.App.SiteName,
		BaseURL:      cfg.App.BaseURL,
		SupportEmail: cfg.App.SupportEmail,
	})

	a.Provider, err = provider.NewProvider(ProviderConfig(cfg.Provider), nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	registry := provider.NewRegistry()
	registry.Register(a.Provider)
	a.Health = provider.NewHealthChecker(registry, 0)

	var (
		signals interface {
			queue.Notifier
			wakeup.Subscriber
		}
		store queue.Store
		opts  []queue.Option
	)
	if a.Redis != nil {
		signals = wakeup.NewRedis(a.Redis, cfg.Redis.WakeupChannel, logger.Component(log, "wakeup"))
	} else {
		signals = wakeup.NewLocal()
	}
	opts = append(opts, queue.WithNotifier(signals))

	if cfg.Queue.Store == "memory" {
		store = queue.NewMemoryStore()
		log.Warn().Msg("using in-memory queue store; entries are lost on restart")
	} else {
		store = storage.NewQueueStore(a.DB.Pool)
	}

	var notifications *storage.NotificationStore
	if a.DB != nil {
		prefs := preferenceLookup(storage.NewPreferenceStore(a.DB.Pool), a.Redis, cfg, log)
		notifications = storage.NewNotificationStore(a.DB.Pool)
		opts = append(opts,
			queue.WithPreferences(prefs),
			queue.WithNotificationMarker(notifications),
		)
	}

	a.Processor = queue.NewProcessor(store, compiler, a.Provider, queue.Config{
		BatchSize:   cfg.Queue.BatchSize,
		Concurrency: cfg.Queue.Concurrency,
		MaxAttempts: cfg.Queue.MaxAttempts,
		SendTimeout: cfg.Queue.SendTimeout,
		StaleAfter:  cfg.Queue.StaleAfter,
		FromEmail:   cfg.Provider.FromEmail,
		FromName:    cfg.Provider.FromName,
	}, logger.Component(log, "processor"), opts...)

	a.Supervisor = supervisor.New(a.Processor, supervisor.Config{
		TickInterval:    cfg.Queue.TickInterval,
		HealthInterval:  cfg.Queue.HealthInterval,
		RestartDelay:    cfg.Queue.RestartDelay,
		MaxRestartDelay: cfg.Queue.MaxRestartDelay,
		BatchSize:       cfg.Queue.BatchSize,
	}, logger.Component(log, "supervisor"), supervisor.WithSubscriber(signals))

	var adapterOpts []notify.Option
	if notifications != nil {
		adapterOpts = append(adapterOpts, notify.WithRecorder(notifications))
	}
	a.Adapters = notify.New(a.Processor, cfg.App.BaseURL, logger.Component(log, "notify"), adapterOpts...)

	return a, nil
}

// Start begins provider health checks and, when queue.auto_start is set,
// the supervisor. Both stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.Health.Start(ctx)
	if !a.Config.Queue.AutoStart {
		a.log.Info().Msg("queue.auto_start is off; supervisor not started")
		return nil
	}
	return a.Supervisor.Start(ctx)
}

// Close stops background work and releases connections.
func (a *App) Close() {
	if a.Supervisor != nil {
		a.Supervisor.Stop()
	}
	if a.Health != nil {
		a.Health.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close redis")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.Queue.Store != "memory" || cfg.Templates.Source == "postgres"
}

func (a *App) templateSource(ctx context.Context) (template.Source, error) {
	switch a.Config.Templates.Source {
	case "fs":
		a.log.Info().Str("dir", a.Config.Templates.Dir).Msg("reading templates from disk")
		return template.NewFSSource(os.DirFS(a.Config.Templates.Dir), "."), nil
	case "postgres":
		src := storage.NewTemplateSource(a.DB.Pool)
		n, err := src.SeedMissing(ctx, template.Builtin().Definitions())
		if err != nil {
			return nil, fmt.Errorf("seed templates: %w", err)
		}
		if n > 0 {
			a.log.Info().Int("seeded", n).Msg("seeded default templates")
		}
		return src, nil
	default:
		return template.Builtin(), nil
	}
}
