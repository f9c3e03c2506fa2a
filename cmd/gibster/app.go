package main

import (
	"context"
	"fmt"
	"time"

	"gibster/internal/api"
	"gibster/internal/config"
	"gibster/internal/database"
	"gibster/internal/domain"
	"gibster/internal/events"
	"gibster/internal/history"
	"gibster/internal/logging"
	"gibster/internal/notify"
	"gibster/internal/orchestrator"
	"gibster/internal/repository"
	"gibster/internal/session"
	"gibster/internal/worker"

	"github.com/rs/zerolog"
)

// app holds every component a command may need.
type app struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	bus     *events.EventBus
	db      *database.DB
	store   *session.Store
	client  *api.Client
	history *history.Reconciler
	orch    *orchestrator.Orchestrator
	secure  bool

	closers []func() error
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.baseURL != "" {
		cfg.API.BaseURL = opts.baseURL
	}
	if opts.backend != "" {
		cfg.Session.Backend = opts.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewEventBus(),
		secure: cfg.App.IsProduction(),
	}
	if closer != nil {
		a.closers = append(a.closers, closer.Close)
	}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	kv, err := a.openKeyValueStore(ctx)
	if err != nil {
		return err
	}

	origin, err := session.Origin(a.cfg.API.BaseURL)
	if err != nil {
		return err
	}
	jar, err := session.NewCookieJar()
	if err != nil {
		return err
	}
	cookies, err := session.NewCookieStore(jar, origin, a.cfg.Session.CookieName)
	if err != nil {
		return err
	}

	a.store = session.NewStore(kv, cookies, origin, a.cfg.Session.TokenKey, logging.Component(a.logger, "session"))
	if err := a.store.Restore(ctx, a.secure); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to restore session cookie")
	}

	a.client = api.NewClient(a.cfg.API, jar, a.store, api.NewEventNavigator(a.bus, a.logger), logging.Component(a.logger, "api"))

	retry := worker.RetryPolicy{MaxRetries: 30, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	a.history = history.NewReconciler(a.client, retry, logging.Component(a.logger, "history"))
	a.orch = orchestrator.New(a.client, a.history, a.bus, a.cfg.Sync, logging.Component(a.logger, "orchestrator"))

	a.subscribeNotifiers()
	return nil
}

func (a *app) subscribeNotifiers() {
	if a.db != nil {
		notify.NewRunRecorder(a.db, logging.Component(a.logger, "notify")).Subscribe(a.bus)
	}

	tg := a.cfg.Notify.Telegram
	if !tg.Enabled() {
		return
	}
	bot, err := notify.NewBotAPI(tg)
	if err != nil {
		a.logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	notify.NewTelegramNotifier(bot, tg.ChatID, logging.Component(a.logger, "notify")).Subscribe(a.bus)
	a.logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
}

func (a *app) openKeyValueStore(ctx context.Context) (domain.KeyValueStore, error) {
	cfg := a.cfg
	switch cfg.Session.Backend {
	case config.BackendMemory:
		return repository.NewMemoryKeyValueStore(0), nil

	case config.BackendSQLite:
		db, err := database.NewDB(cfg.Session.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		return db, nil

	case config.BackendRedis:
		client := repository.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, func() error { return repository.Close(client) })
		if err := repository.Ping(ctx, client); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		a.logger.Debug().Str("addr", cfg.Redis.Address).Msg("redis connected")
		return repository.NewRedisKeyValueStore(client, cfg.Session.RedisTTL), nil

	case config.BackendFailover:
		client := repository.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, func() error { return repository.Close(client) })
		if err := repository.Ping(ctx, client); err != nil {
			a.logger.Warn().Err(err).Msg("redis connection failed, starting on in-memory fallback")
		}
		return repository.NewFailoverKeyValueStore(
			repository.NewRedisKeyValueStore(client, cfg.Session.RedisTTL),
			repository.NewMemoryKeyValueStore(cfg.Session.RedisTTL),
			a.logger,
		), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
