package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/cache"
	"github.com/five82/shelf/internal/config"
	"github.com/five82/shelf/internal/library"
	"github.com/five82/shelf/internal/prefs"
	"github.com/five82/shelf/internal/session"
	"github.com/five82/shelf/internal/state"
	"github.com/five82/shelf/internal/ui"
)

// Options configure the shelf console.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/shelf/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
}

// Run boots the console until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		logger.Warn("preferences unreadable, using defaults", "error", err)
	}

	c, err := wire(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	logger.Info("shelf starting",
		"api", cfg.APIURL,
		"mode", string(cfg.Mode),
		"cache", cfg.Cache.Backend,
		"session", cfg.Session.Backend)

	restored := c.service.Restore(ctx)

	poller := &Poller{
		Store:    c.store,
		Service:  c.service,
		Interval: cfg.PollInterval,
		PageSize: userPrefs.PageSize,
		Logger:   logger,
	}
	poller.Start(ctx)
	go watchEvents(ctx, c.service, poller, cfg.PollInterval, logger)

	return ui.Run(ui.Options{
		Context:   ctx,
		Service:   c.service,
		Store:     c.store,
		Config:    &cfg,
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		Errors:    c.errs,
		AuthLost:  c.authLost,
		Restored:  restored,
		Refresh:   poller.Kick,
	})
}

// components is everything the console needs, built from a Config.
type components struct {
	client   *api.Client
	service  *library.Service
	store    *state.Store
	errs     chan *api.Error
	authLost chan error
	closers  []func() error
}

func wire(cfg config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		store:    &state.Store{},
		errs:     make(chan *api.Error, 16),
		authLost: make(chan error, 1),
	}

	respCache, err := c.newCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	storage, err := c.newSessionStorage(cfg.Session)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	sess := session.NewStore(storage, logger)

	client, err := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.Timeout),
		api.WithTokenSource(sess),
		api.WithLogger(logger),
		api.WithObserver(func(e *api.Error) {
			select {
			case c.errs <- e:
			default:
			}
		}),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}
	c.client = client

	c.service = library.NewService(client, sess, respCache,
		library.WithLogger(logger),
		library.WithAuthFailed(func(err error) {
			c.store.SetLoans(nil)
			select {
			case c.authLost <- err:
			default:
			}
		}),
	)
	return c, nil
}

func (c *components) newCache(cc config.CacheConfig, logger *slog.Logger) (cache.Cache, error) {
	switch cc.Backend {
	case config.BackendMemory, "":
		return cache.NewMemory(), nil
	case config.BackendNone:
		return cache.Nop{}, nil
	case config.BackendRedis:
		rc := c.redisClient(cc.RedisConfig)
		return cache.NewRedis(rc, cc.Prefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
}

func (c *components) newSessionStorage(sc config.SessionConfig) (session.Storage, error) {
	switch sc.Backend {
	case config.BackendFile, "":
		fs, err := session.NewFileStorage(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open session file: %w", err)
		}
		return fs, nil
	case config.BackendMemory:
		return session.NewMemoryStorage(), nil
	case config.BackendRedis:
		return session.NewRedisStorage(c.redisClient(sc.RedisConfig), sc.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", sc.Backend)
	}
}

func (c *components) redisClient(rc config.RedisConfig) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	c.closers = append(c.closers, client.Close)
	return client
}

// Close releases backend connections.
func (c *components) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// newLogger returns the client's debug logger. The terminal belongs to the
// UI, so records go to the log file as JSON. Production without debug logs
// nothing.
func newLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	nop := func() error { return nil }
	if cfg.Mode == config.Production && !cfg.Debug {
		return slog.New(slog.DiscardHandler), nop, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nop, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nop, fmt.Errorf("open log file: %w", err)
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f.Close, nil
}
