// Package container builds the application's dependency graph from config.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/freekieb7/go-polls/internal/api"
	"github.com/freekieb7/go-polls/internal/cache"
	"github.com/freekieb7/go-polls/internal/config"
	"github.com/freekieb7/go-polls/internal/database"
	"github.com/freekieb7/go-polls/internal/health"
	"github.com/freekieb7/go-polls/internal/inflight"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/handler"
	"github.com/freekieb7/go-polls/internal/web/middleware"
	"github.com/freekieb7/go-polls/internal/web/view"
	"github.com/freekieb7/go-polls/web"
)

type Container struct {
	Config       *config.Config
	Logger       *slog.Logger
	Cache        *cache.Manager
	Database     *database.Database
	SessionStore session.Store
	API          *api.Client
	RateLimiter  *middleware.InMemoryRateLimiter
	HttpServer   *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	manager, err := cache.NewManager(&cache.ManagerConfig{
		RedisConfig:     redisConfig(cfg.Cache),
		InMemoryMaxSize: cfg.Cache.InMemoryMaxSize,
		CleanupInterval: time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.Cache = manager

	store, err := c.sessionStore(ctx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	c.SessionStore = store

	views, err := view.New(web.TemplateFS(), logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("templates: %w", err)
	}

	c.API = api.NewClient(cfg.API, logger)
	authenticator := session.NewAuthenticator(c.API, session.NewMirror(manager, cfg.Session.TTL), logger)
	ui := handler.NewUIHandler(cfg, logger, store, authenticator,
		cache.NewQuery(manager, logger), inflight.NewGuard(), c.API, views)

	checker := health.NewChecker(c.Database, manager, c.API, logger)
	checker.Environment = string(cfg.Server.Environment)

	c.RateLimiter = middleware.NewInMemoryRateLimiter(time.Minute)

	c.HttpServer = &http.Server{
		Addr:           ":" + strconv.Itoa(cfg.Server.Port),
		Handler:        handler.NewRouter(ui, handler.NewHealthHandler(checker), c.RateLimiter),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return c, nil
}

// sessionStore picks the browser session backend. The redis backend caches
// over SQL when a database is configured and over memory otherwise.
func (c *Container) sessionStore(ctx context.Context) (session.Store, error) {
	cfg := c.Config
	switch cfg.Session.Backend {
	case config.SessionBackendSQL:
		return c.sqlStore(ctx)
	case config.SessionBackendRedis:
		if !c.Cache.Redis().Enabled() {
			return nil, errors.New("redis session backend requires CACHE_REDIS_ENABLED")
		}
		var base session.Store = session.NewMemoryStore(cfg.Session.TTL)
		if cfg.Database.URL != "" {
			sqlStore, err := c.sqlStore(ctx)
			if err != nil {
				return nil, err
			}
			base = sqlStore
		}
		return session.NewCachedStore(c.Cache.Redis(), base, c.Logger, cfg.Session.TTL), nil
	default:
		return session.NewMemoryStore(cfg.Session.TTL), nil
	}
}

func (c *Container) sqlStore(ctx context.Context) (*session.SQLStore, error) {
	db := database.NewDatabase()
	if err := db.Connect(ctx, c.Config.Database); err != nil {
		return nil, err
	}
	c.Database = &db

	if err := database.NewMigrator(db.DB).Up(ctx, database.Migrations()); err != nil {
		return nil, errors.Join(errors.New("migration up failed"), err)
	}
	return session.NewSQLStore(db.DB, c.Config.Session.TTL), nil
}

// PurgeSessions deletes expired sessions every interval until ctx ends.
func (c *Container) PurgeSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := c.SessionStore.DeleteExpired(ctx)
			if err != nil {
				c.Logger.WarnContext(ctx, "Failed to purge expired sessions", "error", err)
				continue
			}
			if deleted > 0 {
				c.Logger.InfoContext(ctx, "Purged expired sessions", "count", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Container) Close() error {
	var errs []error
	if c.RateLimiter != nil {
		errs = append(errs, c.RateLimiter.Close())
	}
	if c.Database != nil {
		errs = append(errs, c.Database.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	return errors.Join(errs...)
}

func redisConfig(cfg config.Cache) *cache.Config {
	redis := cache.DefaultConfig()
	redis.Enabled = cfg.Enabled
	if cfg.RedisAddr != "" {
		redis.Addr = cfg.RedisAddr
	}
	redis.Password = cfg.RedisPassword
	redis.DB = cfg.RedisDB
	if cfg.RedisPoolSize > 0 {
		redis.PoolSize = cfg.RedisPoolSize
	}
	return redis
}
