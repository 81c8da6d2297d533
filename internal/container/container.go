package container

import (
	"context"
	"fmt"

	"forum/crawler/internal/client"
	"forum/crawler/internal/config"
	"forum/crawler/internal/domain"
	"forum/crawler/internal/parser"
	"forum/crawler/internal/proxy"
	"forum/crawler/internal/repository"
	"forum/crawler/internal/service"
	"forum/crawler/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config *config.Config
	Client client.Client
	Store  state.ResumeStore
	Sink   repository.PostSink

	Session *service.Session

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	proxySupplier, err := newProxySupplier(ctx, cfg.Crawler)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize proxy supplier: %w", err)
	}

	container.Client = client.New(client.Options{
		Timeout:           cfg.Crawler.Timeout,
		MaxRetries:        cfg.Crawler.MaxRetries,
		RetryDelay:        cfg.Crawler.RetryDelay,
		UserAgents:        cfg.Crawler.UserAgents,
		RequestsPerSecond: cfg.Crawler.MaxRequestsPerSecond,
		Referer:           cfg.Crawler.BaseURL,
	}, proxySupplier)

	pageParser, err := parser.New(cfg.Crawler.BaseURL)
	if err != nil {
		container.Close()
		return nil, err
	}

	store, err := container.newStore(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize resume store: %w", err)
	}
	container.Store = store

	sink, err := container.newSink(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize post sink: %w", err)
	}
	container.Sink = sink

	container.Session = service.NewSession(
		container.Client,
		pageParser,
		sink,
		store,
		service.Options{
			Workers:    cfg.Crawler.MaxConcurrentTasks,
			SaveImages: cfg.Crawler.SaveImages,
		},
	)

	return container, nil
}

func newProxySupplier(ctx context.Context, cfg config.CrawlerConfig) (proxy.Supplier, error) {
	if cfg.ValidateProxies {
		return proxy.NewValidatedSupplier(ctx, cfg.Proxies, cfg.BaseURL)
	}

	supplier := proxy.NewStaticSupplier(cfg.Proxies)
	if n := len(supplier.All()); n > 0 {
		log.Infof("🔗 Using %d proxies without validation", n)
	}
	return supplier, nil
}

func (c *Container) newStore(ctx context.Context) (state.ResumeStore, error) {
	switch c.Config.State.Backend {
	case config.StateBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.Database,
		})
		c.redis = rdb

		// Test connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")
		return state.NewRedisStore(rdb), nil

	case config.StateBackendSQLite:
		return state.NewSQLiteStore(c.Config.State.Dir)

	default:
		return state.NewFileStore(c.Config.State.Dir)
	}
}

func (c *Container) newSink(ctx context.Context) (repository.PostSink, error) {
	sinks := []repository.PostSink{
		repository.NewFileSink(c.Config.Crawler.OutputDir, c.Config.Crawler.ImageDir),
	}

	if c.Config.Database.Enabled {
		db, err := pgxpool.New(ctx, c.Config.Database.DSN())
		if err != nil {
			return nil, err
		}
		c.db = db

		if err := db.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		log.Info("✅ Connected to Postgres successfully")

		repo, err := repository.NewPostRepository(ctx, db)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, repo)
	}

	return repository.NewMultiSink(sinks...), nil
}

// Run crawls every configured board.
func (c *Container) Run(ctx context.Context) (*domain.CrawlReport, error) {
	return c.Session.Run(ctx, c.Config.Crawler.Boards)
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Client != nil {
		_ = c.Client.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			log.Warnf("Failed to close resume store: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}

	log.Info("Container shut down successfully")
	return nil
}
