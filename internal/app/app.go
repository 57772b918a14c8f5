package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/config"
	"github.com/teamforge/collab-roles/internal/events"
	"github.com/teamforge/collab-roles/internal/httpserver"
	"github.com/teamforge/collab-roles/internal/metrics"
	"github.com/teamforge/collab-roles/internal/migrations"
	"github.com/teamforge/collab-roles/internal/repository"
	"github.com/teamforge/collab-roles/internal/service"
	"github.com/teamforge/collab-roles/internal/storage/postgres"
	"github.com/teamforge/collab-roles/internal/storage/redis"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	httpServer *httpserver.Server
	db         *pgxpool.Pool
	rdb        *goredis.Client
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(ctx, cfg.DatabaseURL, logger); err != nil {
		db.Close()
		return nil, err
	}

	sink, rdb, err := newEventSink(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		db.Close()
		closeRedis(rdb, logger)
		return nil, err
	}

	svc := service.New(service.Deps{
		Store:        repository.New(db),
		Events:       sink,
		Logger:       logger.Named("applications"),
		Metrics:      m,
		EventTimeout: cfg.EventPublishTimeout,
	}, cfg.Policy)

	logger.Info("application lifecycle configured",
		zap.String("reapply_policy", string(cfg.Policy.Reapply)),
		zap.String("competing_policy", string(cfg.Policy.Competing)),
	)

	server := httpserver.New(cfg.HTTPPort, logger, svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &App{
		cfg:        cfg,
		logger:     logger,
		httpServer: server,
		db:         db,
		rdb:        rdb,
	}, nil
}

// newEventSink publishes to Redis when REDIS_URL is set and to the log otherwise.
func newEventSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (service.EventSink, *goredis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, lifecycle events go to the log")
		return events.NewLogPublisher(logger), nil, nil
	}

	rdb, err := redis.Open(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := events.NewRedisPublisher(rdb, cfg.EventsChannel)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return publisher, rdb, nil
}

func closeRedis(rdb *goredis.Client, logger *zap.Logger) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		logger.Warn("close redis", zap.Error(err))
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()
	defer closeRedis(a.rdb, a.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			return errors.Join(err, <-errCh)
		}

		return <-errCh
	case err := <-errCh:
		return err
	}
}
