package main

import (
	"context"
	"database/sql"
	"strings"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/config"
	"github.com/agentuity/querycache/logger"
	cstr "github.com/agentuity/querycache/string"
	"github.com/agentuity/querycache/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const defaultSQLiteFile = "querycache.db"

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   logger.Logger
	db       *sql.DB
	redis    *redis.Client
	builder  *cache.Builder
	registry *prometheus.Registry
	metrics  *cache.Metrics
	shutdown telemetry.ShutdownFunc
}

func newApp(ctx context.Context, log logger.Logger) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = cache.NewMetrics(a.registry)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		a.redis = redis.NewClient(opts)
		a.logger.Debug("connecting to redis at %s", cstr.MaskDSN(cfg.RedisURL))
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "connect to redis")
		}
	}

	dsn := cfg.DatabaseURL
	if cfg.DatabaseDriver == cache.DialectSQLite && strings.TrimSpace(dsn) == "" {
		dsn = defaultSQLiteFile
	}
	a.logger.Debug("opening %s database %s", cfg.DatabaseDriver, cstr.MaskDSN(dsn))
	a.db, err = cache.OpenDB(cfg.DatabaseDriver, dsn)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []cache.Option{
		cache.WithLogger(log),
		cache.WithMetrics(a.metrics),
		cache.WithQueryTimeout(cfg.QueryTimeout),
		cache.WithSweepInterval(cfg.GCInterval),
		cache.WithPrefix(cfg.KeyPrefix),
	}
	if bc, ok := cfg.Breaker(); ok {
		opts = append(opts, cache.WithCircuitBreaker(bc))
	}
	if cfg.OTLPURL != "" {
		token, err := cfg.OTLPAuthToken()
		if err != nil {
			a.Close()
			return nil, err
		}
		tp, shutdown, err := telemetry.New(ctx, log, cfg.OTLPURL, token, "querycache")
		if err != nil {
			a.Close()
			return nil, err
		}
		a.shutdown = shutdown
		opts = append(opts, cache.WithTracerProvider(tp))
	}

	backends := cache.Backends{
		DB:           a.db,
		Dialect:      cfg.DatabaseDriver,
		AppendTable:  cfg.AppendTable,
		UpsertTable:  cfg.UpsertTable,
		EnsureSchema: true,
	}
	if a.redis != nil {
		backends.Redis = a.redis
	}
	a.builder, err = cache.NewBuilderFor(ctx, backends, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Debug("cache providers: %v", a.builder.Kinds())
	return a, nil
}

func (a *app) Close() error {
	var err error
	if a.builder != nil {
		err = errors.CombineErrors(err, a.builder.Close())
	}
	if a.db != nil {
		err = errors.CombineErrors(err, a.db.Close())
	}
	if a.redis != nil {
		err = errors.CombineErrors(err, a.redis.Close())
	}
	if a.shutdown != nil {
		a.shutdown()
	}
	return err
}
