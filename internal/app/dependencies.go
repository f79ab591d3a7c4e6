package app

import (
	"context"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/storelens/avatax-bridge/internal/config"
	"github.com/storelens/avatax-bridge/internal/obs"
)

// Dependencies holds the shared infrastructure handles built once at startup.
type Dependencies struct {
	Config    config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Validator *validator.Validate
	Registry  *prometheus.Registry
}

// Build opens the database pool and Redis client described by cfg. Callers
// own the returned handles and must Close them on shutdown.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Dependencies, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "avatax-bridge"
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("redis tracing instrumentation failed")
	}

	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("avatax_bridge", registry)

	return &Dependencies{
		Config:    cfg,
		Logger:    logger,
		DB:        pool,
		Redis:     rdb,
		Validator: validator.New(),
		Registry:  registry,
	}, nil
}

// Close releases the database and Redis handles.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// AsynqRedisOpt converts the Redis URL into asynq connection options.
func AsynqRedisOpt(cfg config.Config) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

// RunMigrations applies pending schema migrations from sourceURL.
func RunMigrations(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
