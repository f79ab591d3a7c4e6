package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storelens/avatax-bridge/internal/app"
	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/config"
	"github.com/storelens/avatax-bridge/internal/lock"
	"github.com/storelens/avatax-bridge/internal/obs"
	"github.com/storelens/avatax-bridge/internal/order"
	"github.com/storelens/avatax-bridge/internal/resilience"
	"github.com/storelens/avatax-bridge/internal/tax"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build dependencies")
	}
	defer deps.Close()

	resilience.MustRegisterMetrics("avatax_bridge", deps.Registry)
	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("avatax").
		WithLogger(logger)
	avataxClient := &avatax.Client{
		Account:    cfg.AvataxAccount,
		LicenseKey: cfg.AvataxLicenseKey,
		BaseURL:    cfg.AvataxEndpoint,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.OutboundTimeout,
			Target:      "avatax",
			Logger:      &logger,
		},
	}

	taxSvc := &tax.Service{
		Orders:      &order.Repo{DB: deps.DB},
		Client:      avataxClient,
		Store:       &tax.Store{DB: deps.DB},
		CompanyCode: cfg.AvataxCompanyCode,
		Origin: avatax.Address{
			AddressCode: "Orig",
			Line1:       cfg.Origin.Line1,
			City:        cfg.Origin.City,
			Region:      cfg.Origin.Region,
			Country:     cfg.Origin.Country,
			PostalCode:  cfg.Origin.PostalCode,
		},
		TaxCalculation: cfg.TaxCalculation,
		DocumentCommit: cfg.DocumentCommit,
		Logger:         logger,
	}

	asynqOpt, err := app.AsynqRedisOpt(*cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis options")
	}
	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"tax": 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(tax.TaskCommitFinal, &tax.CommitWorker{
		Svc:    taxSvc,
		Logger: logger,
		Locks:  &lock.Locker{R: deps.Redis},
	})

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
