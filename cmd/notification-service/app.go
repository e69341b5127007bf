package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/internal/notification"
	"orderflow/internal/runtime"
	"orderflow/pkg/bootstrap"
	"orderflow/pkg/health"
	"orderflow/pkg/metrics"
	"orderflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	redis          *redis.Client
	service        *notification.Service
	consumer       *runtime.Consumer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("notification-service")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitBroker(ctx, "notification-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if a.Config.Runtime.IdempotencyStore == "redis" {
		rdb, err := bootstrap.InitRedis(ctx, a.Config.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.redis = rdb
	}

	store, err := runtime.NewStore(a.Config.Runtime, a.redis)
	if err != nil {
		return fmt.Errorf("failed to create idempotency store: %w", err)
	}

	a.service = notification.NewService(a.Config.Notification, a.Logger)

	a.consumer = runtime.NewConsumer(a.Broker, a.service, store, runtime.Options{
		ServiceName:    "notification-service",
		QueueName:      a.Config.Queues.Prefix + a.Config.Queues.Notifications.Name,
		QueueURL:       a.Queues.Notifications,
		BatchSize:      a.Config.Runtime.BatchSize,
		WaitTime:       time.Duration(a.Config.Runtime.WaitTimeSeconds) * time.Second,
		HandlerTimeout: a.Config.Runtime.HandlerTimeout,
		StopGrace:      a.Config.Runtime.StopGrace,
	}, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, "notification-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRuntimeMetrics()
	metrics.RegisterNotificationMetrics()

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewBrokerChecker(a.Broker))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.consumer.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Infow("Shutting down notification service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis close error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
