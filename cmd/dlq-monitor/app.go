package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/dlqmonitor"
	"orderflow/internal/logger"
	"orderflow/pkg/bootstrap"
	"orderflow/pkg/health"
	"orderflow/pkg/metrics"
	"orderflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	monitor        *dlqmonitor.Monitor
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("dlq-monitor")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitBroker(ctx, "dlq-monitor"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	waitTime := time.Duration(a.Config.Monitor.WaitTimeSeconds) * time.Second
	a.monitor = dlqmonitor.NewMonitor(a.Broker, a.Queues.DLQs(a.Config.Queues), waitTime, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, "dlq-monitor")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRuntimeMetrics()
	metrics.RegisterMonitorMetrics()

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	if a.Config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Replay targets are the main queues, addressed by their base names.
	targets := map[string]string{
		a.Config.Queues.Orders.Name:        a.Queues.Orders,
		a.Config.Queues.Payments.Name:      a.Queues.Payments,
		a.Config.Queues.Inventory.Name:     a.Queues.Inventory,
		a.Config.Queues.Notifications.Name: a.Queues.Notifications,
	}
	api := dlqmonitor.NewAPI(a.monitor, targets, a.Logger)
	api.Register(router, a.Config.Monitor.AdminRateLimit)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewBrokerChecker(a.Broker))
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
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
		return a.monitor.Run(gCtx)
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
	a.Logger.Infow("Shutting down DLQ monitor")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
