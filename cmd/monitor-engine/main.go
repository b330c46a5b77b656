package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsestack/pulse-monitor/internal/aggregate"
	"github.com/pulsestack/pulse-monitor/internal/alert"
	"github.com/pulsestack/pulse-monitor/internal/api"
	"github.com/pulsestack/pulse-monitor/internal/cache"
	"github.com/pulsestack/pulse-monitor/internal/config"
	"github.com/pulsestack/pulse-monitor/internal/metrics"
	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/monitor"
	"github.com/pulsestack/pulse-monitor/internal/normalize"
	"github.com/pulsestack/pulse-monitor/internal/repo"
	"github.com/pulsestack/pulse-monitor/internal/scoring"
	"github.com/pulsestack/pulse-monitor/internal/state"
	"github.com/pulsestack/pulse-monitor/internal/stats"
	"github.com/pulsestack/pulse-monitor/internal/utils"
)

func main() {
	var configPath string
	var once bool
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single check and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pulse-monitor",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Store.BaseURL),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// The model bundle is the one unrecoverable dependency: without it the
	// monitor enters the absorbing failed state, so refuse to start.
	bundle, err := scoring.Load(cfg.Model.Dir)
	if err != nil {
		logger.Error("failed to load scoring model",
			slog.String("state", string(models.StateFailed)),
			slog.String("dir", cfg.Model.Dir),
			slog.Any("error", err),
		)
		logger.Error("run the training job to produce the model bundle, then restart")
		os.Exit(1)
	}
	logger.Info("model loaded",
		slog.Int("training_records", bundle.Metadata.TrainingRecords),
		slog.Int("features", len(bundle.Features)),
	)

	stateStore, err := state.Open(cfg.State.Path)
	if err != nil {
		logger.Error("failed to open state db", slog.String("path", cfg.State.Path), slog.Any("error", err))
		os.Exit(1)
	}
	defer stateStore.Close()

	var dedupe cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey dedupe unavailable, relying on sink-side idempotency", slog.Any("error", err))
		} else {
			dedupe = provider
			defer provider.Close()
		}
	}

	storeClient := repo.NewLogStoreClient(
		cfg.Store.BaseURL,
		cfg.Store.Indices,
		cfg.Store.AlertsIndex,
		cfg.Store.PageSize,
		cfg.Store.Timeout,
	)

	tracker := stats.NewTracker(cfg.Monitor.HistoryLimit)
	dispatcher := alert.NewDispatcher(storeClient, dedupe, cfg.Alerting.HighSeverityBelow, cfg.Alerting.DedupeTTL, logger)

	watermark, err := stateStore.Watermark()
	if err != nil {
		logger.Warn("stored watermark unreadable, falling back to lookback", slog.Any("error", err))
		watermark = time.Time{}
	}
	if watermark.IsZero() {
		watermark = time.Now().Add(-cfg.Monitor.InitialLookback)
	}

	controller, err := monitor.New(monitor.Options{
		Logger:     logger,
		Fetcher:    storeClient,
		Normalizer: normalize.New(logger),
		Aggregator: aggregate.New(cfg.Monitor.WindowSize),
		Engine:     scoring.NewEngine(bundle, logger),
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Store:      stateStore,
		Interval:   cfg.Monitor.CheckInterval,
		Watermark:  watermark,
	})
	if err != nil {
		logger.Error("failed to build monitor", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		if _, err := controller.RunCheck(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	server, err := api.NewServer(cfg.Server, api.NewHandlers(controller, tracker, logger))
	if err != nil {
		logger.Error("failed to create control server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("control server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("control server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		_ = controller.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("pulse-monitor stopped")
}
