package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/watchstack/watchstack-anomaly/internal/api"
	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/cache"
	"github.com/watchstack/watchstack-anomaly/internal/config"
	"github.com/watchstack/watchstack-anomaly/internal/engine"
	"github.com/watchstack/watchstack-anomaly/internal/history"
	"github.com/watchstack/watchstack-anomaly/internal/metrics"
	"github.com/watchstack/watchstack-anomaly/internal/repo"
	"github.com/watchstack/watchstack-anomaly/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting watchstack-anomaly",
		slog.String("address", cfg.Server.Address),
		slog.Duration("interval", cfg.Detector.Interval),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var alertStore *cache.AlertStore
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, alert dedupe disabled", slog.Any("error", err))
		} else {
			cacheProvider = provider
			alertStore = cache.NewAlertStore(provider, cfg.Cache.AlertTTL)
			defer provider.Close()
		}
	}

	countersClient := repo.NewCountersClient(
		cfg.Provider.BaseURL,
		cfg.Provider.CountersPath,
		cfg.Provider.ResourcePath,
		cfg.Provider.Timeout,
	)

	rules, err := engine.LoadActionRules(cfg.Detector.RulesPath)
	if err != nil {
		logger.Error("failed to load action rule pack", slog.String("path", cfg.Detector.RulesPath), slog.Any("error", err))
		os.Exit(1)
	}
	classifier := engine.NewClassifier(engine.Thresholds{
		Warning:  cfg.Detector.WarningThreshold,
		Critical: cfg.Detector.CriticalThreshold,
	}, rules, logger)

	historyStore := history.NewStore(cfg.Detector.HistorySize)
	sinks := []engine.AlertSink{historyStore}
	if alertStore != nil {
		sinks = append(sinks, alertStore)
	}

	tracker := baseline.NewTracker(cfg.Detector.WindowSize)
	emitter := engine.NewEmitter(logger, cacheProvider, cfg.Detector.DedupeTTL, cfg.Detector.Source, sinks...)
	detector := engine.NewDetector(
		logger,
		countersClient,
		tracker,
		classifier,
		emitter,
		cfg.Detector.Interval,
		cfg.Detector.SampleTimeout,
	)

	var alertReader api.AlertReader
	if alertStore != nil {
		alertReader = alertStore
	}
	server, err := api.NewServer(cfg.Server, api.NewHandlers(logger, tracker, historyStore, alertReader, detector))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("operational API listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	detectorDone := make(chan struct{})
	go func() {
		detector.Run(ctx)
		close(detectorDone)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Let the in-flight detection cycle finish before tearing down.
	<-detectorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	// Give remaining goroutines time to finish logging.
	time.Sleep(100 * time.Millisecond)
	logger.Info("watchstack-anomaly stopped")
}
