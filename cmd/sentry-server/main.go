// Package main is the entry point for the chain-sentry server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chain-sentry/internal/alerting"
	"chain-sentry/internal/config"
	"chain-sentry/internal/knowledge"
	"chain-sentry/internal/monitor"
	"chain-sentry/internal/news"
	"chain-sentry/internal/risk"
	"chain-sentry/internal/storage"
)

func main() {
	startedAt := time.Now()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"chain_enabled", cfg.Chain.Enabled,
		"news_enabled", cfg.News.Enabled,
		"storage_enabled", cfg.Storage.ClickHouse.Enabled,
		"assess_sources", len(cfg.Assess.Sources),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alert persistence
	var chClient *storage.ClickHouseClient
	var alertStore *storage.AlertStore
	var historyStore alerting.HistoryStore

	if cfg.Storage.ClickHouse.Enabled {
		slog.Info("initializing ClickHouse storage",
			"hosts", cfg.Storage.ClickHouse.Hosts,
			"database", cfg.Storage.ClickHouse.Database,
		)

		chClient, err = storage.NewClickHouseClient(storage.ClickHouseConfig{
			Hosts:        cfg.Storage.ClickHouse.Hosts,
			Database:     cfg.Storage.ClickHouse.Database,
			Username:     cfg.Storage.ClickHouse.Username,
			Password:     cfg.Storage.ClickHouse.Password,
			MaxOpenConns: cfg.Storage.ClickHouse.MaxOpenConns,
			MaxIdleConns: cfg.Storage.ClickHouse.MaxIdleConns,
			DialTimeout:  cfg.Storage.ClickHouse.DialTimeout,
		})
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}

		alertStore = storage.NewAlertStore(chClient, storage.AlertStoreConfig{
			BatchSize:     cfg.Storage.ClickHouse.BatchSize,
			FlushInterval: cfg.Storage.ClickHouse.FlushInterval,
			MaxRetries:    cfg.Storage.ClickHouse.MaxRetries,
			RetryDelay:    cfg.Storage.ClickHouse.RetryDelay,
			Retention:     cfg.Storage.ClickHouse.Retention,
		})
		if err := alertStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create alerts schema", "error", err)
			os.Exit(1)
		}
		historyStore = alertStore

		slog.Info("storage initialized successfully")
	}

	// Deduplication store for news ingestion
	var seen storage.SeenStore
	if cfg.Storage.Redis.Enabled {
		seen, err = storage.NewRedisSeenStore(storage.RedisSeenConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			TTL:      cfg.Storage.Redis.SeenTTL,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	} else {
		seen = storage.NewMemorySeenStore(cfg.Storage.Redis.SeenTTL)
	}

	// Alert hub and sinks
	dispatcher := alerting.NewReliableDispatcher(alerting.DeliveryConfig{
		MaxRetries:     cfg.Alerting.Delivery.MaxRetries,
		InitialBackoff: cfg.Alerting.Delivery.InitialBackoff,
		MaxBackoff:     cfg.Alerting.Delivery.MaxBackoff,
		BackoffFactor:  cfg.Alerting.Delivery.BackoffFactor,
		RetryTimeout:   cfg.Alerting.Delivery.RetryTimeout,
	})
	hub := alerting.NewHub(dispatcher, historyStore, logger)

	var kafkaSink *alerting.KafkaSink
	if err := registerSinks(hub, cfg.Alerting.Sinks, logger, &kafkaSink); err != nil {
		slog.Error("failed to register alert sinks", "error", err)
		os.Exit(1)
	}

	// Risk assessment engine
	kb := knowledge.NewBase()
	sources := make([]risk.Source, 0, len(cfg.Assess.Sources))
	for _, src := range cfg.Assess.Sources {
		sources = append(sources, risk.NewHTTPSource(src.Name, src.Endpoint, src.APIKey, cfg.Assess.SourceTimeout))
	}
	engine := risk.NewEngine(sources, kb, cfg.Assess.SourceTimeout, logger)

	// HTTP routes
	mux := http.NewServeMux()
	risk.NewHandler(engine, kb).RegisterRoutes(mux)
	alerting.NewHandler(hub).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// On-chain monitor
	var chainMonitor *monitor.Monitor
	if cfg.Chain.Enabled {
		source := monitor.NewEVMSource(monitor.EVMConfig{
			RPCURL:     cfg.Chain.RPCURL,
			StartBlock: cfg.Chain.StartBlock,
			BatchSize:  cfg.Chain.BatchSize,
		})
		detector := monitor.NewDetector(monitor.DetectorConfig{
			WhaleThreshold: cfg.Chain.Detector.WhaleThreshold,
			BurstThreshold: cfg.Chain.Detector.BurstThreshold,
			Window:         cfg.Chain.Detector.BurstWindow,
		})
		for _, addr := range cfg.Chain.Detector.VulnerableTargets {
			detector.FlagContract(addr)
		}

		chainMonitor = monitor.NewMonitor(source, detector, hub, cfg.Chain.PollInterval, logger)
		chainMonitor.Start(ctx)
		slog.Info("chain monitor started", "rpc_url", cfg.Chain.RPCURL, "start_block", cfg.Chain.StartBlock)
	}

	// Security news monitor
	var newsMonitor *news.Monitor
	if cfg.News.Enabled {
		feeds := make([]news.Feed, 0, len(cfg.News.Feeds))
		for _, f := range cfg.News.Feeds {
			feeds = append(feeds, news.Feed{Name: f.Name, URL: f.URL})
		}
		newsMonitor = news.NewMonitor(feeds, hub, seen, cfg.News.PollInterval, logger)
		newsMonitor.Start(ctx)
		slog.Info("news monitor started", "feeds", len(feeds))
	}

	// Start HTTP server
	go func() {
		slog.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()

	if chainMonitor != nil {
		chainMonitor.Stop()
	}
	if newsMonitor != nil {
		newsMonitor.Stop()
	}

	// Drain in-flight alert deliveries before closing stores
	hub.Close()

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			slog.Error("kafka sink close error", "error", err)
		}
	}

	if alertStore != nil {
		if err := alertStore.Close(); err != nil {
			slog.Error("alert store close error", "error", err)
		}
		m := alertStore.Metrics()
		slog.Info("storage metrics",
			"alerts_written", m.Written,
			"alerts_failed", m.Failed,
			"batches", m.Batches,
		)
	}
	if chClient != nil {
		if err := chClient.Close(); err != nil {
			slog.Error("clickhouse close error", "error", err)
		}
	}
	if err := seen.Close(); err != nil {
		slog.Error("seen store close error", "error", err)
	}

	slog.Info("shutdown complete")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// registerSinks wires the configured sinks into the hub. A sink with no
// category list receives every category.
func registerSinks(hub *alerting.Hub, cfg config.SinksConfig, logger *slog.Logger, kafkaSink **alerting.KafkaSink) error {
	register := func(sink alerting.Sink, categories []string) error {
		if len(categories) == 0 {
			for _, cat := range alerting.Categories() {
				if err := hub.RegisterSink(cat, sink); err != nil {
					return err
				}
			}
			return nil
		}
		for _, cat := range categories {
			if err := hub.RegisterSink(alerting.Category(cat), sink); err != nil {
				return err
			}
		}
		return nil
	}

	if cfg.Console.Enabled {
		if err := register(alerting.NewConsoleSink(logger), cfg.Console.Categories); err != nil {
			return err
		}
	}
	if cfg.Webhook.Enabled {
		if err := register(alerting.NewWebhookSink("webhook", cfg.Webhook.URL, nil), cfg.Webhook.Categories); err != nil {
			return err
		}
	}
	if cfg.Telegram.Enabled {
		if err := register(alerting.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID), cfg.Telegram.Categories); err != nil {
			return err
		}
	}
	if cfg.Kafka.Enabled {
		sink := alerting.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err := register(sink, cfg.Kafka.Categories); err != nil {
			return err
		}
		*kafkaSink = sink
	}

	return nil
}
