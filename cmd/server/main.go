package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"co2-monitor/internal/api"
	"co2-monitor/internal/cache"
	"co2-monitor/internal/database"
	"co2-monitor/internal/lastupdate"
	"co2-monitor/internal/live"
	"co2-monitor/internal/mqtt"
	"co2-monitor/internal/services"
	"co2-monitor/pkg/config"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(),
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	logger.Info("starting CO2 monitor dashboard backend")

	// Load configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === Data gateway ===
	gateway, err := database.Open(ctx, database.OpenOptions{
		Backend: cfg.StorageBackend,
		ClickHouse: database.ClickHouseOptions{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		},
		SQLitePath: cfg.SQLitePath,
	}, logger)
	if err != nil {
		logger.Error("failed to open data gateway", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer gateway.Close()

	// === Change transport ===
	logger.Info("connecting to MQTT broker", "broker", cfg.MQTTBroker)
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize MQTT client", "error", err)
		os.Exit(1)
	}
	defer mqttClient.Close()

	subscriber := mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
		ChangesTopic: cfg.MQTTTopicChanges,
	}, logger)

	bus := live.NewBus(subscriber, logger)
	if err := bus.Start(); err != nil {
		logger.Error("failed to follow row changes", "topic", cfg.MQTTTopicChanges, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// === Shared cache tier (optional) ===
	var shared func(name string) cache.Backend
	if cfg.RedisAddr != "" {
		redisBackend, err := cache.NewRedisBackend(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "co2",
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			logger.Warn("redis unavailable, caching in process only", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisBackend.Close()
			shared = func(name string) cache.Backend { return redisBackend.Namespace(name) }
			logger.Info("connected to Redis", "addr", cfg.RedisAddr)
		}
	}

	// === Dashboard service ===
	broadcaster := lastupdate.New()
	dashboard := services.NewDashboardService(gateway, bus, broadcaster, services.DashboardServiceConfig{
		ReportingLocation: cfg.ReportingLocation(),
		DisplayLocation:   cfg.DisplayLocation(),
		CacheTTL:          cfg.CacheTTL,
		SharedCache:       shared,
	}, logger)
	dashboard.Start()
	defer dashboard.Stop()

	if latest := dashboard.Latest(ctx); latest != nil {
		logger.Info("latest reading", "id", latest.ID, "timestamp", latest.Timestamp)
	}

	// === HTTP server ===
	handler := api.NewHandler(dashboard, bus, broadcaster, logger)
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr,
			"reporting_tz", cfg.ReportingTimezone, "display_tz", cfg.DisplayTimezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	// === Wait for interrupt signal ===
	<-ctx.Done()

	// === Graceful shutdown ===
	logger.Info("shutdown signal received, stopping services")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}
