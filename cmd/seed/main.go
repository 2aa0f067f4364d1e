package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"co2-monitor/internal/database"
	"co2-monitor/internal/mqtt"
	"co2-monitor/internal/services"
	"co2-monitor/pkg/config"
)

func main() {
	backfill := flag.Duration("backfill", 7*24*time.Hour, "history to write before going live; skipped when the table has rows")
	gap := flag.Duration("gap", 15*time.Minute, "spacing of backfilled readings")
	once := flag.Bool("once", false, "exit after the backfill")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.Kitchen}))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	simConfig := services.DefaultSimulatorServiceConfig()
	simConfig.Interval = cfg.SeedInterval
	simConfig.Backfill = *backfill
	simConfig.BackfillGap = *gap
	simConfig.Seed = *seed

	latest, err := gateway.LatestReading(ctx)
	if err != nil {
		logger.Error("failed to read latest reading", "error", err)
		os.Exit(1)
	}
	if latest != nil {
		simConfig.FirstID = latest.ID + 1
		simConfig.Backfill = 0
		logger.Info("continuing after existing data", "last_id", latest.ID, "last_timestamp", latest.Timestamp)
	}

	// Announce live readings when the broker is reachable
	var publisher services.ChangePublisher
	if !*once {
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID + "-seed",
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, readings will not be announced", "broker", cfg.MQTTBroker, "error", err)
		} else {
			defer client.Close()
			publisher = mqtt.NewPublisher(client.GetNativeClient(), mqtt.PublisherConfig{
				ChangesTopic: cfg.MQTTTopicChanges,
			}, logger)
		}
	}

	sim := services.NewSimulatorService(gateway, publisher, simConfig, logger)

	n, err := sim.Backfill(ctx)
	if err != nil {
		logger.Error("backfill failed", "written", n, "error", err)
		os.Exit(1)
	}
	if *once {
		return
	}

	sim.Start(ctx)
	logger.Info("seed stopped")
}
