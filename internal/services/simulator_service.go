package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"co2-monitor/internal/aggregator"
	"co2-monitor/internal/database"
	"co2-monitor/internal/metrics"
	"co2-monitor/internal/models"
)

// ChangePublisher announces row changes, e.g. the MQTT publisher
type ChangePublisher interface {
	PublishChange(ctx context.Context, event models.ChangeEvent) error
}

// SimulatorService stands in for the ingestion system during development:
// it writes simulated readings at a fixed pace and announces each one
type SimulatorService struct {
	gateway   database.Gateway
	publisher ChangePublisher
	sim       *aggregator.Simulator
	limiter   *rate.Limiter
	log       *slog.Logger

	// Configuration
	interval    time.Duration
	backfill    time.Duration
	backfillGap time.Duration
	envEvery    int

	now func() time.Time
}

// SimulatorServiceConfig holds configuration for simulator service
type SimulatorServiceConfig struct {
	Interval    time.Duration // pace of live readings
	Backfill    time.Duration // history written before going live
	BackfillGap time.Duration // spacing of backfilled readings
	EnvEvery    int           // one environment row per this many readings
	Seed        uint64
	FirstID     int64
	Simulator   aggregator.SimulatorConfig
}

// DefaultSimulatorServiceConfig returns default configuration
func DefaultSimulatorServiceConfig() SimulatorServiceConfig {
	return SimulatorServiceConfig{
		Interval:    10 * time.Second,
		Backfill:    7 * 24 * time.Hour,
		BackfillGap: 15 * time.Minute,
		EnvEvery:    6,
		Seed:        1,
		FirstID:     1,
		Simulator:   aggregator.DefaultSimulatorConfig(),
	}
}

// NewSimulatorService creates a new simulator service; publisher may be nil
func NewSimulatorService(gateway database.Gateway, publisher ChangePublisher, config SimulatorServiceConfig, logger *slog.Logger) *SimulatorService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.EnvEvery <= 0 {
		config.EnvEvery = 1
	}
	return &SimulatorService{
		gateway:     gateway,
		publisher:   publisher,
		sim:         aggregator.NewSimulator(config.Simulator, config.Seed, config.FirstID),
		limiter:     rate.NewLimiter(rate.Every(config.Interval), 1),
		log:         logger.With("component", "simulator"),
		interval:    config.Interval,
		backfill:    config.Backfill,
		backfillGap: config.BackfillGap,
		envEvery:    config.EnvEvery,
		now:         time.Now,
	}
}

// Backfill writes history from now-Backfill up to now without announcing it.
// It returns the number of readings written.
func (s *SimulatorService) Backfill(ctx context.Context) (int, error) {
	if s.backfill <= 0 || s.backfillGap <= 0 {
		return 0, nil
	}

	end := s.now()
	count := 0
	for ts := end.Add(-s.backfill); ts.Before(end); ts = ts.Add(s.backfillGap) {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := s.write(ctx, ts, count); err != nil {
			return count, err
		}
		count++
	}

	s.log.Info("backfill complete", "readings", count, "since", end.Add(-s.backfill))
	return count, nil
}

// Start writes one reading per interval until the context is cancelled
func (s *SimulatorService) Start(ctx context.Context) {
	s.log.Info("starting", "interval", s.interval)

	for n := 0; ; n++ {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Info("shutting down")
			return
		}
		if err := s.Tick(ctx, n); err != nil {
			s.log.Error("failed to write simulated reading", "error", err)
		}
	}
}

// Tick writes the n-th live reading and announces it
func (s *SimulatorService) Tick(ctx context.Context, n int) error {
	reading, err := s.write(ctx, s.now(), n)
	if err != nil {
		return err
	}
	if s.publisher == nil {
		return nil
	}

	event := models.ChangeEvent{
		Type:            models.ChangeInsert,
		Table:           database.TableCo2,
		Record:          reading,
		CommitTimestamp: s.now().UTC(),
	}
	if err := s.publisher.PublishChange(ctx, event); err != nil {
		s.log.Warn("failed to announce reading", "id", reading.ID, "error", err)
	}
	return nil
}

func (s *SimulatorService) write(ctx context.Context, ts time.Time, n int) (models.Reading, error) {
	reading := s.sim.Next(ts)
	if err := s.gateway.SaveReading(ctx, &reading); err != nil {
		return reading, err
	}
	metrics.SeededReadings.Inc()

	if n%s.envEvery == 0 {
		env := s.sim.NextEnvironment(reading.ID, ts)
		if err := s.gateway.SaveEnvironment(ctx, &env); err != nil {
			s.log.Warn("failed to save environment reading", "id", env.ID, "error", err)
		}
	}

	s.log.Debug("saved reading", "id", reading.ID, "efficiency", reading.EfficiencyPercentage)
	return reading, nil
}
