package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"co2-monitor/internal/models"
)

// Publisher emits row change notifications, standing in for the
// ingestion system in development
type Publisher struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	ChangesTopic string // e.g., "co2/changes/co2_data"
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(client mqtt.Client, config PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		topic:  config.ChangesTopic,
		log:    logger.With("component", "mqtt_publisher"),
	}
}

// PublishChange publishes event and waits for the broker to accept it
func (p *Publisher) PublishChange(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal change event")
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "failed to publish change event")
	}

	p.log.Debug("published change", "type", event.Type, "id", event.Record.ID, "topic", p.topic)
	return nil
}
