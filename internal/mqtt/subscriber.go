package mqtt

import (
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"co2-monitor/internal/models"
)

const operationTimeout = 10 * time.Second

// Subscriber turns messages on the change topic into ChangeEvents
type Subscriber struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	ChangesTopic string // e.g., "co2/changes/co2_data" or "co2/changes/+"
}

// NewSubscriber creates a new MQTT subscriber for row change notifications
func NewSubscriber(client mqtt.Client, config SubscriberConfig, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client: client,
		topic:  config.ChangesTopic,
		log:    logger.With("component", "mqtt_subscriber"),
	}
}

// SubscribeChanges subscribes to the change topic and invokes handler for
// every decodable message, in arrival order. The returned function removes
// the subscription.
func (s *Subscriber) SubscribeChanges(handler func(models.ChangeEvent)) (func() error, error) {
	token := s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleChange(msg, handler)
	})
	if err := wait(token); err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to %s", s.topic)
	}
	s.log.Info("subscribed to change topic", "topic", s.topic)

	return func() error {
		if err := wait(s.client.Unsubscribe(s.topic)); err != nil {
			return errors.Wrapf(err, "failed to unsubscribe from %s", s.topic)
		}
		s.log.Info("unsubscribed from change topic", "topic", s.topic)
		return nil
	}, nil
}

func (s *Subscriber) handleChange(msg mqtt.Message, handler func(models.ChangeEvent)) {
	event, err := DecodeChange(msg.Payload())
	if err != nil {
		s.log.Warn("dropping malformed change notification", "topic", msg.Topic(), "error", err)
		return
	}
	if event.Table == "" {
		event.Table = tableFromTopic(msg.Topic())
	}

	s.log.Debug("change notification", "type", event.Type, "table", event.Table, "id", event.Record.ID)
	handler(event)
}

// tableFromTopic extracts the table name from the MQTT topic
// Example: "co2/changes/co2_data" -> "co2_data"
func tableFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(operationTimeout) {
		return errors.New("timed out waiting for broker")
	}
	return token.Error()
}
