package mqtt

import (
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use Subscriber and Publisher respectively
type Client struct {
	client mqtt.Client
	config ClientConfig
	log    *slog.Logger
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// ConnectTimeout bounds the initial connection attempt (default 10s)
	ConnectTimeout time.Duration
}

// NewClient creates a new MQTT client connection. The client ID gets a
// random suffix so several replicas can share one configuration.
func NewClient(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	log := logger.With("component", "mqtt")
	clientID := config.ClientID + "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		log.Debug("unhandled message", "topic", msg.Topic())
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connection established", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", "error", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(true)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		client.Disconnect(0)
		return nil, errors.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to MQTT broker")
	}

	log.Info("connected to broker", "broker", config.Broker, "client_id", clientID)

	return &Client{
		client: client,
		config: config,
		log:    log,
	}, nil
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.log.Info("disconnected")
}
