package mqtt

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/guregu/null"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-monitor/internal/models"
)

// startBroker spins up an in-process MQTT broker and returns its URL
func startBroker(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "test",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })

	return "tcp://" + addr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	url := startBroker(t)
	logger := quietLogger()

	subClient, err := NewClient(ClientConfig{Broker: url, ClientID: "sub"}, logger)
	require.NoError(t, err)
	defer subClient.Close()

	pubClient, err := NewClient(ClientConfig{Broker: url, ClientID: "pub"}, logger)
	require.NoError(t, err)
	defer pubClient.Close()
	assert.True(t, pubClient.IsConnected())

	const topic = "co2/changes/co2_data"
	sub := NewSubscriber(subClient.GetNativeClient(), SubscriberConfig{ChangesTopic: topic}, logger)

	received := make(chan models.ChangeEvent, 4)
	unsubscribe, err := sub.SubscribeChanges(func(e models.ChangeEvent) { received <- e })
	require.NoError(t, err)

	pub := NewPublisher(pubClient.GetNativeClient(), PublisherConfig{ChangesTopic: topic}, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := models.ChangeEvent{
		Type:   models.ChangeInsert,
		Record: models.Reading{ID: 1, Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EfficiencyPercentage: null.FloatFrom(50)},
	}
	second := first
	second.Type = models.ChangeUpdate
	second.Record.EfficiencyPercentage = null.FloatFrom(70)

	require.NoError(t, pub.PublishChange(ctx, first))
	require.NoError(t, pub.PublishChange(ctx, second))

	for _, want := range []models.ChangeEvent{first, second} {
		select {
		case got := <-received:
			assert.Equal(t, want.Type, got.Type)
			assert.Equal(t, "co2_data", got.Table)
			assert.Equal(t, want.Record.ID, got.Record.ID)
			assert.Equal(t, want.Record.EfficiencyPercentage, got.Record.EfficiencyPercentage)
		case <-time.After(5 * time.Second):
			t.Fatal("change notification was not delivered")
		}
	}

	require.NoError(t, unsubscribe())
	require.NoError(t, pub.PublishChange(ctx, first))

	select {
	case e := <-received:
		t.Fatalf("received %v after unsubscribe", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewClientUnreachableBroker(t *testing.T) {
	_, err := NewClient(ClientConfig{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "nobody",
		ConnectTimeout: time.Second,
	}, quietLogger())
	assert.Error(t, err)
}
