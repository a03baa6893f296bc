package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-server/internal/config"
	"telemetry-server/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// startBroker runs an in-process broker that accepts every client.
func startBroker(t *testing.T) int {
	t.Helper()
	port := freePort(t)

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })
	return port
}

func testConfig(port int) config.Config {
	return config.Config{
		MQTTBroker:      "127.0.0.1",
		MQTTPort:        port,
		MQTTClientID:    "publisher-test",
		MQTTTopicPrefix: "sensors",
	}
}

func subscribe(t *testing.T, port int, filter string) <-chan paho.Message {
	t.Helper()
	msgs := make(chan paho.Message, 4)

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port)).
		SetClientID("subscriber-test")
	c := paho.NewClient(opts)
	token := c.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "subscriber connect timeout")
	require.NoError(t, token.Error())
	t.Cleanup(func() { c.Disconnect(100) })

	token = c.Subscribe(filter, 1, func(_ paho.Client, m paho.Message) { msgs <- m })
	require.True(t, token.WaitTimeout(5*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())
	return msgs
}

func TestPublisher_Topic(t *testing.T) {
	p := NewPublisher(testConfig(1883), discardLogger())
	assert.Equal(t, "sensors/s-01/readings", p.Topic("s-01"))
	assert.Equal(t, "mqtt", p.Name())
}

func TestPublisher_PublishBeforeConnect(t *testing.T) {
	p := NewPublisher(testConfig(1883), discardLogger())

	err := p.Publish(context.Background(), events.ReadingRecorded{SensorID: "s1"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublisher_PublishesEventJSON(t *testing.T) {
	port := startBroker(t)
	msgs := subscribe(t, port, "sensors/#")

	p := NewPublisher(testConfig(port), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Connect(ctx))
	t.Cleanup(p.Disconnect)
	require.Eventually(t, p.IsConnected, 5*time.Second, 20*time.Millisecond)

	typ := "temp"
	ev := events.ReadingRecorded{
		ID:         12,
		SensorID:   "s1",
		Type:       &typ,
		Value:      21.5,
		Timestamp:  "2024-01-01T00:00:00Z",
		RecordedAt: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	require.NoError(t, p.Publish(ctx, ev))

	select {
	case m := <-msgs:
		assert.Equal(t, "sensors/s1/readings", m.Topic())
		var got events.ReadingRecorded
		require.NoError(t, json.Unmarshal(m.Payload(), &got))
		assert.Equal(t, ev, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublisher_ConnectRespectsContext(t *testing.T) {
	// Nothing listens on this port; with ConnectRetry the token never completes.
	p := NewPublisher(testConfig(freePort(t)), discardLogger())
	t.Cleanup(p.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := p.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.IsConnected())
}

func TestPublisher_DisconnectIsIdempotent(t *testing.T) {
	p := NewPublisher(testConfig(1883), discardLogger())
	p.Disconnect()
	p.Disconnect()

	err := p.Connect(context.Background())
	assert.EqualError(t, err, "publisher stopped")
}
