package events

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pribylovaa/bytebot-auth/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPresenceSubject(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("7f1b3c6e-1d2a-4c5b-9e8f-0a1b2c3d4e5f")
	require.Equal(t, "user.7f1b3c6e-1d2a-4c5b-9e8f-0a1b2c3d4e5f.presence", PresenceSubject(id))
}

func TestNew_Drivers(t *testing.T) {
	t.Parallel()

	p, err := New(config.BrokerConfig{Driver: config.BrokerNone}, discard())
	require.NoError(t, err)
	require.IsType(t, &Noop{}, p)

	p, err = New(config.BrokerConfig{Driver: config.BrokerKafka, KafkaBrokers: []string{"127.0.0.1:9092"}, KafkaTopic: "presence"}, discard())
	require.NoError(t, err)
	require.IsType(t, &Kafka{}, p)

	_, err = New(config.BrokerConfig{Driver: "rabbit"}, discard())
	require.Error(t, err)
}

func TestNoop_Publish(t *testing.T) {
	t.Parallel()

	n := NewNoop(nil)
	require.NoError(t, n.Publish(context.Background(), "user.x.presence", []byte(`{}`)))
	require.NoError(t, n.Close())
}

func TestKafkaMessage_KeyIsSubject(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	m := message("user.1.presence", []byte(`{"status":"online"}`), now)

	require.Equal(t, []byte("user.1.presence"), m.Key)
	require.Equal(t, now, m.Time)
	require.Len(t, m.Headers, 1)
	require.Equal(t, "subject", m.Headers[0].Key)
}

func TestNATS_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewNATS("nats://127.0.0.1:1", discard())
	require.Error(t, err)
}

// TestNATS_Publish_Integration поднимает nats в контейнере и проверяет,
// что подписчик на user.*.presence получает событие.
func TestNATS_Publish_Integration(t *testing.T) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled; set GO_TEST_INTEGRATION=1")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "4222/tcp")
	require.NoError(t, err)
	url := "nats://" + host + ":" + port.Port()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("user.*.presence", ch)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	pub, err := NewNATS(url, discard())
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	id := uuid.New()
	require.NoError(t, pub.Publish(ctx, PresenceSubject(id), []byte(`{"status":"online"}`)))

	select {
	case msg := <-ch:
		require.Equal(t, PresenceSubject(id), msg.Subject)
		require.JSONEq(t, `{"status":"online"}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("presence event was not delivered")
	}
}
