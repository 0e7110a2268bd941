//go:build integration

package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/semwidgets/errors"
)

// startJetStream runs a NATS server with JetStream enabled for the test.
func startJetStream(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func connected(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(url, WithName("semwidgets-integration"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestIntegration_PublishReachesSubscriber(t *testing.T) {
	url := startJetStream(t)
	client := connected(t, url)
	assert.Equal(t, StatusConnected, client.Status())
	assert.True(t, client.IsHealthy())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("semwidgets.events.>", msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	require.NoError(t, client.Publish(context.Background(), "semwidgets.events.config-changed", []byte(`{"componentId":"g1"}`)))

	select {
	case msg := <-msgs:
		assert.Equal(t, "semwidgets.events.config-changed", msg.Subject)
		assert.JSONEq(t, `{"componentId":"g1"}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, client.Close(context.Background()))
	assert.ErrorIs(t, client.Publish(context.Background(), "semwidgets.events.x", nil), ErrNotConnected)
}

func TestIntegration_KVStoreRoundTrip(t *testing.T) {
	client := connected(t, startJetStream(t))
	ctx := context.Background()

	cfg := jetstream.KeyValueConfig{Bucket: "semwidgets_widgets_it", History: 5}
	bucket, err := client.CreateKeyValueBucket(ctx, cfg)
	require.NoError(t, err)
	again, err := client.CreateKeyValueBucket(ctx, cfg)
	require.NoError(t, err, "opening an existing bucket succeeds")
	assert.Equal(t, bucket.Bucket(), again.Bucket())

	kv := NewKVStore(bucket, 0)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	rev1, err := kv.Put(ctx, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)
	rev2, err := kv.Put(ctx, "a0", []byte(`{"id":"a0"}`))
	require.NoError(t, err)
	assert.Greater(t, rev2, rev1)

	value, rev, err := kv.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, rev1, rev)
	assert.JSONEq(t, `{"id":"g1"}`, string(value))

	keys, err = kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "g1"}, keys)

	require.NoError(t, kv.Delete(ctx, "g1"))
	_, _, err = kv.Get(ctx, "g1")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.True(t, IsKVNotFoundError(err))
}
