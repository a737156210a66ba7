package chathub_test

import (
	"context"
	"os"
	"testing"
	"time"

	"skillswap/backend/internal/chathub"
	"skillswap/backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRelay(t *testing.T, relay chathub.Relay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := "node-" + uuid.NewString()[:8]
	received := make(chan models.RelayEnvelope, 1)
	done := make(chan error, 1)
	go func() {
		done <- relay.Subscribe(ctx, node, func(env models.RelayEnvelope) { received <- env })
	}()

	msg := &models.Message{SessionID: "s1", Seq: 4, SenderID: "u1", Text: "over the wire"}
	env := models.RelayEnvelope{Target: "u2", Event: models.MessageEvent(msg)}

	// Publish until the subscription is live.
	var got models.RelayEnvelope
	require.Eventually(t, func() bool {
		assert.NoError(t, relay.Publish(ctx, node, env))
		select {
		case got = <-received:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "u2", got.Target)
	require.NotNil(t, got.Event.Message)
	assert.Equal(t, "over the wire", got.Event.Message.Text)
	assert.Equal(t, int64(4), got.Event.Message.Seq)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestRedisRelay(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed relay tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	exerciseRelay(t, chathub.NewRedisRelay(rdb, nil))
}

func TestNATSRelay(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("set TEST_NATS_URL to run NATS-backed relay tests")
	}
	nc, err := chathub.ConnectNATS(url, "test")
	require.NoError(t, err)
	defer nc.Close()

	exerciseRelay(t, chathub.NewNATSRelay(nc, nil))
}
