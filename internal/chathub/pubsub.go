package chathub

import (
	"context"
	"encoding/json"
	"fmt"

	"skillswap/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay carries events between nodes. Each node listens on its own channel.
type Relay interface {
	Publish(ctx context.Context, node string, env models.RelayEnvelope) error
	// Subscribe calls handle for every envelope addressed to node and blocks
	// until ctx is done.
	Subscribe(ctx context.Context, node string, handle func(models.RelayEnvelope)) error
}

func relayChannel(node string) string { return "skillswap.relay." + node }

// RedisRelay is a Relay over Redis Pub/Sub.
type RedisRelay struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{rdb: rdb, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, node string, env models.RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel(node), payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, node string, handle func(models.RelayEnvelope)) error {
	pubsub := r.rdb.Subscribe(ctx, relayChannel(node))
	defer pubsub.Close()

	// Wait for the confirmation so nothing published after this returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", relayChannel(node), err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env models.RelayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("malformed relay payload", zap.Error(err))
				continue
			}
			handle(env)
		}
	}
}
