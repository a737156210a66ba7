package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skillswap/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// DefaultCallRecordTTL bounds how long a call survives a node that crashed
// before settling it.
const DefaultCallRecordTTL = 12 * time.Hour

var createCallScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then return 1 end
if redis.call("EXISTS", KEYS[3]) == 1 then return 2 end
redis.call("HSET", KEYS[1], "state", ARGV[2], "data", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[4])
redis.call("SET", KEYS[3], ARGV[1], "PX", ARGV[4])
return 0`)

// updateCallScript swaps the call only while its state is still ARGV[1].
var updateCallScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") ~= ARGV[1] then return 0 end
if ARGV[4] == "1" then
	redis.call("DEL", KEYS[1])
	for i = 2, 3 do
		if redis.call("GET", KEYS[i]) == ARGV[5] then redis.call("DEL", KEYS[i]) end
	end
else
	redis.call("HSET", KEYS[1], "state", ARGV[2], "data", ARGV[3])
end
return 1`)

// RedisCallStore keeps calls in Redis next to the presence directory, so the
// nodes of a cluster see one set of calls.
type RedisCallStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ CallStore = (*RedisCallStore)(nil)

func NewRedisCallStore(rdb *redis.Client, ttl time.Duration) *RedisCallStore {
	if ttl <= 0 {
		ttl = DefaultCallRecordTTL
	}
	return &RedisCallStore{rdb: rdb, ttl: ttl}
}

func callKey(channelID string) string { return "call:" + channelID }
func partyKey(identity string) string { return "call:party:" + identity }

func (s *RedisCallStore) Create(ctx context.Context, cs models.CallSession) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	keys := []string{callKey(cs.ChannelID), partyKey(cs.InitiatorID), partyKey(cs.TargetID)}
	n, err := createCallScript.Run(ctx, s.rdb, keys, cs.ChannelID, string(cs.State), data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	switch n {
	case 1:
		return &BusyError{Identity: cs.InitiatorID}
	case 2:
		return &BusyError{Identity: cs.TargetID}
	}
	return nil
}

func (s *RedisCallStore) Get(ctx context.Context, channelID string) (models.CallSession, bool, error) {
	raw, err := s.rdb.HGet(ctx, callKey(channelID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return models.CallSession{}, false, nil
	}
	if err != nil {
		return models.CallSession{}, false, err
	}
	var cs models.CallSession
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return models.CallSession{}, false, fmt.Errorf("decode call %s: %w", channelID, err)
	}
	return cs, true, nil
}

func (s *RedisCallStore) ActiveFor(ctx context.Context, identity string) (string, bool, error) {
	id, err := s.rdb.Get(ctx, partyKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *RedisCallStore) Update(ctx context.Context, cs models.CallSession, from models.CallState) (bool, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return false, err
	}
	terminal := "0"
	if cs.State.Terminal() {
		terminal = "1"
	}
	keys := []string{callKey(cs.ChannelID), partyKey(cs.InitiatorID), partyKey(cs.TargetID)}
	n, err := updateCallScript.Run(ctx, s.rdb, keys, string(from), string(cs.State), data, terminal, cs.ChannelID).Int()
	if err != nil {
		return false, fmt.Errorf("update call: %w", err)
	}
	return n == 1, nil
}
