package presence_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"skillswap/backend/internal/presence"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed presence tests")
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestDirectory_ClaimLocateRelease(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	nodeA := presence.NewDirectory(rdb, "node-a", time.Minute, nil)
	nodeB := presence.NewDirectory(rdb, "node-b", time.Minute, nil)
	user := "user-" + uuid.NewString()

	_, ok, err := nodeA.Locate(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)

	_, replaced, err := nodeA.Claim(ctx, user, "c1")
	require.NoError(t, err)
	assert.False(t, replaced)
	node, ok, err := nodeB.Locate(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-a", node)

	// The user reconnects on node B; node A's late release must not remove it.
	prev, replaced, err := nodeB.Claim(ctx, user, "c2")
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, presence.Entry{Node: "node-a", ConnID: "c1"}, prev)
	released, err := nodeA.Release(ctx, user, "c1")
	require.NoError(t, err)
	assert.False(t, released)

	node, ok, err = nodeA.Locate(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-b", node)

	released, err = nodeB.Release(ctx, user, "c2")
	require.NoError(t, err)
	assert.True(t, released)
	_, ok, err = nodeA.Locate(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectory_RefreshOnlyOwnedEntries(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	dir := presence.NewDirectory(rdb, "node-a", 2*time.Second, nil)
	mine, taken := "user-"+uuid.NewString(), "user-"+uuid.NewString()

	_, _, err := dir.Claim(ctx, mine, "c1")
	require.NoError(t, err)
	require.NoError(t, rdb.Set(ctx, "presence:"+taken, "node-b|c9", 2*time.Second).Err())

	long := presence.NewDirectory(rdb, "node-a", time.Hour, nil)
	require.NoError(t, long.Refresh(ctx, map[string]string{mine: "c1", taken: "c2"}))

	ttl, err := rdb.TTL(ctx, "presence:"+mine).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	ttl, err = rdb.TTL(ctx, "presence:"+taken).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 2*time.Second, "entries owned by another node are left alone")
}
