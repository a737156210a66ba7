package presence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultEntryTTL bounds how long a crashed node's entries survive.
const DefaultEntryTTL = 90 * time.Second

const keyPrefix = "presence:"

// releaseScript deletes the key only while it still names the caller's connection.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the TTL only while the key still names the caller's connection.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Directory is the cluster-wide presence view kept in Redis. Each entry maps an
// identity to "node|connection" so any node can route to the owner.
type Directory struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
	log    *zap.Logger
}

func NewDirectory(rdb *redis.Client, nodeID string, ttl time.Duration, log *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{rdb: rdb, nodeID: nodeID, ttl: ttl, log: log}
}

func key(identity string) string { return keyPrefix + identity }

func (d *Directory) value(connID string) string { return d.nodeID + "|" + connID }

// NodeID is the node this directory claims entries for.
func (d *Directory) NodeID() string { return d.nodeID }

// Entry is one identity's live connection somewhere in the cluster.
type Entry struct {
	Node   string
	ConnID string
}

func parseEntry(v string) (Entry, bool) {
	node, connID, found := strings.Cut(v, "|")
	if !found || node == "" {
		return Entry{}, false
	}
	return Entry{Node: node, ConnID: connID}, true
}

// Claim records that identity is connected here, superseding any other node.
// It returns the entry it replaced so the previous owner can be told.
func (d *Directory) Claim(ctx context.Context, identity, connID string) (prev Entry, replaced bool, err error) {
	old, err := d.rdb.SetArgs(ctx, key(identity), d.value(connID), redis.SetArgs{TTL: d.ttl, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	prev, replaced = parseEntry(old)
	return prev, replaced, nil
}

// Release drops the entry if it still belongs to connID.
func (d *Directory) Release(ctx context.Context, identity, connID string) (bool, error) {
	n, err := releaseScript.Run(ctx, d.rdb, []string{key(identity)}, d.value(connID)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Locate returns the node holding identity's connection.
func (d *Directory) Locate(ctx context.Context, identity string) (node string, ok bool, err error) {
	v, err := d.rdb.Get(ctx, key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	e, ok := parseEntry(v)
	return e.Node, ok, nil
}

// Refresh extends the TTL of every entry this node still owns. entries maps
// identity to connection id.
func (d *Directory) Refresh(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := d.rdb.Pipeline()
	ttl := d.ttl.Milliseconds()
	for identity, connID := range entries {
		refreshScript.Eval(ctx, pipe, []string{key(identity)}, d.value(connID), ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		d.log.Warn("presence refresh failed", zap.Int("entries", len(entries)), zap.Error(err))
		return err
	}
	return nil
}
