package chathub

import (
	"context"
	"time"

	"skillswap/backend/internal/metrics"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/presence"
	"skillswap/backend/internal/storage"

	"go.uber.org/zap"
)

const (
	presenceRefreshInterval = presence.DefaultEntryTTL / 3
	broadcastTimeout        = 5 * time.Second
)

// Locator is the cluster-wide presence directory.
type Locator interface {
	Claim(ctx context.Context, identity, connID string) (prev presence.Entry, replaced bool, err error)
	Release(ctx context.Context, identity, connID string) (bool, error)
	Locate(ctx context.Context, identity string) (node string, ok bool, err error)
	Refresh(ctx context.Context, entries map[string]string) error
}

// Option configures a ManagerService.
type Option func(*ManagerService)

// WithCluster routes events for identities connected to other nodes through
// the directory and relay.
func WithCluster(nodeID string, dir Locator, relay Relay) Option {
	return func(m *ManagerService) {
		m.nodeID = nodeID
		m.directory = dir
		m.relay = relay
	}
}

// ManagerService is the message delivery hub: it appends messages through the
// store and fans them out to live connections, locally or via the relay.
type ManagerService struct {
	Registry *presence.Registry[Client]
	Storage  storage.Storage
	Log      *zap.Logger

	nodeID    string
	directory Locator
	relay     Relay

	sessionLocks *keyedMutex
}

func NewManagerService(s storage.Storage, log *zap.Logger, opts ...Option) *ManagerService {
	if log == nil {
		log = zap.NewNop()
	}
	m := &ManagerService{
		Registry:     presence.NewRegistry[Client](),
		Storage:      s,
		Log:          log,
		sessionLocks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NodeID is the cluster node this hub serves, empty when running alone.
func (m *ManagerService) NodeID() string { return m.nodeID }

// Register makes c the live connection for its identity. A connection it
// supersedes is closed.
func (m *ManagerService) Register(ctx context.Context, c Client) {
	id := c.GetUserID()
	prev, replaced := m.Registry.Register(id, c)
	metrics.ActiveConnections.Set(float64(m.Registry.Count()))

	if m.directory != nil {
		other, moved, err := m.directory.Claim(ctx, id, c.GetConnID())
		switch {
		case err != nil:
			m.Log.Warn("presence claim failed", zap.String("user_id", id), zap.Error(err))
		case moved && other.Node != m.nodeID:
			m.supersedeRemote(ctx, id, other)
		}
	}

	if replaced {
		m.Log.Info("connection superseded", zap.String("user_id", id), zap.String("old_conn", prev.GetConnID()))
		prev.Close()
		return
	}
	m.Log.Info("client registered", zap.String("user_id", id), zap.String("conn_id", c.GetConnID()))
	go m.broadcastPresence(id, models.EventUserOnline)
}

// supersedeRemote tells the node that held identity's previous connection to
// close it, so deliveries there stop reaching a dead socket.
func (m *ManagerService) supersedeRemote(ctx context.Context, identity string, prev presence.Entry) {
	if m.relay == nil {
		return
	}
	env := models.RelayEnvelope{Kind: models.RelaySupersede, Target: identity, ConnID: prev.ConnID}
	if err := m.relay.Publish(ctx, prev.Node, env); err != nil {
		m.Log.Warn("supersede publish failed", zap.String("user_id", identity), zap.String("node", prev.Node), zap.Error(err))
		return
	}
	m.Log.Info("connection moved to this node", zap.String("user_id", identity), zap.String("from_node", prev.Node))
}

// Unregister removes c if it is still the identity's live connection. It
// reports whether an entry was removed.
func (m *ManagerService) Unregister(ctx context.Context, c Client) bool {
	id := c.GetUserID()
	if !m.Registry.Unregister(id, c) {
		return false
	}
	metrics.ActiveConnections.Set(float64(m.Registry.Count()))

	if m.directory != nil {
		if _, err := m.directory.Release(ctx, id, c.GetConnID()); err != nil {
			m.Log.Warn("presence release failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	m.Log.Info("client unregistered", zap.String("user_id", id), zap.String("conn_id", c.GetConnID()))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		defer cancel()
		if !m.IsOnline(ctx, id) {
			m.broadcastPresence(id, models.EventUserOffline)
		}
	}()
	return true
}

// IsOnline reports whether identity has a live connection on any node.
func (m *ManagerService) IsOnline(ctx context.Context, identity string) bool {
	if _, ok := m.Registry.Lookup(identity); ok {
		return true
	}
	if m.directory == nil {
		return false
	}
	_, ok, err := m.directory.Locate(ctx, identity)
	if err != nil {
		m.Log.Warn("presence lookup failed", zap.String("user_id", identity), zap.Error(err))
		return false
	}
	return ok
}

// Deliver pushes ev to identity's live connection. It returns false when the
// identity is offline or the event could not be queued; callers never retry.
func (m *ManagerService) Deliver(ctx context.Context, identity string, ev models.Event) bool {
	if c, ok := m.Registry.Lookup(identity); ok {
		if c.Enqueue(ev) {
			metrics.Deliveries.WithLabelValues(metrics.DeliveredLocal).Inc()
			return true
		}
		// Slow or closed reader: drop it, it will reload history on reconnect.
		metrics.Deliveries.WithLabelValues(metrics.DeliveryDropped).Inc()
		m.Log.Warn("send buffer full, closing client", zap.String("user_id", identity), zap.String("conn_id", c.GetConnID()))
		c.Close()
		return false
	}

	if m.directory != nil && m.relay != nil {
		node, ok, err := m.directory.Locate(ctx, identity)
		switch {
		case err != nil:
			m.Log.Warn("presence lookup failed", zap.String("user_id", identity), zap.Error(err))
		case ok && node != m.nodeID:
			err := m.relay.Publish(ctx, node, models.RelayEnvelope{Target: identity, Event: ev})
			if err == nil {
				metrics.Deliveries.WithLabelValues(metrics.DeliveredRelayed).Inc()
				return true
			}
			m.Log.Warn("relay publish failed", zap.String("node", node), zap.Error(err))
		}
	}

	metrics.Deliveries.WithLabelValues(metrics.DeliveryOffline).Inc()
	return false
}

// Send appends a message and pushes it to the other participant. Sends to one
// session are serialized so every recipient sees them in append order. The
// message is returned even when nobody is online to receive it.
func (m *ManagerService) Send(ctx context.Context, sessionID, sender string, body models.MessageBody) (*models.Message, error) {
	session, err := m.Storage.GetSession(ctx, sessionID, sender)
	if err != nil {
		return nil, err
	}

	unlock := m.sessionLocks.Lock(sessionID)
	defer unlock()

	msg, err := m.Storage.AppendMessage(ctx, sessionID, sender, body)
	if err != nil {
		return nil, err
	}
	metrics.MessagesAppended.Inc()

	ev := models.MessageEvent(msg)
	for _, p := range session.Participants {
		if p == sender {
			continue
		}
		if !m.Deliver(ctx, p, ev) {
			m.Log.Debug("recipient offline, message stored only", zap.String("session_id", sessionID), zap.String("user_id", p))
		}
	}
	return msg, nil
}

// Typing relays a typing indicator to the other participant.
func (m *ManagerService) Typing(ctx context.Context, sessionID, sender string, isTyping bool) error {
	session, err := m.Storage.GetSession(ctx, sessionID, sender)
	if err != nil {
		return err
	}
	m.Deliver(ctx, session.Counterpart(sender), models.NewEvent(models.EventTyping, models.TypingNotice{
		ChatID:   sessionID,
		UserID:   sender,
		IsTyping: isTyping,
	}))
	return nil
}

// FetchPage reads a page of history for requester and tells the counterpart
// which of their messages have now been read.
func (m *ManagerService) FetchPage(ctx context.Context, sessionID, requester string, page, size int) (*storage.MessagePage, error) {
	result, err := m.Storage.GetMessagesPage(ctx, sessionID, requester, page, size)
	if err != nil {
		return nil, err
	}
	if result.NewlyRead == 0 {
		return result, nil
	}

	var author string
	for _, msg := range result.Messages {
		if msg.Seq == result.ReadUpToSeq {
			author = msg.SenderID
			break
		}
	}
	if author != "" {
		m.Deliver(ctx, author, models.NewEvent(models.EventMessagesRead, models.MessagesReadPayload{
			ChatID:    sessionID,
			ReaderID:  requester,
			UpToSeq:   result.ReadUpToSeq,
			ReadCount: result.NewlyRead,
		}))
	}
	return result, nil
}

func (m *ManagerService) broadcastPresence(identity string, t models.EventType) {
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()

	peers, err := m.Storage.CounterpartsOf(ctx, identity)
	if err != nil {
		m.Log.Warn("presence broadcast skipped", zap.String("user_id", identity), zap.Error(err))
		return
	}
	ev := models.NewEvent(t, models.PresencePayload{UserID: identity})
	for _, peer := range peers {
		m.Deliver(ctx, peer, ev)
	}
}

// handleRelayed applies an envelope published by another node. It never
// re-publishes, so a stale directory entry cannot bounce events between nodes.
func (m *ManagerService) handleRelayed(env models.RelayEnvelope) {
	c, ok := m.Registry.Lookup(env.Target)
	if env.Kind == models.RelaySupersede {
		// Only the named connection goes; a newer local one stays.
		if ok && c.GetConnID() == env.ConnID && m.Registry.Unregister(env.Target, c) {
			metrics.ActiveConnections.Set(float64(m.Registry.Count()))
			m.Log.Info("connection superseded on another node", zap.String("user_id", env.Target), zap.String("old_conn", env.ConnID))
			c.Close()
		}
		return
	}
	if !ok {
		metrics.Deliveries.WithLabelValues(metrics.DeliveryOffline).Inc()
		return
	}
	if !c.Enqueue(env.Event) {
		metrics.Deliveries.WithLabelValues(metrics.DeliveryDropped).Inc()
		c.Close()
		return
	}
	metrics.Deliveries.WithLabelValues(metrics.DeliveredLocal).Inc()
}

// Run subscribes to this node's relay channel and keeps presence entries
// alive until ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	if m.relay != nil {
		go func() {
			if err := m.relay.Subscribe(ctx, m.nodeID, m.handleRelayed); err != nil && ctx.Err() == nil {
				m.Log.Error("relay subscription ended", zap.Error(err))
			}
		}()
	}
	if m.directory == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries := make(map[string]string)
			for id, c := range m.Registry.Snapshot() {
				entries[id] = c.GetConnID()
			}
			if err := m.directory.Refresh(ctx, entries); err != nil {
				m.Log.Warn("presence refresh failed", zap.Error(err))
			}
		}
	}
}
