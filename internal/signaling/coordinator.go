// Package signaling runs the call handshake between two identities: invite,
// accept or reject, cancel, expiry and end. Media never passes through here;
// both sides join the external relay with the channel id and their token.
package signaling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/metrics"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/relay"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier pushes events to live connections.
type Notifier interface {
	Deliver(ctx context.Context, identity string, ev models.Event) bool
	IsOnline(ctx context.Context, identity string) bool
}

// ProfileLookup supplies the caller's display data for incoming-call screens.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// TokenIssuer mints media relay join tokens.
type TokenIssuer interface {
	Issue(channelID string, tag uint32) (string, error)
}

// JoinGrant is what a party needs to join the relay channel.
type JoinGrant struct {
	ChannelID string `json:"channelId"`
	Token     string `json:"token"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCallStore replaces the in-memory call store, typically with one shared
// by every node.
func WithCallStore(s CallStore) Option {
	return func(c *Coordinator) { c.store = s }
}

// Coordinator runs the call handshake over a CallStore. An identity takes part
// in at most one non-terminal call at a time. Invite expiry timers live on the
// node that sent the invite; a timer firing after the call moved on is a no-op.
type Coordinator struct {
	notifier Notifier
	profiles ProfileLookup
	tokens   TokenIssuer
	store    CallStore
	timeout  time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCoordinator(n Notifier, p ProfileLookup, t TokenIssuer, inviteTimeout time.Duration, log *zap.Logger, opts ...Option) *Coordinator {
	if inviteTimeout <= 0 {
		inviteTimeout = config.DefaultCallInviteTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		notifier: n,
		profiles: p,
		tokens:   t,
		store:    NewMemoryCallStore(),
		timeout:  inviteTimeout,
		log:      log,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invite rings target. It fails with TargetOffline when target has no live
// connection, in which case no call exists afterwards.
func (c *Coordinator) Invite(ctx context.Context, initiator, target string, kind models.CallKind) (*JoinGrant, error) {
	const op = "signaling.Invite"
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return nil, apperr.New(apperr.ErrInvalidInput, op, "target is required")
	case target == initiator:
		return nil, apperr.New(apperr.ErrInvalidInput, op, "cannot call yourself")
	case !kind.Valid():
		return nil, apperr.New(apperr.ErrInvalidInput, op, "unsupported call kind %q", kind)
	}
	if !c.notifier.IsOnline(ctx, target) {
		return nil, apperr.New(apperr.ErrTargetOffline, op, "user is offline")
	}

	var meta models.ProfileMeta
	if c.profiles != nil {
		profile, err := c.profiles.GetProfile(ctx, initiator)
		if err != nil {
			c.log.Debug("caller profile unavailable", zap.String("user_id", initiator), zap.Error(err))
		}
		meta = profile.Meta()
	}

	channelID := uuid.NewString()
	token, err := c.tokens.Issue(channelID, relay.TagInitiator)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, op, err)
	}

	cs := models.CallSession{
		ChannelID:   channelID,
		InitiatorID: initiator,
		TargetID:    target,
		Kind:        kind,
		State:       models.CallInvited,
		InvitedAt:   time.Now().UTC(),
	}
	if err := c.store.Create(ctx, cs); err != nil {
		busy, ok := busyIdentity(err)
		switch {
		case !ok:
			return nil, apperr.Wrap(apperr.ErrUnavailable, op, err)
		case busy == initiator:
			return nil, apperr.New(apperr.ErrConflict, op, "you already have an active call")
		default:
			return nil, apperr.New(apperr.ErrConflict, op, "user is busy")
		}
	}
	c.startTimer(channelID)

	delivered := c.notifier.Deliver(ctx, target, models.NewEvent(models.EventIncomingCall, models.IncomingCallPayload{
		ChannelID:     channelID,
		InitiatorID:   initiator,
		Kind:          kind,
		InitiatorMeta: meta,
	}))
	if !delivered {
		c.stopTimer(channelID)
		dropped := cs
		dropped.State = models.CallCancelled
		if _, err := c.store.Update(ctx, dropped, models.CallInvited); err != nil {
			c.log.Warn("undelivered invite not removed", zap.String("channel_id", channelID), zap.Error(err))
		}
		return nil, apperr.New(apperr.ErrTargetOffline, op, "user is offline")
	}

	metrics.CallTransitions.WithLabelValues(string(models.CallInvited)).Inc()
	c.log.Info("call invited", zap.String("channel_id", channelID), zap.String("initiator", initiator), zap.String("target", target), zap.String("kind", string(kind)))
	return &JoinGrant{ChannelID: channelID, Token: token}, nil
}

// Accept answers the invite addressed to target. An empty channelID means the
// single call currently ringing for target.
func (c *Coordinator) Accept(ctx context.Context, target, channelID string) (*JoinGrant, error) {
	const op = "signaling.Accept"
	cs, err := c.resolve(ctx, op, target, channelID)
	if err != nil {
		return nil, err
	}
	if cs.TargetID != target {
		return nil, apperr.New(apperr.ErrForbidden, op, "only the invited user can accept")
	}
	if cs.State != models.CallInvited {
		return nil, apperr.New(apperr.ErrConflict, op, "call is %s", cs.State)
	}
	token, err := c.tokens.Issue(cs.ChannelID, relay.TagTarget)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, op, err)
	}

	next := cs
	next.State = models.CallAccepted
	next.AcceptedAt = time.Now().UTC()
	if err := c.commit(ctx, op, next, cs.State); err != nil {
		return nil, err
	}
	c.stopTimer(cs.ChannelID)

	c.record(next, models.CallAccepted)
	c.notify(ctx, next.InitiatorID, models.EventCallAccepted, models.CallStatusPayload{ChannelID: next.ChannelID, PeerID: target})
	c.notify(ctx, target, models.EventCallAccepted, models.CallStatusPayload{ChannelID: next.ChannelID, PeerID: next.InitiatorID, Token: token})
	return &JoinGrant{ChannelID: next.ChannelID, Token: token}, nil
}

// Reject declines the invite addressed to target.
func (c *Coordinator) Reject(ctx context.Context, target, channelID string) error {
	const op = "signaling.Reject"
	snap, err := c.finish(ctx, op, target, channelID, models.CallRejected, func(cs models.CallSession) error {
		if cs.TargetID != target {
			return apperr.New(apperr.ErrForbidden, op, "only the invited user can reject")
		}
		if cs.State != models.CallInvited {
			return apperr.New(apperr.ErrConflict, op, "call is %s", cs.State)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.notify(ctx, snap.InitiatorID, models.EventCallRejected, models.CallStatusPayload{ChannelID: snap.ChannelID, PeerID: target})
	return nil
}

// Cancel withdraws an invite before the target answers.
func (c *Coordinator) Cancel(ctx context.Context, initiator, channelID string) error {
	const op = "signaling.Cancel"
	snap, err := c.finish(ctx, op, initiator, channelID, models.CallCancelled, func(cs models.CallSession) error {
		if cs.InitiatorID != initiator {
			return apperr.New(apperr.ErrForbidden, op, "only the caller can cancel")
		}
		if cs.State != models.CallInvited {
			return apperr.New(apperr.ErrConflict, op, "call is %s", cs.State)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.notify(ctx, snap.TargetID, models.EventCallCancelled, models.CallStatusPayload{ChannelID: snap.ChannelID, PeerID: initiator})
	return nil
}

// End hangs up an accepted call.
func (c *Coordinator) End(ctx context.Context, party, channelID string) error {
	const op = "signaling.End"
	snap, err := c.finish(ctx, op, party, channelID, models.CallEnded, func(cs models.CallSession) error {
		if !cs.Involves(party) {
			return apperr.New(apperr.ErrForbidden, op, "not a party to this call")
		}
		if cs.State != models.CallAccepted {
			return apperr.New(apperr.ErrConflict, op, "call is %s", cs.State)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.notify(ctx, snap.Counterpart(party), models.EventCallEnded, models.CallStatusPayload{ChannelID: snap.ChannelID, PeerID: party})
	return nil
}

// Disconnect settles the call of an identity whose connection went away:
// a ringing call is cancelled, an accepted one ended.
func (c *Coordinator) Disconnect(ctx context.Context, identity string) {
	cs, err := c.resolve(ctx, "signaling.Disconnect", identity, "")
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.log.Warn("call lookup on disconnect failed", zap.String("user_id", identity), zap.Error(err))
		}
		return
	}
	next, event := models.CallCancelled, models.EventCallCancelled
	if cs.State == models.CallAccepted {
		next, event = models.CallEnded, models.EventCallEnded
	}
	snap := cs
	snap.State = next
	if ok, err := c.store.Update(ctx, snap, cs.State); err != nil || !ok {
		c.log.Debug("call settled elsewhere", zap.String("channel_id", cs.ChannelID), zap.Error(err))
		return
	}
	c.stopTimer(cs.ChannelID)

	c.record(snap, next)
	c.notify(ctx, snap.Counterpart(identity), event, models.CallStatusPayload{ChannelID: snap.ChannelID, PeerID: identity})
}

// ActiveCall returns the non-terminal call identity takes part in.
func (c *Coordinator) ActiveCall(ctx context.Context, identity string) (models.CallSession, bool) {
	cs, err := c.resolve(ctx, "signaling.ActiveCall", identity, "")
	if err != nil {
		return models.CallSession{}, false
	}
	return cs, true
}

func (c *Coordinator) startTimer(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[channelID] = time.AfterFunc(c.timeout, func() { c.expire(channelID) })
}

func (c *Coordinator) stopTimer(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[channelID]; ok {
		t.Stop()
		delete(c.timers, channelID)
	}
}

func (c *Coordinator) expire(channelID string) {
	c.mu.Lock()
	delete(c.timers, channelID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cs, ok, err := c.store.Get(ctx, channelID)
	if err != nil {
		c.log.Warn("expiry lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if !ok || cs.State != models.CallInvited {
		return
	}
	snap := cs
	snap.State = models.CallExpired
	if ok, err := c.store.Update(ctx, snap, models.CallInvited); err != nil || !ok {
		return
	}

	c.record(snap, models.CallExpired)
	payload := models.CallStatusPayload{ChannelID: snap.ChannelID}
	c.notify(ctx, snap.InitiatorID, models.EventCallExpired, payload)
	c.notify(ctx, snap.TargetID, models.EventCallExpired, payload)
}

// finish moves the call resolved for actor into the terminal state to after
// check approves it.
func (c *Coordinator) finish(ctx context.Context, op, actor, channelID string, to models.CallState, check func(models.CallSession) error) (models.CallSession, error) {
	cs, err := c.resolve(ctx, op, actor, channelID)
	if err != nil {
		return models.CallSession{}, err
	}
	if err := check(cs); err != nil {
		return models.CallSession{}, err
	}
	snap := cs
	snap.State = to
	if err := c.commit(ctx, op, snap, cs.State); err != nil {
		return models.CallSession{}, err
	}
	c.stopTimer(cs.ChannelID)
	c.record(snap, to)
	return snap, nil
}

// commit writes next if the call is still in state from. Losing the race to
// another action reads as NotFound once the call is gone, Conflict otherwise.
func (c *Coordinator) commit(ctx context.Context, op string, next models.CallSession, from models.CallState) error {
	ok, err := c.store.Update(ctx, next, from)
	if err != nil {
		return apperr.Wrap(apperr.ErrUnavailable, op, err)
	}
	if ok {
		return nil
	}
	cur, found, err := c.store.Get(ctx, next.ChannelID)
	switch {
	case err != nil:
		return apperr.Wrap(apperr.ErrUnavailable, op, err)
	case !found:
		return apperr.New(apperr.ErrNotFound, op, "no active call")
	}
	return apperr.New(apperr.ErrConflict, op, "call is %s", cur.State)
}

func (c *Coordinator) resolve(ctx context.Context, op, actor, channelID string) (models.CallSession, error) {
	if channelID == "" {
		id, ok, err := c.store.ActiveFor(ctx, actor)
		if err != nil {
			return models.CallSession{}, apperr.Wrap(apperr.ErrUnavailable, op, err)
		}
		if !ok {
			return models.CallSession{}, apperr.New(apperr.ErrNotFound, op, "no active call")
		}
		channelID = id
	}
	cs, ok, err := c.store.Get(ctx, channelID)
	if err != nil {
		return models.CallSession{}, apperr.Wrap(apperr.ErrUnavailable, op, err)
	}
	if !ok {
		return models.CallSession{}, apperr.New(apperr.ErrNotFound, op, "no active call")
	}
	return cs, nil
}

func (c *Coordinator) record(snap models.CallSession, state models.CallState) {
	metrics.CallTransitions.WithLabelValues(string(state)).Inc()
	c.log.Info("call state changed", zap.String("channel_id", snap.ChannelID), zap.String("state", string(state)))
}

func (c *Coordinator) notify(ctx context.Context, identity string, t models.EventType, payload models.CallStatusPayload) {
	if !c.notifier.Deliver(ctx, identity, models.NewEvent(t, payload)) {
		c.log.Debug("call notification not delivered", zap.String("user_id", identity), zap.String("type", string(t)))
	}
}
