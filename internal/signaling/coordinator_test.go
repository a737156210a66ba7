package signaling_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/relay"
	"skillswap/backend/internal/signaling"
	"skillswap/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu     sync.Mutex
	online map[string]bool
	inbox  map[string][]models.Event
}

func newFakeNotifier(online ...string) *fakeNotifier {
	n := &fakeNotifier{online: map[string]bool{}, inbox: map[string][]models.Event{}}
	for _, id := range online {
		n.online[id] = true
	}
	return n
}

func (n *fakeNotifier) IsOnline(_ context.Context, identity string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[identity]
}

func (n *fakeNotifier) Deliver(_ context.Context, identity string, ev models.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[identity] {
		return false
	}
	n.inbox[identity] = append(n.inbox[identity], ev)
	return true
}

func (n *fakeNotifier) events(identity string, t models.EventType) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, ev := range n.inbox[identity] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (n *fakeNotifier) total(identity string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inbox[identity])
}

func statusOf(t *testing.T, ev models.Event) models.CallStatusPayload {
	t.Helper()
	var p models.CallStatusPayload
	require.NoError(t, json.Unmarshal(ev.Data, &p))
	return p
}

func newCoordinator(t *testing.T, n *fakeNotifier, timeout time.Duration) (*signaling.Coordinator, *relay.Issuer) {
	t.Helper()
	profiles := storage.NewMemoryStore()
	require.NoError(t, profiles.SaveProfile(context.Background(), &models.Profile{ID: "u1", DisplayName: "Oksana", PhotoURL: "o.png"}))
	issuer := relay.NewIssuer("app", "cert", time.Hour)
	return signaling.NewCoordinator(n, profiles, issuer, timeout, nil), issuer
}

func TestInvite_TargetOffline(t *testing.T) {
	n := newFakeNotifier("u1")
	c, _ := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	_, err := c.Invite(ctx, "u1", "u2", models.CallVideo)

	assert.ErrorIs(t, err, apperr.ErrTargetOffline)
	_, active := c.ActiveCall(ctx, "u1")
	assert.False(t, active, "no call is created")
	assert.Zero(t, n.total("u2"))
}

func TestInvite_RejectsBadInput(t *testing.T) {
	c, _ := newCoordinator(t, newFakeNotifier("u1", "u2"), time.Minute)
	ctx := context.Background()

	_, err := c.Invite(ctx, "u1", "u1", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = c.Invite(ctx, "u1", "", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = c.Invite(ctx, "u1", "u2", "smoke-signal")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCall_AcceptThenEnd(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	c, issuer := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	grant, err := c.Invite(ctx, "u1", "u2", models.CallAudio)
	require.NoError(t, err)
	require.NotEmpty(t, grant.ChannelID)
	claims, err := issuer.Verify(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, relay.TagInitiator, claims.UID)

	ringing := n.events("u2", models.EventIncomingCall)
	require.Len(t, ringing, 1)
	var incoming models.IncomingCallPayload
	require.NoError(t, json.Unmarshal(ringing[0].Data, &incoming))
	assert.Equal(t, models.IncomingCallPayload{
		ChannelID:     grant.ChannelID,
		InitiatorID:   "u1",
		Kind:          models.CallAudio,
		InitiatorMeta: models.ProfileMeta{Name: "Oksana", Photo: "o.png"},
	}, incoming)

	accepted, err := c.Accept(ctx, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, grant.ChannelID, accepted.ChannelID)
	claims, err = issuer.Verify(accepted.Token)
	require.NoError(t, err)
	assert.Equal(t, relay.TagTarget, claims.UID)

	toCaller := n.events("u1", models.EventCallAccepted)
	require.Len(t, toCaller, 1)
	assert.Empty(t, statusOf(t, toCaller[0]).Token, "the caller's token was issued with the invite")
	toTarget := n.events("u2", models.EventCallAccepted)
	require.Len(t, toTarget, 1)
	assert.Equal(t, accepted.Token, statusOf(t, toTarget[0]).Token)

	call, ok := c.ActiveCall(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, models.CallAccepted, call.State)

	require.NoError(t, c.End(ctx, "u1", ""))
	ended := n.events("u2", models.EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, grant.ChannelID, statusOf(t, ended[0]).ChannelID)

	assert.ErrorIs(t, c.End(ctx, "u1", ""), apperr.ErrNotFound)
	assert.ErrorIs(t, c.End(ctx, "u2", grant.ChannelID), apperr.ErrNotFound)
}

func TestCall_Reject(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	c, _ := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	grant, err := c.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Reject(ctx, "u1", grant.ChannelID), apperr.ErrForbidden, "the caller cannot reject")
	require.NoError(t, c.Reject(ctx, "u2", grant.ChannelID))

	rejected := n.events("u1", models.EventCallRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "u2", statusOf(t, rejected[0]).PeerID)

	_, err = c.Accept(ctx, "u2", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCall_CancelByInitiatorOnly(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	c, _ := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	grant, err := c.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Cancel(ctx, "u2", grant.ChannelID), apperr.ErrForbidden)
	require.NoError(t, c.Cancel(ctx, "u1", ""))
	assert.Len(t, n.events("u2", models.EventCallCancelled), 1)

	_, active := c.ActiveCall(ctx, "u2")
	assert.False(t, active)
}

func TestCall_InvalidTransitions(t *testing.T) {
	n := newFakeNotifier("u1", "u2", "u3")
	c, _ := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	grant, err := c.Invite(ctx, "u1", "u2", models.CallAudio)
	require.NoError(t, err)

	assert.ErrorIs(t, c.End(ctx, "u1", ""), apperr.ErrConflict, "a ringing call cannot be ended")
	_, err = c.Accept(ctx, "u1", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "the caller cannot accept")
	_, err = c.Accept(ctx, "u3", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = c.Accept(ctx, "u3", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = c.Accept(ctx, "u2", grant.ChannelID)
	require.NoError(t, err)
	_, err = c.Accept(ctx, "u2", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, c.Cancel(ctx, "u1", grant.ChannelID), apperr.ErrConflict)
	assert.ErrorIs(t, c.End(ctx, "u3", grant.ChannelID), apperr.ErrForbidden)
}

func TestInvite_BusyParties(t *testing.T) {
	n := newFakeNotifier("u1", "u2", "u3")
	c, _ := newCoordinator(t, n, time.Minute)
	ctx := context.Background()

	_, err := c.Invite(ctx, "u1", "u2", models.CallAudio)
	require.NoError(t, err)

	_, err = c.Invite(ctx, "u3", "u2", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrConflict, "target already ringing")
	_, err = c.Invite(ctx, "u1", "u3", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrConflict, "caller already in a call")
	_, err = c.Invite(ctx, "u2", "u1", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, n.events("u2", models.EventIncomingCall), 1)
}

func TestInvite_Expires(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	c, _ := newCoordinator(t, n, 30*time.Millisecond)
	ctx := context.Background()

	grant, err := c.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(n.events("u1", models.EventCallExpired)) == 1 && len(n.events("u2", models.EventCallExpired)) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = c.Accept(ctx, "u2", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Both parties are free again.
	_, err = c.Invite(ctx, "u2", "u1", models.CallAudio)
	assert.NoError(t, err)
}

func TestAccept_StopsExpiry(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	c, _ := newCoordinator(t, n, 40*time.Millisecond)
	ctx := context.Background()

	_, err := c.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)
	_, err = c.Accept(ctx, "u2", "")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, n.events("u1", models.EventCallExpired))
	call, ok := c.ActiveCall(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, models.CallAccepted, call.State)
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("caller drops while ringing", func(t *testing.T) {
		n := newFakeNotifier("u1", "u2")
		c, _ := newCoordinator(t, n, time.Minute)
		_, err := c.Invite(ctx, "u1", "u2", models.CallAudio)
		require.NoError(t, err)

		c.Disconnect(ctx, "u1")

		assert.Len(t, n.events("u2", models.EventCallCancelled), 1)
		_, active := c.ActiveCall(ctx, "u2")
		assert.False(t, active)
	})

	t.Run("either side drops while connected", func(t *testing.T) {
		n := newFakeNotifier("u1", "u2")
		c, _ := newCoordinator(t, n, time.Minute)
		_, err := c.Invite(ctx, "u1", "u2", models.CallAudio)
		require.NoError(t, err)
		_, err = c.Accept(ctx, "u2", "")
		require.NoError(t, err)

		c.Disconnect(ctx, "u2")

		assert.Len(t, n.events("u1", models.EventCallEnded), 1)
		_, active := c.ActiveCall(ctx, "u1")
		assert.False(t, active)
	})

	t.Run("no call is a no-op", func(t *testing.T) {
		n := newFakeNotifier("u1")
		c, _ := newCoordinator(t, n, time.Minute)
		c.Disconnect(ctx, "u1")
		assert.Zero(t, n.total("u1"))
	})
}

func TestCall_SharedStoreAcrossNodes(t *testing.T) {
	n := newFakeNotifier("u1", "u2", "u3")
	issuer := relay.NewIssuer("app", "cert", time.Hour)
	shared := signaling.NewMemoryCallStore()
	onA := signaling.NewCoordinator(n, nil, issuer, 40*time.Millisecond, nil, signaling.WithCallStore(shared))
	onB := signaling.NewCoordinator(n, nil, issuer, 40*time.Millisecond, nil, signaling.WithCallStore(shared))
	ctx := context.Background()

	grant, err := onA.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)

	_, err = onB.Invite(ctx, "u3", "u2", models.CallAudio)
	assert.ErrorIs(t, err, apperr.ErrConflict, "busy is seen from every node")

	accepted, err := onB.Accept(ctx, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, grant.ChannelID, accepted.ChannelID)
	assert.Len(t, n.events("u1", models.EventCallAccepted), 1)

	// The inviting node's expiry timer finds the call already accepted.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, n.events("u1", models.EventCallExpired))

	require.NoError(t, onA.End(ctx, "u1", grant.ChannelID))
	assert.Len(t, n.events("u2", models.EventCallEnded), 1)
	assert.ErrorIs(t, onB.End(ctx, "u2", ""), apperr.ErrNotFound)
}

func TestCall_ExpiryOnInvitingNode(t *testing.T) {
	n := newFakeNotifier("u1", "u2")
	issuer := relay.NewIssuer("app", "cert", time.Hour)
	shared := signaling.NewMemoryCallStore()
	onA := signaling.NewCoordinator(n, nil, issuer, 30*time.Millisecond, nil, signaling.WithCallStore(shared))
	onB := signaling.NewCoordinator(n, nil, issuer, time.Minute, nil, signaling.WithCallStore(shared))
	ctx := context.Background()

	grant, err := onA.Invite(ctx, "u1", "u2", models.CallVideo)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(n.events("u2", models.EventCallExpired)) == 1
	}, time.Second, 5*time.Millisecond)
	_, err = onB.Accept(ctx, "u2", grant.ChannelID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
