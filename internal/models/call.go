package models

import "time"

// CallKind is audio or video.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

// CallState is the state of one call negotiation.
type CallState string

const (
	CallInvited   CallState = "invited"
	CallAccepted  CallState = "accepted"
	CallRejected  CallState = "rejected"
	CallCancelled CallState = "cancelled"
	CallExpired   CallState = "expired"
	CallEnded     CallState = "ended"
)

var callTransitions = map[CallState][]CallState{
	CallInvited:  {CallAccepted, CallRejected, CallCancelled, CallExpired},
	CallAccepted: {CallEnded},
}

// Terminal reports whether no transition leaves s.
func (s CallState) Terminal() bool {
	return len(callTransitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to CallState) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CallSession is the ephemeral state of one call between two identities.
// It is never persisted.
type CallSession struct {
	ChannelID   string    `json:"channelId"`
	InitiatorID string    `json:"initiatorId"`
	TargetID    string    `json:"targetId"`
	Kind        CallKind  `json:"kind"`
	State       CallState `json:"state"`
	InvitedAt   time.Time `json:"invitedAt"`
	AcceptedAt  time.Time `json:"acceptedAt,omitempty"`
}

// Involves reports whether identity is the initiator or the target.
func (c *CallSession) Involves(identity string) bool {
	return c.InitiatorID == identity || c.TargetID == identity
}

// Counterpart returns the other party of the call.
func (c *CallSession) Counterpart(identity string) string {
	if c.InitiatorID == identity {
		return c.TargetID
	}
	return c.InitiatorID
}
