package types

import "time"

// SessionStatus is the state of a conversation with a peer.
type SessionStatus int

const (
	// StatusDisconnected holds no peer and no secrets.
	StatusDisconnected SessionStatus = iota
	// StatusConnecting is negotiating generation 1 with the peer.
	StatusConnecting
	// StatusConnected has a current generation and armed rotation timers.
	StatusConnected
	// StatusRotating is connected while the next generation is negotiated.
	StatusRotating
)

// String returns the status name.
func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusRotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// SessionSnapshot is a read-only view of a session. It never carries secrets.
type SessionSnapshot struct {
	Peer   Username      `json:"peer"`
	Status SessionStatus `json:"status"`
	// Generation numbers the current outbound and self-directed pair,
	// which are always replaced together. Zero without a session.
	Generation      uint64    `json:"generation"`
	OutboundCapsule Capsule   `json:"outbound_capsule,omitempty"`
	InboundCapsule  Capsule   `json:"inbound_capsule,omitempty"`
	HasPending      bool      `json:"has_pending"`
	HasInbound      bool      `json:"has_inbound"`
	ActiveSince     time.Time `json:"active_since"`
}
