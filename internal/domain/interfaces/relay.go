package interfaces

import (
	"context"

	domaintypes "pqchat/internal/domain/types"
)

// KeyDirectory publishes and serves public keys. It never sees private keys.
type KeyDirectory interface {
	Publish(ctx context.Context, entry domaintypes.KeyDirectoryEntry) error
	// PublicKey returns ErrNotRegistered when username has no key.
	PublicKey(ctx context.Context, username domaintypes.Username) (domaintypes.PublicKey, error)
	Users(ctx context.Context) ([]domaintypes.Username, error)
}

// PresenceRelay delivers events to users with a live connection. Delivery is
// best effort: a target without a connection yields ErrRelayUnavailable and
// nothing is queued.
type PresenceRelay interface {
	Deliver(
		ctx context.Context,
		to domaintypes.Username,
		eventType domaintypes.EventType,
		payload any,
	) error
	Events() <-chan domaintypes.PresenceFrame
}

// MessageStore durably keeps dual-envelope message records.
type MessageStore interface {
	Append(ctx context.Context, record domaintypes.MessageRecord) error
	// Query returns every record exchanged between a and b, oldest first.
	Query(ctx context.Context, a, b domaintypes.Username) ([]domaintypes.MessageRecord, error)
	DeleteAll(ctx context.Context, a, b domaintypes.Username) error
}
