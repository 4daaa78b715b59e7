package interfaces

import (
	"context"

	domaintypes "pqchat/internal/domain/types"
)

// IdentityService creates, publishes and inspects your identity keys.
type IdentityService interface {
	Register(
		ctx context.Context,
		passphrase string,
		username domaintypes.Username,
	) (domaintypes.Identity, domaintypes.Fingerprint, error)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// SessionService owns the conversation with the active peer.
type SessionService interface {
	Connect(ctx context.Context, peer domaintypes.Username) error
	Disconnect()
	Seal(ctx context.Context, peer domaintypes.Username, plaintext []byte) (domaintypes.SealedMessage, error)
	OpenInbound(ctx context.Context, ev domaintypes.MessageEvent) ([]byte, error)
	HandleHandshake(ctx context.Context, ev domaintypes.HandshakeEvent)
	Snapshot() domaintypes.SessionSnapshot
}

// MessageService encrypts, stores, relays and decrypts messages.
type MessageService interface {
	Send(ctx context.Context, peer domaintypes.Username, plaintext []byte) error
	History(ctx context.Context, peer domaintypes.Username) ([]domaintypes.DecryptedMessage, error)
	Purge(ctx context.Context, peer domaintypes.Username) error
}
