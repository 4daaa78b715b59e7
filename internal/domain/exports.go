package domain

import (
	interfaces "pqchat/internal/domain/interfaces"
	types "pqchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username          = types.Username
	Fingerprint       = types.Fingerprint
	EventType         = types.EventType
	PublicKey         = types.PublicKey
	PrivateKey        = types.PrivateKey
	Capsule           = types.Capsule
	SharedSecret      = types.SharedSecret
	Identity          = types.Identity
	KeyDirectoryEntry = types.KeyDirectoryEntry
	AccountProfile    = types.AccountProfile
	Envelope          = types.Envelope
	MessageRecord     = types.MessageRecord
	SealedMessage     = types.SealedMessage
	HandshakeEvent    = types.HandshakeEvent
	MessageEvent      = types.MessageEvent
	OnlineEvent       = types.OnlineEvent
	PresenceFrame     = types.PresenceFrame
	DecryptedMessage  = types.DecryptedMessage
	SessionStatus     = types.SessionStatus
	SessionSnapshot   = types.SessionSnapshot
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService = interfaces.IdentityService
	SessionService  = interfaces.SessionService
	MessageService  = interfaces.MessageService
	KeyDirectory    = interfaces.KeyDirectory
	PresenceRelay   = interfaces.PresenceRelay
	MessageStore    = interfaces.MessageStore
	IdentityStore   = interfaces.IdentityStore
	AccountStore    = interfaces.AccountStore
)

const (
	EventHandshake = types.EventHandshake
	EventMessage   = types.EventMessage
	EventOnline    = types.EventOnline

	StatusDisconnected = types.StatusDisconnected
	StatusConnecting   = types.StatusConnecting
	StatusConnected    = types.StatusConnected
	StatusRotating     = types.StatusRotating

	SharedSecretSize = types.SharedSecretSize
	IVSize           = types.IVSize
	TagSize          = types.TagSize
)

// Sentinel errors shared across packages.
var (
	ErrInvalidEncoding  = types.ErrInvalidEncoding
	ErrNotRegistered    = types.ErrNotRegistered
	ErrRelayUnavailable = types.ErrRelayUnavailable
	ErrNoSession        = types.ErrNoSession
	ErrPeerMismatch     = types.ErrPeerMismatch
)

// DecodeHex decodes a canonical hex string, failing with ErrInvalidEncoding.
func DecodeHex(s string) ([]byte, error) { return types.DecodeHex(s) }
