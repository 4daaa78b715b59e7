package types

// Username identifies a registered user on the key directory and presence relay.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// EventType names a presence relay event.
type EventType string

const (
	// EventHandshake announces a freshly encapsulated capsule to a peer.
	EventHandshake EventType = "handshake"
	// EventMessage carries a live message envelope to a peer.
	EventMessage EventType = "message"
	// EventOnline carries the list of users currently connected to the relay.
	EventOnline EventType = "online"
)
