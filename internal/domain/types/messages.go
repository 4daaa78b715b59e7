package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// IVSize is the AES-GCM nonce length used by every envelope.
	IVSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

// Envelope is an authenticated symmetric ciphertext bound to exactly one
// shared secret.
type Envelope struct {
	IV         [IVSize]byte
	Ciphertext []byte
	Tag        [TagSize]byte
}

type envelopeJSON struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

// MarshalJSON encodes the envelope as {iv, content, tag} hex strings.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		IV:      hex.EncodeToString(e.IV[:]),
		Content: hex.EncodeToString(e.Ciphertext),
		Tag:     hex.EncodeToString(e.Tag[:]),
	})
}

// UnmarshalJSON decodes the {iv, content, tag} form. IV and tag must have
// their exact sizes.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var aux envelopeJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrInvalidEncoding, err)
	}
	iv, err := DecodeHex(aux.IV)
	if err != nil {
		return err
	}
	ct, err := DecodeHex(aux.Content)
	if err != nil {
		return err
	}
	tag, err := DecodeHex(aux.Tag)
	if err != nil {
		return err
	}
	if len(iv) != IVSize || len(tag) != TagSize {
		return fmt.Errorf("%w: envelope iv/tag is %d/%d bytes", ErrInvalidEncoding,
			len(iv), len(tag))
	}
	copy(e.IV[:], iv)
	copy(e.Tag[:], tag)
	e.Ciphertext = ct
	return nil
}

// MessageRecord is the persisted form of one message. It carries two
// independent (capsule, envelope) pairs so each participant can decrypt it
// with only their own private key.
type MessageRecord struct {
	ID                string    `json:"id"`
	Sender            Username  `json:"sender"`
	Receiver          Username  `json:"receiver"`
	RecipientCapsule  Capsule   `json:"recipientCapsule"`
	RecipientEnvelope Envelope  `json:"recipientEnvelope"`
	SenderCapsule     Capsule   `json:"senderCapsule"`
	SenderEnvelope    Envelope  `json:"senderEnvelope"`
	Timestamp         time.Time `json:"timestamp"`
}

// PairFor returns the (capsule, envelope) pair that me can decrypt.
func (r *MessageRecord) PairFor(me Username) (Capsule, Envelope) {
	if r.Sender == me {
		return r.SenderCapsule, r.SenderEnvelope
	}
	return r.RecipientCapsule, r.RecipientEnvelope
}

// HandshakeEvent announces a new peer-directed capsule.
type HandshakeEvent struct {
	From    Username `json:"from"`
	Capsule Capsule  `json:"capsule"`
}

// MessageEvent is a live message relayed to its receiver.
type MessageEvent struct {
	From     Username  `json:"from"`
	To       Username  `json:"to"`
	Envelope Envelope  `json:"envelope"`
	Capsule  Capsule   `json:"capsule"`
	Time     time.Time `json:"time"`
}

// OnlineEvent lists the users with a live relay connection.
type OnlineEvent struct {
	Users []Username `json:"users"`
}

// PresenceFrame is the unit exchanged over the presence relay connection.
type PresenceFrame struct {
	Type    EventType       `json:"type"`
	From    Username        `json:"from,omitempty"`
	To      Username        `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecryptedMessage is a message opened by its sender or receiver. Err is set
// when this particular record could not be decrypted.
type DecryptedMessage struct {
	ID        string    `json:"id,omitempty"`
	From      Username  `json:"from"`
	To        Username  `json:"to"`
	Plaintext []byte    `json:"plaintext"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// SealedMessage is a plaintext encrypted twice: once for the peer and once
// for the sender's own archival copy.
type SealedMessage struct {
	Generation        uint64
	RecipientCapsule  Capsule
	RecipientEnvelope Envelope
	SenderCapsule     Capsule
	SenderEnvelope    Envelope
}
