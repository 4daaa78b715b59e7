package types

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"pqchat/internal/util/memzero"
)

// SharedSecretSize is the length of every shared secret, used directly as an
// AES-256 key.
const SharedSecretSize = 32

// PublicKey is a KEM public key. Its JSON form is a lowercase hex string.
type PublicKey []byte

// MarshalJSON encodes the key as hex.
func (k PublicKey) MarshalJSON() ([]byte, error) { return marshalHex(k) }

// UnmarshalJSON decodes a hex string, rejecting any other shape.
func (k *PublicKey) UnmarshalJSON(b []byte) error { return unmarshalHex(b, (*[]byte)(k)) }

// String returns the hex form of the key.
func (k PublicKey) String() string { return hex.EncodeToString(k) }

// PrivateKey is a KEM private key. It never leaves its owner; the only place
// it is ever serialised is the passphrase-sealed local identity file.
type PrivateKey []byte

// MarshalJSON encodes the key as hex.
func (k PrivateKey) MarshalJSON() ([]byte, error) { return marshalHex(k) }

// UnmarshalJSON decodes a hex string, rejecting any other shape.
func (k *PrivateKey) UnmarshalJSON(b []byte) error { return unmarshalHex(b, (*[]byte)(k)) }

// Wipe zeroes the key in place.
func (k PrivateKey) Wipe() { wipe(k) }

// Capsule is the KEM ciphertext produced by one encapsulation. It is the only
// means of regenerating the secret it was created with, so it travels with
// every envelope encrypted under that secret.
type Capsule []byte

// MarshalJSON encodes the capsule as hex.
func (c Capsule) MarshalJSON() ([]byte, error) { return marshalHex(c) }

// UnmarshalJSON decodes a hex string, rejecting any other shape.
func (c *Capsule) UnmarshalJSON(b []byte) error { return unmarshalHex(b, (*[]byte)(c)) }

// Equal reports whether c and o hold the same bytes.
func (c Capsule) Equal(o Capsule) bool {
	return len(c) == len(o) && subtle.ConstantTimeCompare(c, o) == 1
}

// SharedSecret is a KEM shared secret. It is never persisted and has no
// serialised form.
type SharedSecret [SharedSecretSize]byte

// Wipe zeroes the secret in place.
func (s *SharedSecret) Wipe() {
	if s == nil {
		return
	}
	wipe(s[:])
}

// IsZero reports whether the secret is all zero bytes.
func (s *SharedSecret) IsZero() bool {
	var zero SharedSecret
	return subtle.ConstantTimeCompare(s[:], zero[:]) == 1
}

// DecodeHex decodes a canonical hex string.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return b, nil
}

func marshalHex(b []byte) ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func unmarshalHex(data []byte, out *[]byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: want hex string", ErrInvalidEncoding)
	}
	b, err := DecodeHex(s)
	if err != nil {
		return err
	}
	*out = b
	return nil
}

func wipe(b []byte) { memzero.Zero(b) }
