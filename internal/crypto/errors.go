package crypto

import (
	"errors"

	"pqchat/internal/domain"
)

var (
	// ErrKeyGen reports that the KEM could not produce a key pair.
	ErrKeyGen = errors.New("key generation failed")
	// ErrInvalidKeyLength reports a key or capsule whose length does not
	// match the active KEM parameters.
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrEncapsulation reports a failed encapsulation.
	ErrEncapsulation = errors.New("encapsulation failed")
	// ErrDecapsulation reports a failed decapsulation.
	ErrDecapsulation = errors.New("decapsulation failed")
	// ErrIntegrity reports an envelope that failed authentication.
	ErrIntegrity = errors.New("envelope integrity check failed")
	// ErrUnknownKEM reports a KEM name with no registered implementation.
	ErrUnknownKEM = errors.New("unknown kem")
	// ErrInvalidEncoding reports malformed hex in a capsule, key or
	// envelope field.
	ErrInvalidEncoding = domain.ErrInvalidEncoding
)
