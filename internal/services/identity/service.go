package identity

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/decred/slog"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrInvalidUsername is returned for an empty or malformed username.
	ErrInvalidUsername = errors.New("username must be non-empty and contain no '/' or whitespace")
)

// Service manages identity key creation and access using a backing store.
//
// The identity is a single KEM key pair. The private half only ever exists in
// memory and in the passphrase-sealed identity file; the key directory only
// receives the public half.
type Service struct {
	engine    *crypto.Engine
	store     domain.IdentityStore
	directory domain.KeyDirectory
	log       slog.Logger
}

// New returns an identity service backed by the given store and directory.
func New(
	engine *crypto.Engine,
	store domain.IdentityStore,
	directory domain.KeyDirectory,
	log slog.Logger,
) *Service {
	if log == nil {
		log = slog.Disabled
	}
	return &Service{engine: engine, store: store, directory: directory, log: log}
}

// Register creates a new identity for username, saves it encrypted with the
// passphrase and publishes its public key. It returns the identity plus a
// short fingerprint of the public key.
func (s *Service) Register(
	ctx context.Context,
	passphrase string,
	username domain.Username,
) (domain.Identity, domain.Fingerprint, error) {
	if !ValidUsername(username) {
		return domain.Identity{}, "", ErrInvalidUsername
	}
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}

	pub, priv, err := s.engine.GenerateIdentity()
	if err != nil {
		return domain.Identity{}, "", err
	}
	id := domain.Identity{Username: username, PublicKey: pub, PrivateKey: priv}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		priv.Wipe()
		return domain.Identity{}, "", fmt.Errorf("save identity: %w", err)
	}
	fp := crypto.Fingerprint(pub)
	s.log.Infof("Generated %s identity for %s (fingerprint %s)", s.engine.Name(), username, fp)

	if err := s.Publish(ctx, id); err != nil {
		return id, fp, err
	}
	return id, fp, nil
}

// Publish sends the public half of id to the key directory.
func (s *Service) Publish(ctx context.Context, id domain.Identity) error {
	entry := domain.KeyDirectoryEntry{Username: id.Username, PublicKey: id.PublicKey}
	if err := s.directory.Publish(ctx, entry); err != nil {
		return fmt.Errorf("publish public key: %w", err)
	}
	s.log.Debugf("Published public key of %s", id.Username)
	return nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns a short fingerprint of the local public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	id.PrivateKey.Wipe()
	return crypto.Fingerprint(id.PublicKey), nil
}

// ValidUsername reports whether u can be used as a username.
func ValidUsername(u domain.Username) bool {
	if u == "" {
		return false
	}
	for _, r := range u {
		if r == '/' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
