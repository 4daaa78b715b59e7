package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"pqchat/internal/domain"
	"pqchat/internal/util/memzero"
)

const idFilename = "identity.json.enc"

// ErrNoIdentity is returned when no identity has been saved yet.
var ErrNoIdentity = errors.New("no identity found; run register first")

// ErrKEMMismatch is returned when the stored identity was generated for a
// different KEM than the one configured.
var ErrKEMMismatch = errors.New("identity was created for a different kem")

// IdentityFileStore persists the local identity to disk, sealed under a
// passphrase.
type IdentityFileStore struct {
	dir string
	kem string
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir for keys of
// the named KEM.
func NewIdentityFileStore(dir, kem string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, kem: kem}
}

// SaveIdentity writes the encrypted identity to disk.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)
	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, s.kem, raw, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, idFilename), ct, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := readFile(filepath.Join(s.dir, idFilename))
	if err != nil {
		return domain.Identity{}, err
	}
	if !ok {
		return domain.Identity{}, ErrNoIdentity
	}
	pt, kem, err := decrypt(passphrase, b)
	if err != nil {
		return domain.Identity{}, err
	}
	defer memzero.Zero(pt)
	if kem != s.kem {
		return domain.Identity{}, fmt.Errorf("%w: have %q, configured %q", ErrKEMMismatch, kem, s.kem)
	}
	var id domain.Identity
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
