package store

import (
	"path/filepath"
	"sync"

	"pqchat/internal/domain"
)

const accountFile = "account.json"

// AccountFileStore persists the account profile of the local identity.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccountProfile stores or replaces the profile.
func (s *AccountFileStore) SaveAccountProfile(profile domain.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(filepath.Join(s.dir, accountFile), profile, 0o600)
}

// LoadAccountProfile returns the saved profile and whether one exists.
func (s *AccountFileStore) LoadAccountProfile() (domain.AccountProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profile domain.AccountProfile
	ok, err := readJSON(filepath.Join(s.dir, accountFile), &profile)
	if err != nil || !ok {
		return domain.AccountProfile{}, false, err
	}
	return profile, true, nil
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)
