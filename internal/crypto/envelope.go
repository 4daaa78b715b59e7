package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"pqchat/internal/domain"
)

func newGCM(key *domain.SharedSecret) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, domain.TagSize)
}

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(plaintext []byte, key *domain.SharedSecret) (domain.Envelope, error) {
	var env domain.Envelope
	aead, err := newGCM(key)
	if err != nil {
		return env, fmt.Errorf("envelope cipher: %w", err)
	}
	if _, err := rand.Read(env.IV[:]); err != nil {
		return env, fmt.Errorf("envelope iv: %w", err)
	}
	sealed := aead.Seal(nil, env.IV[:], plaintext, nil)
	n := len(sealed) - domain.TagSize
	env.Ciphertext = sealed[:n:n]
	copy(env.Tag[:], sealed[n:])
	return env, nil
}

// Decrypt opens env with key. Any authentication failure is ErrIntegrity and
// yields no plaintext.
func Decrypt(env domain.Envelope, key *domain.SharedSecret) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("envelope cipher: %w", err)
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+domain.TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag[:]...)
	pt, err := aead.Open(nil, env.IV[:], sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return pt, nil
}
