package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"pqchat/internal/util/memzero"
)

const (
	// The current supported version of the encrypted blob format stored on disk.
	keystoreFormatVersion = 1
)

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed identity has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

// blob is the on-disk JSON structure holding the ciphertext and KDF parameters.
type blob struct {
	V      int    `json:"v"`
	KEM    string `json:"kem,omitempty"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

func sealKey(passphrase string, salt []byte, N, r, p int) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
}

// encrypt derives a key from passphrase and seals raw into a JSON blob. The
// KEM name is bound as associated data along with the salt.
func encrypt(passphrase, kem string, raw []byte, N, r, p int) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := sealKey(passphrase, salt[:], N, r, p)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; salt-bound key is never reused
	ct := aead.Seal(nil, nonce[:], raw, additionalData(salt[:], kem))

	return json.Marshal(blob{
		V:      keystoreFormatVersion,
		KEM:    kem,
		Salt:   salt[:],
		N:      N,
		R:      r,
		P:      p,
		Cipher: ct,
	})
}

// decrypt opens the JSON blob using a key derived from passphrase and
// returns the plaintext with the KEM it was sealed for.
func decrypt(passphrase string, b []byte) ([]byte, string, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, "", err
	}
	if bl.V > keystoreFormatVersion {
		return nil, "", fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	key, err := sealKey(passphrase, bl.Salt, bl.N, bl.R, bl.P)
	if err != nil {
		return nil, "", err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, "", err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, additionalData(bl.Salt, bl.KEM))
	if err != nil {
		return nil, "", ErrWrongPassphrase
	}
	return pt, bl.KEM, nil
}

func additionalData(salt []byte, kem string) []byte {
	ad := make([]byte, 0, len(salt)+len(kem))
	ad = append(ad, salt...)
	return append(ad, kem...)
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
