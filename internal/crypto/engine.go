package crypto

import (
	"fmt"

	"pqchat/internal/domain"
	"pqchat/internal/util/memzero"
)

// Engine performs key generation and exchange for one KEM. Its parameters are
// resolved once when it is built and never change afterwards.
type Engine struct {
	kem    KEM
	params Params
}

// NewEngine resolves the KEM registered under name.
func NewEngine(name string) (*Engine, error) {
	k, err := LookupKEM(name)
	if err != nil {
		return nil, err
	}
	return NewEngineWithKEM(k)
}

// NewEngineWithKEM builds an engine around an arbitrary KEM implementation.
// The KEM must produce shared secrets usable as AES-256 keys.
func NewEngineWithKEM(k KEM) (*Engine, error) {
	p := k.Params()
	if p.SharedSecretSize != domain.SharedSecretSize {
		return nil, fmt.Errorf("kem %s: shared secret is %d bytes, want %d",
			k.Name(), p.SharedSecretSize, domain.SharedSecretSize)
	}
	if p.PublicKeySize <= 0 || p.PrivateKeySize <= 0 || p.CiphertextSize <= 0 {
		return nil, fmt.Errorf("kem %s: invalid parameters %+v", k.Name(), p)
	}
	return &Engine{kem: k, params: p}, nil
}

// Name returns the canonical name of the engine's KEM.
func (e *Engine) Name() string { return e.kem.Name() }

// Params returns the KEM lengths.
func (e *Engine) Params() Params { return e.params }

// GenerateIdentity creates a fresh long-term key pair. On failure both keys
// are nil.
func (e *Engine) GenerateIdentity() (domain.PublicKey, domain.PrivateKey, error) {
	pub, priv, err := e.kem.GenerateKeyPair()
	if err != nil {
		memzero.Zero(priv)
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGen, err)
	}
	if len(pub) != e.params.PublicKeySize || len(priv) != e.params.PrivateKeySize {
		memzero.Zero(priv)
		return nil, nil, fmt.Errorf("%w: got %d/%d byte keys", ErrKeyGen, len(pub), len(priv))
	}
	return domain.PublicKey(pub), domain.PrivateKey(priv), nil
}

// PerformKeyExchange encapsulates a fresh secret to peer. The returned
// capsule is the only way to regenerate the secret.
func (e *Engine) PerformKeyExchange(peer domain.PublicKey) (domain.Capsule, domain.SharedSecret, error) {
	var ss domain.SharedSecret
	if len(peer) != e.params.PublicKeySize {
		return nil, ss, fmt.Errorf("%w: public key is %d bytes, want %d",
			ErrInvalidKeyLength, len(peer), e.params.PublicKeySize)
	}
	ct, secret, err := e.kem.Encapsulate(peer)
	defer memzero.Zero(secret)
	if err != nil {
		return nil, ss, fmt.Errorf("%w: %v", ErrEncapsulation, err)
	}
	if len(ct) != e.params.CiphertextSize || len(secret) != domain.SharedSecretSize {
		return nil, ss, fmt.Errorf("%w: got %d byte capsule", ErrEncapsulation, len(ct))
	}
	copy(ss[:], secret)
	return domain.Capsule(ct), ss, nil
}

// RecoverSessionKey regenerates the secret carried by capsule using the
// private key it was encapsulated to.
func (e *Engine) RecoverSessionKey(capsule domain.Capsule, priv domain.PrivateKey) (domain.SharedSecret, error) {
	var ss domain.SharedSecret
	if len(capsule) != e.params.CiphertextSize {
		return ss, fmt.Errorf("%w: capsule is %d bytes, want %d",
			ErrInvalidKeyLength, len(capsule), e.params.CiphertextSize)
	}
	if len(priv) != e.params.PrivateKeySize {
		return ss, fmt.Errorf("%w: private key is %d bytes, want %d",
			ErrInvalidKeyLength, len(priv), e.params.PrivateKeySize)
	}
	secret, err := e.kem.Decapsulate(priv, capsule)
	defer memzero.Zero(secret)
	if err != nil {
		return ss, fmt.Errorf("%w: %v", ErrDecapsulation, err)
	}
	if len(secret) != domain.SharedSecretSize {
		return ss, fmt.Errorf("%w: got %d byte secret", ErrDecapsulation, len(secret))
	}
	copy(ss[:], secret)
	return ss, nil
}
