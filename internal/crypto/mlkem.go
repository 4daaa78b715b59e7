package crypto

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

type mlkemKEM struct {
	scheme kem.Scheme
}

func newMLKEM768() mlkemKEM { return mlkemKEM{scheme: mlkem768.Scheme()} }

func (m mlkemKEM) Name() string { return MLKEM768 }

func (m mlkemKEM) Params() Params {
	return Params{
		PublicKeySize:    m.scheme.PublicKeySize(),
		PrivateKeySize:   m.scheme.PrivateKeySize(),
		CiphertextSize:   m.scheme.CiphertextSize(),
		SharedSecretSize: m.scheme.SharedKeySize(),
	}
}

func (m mlkemKEM) GenerateKeyPair() ([]byte, []byte, error) {
	pk, sk, err := m.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (m mlkemKEM) Encapsulate(pub []byte) ([]byte, []byte, error) {
	pk, err := m.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	return m.scheme.Encapsulate(pk)
}

func (m mlkemKEM) Decapsulate(priv, ciphertext []byte) ([]byte, error) {
	sk, err := m.scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return m.scheme.Decapsulate(sk, ciphertext)
}
