package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/companyzero/sntrup4591761"
)

type sntrupKEM struct{}

func (sntrupKEM) Name() string { return Sntrup4591761 }

func (sntrupKEM) Params() Params {
	return Params{
		PublicKeySize:    sntrup4591761.PublicKeySize,
		PrivateKeySize:   sntrup4591761.PrivateKeySize,
		CiphertextSize:   sntrup4591761.CiphertextSize,
		SharedSecretSize: len(sntrup4591761.SharedKey{}),
	}
}

func (sntrupKEM) GenerateKeyPair() ([]byte, []byte, error) {
	pk, sk, err := sntrup4591761.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	pub := append([]byte(nil), pk[:]...)
	priv := append([]byte(nil), sk[:]...)
	for i := range sk {
		sk[i] = 0
	}
	return pub, priv, nil
}

func (sntrupKEM) Encapsulate(pub []byte) ([]byte, []byte, error) {
	var pk sntrup4591761.PublicKey
	copy(pk[:], pub)
	ct, key, err := sntrup4591761.Encapsulate(rand.Reader, &pk)
	if err != nil {
		return nil, nil, err
	}
	secret := append([]byte(nil), key[:]...)
	for i := range key {
		key[i] = 0
	}
	return ct[:], secret, nil
}

func (sntrupKEM) Decapsulate(priv, ciphertext []byte) ([]byte, error) {
	var (
		sk sntrup4591761.PrivateKey
		ct sntrup4591761.Ciphertext
	)
	copy(sk[:], priv)
	copy(ct[:], ciphertext)
	defer func() {
		for i := range sk {
			sk[i] = 0
		}
	}()
	key, n := sntrup4591761.Decapsulate(&ct, &sk)
	if n != 1 {
		return nil, errors.New("sntrup4591761: invalid ciphertext")
	}
	secret := append([]byte(nil), key[:]...)
	for i := range key {
		key[i] = 0
	}
	return secret, nil
}
