package crypto

import (
	"fmt"
	"sort"
	"strings"
)

// Params are the byte lengths fixed by a KEM.
type Params struct {
	PublicKeySize    int
	PrivateKeySize   int
	CiphertextSize   int
	SharedSecretSize int
}

// KEM is a key encapsulation mechanism operating on serialised keys.
type KEM interface {
	Name() string
	Params() Params
	GenerateKeyPair() (pub, priv []byte, err error)
	Encapsulate(pub []byte) (ciphertext, secret []byte, err error)
	Decapsulate(priv, ciphertext []byte) (secret []byte, err error)
}

const (
	// MLKEM768 is the default scheme.
	MLKEM768 = "ML-KEM-768"
	// Sntrup4591761 is Streamlined NTRU Prime 4591^761.
	Sntrup4591761 = "sntrup4591761"
)

var kems = map[string]func() KEM{
	strings.ToLower(MLKEM768):      func() KEM { return newMLKEM768() },
	"mlkem768":                     func() KEM { return newMLKEM768() },
	strings.ToLower(Sntrup4591761): func() KEM { return sntrupKEM{} },
}

// LookupKEM returns the KEM registered under name. Matching is case
// insensitive and an empty name selects ML-KEM-768.
func LookupKEM(name string) (KEM, error) {
	if name == "" {
		name = MLKEM768
	}
	mk, ok := kems[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKEM, name)
	}
	return mk(), nil
}

// KEMNames lists the canonical names of the supported schemes.
func KEMNames() []string {
	names := []string{MLKEM768, Sntrup4591761}
	sort.Strings(names)
	return names
}
