package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

func engines(t *testing.T) []*crypto.Engine {
	t.Helper()
	var out []*crypto.Engine
	for _, name := range crypto.KEMNames() {
		e, err := crypto.NewEngine(name)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestKeyExchangeRecoversSameSecret(t *testing.T) {
	for _, e := range engines(t) {
		t.Run(e.Name(), func(t *testing.T) {
			pub, priv, err := e.GenerateIdentity()
			require.NoError(t, err)
			require.Len(t, pub, e.Params().PublicKeySize)
			require.Len(t, priv, e.Params().PrivateKeySize)

			capsule, ss, err := e.PerformKeyExchange(pub)
			require.NoError(t, err)
			require.Len(t, capsule, e.Params().CiphertextSize)
			require.False(t, ss.IsZero())

			got, err := e.RecoverSessionKey(capsule, priv)
			require.NoError(t, err)
			require.Equal(t, ss, got)

			capsule2, ss2, err := e.PerformKeyExchange(pub)
			require.NoError(t, err)
			require.False(t, capsule.Equal(capsule2))
			require.NotEqual(t, ss, ss2)
		})
	}
}

func TestWrongPrivateKeyDoesNotRecover(t *testing.T) {
	e, err := crypto.NewEngine(crypto.MLKEM768)
	require.NoError(t, err)
	pubA, _, err := e.GenerateIdentity()
	require.NoError(t, err)
	_, privB, err := e.GenerateIdentity()
	require.NoError(t, err)

	capsule, ss, err := e.PerformKeyExchange(pubA)
	require.NoError(t, err)

	// ML-KEM rejects implicitly: a mismatched key yields an unrelated secret.
	got, err := e.RecoverSessionKey(capsule, privB)
	require.NoError(t, err)
	require.NotEqual(t, ss, got)
}

func TestInvalidKeyLengths(t *testing.T) {
	e, err := crypto.NewEngine("")
	require.NoError(t, err)
	require.Equal(t, crypto.MLKEM768, e.Name())

	pub, priv, err := e.GenerateIdentity()
	require.NoError(t, err)

	capsule, ss, err := e.PerformKeyExchange(pub[:len(pub)-1])
	require.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
	require.Nil(t, capsule)
	require.True(t, ss.IsZero())

	capsule, _, err = e.PerformKeyExchange(pub)
	require.NoError(t, err)

	_, err = e.RecoverSessionKey(capsule[1:], priv)
	require.ErrorIs(t, err, crypto.ErrInvalidKeyLength)

	_, err = e.RecoverSessionKey(capsule, priv[:10])
	require.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}

func TestUnknownKEM(t *testing.T) {
	_, err := crypto.NewEngine("rsa-kem")
	require.ErrorIs(t, err, crypto.ErrUnknownKEM)

	e, err := crypto.NewEngine("SNTRUP4591761")
	require.NoError(t, err)
	require.Equal(t, crypto.Sntrup4591761, e.Name())
}

type brokenKEM struct {
	params crypto.Params
	fail   error
}

func (b brokenKEM) Name() string                               { return "broken" }
func (b brokenKEM) Params() crypto.Params                      { return b.params }
func (b brokenKEM) GenerateKeyPair() ([]byte, []byte, error)   { return nil, nil, b.fail }
func (b brokenKEM) Encapsulate([]byte) ([]byte, []byte, error) { return nil, nil, b.fail }
func (b brokenKEM) Decapsulate([]byte, []byte) ([]byte, error) { return nil, b.fail }

func TestPrimitiveFailures(t *testing.T) {
	k := brokenKEM{
		params: crypto.Params{PublicKeySize: 4, PrivateKeySize: 4, CiphertextSize: 4, SharedSecretSize: 32},
		fail:   errors.New("no entropy"),
	}
	e, err := crypto.NewEngineWithKEM(k)
	require.NoError(t, err)

	pub, priv, err := e.GenerateIdentity()
	require.ErrorIs(t, err, crypto.ErrKeyGen)
	require.Nil(t, pub)
	require.Nil(t, priv)

	_, ss, err := e.PerformKeyExchange(make(domain.PublicKey, 4))
	require.ErrorIs(t, err, crypto.ErrEncapsulation)
	require.True(t, ss.IsZero())

	_, err = e.RecoverSessionKey(make(domain.Capsule, 4), make(domain.PrivateKey, 4))
	require.ErrorIs(t, err, crypto.ErrDecapsulation)
}

func TestEngineRejectsShortSecrets(t *testing.T) {
	k := brokenKEM{params: crypto.Params{PublicKeySize: 4, PrivateKeySize: 4, CiphertextSize: 4, SharedSecretSize: 16}}
	_, err := crypto.NewEngineWithKEM(k)
	require.Error(t, err)
}

func newSecret(t *testing.T) domain.SharedSecret {
	t.Helper()
	e, err := crypto.NewEngine(crypto.MLKEM768)
	require.NoError(t, err)
	pub, _, err := e.GenerateIdentity()
	require.NoError(t, err)
	_, ss, err := e.PerformKeyExchange(pub)
	require.NoError(t, err)
	return ss
}

func TestEnvelopeRoundTrip(t *testing.T) {
	key := newSecret(t)
	for _, msg := range [][]byte{nil, []byte("hi"), bytes.Repeat([]byte("x"), 4096)} {
		env, err := crypto.Encrypt(msg, &key)
		require.NoError(t, err)
		require.Len(t, env.Ciphertext, len(msg))

		got, err := crypto.Decrypt(env, &key)
		require.NoError(t, err)
		require.True(t, bytes.Equal(msg, got))
	}
}

func TestEnvelopeFreshIV(t *testing.T) {
	key := newSecret(t)
	a, err := crypto.Encrypt([]byte("same"), &key)
	require.NoError(t, err)
	b, err := crypto.Encrypt([]byte("same"), &key)
	require.NoError(t, err)
	require.NotEqual(t, a.IV, b.IV)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestEnvelopeTamperDetected(t *testing.T) {
	key := newSecret(t)
	env, err := crypto.Encrypt([]byte("attack at dawn"), &key)
	require.NoError(t, err)

	clone := func() domain.Envelope {
		c := env
		c.Ciphertext = append([]byte(nil), env.Ciphertext...)
		return c
	}

	tampered := []domain.Envelope{clone(), clone(), clone()}
	tampered[0].Ciphertext[0] ^= 0x01
	tampered[1].IV[5] ^= 0x80
	tampered[2].Tag[15] ^= 0x01

	for i, bad := range tampered {
		pt, err := crypto.Decrypt(bad, &key)
		require.ErrorIs(t, err, crypto.ErrIntegrity, "case %d", i)
		require.Nil(t, pt)
	}

	other := newSecret(t)
	_, err = crypto.Decrypt(env, &other)
	require.ErrorIs(t, err, crypto.ErrIntegrity)
}

func TestFingerprint(t *testing.T) {
	fp := crypto.Fingerprint(domain.PublicKey("key"))
	require.Len(t, fp.String(), 20)
	require.Equal(t, fp, crypto.Fingerprint(domain.PublicKey("key")))
	require.NotEqual(t, fp, crypto.Fingerprint(domain.PublicKey("kez")))
}
