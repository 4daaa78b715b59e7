package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/identity"
	"pqchat/internal/store"
	"pqchat/internal/testutils"
)

const goodPass = "Correct-Horse-42"

func newService(t *testing.T) (*identity.Service, *testutils.Network, string) {
	t.Helper()
	engine, err := crypto.NewEngine(crypto.MLKEM768)
	require.NoError(t, err)
	home := t.TempDir()
	net := testutils.NewNetwork()
	svc := identity.New(engine, store.NewIdentityFileStore(home, engine.Name()), net,
		testutils.TestLoggerSys(t, "IDNT"))
	return svc, net, home
}

func TestRegisterPublishesPublicKeyOnly(t *testing.T) {
	svc, net, _ := newService(t)
	ctx := context.Background()

	id, fp, err := svc.Register(ctx, goodPass, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.Username("alice"), id.Username)
	require.Equal(t, crypto.Fingerprint(id.PublicKey), fp)

	pk, err := net.PublicKey(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, id.PublicKey, pk)

	loaded, err := svc.LoadIdentity(goodPass)
	require.NoError(t, err)
	require.Equal(t, id, loaded)

	gotFP, err := svc.FingerprintIdentity(goodPass)
	require.NoError(t, err)
	require.Equal(t, fp, gotFP)
}

func TestRegisterRejectsWeakPassphrase(t *testing.T) {
	svc, net, _ := newService(t)
	for _, pass := range []string{"short", "alllowercase-123", "NoDigitsHere!!", "NoSymbols12345"} {
		_, _, err := svc.Register(context.Background(), pass, "alice")
		require.ErrorIs(t, err, identity.ErrWeakPassphrase, pass)
	}
	users, err := net.Users(context.Background())
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestRegisterRejectsBadUsername(t *testing.T) {
	svc, _, _ := newService(t)
	for _, u := range []domain.Username{"", "a/b", "two words"} {
		_, _, err := svc.Register(context.Background(), goodPass, u)
		require.ErrorIs(t, err, identity.ErrInvalidUsername)
	}
}

func TestLoadWrongPassphrase(t *testing.T) {
	svc, _, _ := newService(t)
	_, _, err := svc.Register(context.Background(), goodPass, "alice")
	require.NoError(t, err)

	_, err = svc.LoadIdentity("Wrong-Horse-42")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}
