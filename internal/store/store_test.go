package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pqchat/internal/domain"
	"pqchat/internal/store"
)

func testIdentity() domain.Identity {
	return domain.Identity{
		Username:   "alice",
		PublicKey:  domain.PublicKey{1, 2, 3},
		PrivateKey: domain.PrivateKey{4, 5, 6},
	}
}

func TestIdentity_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	var ids domain.IdentityStore = store.NewIdentityFileStore(home, "ML-KEM-768")

	id := testIdentity()
	require.NoError(t, ids.SaveIdentity("correct horse", id))

	got, err := ids.LoadIdentity("correct horse")
	require.NoError(t, err)
	require.Equal(t, id, got)

	info, err := os.Stat(filepath.Join(home, "identity.json.enc"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir(), "ML-KEM-768")
	require.NoError(t, ids.SaveIdentity("correct", testIdentity()))

	_, err := ids.LoadIdentity("wrong")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_Missing(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir(), "ML-KEM-768")
	_, err := ids.LoadIdentity("any")
	require.ErrorIs(t, err, store.ErrNoIdentity)
}

func TestIdentity_KEMMismatch(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, store.NewIdentityFileStore(home, "ML-KEM-768").SaveIdentity("pw", testIdentity()))

	_, err := store.NewIdentityFileStore(home, "sntrup4591761").LoadIdentity("pw")
	require.ErrorIs(t, err, store.ErrKEMMismatch)
}

func TestAccountProfile(t *testing.T) {
	accounts := store.NewAccountFileStore(filepath.Join(t.TempDir(), "nested"))

	_, ok, err := accounts.LoadAccountProfile()
	require.NoError(t, err)
	require.False(t, ok)

	p := domain.AccountProfile{ServerURL: "http://relay", Username: "alice", KEM: "ML-KEM-768"}
	require.NoError(t, accounts.SaveAccountProfile(p))

	got, ok, err := accounts.LoadAccountProfile()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}

func openDB(t *testing.T) *store.RelayDB {
	t.Helper()
	db, err := store.OpenRelayDB(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	dir := openDB(t).Directory()

	_, err := dir.PublicKey(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrNotRegistered)

	require.NoError(t, dir.Publish(ctx, domain.KeyDirectoryEntry{Username: "bob", PublicKey: domain.PublicKey{9}}))
	require.NoError(t, dir.Publish(ctx, domain.KeyDirectoryEntry{Username: "alice", PublicKey: domain.PublicKey{7}}))
	require.NoError(t, dir.Publish(ctx, domain.KeyDirectoryEntry{Username: "bob", PublicKey: domain.PublicKey{8}}))

	pk, err := dir.PublicKey(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.PublicKey{8}, pk)

	users, err := dir.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Username{"alice", "bob"}, users)

	require.ErrorIs(t, dir.Publish(ctx, domain.KeyDirectoryEntry{Username: "a/b", PublicKey: domain.PublicKey{1}}),
		store.ErrInvalidUsername)
	require.Error(t, dir.Publish(ctx, domain.KeyDirectoryEntry{Username: "carol"}))
}

func record(from, to domain.Username, at time.Time, b byte) domain.MessageRecord {
	return domain.MessageRecord{
		Sender:            from,
		Receiver:          to,
		RecipientCapsule:  domain.Capsule{b},
		RecipientEnvelope: domain.Envelope{Ciphertext: []byte{b}},
		SenderCapsule:     domain.Capsule{b, b},
		SenderEnvelope:    domain.Envelope{Ciphertext: []byte{b, b}},
		Timestamp:         at,
	}
}

func TestMessages_QueryOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	msgs := openDB(t).Messages()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, msgs.Append(ctx, record("bob", "alice", base.Add(2*time.Second), 3)))
	require.NoError(t, msgs.Append(ctx, record("alice", "bob", base, 1)))
	require.NoError(t, msgs.Append(ctx, record("alice", "bob", base.Add(time.Second), 2)))
	require.NoError(t, msgs.Append(ctx, record("alice", "carol", base, 9)))

	recs, err := msgs.Query(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		require.Equal(t, []byte{byte(i + 1)}, r.RecipientEnvelope.Ciphertext)
		require.NotEmpty(t, r.ID)
		require.Equal(t, domain.Capsule{byte(i + 1), byte(i + 1)}, r.SenderCapsule)
	}
	require.True(t, recs[0].Timestamp.Equal(base))

	recs, err = msgs.Query(ctx, "alice", "carol")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMessages_DeleteAll(t *testing.T) {
	ctx := context.Background()
	msgs := openDB(t).Messages()
	now := time.Now()

	require.NoError(t, msgs.Append(ctx, record("alice", "bob", now, 1)))
	require.NoError(t, msgs.Append(ctx, record("bob", "alice", now.Add(time.Millisecond), 2)))
	require.NoError(t, msgs.Append(ctx, record("alice", "carol", now, 3)))

	require.NoError(t, msgs.DeleteAll(ctx, "bob", "alice"))

	recs, err := msgs.Query(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Empty(t, recs)

	recs, err = msgs.Query(ctx, "carol", "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMessages_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")

	db, err := store.OpenRelayDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Messages().Append(ctx, record("alice", "bob", time.Time{}, 1)))
	require.NoError(t, db.Close())

	db, err = store.OpenRelayDB(path)
	require.NoError(t, err)
	defer db.Close()
	recs, err := db.Messages().Query(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.False(t, recs[0].Timestamp.IsZero())
}
