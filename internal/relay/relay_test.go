package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pqchat/internal/domain"
	"pqchat/internal/relay"
	"pqchat/internal/store"
	"pqchat/internal/testutils"
)

func newTestRelay(t *testing.T) (*relay.Server, *httptest.Server) {
	t.Helper()
	db, err := store.OpenRelayDB(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv := relay.NewServer(relay.Config{
		Log:    testutils.TestLoggerSys(t, "RLAY"),
		HubLog: testutils.TestLoggerSys(t, "HUB"),
	}, db.Directory(), db.Messages())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return srv, ts
}

func TestDirectoryOverHTTP(t *testing.T) {
	_, ts := newTestRelay(t)
	ctx := context.Background()
	c := relay.NewHTTP(ts.URL)

	_, err := c.PublicKey(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrNotRegistered)

	require.NoError(t, c.Publish(ctx, domain.KeyDirectoryEntry{Username: "bob", PublicKey: domain.PublicKey{1, 2}}))
	pk, err := c.PublicKey(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.PublicKey{1, 2}, pk)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Username{"bob"}, users)

	err = c.Publish(ctx, domain.KeyDirectoryEntry{Username: "x/y", PublicKey: domain.PublicKey{1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestMessagesOverHTTP(t *testing.T) {
	_, ts := newTestRelay(t)
	ctx := context.Background()
	c := relay.NewHTTP(ts.URL)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Append(ctx, domain.MessageRecord{
			Sender:            "alice",
			Receiver:          "bob",
			RecipientCapsule:  domain.Capsule{byte(i)},
			RecipientEnvelope: domain.Envelope{Ciphertext: []byte{byte(i)}},
			SenderCapsule:     domain.Capsule{byte(i)},
			SenderEnvelope:    domain.Envelope{Ciphertext: []byte{byte(i)}},
			Timestamp:         base.Add(time.Duration(3-i) * time.Second),
		}))
	}

	recs, err := c.Query(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, []byte{2}, recs[0].RecipientEnvelope.Ciphertext)
	require.Equal(t, []byte{0}, recs[2].RecipientEnvelope.Ciphertext)

	require.NoError(t, c.DeleteAll(ctx, "alice", "bob"))
	recs, err = c.Query(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Empty(t, recs)

	err = c.Append(ctx, domain.MessageRecord{Sender: "alice", Receiver: "bob"})
	require.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestRelay(t)
	require.NoError(t, relay.NewHTTP(ts.URL).Publish(context.Background(),
		domain.KeyDirectoryEntry{Username: "bob", PublicKey: domain.PublicKey{1}}))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, ts *httptest.Server, user domain.Username) *relay.PresenceClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := relay.DialPresence(ctx, ts.URL, user, testutils.TestLoggerSys(t, string(user)))
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func nextOfType(t *testing.T, c *relay.PresenceClient, typ domain.EventType) domain.PresenceFrame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-c.Events():
			require.True(t, ok, "events closed")
			if f.Type == typ {
				return f
			}
		case <-timeout:
			t.Fatalf("no %s frame received", typ)
		}
	}
}

func TestPresenceRouting(t *testing.T) {
	srv, ts := newTestRelay(t)
	ctx := context.Background()

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	require.Eventually(t, func() bool {
		return alice.IsOnline("bob") && bob.IsOnline("alice")
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []domain.Username{"alice", "bob"}, srv.Hub().Online())

	err := alice.Deliver(ctx, "carol", domain.EventHandshake, domain.HandshakeEvent{From: "alice"})
	require.ErrorIs(t, err, domain.ErrRelayUnavailable)

	hs := domain.HandshakeEvent{From: "alice", Capsule: domain.Capsule{7, 7}}
	require.NoError(t, alice.Deliver(ctx, "bob", domain.EventHandshake, hs))

	f := nextOfType(t, bob, domain.EventHandshake)
	require.Equal(t, domain.Username("alice"), f.From)
	var got domain.HandshakeEvent
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	require.Equal(t, hs, got)
}

func TestPresenceOfflineBroadcast(t *testing.T) {
	_, ts := newTestRelay(t)

	alice := dial(t, ts, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	bob, err := relay.DialPresence(ctx, ts.URL, "bob", nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() { _ = bob.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return alice.IsOnline("bob") },
		5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	require.Eventually(t, func() bool { return !alice.IsOnline("bob") },
		5*time.Second, 10*time.Millisecond)
	err = alice.Deliver(context.Background(), "bob", domain.EventMessage, domain.MessageEvent{})
	require.ErrorIs(t, err, domain.ErrRelayUnavailable)
}

func TestWebsocketURL(t *testing.T) {
	u, err := relay.WebsocketURL("https://relay.example/base/", "al ice")
	require.NoError(t, err)
	require.Equal(t, "wss://relay.example/base/ws?username=al+ice", u)

	_, err = relay.WebsocketURL("ftp://x", "a")
	require.Error(t, err)
}
