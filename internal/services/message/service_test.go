package message_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/message"
	"pqchat/internal/services/session"
	"pqchat/internal/testutils"
)

type harness struct {
	t      *testing.T
	engine *crypto.Engine
	net    *testutils.Network
	clock  *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	engine, err := crypto.NewEngine(crypto.MLKEM768)
	require.NoError(t, err)
	return &harness{
		t:      t,
		engine: engine,
		net:    testutils.NewNetwork(),
		clock:  clockwork.NewFakeClock(),
	}
}

type user struct {
	id   domain.Identity
	sess *session.Manager
	msgs *message.Service
}

func (h *harness) newUser(name domain.Username, policy message.Policy) *user {
	t := h.t
	pub, priv, err := h.engine.GenerateIdentity()
	require.NoError(t, err)
	id := domain.Identity{Username: name, PublicKey: pub, PrivateKey: priv}
	require.NoError(t, h.net.Publish(context.Background(),
		domain.KeyDirectoryEntry{Username: name, PublicKey: pub}))

	logs := testutils.TestLoggerBackend(t, string(name))
	pres := h.net.Connect(name)
	sess, err := session.NewManager(session.Config{
		Clock: h.clock,
		Log:   logs("SESS"),
	}, h.engine, id, h.net, pres)
	require.NoError(t, err)
	msgs, err := message.New(message.Config{
		Policy: policy,
		Clock:  h.clock,
		Log:    logs("MSGS"),
	}, h.engine, id, sess, h.net, h.net, pres)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = sess.Run(ctx) }()
	go func() { defer wg.Done(); _ = msgs.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &user{id: id, sess: sess, msgs: msgs}
}

func recv(t *testing.T, u *user) domain.DecryptedMessage {
	t.Helper()
	select {
	case m := <-u.msgs.Incoming():
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("%s received nothing", u.id.Username)
		return domain.DecryptedMessage{}
	}
}

// connect opens alice<->bob sessions. Bob connects first so alice's
// handshake reaches an established session.
func connect(t *testing.T, alice, bob *user) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, bob.sess.Connect(ctx, alice.id.Username))
	require.NoError(t, alice.sess.Connect(ctx, bob.id.Username))
	require.Eventually(t, func() bool {
		return bob.sess.Snapshot().InboundCapsule.Equal(alice.sess.Snapshot().OutboundCapsule)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLiveExchange(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("hello bob")))
	m := recv(t, bob)
	require.NoError(t, m.Err)
	require.Equal(t, domain.Username("alice"), m.From)
	require.Equal(t, []byte("hello bob"), m.Plaintext)

	// Alice never saw bob's handshake, so his reply is opened via its capsule.
	require.NoError(t, bob.msgs.Send(ctx, "alice", []byte("hi alice")))
	m = recv(t, alice)
	require.NoError(t, m.Err)
	require.Equal(t, []byte("hi alice"), m.Plaintext)

	recs := h.net.Records()
	require.Len(t, recs, 2)
	require.NotEmpty(t, recs[0].ID)
	require.Equal(t, domain.Username("alice"), recs[0].Sender)
	require.Equal(t, domain.Username("bob"), recs[0].Receiver)
}

func TestHistoryBothSides(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("A1")))
	h.clock.Advance(time.Second)
	require.NoError(t, bob.msgs.Send(ctx, "alice", []byte("B1")))
	h.clock.Advance(time.Second)
	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("A2")))

	want := []string{"A1", "B1", "A2"}
	for _, side := range []struct {
		u    *user
		peer domain.Username
	}{{alice, "bob"}, {bob, "alice"}} {
		hist, err := side.u.msgs.History(ctx, side.peer)
		require.NoError(t, err)
		require.Len(t, hist, len(want))
		for i, m := range hist {
			require.NoError(t, m.Err)
			require.Equal(t, want[i], string(m.Plaintext))
		}
		require.Equal(t, domain.Username("bob"), hist[1].From)
	}
}

func TestDualEnvelopeIndependence(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)

	require.NoError(t, alice.msgs.Send(context.Background(), "bob", []byte("only us")))
	rec := h.net.Records()[0]

	open := func(c domain.Capsule, env domain.Envelope, priv domain.PrivateKey) ([]byte, error) {
		ss, err := h.engine.RecoverSessionKey(c, priv)
		require.NoError(t, err)
		return crypto.Decrypt(env, &ss)
	}

	pt, err := open(rec.RecipientCapsule, rec.RecipientEnvelope, bob.id.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, []byte("only us"), pt)
	_, err = open(rec.RecipientCapsule, rec.RecipientEnvelope, alice.id.PrivateKey)
	require.ErrorIs(t, err, crypto.ErrIntegrity)

	pt, err = open(rec.SenderCapsule, rec.SenderEnvelope, alice.id.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, []byte("only us"), pt)
	_, err = open(rec.SenderCapsule, rec.SenderEnvelope, bob.id.PrivateKey)
	require.ErrorIs(t, err, crypto.ErrIntegrity)
}

func TestHistoryReportsBadRecords(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("good")))

	// A record whose peer copy was encrypted for someone else.
	stranger, _, err := h.engine.GenerateIdentity()
	require.NoError(t, err)
	capsule, key, err := h.engine.PerformKeyExchange(stranger)
	require.NoError(t, err)
	env, err := crypto.Encrypt([]byte("lost"), &key)
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.NoError(t, h.net.Append(ctx, domain.MessageRecord{
		ID:                "bad",
		Sender:            "alice",
		Receiver:          "bob",
		RecipientCapsule:  capsule,
		RecipientEnvelope: env,
		SenderCapsule:     capsule,
		SenderEnvelope:    env,
		Timestamp:         h.clock.Now().UTC(),
	}))
	h.clock.Advance(time.Second)
	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("still good")))

	hist, err := bob.msgs.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.NoError(t, hist[0].Err)
	require.Equal(t, "bad", hist[1].ID)
	require.Error(t, hist[1].Err)
	require.Nil(t, hist[1].Plaintext)
	require.NoError(t, hist[2].Err)
	require.Equal(t, []byte("still good"), hist[2].Plaintext)
}

func TestSendPeerOffline(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	h.net.Disconnect("bob")
	ctx := context.Background()

	require.NoError(t, alice.sess.Connect(ctx, "bob"))
	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("while you were out")))
	require.Len(t, h.net.Records(), 1)

	select {
	case m := <-bob.msgs.Incoming():
		t.Fatalf("unexpected live delivery: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	hist, err := bob.msgs.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, []byte("while you were out"), hist[0].Plaintext)
}

func TestSendWithoutSession(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	h.newUser("bob", message.PolicySession)
	carol := h.newUser("carol", message.PolicyPerMessage)
	ctx := context.Background()

	require.ErrorIs(t, alice.msgs.Send(ctx, "bob", []byte("x")), domain.ErrNoSession)
	require.ErrorIs(t, carol.msgs.Send(ctx, "bob", []byte("x")), domain.ErrNoSession)

	require.NoError(t, alice.sess.Connect(ctx, "carol"))
	require.ErrorIs(t, alice.msgs.Send(ctx, "bob", []byte("x")), domain.ErrPeerMismatch)
	require.Empty(t, h.net.Records())
}

func TestPerMessagePolicy(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicyPerMessage)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()
	require.Equal(t, message.PolicyPerMessage, alice.msgs.Policy())

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("one")))
	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("two")))
	require.Equal(t, []byte("one"), recv(t, bob).Plaintext)
	require.Equal(t, []byte("two"), recv(t, bob).Plaintext)

	recs := h.net.Records()
	require.Len(t, recs, 2)
	sessionCapsule := alice.sess.Snapshot().OutboundCapsule
	require.False(t, recs[0].RecipientCapsule.Equal(recs[1].RecipientCapsule))
	require.False(t, recs[0].SenderCapsule.Equal(recs[1].SenderCapsule))
	require.False(t, recs[0].RecipientCapsule.Equal(sessionCapsule))

	hist, err := alice.msgs.History(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, []byte("two"), hist[1].Plaintext)
}

func TestPurge(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	h.newUser("carol", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("forget me")))
	require.NoError(t, h.net.Append(ctx, domain.MessageRecord{ID: "other", Sender: "alice", Receiver: "carol"}))

	require.NoError(t, alice.msgs.Purge(ctx, "bob"))
	hist, err := bob.msgs.History(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, hist)
	require.Len(t, h.net.Records(), 1)
}

func TestLiveMessageOutsideSessionIgnored(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	carol := h.newUser("carol", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, carol.sess.Connect(ctx, "bob"))
	require.NoError(t, carol.msgs.Send(ctx, "bob", []byte("psst")))
	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("from alice")))

	m := recv(t, bob)
	require.Equal(t, domain.Username("alice"), m.From)
	require.Equal(t, []byte("from alice"), m.Plaintext)
}

func TestUnreadIncomingDoesNotStallPresence(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	// Nobody reads bob's Incoming. Overflowing it must not stop bob from
	// adopting alice's next handshake.
	const sent = 80
	for i := 0; i < sent; i++ {
		require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("unread")))
	}
	require.NoError(t, alice.sess.Connect(ctx, "bob"))
	require.Eventually(t, func() bool {
		return bob.sess.Snapshot().InboundCapsule.Equal(alice.sess.Snapshot().OutboundCapsule)
	}, 5*time.Second, 5*time.Millisecond)

	queued := 0
	for len(bob.msgs.Incoming()) > 0 {
		<-bob.msgs.Incoming()
		queued++
	}
	require.Positive(t, queued)
	require.Less(t, queued, sent)

	hist, err := bob.msgs.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, hist, sent)
}

func TestArchiveOnlyService(t *testing.T) {
	h := newHarness(t)
	alice := h.newUser("alice", message.PolicySession)
	bob := h.newUser("bob", message.PolicySession)
	connect(t, alice, bob)
	ctx := context.Background()

	require.NoError(t, alice.msgs.Send(ctx, "bob", []byte("kept")))
	require.Equal(t, []byte("kept"), recv(t, bob).Plaintext)

	archive, err := message.New(message.Config{Clock: h.clock}, h.engine, alice.id, nil, h.net, h.net, nil)
	require.NoError(t, err)
	defer archive.Close()

	hist, err := archive.History(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.NoError(t, hist[0].Err)
	require.Equal(t, []byte("kept"), hist[0].Plaintext)

	require.ErrorIs(t, archive.Send(ctx, "bob", []byte("x")), message.ErrArchiveOnly)
	require.ErrorIs(t, archive.Run(ctx), message.ErrArchiveOnly)

	// The live session is untouched.
	require.Equal(t, domain.StatusConnected, alice.sess.Snapshot().Status)
	require.Len(t, h.net.Records(), 1)
}

func TestParsePolicy(t *testing.T) {
	p, err := message.ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, message.PolicySession, p)

	p, err = message.ParsePolicy(" Per-Message ")
	require.NoError(t, err)
	require.Equal(t, message.PolicyPerMessage, p)

	_, err = message.ParsePolicy("ratchet")
	require.Error(t, err)
}
