package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"
	"github.com/jonboulle/clockwork"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

var (
	// ErrSuperseded is returned by Connect when a later Connect or
	// Disconnect replaced the session before it was established.
	ErrSuperseded = errors.New("session superseded by a newer connect or disconnect")

	// ErrStopped is returned once the Manager's Run has returned.
	ErrStopped = errors.New("session manager stopped")

	// ErrSelfSession is returned when connecting to your own username.
	ErrSelfSession = errors.New("cannot open a session with yourself")

	// ErrSelfKeyMismatch is returned when the directory holds a public key
	// for the local user that differs from the local identity.
	ErrSelfKeyMismatch = errors.New("key directory entry for self does not match local identity")
)

const commandQueueSize = 64

type command func(s *sessionState)

// Manager owns the single session of the local user.
type Manager struct {
	cfg    Config
	engine *crypto.Engine
	id     domain.Identity
	dir    domain.KeyDirectory
	relay  domain.PresenceRelay
	clock  clockwork.Clock
	log    slog.Logger

	cmds    chan command
	stopped chan struct{}
	runCtx  context.Context
}

// NewManager returns a Manager for the local identity id. The Manager keeps
// its own copy of the keys. Run must be called for it to process anything.
func NewManager(
	cfg Config,
	engine *crypto.Engine,
	id domain.Identity,
	dir domain.KeyDirectory,
	relay domain.PresenceRelay,
) (*Manager, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if len(id.PrivateKey) != engine.Params().PrivateKeySize {
		return nil, fmt.Errorf("%w: identity private key", crypto.ErrInvalidKeyLength)
	}
	id.PublicKey = append(domain.PublicKey(nil), id.PublicKey...)
	id.PrivateKey = append(domain.PrivateKey(nil), id.PrivateKey...)
	return &Manager{
		cfg:     cfg,
		engine:  engine,
		id:      id,
		dir:     dir,
		relay:   relay,
		clock:   cfg.Clock,
		log:     cfg.Log,
		cmds:    make(chan command, commandQueueSize),
		stopped: make(chan struct{}),
	}, nil
}

// Run processes commands until ctx is done. On return every secret is
// wiped.
func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = ctx
	defer close(m.stopped)

	var s sessionState
	defer func() {
		s.reset("", domain.StatusDisconnected)
		m.id.PrivateKey.Wipe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.cmds:
			cmd(&s)
		}
	}
}

// exec runs fn on the Manager goroutine and waits for it to finish.
func (m *Manager) exec(ctx context.Context, fn command) error {
	done := make(chan struct{})
	wrapped := func(s *sessionState) {
		defer close(done)
		fn(s)
	}
	select {
	case m.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrStopped
	}
}

// post queues fn without waiting. It reports false if the Manager stopped.
func (m *Manager) post(fn command) bool {
	select {
	case m.cmds <- fn:
		return true
	case <-m.stopped:
		return false
	}
}

// Self returns the local username.
func (m *Manager) Self() domain.Username { return m.id.Username }

// negotiate fetches both public keys and runs one peer-directed and one
// self-directed key exchange.
func (m *Manager) negotiate(ctx context.Context, peer domain.Username) (*keySet, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.LookupTimeout)
	defer cancel()

	peerKey, err := m.dir.PublicKey(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", peer, err)
	}
	selfKey, err := m.dir.PublicKey(ctx, m.id.Username)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", m.id.Username, err)
	}
	if !bytes.Equal(selfKey, m.id.PublicKey) {
		return nil, ErrSelfKeyMismatch
	}

	ks := new(keySet)
	ks.outbound.capsule, ks.outbound.secret, err = m.engine.PerformKeyExchange(peerKey)
	if err != nil {
		return nil, fmt.Errorf("exchange with %s: %w", peer, err)
	}
	ks.self.capsule, ks.self.secret, err = m.engine.PerformKeyExchange(selfKey)
	if err != nil {
		ks.wipe()
		return nil, fmt.Errorf("exchange with self: %w", err)
	}
	return ks, nil
}

// announce sends a handshake carrying capsule to peer. An offline peer is
// not an error: it will learn the capsule from the next message instead.
func (m *Manager) announce(ctx context.Context, peer domain.Username, capsule domain.Capsule) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.LookupTimeout)
	defer cancel()

	ev := domain.HandshakeEvent{From: m.id.Username, Capsule: capsule}
	err := m.relay.Deliver(ctx, peer, domain.EventHandshake, ev)
	switch {
	case errors.Is(err, domain.ErrRelayUnavailable):
		m.log.Infof("Handshake to %s not delivered: peer offline", peer)
	case err != nil:
		m.log.Warnf("Handshake to %s failed: %v", peer, err)
	default:
		m.log.Debugf("Handshake sent to %s", peer)
	}
}

// Connect opens a session with peer, replacing any current session. It
// returns once generation 1 is adopted and announced.
func (m *Manager) Connect(ctx context.Context, peer domain.Username) error {
	if peer == "" {
		return errors.New("empty peer")
	}
	if peer == m.id.Username {
		return ErrSelfSession
	}

	var epoch uint64
	err := m.exec(ctx, func(s *sessionState) {
		if s.peer != "" && s.peer != peer {
			m.log.Infof("Switching session from %s to %s", s.peer, peer)
		}
		epoch = s.reset(peer, domain.StatusConnecting)
	})
	if err != nil {
		return err
	}
	m.log.Infof("Connecting to %s", peer)

	ks, err := m.negotiate(ctx, peer)
	if err != nil {
		_ = m.exec(context.Background(), func(s *sessionState) {
			if s.epoch == epoch {
				s.reset("", domain.StatusDisconnected)
			}
		})
		return fmt.Errorf("connect to %s: %w", peer, err)
	}
	ks.generation = 1
	capsule := ks.outbound.capsule

	adopted := false
	err = m.exec(ctx, func(s *sessionState) {
		if s.epoch != epoch || s.status != domain.StatusConnecting {
			return
		}
		s.current = ks
		s.status = domain.StatusConnected
		s.activeSince = m.clock.Now()
		m.armTimers(s)
		adopted = true
	})
	if !adopted {
		ks.wipe()
		if err != nil {
			return err
		}
		m.log.Debugf("Connect to %s superseded", peer)
		return ErrSuperseded
	}

	m.log.Infof("Session with %s established (generation 1)", peer)
	m.announce(ctx, peer, capsule)
	return nil
}

// Disconnect ends the session, cancelling the rotation deadlines and wiping
// every secret.
func (m *Manager) Disconnect() {
	_ = m.exec(context.Background(), func(s *sessionState) {
		if s.peer != "" {
			m.log.Infof("Disconnected from %s", s.peer)
		}
		s.reset("", domain.StatusDisconnected)
	})
}

// Snapshot returns a read-only view of the session.
func (m *Manager) Snapshot() domain.SessionSnapshot {
	var snap domain.SessionSnapshot
	if err := m.exec(context.Background(), func(s *sessionState) { snap = s.snapshot() }); err != nil {
		return domain.SessionSnapshot{Status: domain.StatusDisconnected}
	}
	return snap
}

// Seal encrypts plaintext twice with the current generation: once for peer
// and once for the local user's own copy.
func (m *Manager) Seal(ctx context.Context, peer domain.Username, plaintext []byte) (domain.SealedMessage, error) {
	var (
		out     domain.SealedMessage
		sealErr error
	)
	err := m.exec(ctx, func(s *sessionState) {
		if !s.active() {
			sealErr = domain.ErrNoSession
			return
		}
		if s.peer != peer {
			sealErr = fmt.Errorf("%w: session is with %s", domain.ErrPeerMismatch, s.peer)
			return
		}
		cur := s.current
		recipient, err := crypto.Encrypt(plaintext, &cur.outbound.secret)
		if err != nil {
			sealErr = err
			return
		}
		self, err := crypto.Encrypt(plaintext, &cur.self.secret)
		if err != nil {
			sealErr = err
			return
		}
		out = domain.SealedMessage{
			Generation:        cur.generation,
			RecipientCapsule:  append(domain.Capsule(nil), cur.outbound.capsule...),
			RecipientEnvelope: recipient,
			SenderCapsule:     append(domain.Capsule(nil), cur.self.capsule...),
			SenderEnvelope:    self,
		}
	})
	if err != nil {
		return domain.SealedMessage{}, err
	}
	return out, sealErr
}

// OpenInbound decrypts a live message from the active peer.
func (m *Manager) OpenInbound(ctx context.Context, ev domain.MessageEvent) ([]byte, error) {
	var (
		pt      []byte
		openErr error
	)
	err := m.exec(ctx, func(s *sessionState) {
		if s.peer == "" || s.status == domain.StatusDisconnected {
			openErr = domain.ErrNoSession
			return
		}
		if ev.From != s.peer {
			openErr = fmt.Errorf("%w: message from %s, session is with %s",
				domain.ErrPeerMismatch, ev.From, s.peer)
			return
		}

		var key domain.SharedSecret
		defer key.Wipe()
		switch {
		case s.inbound != nil && (len(ev.Capsule) == 0 || ev.Capsule.Equal(s.inbound.capsule)):
			key = s.inbound.secret
		case len(ev.Capsule) == 0:
			openErr = fmt.Errorf("%w: no inbound secret and no capsule", domain.ErrNoSession)
			return
		default:
			var err error
			key, err = m.engine.RecoverSessionKey(ev.Capsule, m.id.PrivateKey)
			if err != nil {
				openErr = err
				return
			}
		}
		pt, openErr = crypto.Decrypt(ev.Envelope, &key)
	})
	if err != nil {
		return nil, err
	}
	return pt, openErr
}

// Compile-time assertion that Manager implements domain.SessionService.
var _ domain.SessionService = (*Manager)(nil)
