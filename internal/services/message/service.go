package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

// ErrArchiveOnly is returned by Send and Run on a Service built without a
// session or presence relay.
var ErrArchiveOnly = errors.New("message service has no session or presence relay")

const (
	defaultLookupTimeout = 10 * time.Second
	incomingQueueSize    = 64
)

// Config tunes a Service.
type Config struct {
	Policy Policy
	// LookupTimeout bounds every key directory, store and relay call.
	LookupTimeout time.Duration
	Clock         clockwork.Clock
	Log           slog.Logger
}

// Service sends and receives messages for the local identity.
//
// High-level flow:
//   - Send: seal the plaintext for the peer and for ourselves, append both
//     pairs to the message store, then relay the peer pair live. A peer
//     without a live connection only misses the live copy.
//   - History: query the store and open each record with the pair addressed
//     to us. A record that fails to open is reported, not fatal.
//   - Run: consume presence events, feeding handshakes to the session and
//     publishing decrypted live messages on Incoming.
type Service struct {
	cfg      Config
	engine   *crypto.Engine
	id       domain.Identity
	sessions domain.SessionService
	dir      domain.KeyDirectory
	store    domain.MessageStore
	relay    domain.PresenceRelay
	log      slog.Logger

	incoming chan domain.DecryptedMessage
}

// New returns a message service for id. The service keeps its own copy of the
// identity keys, wiped when Run returns or on Close.
//
// sessions and relay may both be nil. Such a service only reads and purges
// the message store.
func New(
	cfg Config,
	engine *crypto.Engine,
	id domain.Identity,
	sessions domain.SessionService,
	dir domain.KeyDirectory,
	store domain.MessageStore,
	relay domain.PresenceRelay,
) (*Service, error) {
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if len(id.PrivateKey) != engine.Params().PrivateKeySize {
		return nil, fmt.Errorf("%w: identity private key", crypto.ErrInvalidKeyLength)
	}
	id.PublicKey = append(domain.PublicKey(nil), id.PublicKey...)
	id.PrivateKey = append(domain.PrivateKey(nil), id.PrivateKey...)

	return &Service{
		cfg:      cfg,
		engine:   engine,
		id:       id,
		sessions: sessions,
		dir:      dir,
		store:    store,
		relay:    relay,
		log:      cfg.Log,
		incoming: make(chan domain.DecryptedMessage, incomingQueueSize),
	}, nil
}

// Incoming returns the live messages decrypted by Run. It is closed when Run
// returns.
func (s *Service) Incoming() <-chan domain.DecryptedMessage { return s.incoming }

// Self returns the local username.
func (s *Service) Self() domain.Username { return s.id.Username }

// Policy returns the send policy in use.
func (s *Service) Policy() Policy { return s.cfg.Policy }

// Close wipes the service's copy of the identity private key. It is only
// needed for a service whose Run is never called.
func (s *Service) Close() { s.id.PrivateKey.Wipe() }

// Send encrypts plaintext for peer and for ourselves, stores both copies and
// relays the peer copy.
func (s *Service) Send(ctx context.Context, peer domain.Username, plaintext []byte) error {
	if s.sessions == nil || s.relay == nil {
		return ErrArchiveOnly
	}

	var (
		sealed domain.SealedMessage
		err    error
	)
	switch s.cfg.Policy {
	case PolicyPerMessage:
		sealed, err = s.sealFresh(ctx, peer, plaintext)
	default:
		sealed, err = s.sessions.Seal(ctx, peer, plaintext)
	}
	if err != nil {
		return fmt.Errorf("seal message to %s: %w", peer, err)
	}

	rec := domain.MessageRecord{
		ID:                uuid.NewString(),
		Sender:            s.id.Username,
		Receiver:          peer,
		RecipientCapsule:  sealed.RecipientCapsule,
		RecipientEnvelope: sealed.RecipientEnvelope,
		SenderCapsule:     sealed.SenderCapsule,
		SenderEnvelope:    sealed.SenderEnvelope,
		Timestamp:         s.cfg.Clock.Now().UTC(),
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	err = s.store.Append(storeCtx, rec)
	cancel()
	if err != nil {
		return fmt.Errorf("store message to %s: %w", peer, err)
	}

	ev := domain.MessageEvent{
		From:     s.id.Username,
		To:       peer,
		Envelope: sealed.RecipientEnvelope,
		Capsule:  sealed.RecipientCapsule,
		Time:     rec.Timestamp,
	}
	relayCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	err = s.relay.Deliver(relayCtx, peer, domain.EventMessage, ev)
	cancel()
	switch {
	case errors.Is(err, domain.ErrRelayUnavailable):
		s.log.Infof("Message %s stored; %s is offline", rec.ID, peer)
	case err != nil:
		s.log.Warnf("Message %s stored but not relayed to %s: %v", rec.ID, peer, err)
	default:
		s.log.Debugf("Message %s sent to %s (generation %d)", rec.ID, peer, sealed.Generation)
	}
	return nil
}

// sealFresh runs a peer-directed and a self-directed exchange for a single
// message. A session with peer must still be active.
func (s *Service) sealFresh(ctx context.Context, peer domain.Username, plaintext []byte) (domain.SealedMessage, error) {
	snap := s.sessions.Snapshot()
	switch {
	case snap.Status != domain.StatusConnected && snap.Status != domain.StatusRotating:
		return domain.SealedMessage{}, domain.ErrNoSession
	case snap.Peer != peer:
		return domain.SealedMessage{}, fmt.Errorf("%w: session is with %s", domain.ErrPeerMismatch, snap.Peer)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	peerKey, err := s.dir.PublicKey(ctx, peer)
	if err != nil {
		return domain.SealedMessage{}, fmt.Errorf("lookup %s: %w", peer, err)
	}

	recipientCapsule, recipientKey, err := s.engine.PerformKeyExchange(peerKey)
	if err != nil {
		return domain.SealedMessage{}, err
	}
	defer recipientKey.Wipe()
	senderCapsule, senderKey, err := s.engine.PerformKeyExchange(s.id.PublicKey)
	if err != nil {
		return domain.SealedMessage{}, err
	}
	defer senderKey.Wipe()

	recipientEnv, err := crypto.Encrypt(plaintext, &recipientKey)
	if err != nil {
		return domain.SealedMessage{}, err
	}
	senderEnv, err := crypto.Encrypt(plaintext, &senderKey)
	if err != nil {
		return domain.SealedMessage{}, err
	}
	return domain.SealedMessage{
		RecipientCapsule:  recipientCapsule,
		RecipientEnvelope: recipientEnv,
		SenderCapsule:     senderCapsule,
		SenderEnvelope:    senderEnv,
	}, nil
}

// open recovers the key carried by capsule and decrypts env with it.
func (s *Service) open(capsule domain.Capsule, env domain.Envelope) ([]byte, error) {
	key, err := s.engine.RecoverSessionKey(capsule, s.id.PrivateKey)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()
	return crypto.Decrypt(env, &key)
}

// History returns every stored message between us and peer, oldest first.
func (s *Service) History(ctx context.Context, peer domain.Username) ([]domain.DecryptedMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	recs, err := s.store.Query(ctx, s.id.Username, peer)
	if err != nil {
		return nil, fmt.Errorf("query history with %s: %w", peer, err)
	}

	out := make([]domain.DecryptedMessage, 0, len(recs))
	failed := 0
	for i := range recs {
		r := &recs[i]
		capsule, env := r.PairFor(s.id.Username)
		dm := domain.DecryptedMessage{
			ID:        r.ID,
			From:      r.Sender,
			To:        r.Receiver,
			Timestamp: r.Timestamp,
		}
		dm.Plaintext, dm.Err = s.open(capsule, env)
		if dm.Err != nil {
			failed++
			s.log.Debugf("Unable to open message %s: %v", r.ID, dm.Err)
		}
		out = append(out, dm)
	}
	if failed > 0 {
		s.log.Warnf("%d of %d messages with %s could not be decrypted", failed, len(recs), peer)
	}
	return out, nil
}

// Purge deletes every stored message between us and peer.
func (s *Service) Purge(ctx context.Context, peer domain.Username) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	if err := s.store.DeleteAll(ctx, s.id.Username, peer); err != nil {
		return fmt.Errorf("purge history with %s: %w", peer, err)
	}
	s.log.Infof("Purged history with %s", peer)
	return nil
}

// Run consumes presence events until ctx is done or the relay closes its
// event stream.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.incoming)
	defer s.id.PrivateKey.Wipe()
	if s.relay == nil || s.sessions == nil {
		return ErrArchiveOnly
	}

	events := s.relay.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-events:
			if !ok {
				s.log.Debugf("Presence event stream closed")
				return nil
			}
			s.dispatch(ctx, f)
		}
	}
}

// dispatch handles one presence frame. It never blocks on Incoming: a live
// message nobody reads is dropped, and remains available from History.
func (s *Service) dispatch(ctx context.Context, f domain.PresenceFrame) {
	switch f.Type {
	case domain.EventHandshake:
		var ev domain.HandshakeEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			s.log.Warnf("Malformed handshake from %s: %v", f.From, err)
			return
		}
		if f.From != "" {
			ev.From = f.From
		}
		s.sessions.HandleHandshake(ctx, ev)

	case domain.EventMessage:
		var ev domain.MessageEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			s.log.Warnf("Malformed message from %s: %v", f.From, err)
			return
		}
		if f.From != "" {
			ev.From = f.From
		}
		pt, err := s.sessions.OpenInbound(ctx, ev)
		if errors.Is(err, domain.ErrNoSession) || errors.Is(err, domain.ErrPeerMismatch) {
			s.log.Debugf("Live message from %s outside the active session: %v", ev.From, err)
			return
		}
		if err != nil {
			s.log.Warnf("Unable to open live message from %s: %v", ev.From, err)
		}
		dm := domain.DecryptedMessage{
			From:      ev.From,
			To:        s.id.Username,
			Plaintext: pt,
			Timestamp: ev.Time,
			Err:       err,
		}
		select {
		case s.incoming <- dm:
		default:
			s.log.Warnf("Incoming queue full; dropped live message from %s", ev.From)
		}

	case domain.EventOnline:
		var ev domain.OnlineEvent
		if err := json.Unmarshal(f.Payload, &ev); err == nil {
			s.log.Debugf("%d users online", len(ev.Users))
		}

	default:
		s.log.Debugf("Ignoring %q event from %s", f.Type, f.From)
	}
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
