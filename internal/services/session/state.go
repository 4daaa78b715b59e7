package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"pqchat/internal/domain"
)

// keyPair is one encapsulation: the capsule and the secret it carries.
type keyPair struct {
	capsule domain.Capsule
	secret  domain.SharedSecret
}

// keySet is one generation of outbound keys. The peer-directed and
// self-directed pairs are always replaced together.
type keySet struct {
	generation uint64
	outbound   keyPair
	self       keyPair
}

func (k *keySet) wipe() {
	if k == nil {
		return
	}
	k.outbound.secret.Wipe()
	k.self.secret.Wipe()
}

// sessionState is owned by the Manager goroutine.
type sessionState struct {
	peer   domain.Username
	status domain.SessionStatus

	// epoch changes on every peer switch or disconnect; cycle changes on
	// every swap. Work started under an older (epoch, cycle) is discarded.
	epoch uint64
	cycle uint64

	current    *keySet
	pending    *keySet
	pendingErr error

	inbound    *keyPair
	inboundGen uint64

	activeSince time.Time

	preGenTimer clockwork.Timer
	swapTimer   clockwork.Timer
}

func (s *sessionState) stopTimers() {
	if s.preGenTimer != nil {
		s.preGenTimer.Stop()
		s.preGenTimer = nil
	}
	if s.swapTimer != nil {
		s.swapTimer.Stop()
		s.swapTimer = nil
	}
}

// reset cancels the timers, wipes every secret and moves to status under a
// new epoch.
func (s *sessionState) reset(peer domain.Username, status domain.SessionStatus) uint64 {
	s.stopTimers()
	s.current.wipe()
	s.pending.wipe()
	if s.inbound != nil {
		s.inbound.secret.Wipe()
	}
	s.current, s.pending, s.pendingErr, s.inbound = nil, nil, nil, nil
	s.inboundGen = 0
	s.activeSince = time.Time{}
	s.peer = peer
	s.status = status
	s.epoch++
	s.cycle = 0
	return s.epoch
}

func (s *sessionState) active() bool {
	return s.current != nil &&
		(s.status == domain.StatusConnected || s.status == domain.StatusRotating)
}

func (s *sessionState) snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Peer:        s.peer,
		Status:      s.status,
		HasPending:  s.pending != nil,
		HasInbound:  s.inbound != nil,
		ActiveSince: s.activeSince,
	}
	if s.current != nil {
		snap.Generation = s.current.generation
		snap.OutboundCapsule = append(domain.Capsule(nil), s.current.outbound.capsule...)
	}
	if s.inbound != nil {
		snap.InboundCapsule = append(domain.Capsule(nil), s.inbound.capsule...)
	}
	return snap
}
