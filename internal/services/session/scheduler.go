package session

import (
	"pqchat/internal/domain"
)

// armTimers starts both rotation deadlines for the current (epoch, cycle).
// The callbacks only queue commands.
func (m *Manager) armTimers(s *sessionState) {
	s.stopTimers()
	epoch, cycle := s.epoch, s.cycle
	s.preGenTimer = m.clock.AfterFunc(m.cfg.PreGenerate, func() {
		m.post(func(s *sessionState) { m.onPreGenerate(s, epoch, cycle) })
	})
	s.swapTimer = m.clock.AfterFunc(m.cfg.Swap, func() {
		m.post(func(s *sessionState) { m.onSwap(s, epoch, cycle) })
	})
}

func (m *Manager) onPreGenerate(s *sessionState, epoch, cycle uint64) {
	if s.epoch != epoch || s.cycle != cycle || s.status != domain.StatusConnected {
		return
	}
	s.status = domain.StatusRotating
	s.pending.wipe()
	s.pending, s.pendingErr = nil, nil
	peer := s.peer
	m.log.Debugf("Pre-generating generation %d for %s", s.current.generation+1, peer)

	go func() {
		ks, err := m.negotiate(m.runCtx, peer)
		posted := m.post(func(s *sessionState) { m.onStaged(s, epoch, cycle, ks, err) })
		if !posted {
			ks.wipe()
		}
	}()
}

func (m *Manager) onStaged(s *sessionState, epoch, cycle uint64, ks *keySet, err error) {
	if s.epoch != epoch || s.cycle != cycle || s.status != domain.StatusRotating {
		ks.wipe()
		m.log.Debugf("Discarding stale pre-generated keys")
		return
	}
	if err != nil {
		s.pendingErr = err
		m.log.Warnf("Pre-generation for %s failed: %v", s.peer, err)
		return
	}
	s.pending = ks
	m.log.Debugf("Staged generation %d for %s", s.current.generation+1, s.peer)
}

func (m *Manager) onSwap(s *sessionState, epoch, cycle uint64) {
	if s.epoch != epoch || s.cycle != cycle || s.current == nil {
		return
	}

	if s.pending == nil {
		reason := "pre-generation unfinished"
		if s.pendingErr != nil {
			reason = s.pendingErr.Error()
		}
		m.log.Warnf("Skipping rotation with %s this cycle (%s); keeping generation %d",
			s.peer, reason, s.current.generation)
	} else {
		next := s.pending
		next.generation = s.current.generation + 1
		s.current.wipe()
		s.current = next
		s.activeSince = m.clock.Now()
		m.log.Infof("Rotated session with %s to generation %d", s.peer, next.generation)

		peer, capsule := s.peer, next.outbound.capsule
		go m.announce(m.runCtx, peer, capsule)
	}

	s.pending, s.pendingErr = nil, nil
	s.cycle++
	s.status = domain.StatusConnected
	m.armTimers(s)
}
