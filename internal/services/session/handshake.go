package session

import (
	"context"

	"pqchat/internal/domain"
)

// HandleHandshake adopts the capsule announced by the active peer as the
// inbound secret. Handshakes from anyone else are ignored, and a capsule that
// fails to decapsulate leaves the previous inbound secret in place.
func (m *Manager) HandleHandshake(ctx context.Context, ev domain.HandshakeEvent) {
	err := m.exec(ctx, func(s *sessionState) {
		if s.peer == "" || ev.From != s.peer || s.status == domain.StatusDisconnected {
			m.log.Debugf("Ignoring handshake from %s", ev.From)
			return
		}
		secret, err := m.engine.RecoverSessionKey(ev.Capsule, m.id.PrivateKey)
		if err != nil {
			m.log.Warnf("Handshake from %s rejected: %v", ev.From, err)
			return
		}
		if s.inbound != nil {
			s.inbound.secret.Wipe()
		}
		s.inbound = &keyPair{
			capsule: append(domain.Capsule(nil), ev.Capsule...),
			secret:  secret,
		}
		s.inboundGen++
		m.log.Debugf("Adopted inbound key %d from %s", s.inboundGen, ev.From)
	})
	if err != nil {
		m.log.Debugf("Handshake from %s not processed: %v", ev.From, err)
	}
}
