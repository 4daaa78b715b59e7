package message

import (
	"fmt"
	"strings"
)

// Policy selects where the keys for an outgoing message come from.
type Policy string

const (
	// PolicySession seals with the session's current generation.
	PolicySession Policy = "session"
	// PolicyPerMessage runs two fresh key exchanges for every message.
	PolicyPerMessage Policy = "per-message"
)

// ParsePolicy parses a send policy name. The empty string is PolicySession.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySession:
		return PolicySession, nil
	case PolicyPerMessage:
		return PolicyPerMessage, nil
	default:
		return "", fmt.Errorf("unknown send policy %q (want %q or %q)",
			s, PolicySession, PolicyPerMessage)
	}
}
