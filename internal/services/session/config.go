package session

import (
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/jonboulle/clockwork"
)

// Production rotation timings, measured from the last adoption, and the
// bound on each directory or relay call.
const (
	DefaultPreGenerate   = 4*time.Minute + 30*time.Second
	DefaultSwap          = 5 * time.Minute
	DefaultLookupTimeout = 10 * time.Second
)

// Config tunes a Manager.
type Config struct {
	// PreGenerate is when the next generation starts being negotiated,
	// measured from the last adoption.
	PreGenerate time.Duration
	// Swap is when the staged generation is adopted. Must exceed PreGenerate.
	Swap time.Duration
	// LookupTimeout bounds every key directory and relay call.
	LookupTimeout time.Duration

	Clock clockwork.Clock
	Log   slog.Logger
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PreGenerate:   DefaultPreGenerate,
		Swap:          DefaultSwap,
		LookupTimeout: DefaultLookupTimeout,
	}
}

func (c *Config) setDefaults() error {
	if c.PreGenerate == 0 && c.Swap == 0 {
		c.PreGenerate, c.Swap = DefaultPreGenerate, DefaultSwap
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = slog.Disabled
	}
	if c.PreGenerate <= 0 || c.Swap <= c.PreGenerate {
		return fmt.Errorf("invalid rotation timing: need 0 < pregen (%s) < swap (%s)",
			c.PreGenerate, c.Swap)
	}
	return nil
}
