package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRelayConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = "0.0.0.0:9090"
datadir = "`+dir+`"
statsinterval = "30s"
debuglevel = "debug"
`), 0o600))

	cfg := defaultConfig()
	require.NoError(t, cfg.loadFile(path))
	require.NoError(t, cfg.validate())
	require.Equal(t, "0.0.0.0:9090", cfg.Listen)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, 30*time.Second, cfg.StatsInterval)
	require.Equal(t, "debug", cfg.DebugLevel)

	missing := defaultConfig()
	require.NoError(t, missing.loadFile(filepath.Join(dir, "nope.conf")))
	require.Equal(t, time.Minute, missing.StatsInterval)
}

func TestRelayConfigInvalid(t *testing.T) {
	cfg := defaultConfig()
	cfg.Listen = "no-port"
	require.Error(t, cfg.validate())

	cfg = defaultConfig()
	cfg.RawStatsInterval = "often"
	require.Error(t, cfg.parseDurations())
}
