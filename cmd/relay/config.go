package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	strduration "github.com/xhit/go-str2duration/v2"
)

type config struct {
	Listen        string        `toml:"listen"`
	DataDir       string        `toml:"datadir"`
	StatsInterval time.Duration `toml:"-"`
	DebugLevel    string        `toml:"debuglevel"`
	LogFile       string        `toml:"logfile"`

	RawStatsInterval string `toml:"statsinterval"`
}

func defaultDataDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".pqrelay"
	}
	return filepath.Join(dir, ".pqrelay")
}

func defaultConfig() config {
	dataDir := defaultDataDir()
	return config{
		Listen:        "127.0.0.1:8080",
		DataDir:       dataDir,
		StatsInterval: time.Minute,
		DebugLevel:    "info",
		LogFile:       filepath.Join(dataDir, "logs", "relay.log"),
	}
}

// loadFile overlays the values set in the TOML file at path. A missing file
// is not an error.
func (c *config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return c.parseDurations()
}

func (c *config) parseDurations() error {
	if c.RawStatsInterval == "" {
		return nil
	}
	dur, err := strduration.ParseDuration(c.RawStatsInterval)
	if err != nil {
		return fmt.Errorf("invalid statsinterval %q: %w", c.RawStatsInterval, err)
	}
	c.StatsInterval = dur
	return nil
}

func (c *config) validate() error {
	c.DataDir = expandHome(c.DataDir)
	c.LogFile = expandHome(c.LogFile)
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if c.DataDir == "" {
		return errors.New("no datadir specified")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid statsinterval %s", c.StatsInterval)
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return strings.Replace(p, "~", dir, 1)
}
