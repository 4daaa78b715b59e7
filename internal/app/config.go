package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	strduration "github.com/xhit/go-str2duration/v2"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/message"
	"pqchat/internal/services/session"
)

const (
	// DefaultRelayURL is the relay used when none is configured.
	DefaultRelayURL = "http://127.0.0.1:8080"

	configFilename = "pqchat.conf"
	logFilename    = "pqchat.log"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string // config directory, e.g. $HOME/.pqchat
	RelayURL string // relay base URL, e.g. http://127.0.0.1:8080
	Username domain.Username
	KEM      string

	PreGenerate   time.Duration
	Swap          time.Duration
	LookupTimeout time.Duration
	SendPolicy    message.Policy

	LogFile    string
	DebugLevel string
	LogStdOut  io.Writer // optional; nil logs to LogFile only

	HTTP *http.Client // optional; defaults to http.DefaultClient
}

// DefaultHome returns ~/.pqchat, or .pqchat when the home directory is
// unknown.
func DefaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".pqchat"
	}
	return filepath.Join(dir, ".pqchat")
}

// DefaultConfig returns the defaults for a client rooted at home.
func DefaultConfig(home string) Config {
	return Config{
		Home:          home,
		RelayURL:      DefaultRelayURL,
		KEM:           crypto.MLKEM768,
		PreGenerate:   session.DefaultPreGenerate,
		Swap:          session.DefaultSwap,
		LookupTimeout: session.DefaultLookupTimeout,
		SendPolicy:    message.PolicySession,
		LogFile:       filepath.Join(home, "logs", logFilename),
		DebugLevel:    "info",
	}
}

// ConfigFile returns the path of the config file inside Home.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Home, configFilename)
}

// fileConfig is the on-disk form. Durations are strings so that values like
// "4m30s" or "1d" can be used.
type fileConfig struct {
	Relay         string `toml:"relay"`
	Username      string `toml:"username"`
	KEM           string `toml:"kem"`
	PreGen        string `toml:"pregen"`
	Swap          string `toml:"swap"`
	LookupTimeout string `toml:"lookuptimeout"`
	SendPolicy    string `toml:"sendpolicy"`
	DebugLevel    string `toml:"debuglevel"`
	LogFile       string `toml:"logfile"`
}

// LoadFile overlays the values set in the TOML file at path. A missing file
// is not an error.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Parse(b)
}

// Parse overlays the values set in a TOML document.
func (c *Config) Parse(b []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	set := func(p *string, v string) {
		if v != "" {
			*p = v
		}
	}
	set(&c.RelayURL, fc.Relay)
	set(&c.KEM, fc.KEM)
	set(&c.DebugLevel, fc.DebugLevel)
	set(&c.LogFile, fc.LogFile)
	if fc.Username != "" {
		c.Username = domain.Username(fc.Username)
	}
	if fc.SendPolicy != "" {
		c.SendPolicy = message.Policy(fc.SendPolicy)
	}

	if err := parseDuration(&c.PreGenerate, "pregen", fc.PreGen); err != nil {
		return err
	}
	if err := parseDuration(&c.Swap, "swap", fc.Swap); err != nil {
		return err
	}
	return parseDuration(&c.LookupTimeout, "lookuptimeout", fc.LookupTimeout)
}

func parseDuration(p *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	dur, err := strduration.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*p = dur
	return nil
}

// CleanAndValidate expands ~ in paths and checks every value.
func (c *Config) CleanAndValidate() error {
	c.Home = expandHome(c.Home)
	c.LogFile = expandHome(c.LogFile)

	if c.Home == "" {
		return errors.New("home directory not set")
	}
	u, err := url.Parse(c.RelayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid relay URL %q", c.RelayURL)
	}
	k, err := crypto.LookupKEM(c.KEM)
	if err != nil {
		return err
	}
	c.KEM = k.Name()
	if c.SendPolicy, err = message.ParsePolicy(string(c.SendPolicy)); err != nil {
		return err
	}
	if c.PreGenerate <= 0 || c.Swap <= c.PreGenerate {
		return fmt.Errorf("invalid rotation timing: need 0 < pregen (%s) < swap (%s)",
			c.PreGenerate, c.Swap)
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("invalid lookuptimeout %s", c.LookupTimeout)
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
