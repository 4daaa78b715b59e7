package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/decred/slog"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/relay"
	identitysvc "pqchat/internal/services/identity"
	messagesvc "pqchat/internal/services/message"
	sessionsvc "pqchat/internal/services/session"
	"pqchat/internal/store"
)

// ErrNotRegistered is returned by Dial when no account profile exists yet.
var ErrNotRegistered = errors.New("no local account; run register first")

// Wire bundles the stores, services and relay client for the CLI.
type Wire struct {
	Config   Config
	Engine   *crypto.Engine
	Accounts domain.AccountStore
	Identity *identitysvc.Service
	Relay    *relay.HTTPClient
	Logs     *LogBackend
}

// NewWire constructs the dependency graph from cfg. cfg must already be
// validated.
func NewWire(cfg Config) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	logs, err := NewLogBackend(cfg.LogFile, cfg.DebugLevel, cfg.LogStdOut)
	if err != nil {
		return nil, err
	}

	// KEM parameters are resolved once here and shared by everything below.
	engine, err := crypto.NewEngine(cfg.KEM)
	if err != nil {
		logs.Close()
		return nil, err
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rc := relay.NewHTTP(cfg.RelayURL)
	rc.HTTP = httpClient
	rc.Timeout = cfg.LookupTimeout

	identityStore := store.NewIdentityFileStore(cfg.Home, engine.Name())
	idsvc := identitysvc.New(engine, identityStore, rc, logs.Logger(SubsysIdentity))

	logs.Logger(SubsysApp).Debugf("Using %s against relay %s", engine.Name(), cfg.RelayURL)
	return &Wire{
		Config:   cfg,
		Engine:   engine,
		Accounts: store.NewAccountFileStore(cfg.Home),
		Identity: idsvc,
		Relay:    rc,
		Logs:     logs,
	}, nil
}

// Close releases the log file.
func (w *Wire) Close() error { return w.Logs.Close() }

// Register creates and publishes a new identity, then records the account
// profile.
func (w *Wire) Register(ctx context.Context, passphrase string, username domain.Username) (domain.Fingerprint, error) {
	id, fp, err := w.Identity.Register(ctx, passphrase, username)
	if err != nil {
		return "", err
	}
	id.PrivateKey.Wipe()
	profile := domain.AccountProfile{
		ServerURL: w.Config.RelayURL,
		Username:  username,
		KEM:       w.Engine.Name(),
	}
	if err := w.Accounts.SaveAccountProfile(profile); err != nil {
		return fp, fmt.Errorf("save account profile: %w", err)
	}
	return fp, nil
}

// Username returns the configured username, falling back to the stored
// account profile.
func (w *Wire) Username() (domain.Username, error) {
	if w.Config.Username != "" {
		return w.Config.Username, nil
	}
	profile, ok, err := w.Accounts.LoadAccountProfile()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotRegistered
	}
	return profile.Username, nil
}

// unlock loads the identity and checks it against the configured username.
// The caller wipes the returned private key.
func (w *Wire) unlock(passphrase string) (domain.Identity, error) {
	id, err := w.Identity.LoadIdentity(passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	if want, err := w.Username(); err == nil && want != id.Username {
		id.PrivateKey.Wipe()
		return domain.Identity{}, fmt.Errorf("identity belongs to %s, not %s", id.Username, want)
	}
	return id, nil
}

// Archive unlocks the identity for reading and purging stored history over
// HTTP only. It never joins the presence hub, so a Client already running
// for the same user keeps its connection. Close the returned service when
// done.
func (w *Wire) Archive(passphrase string) (*messagesvc.Service, error) {
	id, err := w.unlock(passphrase)
	if err != nil {
		return nil, err
	}
	defer id.PrivateKey.Wipe()

	return messagesvc.New(messagesvc.Config{
		Policy:        w.Config.SendPolicy,
		LookupTimeout: w.Config.LookupTimeout,
		Log:           w.Logs.Logger(SubsysMessage),
	}, w.Engine, id, nil, w.Relay, w.Relay, nil)
}

// Dial unlocks the identity with passphrase and connects it to the relay's
// presence hub. The returned Client does nothing until Run is called.
//
// The hub keeps one connection per user: dialing replaces any Client already
// connected under the same name.
func (w *Wire) Dial(ctx context.Context, passphrase string) (*Client, error) {
	id, err := w.unlock(passphrase)
	if err != nil {
		return nil, err
	}
	// The session manager and message service keep their own copies.
	defer id.PrivateKey.Wipe()

	presence, err := relay.DialPresence(ctx, w.Config.RelayURL, id.Username, w.Logs.Logger(SubsysRelay))
	if err != nil {
		return nil, err
	}

	sessions, err := sessionsvc.NewManager(sessionsvc.Config{
		PreGenerate:   w.Config.PreGenerate,
		Swap:          w.Config.Swap,
		LookupTimeout: w.Config.LookupTimeout,
		Log:           w.Logs.Logger(SubsysSession),
	}, w.Engine, id, w.Relay, presence)
	if err != nil {
		presence.Close()
		return nil, err
	}

	messages, err := messagesvc.New(messagesvc.Config{
		Policy:        w.Config.SendPolicy,
		LookupTimeout: w.Config.LookupTimeout,
		Log:           w.Logs.Logger(SubsysMessage),
	}, w.Engine, id, sessions, w.Relay, w.Relay, presence)
	if err != nil {
		presence.Close()
		return nil, err
	}

	return &Client{
		Username: id.Username,
		Presence: presence,
		Sessions: sessions,
		Messages: messages,
		log:      w.Logs.Logger(SubsysApp),
	}, nil
}

// Fingerprint returns the fingerprint of a public key.
func (w *Wire) Fingerprint(pub domain.PublicKey) domain.Fingerprint {
	return crypto.Fingerprint(pub)
}

// Logger returns the logger for subsys.
func (w *Wire) Logger(subsys string) slog.Logger { return w.Logs.Logger(subsys) }
