package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"pqchat/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	eventQueueSize = 64
)

// WebsocketURL derives the presence endpoint of the relay at base for user.
func WebsocketURL(base string, user domain.Username) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"username": {user.String()}}.Encode()
	return u.String(), nil
}

// PresenceClient is a live connection to the relay's presence hub. Frames
// addressed to this user are published on Events; the online list broadcast
// by the hub is tracked so Deliver can fail fast for offline peers.
type PresenceClient struct {
	user domain.Username
	conn *websocket.Conn
	log  slog.Logger

	writeMtx sync.Mutex
	online   atomic.Pointer[map[domain.Username]struct{}]
	events   chan domain.PresenceFrame
	closed   atomic.Bool
}

// DialPresence connects to the presence hub of the relay at base as user.
// The caller must start Run to receive frames.
func DialPresence(ctx context.Context, base string, user domain.Username, log slog.Logger) (*PresenceClient, error) {
	wsURL, err := WebsocketURL(base, user)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Disabled
	}
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	//nolint:bodyclose
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial presence %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxFrameSize)
	c := &PresenceClient{
		user:   user,
		conn:   conn,
		log:    log,
		events: make(chan domain.PresenceFrame, eventQueueSize),
	}
	empty := map[domain.Username]struct{}{}
	c.online.Store(&empty)
	return c, nil
}

// Events returns the frames received from the hub. It is closed when Run
// returns.
func (c *PresenceClient) Events() <-chan domain.PresenceFrame { return c.events }

// Online returns the users last reported online by the hub.
func (c *PresenceClient) Online() []domain.Username {
	m := *c.online.Load()
	users := make([]domain.Username, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// IsOnline reports whether the hub last listed user as online.
func (c *PresenceClient) IsOnline(user domain.Username) bool {
	_, ok := (*c.online.Load())[user]
	return ok
}

// Deliver sends payload to user through the hub. It fails with
// ErrRelayUnavailable when user is not online; there is no queueing.
func (c *PresenceClient) Deliver(ctx context.Context, to domain.Username, eventType domain.EventType, payload any) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: presence connection closed", domain.ErrRelayUnavailable)
	}
	if !c.IsOnline(to) {
		return fmt.Errorf("%w: %s is offline", domain.ErrRelayUnavailable, to)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(domain.PresenceFrame{Type: eventType, From: c.user, To: to, Payload: raw})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRelayUnavailable, err)
	}
	c.log.Tracef("Delivered %s frame to %s", eventType, to)
	return nil
}

// Run reads frames until ctx is done or the connection fails.
func (c *PresenceClient) Run(ctx context.Context) error {
	defer close(c.events)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		var f domain.PresenceFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("presence read: %w", err)
		}
		if f.Type == domain.EventOnline {
			var ev domain.OnlineEvent
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				c.log.Warnf("Malformed online list: %v", err)
				continue
			}
			m := make(map[domain.Username]struct{}, len(ev.Users))
			for _, u := range ev.Users {
				m[u] = struct{}{}
			}
			c.online.Store(&m)
			c.log.Debugf("Online users: %v", ev.Users)
		}
		select {
		case c.events <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close terminates the connection.
func (c *PresenceClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMtx.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMtx.Unlock()
	err := c.conn.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

var _ domain.PresenceRelay = (*PresenceClient)(nil)
