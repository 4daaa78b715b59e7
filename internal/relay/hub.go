package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"pqchat/internal/domain"
)

const sendQueueSize = 32

var errReplaced = errors.New("connection replaced by a newer one")

// hubConn is one live presence connection.
type hubConn struct {
	user domain.Username
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *hubConn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *hubConn) close() { c.closeOnce.Do(func() { close(c.done) }) }

// Hub is the presence relay: a directory of live connections keyed by
// username that forwards frames between them. Frames for users without a
// connection are dropped.
type Hub struct {
	conns    *xsync.MapOf[domain.Username, *hubConn]
	log      slog.Logger
	stats    *stats
	upgrader websocket.Upgrader
}

func newHub(log slog.Logger, st *stats) *Hub {
	return &Hub{
		conns: xsync.NewMapOf[domain.Username, *hubConn](),
		log:   log,
		stats: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// register makes c the live connection of its user and returns the
// connection it replaced, if any.
func (h *Hub) register(c *hubConn) *hubConn {
	prev, loaded := h.conns.LoadAndStore(c.user, c)
	if !loaded {
		return nil
	}
	return prev
}

// lookup returns the live connection of user.
func (h *Hub) lookup(user domain.Username) (*hubConn, bool) {
	return h.conns.Load(user)
}

// unregister removes c if it is still the live connection of its user.
func (h *Hub) unregister(c *hubConn) bool {
	removed := false
	h.conns.Compute(c.user, func(old *hubConn, loaded bool) (*hubConn, bool) {
		removed = loaded && old == c
		return old, removed || !loaded
	})
	return removed
}

// Online returns the users with a live connection, sorted.
func (h *Hub) Online() []domain.Username {
	users := make([]domain.Username, 0, h.conns.Size())
	h.conns.Range(func(u domain.Username, _ *hubConn) bool {
		users = append(users, u)
		return true
	})
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// route forwards f to its target. It reports whether the frame was queued.
func (h *Hub) route(f domain.PresenceFrame) bool {
	typ := string(f.Type)
	target, ok := h.lookup(f.To)
	if !ok {
		h.stats.frameDropped(typ)
		h.log.Debugf("Dropping %s frame from %s: %s is offline", f.Type, f.From, f.To)
		return false
	}
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Errorf("Unable to encode frame: %v", err)
		return false
	}
	if !target.enqueue(b) {
		h.stats.frameDropped(typ)
		h.log.Warnf("Dropping %s frame from %s: %s is not keeping up", f.Type, f.From, f.To)
		return false
	}
	h.stats.frameRouted(typ)
	return true
}

func (h *Hub) broadcastOnline() {
	users := h.Online()
	h.stats.online.Set(float64(len(users)))
	payload, err := json.Marshal(domain.OnlineEvent{Users: users})
	if err != nil {
		h.log.Errorf("Unable to encode online list: %v", err)
		return
	}
	b, err := json.Marshal(domain.PresenceFrame{Type: domain.EventOnline, Payload: payload})
	if err != nil {
		h.log.Errorf("Unable to encode online frame: %v", err)
		return
	}
	h.conns.Range(func(_ domain.Username, c *hubConn) bool {
		c.enqueue(b)
		return true
	})
}

// Close disconnects every live connection.
func (h *Hub) Close() {
	h.conns.Range(func(_ domain.Username, c *hubConn) bool {
		c.close()
		return true
	})
}

// ServeWS upgrades a request to a presence connection for the username in
// its query string.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(r.URL.Query().Get("username"))
	if user == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing username"))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("Upgrade for %s failed: %v", user, err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &hubConn{
		user: user,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	if prev := h.register(c); prev != nil {
		h.log.Infof("Replacing presence connection of %s", user)
		prev.close()
	}
	h.log.Infof("%s connected from %s", user, conn.RemoteAddr())
	h.broadcastOnline()

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return h.readLoop(c) })
	g.Go(func() error { return h.writeLoop(gctx, c) })
	err = g.Wait()

	c.close()
	if h.unregister(c) {
		h.broadcastOnline()
	}
	if err != nil && !errors.Is(err, errReplaced) &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.log.Debugf("%s disconnected: %v", user, err)
	} else {
		h.log.Infof("%s disconnected", user)
	}
}

func (h *Hub) readLoop(c *hubConn) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var f domain.PresenceFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// The sender is whoever owns this connection.
		f.From = c.user
		if f.To == "" || f.Type == domain.EventOnline {
			h.log.Debugf("Ignoring %q frame from %s", f.Type, c.user)
			continue
		}
		h.route(f)
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *hubConn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return errReplaced
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				return err
			}
		}
	}
}
