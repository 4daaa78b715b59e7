package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"pqchat/internal/domain"
	"pqchat/internal/store"
)

// Config configures a relay Server.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string
	// StatsInterval is how often a summary line is logged. Zero disables it.
	StatsInterval time.Duration

	Log    slog.Logger
	HubLog slog.Logger
}

// Server is the reference relay: a key directory, a message store and a
// presence hub behind one HTTP listener. It never sees plaintext or private
// keys.
type Server struct {
	cfg   Config
	dir   domain.KeyDirectory
	msgs  domain.MessageStore
	hub   *Hub
	stats *stats
	log   slog.Logger
	mux   *http.ServeMux
}

// NewServer builds a relay over the given directory and message store.
func NewServer(cfg Config, dir domain.KeyDirectory, msgs domain.MessageStore) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.HubLog == nil {
		cfg.HubLog = slog.Disabled
	}
	st := newStats()
	s := &Server{
		cfg:   cfg,
		dir:   dir,
		msgs:  msgs,
		hub:   newHub(cfg.HubLog, st),
		stats: st,
		log:   cfg.Log,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("GET /keys/{username}", s.handleKey)
	s.mux.HandleFunc("GET /users", s.handleUsers)
	s.mux.HandleFunc("POST /messages", s.handleAppend)
	s.mux.HandleFunc("GET /messages", s.handleQuery)
	s.mux.HandleFunc("DELETE /messages", s.handleDelete)
	s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	s.mux.Handle("GET /metrics", st.handler())
	return s
}

// Hub returns the presence hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler of the relay, wrapped in an access log.
func (s *Server) Handler() http.Handler { return s.logRequests(s.mux) }

// Run serves on cfg.Listen until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infof("Relay listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if s.cfg.StatsInterval > 0 {
		g.Go(func() error { return s.logStats(gctx) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) logStats(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.log.Infof("Online %d, frames routed %d, dropped %d, messages stored %d",
			len(s.hub.Online()), s.stats.routedAtomic.Load(),
			s.stats.droppedAtomic.Load(), s.stats.storedAtomic.Load())
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var entry domain.KeyDirectoryEntry
	if err := decodeBody(w, r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.dir.Publish(r.Context(), entry); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.stats.registrations.Inc()
	s.log.Infof("Registered public key of %s", entry.Username)
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(r.PathValue("username"))
	pk, err := s.dir.PublicKey(r.Context(), user)
	if err != nil {
		s.stats.keyLookups.WithLabelValues("missing").Inc()
		s.writeStoreError(w, err)
		return
	}
	s.stats.keyLookups.WithLabelValues("found").Inc()
	writeJSON(w, http.StatusOK, domain.KeyDirectoryEntry{Username: user, PublicKey: pk})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.dir.Users(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []domain.Username{}
	}
	writeJSON(w, http.StatusOK, UsersReply{Users: users, Online: s.hub.Online()})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var rec domain.MessageRecord
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(rec.RecipientCapsule) == 0 || len(rec.SenderCapsule) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("record needs both capsules"))
		return
	}
	if err := s.msgs.Append(r.Context(), rec); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.stats.messageStored()
	w.WriteHeader(http.StatusNoContent)
}

func pairParams(r *http.Request) (domain.Username, domain.Username, error) {
	q := r.URL.Query()
	a, b := domain.Username(q.Get("user1")), domain.Username(q.Get("user2"))
	if a == "" || b == "" {
		return "", "", errors.New("user1 and user2 are required")
	}
	return a, b, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	a, b, err := pairParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recs, err := s.msgs.Query(r.Context(), a, b)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.MessageRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	a, b, err := pairParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.msgs.DeleteAll(r.Context(), a, b); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.stats.purges.Inc()
	s.log.Infof("Deleted conversation %s <-> %s", a, b)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Errorf("Store failure: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameSize))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorReply{Error: err.Error()})
}

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack lets websocket upgrades pass through the access log.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Debugf("%s %s from %s: %d %dB in %s", r.Method, r.URL.Path,
			r.RemoteAddr, rec.status, rec.bytes, time.Since(start))
	})
}
