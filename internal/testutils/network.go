package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"pqchat/internal/domain"
)

// Network is an in-memory key directory, message store and presence relay
// shared by every participant of a test.
type Network struct {
	mtx        sync.Mutex
	keys       map[domain.Username]domain.PublicKey
	records    []domain.MessageRecord
	conns      map[domain.Username]*Presence
	lookupHook func(ctx context.Context, u domain.Username) error
	lookups    int
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		keys:  make(map[domain.Username]domain.PublicKey),
		conns: make(map[domain.Username]*Presence),
	}
}

// SetLookupHook installs fn to run before every public key lookup. A non-nil
// return fails the lookup.
func (n *Network) SetLookupHook(fn func(ctx context.Context, u domain.Username) error) {
	n.mtx.Lock()
	n.lookupHook = fn
	n.mtx.Unlock()
}

// Lookups returns how many public key lookups were made.
func (n *Network) Lookups() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.lookups
}

func (n *Network) Publish(_ context.Context, entry domain.KeyDirectoryEntry) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.keys[entry.Username] = append(domain.PublicKey(nil), entry.PublicKey...)
	return nil
}

func (n *Network) PublicKey(ctx context.Context, u domain.Username) (domain.PublicKey, error) {
	n.mtx.Lock()
	hook := n.lookupHook
	n.lookups++
	n.mtx.Unlock()
	if hook != nil {
		if err := hook(ctx, u); err != nil {
			return nil, err
		}
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()
	pk, ok := n.keys[u]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotRegistered, u)
	}
	return append(domain.PublicKey(nil), pk...), nil
}

func (n *Network) Users(context.Context) ([]domain.Username, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	users := make([]domain.Username, 0, len(n.keys))
	for u := range n.keys {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (n *Network) Append(_ context.Context, rec domain.MessageRecord) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", len(n.records)+1)
	}
	n.records = append(n.records, rec)
	return nil
}

func samePair(r *domain.MessageRecord, a, b domain.Username) bool {
	return (r.Sender == a && r.Receiver == b) || (r.Sender == b && r.Receiver == a)
}

func (n *Network) Query(_ context.Context, a, b domain.Username) ([]domain.MessageRecord, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	var out []domain.MessageRecord
	for i := range n.records {
		if samePair(&n.records[i], a, b) {
			out = append(out, n.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (n *Network) DeleteAll(_ context.Context, a, b domain.Username) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	kept := n.records[:0]
	for _, r := range n.records {
		if !samePair(&r, a, b) {
			kept = append(kept, r)
		}
	}
	n.records = kept
	return nil
}

// Records returns a copy of every stored record.
func (n *Network) Records() []domain.MessageRecord {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]domain.MessageRecord(nil), n.records...)
}

// Connect brings user online and returns its presence endpoint.
func (n *Network) Connect(user domain.Username) *Presence {
	p := &Presence{net: n, user: user, events: make(chan domain.PresenceFrame, 256)}
	n.mtx.Lock()
	n.conns[user] = p
	n.mtx.Unlock()
	return p
}

// Disconnect takes user offline. Frames already queued are kept.
func (n *Network) Disconnect(user domain.Username) {
	n.mtx.Lock()
	delete(n.conns, user)
	n.mtx.Unlock()
}

// Presence is one user's endpoint on a Network.
type Presence struct {
	net    *Network
	user   domain.Username
	events chan domain.PresenceFrame
}

func (p *Presence) Deliver(_ context.Context, to domain.Username, typ domain.EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.net.mtx.Lock()
	target, ok := p.net.conns[to]
	p.net.mtx.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s is offline", domain.ErrRelayUnavailable, to)
	}
	target.events <- domain.PresenceFrame{Type: typ, From: p.user, To: to, Payload: raw}
	return nil
}

func (p *Presence) Events() <-chan domain.PresenceFrame { return p.events }

var (
	_ domain.KeyDirectory  = (*Network)(nil)
	_ domain.MessageStore  = (*Network)(nil)
	_ domain.PresenceRelay = (*Presence)(nil)
)
