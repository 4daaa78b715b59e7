package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"pqchat/internal/domain"
)

var (
	prefixKey     = []byte("k/")
	prefixMessage = []byte("m/")
)

// ErrInvalidUsername is returned for usernames the relay database cannot key.
var ErrInvalidUsername = errors.New("invalid username")

// RelayDB is the relay's durable state: the public key directory and the
// dual-envelope message log, kept in one leveldb database.
type RelayDB struct {
	db  *leveldb.DB
	now func() time.Time
}

// OpenRelayDB opens or creates the database at path.
func OpenRelayDB(path string) (*RelayDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open relay db %s: %w", path, err)
	}
	return &RelayDB{db: db, now: time.Now}, nil
}

// Close releases the database.
func (r *RelayDB) Close() error { return r.db.Close() }

// Directory returns the key directory view of the database.
func (r *RelayDB) Directory() *DirectoryDB { return &DirectoryDB{r} }

// Messages returns the message store view of the database.
func (r *RelayDB) Messages() *MessageDB { return &MessageDB{r} }

func validUsername(u domain.Username) error {
	if u == "" || strings.ContainsAny(string(u), "\x00/") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, u)
	}
	return nil
}

// DirectoryDB maps usernames to their published public keys.
type DirectoryDB struct{ r *RelayDB }

func dirKey(u domain.Username) []byte {
	return append(append([]byte(nil), prefixKey...), u...)
}

// Publish records entry, replacing any key previously published for the user.
func (d *DirectoryDB) Publish(_ context.Context, entry domain.KeyDirectoryEntry) error {
	if err := validUsername(entry.Username); err != nil {
		return err
	}
	if len(entry.PublicKey) == 0 {
		return fmt.Errorf("publish %s: empty public key", entry.Username)
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return d.r.db.Put(dirKey(entry.Username), b, nil)
}

// PublicKey returns the key published by username.
func (d *DirectoryDB) PublicKey(_ context.Context, username domain.Username) (domain.PublicKey, error) {
	if err := validUsername(username); err != nil {
		return nil, err
	}
	b, err := d.r.db.Get(dirKey(username), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotRegistered, username)
	}
	if err != nil {
		return nil, err
	}
	var entry domain.KeyDirectoryEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, err
	}
	return entry.PublicKey, nil
}

// Users lists every registered username in lexical order.
func (d *DirectoryDB) Users(_ context.Context) ([]domain.Username, error) {
	iter := d.r.db.NewIterator(util.BytesPrefix(prefixKey), nil)
	defer iter.Release()

	var users []domain.Username
	for iter.Next() {
		users = append(users, domain.Username(iter.Key()[len(prefixKey):]))
	}
	return users, iter.Error()
}

// MessageDB stores message records under a key made of the unordered user
// pair followed by the record timestamp, so a prefix scan yields one
// conversation oldest first.
type MessageDB struct{ r *RelayDB }

func pairPrefix(a, b domain.Username) []byte {
	if b < a {
		a, b = b, a
	}
	k := append([]byte(nil), prefixMessage...)
	k = append(k, a...)
	k = append(k, 0)
	k = append(k, b...)
	return append(k, '/')
}

func messageKey(rec *domain.MessageRecord) []byte {
	k := pairPrefix(rec.Sender, rec.Receiver)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(rec.Timestamp.UnixNano()))
	k = append(k, ts[:]...)
	return append(k, rec.ID...)
}

// Append stores rec. A missing ID or timestamp is filled in.
func (m *MessageDB) Append(_ context.Context, rec domain.MessageRecord) error {
	if err := validUsername(rec.Sender); err != nil {
		return err
	}
	if err := validUsername(rec.Receiver); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.r.now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.r.db.Put(messageKey(&rec), b, nil)
}

// Query returns the conversation between a and b in ascending time order.
func (m *MessageDB) Query(_ context.Context, a, b domain.Username) ([]domain.MessageRecord, error) {
	if err := validUsername(a); err != nil {
		return nil, err
	}
	if err := validUsername(b); err != nil {
		return nil, err
	}
	iter := m.r.db.NewIterator(util.BytesPrefix(pairPrefix(a, b)), nil)
	defer iter.Release()

	var recs []domain.MessageRecord
	for iter.Next() {
		var rec domain.MessageRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode record %x: %w", iter.Key(), err)
		}
		recs = append(recs, rec)
	}
	return recs, iter.Error()
}

// DeleteAll removes the conversation between a and b.
func (m *MessageDB) DeleteAll(_ context.Context, a, b domain.Username) error {
	if err := validUsername(a); err != nil {
		return err
	}
	if err := validUsername(b); err != nil {
		return err
	}
	prefix := pairPrefix(a, b)
	iter := m.r.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(bytes.Clone(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return m.r.db.Write(batch, nil)
}

var (
	_ domain.KeyDirectory = (*DirectoryDB)(nil)
	_ domain.MessageStore = (*MessageDB)(nil)
)
