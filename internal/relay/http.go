package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pqchat/internal/domain"
)

// DefaultTimeout bounds every request made by HTTPClient when the caller's
// context carries no earlier deadline.
const DefaultTimeout = 10 * time.Second

// HTTPClient talks to the relay's key directory and message store endpoints.
type HTTPClient struct {
	Base    string
	HTTP    *http.Client
	Timeout time.Duration
}

// NewHTTP returns a client for the relay at base.
func NewHTTP(base string) *HTTPClient {
	return &HTTPClient{
		Base:    strings.TrimRight(base, "/"),
		HTTP:    http.DefaultClient,
		Timeout: DefaultTimeout,
	}
}

// UsersReply is the body of GET /users.
type UsersReply struct {
	Users  []domain.Username `json:"users"`
	Online []domain.Username `json:"online"`
}

// Publish registers entry with the key directory.
func (c *HTTPClient) Publish(ctx context.Context, entry domain.KeyDirectoryEntry) error {
	return c.do(ctx, http.MethodPost, "/register", entry, nil)
}

// PublicKey fetches the public key of username.
func (c *HTTPClient) PublicKey(ctx context.Context, username domain.Username) (domain.PublicKey, error) {
	var out domain.KeyDirectoryEntry
	err := c.do(ctx, http.MethodGet, "/keys/"+url.PathEscape(username.String()), nil, &out)
	if err != nil {
		return nil, err
	}
	if out.Username != username {
		return nil, fmt.Errorf("relay returned key for %q, want %q", out.Username, username)
	}
	return out.PublicKey, nil
}

// Users lists every registered username.
func (c *HTTPClient) Users(ctx context.Context) ([]domain.Username, error) {
	reply, err := c.Directory(ctx)
	return reply.Users, err
}

// Directory returns the registered users along with those currently online.
func (c *HTTPClient) Directory(ctx context.Context) (UsersReply, error) {
	var out UsersReply
	err := c.do(ctx, http.MethodGet, "/users", nil, &out)
	return out, err
}

// Append stores rec on the relay.
func (c *HTTPClient) Append(ctx context.Context, rec domain.MessageRecord) error {
	return c.do(ctx, http.MethodPost, "/messages", rec, nil)
}

// Query returns the conversation between a and b, oldest first.
func (c *HTTPClient) Query(ctx context.Context, a, b domain.Username) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := c.do(ctx, http.MethodGet, "/messages?"+pairQuery(a, b), nil, &out)
	return out, err
}

// DeleteAll removes the conversation between a and b.
func (c *HTTPClient) DeleteAll(ctx context.Context, a, b domain.Username) error {
	return c.do(ctx, http.MethodDelete, "/messages?"+pairQuery(a, b), nil, nil)
}

func pairQuery(a, b domain.Username) string {
	return url.Values{"user1": {a.String()}, "user2": {b.String()}}.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s %s: %w", strings.ToLower(method), path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/keys/") {
		return fmt.Errorf("%w: %s", domain.ErrNotRegistered, strings.TrimPrefix(path, "/keys/"))
	}
	if resp.StatusCode/100 != 2 {
		var e errorReply
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("relay %s %s: %s: %s", strings.ToLower(method), path, resp.Status, e.Error)
		}
		return fmt.Errorf("relay %s %s: %s", strings.ToLower(method), path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("relay %s %s: decode: %w", strings.ToLower(method), path, err)
		}
	}
	return nil
}

type errorReply struct {
	Error string `json:"error"`
}

var (
	_ domain.KeyDirectory = (*HTTPClient)(nil)
	_ domain.MessageStore = (*HTTPClient)(nil)
)
