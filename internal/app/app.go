package app

import (
	"context"
	"errors"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"pqchat/internal/domain"
	"pqchat/internal/relay"
	messagesvc "pqchat/internal/services/message"
	sessionsvc "pqchat/internal/services/session"
)

// ErrRelayClosed is returned by Client.Run when the relay ends the presence
// connection.
var ErrRelayClosed = errors.New("relay closed the presence connection")

// Client is an unlocked identity connected to the relay.
type Client struct {
	Username domain.Username
	Presence *relay.PresenceClient
	Sessions *sessionsvc.Manager
	Messages *messagesvc.Service

	log slog.Logger
}

// Run drives the presence connection, the session manager and the message
// dispatcher until ctx is done or one of them fails. Every secret is wiped
// on return.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.Presence.Run(gctx)
		if err == nil {
			err = ErrRelayClosed
		}
		return err
	})
	g.Go(func() error { return c.Sessions.Run(gctx) })
	g.Go(func() error { return c.Messages.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	c.log.Debugf("Client %s stopped: %v", c.Username, err)
	return err
}

// Close drops the presence connection of a Client that was never Run.
func (c *Client) Close() error { return c.Presence.Close() }
