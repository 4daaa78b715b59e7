package commands

import (
	"context"
	"fmt"
	"time"

	"pqchat/internal/app"
	"pqchat/internal/domain"
)

// onlineWait bounds how long a command waits for the first online list from
// the relay before it gives up on live delivery.
const onlineWait = 2 * time.Second

// startClient unlocks the identity, dials the relay and runs the client in
// the background. stop cancels it and waits for it to finish.
func startClient(ctx context.Context) (c *app.Client, stop func() error, err error) {
	if err := requirePassphrase(); err != nil {
		return nil, nil, err
	}
	c, err = appCtx.Dial(ctx, passphrase)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	stop = func() error {
		cancel()
		return <-done
	}
	return c, stop, nil
}

// waitOnline waits until the relay lists peer as online or onlineWait
// passes, and reports which.
func waitOnline(ctx context.Context, c *app.Client, peer domain.Username) bool {
	ctx, cancel := context.WithTimeout(ctx, onlineWait)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !c.Presence.IsOnline(peer) {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
	return true
}

func printMessage(me domain.Username, m domain.DecryptedMessage) {
	ts := m.Timestamp.Local().Format("15:04:05")
	who := string(m.From)
	if m.From == me {
		who = "you"
	}
	if m.Err != nil {
		fmt.Printf("[%s] %s: <unreadable: %v>\n", ts, who, m.Err)
		return
	}
	fmt.Printf("[%s] %s: %s\n", ts, who, m.Plaintext)
}
