package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
	"pqchat/internal/services/message"
)

const chatHelp = `Commands:
  /status   show the session state
  /history  reprint the stored conversation
  /quit     leave the chat`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Open an interactive encrypted session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			peer := domain.Username(args[0])

			c, stop, err := startClient(ctx)
			if err != nil {
				return err
			}
			defer stop()

			if !waitOnline(ctx, c, peer) {
				fmt.Printf("%s is offline; messages will only be stored.\n", peer)
			}
			if err := c.Sessions.Connect(ctx, peer); err != nil {
				return err
			}
			snap := c.Sessions.Snapshot()
			fmt.Printf("Connected to %s (generation %d). %s\n", peer, snap.Generation,
				"Type /help for commands.")

			if err := printHistory(ctx, c.Messages, peer); err != nil {
				fmt.Printf("Unable to load history: %v\n", err)
			}

			go func() {
				for m := range c.Messages.Incoming() {
					printMessage(c.Username, m)
				}
			}()

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				var line string
				var ok bool
				select {
				case <-ctx.Done():
					c.Sessions.Disconnect()
					return nil
				case line, ok = <-lines:
				}
				if !ok {
					c.Sessions.Disconnect()
					return nil
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
				case "/quit":
					c.Sessions.Disconnect()
					return nil
				case "/help":
					fmt.Println(chatHelp)
				case "/status":
					s := c.Sessions.Snapshot()
					fmt.Printf("peer=%s status=%s generation=%d pending=%v inbound=%v since=%s\n",
						s.Peer, s.Status, s.Generation, s.HasPending, s.HasInbound,
						s.ActiveSince.Local().Format("15:04:05"))
				case "/history":
					if err := printHistory(ctx, c.Messages, peer); err != nil {
						fmt.Printf("Unable to load history: %v\n", err)
					}
				default:
					if err := c.Messages.Send(ctx, peer, []byte(line)); err != nil {
						fmt.Printf("Send failed: %v\n", err)
					}
				}
			}
		},
	}
}

func printHistory(ctx context.Context, msgs *message.Service, peer domain.Username) error {
	hist, err := msgs.History(ctx, peer)
	if err != nil {
		return err
	}
	for _, m := range hist {
		printMessage(msgs.Self(), m)
	}
	return nil
}
