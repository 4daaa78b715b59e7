package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

// send <peer> <message>: connect, encrypt and send a single message.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			peer := domain.Username(args[0])
			msg := []byte(strings.Join(args[1:], " "))

			c, stop, err := startClient(ctx)
			if err != nil {
				return err
			}
			defer stop()

			online := waitOnline(ctx, c, peer)
			if err := c.Sessions.Connect(ctx, peer); err != nil {
				return err
			}
			defer c.Sessions.Disconnect()
			if err := c.Messages.Send(ctx, peer, msg); err != nil {
				return err
			}
			if online {
				fmt.Println("sent")
			} else {
				fmt.Printf("stored; %s is offline\n", peer)
			}
			return nil
		},
	}
	return cmd
}
