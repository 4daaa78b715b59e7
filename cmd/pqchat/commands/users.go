package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users registered on the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := appCtx.Relay.Directory(cmd.Context())
			if err != nil {
				return err
			}
			online := make(map[domain.Username]bool, len(reply.Online))
			for _, u := range reply.Online {
				online[u] = true
			}
			for _, u := range reply.Users {
				mark := " "
				if online[u] {
					mark = "*"
				}
				fmt.Printf("%s %s\n", mark, u)
			}
			fmt.Printf("%d registered, %d online\n", len(reply.Users), len(reply.Online))
			return nil
		},
	}
}
