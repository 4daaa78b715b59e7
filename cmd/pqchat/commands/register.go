package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an identity and publish its public key to the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user := domain.Username(args[0])
			fp, err := appCtx.Register(cmd.Context(), passphrase, user)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s with %s (%s).\nFingerprint: %s\n",
				user, appCtx.Config.RelayURL, appCtx.Engine.Name(), fp)
			return nil
		},
	}
	return cmd
}
