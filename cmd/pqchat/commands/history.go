package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <peer>",
		Short: "Decrypt and print the stored conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			archive, err := appCtx.Archive(passphrase)
			if err != nil {
				return err
			}
			defer archive.Close()

			return printHistory(cmd.Context(), archive, domain.Username(args[0]))
		},
	}
}

func purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <peer>",
		Short: "Delete the stored conversation with a peer for both sides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.Username(args[0])
			if !yes {
				return fmt.Errorf("this deletes every message with %s for both of you; rerun with --yes", peer)
			}
			if err := requirePassphrase(); err != nil {
				return err
			}
			archive, err := appCtx.Archive(passphrase)
			if err != nil {
				return err
			}
			defer archive.Close()
			if err := archive.Purge(cmd.Context(), peer); err != nil {
				return err
			}
			fmt.Printf("Deleted conversation with %s\n", peer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
