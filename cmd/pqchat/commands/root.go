package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"pqchat/internal/app"
	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/message"
)

const passphraseEnv = "PQCHAT_PASSPHRASE"

var (
	home       string
	cfgFile    string
	passphrase string
	appCtx     *app.Wire

	relayURL   string
	username   string
	kemName    string
	sendPolicy string
	debugLevel string
	verbose    bool
)

func Execute() error {
	root := &cobra.Command{
		Use:          "pqchat",
		Short:        "Post-quantum end-to-end encrypted chat CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				home = app.DefaultHome()
			}
			cfg := app.DefaultConfig(home)
			if cfgFile == "" {
				cfgFile = cfg.ConfigFile()
			}
			if err := cfg.LoadFile(cfgFile); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("username") {
				cfg.Username = domain.Username(username)
			}
			if flags.Changed("kem") {
				cfg.KEM = kemName
			}
			if flags.Changed("sendpolicy") {
				cfg.SendPolicy = message.Policy(sendPolicy)
			}
			if flags.Changed("debuglevel") {
				cfg.DebugLevel = debugLevel
			}
			if verbose {
				cfg.LogStdOut = os.Stderr
			}
			if err := cfg.CleanAndValidate(); err != nil {
				return err
			}

			if passphrase == "" {
				passphrase = os.Getenv(passphraseEnv)
			}

			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			appCtx = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			return appCtx.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "config dir (default ~/.pqchat)")
	pf.StringVar(&cfgFile, "config", "", "config file (default <home>/pqchat.conf)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity (or $"+passphraseEnv+")")
	pf.StringVar(&relayURL, "relay", "", "relay base URL (e.g. "+app.DefaultRelayURL+")")
	pf.StringVar(&username, "username", "", "your username (default: from the account profile)")
	pf.StringVar(&kemName, "kem", "", "key encapsulation mechanism, one of "+kemList())
	pf.StringVar(&sendPolicy, "sendpolicy", "", "session or per-message")
	pf.StringVar(&debugLevel, "debuglevel", "", "log level, e.g. info or info,SESS=trace")
	pf.BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")

	root.AddCommand(
		registerCmd(),
		fingerprintCmd(),
		usersCmd(),
		chatCmd(),
		sendCmd(),
		historyCmd(),
		purgeCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

func kemList() string { return strings.Join(crypto.KEMNames(), ", ") }

func requirePassphrase() error {
	if passphrase == "" {
		return errors.New("passphrase required (-p or $" + passphraseEnv + ")")
	}
	return nil
}
