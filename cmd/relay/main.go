package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"pqchat/internal/app"
	"pqchat/internal/relay"
	"pqchat/internal/store"
)

func rootCmd() *cobra.Command {
	var (
		cfgFile  string
		flagCfg  config
		statsStr string
	)
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Run the pqchat reference relay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			flags := cmd.Flags()
			if flags.Changed("datadir") {
				cfg.DataDir = flagCfg.DataDir
			}
			if cfgFile == "" {
				cfgFile = filepath.Join(expandHome(cfg.DataDir), "relay.conf")
			}
			if err := cfg.loadFile(cfgFile); err != nil {
				return err
			}
			if flags.Changed("listen") {
				cfg.Listen = flagCfg.Listen
			}
			if flags.Changed("datadir") {
				cfg.DataDir = flagCfg.DataDir
			}
			if flags.Changed("debuglevel") {
				cfg.DebugLevel = flagCfg.DebugLevel
			}
			if flags.Changed("logfile") {
				cfg.LogFile = flagCfg.LogFile
			}
			if flags.Changed("statsinterval") {
				cfg.RawStatsInterval = statsStr
				if err := cfg.parseDurations(); err != nil {
					return err
				}
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (default <datadir>/relay.conf)")
	f.StringVar(&flagCfg.Listen, "listen", "", "listen address")
	f.StringVar(&flagCfg.DataDir, "datadir", "", "data directory (default ~/.pqrelay)")
	f.StringVar(&flagCfg.DebugLevel, "debuglevel", "", "log level, e.g. info or info,HUB=debug")
	f.StringVar(&flagCfg.LogFile, "logfile", "", "log file")
	f.StringVar(&statsStr, "statsinterval", "", "interval between stats log lines (0 disables)")
	return cmd
}

func run(ctx context.Context, cfg config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return err
	}
	logs, err := app.NewLogBackend(cfg.LogFile, cfg.DebugLevel, os.Stdout)
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Logger(app.SubsysRelay)

	db, err := store.OpenRelayDB(filepath.Join(cfg.DataDir, "relay.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	srv := relay.NewServer(relay.Config{
		Listen:        cfg.Listen,
		StatsInterval: cfg.StatsInterval,
		Log:           log,
		HubLog:        logs.Logger(app.SubsysHub),
	}, db.Directory(), db.Messages())

	log.Infof("Relay starting on %s (data in %s)", cfg.Listen, cfg.DataDir)
	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
