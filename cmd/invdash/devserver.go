package main

import (
	"github.com/spf13/cobra"

	"invdash/devserver"
	"invdash/logging"
	"invdash/server"
)

func newDevServerCmd(a *app) *cobra.Command {
	var (
		addr   string
		noSeed bool
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local inventory API backed by in-memory SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.DevServer
			if addr != "" {
				cfg.Addr = addr
			}
			if noSeed {
				cfg.Seed = false
			}
			srv := devserver.New(cfg, logging.ComponentLogger("devserver"))
			return server.NewEngine(srv).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "start with an empty database")
	return cmd
}
