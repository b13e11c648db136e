package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chainreach/prospect-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prospecting API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		srv := server.New(e.Store, e.Orchestrator, e.Advancer, port)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
