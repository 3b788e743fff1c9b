package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/viewflex/viewflex"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon: open the configured pages and keep them wide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := slog.Default()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := viewflex.New(viewflex.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer d.Close()

			logger.Info("viewflex: daemon starting",
				"pages", len(cfg.Pages), "store", cfg.Store.Path, "api", cfg.API.Addr)
			return d.Run(ctx)
		},
	}
}
