package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/viewflex/viewflex"
	"github.com/hazyhaar/viewflex/viewflex/messaging"
	"github.com/hazyhaar/viewflex/viewflex/prefs"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

func newWidthCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "width",
		Short: "Read or change the conversation width of a site",
	}
	cmd.AddCommand(newWidthGetCmd(g), newWidthSetCmd(g))
	return cmd
}

func openBridge(g *globalFlags) (*prefs.Bridge, func(), error) {
	cfg, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := viewflex.OpenStore(cfg.Store, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return prefs.NewBridge(store, slog.Default()), func() { store.Close() }, nil
}

func newWidthGetCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <site>",
		Short: "Print the width of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := site.Parse(args[0])
			if err != nil {
				return err
			}
			bridge, done, err := openBridge(g)
			if err != nil {
				return err
			}
			defer done()

			w, stored, err := bridge.Load(cmd.Context(), s)
			if err != nil {
				return err
			}
			if output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(viewflex.WidthInfo{
					Site: s, DisplayName: s.DisplayName(), Width: w, Stored: stored,
				})
			}
			note := ""
			if !stored {
				note = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %drem%s\n", s.DisplayName(), w, note)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format (json)")
	return cmd
}

func newWidthSetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <site> <rem>",
		Short: "Store the width of a site and apply it to a running daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := site.Parse(args[0])
			if err != nil {
				return err
			}
			w, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("width %q: not a number", args[1])
			}
			if err := prefs.Validate(w); err != nil {
				return err
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			bridge, done, err := openBridge(g)
			if err != nil {
				return err
			}
			defer done()

			if err := bridge.Save(cmd.Context(), s, w); err != nil {
				return err
			}
			pterm.Success.WithWriter(os.Stderr).Printfln("%s width set to %drem", s.DisplayName(), w)

			// Best effort: a daemon watching the same store picks the change
			// up anyway.
			if url := daemonURL(cfg); url != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
				defer cancel()
				sender := messaging.NewSiteHTTPSender(url, s.String(), slog.Default())
				if !sender.TrySend(ctx, messaging.UpdateWidth(w)) {
					slog.Debug("viewflex: daemon not notified", "url", url, "site", s)
				}
			}
			return nil
		},
	}
}
