package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/viewflex/viewflex"
	"github.com/hazyhaar/viewflex/viewflex/dom/htmldom"
	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/internal/config"
	"github.com/hazyhaar/viewflex/viewflex/prefs"
	"github.com/hazyhaar/viewflex/viewflex/site"
	"github.com/hazyhaar/viewflex/viewflex/targets"
)

type applyFlags struct {
	url    string
	width  int
	output string
}

func newApplyCmd(g *globalFlags) *cobra.Command {
	f := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply <page.html>",
		Short: "Widen a saved chat page offline",
		Long: "Parse a saved HTML page, apply the width overrides of the site given by --url\n" +
			"and write the result. The width comes from --width or the preference store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runApply(cmd.Context(), cfg, f, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "URL the page was saved from (selects the site)")
	cmd.Flags().IntVar(&f.width, "width", 0, "width in rem (default: the stored width)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runApply(ctx context.Context, cfg *config.Config, f *applyFlags, path string, stdout io.Writer) error {
	logger := slog.Default()

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	doc, err := htmldom.Parse(in, f.url)
	in.Close()
	if err != nil {
		return err
	}

	s := site.Detect(f.url)
	p := engine.NewPreferences(s)
	switch {
	case f.width != 0:
		if err := prefs.Validate(f.width); err != nil {
			return err
		}
		p.SetWidth(f.width)
	default:
		store, err := viewflex.OpenStore(cfg.Store, logger)
		if err != nil {
			return err
		}
		w, _, err := prefs.NewBridge(store, logger).Load(ctx, s)
		store.Close()
		if err != nil {
			logger.Warn("viewflex: load width failed, using default", "error", err)
		} else {
			p.SetWidth(w)
		}
	}

	descs, errs := targets.Table(cfg.Targets)
	for _, err := range errs {
		logger.Warn("viewflex: target ignored", "error", err)
	}
	reg := engine.NewRegistry(s, descs, logger)
	n := engine.NewScanner(reg, p, nil, logger).FullScan(doc)

	if f.output == "" {
		if err := doc.Render(stdout); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	} else if err := writeFile(f.output, doc); err != nil {
		return err
	}

	pterm.Info.WithWriter(os.Stderr).Printfln("%s: %d element(s) set to %drem", s.DisplayName(), n, p.Width())
	return nil
}

// writeFile renders doc into path. A failed close means a truncated page, so
// it is reported like a failed write.
func writeFile(path string, doc *htmldom.Document) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.Render(file); err != nil {
		file.Close()
		return fmt.Errorf("render: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
