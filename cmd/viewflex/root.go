package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/viewflex/viewflex/internal/config"
)

type globalFlags struct {
	configPath string
	logLevel   string
	storePath  string
	storeKind  string
	apiAddr    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "viewflex",
		Short:         "Widen the conversation column of AI chat sites",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(g.logLevel))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", env("VIEWFLEX_CONFIG", ""), "YAML configuration file")
	pf.StringVar(&g.logLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	pf.StringVar(&g.storePath, "store", env("VIEWFLEX_STORE", ""), "preference store path (overrides the config)")
	pf.StringVar(&g.storeKind, "store-driver", "", "sqlite or file (overrides the config)")
	pf.StringVar(&g.apiAddr, "api", env("VIEWFLEX_API", ""), "control API address (overrides the config)")

	root.AddCommand(
		newRunCmd(g),
		newApplyCmd(g),
		newWidthCmd(g),
		newSitesCmd(g),
	)
	return root
}

// load reads the configuration and applies the command line overrides.
func (g *globalFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	if g.storeKind != "" {
		if g.storeKind != cfg.Store.Driver && g.storePath == "" {
			cfg.Store.Path = config.DefaultStorePath(g.storeKind)
		}
		cfg.Store.Driver = g.storeKind
	}
	if g.storePath != "" {
		cfg.Store.Path = g.storePath
	}
	if g.apiAddr != "" {
		cfg.API.Addr = g.apiAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// daemonURL is where a running daemon is expected, "" when none is configured.
func daemonURL(cfg *config.Config) string {
	addr := cfg.API.Addr
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
