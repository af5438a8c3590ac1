// Command marketctl administers storage and drives the marketplace API from
// the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xhsmarket/internal/app"
	"xhsmarket/pkg/client"
	"xhsmarket/pkg/config"
	"xhsmarket/pkg/logger"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configDir string
	mode      string
	baseURL   string
	token     string
	email     string
	password  string
	timeout   time.Duration
	verbose   bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Operate the XHS creative marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configDir, "config-dir", config.GetEnv("CONFIG_DIR", "config"), "Directory holding base.yaml and <env>.yaml")
	flags.StringVar(&g.mode, "mode", "", "API client mode: mock or remote (default from config)")
	flags.StringVar(&g.baseURL, "base-url", "", "API base URL for remote mode")
	flags.StringVar(&g.token, "token", os.Getenv("MARKET_TOKEN"), "Bearer token")
	flags.StringVar(&g.email, "email", "", "Log in with this account before the call")
	flags.StringVar(&g.password, "password", "", "Password for --email")
	flags.DurationVar(&g.timeout, "timeout", time.Minute, "Operation timeout")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newSeedCmd(g),
		newMigrateCmd(g),
		newTablesCmd(g),
		newArtworksCmd(g),
		newProjectsCmd(g),
		newAICmd(g),
	)
	return root
}

func (g *globals) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(""); err != nil {
		return err
	}
	cfg, err := config.Load(config.GetConfigEnv(), g.configDir)
	if err != nil {
		return err
	}
	g.cfg = cfg
	if g.verbose {
		g.log = logger.NewLogger("local")
	} else {
		g.log = zap.NewNop()
	}
	if g.mode == "" {
		g.mode = cfg.Client.Mode
	}
	if g.baseURL == "" {
		g.baseURL = cfg.Client.BaseURL
	}
	return nil
}

func (g *globals) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}

// client returns an API client; in mock mode the whole application runs
// in-process for the duration of the command.
func (g *globals) client(ctx context.Context) (*client.Client, func(), error) {
	opts := client.Options{
		Mode:    client.Mode(g.mode),
		BaseURL: g.baseURL,
		Token:   g.token,
		Logger:  g.log,
	}
	cleanup := func() {}
	if opts.Mode == client.ModeMock {
		a, err := app.New(ctx, g.cfg, g.log)
		if err != nil {
			return nil, nil, err
		}
		opts.Handler = a.HTTP.Handler()
		opts.Latency = g.cfg.Client.Latency
		cleanup = a.Close
	}

	c, err := client.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if g.email != "" {
		if _, err := c.Login(ctx, g.email, g.password); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("login %s: %w", g.email, err)
		}
	}
	return c, cleanup, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
