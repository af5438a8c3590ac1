package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/store/kv"
	"xhsmarket/internal/store/postgres"
	"xhsmarket/pkg/db"
	redisclient "xhsmarket/pkg/redis"
)

// storage opens the configured backend directly, without the HTTP layer.
type storage struct {
	kv    *kv.DB
	pg    *postgres.DB
	close func()
}

func (g *globals) openStorage(ctx context.Context) (*storage, error) {
	fx, err := fixtures.Load()
	if err != nil {
		return nil, err
	}
	switch g.cfg.Storage.Mode {
	case "redis":
		rdb, err := redisclient.NewRedisClient(ctx, g.cfg.Redis)
		if err != nil {
			return nil, err
		}
		kdb := kv.Open(kv.NewRedisKV(rdb), fx, g.log)
		return &storage{kv: kdb, close: func() { _ = kdb.Close() }}, nil
	case "postgres":
		pool, err := db.NewConnection(ctx, g.cfg.DB, g.log)
		if err != nil {
			return nil, err
		}
		return &storage{pg: postgres.Open(pool, fx, g.log), close: pool.Close}, nil
	case "", "memory":
		kdb := kv.Open(kv.NewMemoryKV(), fx, g.log)
		return &storage{kv: kdb, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown storage mode %q", g.cfg.Storage.Mode)
	}
}

func newSeedCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write fixture data to empty tables",
		Long: `Seed the configured storage backend with the demo fixtures.

Tables that already hold data are left alone unless --force is given,
which replaces every table and clears all sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			s, err := g.openStorage(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if s.pg != nil {
				if err := s.pg.Migrate(ctx); err != nil {
					return err
				}
				err = s.pg.Seed(ctx, force)
			} else {
				err = s.kv.Seed(ctx, force)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s storage (force=%t)\n", g.cfg.Storage.Mode, force)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite tables that already hold data")
	return cmd
}

func newMigrateCmd(g *globals) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
				return nil
			}
			if g.cfg.Storage.Mode != "postgres" {
				return fmt.Errorf("migrate needs storage mode postgres, have %q", g.cfg.Storage.Mode)
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			s, err := g.openStorage(ctx)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.pg.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}

func newTablesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [key]",
		Short: "Dump the raw documents of the key-value store",
		Long: `Print the JSON document stored under each key (or a single key).

Only the memory and redis backends keep whole-table documents; memory
mode shows the fixtures as they would be seeded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			s, err := g.openStorage(ctx)
			if err != nil {
				return err
			}
			defer s.close()
			if s.kv == nil {
				return fmt.Errorf("tables is not available for storage mode %q", g.cfg.Storage.Mode)
			}
			if g.cfg.Storage.Mode != "redis" {
				if err := s.kv.Seed(ctx, false); err != nil {
					return err
				}
			}

			keys := kv.AllKeys
			if len(args) == 1 {
				keys = args
			}
			out := cmd.OutOrStdout()
			for _, key := range keys {
				raw, ok, err := s.kv.Raw(ctx, key)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s: <absent>\n", key)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", key, raw)
			}
			return nil
		},
	}
}
