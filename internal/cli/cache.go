package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/makereader/internal/cache"
	"github.com/ppiankov/makereader/internal/config"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the SQLite response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries",
	RunE:  cachePruneAction,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and entry counts",
	RunE:  cacheStatsAction,
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}

func openSQLiteCache() (*cache.SQLite, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Cache.Backend != "sqlite" {
		return nil, errors.New("cache commands need cache.backend: sqlite (the memory cache lives only for one run)")
	}
	return cache.OpenSQLite(cfg.Cache.Path)
}

func cachePruneAction(cmd *cobra.Command, _ []string) error {
	db, err := openSQLiteCache()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := db.PruneExpired(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries.\n", n)
	return nil
}

func cacheStatsAction(cmd *cobra.Command, _ []string) error {
	db, err := openSQLiteCache()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	st, err := db.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Entries: %d (%d expired)\n", st.Entries, st.Expired)
	fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(st.Bytes)))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
