package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/makereader/internal/config"
	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/spf13/cobra"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, cache, and source reachability",
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip querying each source")
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printInfo(out, "config directory %s not found, using defaults (run makereader init)", configDir)
	} else {
		printCheck(out, true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(out, false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	a, err := newApp(cfg, 0)
	if err != nil {
		printCheck(out, false, "cache %s: %v", cfg.Cache.Backend, err)
		return fmt.Errorf("some checks failed")
	}
	defer func() { _ = a.close() }()

	sources := a.registry.List()
	printCheck(out, true, "config.yaml (%d sources, %s api, %s output)", len(sources), cfg.API.Format, cfg.Output.Format)
	printCheck(out, true, "cache %s", cacheLabel(cfg.Cache))
	if len(sources) == 0 {
		printInfo(out, "no sources configured, list will always be empty")
	}

	if !doctorOffline && len(sources) > 0 {
		if !checkSources(cmd.Context(), out, a, cfg) {
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

// checkSources fetches every source once, bypassing the cache. An empty
// source is reported but does not fail the check.
func checkSources(ctx context.Context, out io.Writer, a *app, cfg *config.Config) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFetcher(cfg.API)
	ok := true
	for _, s := range a.registry.List() {
		endpoint := a.registry.Endpoint(s)
		start := time.Now()
		coll, err := f.Fetch(ctx, endpoint)
		elapsed := time.Since(start).Round(time.Millisecond)
		switch {
		case err == nil:
			printCheck(out, true, "%s: %d posts in %s", s.Name, len(coll.Posts), elapsed)
		case fetch.IsEmpty(err):
			printInfo(out, "%s: no posts", s.Name)
		default:
			printCheck(out, false, "%s: %v", s.Name, err)
			ok = false
		}
	}
	return ok
}

func cacheLabel(c config.CacheConfig) string {
	if c.Backend == "sqlite" {
		return fmt.Sprintf("sqlite %s, ttl %s", c.Path, c.TTL.Duration)
	}
	return fmt.Sprintf("memory, %d entries, ttl %s", c.Size, c.TTL.Duration)
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
