package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/makereader/internal/config"
	"github.com/ppiankov/makereader/internal/digest"
	"github.com/spf13/cobra"
)

var (
	listFormat  string
	listMax     int
	listEvery   string
	listVerbose bool
	noColor     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the newest posts across all sources",
	RunE:  listAction,
}

// listOnce renders one aggregation. Tests replace it.
var listOnce = runList

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "", "output format: terminal, json, markdown")
	listCmd.Flags().IntVar(&listMax, "max", 0, "maximum number of posts (default from config)")
	listCmd.Flags().StringVar(&listEvery, "every", "", "repeat on an interval (e.g. 15m) until interrupted")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "print per-source results to stderr")
	listCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func listAction(cmd *cobra.Command, _ []string) error {
	every, err := parseEvery(listEvery)
	if err != nil {
		return err
	}
	if listFormat != "" {
		if err := config.ValidateFormat(listFormat); err != nil {
			return fmt.Errorf("--format: %w", err)
		}
	}
	if listMax < 0 {
		return fmt.Errorf("--max: %d, want a positive number", listMax)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg, listMax)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if every == 0 {
		return listOnce(ctx, out, errOut, a, cfg)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloads := make(chan *config.Config, 1)
	go func() {
		err := config.Watch(ctx, configDir, func(c *config.Config) {
			// Keep only the newest config.
			select {
			case <-reloads:
			default:
			}
			reloads <- c
		})
		if err != nil {
			slog.Warn("config: watch disabled", "dir", configDir, "err", err)
		}
	}()

	return runWatch(ctx, every, func() error {
		select {
		case c := <-reloads:
			next, err := newApp(c, listMax)
			if err != nil {
				slog.Error("list: reload failed, keeping previous config", "err", err)
				break
			}
			_ = a.close()
			a, cfg = next, c
		default:
		}
		return listOnce(ctx, out, errOut, a, cfg)
	})
}

func runList(ctx context.Context, out, errOut io.Writer, a *app, cfg *config.Config) error {
	format := cfg.Output.Format
	if listFormat != "" {
		format = listFormat
	}
	formatter, err := digest.New(format, !noColor && isTerminal(out))
	if err != nil {
		return err
	}

	res := a.agg.Aggregate(ctx)

	if listVerbose {
		for _, o := range res.Outcomes {
			switch {
			case o.Err != nil:
				fmt.Fprintf(errOut, "  %-14s FAIL %v\n", o.Source, o.Err)
			case o.Cached:
				fmt.Fprintf(errOut, "  %-14s %d posts (cached)\n", o.Source, o.Posts)
			default:
				fmt.Fprintf(errOut, "  %-14s %d posts\n", o.Source, o.Posts)
			}
		}
	}

	return formatter.Format(out, digest.NewInput(res))
}

func parseEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("--every must be positive")
	}
	return d, nil
}

// runWatch calls runOnce immediately and then every interval until ctx is done.
// A failed run is logged and the loop continues.
func runWatch(ctx context.Context, every time.Duration, runOnce func() error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			slog.Error("list: run failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
