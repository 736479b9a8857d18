package cli

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/makereader/internal/cache"
	"github.com/ppiankov/makereader/internal/config"
	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/ppiankov/makereader/internal/reader"
	"github.com/ppiankov/makereader/internal/source"
)

// app is everything one list run needs, built from a Config.
type app struct {
	registry *source.Registry
	agg      *reader.Aggregator
	close    func() error
}

func newRegistry(cfg *config.Config) *source.Registry {
	return source.NewRegistry(cfg.RegistryOptions()...)
}

func openStore(cfg config.CacheConfig) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := cache.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		return db, db.Close, nil
	default:
		mem, err := cache.NewMemory(cfg.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		return mem, func() error { return nil }, nil
	}
}

func newFetcher(cfg config.APIConfig) fetch.Fetcher {
	opts := []fetch.ClientOption{
		fetch.WithTimeout(cfg.Timeout.Duration),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithRateLimit(cfg.RateLimit.Duration),
	}

	var f fetch.Fetcher
	if cfg.Format == "feed" {
		f = fetch.NewFeedClient(opts...)
	} else {
		f = fetch.NewClient(opts...)
	}
	return fetch.WithRetry(f, cfg.Retries)
}

func newApp(cfg *config.Config, maxPosts int) (*app, error) {
	store, closeStore, err := openStore(cfg.Cache)
	if err != nil {
		return nil, err
	}

	if maxPosts <= 0 {
		maxPosts = cfg.Output.MaxPosts
	}

	reg := newRegistry(cfg)
	agg := reader.New(reg, store, newFetcher(cfg.API),
		reader.WithTTL(cfg.Cache.TTL.Duration),
		reader.WithMaxPosts(maxPosts),
		reader.WithConcurrency(cfg.API.Concurrency),
		reader.WithLogger(slog.Default()),
	)
	return &app{registry: reg, agg: agg, close: closeStore}, nil
}
