// Package reader merges the recent posts of every configured blog into one
// short, newest-first list.
package reader

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ppiankov/makereader/internal/cache"
	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/ppiankov/makereader/internal/source"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxPosts = 3
	DefaultTTL      = cache.DefaultTTL
)

// Aggregator fetches, caches and merges posts from a source registry.
type Aggregator struct {
	registry    *source.Registry
	store       cache.Store
	fetcher     fetch.Fetcher
	ttl         time.Duration
	maxPosts    int
	concurrency int
	logger      *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTTL sets how long a successful fetch stays cached. Zero or negative
// disables cache writes.
func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.ttl = ttl
	}
}

// WithMaxPosts bounds the length of the result.
func WithMaxPosts(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxPosts = n
		}
	}
}

// WithConcurrency bounds the number of sources processed at once.
// Zero means one task per source.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger used for per-source diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an aggregator. All three collaborators are required.
func New(reg *source.Registry, store cache.Store, f fetch.Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: reg,
		store:    store,
		fetcher:  f,
		ttl:      DefaultTTL,
		maxPosts: DefaultMaxPosts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Posts returns the newest posts across all sources, at most the configured
// maximum. It never fails; an empty slice means nothing could be fetched.
func (a *Aggregator) Posts(ctx context.Context) []Post {
	return a.Aggregate(ctx).Posts
}

// Aggregate is Posts plus a per-source account of what happened.
func (a *Aggregator) Aggregate(ctx context.Context) Result {
	sources := a.registry.List()
	if len(sources) == 0 {
		a.logger.Info("reader: no sources configured")
		return Result{Posts: []Post{}, Outcomes: []Outcome{}}
	}

	outcomes := make([]Outcome, len(sources))
	collected := make([][]Post, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			collected[i], outcomes[i] = a.collect(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var posts []Post
	for _, p := range collected {
		posts = append(posts, p...)
	}
	sortNewestFirst(posts)
	if len(posts) > a.maxPosts {
		posts = posts[:a.maxPosts]
	}
	if posts == nil {
		posts = []Post{}
	}

	return Result{Posts: posts, Outcomes: outcomes}
}

// collect returns the posts one source contributes, from cache when possible.
func (a *Aggregator) collect(ctx context.Context, src source.Source) ([]Post, Outcome) {
	endpoint := a.registry.Endpoint(src)
	key := cache.Key(endpoint)
	out := Outcome{Source: src.Name, Endpoint: endpoint}

	if coll := a.cached(ctx, src, key); coll != nil {
		posts := postsFromCollection(src.Name, coll)
		out.Cached = true
		out.Posts = len(posts)
		return posts, out
	}

	coll, err := a.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		out.Err = err
		if fetch.IsEmpty(err) {
			a.logger.Debug("reader: source has no posts", "source", src.Name, "endpoint", endpoint)
		} else {
			a.logger.Warn("reader: source dropped", "source", src.Name, "kind", fetch.KindOf(err).String(), "err", err)
		}
		return nil, out
	}

	if a.ttl > 0 {
		a.remember(ctx, src, key, coll)
	}

	posts := postsFromCollection(src.Name, coll)
	out.Posts = len(posts)
	return posts, out
}

func (a *Aggregator) remember(ctx context.Context, src source.Source, key string, coll *fetch.Collection) {
	body, err := coll.Encode()
	if err != nil {
		a.logger.Warn("reader: encode for cache", "source", src.Name, "err", err)
		return
	}
	if err := a.store.Set(ctx, key, body, a.ttl); err != nil {
		a.logger.Warn("reader: cache write failed", "source", src.Name, "key", key, "err", err)
	}
}

func (a *Aggregator) cached(ctx context.Context, src source.Source, key string) *fetch.Collection {
	body, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.logger.Warn("reader: cache read failed", "source", src.Name, "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	coll, err := fetch.Decode(body)
	if err != nil {
		a.logger.Warn("reader: discarding unreadable cache entry", "source", src.Name, "key", key, "err", err)
		return nil
	}
	a.logger.Debug("reader: cache hit", "source", src.Name, "key", key)
	return coll
}

// sortNewestFirst orders posts by publish date, newest first. Equal dates
// keep their input order; undated posts go last.
func sortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		pi, pj := posts[i].PublishedAt, posts[j].PublishedAt
		if pi.IsZero() != pj.IsZero() {
			return pj.IsZero()
		}
		return pi.After(pj)
	})
}
