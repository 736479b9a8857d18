package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/makereader/internal/cache"
	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/ppiankov/makereader/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned results keyed by endpoint and counts calls.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*fetch.Collection
	errs    map[string]error
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]*fetch.Collection),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, endpoint string) (*fetch.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if err, ok := f.errs[endpoint]; ok {
		return nil, err
	}
	if c, ok := f.results[endpoint]; ok {
		return c, nil
	}
	return nil, &fetch.Error{Kind: fetch.KindProtocol, Endpoint: endpoint, Status: 404, Err: errors.New("HTTP 404")}
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func collection(entries ...fetch.Entry) *fetch.Collection {
	return &fetch.Collection{Found: len(entries), Posts: entries}
}

func entry(title, date string) fetch.Entry {
	return fetch.Entry{Title: title, URL: "https://example.com/" + title, Date: date}
}

func endpointFor(id string) string {
	return "http://blogs.test/" + id
}

func sourceEndpoint(s source.Source) string {
	return endpointFor(s.ID)
}

func testRegistry(sources ...source.Source) *source.Registry {
	return source.NewRegistry(
		source.WithSources(sources),
		source.WithEndpoint(sourceEndpoint),
	)
}

func testStore(t *testing.T) *cache.Memory {
	t.Helper()
	m, err := cache.NewMemory(64)
	require.NoError(t, err)
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func titles(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}

func TestAggregate_SortsAndTruncates(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("jan3", "2024-01-03T00:00:00+00:00"))
	f.results[endpointFor("2")] = collection(entry("jan1", "2024-01-01T00:00:00+00:00"))
	f.results[endpointFor("3")] = collection(entry("jan5", "2024-01-05T00:00:00+00:00"))

	reg := testRegistry(source.Source{Name: "a", ID: "1"}, source.Source{Name: "b", ID: "2"}, source.Source{Name: "c", ID: "3"})
	agg := New(reg, testStore(t), f, WithMaxPosts(2), WithLogger(quietLogger()))

	posts := agg.Posts(context.Background())
	require.Len(t, posts, 2)
	assert.Equal(t, []string{"jan5", "jan3"}, titles(posts))
	assert.Equal(t, "c", posts[0].Source)
	assert.Equal(t, "a", posts[1].Source)
}

func TestAggregate_DefaultMaximum(t *testing.T) {
	f := newFakeFetcher()
	var sources []source.Source
	for i := 0; i < 5; i++ {
		id := fmt.Sprint(i)
		sources = append(sources, source.Source{Name: "s" + id, ID: id})
		f.results[endpointFor(id)] = collection(
			entry("p"+id+"a", fmt.Sprintf("2024-02-%02dT00:00:00Z", i+1)),
			entry("p"+id+"b", fmt.Sprintf("2024-03-%02dT00:00:00Z", i+1)),
		)
	}

	agg := New(testRegistry(sources...), testStore(t), f, WithLogger(quietLogger()))
	posts := agg.Posts(context.Background())

	require.Len(t, posts, DefaultMaxPosts)
	assert.Equal(t, []string{"p4b", "p3b", "p2b"}, titles(posts))
}

func TestAggregate_TieBreakBySourceOrder(t *testing.T) {
	f := newFakeFetcher()
	same := "2024-01-01T12:00:00Z"
	f.results[endpointFor("1")] = collection(entry("first", same))
	f.results[endpointFor("2")] = collection(entry("second", same))
	f.results[endpointFor("3")] = collection(entry("third", same))

	reg := testRegistry(source.Source{Name: "a", ID: "1"}, source.Source{Name: "b", ID: "2"}, source.Source{Name: "c", ID: "3"})
	agg := New(reg, testStore(t), f, WithMaxPosts(10), WithLogger(quietLogger()))

	assert.Equal(t, []string{"first", "second", "third"}, titles(agg.Posts(context.Background())))
}

func TestAggregate_UndatedPostsSortLast(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("undated", "yesterday"), entry("dated", "2020-01-01T00:00:00Z"))

	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), testStore(t), f, WithMaxPosts(10), WithLogger(quietLogger()))
	posts := agg.Posts(context.Background())

	require.Len(t, posts, 2)
	assert.Equal(t, "dated", posts[0].Title)
	assert.True(t, posts[1].PublishedAt.IsZero())
}

func TestAggregate_CachesWithinTTL(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("only", "2024-01-01T00:00:00Z"))

	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), testStore(t), f, WithLogger(quietLogger()))
	ctx := context.Background()

	first := agg.Aggregate(ctx)
	second := agg.Aggregate(ctx)

	assert.Equal(t, 1, f.totalCalls(), "second call should be served from cache")
	assert.Equal(t, titles(first.Posts), titles(second.Posts))
	require.Len(t, second.Posts, 1)
	assert.False(t, first.Outcomes[0].Cached)
	assert.True(t, second.Outcomes[0].Cached)
}

func TestAggregate_CacheKeyAndTTL(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("only", "2024-01-01T00:00:00Z"))

	store := &recordingStore{}
	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), store, f, WithTTL(42*time.Second), WithLogger(quietLogger()))
	agg.Posts(context.Background())

	require.Len(t, store.sets, 1)
	assert.Equal(t, cache.Key(endpointFor("1")), store.sets[0].key)
	assert.Equal(t, 42*time.Second, store.sets[0].ttl)
}

func TestAggregate_NonPositiveTTLSkipsCache(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("only", "2024-01-01T00:00:00Z"))

	store := &recordingStore{}
	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), store, f, WithTTL(-time.Second), WithLogger(quietLogger()))
	ctx := context.Background()

	assert.Len(t, agg.Posts(ctx), 1)
	assert.Len(t, agg.Posts(ctx), 1)
	assert.Empty(t, store.sets)
	assert.Equal(t, 2, f.totalCalls())
}

func TestAggregate_RefetchesAfterExpiry(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("only", "2024-01-01T00:00:00Z"))

	store := &recordingStore{}
	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), store, f, WithLogger(quietLogger()))
	ctx := context.Background()

	agg.Posts(ctx)
	store.expireAll()
	agg.Posts(ctx)

	assert.Equal(t, 2, f.totalCalls())
}

func TestAggregate_AllSourcesFail(t *testing.T) {
	f := newFakeFetcher()
	f.errs[endpointFor("1")] = &fetch.Error{Kind: fetch.KindTransport, Err: errors.New("dial tcp: connection refused")}
	f.errs[endpointFor("2")] = &fetch.Error{Kind: fetch.KindProtocol, Status: 200, Err: errors.New(`upstream error "jetpack_error"`)}
	f.errs[endpointFor("3")] = &fetch.Error{Kind: fetch.KindEmpty, Err: errors.New("found 0 posts")}

	reg := testRegistry(source.Source{Name: "a", ID: "1"}, source.Source{Name: "b", ID: "2"}, source.Source{Name: "c", ID: "3"})
	store := testStore(t)
	agg := New(reg, store, f, WithLogger(quietLogger()))

	res := agg.Aggregate(context.Background())
	assert.NotNil(t, res.Posts)
	assert.Empty(t, res.Posts)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, fetch.KindTransport, fetch.KindOf(res.Outcomes[0].Err))
	assert.Equal(t, fetch.KindProtocol, fetch.KindOf(res.Outcomes[1].Err))
	assert.True(t, fetch.IsEmpty(res.Outcomes[2].Err))
	assert.Equal(t, 0, store.Len(), "failures must not be cached")
}

func TestAggregate_PartialFailure(t *testing.T) {
	f := newFakeFetcher()
	f.errs[endpointFor("1")] = &fetch.Error{Kind: fetch.KindTransport, Err: errors.New("timeout")}
	f.results[endpointFor("2")] = collection(entry("survivor", "2024-01-01T00:00:00Z"))

	reg := testRegistry(source.Source{Name: "a", ID: "1"}, source.Source{Name: "b", ID: "2"})
	agg := New(reg, testStore(t), f, WithLogger(quietLogger()))

	posts := agg.Posts(context.Background())
	require.Len(t, posts, 1)
	assert.Equal(t, "survivor", posts[0].Title)
	assert.Equal(t, "b", posts[0].Source)
}

func TestAggregate_OverrideHookSingleEndpoint(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("123")] = collection(entry("x-post", "2024-01-01T00:00:00Z"))

	reg := source.NewRegistry(
		source.WithEndpoint(sourceEndpoint),
		source.WithOverride(func(map[string]string) map[string]string {
			return map[string]string{"x": "123"}
		}),
	)
	agg := New(reg, testStore(t), f, WithLogger(quietLogger()))

	posts := agg.Posts(context.Background())
	assert.Equal(t, 1, f.totalCalls())
	assert.Equal(t, 1, f.calls[endpointFor("123")])
	require.Len(t, posts, 1)
	assert.Equal(t, "x", posts[0].Source)
}

func TestAggregate_EmptyOverrideShortCircuits(t *testing.T) {
	f := newFakeFetcher()
	store := &recordingStore{}
	reg := source.NewRegistry(source.WithOverride(func(map[string]string) map[string]string {
		return map[string]string{}
	}))
	agg := New(reg, store, f, WithLogger(quietLogger()))

	res := agg.Aggregate(context.Background())
	assert.Empty(t, res.Posts)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, 0, f.totalCalls())
	assert.Equal(t, 0, store.gets)
}

func TestAggregate_CacheErrorsAreNotFatal(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("fresh", "2024-01-01T00:00:00Z"))

	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), failingStore{}, f, WithLogger(quietLogger()))
	posts := agg.Posts(context.Background())

	require.Len(t, posts, 1)
	assert.Equal(t, "fresh", posts[0].Title)
}

func TestAggregate_CorruptCacheEntryIsRefetched(t *testing.T) {
	f := newFakeFetcher()
	f.results[endpointFor("1")] = collection(entry("fresh", "2024-01-01T00:00:00Z"))

	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cache.Key(endpointFor("1")), []byte("garbage"), time.Hour))

	agg := New(testRegistry(source.Source{Name: "a", ID: "1"}), store, f, WithLogger(quietLogger()))
	posts := agg.Posts(ctx)

	assert.Equal(t, 1, f.totalCalls())
	require.Len(t, posts, 1)
}

func TestAggregate_Concurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		id := strings.Trim(r.URL.Path, "/")
		fmt.Fprintf(w, `{"found":1,"posts":[{"title":"post-%s","date":"2024-01-%sT00:00:00Z"}]}`, id, id)
	}))
	defer ts.Close()

	var sources []source.Source
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("%02d", i)
		sources = append(sources, source.Source{Name: "s" + id, ID: id})
	}
	reg := source.NewRegistry(
		source.WithSources(sources),
		source.WithEndpoint(source.TemplateEndpoint(ts.URL+"/{id}")),
	)

	agg := New(reg, testStore(t), fetch.NewClient(), WithConcurrency(2), WithMaxPosts(6), WithLogger(quietLogger()))
	posts := agg.Posts(context.Background())

	require.Len(t, posts, 6)
	assert.Equal(t, "post-06", posts[0].Title)
	assert.Equal(t, "post-01", posts[5].Title)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAggregate_EndToEndWithHTTP(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/rest/v1.1/sites/1/posts/":
			fmt.Fprint(w, `{"found":2,"posts":[
				{"ID":10,"title":"Core A","URL":"https://make/core/a","date":"2024-01-03T00:00:00+00:00","author":{"name":"x"}},
				{"ID":11,"title":"Core B","URL":"https://make/core/b","date":"2024-01-01T00:00:00+00:00","author":{"name":"y"}}]}`)
		case "/rest/v1.1/sites/2/posts/":
			fmt.Fprint(w, `{"error":"jetpack_error","message":"inaccessible"}`)
		case "/rest/v1.1/sites/3/posts/":
			fmt.Fprint(w, `{"found":1,"posts":[{"ID":30,"title":"Design A","URL":"https://make/design/a","date":"2024-01-05T00:00:00+00:00","author":{"name":"z"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	reg := source.NewRegistry(
		source.WithSources([]source.Source{{Name: "core", ID: "1"}, {Name: "meta", ID: "2"}, {Name: "design", ID: "3"}}),
		source.WithEndpoint(source.TemplateEndpoint(ts.URL+"/rest/v1.1/sites/{id}/posts/")),
	)
	agg := New(reg, testStore(t), fetch.NewClient(), WithMaxPosts(2), WithLogger(quietLogger()))

	posts := agg.Posts(context.Background())
	require.Len(t, posts, 2)
	assert.Equal(t, []string{"Design A", "Core A"}, titles(posts))
	assert.Equal(t, "z", posts[0].Author)
	assert.Contains(t, string(posts[0].Raw), `"ID":30`)

	agg.Posts(context.Background())
	assert.Equal(t, int32(4), hits.Load(), "only the failed source should be refetched")
}

func TestAggregate_RateLimitedSourcesAllSucceed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"found":1,"posts":[{"title":"post","date":"2024-01-01T00:00:00Z"}]}`)
	}))
	defer ts.Close()

	reg := source.NewRegistry(source.WithEndpoint(source.TemplateEndpoint(ts.URL + "/{id}")))
	require.Len(t, reg.List(), 14)

	// Draining the limiter takes ~1.3s, longer than any single fetch may run.
	client := fetch.NewClient(fetch.WithTimeout(500*time.Millisecond), fetch.WithRateLimit(100*time.Millisecond))
	agg := New(reg, testStore(t), client, WithMaxPosts(14), WithLogger(quietLogger()))

	res := agg.Aggregate(context.Background())
	require.Len(t, res.Outcomes, 14)
	for _, o := range res.Outcomes {
		assert.NoError(t, o.Err, o.Source)
	}
	assert.Len(t, res.Posts, 14)
}

type setCall struct {
	key string
	ttl time.Duration
}

// recordingStore is an in-memory Store whose entries can be expired on demand.
type recordingStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    []setCall
	gets    int
}

func (s *recordingStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *recordingStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][]byte)
	}
	s.entries[key] = value
	s.sets = append(s.sets, setCall{key: key, ttl: ttl})
	return nil
}

func (s *recordingStore) expireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk I/O error")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk I/O error")
}
