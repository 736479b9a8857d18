package fetch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// FeedClient fetches RSS/Atom feeds and presents them as a Collection, for
// blogs reached through their feed instead of the REST API.
type FeedClient struct {
	parser  *gofeed.Parser
	timeout time.Duration
	limiter *rate.Limiter
}

// NewFeedClient creates a feed client. It accepts the same options as
// NewClient.
func NewFeedClient(opts ...ClientOption) *FeedClient {
	base := NewClient(opts...)

	hc := *base.client
	transport := hc.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	hc.Transport = &userAgentTransport{base: transport, userAgent: base.userAgent}

	fp := gofeed.NewParser()
	fp.Client = &hc
	return &FeedClient{parser: fp, timeout: base.timeout, limiter: base.limiter}
}

func (f *FeedClient) Fetch(ctx context.Context, endpoint string) (*Collection, error) {
	// The timeout covers the request only, not the wait for a limiter slot.
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(endpoint, ctx)
	if err != nil {
		return nil, classifyFeedError(err, endpoint)
	}
	if len(feed.Items) == 0 {
		return nil, &Error{Kind: KindEmpty, Endpoint: endpoint, Status: http.StatusOK, Err: errors.New("feed has no items")}
	}

	return collectionFromFeed(feed), nil
}

func classifyFeedError(err error, endpoint string) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return &Error{Kind: KindProtocol, Endpoint: endpoint, Status: httpErr.StatusCode, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	return &Error{Kind: KindProtocol, Endpoint: endpoint, Status: http.StatusOK, Err: err}
}

func collectionFromFeed(feed *gofeed.Feed) *Collection {
	c := &Collection{Found: len(feed.Items), Posts: make([]Entry, 0, len(feed.Items))}
	for _, item := range feed.Items {
		e := Entry{
			Title:   strings.TrimSpace(html.UnescapeString(item.Title)),
			URL:     item.Link,
			Excerpt: stripHTML(item.Description),
		}
		if t := itemPublishedTime(item); !t.IsZero() {
			e.Date = t.Format(time.RFC3339)
		}
		if item.Author != nil {
			e.Author.Name = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			e.Author.Name = item.Authors[0].Name
		}
		c.Posts = append(c.Posts, e)
	}
	return c
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// userAgentTransport injects a User-Agent header into every request.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}
