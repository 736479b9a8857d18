// Package fetch retrieves a blog's post collection from its query endpoint
// and classifies every way that can go wrong.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Fetcher retrieves one endpoint. A failed fetch returns an *Error.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*Collection, error)
}

// Kind classifies a fetch failure.
type Kind int

const (
	KindTransport Kind = iota + 1 // DNS, connection, timeout
	KindProtocol                  // bad status, empty or malformed body, upstream error marker
	KindEmpty                     // upstream reports no posts
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Error is a failed fetch. It never aborts an aggregation; the source simply
// contributes nothing.
type Error struct {
	Kind     Kind
	Endpoint string
	Status   int // HTTP status, 0 when no response was read
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsEmpty reports whether err means the source has no posts rather than
// that something broke.
func IsEmpty(err error) bool {
	return KindOf(err) == KindEmpty
}

// Author is the post author as reported by the REST API.
type Author struct {
	Name string `json:"name,omitempty"`
}

// Entry is one post of a collection.
type Entry struct {
	ID      int64  `json:"ID,omitempty"`
	Title   string `json:"title"`
	URL     string `json:"URL"`
	Date    string `json:"date"`
	Excerpt string `json:"excerpt,omitempty"`
	Author  Author `json:"author"`

	// Raw is the entry exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Collection is the decoded post list of one endpoint.
type Collection struct {
	Found int
	Posts []Entry
}

// Encode renders c in the REST response shape accepted by Decode.
func (c *Collection) Encode() ([]byte, error) {
	posts := make([]json.RawMessage, 0, len(c.Posts))
	for _, e := range c.Posts {
		raw := e.Raw
		if len(raw) == 0 {
			b, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("encode entry: %w", err)
			}
			raw = b
		}
		posts = append(posts, raw)
	}
	return json.Marshal(struct {
		Found int               `json:"found"`
		Posts []json.RawMessage `json:"posts"`
	}{Found: c.Found, Posts: posts})
}

// foundCount accepts the "found" field as either a number or a numeric
// string.
type foundCount struct {
	n       int
	present bool
}

func (f *foundCount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "null" || s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("found: %w", err)
	}
	f.n = n
	f.present = true
	return nil
}

type payload struct {
	Found   foundCount        `json:"found"`
	Posts   []json.RawMessage `json:"posts"`
	Error   json.RawMessage   `json:"error"`
	Message string            `json:"message"`
}

// Decode validates a response body and parses it into a Collection.
// The returned error, if any, is an *Error without Endpoint set.
func Decode(body []byte) (*Collection, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &Error{Kind: KindProtocol, Err: errors.New("empty body")}
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("decode body: %w", err)}
	}
	switch v := raw.(type) {
	case nil:
		return nil, &Error{Kind: KindEmpty, Err: errors.New("null payload")}
	case []any:
		if len(v) == 0 {
			return nil, &Error{Kind: KindEmpty, Err: errors.New("empty payload")}
		}
		return nil, &Error{Kind: KindProtocol, Err: errors.New("unexpected array payload")}
	case map[string]any:
		if len(v) == 0 {
			return nil, &Error{Kind: KindEmpty, Err: errors.New("empty payload")}
		}
	default:
		return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("unexpected %T payload", raw)}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("decode body: %w", err)}
	}

	if marker := errorMarker(p.Error); marker != "" {
		err := fmt.Errorf("upstream error %q", marker)
		if p.Message != "" {
			err = fmt.Errorf("upstream error %q: %s", marker, p.Message)
		}
		return nil, &Error{Kind: KindProtocol, Err: err}
	}

	if p.Found.present && p.Found.n == 0 {
		return nil, &Error{Kind: KindEmpty, Err: errors.New("found 0 posts")}
	}
	if len(p.Posts) == 0 {
		return nil, &Error{Kind: KindEmpty, Err: errors.New("no posts in payload")}
	}

	c := &Collection{Found: p.Found.n, Posts: make([]Entry, 0, len(p.Posts))}
	if !p.Found.present {
		c.Found = len(p.Posts)
	}
	for i, raw := range p.Posts {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("decode post %d: %w", i, err)}
		}
		e.Raw = append(json.RawMessage(nil), raw...)
		c.Posts = append(c.Posts, e)
	}
	return c, nil
}

// errorMarker returns the upstream error value as text, or "" if the field
// is absent, null, false or empty.
func errorMarker(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`:
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return s
}
