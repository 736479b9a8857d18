package reader

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ppiankov/makereader/internal/fetch"
)

// Post is one entry of the aggregated list.
type Post struct {
	Title       string
	URL         string
	PublishedAt time.Time // zero if the upstream date could not be parsed
	Source      string    // source name, e.g. "core"
	Author      string
	Excerpt     string
	Raw         json.RawMessage
}

// Outcome describes what one source contributed to an aggregation.
type Outcome struct {
	Source   string
	Endpoint string
	Cached   bool
	Posts    int
	Err      error // *fetch.Error, or nil on success
}

// Result is the output of one aggregation.
type Result struct {
	Posts    []Post
	Outcomes []Outcome
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func postsFromCollection(sourceName string, coll *fetch.Collection) []Post {
	posts := make([]Post, 0, len(coll.Posts))
	for _, e := range coll.Posts {
		posts = append(posts, Post{
			Title:       e.Title,
			URL:         e.URL,
			PublishedAt: parseDate(e.Date),
			Source:      sourceName,
			Author:      e.Author.Name,
			Excerpt:     e.Excerpt,
			Raw:         e.Raw,
		})
	}
	return posts
}
