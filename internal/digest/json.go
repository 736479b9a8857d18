package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonDigest struct {
	Meta     jsonMeta      `json:"meta"`
	Posts    []jsonPost    `json:"posts"`
	Failures []jsonFailure `json:"failures,omitempty"`
}

type jsonMeta struct {
	Sources     int    `json:"sources"`
	Posts       int    `json:"posts"`
	Failed      int    `json:"failed"`
	GeneratedAt string `json:"generated_at"`
}

type jsonPost struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Author      string `json:"author,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
}

type jsonFailure struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// JSONFormatter formats posts as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the posts as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	failed := failures(input.Outcomes)

	out := jsonDigest{
		Meta: jsonMeta{
			Sources:     len(input.Outcomes),
			Posts:       len(input.Posts),
			Failed:      len(failed),
			GeneratedAt: input.now().UTC().Format(time.RFC3339),
		},
		Posts: make([]jsonPost, 0, len(input.Posts)),
	}
	for _, p := range input.Posts {
		jp := jsonPost{
			Source:  p.Source,
			Title:   p.Title,
			URL:     p.URL,
			Author:  p.Author,
			Excerpt: p.Excerpt,
		}
		if !p.PublishedAt.IsZero() {
			jp.PublishedAt = p.PublishedAt.UTC().Format(time.RFC3339)
		}
		out.Posts = append(out.Posts, jp)
	}
	for _, o := range failed {
		out.Failures = append(out.Failures, jsonFailure{
			Source:   o.Source,
			Endpoint: o.Endpoint,
			Kind:     failureKind(o.Err),
			Error:    o.Err.Error(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
