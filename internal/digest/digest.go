package digest

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/ppiankov/makereader/internal/reader"
)

const dateLayout = "Jan 2, 2006"

// Input is the full input for a digest formatter.
type Input struct {
	Posts    []reader.Post
	Outcomes []reader.Outcome
	Now      time.Time // reference for relative dates; zero means time.Now
}

// Formatter writes a formatted post list to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
}

// New returns the formatter registered under name.
func New(name string, color bool) (Formatter, error) {
	switch name {
	case "terminal":
		return NewTerminal(color), nil
	case "json":
		return NewJSON(), nil
	case "markdown":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}

// NewInput builds formatter input from an aggregation result.
func NewInput(res reader.Result) Input {
	return Input{Posts: res.Posts, Outcomes: res.Outcomes}
}

func (in Input) now() time.Time {
	if in.Now.IsZero() {
		return time.Now()
	}
	return in.Now
}

func failures(outcomes []reader.Outcome) []reader.Outcome {
	var out []reader.Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func failureKind(err error) string {
	return fetch.KindOf(err).String()
}

// published renders a post date as "Jan 5, 2024 (3 days ago)".
func published(t, now time.Time) string {
	if t.IsZero() {
		return "undated"
	}
	return fmt.Sprintf("%s (%s)", t.Format(dateLayout), humanize.RelTime(t, now, "ago", "from now"))
}
