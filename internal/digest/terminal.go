package digest

import (
	"fmt"
	"io"
	"strings"
)

// TerminalFormatter formats posts for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the posts to w, newest first, followed by failed sources.
func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	now := input.now()
	failed := failures(input.Outcomes)

	header := fmt.Sprintf("makereader: %d sources, %d posts", len(input.Outcomes), len(input.Posts))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(input.Posts) == 0 {
		fmt.Fprintln(w, "No posts found.")
	}

	for _, p := range input.Posts {
		fmt.Fprintf(w, "  %s %s\n", f.green(f.bold("["+p.Source+"]")), p.Title)
		meta := published(p.PublishedAt, now)
		if p.Author != "" {
			meta += " by " + p.Author
		}
		fmt.Fprintf(w, "      %s\n", f.dim(meta))
		if p.URL != "" {
			fmt.Fprintf(w, "      %s\n", f.dim(p.URL))
		}
		fmt.Fprintln(w)
	}

	if len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, o := range failed {
			parts = append(parts, fmt.Sprintf("%s (%s)", o.Source, failureKind(o.Err)))
		}
		fmt.Fprintln(w, f.yellow(fmt.Sprintf("Unavailable: %s", strings.Join(parts, ", "))))
	}

	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
