package digest

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats posts as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the posts as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	now := input.now()
	failed := failures(input.Outcomes)

	fmt.Fprintf(w, "# Make WordPress updates\n\n")
	fmt.Fprintf(w, "%d sources, %d posts\n\n", len(input.Outcomes), len(input.Posts))

	if len(input.Posts) == 0 {
		fmt.Fprintln(w, "No posts found.")
		fmt.Fprintln(w)
	}

	for _, p := range input.Posts {
		title := escapeMarkdown(p.Title)
		if p.URL != "" {
			title = fmt.Sprintf("[%s](%s)", title, p.URL)
		}
		fmt.Fprintf(w, "- **%s** %s _%s_", p.Source, title, published(p.PublishedAt, now))
		if p.Author != "" {
			fmt.Fprintf(w, " by %s", escapeMarkdown(p.Author))
		}
		fmt.Fprintln(w)
	}
	if len(input.Posts) > 0 {
		fmt.Fprintln(w)
	}

	if len(failed) > 0 {
		fmt.Fprintf(w, "## Unavailable (%d)\n\n", len(failed))
		for _, o := range failed {
			fmt.Fprintf(w, "- %s: %s\n", o.Source, failureKind(o.Err))
		}
	}

	return nil
}

var markdownEscaper = strings.NewReplacer(
	`[`, `\[`,
	`]`, `\]`,
	`*`, `\*`,
	`_`, `\_`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
