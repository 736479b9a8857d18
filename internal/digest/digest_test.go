package digest

import (
	"errors"
	"time"

	"github.com/ppiankov/makereader/internal/fetch"
	"github.com/ppiankov/makereader/internal/reader"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func testInput() Input {
	return Input{
		Posts: []reader.Post{
			{
				Title:       "Dev chat agenda",
				URL:         "https://make.wordpress.org/core/agenda",
				PublishedAt: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
				Source:      "core",
				Author:      "Jane",
				Excerpt:     "Agenda for the weekly chat",
			},
			{
				Title:  "Untitled draft",
				Source: "docs",
			},
		},
		Outcomes: []reader.Outcome{
			{Source: "core", Endpoint: "https://api.test/core", Posts: 1},
			{Source: "docs", Endpoint: "https://api.test/docs", Posts: 1, Cached: true},
			{Source: "mobile", Endpoint: "https://api.test/mobile", Err: &fetch.Error{
				Kind:     fetch.KindTransport,
				Endpoint: "https://api.test/mobile",
				Err:      errors.New("connection refused"),
			}},
		},
		Now: testNow,
	}
}
