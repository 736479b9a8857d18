// Package source holds the list of blogs to aggregate and turns each one
// into a query endpoint.
package source

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

const (
	// DefaultTemplate is the WordPress.com REST endpoint for a site's posts.
	DefaultTemplate = "https://public-api.wordpress.com/rest/v1.1/sites/{id}/posts/"

	// DefaultFeedTemplate is the RSS feed of a Make WordPress team blog.
	DefaultFeedTemplate = "https://make.wordpress.org/{name}/feed/"
)

// Source is one configured remote blog.
type Source struct {
	Name string // logical name, e.g. "core"
	ID   string // blog ID used to build the endpoint
}

// EndpointFunc builds the query URL for a source.
type EndpointFunc func(s Source) string

// OverrideFunc receives the full name to ID mapping and returns the mapping
// to use instead. Returning nil or an empty map disables every source.
type OverrideFunc func(sources map[string]string) map[string]string

// DefaultSources returns the Make WordPress team blogs.
func DefaultSources() []Source {
	return []Source{
		{Name: "core", ID: "38254163"},
		{Name: "design", ID: "31759332"},
		{Name: "mobile", ID: "39085466"},
		{Name: "accessibility", ID: "29901991"},
		{Name: "polyglots", ID: "31792945"},
		{Name: "support", ID: "38494741"},
		{Name: "themes", ID: "31759950"},
		{Name: "docs", ID: "31760022"},
		{Name: "community", ID: "42922441"},
		{Name: "plugins", ID: "31760039"},
		{Name: "training", ID: "46403572"},
		{Name: "meta", ID: "42105265"},
		{Name: "tv", ID: "94469038"},
		{Name: "flow", ID: "69109521"},
	}
}

// TemplateEndpoint returns an EndpointFunc that substitutes the path-escaped
// source ID for {id} and source name for {name} in tmpl.
func TemplateEndpoint(tmpl string) EndpointFunc {
	return func(s Source) string {
		r := strings.NewReplacer(
			"{id}", url.PathEscape(s.ID),
			"{name}", url.PathEscape(s.Name),
		)
		return r.Replace(tmpl)
	}
}

// Registry maps source names to IDs, preserving registration order.
type Registry struct {
	order    []string
	ids      map[string]string
	override OverrideFunc
	endpoint EndpointFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithSources replaces the default seed list. Entries with an empty name or
// ID are skipped.
func WithSources(sources []Source) Option {
	return func(r *Registry) {
		r.order = nil
		r.ids = make(map[string]string, len(sources))
		for _, s := range sources {
			_ = r.Register(s.Name, s.ID)
		}
	}
}

// WithOverride installs the override hook applied by List.
func WithOverride(fn OverrideFunc) Option {
	return func(r *Registry) {
		r.override = fn
	}
}

// WithEndpoint replaces the endpoint template.
func WithEndpoint(fn EndpointFunc) Option {
	return func(r *Registry) {
		if fn != nil {
			r.endpoint = fn
		}
	}
}

// NewRegistry creates a registry seeded with DefaultSources.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ids:      make(map[string]string),
		endpoint: TemplateEndpoint(DefaultTemplate),
	}
	for _, s := range DefaultSources() {
		_ = r.Register(s.Name, s.ID)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a source or replaces the ID of an existing one. A replaced
// source keeps its position.
func (r *Registry) Register(name, id string) error {
	name = strings.TrimSpace(name)
	id = strings.TrimSpace(id)
	if name == "" {
		return errors.New("source: name is required")
	}
	if id == "" {
		return errors.New("source: id is required")
	}
	if _, ok := r.ids[name]; !ok {
		r.order = append(r.order, name)
	}
	r.ids[name] = id
	return nil
}

// List returns the sources after the override hook has run.
//
// Names already in the registry keep registry order; names introduced by the
// hook follow in lexical order. A hook that returns nothing yields an empty
// list.
func (r *Registry) List() []Source {
	if r.override == nil {
		out := make([]Source, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, Source{Name: name, ID: r.ids[name]})
		}
		return out
	}

	current := make(map[string]string, len(r.ids))
	for k, v := range r.ids {
		current[k] = v
	}
	replaced := r.override(current)
	if len(replaced) == 0 {
		return []Source{}
	}

	out := make([]Source, 0, len(replaced))
	seen := make(map[string]bool, len(replaced))
	for _, name := range r.order {
		id, ok := replaced[name]
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, Source{Name: name, ID: id})
		seen[name] = true
	}

	var added []string
	for name, id := range replaced {
		if seen[name] || strings.TrimSpace(name) == "" || strings.TrimSpace(id) == "" {
			continue
		}
		added = append(added, name)
	}
	sort.Strings(added)
	for _, name := range added {
		out = append(out, Source{Name: name, ID: replaced[name]})
	}
	return out
}

// Endpoint returns the query URL for s.
func (r *Registry) Endpoint(s Source) string {
	return r.endpoint(s)
}

// Endpoints returns the query URL of every listed source, in List order.
func (r *Registry) Endpoints() []string {
	sources := r.List()
	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, r.Endpoint(s))
	}
	return urls
}
