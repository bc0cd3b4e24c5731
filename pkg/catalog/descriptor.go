package catalog

import (
	"regexp"
	"strings"
)

// Style identifies the pagination contract a vendor endpoint exposes.
type Style string

const (
	// StyleNone is a single request without pagination.
	StyleNone Style = "none"

	// StyleOffset maps page N to offset (N-1)*size, or to a page-number parameter.
	StyleOffset Style = "offset"

	// StyleCursor follows an opaque cursor returned by the vendor ("after", "next_page_token").
	StyleCursor Style = "cursor"

	// StyleComputed derives the next cursor from the largest record identifier seen.
	StyleComputed Style = "computed"

	// StyleHeuristic has neither cursor nor count; totals are estimated.
	StyleHeuristic Style = "heuristic"
)

// Valid reports whether s is a known pagination style.
func (s Style) Valid() bool {
	switch s {
	case StyleNone, StyleOffset, StyleCursor, StyleComputed, StyleHeuristic:
		return true
	default:
		return false
	}
}

// Pagination describes how an entity pages and which vendor parameters carry
// the paging state.
type Pagination struct {
	// Style selects the pagination strategy.
	Style Style `yaml:"style"`

	// OffsetParam is the query parameter receiving (page-1)*size (e.g. "offset", "startAt").
	OffsetParam string `yaml:"offset_param"`

	// PageParam is the query parameter receiving the page number (e.g. "page").
	// Used by offset entities that page by number and by heuristic entities.
	PageParam string `yaml:"page_param"`

	// ZeroBasedPages sends page numbers starting at 0 instead of 1.
	ZeroBasedPages bool `yaml:"zero_based_pages"`

	// SizeParam is the query parameter receiving the page size (e.g. "limit", "per_page").
	SizeParam string `yaml:"size_param"`

	// TotalPath is the dot path to an authoritative total record count in the body.
	TotalPath string `yaml:"total_path"`

	// CursorParam is the query parameter receiving the cursor (e.g. "after", "from_usn").
	CursorParam string `yaml:"cursor_param"`

	// CursorPath is the dot path to the next cursor in the body (e.g. "paging.cursors.after").
	CursorPath string `yaml:"cursor_path"`

	// NextURLPath is the dot path to a "next page" URL whose CursorParam query
	// value is used when CursorPath yields nothing.
	NextURLPath string `yaml:"next_url_path"`

	// IDField is the monotonically increasing record field used by StyleComputed.
	IDField string `yaml:"id_field"`

	// DefaultSize is used when a request does not specify a page size.
	DefaultSize int `yaml:"default_size"`

	// MinSize and MaxSize bound the requested page size.
	MinSize int `yaml:"min_size"`
	MaxSize int `yaml:"max_size"`
}

// Clamp bounds size to [MinSize, MaxSize], substituting DefaultSize for non-positive values.
func (p Pagination) Clamp(size int) int {
	if size <= 0 {
		size = p.DefaultSize
	}
	if p.MinSize > 0 && size < p.MinSize {
		size = p.MinSize
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		size = p.MaxSize
	}
	if size <= 0 {
		size = 1
	}
	return size
}

// Descriptor is one catalog row: everything the engine needs to fetch an entity.
type Descriptor struct {
	// Name is the entity name, unique within a catalog (case-insensitive).
	Name string `yaml:"name"`

	// Endpoint is the path template, e.g. "/v1/accounts/{account_id}/invoices".
	Endpoint string `yaml:"endpoint"`

	// Method is GET (default) or POST.
	Method string `yaml:"method"`

	// RequiredFilters must be present and non-blank for every request.
	// Every Endpoint placeholder must be declared here.
	RequiredFilters []string `yaml:"required_filters"`

	// RootPath is the dot path to the records in the response ("" = body root).
	RootPath string `yaml:"root_path"`

	// Pagination selects and parameterizes the paging strategy.
	Pagination Pagination `yaml:"pagination"`

	// Operators maps operator names ("gt", "lte", ...) to key templates such as
	// "{field}[gt]" or "{field}__gte".
	Operators map[string]string `yaml:"operators"`

	// StaticParams are sent with every request; filters override them.
	StaticParams map[string]string `yaml:"static_params"`
}

// IsPost reports whether the entity is fetched with POST.
func (d Descriptor) IsPost() bool {
	return strings.EqualFold(d.Method, "POST")
}

func (d Descriptor) clone() Descriptor {
	out := d
	if d.RequiredFilters != nil {
		out.RequiredFilters = append([]string(nil), d.RequiredFilters...)
	}
	if d.Operators != nil {
		out.Operators = make(map[string]string, len(d.Operators))
		for k, v := range d.Operators {
			out.Operators[k] = v
		}
	}
	if d.StaticParams != nil {
		out.StaticParams = make(map[string]string, len(d.StaticParams))
		for k, v := range d.StaticParams {
			out.StaticParams[k] = v
		}
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{([^{}/?]+)\}`)

// Placeholders returns the placeholder names in template, in order of appearance,
// without duplicates.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, m[1])
	}
	return names
}

// ExpandPlaceholders replaces every {name} in template with value(name).
func ExpandPlaceholders(template string, value func(name string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		return value(token[1 : len(token)-1])
	})
}
