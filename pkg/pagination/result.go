package pagination

import (
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
)

// PageRequest asks for one page. Page is 1-based; Size is clamped to the
// entity's bounds. Cursor, when set, is a NextCursor from an earlier
// PageResult for the page immediately before Page and skips replay.
type PageRequest struct {
	Page   int
	Size   int
	Cursor string
}

// PageResult is the uniform page envelope.
type PageResult struct {
	Records []*extract.Record `json:"records"`
	Page    int               `json:"page"`
	Size    int               `json:"size"`

	// TotalRecords and TotalPages are authoritative only when TotalsExact is
	// true. Otherwise they are running estimates from what has been seen.
	TotalRecords int  `json:"total_records"`
	TotalPages   int  `json:"total_pages"`
	TotalsExact  bool `json:"totals_exact"`

	// HasNext is exact with a vendor total or cursor, otherwise the heuristic
	// "returned == size".
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`

	// NextCursor is the cursor for the following page, "" when none.
	NextCursor string `json:"next_cursor,omitempty"`

	// Failure is the swallowed transport or parse failure behind an empty page.
	Failure error `json:"-"`
}

// PageQuery is one round trip the engine asks the fetcher to perform.
type PageQuery struct {
	// Page is the page this round trip returns (replayed pages included).
	Page int
	Size int

	// Params are the paging parameters to merge over the entity's own parameters.
	Params *filter.Params
}

// Page is the outcome of one successful round trip.
type Page struct {
	Body    any
	Records []*extract.Record
}
