package pagination

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/rs/zerolog/log"
)

// PageFetcher performs a single round trip. Any error, including a
// non-success status or an unparseable body, is treated as a transport
// failure unless the context was cancelled.
type PageFetcher interface {
	FetchPage(ctx context.Context, q PageQuery) (Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, q PageQuery) (Page, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, q PageQuery) (Page, error) {
	return f(ctx, q)
}

// Engine fetches pages for one entity. It holds no state between calls and is
// safe for concurrent use.
type Engine struct {
	cfg     catalog.Pagination
	fetcher PageFetcher
	fetch   func(ctx context.Context, e *Engine, page, size int, cursor string) (PageResult, error)
}

// NewEngine creates an engine for the style in cfg. Unknown styles behave
// like StyleNone; catalogs reject them at construction.
func NewEngine(cfg catalog.Pagination, fetcher PageFetcher) *Engine {
	e := &Engine{cfg: cfg, fetcher: fetcher}

	switch cfg.Style {
	case catalog.StyleOffset:
		e.fetch = fetchOffset
	case catalog.StyleHeuristic:
		e.fetch = fetchHeuristic
	case catalog.StyleCursor:
		e.fetch = fetchCursor
	case catalog.StyleComputed:
		e.fetch = fetchComputed
	default:
		e.fetch = fetchSingle
	}
	return e
}

// Style returns the engine's pagination style.
func (e *Engine) Style() catalog.Style {
	return e.cfg.Style
}

// Fetch returns the requested page. Transport failures yield an empty page
// with HasNext=false and a nil error. A cancelled context aborts immediately
// and returns the partial result together with the context error.
func (e *Engine) Fetch(ctx context.Context, req PageRequest) (PageResult, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := e.cfg.Clamp(req.Size)

	if err := ctx.Err(); err != nil {
		return e.abort(err, page, size, 0)
	}

	result, err := e.fetch(ctx, e, page, size, req.Cursor)
	if err != nil {
		return result, err
	}

	style := string(e.cfg.Style)
	PagesFetched.WithLabelValues(style).Inc()
	RecordsExtracted.WithLabelValues(style).Add(float64(len(result.Records)))
	return result, nil
}

// roundTrip performs one request for page n.
func (e *Engine) roundTrip(ctx context.Context, n, size int, paging *filter.Params) (Page, error) {
	log.Debug().
		Str("style", string(e.cfg.Style)).
		Int("page", n).
		Int("size", size).
		Msg("Fetching page")

	return e.fetcher.FetchPage(ctx, PageQuery{Page: n, Size: size, Params: paging})
}

// fail converts a round-trip error into the page-level outcome: an aborted
// partial result for cancellation, an empty page otherwise.
func (e *Engine) fail(ctx context.Context, err error, page, size, seen int) (PageResult, error) {
	if isCancellation(ctx, err) {
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return e.abort(cause, page, size, seen)
	}

	PageFailures.WithLabelValues(string(e.cfg.Style), "transport").Inc()
	log.Warn().
		Err(err).
		Str("style", string(e.cfg.Style)).
		Int("page", page).
		Msg("Page fetch failed - returning empty page")

	return PageResult{
		Page:         page,
		Size:         size,
		HasPrevious:  page > 1,
		TotalRecords: seen,
		Failure:      err,
	}, nil
}

func (e *Engine) abort(cause error, page, size, seen int) (PageResult, error) {
	PageFailures.WithLabelValues(string(e.cfg.Style), "cancelled").Inc()
	log.Debug().
		Err(cause).
		Str("style", string(e.cfg.Style)).
		Int("page", page).
		Int("records_seen", seen).
		Msg("Page fetch aborted")

	return PageResult{
		Page:         page,
		Size:         size,
		HasPrevious:  page > 1,
		TotalRecords: seen,
		Failure:      cause,
	}, cause
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// vendorPage converts the 1-based page to the number the vendor expects.
func (e *Engine) vendorPage(page int) string {
	if e.cfg.ZeroBasedPages {
		return strconv.Itoa(page - 1)
	}
	return strconv.Itoa(page)
}

// applyTotals fills totals from an authoritative count when the body has one,
// else from the running estimate before+returned.
func (e *Engine) applyTotals(r *PageResult, body any, before int) {
	if e.cfg.TotalPath != "" {
		if total, ok := extract.LookupInt(body, e.cfg.TotalPath); ok && total >= 0 {
			r.TotalRecords = int(total)
			r.TotalPages = ceilDiv(r.TotalRecords, r.Size)
			r.TotalsExact = true
			return
		}
	}

	estimateTotals(r, before)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// nextCursor reads the vendor cursor from CursorPath, falling back to the
// CursorParam query value of the URL at NextURLPath.
func (e *Engine) nextCursor(body any) string {
	if e.cfg.CursorPath != "" {
		if c, ok := extract.LookupString(body, e.cfg.CursorPath); ok {
			return c
		}
	}
	if e.cfg.NextURLPath != "" {
		if next, ok := extract.LookupString(body, e.cfg.NextURLPath); ok {
			if u, err := url.Parse(next); err == nil {
				return u.Query().Get(e.cfg.CursorParam)
			}
		}
	}
	return ""
}
