package pagination

import (
	"context"
	"strconv"

	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/rs/zerolog/log"
)

// fetchSingle issues one un-paginated request. Everything lives on page 1.
func fetchSingle(ctx context.Context, e *Engine, page, size int, _ string) (PageResult, error) {
	if page > 1 {
		return PageResult{Page: page, Size: size, HasPrevious: true}, nil
	}

	p, err := e.roundTrip(ctx, 1, size, filter.NewParams())
	if err != nil {
		return e.fail(ctx, err, page, size, 0)
	}

	return PageResult{
		Records:      p.Records,
		Page:         1,
		Size:         size,
		TotalRecords: len(p.Records),
		TotalPages:   1,
		TotalsExact:  true,
	}, nil
}

// fetchOffset requests page N directly. HasNext is exact with a vendor total,
// otherwise "returned == size".
func fetchOffset(ctx context.Context, e *Engine, page, size int, _ string) (PageResult, error) {
	paging := filter.NewParams()
	if e.cfg.OffsetParam != "" {
		paging.Set(e.cfg.OffsetParam, strconv.Itoa((page-1)*size))
	}
	if e.cfg.PageParam != "" {
		paging.Set(e.cfg.PageParam, e.vendorPage(page))
	}
	if e.cfg.SizeParam != "" {
		paging.Set(e.cfg.SizeParam, strconv.Itoa(size))
	}

	p, err := e.roundTrip(ctx, page, size, paging)
	if err != nil {
		return e.fail(ctx, err, page, size, 0)
	}

	before := (page - 1) * size
	r := PageResult{
		Records:     p.Records,
		Page:        page,
		Size:        size,
		HasPrevious: page > 1,
		HasNext:     len(p.Records) == size,
	}
	e.applyTotals(&r, p.Body, before)
	if r.TotalsExact {
		r.HasNext = len(p.Records) > 0 && before+len(p.Records) < r.TotalRecords
	}
	return r, nil
}

// fetchHeuristic treats every page as independent. The page number is only
// advisory and the totals are never authoritative.
func fetchHeuristic(ctx context.Context, e *Engine, page, size int, _ string) (PageResult, error) {
	paging := filter.NewParams()
	if e.cfg.PageParam != "" {
		paging.Set(e.cfg.PageParam, e.vendorPage(page))
	}
	if e.cfg.SizeParam != "" {
		paging.Set(e.cfg.SizeParam, strconv.Itoa(size))
	}

	p, err := e.roundTrip(ctx, page, size, paging)
	if err != nil {
		return e.fail(ctx, err, page, size, 0)
	}

	r := PageResult{
		Records:     p.Records,
		Page:        page,
		Size:        size,
		HasPrevious: page > 1,
		HasNext:     len(p.Records) == size,
	}
	estimateTotals(&r, (page-1)*size)
	return r, nil
}

// fetchCursor replays pages start..page-1, feeding each returned cursor into
// the next request, then returns the target page. Intermediate payloads are
// discarded.
func fetchCursor(ctx context.Context, e *Engine, page, size int, cursor string) (PageResult, error) {
	start := 1
	if cursor != "" {
		start = page
	}

	seen := 0
	for n := start; ; n++ {
		paging := filter.NewParams()
		if e.cfg.SizeParam != "" {
			paging.Set(e.cfg.SizeParam, strconv.Itoa(size))
		}
		if cursor != "" {
			paging.Set(e.cfg.CursorParam, cursor)
		}
		if n < page {
			ReplayRequests.WithLabelValues(string(e.cfg.Style)).Inc()
		}

		p, err := e.roundTrip(ctx, n, size, paging)
		if err != nil {
			return e.fail(ctx, err, page, size, seen)
		}
		next := e.nextCursor(p.Body)

		if n == page {
			r := PageResult{
				Records:     p.Records,
				Page:        page,
				Size:        size,
				HasPrevious: page > 1,
				HasNext:     next != "",
				NextCursor:  next,
			}
			e.applyTotals(&r, p.Body, replayedBefore(start, page, size, seen))
			return r, nil
		}

		seen += len(p.Records)
		if next == "" || next == cursor {
			if next != "" {
				log.Warn().Str("cursor", next).Int("page", n).Msg("Cursor did not advance - stopping replay")
			}
			return exhausted(page, size, n, seen, start == 1, ""), nil
		}
		if err := ctx.Err(); err != nil {
			return e.abort(err, page, size, seen)
		}
		cursor = next
	}
}

// fetchComputed is fetchCursor with a client-side cursor: max(IDField)+1 over
// every record seen so far. The cursor never regresses. A short page ends the
// replay because no more data exists.
func fetchComputed(ctx context.Context, e *Engine, page, size int, cursor string) (PageResult, error) {
	start := 1
	var maxID int64
	haveMax := false
	if cursor != "" {
		start = page
		if c, err := strconv.ParseInt(cursor, 10, 64); err == nil {
			maxID, haveMax = c-1, true
		}
	}

	seen := 0
	for n := start; ; n++ {
		paging := filter.NewParams()
		if e.cfg.SizeParam != "" {
			paging.Set(e.cfg.SizeParam, strconv.Itoa(size))
		}
		if cursor != "" {
			paging.Set(e.cfg.CursorParam, cursor)
		}
		if n < page {
			ReplayRequests.WithLabelValues(string(e.cfg.Style)).Inc()
		}

		p, err := e.roundTrip(ctx, n, size, paging)
		if err != nil {
			return e.fail(ctx, err, page, size, seen)
		}

		for _, rec := range p.Records {
			id, ok := recordID(rec, e.cfg.IDField)
			if ok && (!haveMax || id > maxID) {
				maxID, haveMax = id, true
			}
		}
		next := ""
		if haveMax {
			next = strconv.FormatInt(maxID+1, 10)
		}
		short := len(p.Records) < size

		if n == page {
			r := PageResult{
				Records:     p.Records,
				Page:        page,
				Size:        size,
				HasPrevious: page > 1,
				HasNext:     !short && next != "",
				NextCursor:  next,
			}
			e.applyTotals(&r, p.Body, replayedBefore(start, page, size, seen))
			return r, nil
		}

		seen += len(p.Records)
		if short || next == "" || next == cursor {
			return exhausted(page, size, n, seen, start == 1, next), nil
		}
		if err := ctx.Err(); err != nil {
			return e.abort(err, page, size, seen)
		}
		cursor = next
	}
}

func recordID(rec *extract.Record, field string) (int64, bool) {
	v, ok := rec.Get(field)
	if !ok {
		return 0, false
	}
	return extract.AsInt64(v)
}

// replayedBefore is the number of records preceding the target page: counted
// exactly when replayed from page 1, estimated when the caller supplied a cursor.
func replayedBefore(start, page, size, seen int) int {
	if start == 1 {
		return seen
	}
	return (page - 1) * size
}

// exhausted is the empty result for a target page beyond the end of the data,
// discovered at page last during replay.
func exhausted(page, size, last, seen int, complete bool, cursor string) PageResult {
	return PageResult{
		Page:         page,
		Size:         size,
		HasPrevious:  page > 1,
		TotalRecords: seen,
		TotalPages:   last,
		TotalsExact:  complete,
		NextCursor:   cursor,
	}
}

func estimateTotals(r *PageResult, before int) {
	r.TotalRecords = before + len(r.Records)
	r.TotalPages = r.Page
	if r.HasNext {
		r.TotalPages++
	}
	r.TotalsExact = false
}
