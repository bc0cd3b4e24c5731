// Package pagination walks vendor result sets under one of several pagination
// contracts and returns a uniform PageResult.
//
// The style comes from the entity's catalog row:
//
//   - offset: page N is requested directly as offset (N-1)*size (or a page number).
//   - cursor: the vendor returns an opaque cursor ("after", "next_page_token").
//     Page N > 1 is reached by replaying pages 1..N-1 in order, feeding each
//     returned cursor into the next request. Cursors are never guessed.
//   - computed: no vendor cursor, but records carry an increasing identifier;
//     the next cursor is max(identifier seen)+1. Replays like cursor and stops
//     early on a short page.
//   - heuristic: no cursor and no count. has-next is "returned == size" and the
//     totals are running estimates (TotalsExact is false).
//   - none: a single request.
//
// Example usage:
//
//	engine := pagination.NewEngine(desc.Pagination, fetcher)
//	page, err := engine.Fetch(ctx, pagination.PageRequest{Page: 3, Size: 50})
//
// Round trips are strictly sequential. A failed round trip yields an empty
// page with HasNext=false and Failure set; only context cancellation is
// returned as an error, together with the partial result.
//
// BatchFetcher fetches the remaining pages of an offset entity in parallel
// once the first page reports an exact total.
package pagination
