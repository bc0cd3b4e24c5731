package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests for offset
	// entities with an exact total. 1 disables the worker pool.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages bounds a full walk
	MaxPages int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       1000,
	}
}

// BatchFetcher walks every page of one entity. Offset entities whose first
// page reports an exact total are fetched in parallel by a worker pool; all
// other styles are walked sequentially, handing each NextCursor to the
// following request so cursor pages are never replayed.
type BatchFetcher struct {
	engine *Engine
	config Config
}

// pageOutcome represents the result of fetching a single page
type pageOutcome struct {
	page    int
	records []*extract.Record
	err     error
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(engine *Engine, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1000
	}

	return &BatchFetcher{
		engine: engine,
		config: config,
	}
}

// FetchAllPages returns every record in page order. On a failed page it
// returns the records of all pages before it together with an error; the
// error wraps the context error when the walk was cancelled.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, size int) ([]*extract.Record, error) {
	start := time.Now()
	style := bf.engine.Style()

	first, err := bf.fetchPage(ctx, PageRequest{Page: 1, Size: size})
	if err != nil {
		return nil, err
	}
	if first.Failure != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", first.Failure)
	}

	var records []*extract.Record
	if bf.parallel(first) {
		records, err = bf.fetchParallel(ctx, first)
	} else {
		records, err = bf.walk(ctx, first)
	}
	if err != nil {
		return records, err
	}

	log.Info().
		Str("style", string(style)).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return records, nil
}

func (bf *BatchFetcher) parallel(first PageResult) bool {
	return bf.engine.Style() == catalog.StyleOffset &&
		first.TotalsExact &&
		first.TotalPages > 1 &&
		bf.config.MaxConcurrency > 1
}

// fetchPage fetches one page within config.Timeout. An expired page budget
// is a page failure; only the caller's own cancellation is returned as an
// error.
func (bf *BatchFetcher) fetchPage(ctx context.Context, req PageRequest) (PageResult, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	page, err := bf.engine.Fetch(pageCtx, req)
	if err != nil && ctx.Err() == nil {
		page.Failure = fmt.Errorf("page %d timed out after %s: %w", req.Page, bf.config.Timeout, err)
		return page, nil
	}
	return page, err
}

// walk follows HasNext one page at a time.
func (bf *BatchFetcher) walk(ctx context.Context, first PageResult) ([]*extract.Record, error) {
	records := append([]*extract.Record(nil), first.Records...)

	cur := first
	for cur.HasNext && len(cur.Records) > 0 {
		if cur.Page >= bf.config.MaxPages {
			log.Warn().
				Int("max_pages", bf.config.MaxPages).
				Int("records", len(records)).
				Msg("Page limit reached - stopping walk")
			break
		}

		next, err := bf.fetchPage(ctx, PageRequest{
			Page:   cur.Page + 1,
			Size:   cur.Size,
			Cursor: cur.NextCursor,
		})
		if err != nil {
			return records, err
		}
		if next.Failure != nil {
			return records, fmt.Errorf("page %d failed (partial data: %d records): %w",
				next.Page, len(records), next.Failure)
		}

		records = append(records, next.Records...)
		cur = next
	}

	return records, nil
}

// fetchParallel fetches pages 2..TotalPages using a worker pool and assembles
// them in page order.
func (bf *BatchFetcher) fetchParallel(ctx context.Context, first PageResult) ([]*extract.Record, error) {
	totalPages := first.TotalPages
	if totalPages > bf.config.MaxPages {
		log.Warn().
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Page limit reached - truncating parallel fetch")
		totalPages = bf.config.MaxPages
	}

	log.Info().
		Int("total_pages", totalPages).
		Int("workers", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	pages := make([][]*extract.Record, totalPages+1)
	pages[1] = first.Records
	if pages[1] == nil {
		pages[1] = []*extract.Record{}
	}

	// Fill page queue (skip page 1, already fetched)
	pageQueue := make(chan int, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan pageOutcome, bf.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, first.Size, pageQueue, pageResults, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	fetchedPages := 1
	failed := make(map[int]error)
	for result := range pageResults {
		if result.err != nil {
			failed[result.page] = result.err
			continue
		}

		pages[result.page] = result.records
		fetchedPages++

		// Progress logging every 50 pages
		if fetchedPages%50 == 0 {
			log.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	var records []*extract.Record
	for page := 1; page <= totalPages; page++ {
		if pages[page] == nil {
			cause := failed[page]
			if cause == nil {
				cause = ctx.Err()
			}
			if cause == nil {
				cause = fmt.Errorf("page %d not fetched", page)
			}
			log.Warn().
				Err(cause).
				Int("fetched_pages", fetchedPages).
				Int("total_pages", totalPages).
				Msg("Worker error - returning partial results")
			return records, fmt.Errorf("page %d failed (partial data: %d/%d pages): %w",
				page, page-1, totalPages, cause)
		}
		records = append(records, pages[page]...)
	}

	return records, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, size int, pageQueue <-chan int, results chan<- pageOutcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		// Check context cancellation
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		page, err := bf.fetchPage(ctx, PageRequest{Page: pageNum, Size: size})

		outcome := pageOutcome{page: pageNum, records: page.Records}
		switch {
		case err != nil:
			outcome.err = err
		case page.Failure != nil:
			outcome.err = page.Failure
		case page.Records == nil:
			outcome.records = []*extract.Record{}
		}

		if outcome.err != nil {
			log.Warn().
				Err(outcome.err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
		}

		// Send result
		select {
		case results <- outcome:
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled after fetch)")
			return
		}

		if outcome.err != nil {
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
