// Package connector is the single entry point for fetching vendor entities.
//
// A Connector composes catalog lookup, filter compilation, endpoint
// resolution, the transport round trip, response extraction and the
// pagination engine. Configuration and validation errors are returned to the
// caller; transport and parse failures degrade to empty pages.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/endpoint"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/Sternrassler/entity-connector/pkg/logging"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
	"github.com/rs/zerolog"
)

// Connector fetches entities described by a catalog over one transport.
// It is safe for concurrent use.
type Connector struct {
	config    Config
	catalog   *catalog.Catalog
	transport Transport
	logger    zerolog.Logger
}

// New creates a connector.
func New(cfg Config, cat *catalog.Catalog, t Transport) (*Connector, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}

	return &Connector{
		config:    cfg.withDefaults(),
		catalog:   cat,
		transport: t,
		logger:    logging.NewLogger("connector"),
	}, nil
}

// Entities lists the catalog's entity names in declaration order.
func (c *Connector) Entities() []string {
	return c.catalog.Names()
}

// Describe returns the descriptor for entity.
func (c *Connector) Describe(entity string) (catalog.Descriptor, error) {
	return c.catalog.Lookup(entity)
}

// FetchPage returns one page of entity. page is 1-based; size is clamped to
// the entity's bounds.
func (c *Connector) FetchPage(ctx context.Context, entity string, filters []filter.Expression, page, size int) (pagination.PageResult, error) {
	return c.Fetch(ctx, entity, filters, pagination.PageRequest{Page: page, Size: size})
}

// Fetch is FetchPage with a full page request, letting callers pass the
// NextCursor of the previous page to skip cursor replay.
func (c *Connector) Fetch(ctx context.Context, entity string, filters []filter.Expression, req pagination.PageRequest) (pagination.PageResult, error) {
	engine, err := c.prepare(entity, filters)
	if err != nil {
		return pagination.PageResult{}, err
	}

	result, err := engine.Fetch(ctx, req)
	if result.Failure != nil && err == nil {
		failuresSwallowed.WithLabelValues(entity).Inc()
	}
	return result, err
}

// FetchAll returns every record of entity in page order, up to the configured
// page limit. A transport failure part way through returns the records
// fetched before it with a nil error; only cancellation is reported.
func (c *Connector) FetchAll(ctx context.Context, entity string, filters []filter.Expression) ([]*extract.Record, error) {
	engine, err := c.prepare(entity, filters)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := pagination.NewBatchFetcher(engine, c.config.batch()).FetchAllPages(ctx, 0)
	if err != nil {
		if ctx.Err() != nil {
			return records, err
		}

		failuresSwallowed.WithLabelValues(entity).Inc()
		c.logger.Warn().
			Err(err).
			Str("entity", entity).
			Int("records", len(records)).
			Msg("Fetch failed - returning partial records")
	}

	fetchDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
	c.logger.Debug().
		Str("entity", entity).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Fetched all pages")

	return records, nil
}

// prepare runs the I/O-free part of a request: lookup, compile, resolve.
func (c *Connector) prepare(entity string, filters []filter.Expression) (*pagination.Engine, error) {
	desc, err := c.catalog.Lookup(entity)
	if err != nil {
		return nil, err
	}

	params := filter.NewParams()
	for _, key := range sortedKeys(desc.StaticParams) {
		params.Set(key, desc.StaticParams[key])
	}
	filter.NewCompiler(filter.TemplatePolicy(desc.Operators, c.config.KeyPolicy)).
		CompileInto(params, filters)

	path, err := endpoint.ResolveEntity(desc, params)
	if err != nil {
		return nil, err
	}

	fetcher := &pageFetcher{
		transport: c.transport,
		entity:    desc.Name,
		post:      desc.IsPost(),
		path:      path,
		rootPath:  desc.RootPath,
		params:    params,
	}
	return pagination.NewEngine(c.paging(desc.Pagination), fetcher), nil
}

// paging fills connector-wide size defaults the entity leaves unset.
func (c *Connector) paging(p catalog.Pagination) catalog.Pagination {
	if p.DefaultSize == 0 {
		p.DefaultSize = c.config.DefaultPageSize
	}
	if p.MinSize == 0 {
		p.MinSize = c.config.MinPageSize
	}
	if p.MaxSize == 0 {
		p.MaxSize = c.config.MaxPageSize
	}
	if p.MaxSize > 0 && p.MinSize > p.MaxSize {
		p.MinSize = p.MaxSize
	}
	return p
}
