package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/entity-connector/internal/testutil"
	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/client"
	"github.com/Sternrassler/entity-connector/pkg/endpoint"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New(
		catalog.Descriptor{
			Name:            "contacts",
			Endpoint:        "/v1/accounts/{account_id}/contacts",
			RequiredFilters: []string{"account_id"},
			RootPath:        "data",
			Pagination: catalog.Pagination{
				Style:       catalog.StyleOffset,
				TotalPath:   "meta.total",
				DefaultSize: 10,
			},
			Operators:    map[string]string{"gt": "{field}__gt"},
			StaticParams: map[string]string{"fields": "id,name"},
		},
		catalog.Descriptor{
			Name:     "events",
			Endpoint: "/v2/events",
			RootPath: "data",
			Pagination: catalog.Pagination{
				Style:       catalog.StyleCursor,
				CursorParam: "after",
				CursorPath:  "paging.cursors.after",
				DefaultSize: 2,
			},
		},
		catalog.Descriptor{
			Name:            "points",
			Endpoint:        "/collections/{collection}/points/scroll",
			Method:          "POST",
			RequiredFilters: []string{"collection"},
			RootPath:        "result.points",
			Pagination: catalog.Pagination{
				Style:       catalog.StyleOffset,
				DefaultSize: 10,
			},
			StaticParams: map[string]string{"with_payload": "true"},
		},
		catalog.Descriptor{
			Name:     "status",
			Endpoint: "/status",
		},
	)
	require.NoError(t, err)
	return cat
}

func newTestConnector(t *testing.T, respond func(context.Context, testutil.Call) (*client.Response, error)) (*Connector, *testutil.FakeTransport) {
	t.Helper()

	transport := &testutil.FakeTransport{Respond: respond}
	c, err := New(DefaultConfig(), testCatalog(t), transport)
	require.NoError(t, err)
	return c, transport
}

func itemsJSON(ids []int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":%d,"name":"item-%d"}`, id, id)
	}
	b.WriteByte(']')
	return b.String()
}

func window(offset, limit, total int) []int {
	var ids []int
	for id := offset + 1; id <= total && id <= offset+limit; id++ {
		ids = append(ids, id)
	}
	return ids
}

// offsetVendor serves ids 1..total by offset and limit with meta.total.
func offsetVendor(total int) func(context.Context, testutil.Call) (*client.Response, error) {
	return func(_ context.Context, call testutil.Call) (*client.Response, error) {
		offset, _ := strconv.Atoi(call.Query.Get("offset"))
		limit, _ := strconv.Atoi(call.Query.Get("limit"))
		body := fmt.Sprintf(`{"data":%s,"meta":{"total":%d}}`, itemsJSON(window(offset, limit, total)), total)
		return testutil.JSONResponse(http.StatusOK, body), nil
	}
}

// cursorVendor serves ids 1..total with "c<offset>" cursors.
func cursorVendor(total int) func(context.Context, testutil.Call) (*client.Response, error) {
	return func(_ context.Context, call testutil.Call) (*client.Response, error) {
		offset := 0
		if after := call.Query.Get("after"); after != "" {
			offset, _ = strconv.Atoi(strings.TrimPrefix(after, "c"))
		}
		limit, _ := strconv.Atoi(call.Query.Get("limit"))
		ids := window(offset, limit, total)

		paging := ""
		if next := offset + len(ids); next < total {
			paging = fmt.Sprintf(`,"paging":{"cursors":{"after":"c%d"}}`, next)
		}
		return testutil.JSONResponse(http.StatusOK, fmt.Sprintf(`{"data":%s%s}`, itemsJSON(ids), paging)), nil
	}
}

func recordIDs(records []*extract.Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		v, _ := rec.Get("id")
		id, _ := extract.AsInt64(v)
		ids = append(ids, id)
	}
	return ids
}

func seq(from, to int64) []int64 {
	var out []int64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestNew_RequiresCatalogAndTransport(t *testing.T) {
	_, err := New(DefaultConfig(), nil, &testutil.FakeTransport{})
	assert.EqualError(t, err, "catalog is required")

	_, err = New(DefaultConfig(), testCatalog(t), nil)
	assert.EqualError(t, err, "transport is required")
}

func TestEntities(t *testing.T) {
	c, _ := newTestConnector(t, nil)
	assert.Equal(t, []string{"contacts", "events", "points", "status"}, c.Entities())
}

func TestFetchPage_UnknownEntity(t *testing.T) {
	c, transport := newTestConnector(t, nil)

	_, err := c.FetchPage(context.Background(), "invoices", nil, 1, 10)

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrEntityNotFound)
	var cfgErr *catalog.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "invoices", cfgErr.Entity)
	assert.Empty(t, transport.Calls())
}

func TestFetchPage_MissingRequiredFilter(t *testing.T) {
	c, transport := newTestConnector(t, nil)

	_, err := c.FetchPage(context.Background(), "contacts", []filter.Expression{filter.Eq("status", "active")}, 1, 10)

	var vErr *endpoint.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "contacts", vErr.Entity)
	assert.Equal(t, []string{"account_id"}, vErr.Missing)
	assert.Empty(t, transport.Calls())

	_, err = c.FetchAll(context.Background(), "contacts", nil)
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, transport.Calls())
}

func TestFetchPage_ComposesRequest(t *testing.T) {
	c, transport := newTestConnector(t, offsetVendor(25))

	result, err := c.FetchPage(context.Background(), "contacts", []filter.Expression{
		filter.Eq("account_id", "42"),
		filter.Eq("status", "active"),
		{Field: "created_at", Op: "gt", Value: "2024-01-01"},
	}, 3, 10)
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/v1/accounts/42/contacts", calls[0].Path)

	query := calls[0].Query
	assert.Equal(t, "id,name", query.Get("fields"))
	assert.Equal(t, "active", query.Get("status"))
	assert.Equal(t, "2024-01-01", query.Get("created_at__gt"))
	assert.Equal(t, "20", query.Get("offset"))
	assert.Equal(t, "10", query.Get("limit"))
	assert.NotContains(t, query, "account_id")

	assert.Equal(t, seq(21, 25), recordIDs(result.Records))
	assert.False(t, result.HasNext)
	assert.True(t, result.HasPrevious)
	assert.True(t, result.TotalsExact)
	assert.Equal(t, 25, result.TotalRecords)
	assert.Equal(t, 3, result.TotalPages)
	assert.NoError(t, result.Failure)
}

func TestFetchPage_FilterOverridesStaticParam(t *testing.T) {
	c, transport := newTestConnector(t, offsetVendor(5))

	_, err := c.FetchPage(context.Background(), "contacts", []filter.Expression{
		filter.Eq("account_id", "42"),
		filter.Eq("Fields", "id"),
	}, 1, 10)
	require.NoError(t, err)

	query := transport.Calls()[0].Query
	assert.Equal(t, "id", query.Get("Fields"))
	assert.Empty(t, query.Get("fields"))
}

func TestFetchPage_CursorReplay(t *testing.T) {
	c, transport := newTestConnector(t, cursorVendor(10))

	result, err := c.FetchPage(context.Background(), "events", nil, 3, 2)
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].Query.Get("after"))
	assert.Equal(t, "c2", calls[1].Query.Get("after"))
	assert.Equal(t, "c4", calls[2].Query.Get("after"))

	assert.Equal(t, []int64{5, 6}, recordIDs(result.Records))
	assert.True(t, result.HasNext)
	assert.Equal(t, "c6", result.NextCursor)
}

func TestFetch_SuppliedCursorSkipsReplay(t *testing.T) {
	c, transport := newTestConnector(t, cursorVendor(10))

	result, err := c.Fetch(context.Background(), "events", nil, pagination.PageRequest{Page: 3, Size: 2, Cursor: "c4"})
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c4", calls[0].Query.Get("after"))
	assert.Equal(t, []int64{5, 6}, recordIDs(result.Records))
}

func TestFetchPage_TransportFailureIsEmptyPage(t *testing.T) {
	tests := []struct {
		name    string
		respond func(context.Context, testutil.Call) (*client.Response, error)
	}{
		{
			name: "transport error",
			respond: func(context.Context, testutil.Call) (*client.Response, error) {
				return nil, &client.APIError{StatusCode: http.StatusBadGateway, ErrorClass: client.ErrorClassServer, Message: "bad gateway"}
			},
		},
		{
			name: "non-success status",
			respond: func(context.Context, testutil.Call) (*client.Response, error) {
				return testutil.JSONResponse(http.StatusNotFound, `{"error": "gone"}`), nil
			},
		},
		{
			name: "malformed body",
			respond: func(context.Context, testutil.Call) (*client.Response, error) {
				return testutil.JSONResponse(http.StatusOK, `{"data": [`), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestConnector(t, tt.respond)

			result, err := c.FetchPage(context.Background(), "contacts", []filter.Expression{filter.Eq("account_id", "42")}, 2, 10)

			require.NoError(t, err)
			assert.Empty(t, result.Records)
			assert.False(t, result.HasNext)
			assert.Equal(t, 2, result.Page)
			assert.Error(t, result.Failure)
		})
	}
}

func TestFetchPage_MissingRootPathIsEmpty(t *testing.T) {
	c, _ := newTestConnector(t, func(context.Context, testutil.Call) (*client.Response, error) {
		return testutil.JSONResponse(http.StatusOK, `{"items": [{"id": 1}]}`), nil
	})

	result, err := c.FetchPage(context.Background(), "events", nil, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.NoError(t, result.Failure)
}

func TestFetchPage_PostBody(t *testing.T) {
	c, transport := newTestConnector(t, func(context.Context, testutil.Call) (*client.Response, error) {
		return testutil.JSONResponse(http.StatusOK, `{"result": {"points": [{"id": 1}, {"id": 2}]}}`), nil
	})

	result, err := c.FetchPage(context.Background(), "points", []filter.Expression{
		filter.Eq("collection", "docs"),
		filter.Eq("tenant", "0042"),
	}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, recordIDs(result.Records))

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/collections/docs/points/scroll", calls[0].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &body))
	assert.Equal(t, map[string]any{
		"with_payload": "true",
		"tenant":       "0042",
		"offset":       float64(10),
		"limit":        float64(10),
	}, body)
}

func TestFetchPage_NoPagination(t *testing.T) {
	c, transport := newTestConnector(t, func(context.Context, testutil.Call) (*client.Response, error) {
		return testutil.JSONResponse(http.StatusOK, `{"status": "ok", "version": 3}`), nil
	})

	result, err := c.FetchPage(context.Background(), "status", nil, 1, 0)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	version, ok := result.Records[0].Get("version")
	require.True(t, ok)
	assert.Equal(t, "3", fmt.Sprint(version))
	assert.False(t, result.HasNext)
	assert.Equal(t, DefaultConfig().DefaultPageSize, result.Size)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Query)

	// Later pages of an unpaginated entity are empty without a round trip
	result, err = c.FetchPage(context.Background(), "status", nil, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Len(t, transport.Calls(), 1)
}

func TestFetchAll_OffsetParallel(t *testing.T) {
	c, transport := newTestConnector(t, offsetVendor(25))

	records, err := c.FetchAll(context.Background(), "contacts", []filter.Expression{filter.Eq("account_id", "42")})
	require.NoError(t, err)

	assert.Equal(t, seq(1, 25), recordIDs(records))
	assert.Len(t, transport.Calls(), 3)
}

func TestFetchAll_CursorWalksWithoutReplay(t *testing.T) {
	c, transport := newTestConnector(t, cursorVendor(5))

	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)

	assert.Equal(t, seq(1, 5), recordIDs(records))
	calls := transport.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"", "c2", "c4"}, []string{
		calls[0].Query.Get("after"),
		calls[1].Query.Get("after"),
		calls[2].Query.Get("after"),
	})
}

func TestFetchAll_FailureReturnsPrefix(t *testing.T) {
	vendor := cursorVendor(10)
	c, _ := newTestConnector(t, func(ctx context.Context, call testutil.Call) (*client.Response, error) {
		if call.Query.Get("after") == "c4" {
			return nil, errors.New("connection reset by peer")
		}
		return vendor(ctx, call)
	})

	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Equal(t, seq(1, 4), recordIDs(records))
}

func TestFetchAll_FirstPageFailureIsEmpty(t *testing.T) {
	c, _ := newTestConnector(t, func(context.Context, testutil.Call) (*client.Response, error) {
		return testutil.JSONResponse(http.StatusInternalServerError, `{"error": "boom"}`), nil
	})

	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchAll_Cancelled(t *testing.T) {
	c, transport := newTestConnector(t, cursorVendor(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchAll(ctx, "events", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, transport.Calls())
}

func TestFetchAll_PageTimeoutReturnsPrefix(t *testing.T) {
	vendor := cursorVendor(10)
	transport := &testutil.FakeTransport{Respond: func(ctx context.Context, call testutil.Call) (*client.Response, error) {
		if call.Query.Get("after") != "" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return vendor(ctx, call)
	}}
	cfg := DefaultConfig()
	cfg.PageTimeout = 50 * time.Millisecond

	c, err := New(cfg, testCatalog(t), transport)
	require.NoError(t, err)

	start := time.Now()
	records, err := c.FetchAll(context.Background(), "events", nil)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, seq(1, 2), recordIDs(records))
	assert.Len(t, transport.Calls(), 2)
}

func TestFetchAll_MaxPages(t *testing.T) {
	transport := &testutil.FakeTransport{Respond: cursorVendor(20)}
	cfg := DefaultConfig()
	cfg.MaxPages = 2

	c, err := New(cfg, testCatalog(t), transport)
	require.NoError(t, err)

	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Equal(t, seq(1, 4), recordIDs(records))
	assert.Len(t, transport.Calls(), 2)
}

func TestPaging_ConnectorDefaults(t *testing.T) {
	c, _ := newTestConnector(t, nil)

	p := c.paging(catalog.Pagination{Style: catalog.StyleOffset})
	assert.Equal(t, 100, p.DefaultSize)
	assert.Equal(t, 1, p.MinSize)
	assert.Equal(t, 1000, p.MaxSize)

	p = c.paging(catalog.Pagination{Style: catalog.StyleOffset, DefaultSize: 25, MinSize: 5000})
	assert.Equal(t, 25, p.DefaultSize)
	assert.Equal(t, 1000, p.MinSize)
}
