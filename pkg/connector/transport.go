package connector

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/Sternrassler/entity-connector/pkg/client"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
	"github.com/goccy/go-json"
)

// Transport performs vendor round trips. *client.Client implements it.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (*client.Response, error)
	Post(ctx context.Context, path string, body []byte) (*client.Response, error)
}

var _ Transport = (*client.Client)(nil)

// pageFetcher performs the round trips for one resolved request.
type pageFetcher struct {
	transport Transport
	entity    string
	post      bool
	path      string
	rootPath  string

	// params are the static and filter parameters left after resolution.
	params *filter.Params
}

// FetchPage implements pagination.PageFetcher. Paging parameters override
// entity parameters with the same key.
func (f *pageFetcher) FetchPage(ctx context.Context, q pagination.PageQuery) (pagination.Page, error) {
	params := f.params.Clone()
	if q.Params != nil {
		for _, p := range q.Params.All() {
			params.Set(p.Key, p.Value)
		}
	}

	var resp *client.Response
	var err error
	if f.post {
		var body []byte
		body, err = json.Marshal(postBody(params, q.Params))
		if err != nil {
			return pagination.Page{}, fmt.Errorf("encode %s request body: %w", f.entity, err)
		}
		resp, err = f.transport.Post(ctx, f.path, body)
	} else {
		resp, err = f.transport.Get(ctx, f.path, params.Values())
	}
	if err != nil {
		return pagination.Page{}, fmt.Errorf("fetch %s page %d: %w", f.entity, q.Page, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pagination.Page{}, fmt.Errorf("fetch %s page %d: unexpected status %d", f.entity, q.Page, resp.StatusCode)
	}

	body, records, err := extract.FromBytes(resp.Body, f.rootPath)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("parse %s page %d: %w", f.entity, q.Page, err)
	}
	return pagination.Page{Body: body, Records: records}, nil
}

// postBody renders params as a JSON object. Integral paging values are sent
// as numbers; filter values stay strings.
func postBody(params, paging *filter.Params) map[string]any {
	body := make(map[string]any, params.Len())
	for _, p := range params.All() {
		body[p.Key] = p.Value
	}
	if paging != nil {
		for _, p := range paging.All() {
			if n, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
				body[p.Key] = n
			}
		}
	}
	return body
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
