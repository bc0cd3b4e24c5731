package testutil

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/Sternrassler/entity-connector/pkg/client"
)

// Call is one round trip seen by a FakeTransport.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// FakeTransport records calls and answers them with Respond.
type FakeTransport struct {
	mu    sync.Mutex
	calls []Call

	// Respond produces the response for a call. Nil answers 200 with "[]".
	Respond func(ctx context.Context, call Call) (*client.Response, error)
}

// Get implements connector.Transport.
func (f *FakeTransport) Get(ctx context.Context, path string, query url.Values) (*client.Response, error) {
	return f.do(ctx, Call{Method: http.MethodGet, Path: path, Query: query})
}

// Post implements connector.Transport.
func (f *FakeTransport) Post(ctx context.Context, path string, body []byte) (*client.Response, error) {
	return f.do(ctx, Call{Method: http.MethodPost, Path: path, Body: body})
}

func (f *FakeTransport) do(ctx context.Context, call Call) (*client.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	respond := f.Respond
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond == nil {
		return JSONResponse(http.StatusOK, "[]"), nil
	}
	return respond(ctx, call)
}

// Calls returns the recorded calls in order.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// JSONResponse builds a transport response with a JSON body.
func JSONResponse(status int, body string) *client.Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &client.Response{StatusCode: status, Header: header, Body: []byte(body)}
}
