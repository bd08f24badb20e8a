package mock

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sync"
	"testing"

	"github.com/opst/crabclient/cmd/crab/rest"
)

type RequestArgs struct {
	Uri    string
	Values url.Values
}

type DownloadArgs struct {
	Source string
}

func New(t *testing.T) *mockCrabClient {
	return &mockCrabClient{t: t, root: "https://cmsweb.cern.ch:8443/crabserver/prod"}
}

type mockCrabClient struct {
	t    *testing.T
	root string

	mu sync.Mutex

	Impl struct {
		Get      func(ctx context.Context, uri string, params url.Values) (*rest.Response, error)
		Post     func(ctx context.Context, uri string, data url.Values) (*rest.Response, error)
		Put      func(ctx context.Context, uri string, data url.Values) (*rest.Response, error)
		Delete   func(ctx context.Context, uri string, data url.Values) (*rest.Response, error)
		Download func(ctx context.Context, source string, w io.Writer) (int64, error)
	}

	Calls struct {
		Get      []RequestArgs
		Post     []RequestArgs
		Put      []RequestArgs
		Delete   []RequestArgs
		Download []DownloadArgs
	}
}

var _ rest.Client = &mockCrabClient{}

// WithRoot changes what Root() returns.
func (m *mockCrabClient) WithRoot(root string) *mockCrabClient {
	m.root = root
	return m
}

func (m *mockCrabClient) Root() string {
	return m.root
}

func (m *mockCrabClient) Get(ctx context.Context, uri string, params url.Values) (*rest.Response, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Get = append(m.Calls.Get, RequestArgs{Uri: uri, Values: params})
	m.mu.Unlock()
	if m.Impl.Get == nil {
		m.t.Fatal("Get is not ready to be called")
	}
	return m.Impl.Get(ctx, uri, params)
}

func (m *mockCrabClient) Post(ctx context.Context, uri string, data url.Values) (*rest.Response, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Post = append(m.Calls.Post, RequestArgs{Uri: uri, Values: data})
	m.mu.Unlock()
	if m.Impl.Post == nil {
		m.t.Fatal("Post is not ready to be called")
	}
	return m.Impl.Post(ctx, uri, data)
}

func (m *mockCrabClient) Put(ctx context.Context, uri string, data url.Values) (*rest.Response, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Put = append(m.Calls.Put, RequestArgs{Uri: uri, Values: data})
	m.mu.Unlock()
	if m.Impl.Put == nil {
		m.t.Fatal("Put is not ready to be called")
	}
	return m.Impl.Put(ctx, uri, data)
}

func (m *mockCrabClient) Delete(ctx context.Context, uri string, data url.Values) (*rest.Response, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Delete = append(m.Calls.Delete, RequestArgs{Uri: uri, Values: data})
	m.mu.Unlock()
	if m.Impl.Delete == nil {
		m.t.Fatal("Delete is not ready to be called")
	}
	return m.Impl.Delete(ctx, uri, data)
}

func (m *mockCrabClient) Download(ctx context.Context, source string, w io.Writer) (int64, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Download = append(m.Calls.Download, DownloadArgs{Source: source})
	m.mu.Unlock()
	if m.Impl.Download == nil {
		m.t.Fatal("Download is not ready to be called")
	}
	return m.Impl.Download(ctx, source, w)
}

// JSON makes a response with body encoded as JSON.
func JSON(t *testing.T, status int, body any) *rest.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return rest.NewResponse(status, "application/json", raw)
}

// Result makes a 200 response of `{"result": items}`.
func Result(t *testing.T, items ...any) *rest.Response {
	t.Helper()
	if items == nil {
		items = []any{}
	}
	return JSON(t, 200, map[string]any{"result": items})
}

// OK is a response the server accepted the request with.
func OK(t *testing.T) *rest.Response {
	t.Helper()
	return Result(t, map[string]any{"result": "ok"})
}
