// Package rest talks to the CRAB REST server.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/buildtime"
	"github.com/opst/crabclient/pkg/utils/retry"
)

var ErrInvalidRoot = errors.New("REST root should be an absolute URL")

// Client is a client of the CRAB REST server.
//
// uri given to methods is a path relative to the root
// (like "workflow"), or an absolute URL.
//
// A non-2xx response is not an error; callers inspect Response.Status.
// Errors of the transport wrap errors.ErrCommunication.
type Client interface {
	// Root is the REST root URL, like https://cmsweb.cern.ch:8443/crabserver/prod .
	Root() string

	// Get sends GET with params in the query.
	Get(ctx context.Context, uri string, params url.Values) (*Response, error)

	// Post sends POST with form encoded data.
	Post(ctx context.Context, uri string, data url.Values) (*Response, error)

	// Put sends PUT with form encoded data.
	Put(ctx context.Context, uri string, data url.Values) (*Response, error)

	// Delete sends DELETE with data in the query.
	Delete(ctx context.Context, uri string, data url.Values) (*Response, error)

	// Download copies the content at source into w.
	//
	// Unlike other methods, a non-2xx response is an error wrapping
	// errors.ErrCommunication.
	//
	// # Returns
	//
	// - int64: bytes written to w
	//
	// - error
	Download(ctx context.Context, source string, w io.Writer) (int64, error)
}

type client struct {
	httpclient *http.Client
	root       string
	userAgent  string
	attempts   int
	backoff    func() retry.Backoff
}

type options struct {
	certs     []tls.Certificate
	cas       *x509.CertPool
	timeout   time.Duration
	attempts  int
	backoff   func() retry.Backoff
	userAgent string
}

type Option func(*options)

// WithCertificate authenticates the client with cert, usually a grid proxy.
func WithCertificate(cert tls.Certificate) Option {
	return func(o *options) { o.certs = append(o.certs, cert) }
}

// WithCAPool trusts only CAs in pool. nil means system roots.
func WithCAPool(pool *x509.CertPool) Option {
	return func(o *options) { o.cas = pool }
}

// WithTimeout limits each request. 0 means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry makes a request at most attempts times while the server
// answers 502, 503 or 504, or the network times out.
//
// backoff makes a fresh Backoff for each request.
func WithRetry(attempts int, backoff func() retry.Backoff) Option {
	return func(o *options) {
		o.attempts = attempts
		o.backoff = backoff
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// DefaultBackoff waits 1s, 2s, 4s, ... between attempts.
func DefaultBackoff() retry.Backoff {
	return retry.ExponentialBackoff(time.Second, 2)
}

// NewClient creates a Client for the REST root URL.
func NewClient(root string, opts ...Option) (Client, error) {
	u, err := url.Parse(root)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	o := &options{
		attempts:  1,
		backoff:   DefaultBackoff,
		userAgent: "crab/" + buildtime.VERSION(),
	}
	for _, opt := range opts {
		opt(o)
	}

	hc, err := httpClient(o)
	if err != nil {
		return nil, err
	}

	return &client{
		httpclient: hc,
		root:       strings.TrimSuffix(root, "/"),
		userAgent:  o.userAgent,
		attempts:   max(o.attempts, 1),
		backoff:    o.backoff,
	}, nil
}

func httpClient(o *options) (*http.Client, error) {
	hc := &http.Client{Timeout: o.timeout}

	if len(o.certs) == 0 && o.cas == nil {
		return hc, nil
	}

	tran, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("cannot configure TLS of transport %T", http.DefaultTransport)
	}
	tran = tran.Clone()

	tcc := tran.TLSClientConfig.Clone()
	if tcc == nil {
		tcc = &tls.Config{}
	}
	if o.cas != nil {
		tcc.RootCAs = o.cas
	}
	tcc.Certificates = append(tcc.Certificates, o.certs...)
	// front ends ask for client certificates by renegotiation.
	tcc.Renegotiation = tls.RenegotiateFreelyAsClient

	tran.TLSClientConfig = tcc
	hc.Transport = tran
	return hc, nil
}

func (c *client) Root() string {
	return c.root
}

// build URL for uri
func (c *client) apipath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.IsAbs() {
		return uri
	}
	return c.root + "/" + strings.TrimPrefix(uri, "/")
}

func withQuery(u string, q url.Values) string {
	if len(q) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + q.Encode()
}

func (c *client) Get(ctx context.Context, uri string, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, withQuery(c.apipath(uri), params), nil)
}

func (c *client) Post(ctx context.Context, uri string, data url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.apipath(uri), data)
}

func (c *client) Put(ctx context.Context, uri string, data url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPut, c.apipath(uri), data)
}

func (c *client) Delete(ctx context.Context, uri string, data url.Values) (*Response, error) {
	return c.do(ctx, http.MethodDelete, withQuery(c.apipath(uri), data), nil)
}

func (c *client) newRequest(ctx context.Context, method, u string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func communicationError(method, u string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", craberr.ErrCommunication, method, u, err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *client) do(ctx context.Context, method, u string, form url.Values) (*Response, error) {
	resp, err := retry.Do(ctx, c.attempts, c.backoff(), func() (*Response, error) {
		req, err := c.newRequest(ctx, method, u, form)
		if err != nil {
			return nil, err
		}
		hresp, err := c.httpclient.Do(req)
		if err != nil {
			if ctx.Err() == nil && isTimeout(err) {
				return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
			}
			return nil, err
		}
		defer hresp.Body.Close()

		raw, err := io.ReadAll(hresp.Body)
		if err != nil {
			return nil, err
		}
		resp := newResponse(
			hresp.StatusCode,
			http.StatusText(hresp.StatusCode),
			hresp.Header.Get("Content-Type"),
			raw,
		)
		resp.ErrorDetail = hresp.Header.Get("X-Error-Detail")
		if resp.ErrorDetail == "" {
			resp.ErrorDetail = hresp.Header.Get("X-Error-Info")
		}
		if isRetryable(resp.Status) {
			return resp, fmt.Errorf("%w: %d %s", retry.ErrRetry, resp.Status, resp.Reason)
		}
		return resp, nil
	})

	if err != nil {
		if resp != nil && errors.Is(err, retry.ErrExhausted) {
			// the last answer stands; a non-2xx response is not an error.
			return resp, nil
		}
		return nil, communicationError(method, u, err)
	}
	return resp, nil
}

func (c *client) Download(ctx context.Context, source string, w io.Writer) (int64, error) {
	u := c.apipath(source)
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, communicationError(http.MethodGet, u, err)
	}
	req.Header.Del("Accept")

	hresp, err := c.httpclient.Do(req)
	if err != nil {
		return 0, communicationError(http.MethodGet, u, err)
	}
	defer hresp.Body.Close()

	if StatusCodeRangeOf(hresp.StatusCode) != Status2xx {
		io.Copy(io.Discard, hresp.Body)
		return 0, fmt.Errorf("%w: GET %s: %s", craberr.ErrCommunication, u, hresp.Status)
	}

	n, err := io.Copy(w, hresp.Body)
	if err != nil {
		return n, communicationError(http.MethodGet, u, err)
	}
	return n, nil
}
