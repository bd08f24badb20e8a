package rest

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/tidwall/gjson"
)

// Response of the CRAB REST server.
type Response struct {
	// HTTP status code
	Status int

	// status text, like "Service Unavailable"
	Reason string

	// decoded JSON (map[string]any, []any, ...) when the server says it is
	// application/json. Otherwise the body as string.
	Body any

	// body as it is
	Raw []byte

	ContentType string

	// error detail told by the server in X-Error-Detail or X-Error-Info
	ErrorDetail string
}

func newResponse(status int, reason string, contentType string, raw []byte) *Response {
	r := &Response{Status: status, Reason: reason, Raw: raw, ContentType: contentType}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/json" {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			r.Body = v
			return r
		}
	}
	r.Body = string(raw)
	return r
}

// NewResponse builds a Response as if the server answered it.
func NewResponse(status int, contentType string, raw []byte) *Response {
	return newResponse(status, http.StatusText(status), contentType, raw)
}

func (r *Response) IsJSON() bool {
	_, ok := r.Body.(string)
	return !ok
}

func (r *Response) Range() StatusCodeRange {
	return StatusCodeRangeOf(r.Status)
}

func (r *Response) Is2xx() bool {
	return r.Range() == Status2xx
}

// Result is the first element of "result" in the body.
func (r *Response) Result() gjson.Result {
	if !r.IsJSON() {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, "result.0")
}

// Results are all elements of "result" in the body.
func (r *Response) Results() []gjson.Result {
	if !r.IsJSON() {
		return nil
	}
	return gjson.GetBytes(r.Raw, "result").Array()
}

// OK tells the server accepted the request: `result[0].result == "ok"`.
func (r *Response) OK() bool {
	return r.Is2xx() && r.Result().Get("result").String() == "ok"
}

// Decode the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// Message is what the server tells about a failure, or "".
func (r *Response) Message() string {
	if r.ErrorDetail != "" {
		return r.ErrorDetail
	}
	if r.IsJSON() {
		for _, path := range []string{"message", "result.0.reason", "result.0.message", "error"} {
			if m := gjson.GetBytes(r.Raw, path); m.Exists() && m.String() != "" {
				return m.String()
			}
		}
		return ""
	}
	return strings.TrimSpace(string(r.Raw))
}

// Expect2xx turns a non-2xx response into an error wrapping
// errors.ErrCommunication. The summary is taken from messageFor.
func Expect2xx(resp *Response, messageFor MessageFor) error {
	if resp.Is2xx() {
		return nil
	}

	scr := resp.Range()
	message, ok := messageFor[scr]
	if !ok {
		message = scr.String()
	}

	detail := resp.Message()
	opts := []craberr.CuiErrorOption{
		craberr.WithCause(fmt.Errorf("%w: %d %s", craberr.ErrCommunication, resp.Status, resp.Reason)),
	}
	if detail != "" {
		opts = append(opts, craberr.WithDetail(func(summary string) (string, error) {
			return summary + "\n" + detail, nil
		}))
	}
	return craberr.NewCUIError(message, opts...)
}

// ExpectOK is Expect2xx, then requires the result to be "ok".
// A 2xx response which is not ok is an error wrapping errors.ErrServer.
func ExpectOK(resp *Response, messageFor MessageFor) error {
	if err := Expect2xx(resp, messageFor); err != nil {
		return err
	}
	if resp.OK() {
		return nil
	}

	result := resp.Result().Get("result").String()
	if result == "" {
		result = "(no result)"
	}
	summary := fmt.Sprintf("server answered %s", result)
	if m := resp.Message(); m != "" {
		summary += ": " + m
	}
	return craberr.NewCUIError(
		summary,
		craberr.WithCause(fmt.Errorf("%w: result is %s", craberr.ErrServer, result)),
	)
}
