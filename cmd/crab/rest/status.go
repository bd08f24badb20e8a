package rest

import "fmt"

// StatusCodeRange is the class of a HTTP status code.
type StatusCodeRange int

const (
	StatusUnknown StatusCodeRange = iota
	Status1xx
	Status2xx
	Status3xx
	Status4xx
	Status5xx
)

func (sc StatusCodeRange) String() string {
	switch sc {
	case Status1xx:
		return "informational response"
	case Status2xx:
		return "success"
	case Status3xx:
		return "redirect"
	case Status4xx:
		return "client error"
	case Status5xx:
		return "server error"
	default:
		return fmt.Sprintf("unknown (%d)", sc)
	}
}

func StatusCodeRangeOf(code int) StatusCodeRange {
	if code < 100 || 600 <= code {
		return StatusUnknown
	}
	return StatusCodeRange(int(Status1xx) + code/100 - 1)
}

// MessageFor is the summary of a failure for each range of status codes.
// Ranges missing here are summarized with StatusCodeRange.String.
type MessageFor map[StatusCodeRange]string

// the front end or the server is temporarily unavailable.
func isRetryable(code int) bool {
	switch code {
	case 502, 503, 504:
		return true
	}
	return false
}
