package command

import (
	"fmt"
	"strings"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
)

// Result is what a command invocation has come to.
type Result struct {
	ExitCode int

	// what the command returned, or Failure.
	Data any
}

// Failure is the payload of a failed Result.
type Failure struct {
	Kind    craberr.Kind `json:"kind"`
	Message string       `json:"message"`

	// message with detail and causes.
	Verbose string `json:"-"`
}

func (f Failure) String() string {
	return f.Message
}

// Exiter is a payload which decides its exit code.
type Exiter interface {
	ExitCode() int
}

// Succeeded makes a Result from a payload.
func Succeeded(data any) *Result {
	code := craberr.ExitOK
	if ex, ok := data.(Exiter); ok {
		code = ex.ExitCode()
	}
	return &Result{ExitCode: code, Data: data}
}

// Failed makes a Result from an error.
func Failed(err error) *Result {
	verbose := err.Error()
	if v, ok := err.(craberr.Verbose); ok {
		verbose = v.Verbose()
	}
	return &Result{
		ExitCode: craberr.ExitCode(err),
		Data: Failure{
			Kind:    craberr.KindOf(err),
			Message: err.Error(),
			Verbose: verbose,
		},
	}
}

// Message is the payload as text.
func (r *Result) Message() string {
	switch d := r.Data.(type) {
	case nil:
		return ""
	case string:
		return d
	case fmt.Stringer:
		return d.String()
	default:
		return fmt.Sprint(d)
	}
}

// Merge results into one.
//
// Its exit code is the first non-zero one (0 if all are 0), and its payload
// is messages joined with newlines, in order.
//
// It returns nil when nothing is given.
func Merge(results ...*Result) *Result {
	if len(results) == 0 {
		return nil
	}

	code := craberr.ExitOK
	messages := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		if code == craberr.ExitOK {
			code = r.ExitCode
		}
		messages = append(messages, r.Message())
	}
	return &Result{ExitCode: code, Data: strings.Join(messages, "\n")}
}
