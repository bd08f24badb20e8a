// Package args parses positional arguments left by a flag.FlagSet.
package args

import (
	"errors"
	"fmt"
	"strings"
)

// Arg is a positional argument.
type Arg struct {
	Name string
	Help string

	Required bool

	// a repeatable argument takes as many values as it can.
	Repeatable bool
}

// String is Arg in a usage line, like "<DIR>" or "[JOBID...]".
func (a Arg) String() string {
	s := a.Name
	if a.Repeatable {
		s += "..."
	}
	if a.Required {
		return "<" + s + ">"
	}
	return "[" + s + "]"
}

// Args are positional arguments in the order they are given.
type Args []Arg

func (a Args) String() string {
	b := new(strings.Builder)
	for _, arg := range a {
		b.WriteString(" ")
		b.WriteString(arg.String())
	}
	return b.String()
}

func New(args ...Arg) Args {
	return args
}

var (
	ErrArgs      = errors.New("arguments error")
	ErrNotEnough = fmt.Errorf("%w: not enough", ErrArgs)
	ErrTooMany   = fmt.Errorf("%w: too many", ErrArgs)
)

// Parse assigns argv to arguments, from left to right.
//
// Each argument takes values greedily, but leaves one value for each required
// argument after it. Arguments without values are mapped to empty slices.
func (a Args) Parse(argv []string) (map[string][]string, error) {
	// required[i] is the number of required arguments in a[i:].
	required := make([]int, len(a)+1)
	for i := len(a) - 1; 0 <= i; i-- {
		required[i] = required[i+1]
		if a[i].Required {
			required[i]++
		}
	}

	ret := make(map[string][]string, len(a))
	rest := argv
	var missing []string
	for i, arg := range a {
		take := 0
		if avail := len(rest) - required[i+1]; 0 < avail {
			take = 1
			if arg.Repeatable {
				take = avail
			}
		}
		if arg.Required && take == 0 {
			if len(rest) == 0 {
				missing = append(missing, arg.String())
				ret[arg.Name] = []string{}
				continue
			}
			take = 1
		}
		ret[arg.Name] = append([]string{}, rest[:take]...)
		rest = rest[take:]
	}

	if 0 < len(missing) {
		return nil, fmt.Errorf("%w: %s", ErrNotEnough, strings.Join(missing, " "))
	}
	if 0 < len(rest) {
		return nil, fmt.Errorf("%w: %s", ErrTooMany, strings.Join(rest, " "))
	}
	return ret, nil
}
