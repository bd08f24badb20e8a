package args_test

import (
	"errors"
	"testing"

	"github.com/opst/crabclient/pkg/cmp"
	"github.com/opst/crabclient/pkg/commandline/flag/args"
)

func TestArgs_Parse(t *testing.T) {
	type When struct {
		testee args.Args
		argv   []string
	}

	type Then struct {
		parsed map[string][]string
		err    error
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			parsed, err := when.testee.Parse(when.argv)
			if !errors.Is(err, then.err) {
				t.Errorf("error: expected %v, got %v", then.err, err)
			}
			if !cmp.MapEqWith(parsed, then.parsed, cmp.SliceEq[string]) {
				t.Errorf("parsed: expected %v, got %v", then.parsed, parsed)
			}
		}
	}

	dir := args.Arg{Name: "DIR"}
	jobids := args.Arg{Name: "JOBID", Repeatable: true}

	t.Run("an optional argument given", theory(
		When{testee: args.New(dir), argv: []string{"crab_ttbar"}},
		Then{parsed: map[string][]string{"DIR": {"crab_ttbar"}}},
	))

	t.Run("an optional argument omitted", theory(
		When{testee: args.New(dir), argv: []string{}},
		Then{parsed: map[string][]string{"DIR": {}}},
	))

	t.Run("a repeatable argument takes all the rest", theory(
		When{testee: args.New(dir, jobids), argv: []string{"crab_ttbar", "1", "2", "5"}},
		Then{parsed: map[string][]string{"DIR": {"crab_ttbar"}, "JOBID": {"1", "2", "5"}}},
	))

	t.Run("arguments in the middle leave values for required ones", theory(
		When{
			testee: args.New(
				args.Arg{Name: "SITE", Required: true},
				args.Arg{Name: "DIR"},
				args.Arg{Name: "JOBID", Repeatable: true},
				args.Arg{Name: "QUANTITY"},
				args.Arg{Name: "OUTPUT", Required: true},
			),
			argv: []string{"T2_CH_CERN", "crab_ttbar", "1", "2", "3", "4", "out"},
		},
		Then{parsed: map[string][]string{
			"SITE":     {"T2_CH_CERN"},
			"DIR":      {"crab_ttbar"},
			"JOBID":    {"1", "2", "3", "4"},
			"QUANTITY": {},
			"OUTPUT":   {"out"},
		}},
	))

	t.Run("a repeatable required argument before another takes one", theory(
		When{
			testee: args.New(
				args.Arg{Name: "A", Repeatable: true, Required: true},
				args.Arg{Name: "B", Repeatable: true},
				args.Arg{Name: "C", Repeatable: true, Required: true},
			),
			argv: []string{"a", "b"},
		},
		Then{parsed: map[string][]string{"A": {"a"}, "B": {}, "C": {"b"}}},
	))

	t.Run("an optional repeatable argument before a required one leaves the last", theory(
		When{
			testee: args.New(
				args.Arg{Name: "A", Repeatable: true},
				args.Arg{Name: "B", Repeatable: true, Required: true},
			),
			argv: []string{"a", "b", "c"},
		},
		Then{parsed: map[string][]string{"A": {"a", "b"}, "B": {"c"}}},
	))

	t.Run("too many arguments", theory(
		When{testee: args.New(dir), argv: []string{"crab_ttbar", "crab_wjets"}},
		Then{err: args.ErrTooMany},
	))

	t.Run("not enough arguments", theory(
		When{
			testee: args.New(
				args.Arg{Name: "A", Required: true},
				args.Arg{Name: "B", Required: true},
				args.Arg{Name: "C", Required: true},
			),
			argv: []string{"a", "b"},
		},
		Then{err: args.ErrNotEnough},
	))
}

func TestArgs_String(t *testing.T) {
	testee := args.New(
		args.Arg{Name: "DIR", Required: true},
		args.Arg{Name: "JOBID", Repeatable: true},
	)
	if got, want := testee.String(), " <DIR> [JOBID...]"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
