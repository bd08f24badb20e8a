package usage_test

import (
	"errors"
	"flag"
	"testing"

	"github.com/opst/crabclient/pkg/cmp"
	"github.com/opst/crabclient/pkg/commandline/flag/args"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/opst/crabclient/pkg/utils/try"
)

type killFlags struct {
	Dir         string `flag:"dir,short=d"`
	KillWarning string `flag:"killwarning"`
	Parallel    int    `flag:"parallel"`
}

func newUsage() usage.Usage[killFlags] {
	return usage.New(
		killFlags{Dir: "crab_ttbar", Parallel: 10},
		usage.Args{
			{Name: "DIR"},
			{Name: "JOBID", Repeatable: true},
		},
	)
}

func parse(t *testing.T, u usage.Usage[killFlags], argv ...string) (usage.FlagSet[killFlags], error) {
	t.Helper()
	fs := flag.NewFlagSet("kill", flag.ContinueOnError)
	if err := u.SetFlags(fs); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse(argv); err != nil {
		t.Fatal(err)
	}
	return u.Parse(fs.Args())
}

func TestUsage_Parse(t *testing.T) {
	t.Run("flags and arguments", func(t *testing.T) {
		actual := try.To(parse(
			t, newUsage(),
			"-d", "crab_wjets", "--killwarning", "wrong dataset", "crab_wjets", "3", "5",
		)).OrFatal(t)

		expected := killFlags{Dir: "crab_wjets", KillWarning: "wrong dataset", Parallel: 10}
		if actual.Flags != expected {
			t.Errorf("flags:\n  expected: %+v, actual: %+v", expected, actual.Flags)
		}

		args := map[string][]string{"DIR": {"crab_wjets"}, "JOBID": {"3", "5"}}
		if !cmp.MapEqWith(actual.Args, args, cmp.SliceEq[string]) {
			t.Errorf("args:\n  expected: %+v, actual: %+v", args, actual.Args)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		actual := try.To(parse(t, newUsage())).OrFatal(t)

		expected := killFlags{Dir: "crab_ttbar", Parallel: 10}
		if actual.Flags != expected {
			t.Errorf("flags:\n  expected: %+v, actual: %+v", expected, actual.Flags)
		}
		args := map[string][]string{"DIR": {}, "JOBID": {}}
		if !cmp.MapEqWith(actual.Args, args, cmp.SliceEq[string]) {
			t.Errorf("args:\n  expected: %+v, actual: %+v", args, actual.Args)
		}
	})

	t.Run("arguments not declared", func(t *testing.T) {
		u := usage.New(killFlags{}, usage.Args{})
		actual, err := parse(t, u, "--parallel", "3", "crab_ttbar")
		if !errors.Is(err, args.ErrTooMany) {
			t.Errorf("expected ErrTooMany, but %v", err)
		}
		if actual.Flags.Parallel != 3 {
			t.Errorf("flags are lost: %+v", actual.Flags)
		}
	})
}

func TestUsage_Describe(t *testing.T) {
	testee := newUsage()

	{
		expected := []string{"dir", "d", "killwarning", "parallel"}
		if actual := testee.FlagNames(); !cmp.SliceEq(actual, expected) {
			t.Errorf("flag names:\n  expected: %v, actual: %v", expected, actual)
		}
	}

	if actual := testee.String(); actual != "--dir|-d=crab_ttbar --killwarning= --parallel=10 [DIR] [JOBID...]" {
		t.Errorf("string: %s", actual)
	}
}
