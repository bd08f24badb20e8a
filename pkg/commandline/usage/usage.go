package usage

import (
	"flag"
	"strings"

	"github.com/opst/crabclient/pkg/commandline/flag/args"
	"github.com/opst/crabclient/pkg/commandline/flag/flagger"
)

// Flags and arguments definition
type Usage[T any] struct {
	// Flags of the command.
	//
	// Fields of T tagged with "flag" become flags of the command.
	// For tag syntax, see flagger.New .
	//
	// # Example
	//
	//	type KillFlags struct {
	//	    Dir         string `flag:"dir,short=d,help=task directory"`
	//	    KillWarning string `flag:"killwarning,metavar=MESSAGE"`
	//	}
	//
	// The value passed to New is the default. A command built on it accepts
	//
	//	crab kill -d crab_task --killwarning "wrong dataset"
	//
	// and receives the parsed values in Execute as FlagSet[T].Flags .
	f *flagger.Flagger[T]

	// positional arguments of the command.
	args args.Args
}

func (u Usage[T]) Args() args.Args {
	return u.args
}

func (u Usage[T]) Flags() []flagger.Flag {
	return u.f.Flags
}

func (u Usage[T]) SetFlags(fls *flag.FlagSet) error {
	_, err := u.f.SetFlags(fls)
	return err
}

// FlagNames returns every name (long and short) accepted by the command.
func (u Usage[T]) FlagNames() []string {
	return u.f.Names()
}

func (u Usage[T]) String() string {
	return strings.TrimSpace(u.f.String() + u.args.String())
}

// Parse positional arguments left by the FlagSet and return them with the
// current flag values.
//
// The FlagSet passed to SetFlags must be parsed before.
//
//	fs := flag.NewFlagSet("status", flag.ContinueOnError)
//	u := New(StatusFlags{Dir: "."}, nil)
//	u.SetFlags(fs)
//	fs.Parse(argv)
//	parsed, err := u.Parse(fs.Args())
func (u Usage[T]) Parse(argv []string) (FlagSet[T], error) {
	flags, err := u.args.Parse(argv)
	if err != nil {
		return FlagSet[T]{Flags: *u.f.Values, Args: nil}, err
	}

	return FlagSet[T]{Flags: *u.f.Values, Args: flags}, nil
}

// Args declares positional arguments.
type Args []args.Arg

// Build new Usage.
func New[T any](flag T, a Args) Usage[T] {
	return Usage[T]{
		f:    flagger.New(flag),
		args: args.New(a...),
	}
}

// Parsed flags and positional arguments.
type FlagSet[T any] struct {
	// Parsed flags.
	Flags T

	// Parsed positional arguments.
	Args map[string][]string
}
