package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/google/subcommands"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
	"github.com/sirupsen/logrus"
)

// Dispatcher runs commands in a Registry.
type Dispatcher struct {
	registry *Registry
	env      *Env
}

// NewDispatcher builds a Dispatcher. opts are passed to NewEnv.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	return &Dispatcher{registry: registry, env: NewEnv(opts...)}
}

func (d *Dispatcher) Env() *Env {
	return d.env
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Resolve finds the command named name.
//
// An unregistered name is an error wrapping errors.ErrUnknownCommand.
func (d *Dispatcher) Resolve(name string) (Runner, error) {
	return d.registry.New(name)
}

// Dispatch runs the command named name with its flags and arguments argv.
//
// Failures, including panics of the command, are returned as a Result with
// non-zero exit code and Failure payload.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, argv []string) *Result {
	r, err := d.Resolve(name)
	if err != nil {
		return Failed(err)
	}

	fs, err := parse(r, argv)
	if err != nil {
		return Failed(err)
	}
	return d.Run(ctx, r, fs)
}

func parse(r Runner, argv []string) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(r.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := r.SetFlags(fs); err != nil {
		return nil, err
	}
	if err := fs.Parse(argv); err != nil {
		return nil, usageError(r, err)
	}
	return fs, nil
}

// Invoke parses argv with flags of r, and executes r.
//
// Unlike Dispatch, errors and panics are not turned into a Result.
func Invoke(ctx context.Context, r Runner, l *logrus.Entry, e *Env, argv []string) (any, error) {
	fs, err := parse(r, argv)
	if err != nil {
		return nil, err
	}
	args, err := positionals(r, fs)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, l, e, args)
}

// positionals returns arguments left in fs, parsing flags found among them.
//
// fs stops at the first non-flag argument, so "crab status crab_dir --long"
// would leave "--long" as an argument. Arguments after "--" are not flags.
func positionals(r Runner, fs *flag.FlagSet) ([]string, error) {
	rest := fs.Args()
	args := []string{}
	for 0 < len(rest) {
		head := rest[0]
		switch {
		case head == "--":
			return append(args, rest[1:]...), nil
		case 1 < len(head) && head[0] == '-':
			if err := fs.Parse(rest); err != nil {
				return nil, usageError(r, err)
			}
			rest = fs.Args()
		default:
			args = append(args, head)
			rest = rest[1:]
		}
	}
	return args, nil
}

func usageError(r Runner, err error) error {
	hint := ""
	if errors.Is(err, flag.ErrHelp) {
		return craberr.NewCUIError(
			r.UsageMessage(),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, err)),
		)
	}
	const undefined = "flag provided but not defined: "
	if msg := err.Error(); strings.HasPrefix(msg, undefined) {
		given := strings.TrimLeft(strings.TrimPrefix(msg, undefined), "-")
		hint = spelling.Hint(given, r.FlagNames())
	}
	return craberr.NewCUIError(
		fmt.Sprintf("%s: %s", r.Name(), err),
		craberr.WithHint(hint),
		craberr.WithVerbose("see \"crab help "+r.Name()+"\""),
		craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, err)),
	)
}

// Run runs r with fs, which is parsed already.
func (d *Dispatcher) Run(ctx context.Context, r Runner, fs *flag.FlagSet) (result *Result) {
	l := d.env.logger.Command(r.Name())

	defer func() {
		if p := recover(); p != nil {
			l.WithField("stack", string(debug.Stack())).Debug("panic")
			result = Failed(craberr.NewCUIError(
				fmt.Sprintf("%s stopped unexpectedly: %v", r.Name(), p),
			))
		}
	}()

	args, err := positionals(r, fs)
	if err != nil {
		return Failed(err)
	}

	l.Debugf("crab %s %s", r.Name(), strings.Join(args, " "))
	data, err := r.Execute(ctx, l, d.env, args)
	if err != nil {
		result = Failed(err)
		if f, ok := result.Data.(Failure); ok {
			l.WithField("kind", f.Kind).Debug(f.Verbose)
		}
		return result
	}

	result = Succeeded(data)
	l.Debugf("finished with exit code %d", result.ExitCode)
	return result
}

// Subcommand exposes r to subcommands.Commander.
//
// Execute of it writes its Result into a *Result found in its args, if any.
func Subcommand(d *Dispatcher, r Runner) subcommands.Command {
	return &subcommand{d: d, r: r}
}

type subcommand struct {
	d *Dispatcher
	r Runner
}

func (c *subcommand) Name() string {
	return c.r.Name()
}

func (c *subcommand) Synopsis() string {
	return c.r.Help().Synopsis
}

func (c *subcommand) Usage() string {
	return c.r.UsageMessage()
}

func (c *subcommand) SetFlags(fs *flag.FlagSet) {
	if err := c.r.SetFlags(fs); err != nil {
		panic(fmt.Sprintf("flags of %s are broken: %s", c.r.Name(), err))
	}
}

func (c *subcommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...any) subcommands.ExitStatus {
	result := c.d.Run(ctx, c.r, fs)
	if sink, _, ok := extract[*Result](args); ok && sink != nil {
		*sink = *result
	}
	return subcommands.ExitStatus(result.ExitCode)
}

func extract[T any](args []any) (T, []any, bool) {
	var value T
	var rest []any
	for i, arg := range args {
		if v, ok := arg.(T); ok {
			value = v
			rest = append(rest, args[i+1:]...)
			return value, rest, true
		}
		rest = append(rest, arg)
	}
	return value, rest, false
}
