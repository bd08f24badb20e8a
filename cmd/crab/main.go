package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/google/subcommands"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/config/instances"
	"github.com/opst/crabclient/cmd/crab/config/settings"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/logger"
	"github.com/opst/crabclient/pkg/buildtime"
	"github.com/opst/crabclient/pkg/commandline/flag/flagger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, settings.DefaultPath())
	cancel()
	os.Exit(code)
}

// commands served by subcommands.Commander itself.
var builtins = []string{"help", "flags", "commands"}

// run is crab as a function: argv without the program name in, exit code out.
//
// opts are applied after the ones made from settings and global flags.
func run(
	ctx context.Context,
	argv []string,
	stdout, stderr io.Writer,
	settingsPath string,
	opts ...command.Option,
) int {
	s, err := settings.Load(settingsPath)
	if err != nil {
		return fail(stderr, craberr.NewCUIError(
			"crab settings are broken",
			craberr.WithHint("fix or remove "+settingsPath),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrConfig, err)),
		), false)
	}

	global := flagger.New(command.GlobalFlags{
		Config:   s.Config,
		Proxy:    s.Proxy,
		Instance: s.Instance,
		Debug:    s.Debug,
		Quiet:    s.Quiet,
	})
	fs := flag.NewFlagSet("crab", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if _, err := global.SetFlags(fs); err != nil {
		return fail(stderr, err, true)
	}

	registry, err := NewRegistry()
	if err != nil {
		return fail(stderr, err, true)
	}

	cmdr := subcommands.NewCommander(fs, "crab")
	cmdr.Output = stdout
	cmdr.Error = stderr

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return craberr.ExitOK
		}
		return craberr.ExitUsage
	}
	g := *global.Values

	log := logger.New(stderr, s.LogFile, logger.WithLevel(logger.LevelFor(g.Debug, g.Quiet)))
	defer log.Close()
	log.Debugf("crab %s", buildtime.VersionString())

	store, err := instances.Load(s.Instances)
	if err != nil {
		return fail(stderr, craberr.NewCUIError(
			"server instances are broken",
			craberr.WithHint("fix or remove "+s.Instances),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrConfig, err)),
		), g.Debug)
	}

	d := command.NewDispatcher(
		registry,
		append(
			[]command.Option{
				command.WithGlobalFlags(g),
				command.WithInstances(store),
				command.WithStdout(stdout, stderr),
				command.WithLogger(log),
				command.WithREST(s.Timeout, s.Retries, nil),
			},
			opts...,
		)...,
	)
	log = d.Env().Logger()

	cmdr.Register(cmdr.HelpCommand(), "help")
	cmdr.Register(cmdr.FlagsCommand(), "help")
	cmdr.Register(cmdr.CommandsCommand(), "help")
	for _, name := range registry.Names() {
		r, err := registry.New(name)
		if err != nil {
			return fail(stderr, err, g.Debug)
		}
		cmdr.Register(command.Subcommand(d, r), "")
	}

	name := fs.Arg(0)
	switch {
	case name == "":
		cmdr.Explain(stderr)
		return craberr.ExitUsage
	case !registry.Has(name) && !slices.Contains(builtins, name):
		_, err := registry.New(name)
		return fail(stderr, err, g.Debug)
	}

	// ExitCode stays negative when the commander answers by itself.
	result := command.Result{ExitCode: -1}
	status := cmdr.Execute(ctx, &result)
	if result.ExitCode < 0 {
		return int(status)
	}

	code := result.ExitCode
	switch data := result.Data.(type) {
	case command.Failure:
		if data.Kind == craberr.KindInterrupted {
			fmt.Fprintln(stderr, "Interrupted:", data.Message)
			break
		}
		msg := data.Message
		if g.Debug || data.Kind == craberr.KindCredential {
			msg = data.Verbose
		}
		fmt.Fprintln(stderr, "Error:", msg)
	default:
		if msg := result.Message(); msg != "" {
			if code == craberr.ExitOK {
				log.Debug(msg)
			} else {
				log.Error(msg)
			}
		}
	}
	if craberr.WantsLogHint(code) {
		if p := log.Path(); p != "" {
			fmt.Fprintln(stderr, "log file:", p)
		}
	}
	return code
}

// fail reports err which occurs out of any command.
func fail(stderr io.Writer, err error, verbose bool) int {
	f, _ := command.Failed(err).Data.(command.Failure)
	msg := f.Message
	if verbose || craberr.WantsVerbose(err) {
		msg = f.Verbose
	}
	fmt.Fprintln(stderr, "Error:", msg)
	return craberr.ExitCode(err)
}
