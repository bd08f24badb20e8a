package command

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/template"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type usagePlaceHolder struct {
	// full command name
	Command string
}

func (uph usagePlaceHolder) Fill(tpl string) (string, error) {
	tplExecuter, err := template.New("").Parse(tpl)
	if err != nil {
		return "", err
	}
	sb := new(strings.Builder)
	if err := tplExecuter.Execute(sb, uph); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Help message components.
type Help struct {
	// short description of the command.
	Synopsis string

	// example of the command.
	Example string

	// long description of the command.
	Detail string
}

// Command is a verb of crab.
//
// To run it, convert it to Runner with Build.
type Command[T any] interface {
	// Execute executes the command as its entrypoint.
	//
	// # Args
	//
	// - *logrus.Entry: logger to be used in the command.
	//
	// - *Env: collaborators of the command. A command asks Env for a REST
	// client each time it needs one.
	//
	// - usage.FlagSet[T]: parsed flags and arguments.
	// It is output of Usage().Parse().
	//
	// # Returns
	//
	// - any: what the command has done. It becomes the payload of Result.
	//
	// - error: error if any.
	// An error wrapping errors.ErrUsage is reported as a usage error.
	Execute(ctx context.Context, l *logrus.Entry, e *Env, flags usage.FlagSet[T]) (any, error)

	// Command name
	//
	// This method is expected to return same value in each call.
	Name() string

	// Command flags and arguments.
	//
	// This method is expected to return same value in each call.
	Usage() usage.Usage[T]

	// Help message components.
	//
	// This method is expected to return same value in each call.
	Help() Help
}

// Runner is a Command with its flag type erased.
type Runner interface {
	Name() string
	Help() Help

	// SetFlags registers flags of the command into fs.
	SetFlags(fs *flag.FlagSet) error

	// FlagNames are all flag names the command accepts.
	FlagNames() []string

	// UsageMessage is the usage text shown by "crab help <command>".
	UsageMessage() string

	// Execute runs the command with positional arguments left by the flag
	// set passed to SetFlags.
	Execute(ctx context.Context, l *logrus.Entry, e *Env, args []string) (any, error)
}

// Build makes a Runner from Command.
func Build[T any](c Command[T]) Runner {
	return &runner[T]{c: c, u: c.Usage()}
}

type runner[T any] struct {
	c Command[T]
	u usage.Usage[T]
}

func (r *runner[T]) Name() string {
	return r.c.Name()
}

func (r *runner[T]) Help() Help {
	return r.c.Help()
}

func (r *runner[T]) SetFlags(fs *flag.FlagSet) error {
	return r.u.SetFlags(fs)
}

func (r *runner[T]) FlagNames() []string {
	return r.u.FlagNames()
}

func (r *runner[T]) UsageMessage() string {
	return BuildUsageMessage("crab "+r.Name(), r.c.Help(), r.u)
}

func (r *runner[T]) Execute(ctx context.Context, l *logrus.Entry, e *Env, args []string) (any, error) {
	flg, err := r.u.Parse(args)
	if err != nil {
		return nil, craberr.NewCUIError(
			err.Error(),
			craberr.WithHint("usage: crab "+r.Name()+" "+r.u.String()),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, err)),
		)
	}
	return r.c.Execute(ctx, l, e, flg)
}

func BuildUsageMessage[T any](command string, help Help, usage usage.Usage[T]) string {
	indent := func(s string) string {
		return "  " + strings.ReplaceAll(s, "\n", "\n  ")
	}

	message := []string{"Usage: " + command + " " + usage.String()}

	if help.Detail != "" {
		message = append(
			message,
			"",
			indent(strings.TrimSpace(help.Detail)),
		)
	} else {
		message = append(
			message,
			"",
			indent(strings.TrimSpace(help.Synopsis)),
		)
	}

	if help.Example != "" {
		message = append(
			message,
			"",
			"Example:",
			indent(strings.TrimSpace(help.Example)),
		)
	}
	if args := usage.Args(); 0 < len(args) {
		message = append(
			message,
			"",
			"Arguments:",
		)
		for _, arg := range args {
			s := fmt.Sprintf("%s\n%s", arg.Name, strings.TrimSpace(arg.Help))
			s = strings.ReplaceAll(s, "\n", "\n	")
			message = append(message, indent(s))
		}
	}
	if 0 < len(usage.Flags()) {
		message = append(
			message,
			"",
			"Flags:",
			"",
			// subcommand's help command will show flags.
		)
	}
	tpl := strings.Join(message, "\n")

	plh := usagePlaceHolder{Command: command}
	text, err := plh.Fill(tpl)
	if err != nil {
		return tpl + "(templating error: " + err.Error() + ")\n"
	}
	return text
}
