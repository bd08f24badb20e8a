package kill

import (
	"context"
	"errors"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags struct {
	Dir         string `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
	KillWarning string `flag:"killwarning,help=message shown in the status of the killed task,metavar=MSG"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "kill"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "kill a task and all of its jobs",
		Detail: `
Ask the server to kill the task.

The result is SUCCESS or FAILED as the server says.
Killing a killed task again is FAILED, not an error of crab.
`,
		Example: `
{{ .Command }} -d crab_ttbar
{{ .Command }} -d crab_ttbar --killwarning "wrong dataset"
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	task, err := common.LoadTask(e, l, flags.Flags.Dir, flags.Args)
	if err != nil {
		return nil, err
	}
	l = task.Logger

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}

	params := task.Params()
	if flags.Flags.KillWarning != "" {
		params.Set("killwarning", flags.Flags.KillWarning)
	}

	l.Infof("killing %s", task.Record.RequestName)
	resp, err := client.Delete(ctx, common.Workflow, params)
	if err != nil {
		if !errors.Is(err, craberr.ErrCommunication) {
			return nil, err
		}
		l.Errorf("kill request is not delivered: %s", err)
		return command.ActionResult{
			Status: command.ActionFailed, Kind: craberr.KindCommunication, Reason: err.Error(),
		}, nil
	}

	result := command.ActionOf(resp)
	if result.Status != command.ActionSuccess {
		l.Warnf("kill is not accepted: %s", result.Reason)
		return result, nil
	}

	l.Info("kill request is accepted")
	if err := cache.Refresh(task.Record, cache.StatusUpdate{
		Status: "KILLED", UpdatedAt: e.Now(), Warnings: task.Record.TaskWarnings,
	}); err != nil {
		l.Warnf("status is not saved in the task directory: %s", err)
	}
	return result, nil
}
