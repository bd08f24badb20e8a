package proceed

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
	Dir string `flag:"dir,short=d,help=task directory made by submit --dryrun,metavar=DIR"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "proceed"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "start jobs of a task submitted with --dryrun",
		Detail: `
Start jobs of a task which is uploaded by "crab submit --dryrun".

The server decides whether the task can proceed.
`,
		Example: "{{ .Command }} -d crab_ttbar",
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

	if !task.Record.DryRun {
		l.Warn("task is not submitted with --dryrun. asking the server anyway")
	}

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(ctx, common.Workflow, task.Params("subresource", "proceed"))
	if err != nil {
		if !errors.Is(err, craberr.ErrCommunication) {
			return nil, err
		}
		return command.ActionResult{
			Status: command.ActionFailed, Kind: craberr.KindCommunication, Reason: err.Error(),
		}, nil
	}

	result := command.ActionOf(resp)
	if result.Status != command.ActionSuccess {
		l.Warnf("task cannot proceed: %s", result.Reason)
		return result, nil
	}

	l.Info("jobs are starting")
	if err := cache.Refresh(task.Record, cache.StatusUpdate{
		Status: "SUBMITTED", UpdatedAt: e.Now(), Warnings: task.Record.TaskWarnings,
	}); err != nil {
		l.Warnf("status is not saved in the task directory: %s", err)
	}
	return result, nil
}
