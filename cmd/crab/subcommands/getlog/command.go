package getlog

import (
	"context"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/cmd/crab/transfer"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags = common.RetrieveFlags

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "getlog"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "retrieve log archives of jobs",
		Detail: `
Copy log archives of jobs into <task directory>/results, or --outputpath.
Logs are kept only when General.transferLogs is true.
`,
		Example: "{{ .Command }} -d crab_ttbar --jobids 3",
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{Parallel: transfer.DefaultParallel}, common.TaskArgs)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	return common.Retrieve(ctx, l, e, flags, "logs2")
}
