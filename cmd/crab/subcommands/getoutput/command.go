package getoutput

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
	return "getoutput"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "retrieve output files of jobs",
		Detail: `
Copy output files of jobs into <task directory>/results, or --outputpath.

Files already copied with the same size are skipped.
The result tells which files are retrieved and which are not.
`,
		Example: `
{{ .Command }} -d crab_ttbar
{{ .Command }} -d crab_ttbar --jobids 1-10 --parallel 3 --wait 600
{{ .Command }} -d crab_ttbar --quantity 1 --dump
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{Parallel: transfer.DefaultParallel}, common.TaskArgs)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	return common.Retrieve(ctx, l, e, flags, "data2")
}
