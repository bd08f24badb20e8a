package getoutputold

import (
	"context"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	crabflag "github.com/opst/crabclient/pkg/commandline/flag"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags = common.RetrieveFlags

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "getoutputold"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "retrieve output files of jobs, one at a time",
		Detail: `
Same as getoutput, but asks the server with the older "data" listing
and copies files one by one unless --parallel is given.
`,
		Example: "{{ .Command }} -d crab_ttbar",
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{Parallel: 1, Quantity: crabflag.ZeroMeansAll()}, common.TaskArgs)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	return common.Retrieve(ctx, l, e, flags, "data")
}
