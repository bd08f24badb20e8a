package resubmit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	crabflag "github.com/opst/crabclient/pkg/commandline/flag"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags struct {
	Dir           string               `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
	JobIDs        crabflag.JobIDs      `flag:"jobids,help=jobs to resubmit: like 1-3 or 5. By default all failed jobs,metavar=IDS"`
	MaxMemory     crabflag.OptionalInt `flag:"maxmemory,help=memory limit of resubmitted jobs in MB,metavar=MB"`
	MaxJobRuntime crabflag.OptionalInt `flag:"maxjobruntime,help=runtime limit of resubmitted jobs in minutes,metavar=MIN"`
	SiteWhitelist crabflag.Strings     `flag:"sitewhitelist,help=sites where resubmitted jobs may run,metavar=SITES"`
	SiteBlacklist crabflag.Strings     `flag:"siteblacklist,help=sites where resubmitted jobs may not run,metavar=SITES"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "resubmit"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "resubmit failed jobs of a task",
		Detail: `
Ask the server to run failed jobs again.

Limits and sites of the resubmitted jobs can be changed.
`,
		Example: `
{{ .Command }} -d crab_ttbar
{{ .Command }} -d crab_ttbar --jobids 1-3,7 --maxmemory 4000
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	f := flags.Flags
	for _, limit := range []struct {
		name  string
		value crabflag.OptionalInt
	}{
		{"--maxmemory", f.MaxMemory},
		{"--maxjobruntime", f.MaxJobRuntime},
	} {
		if n, ok := limit.value.Value(); ok && n <= 0 {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("%s should be positive, but %d", limit.name, n),
				craberr.WithCause(fmt.Errorf("%w: %s", craberr.ErrUsage, limit.name)),
			)
		}
	}

	task, err := common.LoadTask(e, l, f.Dir, flags.Args)
	if err != nil {
		return nil, err
	}
	l = task.Logger

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}

	params := task.Params("subresource", "resubmit2")
	if 0 < len(f.JobIDs) {
		params.Set("jobids", strings.Join(f.JobIDs.Strings(), ","))
	}
	if n, ok := f.MaxMemory.Value(); ok {
		params.Set("maxmemory", strconv.Itoa(n))
	}
	if n, ok := f.MaxJobRuntime.Value(); ok {
		params.Set("maxjobruntime", strconv.Itoa(n))
	}
	for _, s := range f.SiteWhitelist {
		params.Add("sitewhitelist", s)
	}
	for _, s := range f.SiteBlacklist {
		params.Add("siteblacklist", s)
	}

	resp, err := client.Post(ctx, common.Workflow, params)
	if err != nil {
		if !errors.Is(err, craberr.ErrCommunication) {
			return nil, err
		}
		return command.ActionResult{
			Status: command.ActionFailed, Kind: craberr.KindCommunication, Reason: err.Error(),
		}, nil
	}

	result := command.ActionOf(resp)
	if result.Status == command.ActionSuccess {
		l.Info("resubmission is accepted")
	} else {
		l.Warnf("resubmission is not accepted: %s", result.Reason)
	}
	return result, nil
}
