package requesttype

import (
	"context"
	"fmt"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags struct {
	Dir string `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "request_type"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "show the type of a task",
		Detail:   "Ask the server which job type (like Analysis or PrivateMC) the task is.",
		Example:  "{{ .Command }} -d crab_ttbar",
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

// RequestType is the payload of request_type.
type RequestType struct {
	RequestName string `json:"requestName"`
	Type        string `json:"requestType"`
	Status      string `json:"status,omitempty"`
	DryRun      bool   `json:"dryrun"`
}

func (r RequestType) String() string {
	return r.Type
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	task, err := common.LoadTask(e, l, flags.Flags.Dir, flags.Args)
	if err != nil {
		return nil, err
	}

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}
	resp, err := client.Get(ctx, common.Workflow, task.Params("subresource", "type"))
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("task %s is not found in the server", task.Record.RequestName),
		rest.Status5xx: "server error while asking the type of the task",
	}); err != nil {
		return nil, err
	}

	r := resp.Result()
	rt := RequestType{
		RequestName: task.Record.RequestName,
		Type:        r.Get("requesttype").String(),
		Status:      r.Get("status").String(),
		DryRun:      r.Get("dryrun").Bool(),
	}
	fmt.Fprintln(e.Stdout(), rt.Type)
	return rt, nil
}
