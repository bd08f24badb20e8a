package serverinfo

import (
	"context"
	"fmt"
	"net/url"
	"slices"

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
	return "server_info"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "show the version and back ends of the server of a task",
		Example:  "{{ .Command }} -d crab_ttbar",
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

// ServerInfo is the payload of server_info.
type ServerInfo struct {
	Root    string            `json:"root"`
	Version string            `json:"version"`
	Backend map[string]string `json:"backend"`
}

func (s ServerInfo) String() string {
	return fmt.Sprintf("%s (%s)", s.Root, s.Version)
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

	info := ServerInfo{Root: client.Root(), Backend: map[string]string{}}

	version, err := ask(ctx, client, "version")
	if err != nil {
		return nil, err
	}
	info.Version = version.Result().String()

	backend, err := ask(ctx, client, "backendurls")
	if err != nil {
		return nil, err
	}
	for k, v := range backend.Result().Map() {
		if v.IsArray() {
			info.Backend[k] = v.Raw
		} else {
			info.Backend[k] = v.String()
		}
	}

	w := e.Stdout()
	fmt.Fprintf(w, "Server:\t%s\nVersion:\t%s\n", info.Root, info.Version)
	keys := make([]string, 0, len(info.Backend))
	for k := range info.Backend {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	table := common.NewTable(w, "BACKEND", "URL")
	for _, k := range keys {
		table.Append([]string{k, info.Backend[k]})
	}
	table.Render()
	return info, nil
}

func ask(ctx context.Context, client rest.Client, subresource string) (*rest.Response, error) {
	resp, err := client.Get(ctx, "info", url.Values{"subresource": {subresource}})
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: "server does not tell " + subresource,
		rest.Status5xx: "server error while asking " + subresource,
	}); err != nil {
		return nil, err
	}
	return resp, nil
}
