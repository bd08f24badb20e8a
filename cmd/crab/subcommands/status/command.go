package status

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags struct {
	Dir   string `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
	Long  bool   `flag:"long,help=show each job"`
	JSON  bool   `flag:"json,help=print the status in JSON"`
	Field string `flag:"field,help=print only a lifecycle field of the task (like Status or SubmittedAt),metavar=NAME"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "status"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "show the status of a task and its jobs",
		Detail: `
Ask the server how the task is going, and show it.

The status is also saved in the task directory.
`,
		Example: `
{{ .Command }} -d crab_ttbar
{{ .Command }} -d crab_ttbar --long
{{ .Command }} -d crab_ttbar --field Status
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

type Job struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Site  string `json:"site,omitempty"`
}

// Status is the payload of status.
type Status struct {
	RequestName   string         `json:"requestName"`
	Status        string         `json:"status"`
	DryRun        bool           `json:"dryrun"`
	Warnings      []string       `json:"warnings"`
	Failure       string         `json:"failure,omitempty"`
	JobsPerStatus map[string]int `json:"jobsPerStatus"`

	// set when --long
	Jobs []Job `json:"jobs,omitempty"`
}

func (s Status) String() string {
	return fmt.Sprintf("task %s is %s", s.RequestName, s.Status)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	task, err := common.LoadTask(e, l, flags.Flags.Dir, flags.Args)
	if err != nil {
		return nil, err
	}
	l = task.Logger

	if flags.Flags.Field != "" {
		// reject unknown fields before asking the server.
		if _, err := task.Record.Lifecycle(flags.Flags.Field); err != nil {
			return nil, err
		}
	}

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}
	st, err := Fetch(ctx, client, task)
	if err != nil {
		return nil, err
	}

	if err := cache.Refresh(task.Record, cache.StatusUpdate{
		Status: st.Status, UpdatedAt: e.Now(), Warnings: st.Warnings,
	}); err != nil {
		l.Warnf("status is not saved in the task directory: %s", err)
	}

	if !flags.Flags.Long {
		st.Jobs = nil
	}

	switch {
	case flags.Flags.Field != "":
		v, err := task.Record.Lifecycle(flags.Flags.Field)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(e.Stdout(), v)
	case flags.Flags.JSON:
		if err := common.WriteJSON(e.Stdout(), st); err != nil {
			return nil, err
		}
	default:
		show(e.Stdout(), task.Record, st)
	}
	return st, nil
}

// Fetch asks the server the status of the task.
func Fetch(ctx context.Context, client rest.Client, task *common.Task) (Status, error) {
	resp, err := client.Get(ctx, common.Workflow, task.Params())
	if err != nil {
		return Status{}, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("task %s is not found in the server", task.Record.RequestName),
		rest.Status5xx: "server error while asking the status",
	}); err != nil {
		return Status{}, err
	}

	r := resp.Result()
	if !r.Get("status").Exists() {
		return Status{}, craberr.NewCUIError(
			"server answered no status",
			craberr.WithVerbose(string(resp.Raw)),
			craberr.WithCause(fmt.Errorf("%w: no status in the answer", craberr.ErrServer)),
		)
	}
	st := Status{
		RequestName:   task.Record.RequestName,
		Status:        r.Get("status").String(),
		DryRun:        r.Get("dryrun").Bool(),
		Warnings:      []string{},
		Failure:       r.Get("taskFailureMsg").String(),
		JobsPerStatus: map[string]int{},
		Jobs:          []Job{},
	}
	for _, w := range r.Get("taskWarningMsg").Array() {
		st.Warnings = append(st.Warnings, w.String())
	}
	for state, n := range r.Get("jobsPerStatus").Map() {
		st.JobsPerStatus[state] = int(n.Int())
	}
	for id, j := range r.Get("jobs").Map() {
		st.Jobs = append(st.Jobs, Job{ID: id, State: j.Get("State").String(), Site: j.Get("Site").String()})
	}
	slices.SortFunc(st.Jobs, func(a, b Job) int {
		na, erra := strconv.Atoi(a.ID)
		nb, errb := strconv.Atoi(b.ID)
		if erra != nil || errb != nil {
			return strings.Compare(a.ID, b.ID)
		}
		return na - nb
	})
	return st, nil
}

func show(w io.Writer, rec *cache.Record, st Status) {
	fmt.Fprintf(w, "Task name:\t\t\t%s\n", st.RequestName)
	fmt.Fprintf(w, "Project dir:\t\t\t%s\n", rec.Dir())
	fmt.Fprintf(w, "Status on the CRAB server:\t%s\n", st.Status)
	if st.DryRun {
		fmt.Fprintln(w, "Jobs are not started yet. Run \"crab proceed\" to start them.")
	}
	for _, warn := range st.Warnings {
		fmt.Fprintf(w, "Warning:\t\t\t%s\n", warn)
	}
	if st.Failure != "" {
		fmt.Fprintf(w, "Failure message:\t\t%s\n", st.Failure)
	}

	total := 0
	states := []string{}
	for state, n := range st.JobsPerStatus {
		total += n
		states = append(states, state)
	}
	if total == 0 {
		fmt.Fprintln(w, "No jobs yet.")
		return
	}
	slices.Sort(states)

	fmt.Fprintln(w)
	table := common.NewTable(w, "STATE", "JOBS", "%")
	for _, state := range states {
		n := st.JobsPerStatus[state]
		table.Append([]string{state, strconv.Itoa(n), fmt.Sprintf("%.1f", 100*float64(n)/float64(total))})
	}
	table.Render()

	if len(st.Jobs) == 0 {
		return
	}
	fmt.Fprintln(w)
	jobs := common.NewTable(w, "JOB", "STATE", "SITE")
	for _, j := range st.Jobs {
		jobs.Append([]string{j.ID, j.State, j.Site})
	}
	jobs.Render()
}
