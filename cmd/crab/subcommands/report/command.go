package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/config/open"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/opst/crabclient/pkg/lumi"
	kpath "github.com/opst/crabclient/pkg/utils/path"
	"github.com/sirupsen/logrus"
)

const (
	ProcessedFile    = "processedLumis.json"
	NotProcessedFile = "notProcessedLumis.json"
)

type Flags struct {
	Dir    string `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
	Task   string `flag:"task,short=t,help=same as --dir,metavar=DIR"`
	Output string `flag:"outputfile,short=o,help=where lumis not processed are written. By default <task directory>/results/notProcessedLumis.json,metavar=FILE"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "report"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "report lumi sections processed by a task",
		Detail: `
Summarize jobs of the task, and write lumi masks into the task directory:

- results/processedLumis.json: lumis read by finished jobs
- results/notProcessedLumis.json: lumis of the task lumi mask not read yet

The second one can be used as Data.lumiMask of a recovery task.
`,
		Example: `
{{ .Command }} -d crab_ttbar
{{ .Command }} -t crab_ttbar -o recovery.json
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, common.TaskArgs)
}

// Report is the payload of report.
type Report struct {
	RequestName  string `json:"requestName"`
	JobsTotal    int    `json:"jobsTotal"`
	JobsFinished int    `json:"jobsFinished"`
	EventsRead   int64  `json:"eventsRead"`

	Processed    lumi.Mask `json:"processedLumis"`
	NotProcessed lumi.Mask `json:"notProcessedLumis"`

	// lumis read by more than one finished job.
	Duplicated lumi.Mask `json:"duplicatedLumis"`

	ProcessedFile    string `json:"processedFile"`
	NotProcessedFile string `json:"notProcessedFile"`
}

func (r Report) String() string {
	return fmt.Sprintf(
		"%d of %d jobs are finished, %d lumis are processed and %d are not",
		r.JobsFinished, r.JobsTotal, r.Processed.Len(), r.NotProcessed.Len(),
	)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	dir := flags.Flags.Dir
	if t := flags.Flags.Task; t != "" {
		if dir != "" && filepath.Clean(dir) != filepath.Clean(t) {
			return nil, craberr.NewCUIError(
				"--dir and --task name different tasks",
				craberr.WithHint("give one of them"),
				craberr.WithCause(fmt.Errorf("%w: --dir %s --task %s", craberr.ErrUsage, dir, t)),
			)
		}
		dir = t
	}

	task, err := common.LoadTask(e, l, dir, flags.Args)
	if err != nil {
		return nil, err
	}
	l = task.Logger

	notProcessedPath := filepath.Join(task.Record.ResultsDir(), NotProcessedFile)
	if o := flags.Flags.Output; o != "" {
		if notProcessedPath, err = kpath.Resolve(o); err != nil {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("output file %s is not usable", o),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, err)),
			)
		}
	}

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}
	resp, err := client.Get(ctx, common.Workflow, task.Params("subresource", "report2"))
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("task %s is not found in the server", task.Record.RequestName),
		rest.Status5xx: "server error while making the report",
	}); err != nil {
		return nil, err
	}

	rep, err := Summarize(resp)
	if err != nil {
		return nil, err
	}
	rep.RequestName = task.Record.RequestName
	rep.ProcessedFile = filepath.Join(task.Record.ResultsDir(), ProcessedFile)
	rep.NotProcessedFile = notProcessedPath

	for path, mask := range map[string]lumi.Mask{
		rep.ProcessedFile:    rep.Processed,
		rep.NotProcessedFile: rep.NotProcessed,
	} {
		buf, err := mask.MarshalJSON()
		if err != nil {
			return nil, err
		}
		if err := open.Replace(path, buf); err != nil {
			return nil, fmt.Errorf("%s is not written: %w", path, err)
		}
		l.Debugf("%s is written", path)
	}

	w := e.Stdout()
	fmt.Fprintf(w, "%d jobs of %d are finished\n", rep.JobsFinished, rep.JobsTotal)
	fmt.Fprintf(w, "%d events are read\n", rep.EventsRead)
	fmt.Fprintf(w, "%d lumi sections are processed: %s\n", rep.Processed.Len(), rep.ProcessedFile)
	fmt.Fprintf(w, "%d lumi sections are not processed yet: %s\n", rep.NotProcessed.Len(), rep.NotProcessedFile)
	if n := rep.Duplicated.Len(); 0 < n {
		l.Warnf("%d lumi sections are processed by more than one job", n)
		fmt.Fprintf(w, "warning: %d lumi sections are processed more than once\n", n)
	}
	return rep, nil
}

// Summarize reads the report of the server.
//
// Lumis of finished jobs are processed. Lumis of the task lumi mask not
// processed are not processed yet. Lumis read by two or more finished jobs
// are duplicated.
func Summarize(resp *rest.Response) (Report, error) {
	r := resp.Result()

	mask := lumi.Mask{}
	if m := r.Get("lumiMask"); m.IsObject() {
		if err := json.Unmarshal([]byte(m.Raw), &mask); err != nil {
			return Report{}, craberr.NewCUIError(
				"server answered a broken lumi mask",
				craberr.WithVerbose(m.Raw),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrServer, err)),
			)
		}
	}

	rep := Report{Processed: lumi.Mask{}, Duplicated: lumi.Mask{}}
	for _, job := range r.Get("jobs").Map() {
		rep.JobsTotal++
		if job.Get("state").String() != "finished" {
			continue
		}
		rep.JobsFinished++
		rep.EventsRead += job.Get("events").Int()

		lumis := map[int][]int{}
		for run, ls := range job.Get("lumis").Map() {
			n, err := strconv.Atoi(run)
			if err != nil {
				return Report{}, craberr.NewCUIError(
					fmt.Sprintf("server answered a broken run number %q", run),
					craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrServer, err)),
				)
			}
			for _, l := range ls.Array() {
				lumis[n] = append(lumis[n], int(l.Int()))
			}
		}
		read := lumi.FromLumis(lumis)
		rep.Duplicated = rep.Duplicated.Union(read.Intersect(rep.Processed))
		rep.Processed = rep.Processed.Union(read)
	}

	rep.NotProcessed = mask.Subtract(rep.Processed)
	return rep, nil
}
