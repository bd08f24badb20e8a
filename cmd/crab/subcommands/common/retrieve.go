package common

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/cmd/crab/transfer"
	crabflag "github.com/opst/crabclient/pkg/commandline/flag"
	"github.com/opst/crabclient/pkg/commandline/usage"
	kpath "github.com/opst/crabclient/pkg/utils/path"
	"github.com/sirupsen/logrus"
)

// RetrieveFlags are flags of commands retrieving files of jobs.
type RetrieveFlags struct {
	Dir        string            `flag:"dir,short=d,help=task directory made by submit,metavar=DIR"`
	Quantity   crabflag.Quantity `flag:"quantity,help=how many files to retrieve: a number or all,metavar=N"`
	JobIDs     crabflag.JobIDs   `flag:"jobids,help=jobs whose files are retrieved: like 1-3 or 5,metavar=IDS"`
	Parallel   int               `flag:"parallel,help=how many files are copied at once,metavar=N"`
	Wait       int               `flag:"wait,help=seconds to wait for each file. 0 waits forever,metavar=SECONDS"`
	OutputPath string            `flag:"outputpath,help=directory to put files in. By default <task directory>/results,metavar=DIR"`
	Dump       bool              `flag:"dump,help=print where the files are and do not copy them"`
}

// Location of a file of a job.
type Location struct {
	JobID string `json:"jobid"`
	LFN   string `json:"lfn"`
	PFN   string `json:"pfn"`
	Size  int64  `json:"size"`
}

// FileOutcome is how a file is retrieved.
type FileOutcome struct {
	Location
	Dest    string          `json:"dest"`
	Status  transfer.Status `json:"status"`
	Skipped bool            `json:"skipped,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Retrieval is the payload of retrieving commands.
type Retrieval struct {
	// locations only. Set when --dump.
	Dumped []Location `json:"dumped,omitempty"`

	Files []FileOutcome `json:"files"`
}

// ExitCode is not zero when any file has failed.
func (r Retrieval) ExitCode() int {
	for _, f := range r.Files {
		if f.Status != transfer.Success {
			return craberr.ExitCommunication
		}
	}
	return craberr.ExitOK
}

func (r Retrieval) String() string {
	if r.Dumped != nil {
		return fmt.Sprintf("%d files are found", len(r.Dumped))
	}
	failed := []string{}
	for _, f := range r.Files {
		if f.Status != transfer.Success {
			failed = append(failed, fmt.Sprintf("  job %s: %s: %s", f.JobID, f.LFN, f.Error))
		}
	}
	msg := fmt.Sprintf("%d of %d files are retrieved", len(r.Files)-len(failed), len(r.Files))
	if len(failed) == 0 {
		return msg
	}
	return msg + "; failed:\n" + strings.Join(failed, "\n")
}

// Locate asks the server where files of the task are.
//
// subresource is "data2", "data" or "logs2".
func Locate(
	ctx context.Context, client rest.Client, task *Task, subresource string, flags RetrieveFlags,
) ([]Location, error) {
	params := task.Params("subresource", subresource)
	if 0 < len(flags.JobIDs) {
		params.Set("jobids", strings.Join(flags.JobIDs.Strings(), ","))
	}
	if !flags.Quantity.IsAll() {
		params.Set("limit", flags.Quantity.String())
	}

	resp, err := client.Get(ctx, Workflow, params)
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("task %s is not found in the server", task.Record.RequestName),
		rest.Status5xx: "server error while listing files",
	}); err != nil {
		return nil, err
	}

	locations := []Location{}
	for _, r := range resp.Results() {
		size := int64(-1)
		if s := r.Get("size"); s.Exists() {
			size = s.Int()
		}
		jobid := r.Get("jobid").String()
		if jobid == "" {
			jobid = strconv.FormatInt(r.Get("jobid").Int(), 10)
		}
		locations = append(locations, Location{
			JobID: jobid,
			LFN:   r.Get("lfn").String(),
			PFN:   r.Get("pfn").String(),
			Size:  size,
		})
	}
	return locations[:flags.Quantity.Limit(len(locations))], nil
}

// FileNames decides local file names of locations, in the same order.
//
// A file is named after the base name of its LFN. When some LFNs share a base
// name, those files are prefixed with their job id, like "3_output.root", and
// with their position too when even that is not unique.
func FileNames(locations []Location) []string {
	count := func(name func(int) string) map[string]int {
		seen := map[string]int{}
		for i := range locations {
			seen[name(i)]++
		}
		return seen
	}

	base := func(i int) string { return path.Base(locations[i].LFN) }
	withJob := func(i int) string { return locations[i].JobID + "_" + base(i) }

	bases, jobs := count(base), count(withJob)
	names := make([]string, len(locations))
	for i := range locations {
		switch {
		case bases[base(i)] == 1:
			names[i] = base(i)
		case jobs[withJob(i)] == 1:
			names[i] = withJob(i)
		default:
			names[i] = fmt.Sprintf("%s_%d_%s", locations[i].JobID, i, base(i))
		}
	}
	return names
}

// Retrieve copies files of jobs of the task into the local disk.
func Retrieve(
	ctx context.Context, l *logrus.Entry, e *command.Env, parsed usage.FlagSet[RetrieveFlags], subresource string,
) (any, error) {
	flags := parsed.Flags
	task, err := LoadTask(e, l, flags.Dir, parsed.Args)
	if err != nil {
		return nil, err
	}
	l = task.Logger

	client, err := task.Client(e)
	if err != nil {
		return nil, err
	}

	locations, err := Locate(ctx, client, task, subresource, flags)
	if err != nil {
		return nil, err
	}
	l.Debugf("%d files are found", len(locations))

	if flags.Dump {
		table := NewTable(e.Stdout(), "JOB", "LFN", "PFN")
		for _, loc := range locations {
			table.Append([]string{loc.JobID, loc.LFN, loc.PFN})
		}
		table.Render()
		return Retrieval{Dumped: locations, Files: []FileOutcome{}}, nil
	}

	dest := task.Record.ResultsDir()
	if flags.OutputPath != "" {
		if dest, err = kpath.Resolve(flags.OutputPath); err != nil {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("output path %s is not usable", flags.OutputPath),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, err)),
			)
		}
	}

	files := make([]transfer.File, 0, len(locations))
	for i, name := range FileNames(locations) {
		loc := locations[i]
		files = append(files, transfer.File{
			JobID:  loc.JobID,
			LFN:    loc.LFN,
			Source: loc.PFN,
			Size:   loc.Size,
			Dest:   filepath.Join(dest, name),
		})
	}

	if 0 < len(files) {
		l.Infof("retrieving %d files into %s", len(files), dest)
	} else {
		l.Info("no files to retrieve")
	}
	pool := transfer.New(
		client.Download,
		transfer.WithParallel(flags.Parallel),
		transfer.WithWait(time.Duration(flags.Wait)*time.Second),
		transfer.WithProgress(e.Stderr()),
	)
	outcomes := pool.Run(ctx, files)

	result := Retrieval{Files: make([]FileOutcome, 0, len(outcomes))}
	for i, o := range outcomes {
		fo := FileOutcome{
			Location: locations[i],
			Dest:     o.File.Dest,
			Status:   o.Status,
			Skipped:  o.Skipped,
		}
		if o.Err != nil {
			fo.Error = o.Err.Error()
			l.WithField("job", o.File.JobID).Warnf("failed to retrieve %s: %s", o.File.LFN, o.Err)
		}
		result.Files = append(result.Files, fo)
	}

	succeeded, failed := transfer.Count(outcomes)
	if failed == 0 {
		l.Infof("%d files are retrieved", succeeded)
	} else {
		l.Warnf("%d files are retrieved, %d files are failed", succeeded, failed)
	}
	return result, nil
}
