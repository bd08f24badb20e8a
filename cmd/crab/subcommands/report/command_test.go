package report_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest/mock"
	"github.com/opst/crabclient/cmd/crab/subcommands/report"
	"github.com/opst/crabclient/internal/testutils/crabenv"
	"github.com/opst/crabclient/internal/testutils/crabserver"
	"github.com/opst/crabclient/pkg/lumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskName = "241016_101500:jdoe_crab_ttbar"

func newTask() *crabserver.Task {
	return &crabserver.Task{
		Name:     taskName,
		Status:   "SUBMITTED",
		LumiMask: map[string][][2]int{"1": {{1, 10}}, "2": {{1, 5}}},
		Jobs: map[string]*crabserver.Job{
			"1": {State: "finished", Events: 100, Lumis: map[string][]int{"1": {1, 2, 3, 4, 5}}},
			"2": {State: "finished", Events: 50, Lumis: map[string][]int{"2": {2, 1}}},
			"3": {State: "running", Lumis: map[string][]int{"1": {6, 7}}},
		},
	}
}

func execute(t *testing.T, e *command.Env, args ...string) (any, error) {
	t.Helper()
	testee := command.Build[report.Flags](report.New())
	return command.Invoke(context.Background(), testee, e.Logger().Command("report"), e, args)
}

func load(t *testing.T, path string) lumi.Mask {
	t.Helper()
	m, err := lumi.Load(context.Background(), nil, path)
	require.NoError(t, err)
	return m
}

func TestReport(t *testing.T) {
	processed := lumi.Mask{1: {{First: 1, Last: 5}}, 2: {{First: 1, Last: 2}}}
	notProcessed := lumi.Mask{1: {{First: 6, Last: 10}}, 2: {{First: 3, Last: 5}}}

	t.Run("it writes lumis processed and not processed", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", newTask())

		got, err := execute(t, f.Env, "-d", dir)
		require.NoError(t, err)

		rep := got.(report.Report)
		assert.Equal(t, taskName, rep.RequestName)
		assert.Equal(t, 3, rep.JobsTotal)
		assert.Equal(t, 2, rep.JobsFinished)
		assert.Equal(t, int64(150), rep.EventsRead)
		assert.Equal(t, processed, rep.Processed)
		assert.Equal(t, notProcessed, rep.NotProcessed)

		assert.Equal(t, filepath.Join(dir, "results", report.ProcessedFile), rep.ProcessedFile)
		assert.Equal(t, filepath.Join(dir, "results", report.NotProcessedFile), rep.NotProcessedFile)
		assert.Equal(t, processed, load(t, rep.ProcessedFile))
		assert.Equal(t, notProcessed, load(t, rep.NotProcessedFile))

		assert.Contains(t, f.Stdout.String(), "2 jobs of 3 are finished")
		assert.Contains(t, f.Stdout.String(), "150 events are read")
		assert.Equal(t, "2 of 3 jobs are finished, 7 lumis are processed and 8 are not", rep.String())

		reqs := f.Server.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "report2", reqs[0].Form.Get("subresource"))
	})

	t.Run("-t and -o are honored", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", newTask())
		out := filepath.Join(t.TempDir(), "recovery.json")

		got, err := execute(t, f.Env, "-t", dir, "-o", out)
		require.NoError(t, err)
		rep := got.(report.Report)
		assert.Equal(t, out, rep.NotProcessedFile)
		assert.Equal(t, notProcessed, load(t, out))
	})

	t.Run("-d and -t naming different tasks is a usage error", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", newTask())

		_, err := execute(t, f.Env, "-d", dir, "-t", f.WorkArea)
		assert.ErrorIs(t, err, craberr.ErrUsage)
		assert.Zero(t, f.ClientsMade())
	})

	t.Run("without the task cache, it fails without any request", func(t *testing.T) {
		f := crabenv.New(t)
		_, err := execute(t, f.Env, "-t", f.WorkArea)
		assert.ErrorIs(t, err, craberr.ErrCacheMissing)
		assert.Zero(t, f.ClientsMade())
		assert.Empty(t, f.Server.Requests())
	})
}

func TestSummarize(t *testing.T) {
	t.Run("a task without lumi mask has nothing left", func(t *testing.T) {
		rep, err := report.Summarize(mock.Result(t, map[string]any{
			"lumiMask": nil,
			"jobs": map[string]any{
				"1": map[string]any{"state": "finished", "events": 10, "lumis": map[string]any{"1": []int{1}}},
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, lumi.Mask{1: {{First: 1, Last: 1}}}, rep.Processed)
		assert.Equal(t, lumi.Mask{}, rep.NotProcessed)
		assert.Equal(t, lumi.Mask{}, rep.Duplicated)
	})

	t.Run("lumis read by a retried job are merged and reported as duplicated", func(t *testing.T) {
		rep, err := report.Summarize(mock.Result(t, map[string]any{
			"lumiMask": map[string]any{"1": [][]int{{1, 10}}},
			"jobs": map[string]any{
				"1":   map[string]any{"state": "finished", "lumis": map[string]any{"1": []int{1, 2, 3, 4}}},
				"1-1": map[string]any{"state": "finished", "lumis": map[string]any{"1": []int{3, 4, 5}}},
				"2":   map[string]any{"state": "finished", "lumis": map[string]any{"1": []int{8}}},
				"3":   map[string]any{"state": "failed", "lumis": map[string]any{"1": []int{8, 9}}},
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, 3, rep.JobsFinished)
		assert.Equal(t, lumi.Mask{1: {{First: 1, Last: 5}, {First: 8, Last: 8}}}, rep.Processed)
		assert.Equal(t, lumi.Mask{1: {{First: 3, Last: 4}}}, rep.Duplicated)
		assert.Equal(t, lumi.Mask{1: {{First: 6, Last: 7}, {First: 9, Last: 10}}}, rep.NotProcessed)
	})

	t.Run("a broken run number is a server error", func(t *testing.T) {
		_, err := report.Summarize(mock.Result(t, map[string]any{
			"jobs": map[string]any{
				"1": map[string]any{"state": "finished", "lumis": map[string]any{"one": []int{1}}},
			},
		}))
		assert.ErrorIs(t, err, craberr.ErrServer)
	})

	t.Run("a broken lumi mask is a server error", func(t *testing.T) {
		_, err := report.Summarize(mock.Result(t, map[string]any{
			"lumiMask": map[string]any{"1": []int{1, 2, 3}},
		}))
		assert.ErrorIs(t, err, craberr.ErrServer)
	})
}
