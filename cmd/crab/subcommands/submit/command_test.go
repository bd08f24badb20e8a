package submit_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/config"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/subcommands/submit"
	"github.com/opst/crabclient/internal/testutils/crabenv"
	"github.com/opst/crabclient/internal/testutils/crabserver"
	"github.com/opst/crabclient/pkg/lumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project writes a task configuration and its input files into a new
// directory, and returns the path of the configuration.
func project(t *testing.T, workArea string, yaml string, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("# "+f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	yaml = strings.ReplaceAll(yaml, "{{workArea}}", workArea)
	path := filepath.Join(dir, "crabConfig.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const analysis = `
General:
  requestName: ttbar
  workArea: "{{workArea}}"
JobType:
  pluginName: Analysis
  psetName: pset.py
  inputFiles: [extra.txt]
Data:
  inputDataset: /TTbar/Run3-v1/MINIAODSIM
  splitting: LumiBased
  unitsPerJob: 20
  lumiMask: mask.json
  runRange: "1,3-5"
Site:
  storageSite: T2_CH_CERN
`

const mask = `{"1": [[1, 10]], "2": [[1, 5]], "4": [[3, 4], [5, 8]]}`

func execute(t *testing.T, f *crabenv.Fixture, args ...string) (any, error) {
	t.Helper()
	testee := command.Build[submit.Flags](submit.New())
	return command.Invoke(context.Background(), testee, f.Env.Logger().Command("submit"), f.Env, args)
}

func TestSubmit(t *testing.T) {
	t.Run("it submits a task and makes its task directory", func(t *testing.T) {
		f := crabenv.New(t)
		path := project(t, f.WorkArea, analysis, "pset.py", "extra.txt")
		if err := os.WriteFile(filepath.Join(filepath.Dir(path), "mask.json"), []byte(mask), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := execute(t, f, "--config", path)
		require.NoError(t, err)

		sub, ok := got.(submit.Submission)
		require.True(t, ok, "%T", got)
		assert.False(t, sub.DryRun)
		assert.Equal(t, crabenv.InstanceName, sub.Instance)
		assert.True(t, strings.HasSuffix(sub.RequestName, "_crab_ttbar"), sub.RequestName)
		assert.Equal(t, cache.TaskDir(f.WorkArea, "ttbar"), sub.Dir)

		task, found := f.Server.Task(sub.RequestName)
		require.True(t, found)
		assert.Equal(t, "SUBMITTED", task.Status)
		assert.Equal(t, "Analysis", task.Form.Get("jobtype"))
		assert.Equal(t, "pset.py", task.Form.Get("psetname"))
		assert.Equal(t, "LumiBased", task.Form.Get("splitalgo"))
		assert.Equal(t, "20", task.Form.Get("algoargs"))
		assert.Equal(t, "T2_CH_CERN", task.Form.Get("asyncdest"))
		assert.Equal(t, "0", task.Form.Get("dryrun"))
		assert.Equal(t, []string{"1", "4"}, task.Form["runs"])
		assert.Equal(t, []string{"1-10", "3-8"}, task.Form["lumis"])

		rec, err := cache.Load(sub.Dir)
		require.NoError(t, err)
		assert.Equal(t, sub.RequestName, rec.RequestName)
		assert.Equal(t, crabserver.DbInstance, rec.DbInstance)
		assert.Equal(t, crabenv.InstanceName, rec.InstanceName)
		assert.Equal(t, "SUBMITTED", rec.Status)

		kept, err := lumi.Load(context.Background(), nil, filepath.Join(rec.InputsDir(), "lumiMask.json"))
		require.NoError(t, err)
		assert.Equal(t, lumi.Mask{1: {{First: 1, Last: 10}}, 4: {{First: 3, Last: 8}}}, kept)
		_, err = os.Stat(filepath.Join(rec.InputsDir(), "crabConfig.yaml"))
		assert.NoError(t, err)

		assert.Contains(t, f.Stdout.String(), "Task name: "+sub.RequestName)
		assert.Contains(t, f.Stdout.String(), "Project dir: "+sub.Dir)

		_, err = os.Stat(filepath.Join(sub.Dir, "crab.log"))
		assert.NoError(t, err)

		t.Run("the same task directory is not made again", func(t *testing.T) {
			before := len(f.Server.Requests())
			_, err := execute(t, f, "--config", path)
			assert.ErrorIs(t, err, craberr.ErrConfig)
			assert.Len(t, f.Server.Requests(), before)
		})
	})

	t.Run("with --dryrun, the task waits to proceed", func(t *testing.T) {
		f := crabenv.New(t)
		path := project(t, f.WorkArea, `
General:
  requestName: mc
  workArea: "{{workArea}}"
  transferOutputs: false
JobType:
  pluginName: PrivateMC
  psetName: pset.py
Data:
  splitting: EventBased
  unitsPerJob: 100
  totalUnits: 1000
`, "pset.py")

		got, err := execute(t, f, "-c", path, "--dryrun")
		require.NoError(t, err)
		sub := got.(submit.Submission)
		assert.True(t, sub.DryRun)

		task, _ := f.Server.Task(sub.RequestName)
		assert.Equal(t, "UPLOADED", task.Status)
		assert.Equal(t, "1", task.Form.Get("dryrun"))
		assert.Equal(t, "1000", task.Form.Get("totalunits"))

		rec, err := cache.Load(sub.Dir)
		require.NoError(t, err)
		assert.True(t, rec.DryRun)
		assert.Equal(t, "UPLOADED", rec.Status)
		assert.Contains(t, f.Stdout.String(), "crab proceed")
	})

	t.Run("it takes the global --config when -c is not given", func(t *testing.T) {
		f := crabenv.New(t)
		path := project(t, f.WorkArea, `
General:
  requestName: global
  workArea: "{{workArea}}"
  transferOutputs: false
JobType:
  pluginName: PrivateMC
Data:
  splitting: EventBased
  unitsPerJob: 10
  totalUnits: 10
`)
		g := f.Env.Global()
		g.Config = path
		f2 := crabenv.New(t, command.WithGlobalFlags(g))
		f2.WorkArea = f.WorkArea

		got, err := execute(t, f2)
		require.NoError(t, err)
		assert.Equal(t, cache.TaskDir(f.WorkArea, "global"), got.(submit.Submission).Dir)
	})

	type when struct {
		yaml  string
		files []string
		mask  string
	}
	type then struct {
		err     error
		message string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			f := crabenv.New(t)
			path := project(t, f.WorkArea, when.yaml, when.files...)
			if when.mask != "" {
				if err := os.WriteFile(filepath.Join(filepath.Dir(path), "mask.json"), []byte(when.mask), 0644); err != nil {
					t.Fatal(err)
				}
			}

			_, err := execute(t, f, "-c", path)
			assert.ErrorIs(t, err, then.err)
			if then.message != "" {
				assert.ErrorContains(t, err, then.message)
			}

			assert.Zero(t, f.ClientsMade(), "no REST client should be made")
			assert.Empty(t, f.Server.Requests())
			_, err = os.Stat(cache.TaskDir(f.WorkArea, "ttbar"))
			assert.ErrorIs(t, err, os.ErrNotExist)
		}
	}

	t.Run("an unknown key is rejected before any request", theory(
		when{
			yaml:  strings.Replace(analysis, "General:\n", "General:\n  requestNmae: x\n", 1),
			files: []string{"pset.py", "extra.txt"}, mask: mask,
		},
		then{err: craberr.ErrConfig, message: "General.requestNmae"},
	))

	t.Run("a missing pset is an input file missing", theory(
		when{yaml: analysis, files: []string{"extra.txt"}, mask: mask},
		then{err: craberr.ErrInputFileMissing, message: "JobType.psetName"},
	))

	t.Run("a missing input file is an input file missing", theory(
		when{yaml: analysis, files: []string{"pset.py"}, mask: mask},
		then{err: craberr.ErrInputFileMissing, message: "JobType.inputFiles"},
	))

	t.Run("a missing lumi mask is an input file missing", theory(
		when{yaml: analysis, files: []string{"pset.py", "extra.txt"}},
		then{err: craberr.ErrInputFileMissing, message: "Data.lumiMask"},
	))

	t.Run("a broken lumi mask is a configuration error", theory(
		when{yaml: analysis, files: []string{"pset.py", "extra.txt"}, mask: `{"1": [[5]]}`},
		then{err: craberr.ErrConfig, message: "Data.lumiMask"},
	))

	t.Run("a run range leaving no lumis is a configuration error", theory(
		when{
			yaml:  strings.Replace(analysis, `runRange: "1,3-5"`, `runRange: "100"`, 1),
			files: []string{"pset.py", "extra.txt"}, mask: mask,
		},
		then{err: craberr.ErrConfig, message: "no lumi sections"},
	))

	t.Run("an unknown instance is rejected", theory(
		when{
			yaml:  strings.Replace(analysis, "General:\n", "General:\n  instance: nowhere\n", 1),
			files: []string{"pset.py", "extra.txt"}, mask: mask,
		},
		then{err: craberr.ErrConfig},
	))

	t.Run("a missing configuration is config missing", func(t *testing.T) {
		f := crabenv.New(t)
		_, err := execute(t, f, "-c", filepath.Join(t.TempDir(), "nothing.yaml"))
		assert.ErrorIs(t, err, craberr.ErrConfigMissing)
		assert.Equal(t, craberr.ExitConfigMissing, craberr.ExitCode(err))
		assert.Zero(t, f.ClientsMade())
	})

	t.Run("when the server refuses, no task directory is made", func(t *testing.T) {
		f := crabenv.New(t)
		path := project(t, f.WorkArea, analysis, "pset.py", "extra.txt")
		if err := os.WriteFile(filepath.Join(filepath.Dir(path), "mask.json"), []byte(mask), 0644); err != nil {
			t.Fatal(err)
		}
		f.Server.FailNext(400)

		_, err := execute(t, f, "-c", path)
		assert.ErrorIs(t, err, craberr.ErrCommunication)
		_, err = os.Stat(cache.TaskDir(f.WorkArea, "ttbar"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestParams(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(`
General:
  requestName: params
  transferLogs: true
  failureLimit: 5
JobType:
  pluginName: Analysis
  psetName: /abs/path/pset.py
  outputFiles: [a.root, b.root]
  maxMemoryMB: 4000
Data:
  userInputFiles: [/store/x.root]
  runRange: "7-9"
User:
  voGroup: becms
Site:
  storageSite: T2_CH_CERN
  whitelist: [T2_CH_CERN, T2_US_MIT]
Debug:
  oneEventMode: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	got := submit.Params(cfg, nil, false)

	expected := map[string][]string{
		"workflow":       {"params"},
		"savelogsflag":   {"1"},
		"saveoutput":     {"1"},
		"failurelimit":   {"5"},
		"psetname":       {"pset.py"},
		"addoutputfiles": {"a.root", "b.root"},
		"maxmemory":      {"4000"},
		"numcores":       {"1"},
		"userfiles":      {"/store/x.root"},
		"splitalgo":      {"Automatic"},
		"runs":           {"7", "8", "9"},
		"vogroup":        {"becms"},
		"sitewhitelist":  {"T2_CH_CERN", "T2_US_MIT"},
		"oneEventMode":   {"1"},
		"dryrun":         {"0"},
	}
	for k, v := range expected {
		assert.Equal(t, v, got[k], k)
	}
	assert.NotContains(t, got, "lumis")
	assert.NotContains(t, got, "totalunits")

	buf, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(buf), `""`, "empty values should not be sent")
}
