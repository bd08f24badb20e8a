package submit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/config"
	"github.com/opst/crabclient/cmd/crab/config/instances"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/opst/crabclient/pkg/lumi"
	kpath "github.com/opst/crabclient/pkg/utils/path"
	"github.com/sirupsen/logrus"
)

type Flags struct {
	Config string `flag:"config,short=c,help=task configuration file. By default the one given by the global --config,metavar=FILE"`
	DryRun bool   `flag:"dryrun,help=upload the task but do not run jobs until \"crab proceed\""`
	Wait   bool   `flag:"wait,help=(not supported) wait for the task to finish"`
}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "submit"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "submit a task described by a task configuration",
		Detail: `
Validate a task configuration, and submit it to the server.

On success, a task directory "crab_<requestName>" is made in General.workArea.
Other commands take it with --dir.

With --dryrun, the task is uploaded but its jobs are not started.
Check it with "crab status", and start it with "crab proceed".
`,
		Example: `
{{ .Command }} -c crabConfig.yaml
{{ .Command }} --dryrun
`,
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, usage.Args{})
}

// Submission is the payload of submit.
type Submission struct {
	RequestName string `json:"requestName"`
	Dir         string `json:"dir"`
	Instance    string `json:"instance"`
	DryRun      bool   `json:"dryrun"`
}

func (s Submission) String() string {
	return fmt.Sprintf("task %s is submitted; its directory is %s", s.RequestName, s.Dir)
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	path := flags.Flags.Config
	if path == "" {
		path = e.Global().Config
	}
	if flags.Flags.Wait {
		l.Warn("--wait is not supported. check progress with \"crab status\"")
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, craberr.ErrConfigMissing) {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("task configuration %s is not found", path),
				craberr.WithHint("give one with --config"),
				craberr.WithCause(err),
			)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Dir(path)

	instanceName := e.Global().Instance
	if cfg.Has("General", "instance") {
		instanceName = cfg.String("General", "instance")
	}
	inst, err := e.Instances().Resolve(instanceName)
	if err != nil {
		if cfg.Has("General", "instance") {
			return nil, craberr.NewCUIError(
				"General.instance: "+err.Error(),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrConfig, err)),
			)
		}
		return nil, err
	}

	if err := checkInputFiles(cfg, base); err != nil {
		return nil, err
	}

	mask, err := lumiMask(ctx, cfg, base)
	if err != nil {
		return nil, err
	}

	requestName := cfg.String("General", "requestName")
	dir := cache.TaskDir(resolve(base, cfg.String("General", "workArea")), requestName)
	if _, err := os.Stat(filepath.Join(dir, cache.FileName)); err == nil {
		return nil, craberr.NewCUIError(
			fmt.Sprintf("task directory %s has a task already", dir),
			craberr.WithHint("change General.requestName, or remove the directory"),
			craberr.WithCause(fmt.Errorf("%w: %s exists", craberr.ErrConfig, dir)),
		)
	}

	client, err := e.Client(inst.Root(), instanceName)
	if err != nil {
		return nil, err
	}

	dryrun := flags.Flags.DryRun
	l.Infof("submitting %s to %s", requestName, client.Root())
	resp, err := client.Put(ctx, common.Workflow, Params(cfg, mask, dryrun))
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: "server has refused the task",
		rest.Status5xx: "server error while submitting the task",
	}); err != nil {
		return nil, err
	}
	fullname := resp.Result().Get("RequestName").String()
	if fullname == "" {
		return nil, craberr.NewCUIError(
			"server has not named the task",
			craberr.WithVerbose(string(resp.Raw)),
			craberr.WithCause(fmt.Errorf("%w: no RequestName in the answer", craberr.ErrServer)),
		)
	}

	port := inst.Port
	if port == 0 {
		port = instances.DefaultPort
	}
	absconf, err := filepath.Abs(path)
	if err != nil {
		absconf = path
	}
	status := "SUBMITTED"
	if dryrun {
		status = "UPLOADED"
	}
	now := e.Now()
	rec, err := cache.Create(dir, cache.Record{
		RequestName:     fullname,
		Server:          inst.RestHost,
		Port:            port,
		DbInstance:      inst.DbInstance,
		InstanceName:    instanceName,
		ConfigFile:      absconf,
		SubmittedAt:     now,
		DryRun:          dryrun,
		Status:          status,
		StatusUpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("task %s is submitted, but its directory is not made: %w", fullname, err)
	}
	e.LogTo(rec.Dir())
	l = l.WithField("task", fullname)

	keepInputs(l, rec, path, mask)

	l.Infof("task %s is submitted", fullname)
	fmt.Fprintf(e.Stdout(), "Task name: %s\nProject dir: %s\n", fullname, rec.Dir())
	if dryrun {
		fmt.Fprintf(e.Stdout(), "Jobs are not started. Run \"crab proceed -d %s\" to start them.\n", rec.Dir())
	}
	return Submission{RequestName: fullname, Dir: rec.Dir(), Instance: instanceName, DryRun: dryrun}, nil
}

// resolve a path in the configuration, relative to the configuration file.
func resolve(base, p string) string {
	if lumi.IsURL(p) {
		return p
	}
	if abs, err := kpath.ResolveFrom(base, p); err == nil {
		return abs
	}
	return filepath.Join(base, p)
}

// checkInputFiles requires local files named in the configuration to exist.
func checkInputFiles(cfg *config.Configuration, base string) error {
	files := []struct{ key, path string }{}
	if cfg.Has("JobType", "psetName") {
		files = append(files, struct{ key, path string }{"JobType.psetName", cfg.String("JobType", "psetName")})
	}
	if cfg.Has("JobType", "scriptExe") {
		files = append(files, struct{ key, path string }{"JobType.scriptExe", cfg.String("JobType", "scriptExe")})
	}
	for _, f := range cfg.Strings("JobType", "inputFiles") {
		files = append(files, struct{ key, path string }{"JobType.inputFiles", f})
	}

	for _, f := range files {
		p := resolve(base, f.path)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return craberr.NewCUIError(
					fmt.Sprintf("%s: %s is not found", f.key, f.path),
					craberr.WithCause(fmt.Errorf("%w: %s", craberr.ErrInputFileMissing, p)),
				)
			}
			return err
		}
	}
	return nil
}

// lumiMask loads Data.lumiMask filtered by Data.runRange.
//
// It returns nil when Data.lumiMask is not set.
func lumiMask(ctx context.Context, cfg *config.Configuration, base string) (lumi.Mask, error) {
	if !cfg.Has("Data", "lumiMask") {
		return nil, nil
	}
	source := resolve(base, cfg.String("Data", "lumiMask"))
	mask, err := lumi.Load(ctx, nil, source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("Data.lumiMask: %s is not found", cfg.String("Data", "lumiMask")),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrInputFileMissing, err)),
			)
		}
		return nil, craberr.NewCUIError(
			fmt.Sprintf("Data.lumiMask: %s is not usable", cfg.String("Data", "lumiMask")),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrConfig, err)),
		)
	}

	if cfg.Has("Data", "runRange") {
		runs, err := lumi.ParseRunRange(cfg.String("Data", "runRange"))
		if err != nil {
			return nil, err // validated already
		}
		mask = mask.FilterRuns(runs)
	}
	if mask.Len() == 0 {
		return nil, craberr.NewCUIError(
			"no lumi sections are left to process",
			craberr.WithHint("check Data.lumiMask and Data.runRange"),
			craberr.WithCause(fmt.Errorf("%w: empty lumi mask", craberr.ErrConfig)),
		)
	}
	return mask, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Params is the form to submit the task.
func Params(cfg *config.Configuration, mask lumi.Mask, dryrun bool) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	setStrings := func(key string, values []string) {
		for _, s := range values {
			v.Add(key, s)
		}
	}

	set("workflow", cfg.String("General", "requestName"))
	set("activity", cfg.String("General", "activity"))
	set("saveoutput", boolParam(cfg.Bool("General", "transferOutputs")))
	set("savelogsflag", boolParam(cfg.Bool("General", "transferLogs")))
	if cfg.Has("General", "failureLimit") {
		set("failurelimit", strconv.Itoa(cfg.Int("General", "failureLimit")))
	}

	set("jobtype", cfg.String("JobType", "pluginName"))
	set("psetname", filepath.Base(cfg.String("JobType", "psetName")))
	set("generator", cfg.String("JobType", "generator"))
	setStrings("scriptargs", cfg.Strings("JobType", "scriptArgs"))
	set("scriptexe", filepath.Base(cfg.String("JobType", "scriptExe")))
	setStrings("addoutputfiles", cfg.Strings("JobType", "outputFiles"))
	set("maxmemory", strconv.Itoa(cfg.Int("JobType", "maxMemoryMB")))
	set("maxjobruntime", strconv.Itoa(cfg.Int("JobType", "maxJobRuntimeMin")))
	set("numcores", strconv.Itoa(cfg.Int("JobType", "numCores")))
	set("nonprodsw", boolParam(cfg.Bool("JobType", "allowUndistributedCMSSW")))

	set("inputdata", cfg.String("Data", "inputDataset"))
	set("dbsurl", cfg.String("Data", "inputDBS"))
	setStrings("userfiles", cfg.Strings("Data", "userInputFiles"))
	set("splitalgo", cfg.String("Data", "splitting"))
	if cfg.Has("Data", "unitsPerJob") {
		set("algoargs", strconv.Itoa(cfg.Int("Data", "unitsPerJob")))
	}
	if cfg.Has("Data", "totalUnits") {
		set("totalunits", strconv.Itoa(cfg.Int("Data", "totalUnits")))
	}
	set("lfn", cfg.String("Data", "outLFNDirBase"))
	set("publication", boolParam(cfg.Bool("Data", "publication")))
	set("publishname", cfg.String("Data", "outputDatasetTag"))
	set("primarydataset", cfg.String("Data", "outputPrimaryDataset"))
	set("ignorelocality", boolParam(cfg.Bool("Data", "ignoreLocality")))
	set("allowinvalid", boolParam(cfg.Bool("Data", "allowNonValidInputDataset")))

	if mask != nil {
		for _, run := range mask.Runs() {
			ranges := []string{}
			for _, r := range mask[run] {
				ranges = append(ranges, fmt.Sprintf("%d-%d", r.First, r.Last))
			}
			v.Add("runs", strconv.Itoa(run))
			v.Add("lumis", strings.Join(ranges, ","))
		}
	} else if cfg.Has("Data", "runRange") {
		runs, _ := lumi.ParseRunRange(cfg.String("Data", "runRange"))
		for _, run := range runs {
			v.Add("runs", strconv.Itoa(run))
		}
	}

	set("vogroup", cfg.String("User", "voGroup"))
	set("vorole", cfg.String("User", "voRole"))

	set("asyncdest", cfg.String("Site", "storageSite"))
	setStrings("sitewhitelist", cfg.Strings("Site", "whitelist"))
	setStrings("siteblacklist", cfg.Strings("Site", "blacklist"))
	set("ignoreglobalblacklist", boolParam(cfg.Bool("Site", "ignoreGlobalBlacklist")))

	if cfg.Bool("Debug", "oneEventMode") {
		set("oneEventMode", "1")
	}
	set("scheddname", cfg.String("Debug", "scheddName"))
	set("collector", cfg.String("Debug", "collector"))
	setStrings("extrajdl", cfg.Strings("Debug", "extraJDL"))

	set("dryrun", boolParam(dryrun))
	return v
}

// keepInputs copies the configuration and the lumi mask into the task
// directory. Failures are logged only.
func keepInputs(l *logrus.Entry, rec *cache.Record, configPath string, mask lumi.Mask) {
	if buf, err := os.ReadFile(configPath); err != nil {
		l.Warnf("configuration is not kept in the task directory: %s", err)
	} else if err := os.WriteFile(filepath.Join(rec.InputsDir(), filepath.Base(configPath)), buf, 0644); err != nil {
		l.Warnf("configuration is not kept in the task directory: %s", err)
	}

	if mask == nil {
		return
	}
	buf, err := mask.MarshalJSON()
	if err == nil {
		err = os.WriteFile(filepath.Join(rec.InputsDir(), "lumiMask.json"), buf, 0644)
	}
	if err != nil {
		l.Warnf("lumi mask is not kept in the task directory: %s", err)
	}
}
