package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/crabclient/cmd/crab/config"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/cmp"
	"github.com/opst/crabclient/pkg/utils/try"
)

type entry struct {
	section string
	key     string
	value   any
}

func build(t *testing.T, entries ...entry) *config.Configuration {
	t.Helper()
	c := config.New()
	for _, e := range entries {
		if err := c.DeclareSection(e.section); err != nil {
			t.Fatal(err)
		}
		if err := c.SetValue(e.section, e.key, e.value); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func analysis(extra ...entry) []entry {
	return append([]entry{
		{"General", "requestName", "ttbar_2024"},
		{"JobType", "pluginName", "Analysis"},
		{"JobType", "psetName", "pset.py"},
		{"Data", "inputDataset", "/TTbar/Run3-v1/MINIAOD"},
		{"Site", "storageSite", "T2_CH_CERN"},
	}, extra...)
}

func TestValidate_Valid(t *testing.T) {
	theory := func(entries []entry) func(*testing.T) {
		return func(t *testing.T) {
			c := build(t, entries...)
			if err := c.Validate(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.Frozen() {
				t.Error("not frozen after validation")
			}
		}
	}

	t.Run("minimal analysis", theory(analysis()))
	t.Run("analysis with every type of value", theory(analysis(
		entry{"General", "transferLogs", true},
		entry{"JobType", "maxMemoryMB", 2500},
		entry{"JobType", "pyCfgParams", []any{"era=2024", "nThreads=4"}},
		entry{"Data", "splitting", "LumiBased"},
		entry{"Data", "unitsPerJob", 20},
		entry{"Data", "runRange", "355100-355200,355400"},
		entry{"Site", "whitelist", []string{"T2_CH_CERN", "T2_US_MIT"}},
		entry{"User", "voGroup", "dcms"},
	)))
	t.Run("automatic splitting with target minutes", theory(analysis(
		entry{"Data", "unitsPerJob", 480},
	)))
	t.Run("analysis on user input files", theory([]entry{
		{"General", "requestName", "private_files"},
		{"General", "transferOutputs", false},
		{"JobType", "pluginName", "Analysis"},
		{"JobType", "psetName", "pset.py"},
		{"Data", "userInputFiles", []any{"/store/user/a.root"}},
	}))
	t.Run("private MC", theory([]entry{
		{"General", "requestName", "mc_gen"},
		{"JobType", "pluginName", "PrivateMC"},
		{"Data", "splitting", "EventBased"},
		{"Data", "unitsPerJob", 1000},
		{"Data", "totalUnits", 100000},
		{"Data", "outputPrimaryDataset", "MinBias"},
		{"Site", "storageSite", "T2_DE_DESY"},
	}))
}

func TestValidate_Invalid(t *testing.T) {
	type then struct {
		path   string
		reason string
	}

	theory := func(entries []entry, then then) func(*testing.T) {
		return func(t *testing.T) {
			c := build(t, entries...)
			err := c.Validate()
			if !errors.Is(err, craberr.ErrConfig) {
				t.Fatalf("expected ErrConfig, but %v", err)
			}
			var ike *config.InvalidKeyError
			if !errors.As(err, &ike) {
				t.Fatalf("expected InvalidKeyError, but %T", err)
			}
			if ike.Path() != then.path {
				t.Errorf("offending key: (actual, expected) = (%s, %s)", ike.Path(), then.path)
			}
			if !strings.Contains(err.Error(), then.path) {
				t.Errorf("message does not name the key: %s", err)
			}
			if !strings.Contains(err.Error(), then.reason) {
				t.Errorf("message does not tell %q: %s", then.reason, err)
			}
			if c.Frozen() {
				t.Error("frozen despite failure")
			}
		}
	}

	t.Run("undeclared key", theory(
		analysis(entry{"Data", "unitPerJob", 10}),
		then{"Data.unitPerJob", `did you mean "unitsPerJob"?`},
	))
	t.Run("key of another section", theory(
		analysis(entry{"General", "storageSite", "T2_CH_CERN"}),
		then{"General.storageSite", "it belongs to section Site"},
	))
	t.Run("first offending key is reported", theory(
		analysis(
			entry{"JobType", "maxMemoryMB", "lots"},
			entry{"Data", "noSuchKey", 1},
		),
		then{"JobType.maxMemoryMB", "should be integer"},
	))
	t.Run("type mismatch in list", theory(
		analysis(entry{"Site", "whitelist", []any{"T2_CH_CERN", 3}}),
		then{"Site.whitelist", "should be list of strings"},
	))
	t.Run("bad splitting", theory(
		analysis(entry{"Data", "splitting", "Magic"}),
		then{"Data.splitting", `"Magic" is not one of`},
	))
	t.Run("bad run range", theory(
		analysis(entry{"Data", "runRange", "10-1"}),
		then{"Data.runRange", "descending"},
	))
	t.Run("bad request name", theory(
		[]entry{{"General", "requestName", "my task!"}},
		then{"General.requestName", "has characters"},
	))
	t.Run("non positive memory", theory(
		analysis(entry{"JobType", "maxMemoryMB", 0}),
		then{"JobType.maxMemoryMB", "positive"},
	))
	t.Run("missing request name", theory(
		[]entry{{"JobType", "pluginName", "Analysis"}},
		then{"General.requestName", "required"},
	))
	t.Run("missing pset for analysis", theory(
		[]entry{
			{"General", "requestName", "x"},
			{"JobType", "pluginName", "Analysis"},
		},
		then{"JobType.psetName", "required"},
	))
	t.Run("missing input for analysis", theory(
		[]entry{
			{"General", "requestName", "x"},
			{"JobType", "pluginName", "Analysis"},
			{"JobType", "psetName", "pset.py"},
		},
		then{"Data.inputDataset", "required"},
	))
	t.Run("missing storage site", theory(
		[]entry{
			{"General", "requestName", "x"},
			{"JobType", "pluginName", "Analysis"},
			{"JobType", "psetName", "pset.py"},
			{"Data", "inputDataset", "/A/B/C"},
		},
		then{"Site.storageSite", "required"},
	))
	t.Run("private MC needs event based splitting", theory(
		[]entry{
			{"General", "requestName", "x"},
			{"JobType", "pluginName", "PrivateMC"},
		},
		then{"Data.splitting", "should be EventBased"},
	))
	t.Run("automatic splitting with total units", theory(
		analysis(entry{"Data", "totalUnits", 100}),
		then{"Data.totalUnits", "cannot be used with Automatic"},
	))
	t.Run("automatic splitting with too short jobs", theory(
		analysis(entry{"Data", "unitsPerJob", 60}),
		then{"Data.unitsPerJob", "[180, 2700]"},
	))
	t.Run("dataset and user files", theory(
		analysis(entry{"Data", "userInputFiles", []any{"/store/user/a.root"}}),
		then{"Data.userInputFiles", "cannot be used with Data.inputDataset"},
	))
	t.Run("lumi mask for private MC", theory(
		[]entry{
			{"General", "requestName", "x"},
			{"JobType", "pluginName", "PrivateMC"},
			{"Data", "splitting", "EventBased"},
			{"Data", "unitsPerJob", 10},
			{"Data", "totalUnits", 100},
			{"Data", "lumiMask", "mask.json"},
			{"Site", "storageSite", "T2_CH_CERN"},
		},
		then{"Data.lumiMask", "cannot be used with plugin PrivateMC"},
	))
}

func TestConfiguration(t *testing.T) {
	t.Run("unknown section is rejected", func(t *testing.T) {
		c := config.New()
		err := c.DeclareSection("Genral")
		if !errors.Is(err, craberr.ErrConfig) {
			t.Fatalf("expected ErrConfig, but %v", err)
		}
		if !strings.Contains(err.Error(), `did you mean "General"?`) {
			t.Errorf("no suggestion: %s", err)
		}
	})

	t.Run("value to undeclared section is rejected", func(t *testing.T) {
		c := config.New()
		if err := c.SetValue("General", "requestName", "x"); !errors.Is(err, craberr.ErrConfig) {
			t.Errorf("expected ErrConfig, but %v", err)
		}
	})

	t.Run("it is frozen after validation", func(t *testing.T) {
		c := build(t, analysis()...)
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
		if err := c.SetValue("General", "requestName", "other"); !errors.Is(err, config.ErrFrozen) {
			t.Errorf("expected ErrFrozen, but %v", err)
		}
		if err := c.DeclareSection("User"); !errors.Is(err, config.ErrFrozen) {
			t.Errorf("expected ErrFrozen, but %v", err)
		}
	})

	t.Run("getters apply defaults", func(t *testing.T) {
		c := build(t, analysis(entry{"JobType", "pyCfgParams", []any{"a=1"}})...)
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
		if got := c.String("Data", "splitting"); got != "Automatic" {
			t.Errorf("splitting: %s", got)
		}
		if got := c.Int("JobType", "maxMemoryMB"); got != 2000 {
			t.Errorf("maxMemoryMB: %d", got)
		}
		if got := c.Bool("General", "transferOutputs"); !got {
			t.Errorf("transferOutputs: %v", got)
		}
		if got := c.Strings("JobType", "pyCfgParams"); !cmp.SliceEq(got, []string{"a=1"}) {
			t.Errorf("pyCfgParams: %v", got)
		}
		if c.Has("Data", "splitting") {
			t.Error("default is not explicit")
		}
		if got := c.String("User", "voRole"); got != "" {
			t.Errorf("voRole: %s", got)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("it reads sections and keys in file order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crabConfig.yaml")
		content := `
JobType:
  pluginName: Analysis
  psetName: pset.py
  maxMemoryMB: 2500
General:
  requestName: ttbar
  transferLogs: true
Data:
  inputDataset: /TTbar/Run3-v1/MINIAOD
  lumiMask: https://example.com/golden.json
Site:
  storageSite: T2_CH_CERN
  whitelist: [T2_CH_CERN, T2_US_MIT]
User:
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		c := try.To(config.Load(path)).OrFatal(t)
		if got := c.Sections(); !cmp.SliceEq(got, []string{"JobType", "General", "Data", "Site", "User"}) {
			t.Errorf("sections: %v", got)
		}
		if got := c.Keys("JobType"); !cmp.SliceEq(got, []string{"pluginName", "psetName", "maxMemoryMB"}) {
			t.Errorf("keys: %v", got)
		}
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
		if got := c.Int("JobType", "maxMemoryMB"); got != 2500 {
			t.Errorf("maxMemoryMB: %d", got)
		}
		if got := c.Strings("Site", "whitelist"); !cmp.SliceEq(got, []string{"T2_CH_CERN", "T2_US_MIT"}) {
			t.Errorf("whitelist: %v", got)
		}
	})

	t.Run("first invalid key in file order is reported", func(t *testing.T) {
		c := try.To(config.Read(strings.NewReader(`
General:
  requestName: x
  bogus: 1
  alsoBogus: 2
`))).OrFatal(t)
		var ike *config.InvalidKeyError
		if err := c.Validate(); !errors.As(err, &ike) || ike.Key != "bogus" {
			t.Errorf("unexpected: %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "crabConfig.yaml"))
		if !errors.Is(err, craberr.ErrConfigMissing) {
			t.Errorf("expected ErrConfigMissing, but %v", err)
		}
	})

	t.Run("unknown section", func(t *testing.T) {
		_, err := config.Read(strings.NewReader("Gneral:\n  requestName: x\n"))
		if !errors.Is(err, craberr.ErrConfig) {
			t.Errorf("expected ErrConfig, but %v", err)
		}
	})

	t.Run("not a mapping", func(t *testing.T) {
		_, err := config.Read(strings.NewReader("- General\n"))
		if !errors.Is(err, craberr.ErrConfig) {
			t.Errorf("expected ErrConfig, but %v", err)
		}
	})
}
