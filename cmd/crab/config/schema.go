package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/opst/crabclient/pkg/lumi"
)

// Type is a type of configuration value.
type Type int

const (
	TypeString Type = iota
	TypeStrings
	TypeInt
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeStrings:
		return "list of strings"
	case TypeInt:
		return "integer"
	case TypeBool:
		return "boolean"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Param declares a key of a section.
type Param struct {
	Name    string
	Type    Type
	Default any

	// Validate checks a value already known to have the right Type.
	Validate func(v any) error
}

type SectionSchema struct {
	Name   string
	Params []Param
}

func (s SectionSchema) Param(key string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == key {
			return p, true
		}
	}
	return Param{}, false
}

func (s SectionSchema) Keys() []string {
	keys := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		keys = append(keys, p.Name)
	}
	return keys
}

// Schema is an ordered set of sections.
type Schema []SectionSchema

func (s Schema) Section(name string) (SectionSchema, bool) {
	for _, sec := range s {
		if sec.Name == name {
			return sec, true
		}
	}
	return SectionSchema{}, false
}

func (s Schema) SectionNames() []string {
	names := make([]string, 0, len(s))
	for _, sec := range s {
		names = append(names, sec.Name)
	}
	return names
}

// Owner finds the section declaring key.
func (s Schema) Owner(key string) (string, bool) {
	for _, sec := range s {
		if _, ok := sec.Param(key); ok {
			return sec.Name, true
		}
	}
	return "", false
}

const (
	PluginAnalysis  = "Analysis"
	PluginPrivateMC = "PrivateMC"
)

const (
	SplittingAutomatic           = "Automatic"
	SplittingFileBased           = "FileBased"
	SplittingLumiBased           = "LumiBased"
	SplittingEventAwareLumiBased = "EventAwareLumiBased"
	SplittingEventBased          = "EventBased"
)

var Splittings = []string{
	SplittingAutomatic,
	SplittingFileBased,
	SplittingLumiBased,
	SplittingEventAwareLumiBased,
	SplittingEventBased,
}

// bounds of Data.unitsPerJob under Automatic splitting, in minutes.
const (
	AutomaticMinMinutes = 180
	AutomaticMaxMinutes = 2700
)

const maxRequestNameLength = 100

var reRequestName = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

func oneOf(choices ...string) func(any) error {
	return func(v any) error {
		s := v.(string)
		if slices.Contains(choices, s) {
			return nil
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(choices, ", "))
	}
}

func positive(v any) error {
	if n := v.(int); n <= 0 {
		return fmt.Errorf("should be positive, but %d", n)
	}
	return nil
}

func requestName(v any) error {
	s := v.(string)
	if len(s) > maxRequestNameLength {
		return fmt.Errorf("longer than %d characters", maxRequestNameLength)
	}
	if !reRequestName.MatchString(s) {
		return fmt.Errorf("%q has characters other than letters, digits, '-' and '_'", s)
	}
	return nil
}

func runRange(v any) error {
	_, err := lumi.ParseRunRange(v.(string))
	return err
}

// DefaultSchema is the schema of crab task configurations.
var DefaultSchema = Schema{
	{Name: "General", Params: []Param{
		{Name: "requestName", Type: TypeString, Validate: requestName},
		{Name: "workArea", Type: TypeString, Default: "."},
		{Name: "transferOutputs", Type: TypeBool, Default: true},
		{Name: "transferLogs", Type: TypeBool, Default: false},
		{Name: "instance", Type: TypeString, Default: "prod"},
		{Name: "activity", Type: TypeString},
		{Name: "failureLimit", Type: TypeInt, Validate: positive},
	}},
	{Name: "JobType", Params: []Param{
		{Name: "pluginName", Type: TypeString, Validate: oneOf(PluginAnalysis, PluginPrivateMC)},
		{Name: "psetName", Type: TypeString},
		{Name: "generator", Type: TypeString},
		{Name: "pyCfgParams", Type: TypeStrings},
		{Name: "inputFiles", Type: TypeStrings},
		{Name: "outputFiles", Type: TypeStrings},
		{Name: "scriptExe", Type: TypeString},
		{Name: "scriptArgs", Type: TypeStrings},
		{Name: "maxMemoryMB", Type: TypeInt, Default: 2000, Validate: positive},
		{Name: "maxJobRuntimeMin", Type: TypeInt, Default: 1315, Validate: positive},
		{Name: "numCores", Type: TypeInt, Default: 1, Validate: positive},
		{Name: "allowUndistributedCMSSW", Type: TypeBool, Default: false},
		{Name: "sendPythonFolder", Type: TypeBool, Default: false},
		{Name: "disableAutomaticOutputCollection", Type: TypeBool, Default: false},
	}},
	{Name: "Data", Params: []Param{
		{Name: "inputDataset", Type: TypeString},
		{Name: "inputDBS", Type: TypeString, Default: "global"},
		{Name: "userInputFiles", Type: TypeStrings},
		{Name: "splitting", Type: TypeString, Default: SplittingAutomatic, Validate: oneOf(Splittings...)},
		{Name: "unitsPerJob", Type: TypeInt, Validate: positive},
		{Name: "totalUnits", Type: TypeInt, Validate: positive},
		{Name: "lumiMask", Type: TypeString},
		{Name: "runRange", Type: TypeString, Validate: runRange},
		{Name: "outLFNDirBase", Type: TypeString},
		{Name: "publication", Type: TypeBool, Default: true},
		{Name: "outputDatasetTag", Type: TypeString},
		{Name: "outputPrimaryDataset", Type: TypeString},
		{Name: "ignoreLocality", Type: TypeBool, Default: false},
		{Name: "allowNonValidInputDataset", Type: TypeBool, Default: false},
	}},
	{Name: "User", Params: []Param{
		{Name: "voGroup", Type: TypeString},
		{Name: "voRole", Type: TypeString},
	}},
	{Name: "Site", Params: []Param{
		{Name: "storageSite", Type: TypeString},
		{Name: "whitelist", Type: TypeStrings},
		{Name: "blacklist", Type: TypeStrings},
		{Name: "ignoreGlobalBlacklist", Type: TypeBool, Default: false},
	}},
	{Name: "Debug", Params: []Param{
		{Name: "oneEventMode", Type: TypeBool, Default: false},
		{Name: "scheddName", Type: TypeString},
		{Name: "collector", Type: TypeString},
		{Name: "extraJDL", Type: TypeStrings},
	}},
}
