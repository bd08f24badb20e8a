// Package cache keeps the local record of a submitted task.
//
// A task directory looks like:
//
//	crab_<requestName>/
//	  .requestcache  (the Record, JSON)
//	  crab.log
//	  inputs/
//	  results/
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hectane/go-acl"
	"github.com/opst/crabclient/cmd/crab/config/instances"
	"github.com/opst/crabclient/cmd/crab/config/open"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
	"github.com/tidwall/sjson"
)

// FileName is the name of the record file in a task directory.
const FileName = ".requestcache"

const (
	ResultsDir = "results"
	InputsDir  = "inputs"
)

var ErrUnknownField = errors.New("unknown lifecycle field")

// Record is what a task directory remembers about its task.
type Record struct {
	RequestName  string `json:"RequestName" validate:"required"`
	Server       string `json:"Server" validate:"required,hostname_rfc1123"`
	Port         int    `json:"Port" validate:"min=1,max=65535"`
	DbInstance   string `json:"DbInstance" validate:"required"`
	InstanceName string `json:"InstanceName,omitempty"`

	// absolute path of the task directory. Load overwrites it with where the
	// record is found.
	RequestArea string `json:"RequestArea"`

	ConfigFile  string    `json:"ConfigFile,omitempty"`
	SubmittedAt time.Time `json:"SubmittedAt"`
	DryRun      bool      `json:"DryRun"`

	// fields below are refreshed by Refresh.

	Status          string    `json:"Status,omitempty"`
	StatusUpdatedAt time.Time `json:"StatusUpdatedAt"`
	TaskWarnings    []string  `json:"TaskWarnings,omitempty"`
}

// Root is the REST root URL of the server the task lives in.
func (r *Record) Root() string {
	return instances.RootOf(r.Server, r.Port, r.DbInstance)
}

// Dir is the task directory the record belongs to.
func (r *Record) Dir() string {
	return r.RequestArea
}

func (r *Record) ResultsDir() string {
	return filepath.Join(r.RequestArea, ResultsDir)
}

func (r *Record) InputsDir() string {
	return filepath.Join(r.RequestArea, InputsDir)
}

// reserved lifecycle fields: the server knows them, but the record does not
// hold them yet.
var reserved = []string{"JobsPerStatus", "OutputDatasets", "PublicationStatus", "Schedd"}

func served() []string {
	return []string{"Status", "StatusUpdatedAt", "SubmittedAt", "DryRun"}
}

// Lifecycle reads a lifecycle field of the task by name.
//
// # Returns
//
// - string: value of the field, formatted.
//
// - error: wraps errors.ErrNotImplemented for reserved fields, and
// ErrUnknownField for names which are not lifecycle fields at all.
func (r *Record) Lifecycle(field string) (string, error) {
	switch field {
	case "Status":
		return r.Status, nil
	case "StatusUpdatedAt":
		if r.StatusUpdatedAt.IsZero() {
			return "", nil
		}
		return r.StatusUpdatedAt.Format(time.RFC3339), nil
	case "SubmittedAt":
		return r.SubmittedAt.Format(time.RFC3339), nil
	case "DryRun":
		return fmt.Sprint(r.DryRun), nil
	}

	if slices.Contains(reserved, field) {
		return "", fmt.Errorf("%w: lifecycle field %s", craberr.ErrNotImplemented, field)
	}
	return "", craberr.NewCUIError(
		fmt.Sprintf("%s is not a lifecycle field of tasks", field),
		craberr.WithHint(spelling.Hint(field, append(served(), reserved...))),
		craberr.WithCause(fmt.Errorf("%w: %s", ErrUnknownField, field)),
	)
}

// TaskDir is the directory for a task named requestName under workArea.
func TaskDir(workArea string, requestName string) string {
	return filepath.Join(workArea, "crab_"+requestName)
}

// Resolve makes dir absolute and checks it is a directory.
//
// A directory which does not exist is an error wrapping errors.ErrTaskNotFound.
func Resolve(dir string) (string, error) {
	if dir == "" {
		return "", craberr.NewCUIError(
			"task directory is not given",
			craberr.WithHint("use --dir to point the directory made by \"crab submit\""),
			craberr.WithCause(fmt.Errorf("%w: empty path", craberr.ErrTaskNotFound)),
		)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	stat, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", craberr.NewCUIError(
			fmt.Sprintf("task directory %s is not found", dir),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrTaskNotFound, err)),
		)
	} else if err != nil {
		return "", err
	}
	if !stat.IsDir() {
		return "", craberr.NewCUIError(
			fmt.Sprintf("%s is not a task directory", dir),
			craberr.WithCause(fmt.Errorf("%w: not a directory: %s", craberr.ErrTaskNotFound, abs)),
		)
	}
	return abs, nil
}

var validate = validator.New()

// Load reads the record in the task directory dir.
//
// # Returns
//
// - *Record
//
// - error: wraps errors.ErrTaskNotFound if dir is not found, or
// errors.ErrCacheMissing if dir has no usable record.
func Load(dir string) (*Record, error) {
	abs, err := Resolve(dir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(abs, FileName)
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, craberr.NewCUIError(
			fmt.Sprintf("%s has no task record (%s)", dir, FileName),
			craberr.WithHint("is it a directory made by \"crab submit\"?"),
			craberr.WithCause(fmt.Errorf("%w: %s", craberr.ErrCacheMissing, path)),
		)
	} else if err != nil {
		return nil, err
	}

	rec := new(Record)
	if err := json.Unmarshal(buf, rec); err != nil {
		return nil, craberr.NewCUIError(
			fmt.Sprintf("task record %s is broken", path),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrCacheMissing, err)),
		)
	}
	if err := validate.Struct(rec); err != nil {
		return nil, craberr.NewCUIError(
			fmt.Sprintf("task record %s is broken", path),
			craberr.WithVerbose(err.Error()),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrCacheMissing, err)),
		)
	}
	rec.RequestArea = abs
	return rec, nil
}

// Create makes the task directory dir with its sub directories, and writes
// rec into it.
//
// It fails if dir already has a record.
func Create(dir string, rec Record) (*Record, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	rec.RequestArea = abs
	if err := validate.Struct(&rec); err != nil {
		return nil, fmt.Errorf("task record is invalid: %w", err)
	}

	for _, d := range []string{abs, rec.ResultsDir(), rec.InputsDir()} {
		if err := os.MkdirAll(d, os.FileMode(0755)); err != nil {
			return nil, err
		}
	}

	buf, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return nil, err
	}

	path := filepath.Join(abs, FileName)
	f, err := open.NewExclusiveFile(path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("%s already has a task", dir),
				craberr.WithHint("change General.requestName, or remove the directory"),
				craberr.WithCause(err),
			)
		}
		return nil, err
	}
	if err := commit(f, path, buf); err != nil {
		// a broken record would make the directory look like a task.
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	return &rec, nil
}

// chmod is replaced in tests.
var chmod = acl.Chmod

func commit(f *os.File, path string, buf []byte) error {
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return chmod(path, os.FileMode(0600))
}

// StatusUpdate is what the server told about a task.
type StatusUpdate struct {
	Status    string
	UpdatedAt time.Time
	Warnings  []string
}

// Refresh rewrites the status fields of the record file of rec, keeping the
// rest of the file as it is. rec is updated also.
func Refresh(rec *Record, update StatusUpdate) error {
	path := filepath.Join(rec.RequestArea, FileName)
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", craberr.ErrCacheMissing, path)
	} else if err != nil {
		return err
	}

	warnings := update.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	for _, f := range []struct {
		key   string
		value any
	}{
		{"Status", update.Status},
		{"StatusUpdatedAt", update.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		{"TaskWarnings", warnings},
	} {
		buf, err = sjson.SetBytes(buf, f.key, f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := open.Replace(path, buf); err != nil {
		return err
	}

	rec.Status = update.Status
	rec.StatusUpdatedAt = update.UpdatedAt
	rec.TaskWarnings = update.Warnings
	return nil
}
