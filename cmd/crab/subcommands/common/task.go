// Package common holds what crab commands share.
package common

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/pkg/commandline/flag/args"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

// Workflow is the REST resource of tasks.
const Workflow = "workflow"

// Task is a task directory loaded for a command.
type Task struct {
	Record *cache.Record
	Logger *logrus.Entry
}

// DirArg is the argument naming the task directory instead of --dir.
const DirArg = "DIR"

// TaskArgs are positional arguments of commands working on a task.
var TaskArgs = usage.Args{
	{Name: DirArg, Help: "task directory made by submit. Same as --dir"},
}

// TaskDir chooses the task directory from --dir and the DIR argument.
//
// Giving both is fine only when they are the same directory.
func TaskDir(dir string, positional map[string][]string) (string, error) {
	given := positional[DirArg]
	if len(given) == 0 {
		return dir, nil
	}
	if dir != "" && filepath.Clean(dir) != filepath.Clean(given[0]) {
		return "", craberr.NewCUIError(
			fmt.Sprintf("--dir %s and argument %s name different tasks", dir, given[0]),
			craberr.WithHint("give one of them"),
			craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrUsage, args.ErrTooMany)),
		)
	}
	return given[0], nil
}

// LoadTask loads the record in the task directory, given by --dir as dir or
// by the DIR argument, and moves the log into the directory.
//
// It does not touch the network: failures are reported before any client is
// made.
func LoadTask(e *command.Env, l *logrus.Entry, dir string, positional map[string][]string) (*Task, error) {
	dir, err := TaskDir(dir, positional)
	if err != nil {
		return nil, err
	}
	rec, err := cache.Load(dir)
	if err != nil {
		return nil, err
	}
	e.LogTo(rec.Dir())
	return &Task{
		Record: rec,
		Logger: l.WithField("task", rec.RequestName),
	}, nil
}

// Client makes a REST client for the server of the task.
func (t *Task) Client(e *command.Env) (rest.Client, error) {
	return e.Client(t.Record.Root(), t.Record.InstanceName)
}

// Params are query parameters naming the task, and more.
//
// keyvalues are pairs of key and value.
func (t *Task) Params(keyvalues ...string) url.Values {
	v := url.Values{"workflow": {t.Record.RequestName}}
	for i := 0; i+1 < len(keyvalues); i += 2 {
		v.Add(keyvalues[i], keyvalues[i+1])
	}
	return v
}
