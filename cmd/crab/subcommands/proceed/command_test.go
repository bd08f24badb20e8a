package proceed_test

import (
	"context"
	"testing"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/subcommands/proceed"
	"github.com/opst/crabclient/internal/testutils/crabenv"
	"github.com/opst/crabclient/internal/testutils/crabserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskName = "241016_101500:jdoe_crab_ttbar"

func execute(t *testing.T, e *command.Env, args ...string) (any, error) {
	t.Helper()
	testee := command.Build[proceed.Flags](proceed.New())
	return command.Invoke(context.Background(), testee, e.Logger().Command("proceed"), e, args)
}

func TestProceed(t *testing.T) {
	t.Run("a dry run task proceeds once", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", &crabserver.Task{Name: taskName, Status: "UPLOADED", DryRun: true})

		got, err := execute(t, f.Env, "-d", dir)
		require.NoError(t, err)
		assert.Equal(t, command.ActionResult{Status: command.ActionSuccess}, got)

		task, _ := f.Server.Task(taskName)
		assert.Equal(t, "SUBMITTED", task.Status)
		reqs := f.Server.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "POST", reqs[0].Method)
		assert.Equal(t, "proceed", reqs[0].Form.Get("subresource"))
		assert.Equal(t, taskName, reqs[0].Form.Get("workflow"))

		rec, err := cache.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "SUBMITTED", rec.Status)

		again, err := execute(t, f.Env, "-d", dir)
		require.NoError(t, err)
		assert.Equal(t, command.ActionResult{
			Status: command.ActionFailed,
			Kind:   craberr.KindServer,
			Reason: "task is SUBMITTED, not waiting to proceed",
		}, again)
	})

	t.Run("a task the server has lost is a communication failure", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", &crabserver.Task{Name: taskName, Status: "UPLOADED", DryRun: true})
		f.Server.FailNext(404)

		got, err := execute(t, f.Env, "-d", dir)
		require.NoError(t, err)
		result := got.(command.ActionResult)
		assert.Equal(t, command.ActionFailed, result.Status)
		assert.Equal(t, craberr.KindCommunication, result.Kind)
		assert.Equal(t, craberr.ExitCommunication, result.ExitCode())
	})

	t.Run("without the task cache, it fails without any request", func(t *testing.T) {
		f := crabenv.New(t)
		_, err := execute(t, f.Env, "-d", f.WorkArea)
		assert.ErrorIs(t, err, craberr.ErrCacheMissing)
		assert.Zero(t, f.ClientsMade())
	})
}
