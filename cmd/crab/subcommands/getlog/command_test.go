package getlog_test

import (
	"context"
	"os"
	"testing"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/subcommands/common"
	"github.com/opst/crabclient/cmd/crab/subcommands/getlog"
	"github.com/opst/crabclient/cmd/crab/transfer"
	"github.com/opst/crabclient/internal/testutils/crabenv"
	"github.com/opst/crabclient/internal/testutils/crabserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskName = "241016_101500:jdoe_crab_ttbar"

func execute(t *testing.T, e *command.Env, args ...string) (any, error) {
	t.Helper()
	testee := command.Build[getlog.Flags](getlog.New())
	return command.Invoke(context.Background(), testee, e.Logger().Command("getlog"), e, args)
}

func TestGetlog(t *testing.T) {
	t.Run("it copies log archives", func(t *testing.T) {
		f := crabenv.New(t)
		dir := f.AddTask(t, "ttbar", &crabserver.Task{
			Name: taskName, Status: "SUBMITTED",
			Jobs: map[string]*crabserver.Job{
				"1": {
					State:   "finished",
					Outputs: []crabserver.File{{Name: "out_1.root", Content: []byte("output")}},
					Logs:    []crabserver.File{{Name: "cmsRun_1.log.tar.gz", Content: []byte("log")}},
				},
			},
		})

		got, err := execute(t, f.Env, "-d", dir)
		require.NoError(t, err)

		r := got.(common.Retrieval)
		require.Len(t, r.Files, 1)
		assert.Equal(t, transfer.Success, r.Files[0].Status)
		assert.Equal(t, "/store/user/jdoe/cmsRun_1.log.tar.gz", r.Files[0].LFN)

		content, err := os.ReadFile(r.Files[0].Dest)
		require.NoError(t, err)
		assert.Equal(t, "log", string(content))
		assert.Equal(t, "logs2", f.Server.Requests()[0].Form.Get("subresource"))
	})

	t.Run("without the task cache, it fails without any request", func(t *testing.T) {
		f := crabenv.New(t)
		_, err := execute(t, f.Env, "-d", f.WorkArea)
		assert.ErrorIs(t, err, craberr.ErrCacheMissing)
		assert.Zero(t, f.ClientsMade())
	})
}
