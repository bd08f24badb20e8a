// Package crabenv wires command.Env to a fake crab server for tests.
package crabenv

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/opst/crabclient/cmd/crab/cache"
	"github.com/opst/crabclient/cmd/crab/commandline/command"
	"github.com/opst/crabclient/cmd/crab/config/instances"
	"github.com/opst/crabclient/cmd/crab/logger"
	"github.com/opst/crabclient/cmd/crab/proxy"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/internal/testutils/certs"
	"github.com/opst/crabclient/internal/testutils/crabserver"
	"github.com/opst/crabclient/pkg/utils/retry"
)

// InstanceName is the name of the fake server in the instance store.
const InstanceName = "fake"

// Buffer is a bytes.Buffer safe for concurrent writers.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type Fixture struct {
	Server *crabserver.Server
	Env    *command.Env
	Stdout *Buffer
	Stderr *Buffer

	// directory where task directories are made
	WorkArea string

	// options Env is made with
	Options []command.Option

	mu          sync.Mutex
	clientsMade int
}

// New starts a fake server, and makes an Env whose instance "fake" is the
// server. The proxy is a throwaway certificate of crabserver.User .
func New(t *testing.T, opts ...command.Option) *Fixture {
	t.Helper()

	svr := crabserver.NewTLS(t)
	host, port := svr.HostPort()
	ca := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: svr.Certificate().Raw})
	store := instances.Builtins().Merge(instances.Store{
		InstanceName: {
			RestHost:   host,
			Port:       port,
			DbInstance: crabserver.DbInstance,
			CA:         base64.StdEncoding.EncodeToString(ca),
			CRIC:       svr.CRIC(),
		},
	})

	proxyPath := certs.ProxyFile(t, certs.SelfSigned(t, crabserver.User, time.Now().Add(24*time.Hour)))

	f := &Fixture{
		Server:   svr,
		Stdout:   &Buffer{},
		Stderr:   &Buffer{},
		WorkArea: t.TempDir(),
	}

	l := logger.New(f.Stderr, "", logger.WithoutColor(), logger.WithLevel(logger.LevelFor(true, false)))
	t.Cleanup(func() { l.Close() })

	base := []command.Option{
		command.WithGlobalFlags(command.GlobalFlags{Instance: InstanceName, Proxy: proxyPath}),
		command.WithInstances(store),
		command.WithStdout(f.Stdout, f.Stderr),
		command.WithLogger(l),
		command.WithREST(10*time.Second, 1, func() retry.Backoff { return retry.StaticBackoff(time.Millisecond) }),
		command.WithCredentials(proxy.Load),
		command.WithClientFactory(func(root string, opts ...rest.Option) (rest.Client, error) {
			f.mu.Lock()
			f.clientsMade++
			f.mu.Unlock()
			return rest.NewClient(root, opts...)
		}),
	}
	f.Options = append(base, opts...)
	f.Env = command.NewEnv(f.Options...)
	return f
}

// ClientsMade counts REST clients made so far.
func (f *Fixture) ClientsMade() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientsMade
}

// AddTask registers task in the server, and makes its task directory in
// WorkArea as submit does. It returns the task directory.
func (f *Fixture) AddTask(t *testing.T, shortName string, task *crabserver.Task) string {
	t.Helper()
	f.Server.AddTask(task)

	host, port := f.Server.HostPort()
	rec, err := cache.Create(cache.TaskDir(f.WorkArea, shortName), cache.Record{
		RequestName:     task.Name,
		Server:          host,
		Port:            port,
		DbInstance:      crabserver.DbInstance,
		InstanceName:    InstanceName,
		SubmittedAt:     time.Now(),
		DryRun:          task.DryRun,
		Status:          task.Status,
		StatusUpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec.Dir()
}

// TLSCertificate is the client certificate f.Env authenticates with.
func (f *Fixture) TLSCertificate(t *testing.T) tls.Certificate {
	t.Helper()
	p, err := f.Env.Proxy()
	if err != nil {
		t.Fatal(err)
	}
	return p.Certificate
}
