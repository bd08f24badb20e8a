package command

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/opst/crabclient/cmd/crab/config/instances"
	"github.com/opst/crabclient/cmd/crab/logger"
	"github.com/opst/crabclient/cmd/crab/proxy"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/pkg/utils/retry"
)

// GlobalFlags are flags given before the command name.
type GlobalFlags struct {
	Config   string `flag:"config,help=task configuration used by submit,metavar=FILE"`
	Proxy    string `flag:"proxy,help=X.509 proxy to authenticate with,metavar=FILE"`
	Instance string `flag:"instance,help=server instance for new tasks (prod|preprod|test|HOST[:PORT]/DB),metavar=NAME"`
	Debug    bool   `flag:"debug,help=show debug messages and causes of errors"`
	Quiet    bool   `flag:"quiet,help=show warnings and errors only"`
}

// ClientFactory makes a REST client for a root URL. rest.NewClient is one.
type ClientFactory func(root string, opts ...rest.Option) (rest.Client, error)

// Credentials loads the proxy at path. proxy.Load is one.
type Credentials func(path string) (*proxy.Proxy, error)

// Env is what a command may use from outside.
type Env struct {
	global      GlobalFlags
	instances   instances.Store
	newClient   ClientFactory
	credentials Credentials
	stdout      io.Writer
	stderr      io.Writer
	logger      *logger.Logger
	timeout     time.Duration
	retries     int
	backoff     func() retry.Backoff
	now         func() time.Time
}

type Option func(*Env)

// WithClientFactory replaces how REST clients are made.
func WithClientFactory(f ClientFactory) Option {
	return func(e *Env) { e.newClient = f }
}

// WithCredentials replaces how the proxy is loaded.
func WithCredentials(c Credentials) Option {
	return func(e *Env) { e.credentials = c }
}

func WithInstances(s instances.Store) Option {
	return func(e *Env) { e.instances = s }
}

// WithStdout sets where commands print their results. Progress and logs go
// to stderr.
func WithStdout(stdout, stderr io.Writer) Option {
	return func(e *Env) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Env) { e.logger = l }
}

func WithGlobalFlags(g GlobalFlags) Option {
	return func(e *Env) { e.global = g }
}

// WithREST sets timeout and attempts of each REST call.
func WithREST(timeout time.Duration, attempts int, backoff func() retry.Backoff) Option {
	return func(e *Env) {
		e.timeout = timeout
		e.retries = attempts
		if backoff != nil {
			e.backoff = backoff
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Env) { e.now = now }
}

// NewEnv builds an Env. Collaborators not given are the real ones.
func NewEnv(opts ...Option) *Env {
	e := &Env{
		global:      GlobalFlags{Instance: instances.Prod},
		instances:   instances.Builtins(),
		newClient:   rest.NewClient,
		credentials: proxy.Load,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		retries:     1,
		backoff:     rest.DefaultBackoff,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = logger.New(e.stderr, "", logger.WithLevel(logger.LevelFor(e.global.Debug, e.global.Quiet)))
	}
	return e
}

func (e *Env) Global() GlobalFlags {
	return e.global
}

func (e *Env) Stdout() io.Writer {
	return e.stdout
}

func (e *Env) Stderr() io.Writer {
	return e.stderr
}

func (e *Env) Now() time.Time {
	return e.now()
}

func (e *Env) Logger() *logger.Logger {
	return e.logger
}

// LogTo makes the log file be crab.log in the task directory dir.
func (e *Env) LogTo(dir string) {
	e.logger.Redirect(filepath.Join(dir, logger.FileName))
}

// Instances known.
func (e *Env) Instances() instances.Store {
	return e.instances
}

// Instance is the server instance chosen by --instance .
func (e *Env) Instance() (string, instances.Instance, error) {
	name := e.global.Instance
	inst, err := e.instances.Resolve(name)
	return name, inst, err
}

// Proxy loads the proxy chosen by --proxy .
func (e *Env) Proxy() (*proxy.Proxy, error) {
	return e.credentials(e.global.Proxy)
}

// Client makes a REST client for root, authenticated with the proxy.
//
// When instanceName is a known instance, its CA certificates are trusted.
func (e *Env) Client(root string, instanceName string) (rest.Client, error) {
	p, err := e.Proxy()
	if err != nil {
		return nil, err
	}

	opts := []rest.Option{
		rest.WithCertificate(p.Certificate),
		rest.WithTimeout(e.timeout),
		rest.WithRetry(e.retries, e.backoff),
	}
	if inst, ok := e.instances[instanceName]; ok {
		pool, err := inst.CAPool()
		if err != nil {
			return nil, err
		}
		if pool != nil {
			opts = append(opts, rest.WithCAPool(pool))
		}
	}
	return e.newClient(root, opts...)
}
