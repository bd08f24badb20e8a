// Package instances knows CRAB server instances: where a REST host lives and
// which database instance it serves.
package instances

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opst/crabclient/cmd/crab/config/open"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
	yaml "gopkg.in/yaml.v3"
)

var ErrInstanceInvalid = errors.New("server instance is invalid")

const (
	Prod    = "prod"
	Preprod = "preprod"
	Test    = "test"
)

// DefaultCRIC is the user registry asked by "crab checkusername".
const DefaultCRIC = "https://cms-cric.cern.ch/api"

const DefaultPort = 8443

// Instance is a CRAB server instance.
type Instance struct {
	// host name of the REST front end, without port.
	RestHost string `yaml:"restHost"`

	// Port of the REST front end. 0 means DefaultPort.
	Port int `yaml:"port,omitempty"`

	// database instance, like "prod" or "dev".
	DbInstance string `yaml:"dbInstance"`

	// base64 encoded PEM CA certificates to trust. Empty means system roots.
	CA string `yaml:"ca,omitempty"`

	// CRIC API root. Empty means DefaultCRIC.
	CRIC string `yaml:"cric,omitempty"`
}

func (i Instance) port() int {
	if i.Port == 0 {
		return DefaultPort
	}
	return i.Port
}

// Root is the REST root URL, like https://cmsweb.cern.ch:8443/crabserver/prod .
func (i Instance) Root() string {
	return RootOf(i.RestHost, i.port(), i.DbInstance)
}

// RootOf builds the REST root URL from its parts.
func RootOf(host string, port int, dbInstance string) string {
	u := url.URL{
		Scheme: "https",
		Host:   net.JoinHostPort(host, fmt.Sprint(port)),
		Path:   "/crabserver/" + dbInstance,
	}
	return u.String()
}

func (i Instance) CRICRoot() string {
	if i.CRIC == "" {
		return DefaultCRIC
	}
	return strings.TrimSuffix(i.CRIC, "/")
}

// CAPool returns trusted CA certificates, or nil for system roots.
func (i Instance) CAPool() (*x509.CertPool, error) {
	if i.CA == "" {
		return nil, nil
	}
	bin, err := base64.StdEncoding.DecodeString(i.CA)
	if err != nil {
		return nil, fmt.Errorf("%w: ca is not base64: %w", ErrInstanceInvalid, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(bin) {
		return nil, fmt.Errorf("%w: ca has no PEM certificate", ErrInstanceInvalid)
	}
	return pool, nil
}

// Verify Instance.
//
// # Return
//
// nil if it is valid. Otherwise, ErrInstanceInvalid error.
func (i Instance) Verify() error {
	if i.RestHost == "" || strings.ContainsAny(i.RestHost, "/: ") {
		return fmt.Errorf("%w: restHost should be a host name: %q", ErrInstanceInvalid, i.RestHost)
	}
	if i.Port < 0 || 65535 < i.Port {
		return fmt.Errorf("%w: port out of range: %d", ErrInstanceInvalid, i.Port)
	}
	if i.DbInstance == "" || strings.Contains(i.DbInstance, "/") {
		return fmt.Errorf("%w: dbInstance should be a name: %q", ErrInstanceInvalid, i.DbInstance)
	}
	if i.CA != "" {
		bin, err := base64.StdEncoding.DecodeString(i.CA)
		if err != nil {
			return fmt.Errorf("%w: ca is not base64", ErrInstanceInvalid)
		}
		if blk, _ := pem.Decode(bin); blk == nil {
			return fmt.Errorf("%w: ca is not PEM", ErrInstanceInvalid)
		}
	}
	if i.CRIC != "" {
		if u, err := url.Parse(i.CRIC); err != nil || !u.IsAbs() {
			return fmt.Errorf("%w: cric is not URL: %s", ErrInstanceInvalid, i.CRIC)
		}
	}
	return nil
}

// Builtins are instances known without any store.
func Builtins() Store {
	return Store{
		Prod:    {RestHost: "cmsweb.cern.ch", DbInstance: "prod"},
		Preprod: {RestHost: "cmsweb-testbed.cern.ch", DbInstance: "preprod"},
		Test:    {RestHost: "cmsweb-test.cern.ch", DbInstance: "dev"},
	}
}

// Store is a map from instance name to Instance.
type Store map[string]Instance

// Names of instances, sorted.
func (s Store) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Merge returns a new Store with instances of other overriding s.
func (s Store) Merge(other Store) Store {
	ret := maps.Clone(s)
	if ret == nil {
		ret = Store{}
	}
	maps.Copy(ret, other)
	return ret
}

// Resolve finds an instance by name.
//
// Besides names in the store, "HOST/DBINSTANCE" and "HOST:PORT/DBINSTANCE"
// name an instance ad hoc.
func (s Store) Resolve(name string) (Instance, error) {
	if i, ok := s[name]; ok {
		return i, nil
	}

	if hostport, db, ok := strings.Cut(name, "/"); ok {
		i := Instance{RestHost: hostport, DbInstance: db}
		if host, port, err := net.SplitHostPort(hostport); err == nil {
			i.RestHost = host
			if _, err := fmt.Sscanf(port, "%d", &i.Port); err != nil {
				return Instance{}, fmt.Errorf("%w: %w: port of %s", craberr.ErrUsage, ErrInstanceInvalid, name)
			}
		}
		if err := i.Verify(); err != nil {
			return Instance{}, fmt.Errorf("%w: %w", craberr.ErrUsage, err)
		}
		return i, nil
	}

	return Instance{}, craberr.NewCUIError(
		fmt.Sprintf("unknown server instance %q", name),
		craberr.WithHint(spelling.Hint(name, s.Names())),
		craberr.WithCause(fmt.Errorf("%w: instance %s", craberr.ErrUsage, name)),
	)
}

// Load reads a Store from a file, and merges it over Builtins.
//
// A missing file is not an error; Builtins are returned.
func Load(path string) (Store, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Builtins(), nil
		}
		return nil, err
	}
	store, err := Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Builtins().Merge(store), nil
}

// Unmarshal a Store from yaml. Every instance is verified.
func Unmarshal(buf []byte) (Store, error) {
	ret := Store{}
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstanceInvalid, err)
	}
	for _, name := range ret.Names() {
		if err := ret[name].Verify(); err != nil {
			return nil, fmt.Errorf("instance %s: %w", name, err)
		}
	}
	return ret, nil
}

// Save writes the Store to a file accessible only by the current user.
func (s Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700)); err != nil {
		return err
	}
	buf, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return open.Replace(path, buf)
}
