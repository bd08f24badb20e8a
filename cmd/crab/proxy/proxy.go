// Package proxy locates and loads an existing X.509 grid proxy.
//
// Creating or renewing a proxy is done by grid tools (voms-proxy-init), not here.
package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
)

// MinimumLifetime is the least time left for a proxy to be usable.
const MinimumLifetime = 10 * time.Minute

// Proxy is a loaded proxy.
type Proxy struct {
	Path        string
	Certificate tls.Certificate
	Leaf        *x509.Certificate
}

// Subject is the distinguished name of the end entity, like
// "/DC=ch/DC=cern/OU=Users/CN=jdoe".
func (p *Proxy) Subject() string {
	return grid(p.Leaf.Subject.ToRDNSequence().String())
}

func (p *Proxy) Issuer() string {
	return grid(p.Leaf.Issuer.ToRDNSequence().String())
}

func (p *Proxy) NotAfter() time.Time {
	return p.Leaf.NotAfter
}

// TimeLeft until expiry, as of now.
func (p *Proxy) TimeLeft(now time.Time) time.Duration {
	return p.Leaf.NotAfter.Sub(now)
}

// grid converts an RFC 4514 name ("CN=x,O=y") into the slash separated form
// used by grid middleware ("/O=y/CN=x").
func grid(rfc4514 string) string {
	if rfc4514 == "" {
		return ""
	}
	parts := strings.Split(rfc4514, ",")
	b := strings.Builder{}
	for i := len(parts) - 1; 0 <= i; i-- {
		b.WriteString("/")
		b.WriteString(parts[i])
	}
	return b.String()
}

// Load reads a proxy file (certificates and private key in PEM) at path.
//
// Any problem is reported as an error wrapping errors.ErrCredential:
// a missing or unreadable file, broken content, or a proxy with less than
// MinimumLifetime left.
func Load(path string) (*Proxy, error) {
	return LoadAt(path, time.Now())
}

// LoadAt is Load with the current time given.
func LoadAt(path string, now time.Time) (*Proxy, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no proxy location is given", craberr.ErrCredential)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, craberr.NewCUIError(
				fmt.Sprintf("no proxy is found at %s", path),
				craberr.WithHint("create one with voms-proxy-init --voms cms, or point --proxy or X509_USER_PROXY at it"),
				craberr.WithCause(fmt.Errorf("%w: %w", craberr.ErrCredential, err)),
			)
		}
		return nil, fmt.Errorf("%w: %w", craberr.ErrCredential, err)
	}

	cert, err := tls.X509KeyPair(content, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a proxy: %w", craberr.ErrCredential, path, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", craberr.ErrCredential, path, err)
	}
	cert.Leaf = leaf

	p := &Proxy{Path: path, Certificate: cert, Leaf: leaf}
	if left := p.TimeLeft(now); left < MinimumLifetime {
		summary := fmt.Sprintf("proxy at %s expired at %s", path, leaf.NotAfter.Format(time.RFC3339))
		if 0 < left {
			summary = fmt.Sprintf("proxy at %s expires in %s", path, left.Round(time.Second))
		}
		return nil, craberr.NewCUIError(
			summary,
			craberr.WithHint("renew it with voms-proxy-init --voms cms"),
			craberr.WithVerbose("subject: "+p.Subject()),
			craberr.WithCause(fmt.Errorf("%w: proxy lifetime is shorter than %s", craberr.ErrCredential, MinimumLifetime)),
		)
	}
	return p, nil
}
