package proxy_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/proxy"
	"github.com/opst/crabclient/internal/testutils/certs"
	"github.com/opst/crabclient/pkg/utils/try"
)

func TestLoad(t *testing.T) {
	now := time.Now()

	t.Run("valid proxy", func(t *testing.T) {
		path := certs.ProxyFile(t, certs.SelfSigned(t, "jdoe", now.Add(12*time.Hour)))

		p := try.To(proxy.LoadAt(path, now)).OrFatal(t)
		if got := p.Subject(); got != "/O=CERN/CN=jdoe" {
			t.Errorf("subject: %s", got)
		}
		if left := p.TimeLeft(now); left < 11*time.Hour {
			t.Errorf("time left: %s", left)
		}
		if len(p.Certificate.Certificate) == 0 || p.Certificate.PrivateKey == nil {
			t.Error("certificate is not usable for TLS")
		}
	})

	type then struct {
		message string
	}
	theory := func(path func(t *testing.T) string, then then) func(*testing.T) {
		return func(t *testing.T) {
			_, err := proxy.LoadAt(path(t), now)
			if !errors.Is(err, craberr.ErrCredential) {
				t.Fatalf("expected ErrCredential, but %v", err)
			}
			if craberr.ExitCode(err) != craberr.ExitCredential {
				t.Errorf("exit code: %d", craberr.ExitCode(err))
			}
			if !strings.Contains(err.Error(), then.message) {
				t.Errorf("message: %s", err)
			}
		}
	}

	t.Run("missing file", theory(
		func(t *testing.T) string { return filepath.Join(t.TempDir(), "x509up_u1000") },
		then{"no proxy is found"},
	))
	t.Run("no location", theory(
		func(t *testing.T) string { return "" },
		then{"no proxy location"},
	))
	t.Run("expired", theory(
		func(t *testing.T) string {
			return certs.ProxyFile(t, certs.SelfSigned(t, "jdoe", now.Add(-time.Minute)))
		},
		then{"expired at"},
	))
	t.Run("about to expire", theory(
		func(t *testing.T) string {
			return certs.ProxyFile(t, certs.SelfSigned(t, "jdoe", now.Add(5*time.Minute)))
		},
		then{"expires in"},
	))
	t.Run("not a proxy", theory(
		func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "x509up")
			if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
				t.Fatal(err)
			}
			return path
		},
		then{"is not a proxy"},
	))
}
