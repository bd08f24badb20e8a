package open_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/opst/crabclient/cmd/crab/config/open"
	"github.com/opst/crabclient/pkg/utils/try"
)

func TestNewExclusiveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")

	f := try.To(open.NewExclusiveFile(path)).OrFatal(t)
	f.Close()

	if runtime.GOOS != "windows" {
		stat := try.To(os.Stat(path)).OrFatal(t)
		if perm := stat.Mode().Perm(); perm != 0o600 {
			t.Errorf("permission: %o", perm)
		}
	}

	if _, err := open.NewExclusiveFile(path); !errors.Is(err, os.ErrExist) {
		t.Errorf("expected ErrExist, but %v", err)
	}
}

func TestReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	if err := os.WriteFile(path, []byte("old"), 0o666); err != nil {
		t.Fatal(err)
	}

	if err := open.Replace(path, []byte("replaced")); err != nil {
		t.Fatal(err)
	}

	if got := string(try.To(os.ReadFile(path)).OrFatal(t)); got != "replaced" {
		t.Errorf("content: %q", got)
	}
	if runtime.GOOS != "windows" {
		stat := try.To(os.Stat(path)).OrFatal(t)
		if perm := stat.Mode().Perm(); perm != 0o600 {
			t.Errorf("permission: %o", perm)
		}
	}

	entries := try.To(os.ReadDir(dir)).OrFatal(t)
	if len(entries) != 1 {
		t.Errorf("temporary file is left: %v", entries)
	}
}
