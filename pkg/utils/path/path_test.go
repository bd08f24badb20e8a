package path_test

import (
	"os"
	"path/filepath"
	"testing"

	kpath "github.com/opst/crabclient/pkg/utils/path"
)

func TestResolve(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home directory is unknown: %s", err)
	}
	pwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("working directory is unknown: %s", err)
	}
	t.Setenv("CRAB_TEST_AREA", "/data/jdoe")

	theory := func(input, expected string) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := kpath.Resolve(input)
			if err != nil {
				t.Fatalf("unexpected error: %s (%+v)", err, err)
			}
			if actual != expected {
				t.Errorf("Resolve(%q): (actual, expected) = (%s, %s)", input, actual, expected)
			}
		}
	}

	t.Run("absolute path is kept", theory("/a/b/c", "/a/b/c"))
	t.Run("absolute path is cleaned", theory("/a/./b/../c/", "/a/c"))
	t.Run("~/ is the home directory", theory("~/crab_projects", filepath.Join(home, "crab_projects")))
	t.Run("~user is not expanded", theory("~jdoe/x", filepath.Join(pwd, "~jdoe/x")))
	t.Run("relative path is from the working directory", theory("./a/b", filepath.Join(pwd, "a/b")))
	t.Run("environment variables are expanded", theory("$CRAB_TEST_AREA/crab_projects", "/data/jdoe/crab_projects"))
	t.Run("braced environment variables are expanded", theory("${CRAB_TEST_AREA}/x", "/data/jdoe/x"))
}

func TestResolveFrom(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home directory is unknown: %s", err)
	}
	pwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("working directory is unknown: %s", err)
	}

	theory := func(base, input, expected string) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := kpath.ResolveFrom(base, input)
			if err != nil {
				t.Fatalf("unexpected error: %s (%+v)", err, err)
			}
			if actual != expected {
				t.Errorf("ResolveFrom(%q, %q): (actual, expected) = (%s, %s)", base, input, actual, expected)
			}
		}
	}

	t.Run("relative path is under base", theory("/analysis", "pset.py", "/analysis/pset.py"))
	t.Run("absolute path ignores base", theory("/analysis", "/etc/lumis.json", "/etc/lumis.json"))
	t.Run("~/ ignores base", theory("/analysis", "~/pset.py", filepath.Join(home, "pset.py")))
	t.Run("relative base is from the working directory", theory("analysis", "pset.py", filepath.Join(pwd, "analysis/pset.py")))
	t.Run("empty base is the working directory", theory("", "pset.py", filepath.Join(pwd, "pset.py")))
}
