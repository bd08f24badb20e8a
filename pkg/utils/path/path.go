// Package path resolves paths given by users.
package path

import (
	"os"
	"path/filepath"
	"strings"
)

const tilde = "~" + string(filepath.Separator)

// Resolve returns the absolute path of p.
//
// A leading "~/" is the home directory of the user, and $VAR or ${VAR} are
// replaced with environment variables.
func Resolve(p string) (string, error) {
	return ResolveFrom("", p)
}

// ResolveFrom is Resolve, but a relative p is taken relative to base.
//
// An empty base is the working directory.
func ResolveFrom(base, p string) (string, error) {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, tilde) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[len(tilde):])
	}
	if !filepath.IsAbs(p) && base != "" {
		p = filepath.Join(os.ExpandEnv(base), p)
	}
	return filepath.Abs(p)
}
