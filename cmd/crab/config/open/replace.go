package open

import (
	"os"
	"path/filepath"

	"github.com/hectane/go-acl"
)

// Replace writes content to path through a temporary file in the same
// directory, then renames it over path.
//
// The file ends up accessible only by the current user, even if path existed
// with loose permissions.
func Replace(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpname := tmp.Name()
	done := false
	defer func() {
		if !done {
			os.Remove(tmpname)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := acl.Chmod(tmpname, os.FileMode(0600)); err != nil {
		return err
	}
	if err := os.Rename(tmpname, path); err != nil {
		return err
	}
	done = true
	return nil
}
