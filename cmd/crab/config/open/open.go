//go:build !windows

// Package open writes files which hold credentials or task state, so that
// only the current user can read them.
package open

import "os"

// NewExclusiveFile creates a new file accessible only by the current user.
//
// It fails with an error wrapping os.ErrExist if the file exists.
func NewExclusiveFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_EXCL|os.O_CREATE|os.O_RDWR, os.FileMode(0600))
}
