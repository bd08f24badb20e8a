//go:build windows

// Package open writes files which hold credentials or task state, so that
// only the current user can read them.
package open

import (
	"os"

	winacl "github.com/hectane/go-acl"
)

// NewExclusiveFile creates a new file accessible only by the current user.
//
// It fails with an error wrapping os.ErrExist if the file exists.
func NewExclusiveFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_EXCL|os.O_CREATE|os.O_RDWR, os.FileMode(0600))
	if err != nil {
		return nil, err
	}
	// mode bits of OpenFile mean nothing on windows. acl does.
	if err := winacl.Chmod(path, os.FileMode(0600)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return f, nil
}
