package cache

import "os"

// ReplaceChmod swaps how Create sets the mode of the record, until restored.
func ReplaceChmod(f func(string, os.FileMode) error) (restore func()) {
	orig := chmod
	chmod = f
	return func() { chmod = orig }
}
