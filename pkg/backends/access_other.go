//go:build !unix

package backends

import (
	"os"
	"path/filepath"
)

// accessible probes the directory by creating and removing a temporary file.
func accessible(dir string) error {
	f, err := os.CreateTemp(dir, ".spool-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
