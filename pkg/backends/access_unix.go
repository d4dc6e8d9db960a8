//go:build unix

package backends

import "golang.org/x/sys/unix"

func accessible(dir string) error {
	return unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK)
}
