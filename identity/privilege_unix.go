//go:build !windows

package identity

import "golang.org/x/sys/unix"

func isElevated() bool {
	return unix.Geteuid() == 0
}
