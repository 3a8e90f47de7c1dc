//go:build unix && !linux

package sigq

import "golang.org/x/sys/unix"

// Without a portable thread id the owner is the process.
func threadID() int {
	return unix.Getpid()
}
