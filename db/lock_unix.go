//go:build unix

package db

import "golang.org/x/sys/unix"

const (
	lockShared    = unix.LOCK_SH
	lockExclusive = unix.LOCK_EX
	lockRelease   = unix.LOCK_UN
)

func flock(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if err != unix.EINTR {
			return err
		}
	}
}
