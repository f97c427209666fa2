//go:build darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes dirty ranges to disk.
//
// On macOS, msync() requires the address to match the original mmap()
// address, so sub-slices cannot be passed. The whole region is synced
// instead; the kernel only writes pages that are actually dirty.
func flushRanges(ctx context.Context, _ Target, data []byte, _ []Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// flushHeader syncs the header page, which starts at the mapping address.
func flushHeader(_ Target, header []byte) error {
	return unix.Msync(header, unix.MS_SYNC)
}

// fdatasync uses F_FULLFSYNC when requested so data leaves the drive cache.
// macOS has no fdatasync, so plain fsync otherwise.
func fdatasync(t Target, fullfsync bool) error {
	fd := t.FD()
	if fd < 0 {
		return nil
	}
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
