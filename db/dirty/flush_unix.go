//go:build unix && !darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges msyncs each range. Linux and the BSDs accept page-aligned
// sub-slices of a mapping.
func flushRanges(ctx context.Context, _ Target, data []byte, ranges []Range) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := int(r.Off)
		end := min(int(r.Off+r.Len), len(data))
		if start >= end {
			continue
		}
		if err := unix.Msync(data[start:end], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

// flushHeader msyncs the header page.
func flushHeader(_ Target, header []byte) error {
	return unix.Msync(header, unix.MS_SYNC)
}

// fdatasync syncs the descriptor. fullfsync only matters on macOS.
func fdatasync(t Target, _ bool) error {
	fd := t.FD()
	if fd < 0 {
		return nil
	}
	return unix.Fdatasync(fd)
}
