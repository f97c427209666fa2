//go:build unix

package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a read-write MAP_SHARED mapping of an entire file. Writes through
// Bytes land in the page cache and reach the file on msync or eviction.
type File struct {
	f    *os.File
	data []byte
	size int64
}

// MapFile maps f read-write. The File takes ownership of f and closes it on
// Close. A zero-length file yields an empty mapping that can be grown.
func MapFile(f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size > maxRegionSize {
		return nil, fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}
	m := &File{f: f, size: size}
	if size == 0 {
		return m, nil
	}
	data, err := mapRW(f, size)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	m.data = data
	return m, nil
}

func mapRW(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Bytes returns the current mapping.
func (m *File) Bytes() []byte { return m.data }

// Size returns the mapped length.
func (m *File) Size() int64 { return m.size }

// FD returns the descriptor of the mapped file, or -1 once closed.
func (m *File) FD() int {
	if m == nil || m.f == nil {
		return -1
	}
	return int(m.f.Fd())
}

// Grow extends the file by n bytes and remaps it. The new bytes are
// zero-filled by the OS. On failure the previous mapping is restored when
// possible, so the region stays usable at its old size.
func (m *File) Grow(n int64) error {
	if m == nil || m.f == nil {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	newSize := m.size + n
	if newSize > maxRegionSize {
		return fmt.Errorf("mmfile: cannot grow mapping to %d bytes", newSize)
	}

	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("mmfile: unmap before grow: %w", err)
		}
		m.data = nil
	}

	if err := m.f.Truncate(newSize); err != nil {
		m.recover()
		return fmt.Errorf("mmfile: extend file: %w", err)
	}

	data, err := mapRW(m.f, newSize)
	if err != nil {
		m.recover()
		return fmt.Errorf("mmfile: remap after grow: %w", err)
	}
	m.data = data
	m.size = newSize
	return nil
}

// recover remaps the previous size after a failed grow.
func (m *File) recover() {
	if m.size == 0 {
		return
	}
	data, err := mapRW(m.f, m.size)
	if err == nil {
		m.data = data
	}
}

// Close unmaps the region and closes the file. Calling it twice is a no-op.
func (m *File) Close() error {
	var errs []error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && !errors.Is(err, unix.EINVAL) {
			errs = append(errs, err)
		}
		m.data = nil
	}
	if m.f != nil {
		errs = append(errs, m.f.Close())
		m.f = nil
	}
	return errors.Join(errs...)
}
