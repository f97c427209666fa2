//go:build !unix

package mmfile

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// File holds an in-memory copy of a file where mmap is not available.
// Changes reach the file through WriteBack.
type File struct {
	f    *os.File
	data []byte
	size int64
}

// MapFile reads f into memory. The File takes ownership of f.
func MapFile(f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size > maxRegionSize {
		return nil, fmt.Errorf("mmfile: file too large to load (%d bytes)", size)
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &File{f: f, data: data, size: size}, nil
}

// Bytes returns the in-memory copy.
func (m *File) Bytes() []byte { return m.data }

// Size returns the length of the copy.
func (m *File) Size() int64 { return m.size }

// FD returns the file descriptor, or -1 once closed.
func (m *File) FD() int {
	if m == nil || m.f == nil {
		return -1
	}
	return int(m.f.Fd())
}

// Grow extends the file and the in-memory copy by n zero bytes.
func (m *File) Grow(n int64) error {
	if m == nil || m.f == nil {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	newSize := m.size + n
	if err := m.f.Truncate(newSize); err != nil {
		return fmt.Errorf("mmfile: extend file: %w", err)
	}
	grown := make([]byte, newSize)
	copy(grown, m.data)
	m.data = grown
	m.size = newSize
	return nil
}

// WriteBack writes the byte range [off, off+n) of the copy to the file.
func (m *File) WriteBack(off, n int64) error {
	if m == nil || m.f == nil {
		return ErrClosed
	}
	if off < 0 || off+n > m.size {
		return fmt.Errorf("mmfile: write-back range [%d,%d) outside %d", off, off+n, m.size)
	}
	_, err := m.f.WriteAt(m.data[off:off+n], off)
	return err
}

// Sync commits the file contents to stable storage.
func (m *File) Sync() error {
	if m == nil || m.f == nil {
		return ErrClosed
	}
	return m.f.Sync()
}

// Close closes the file. Calling it twice is a no-op.
func (m *File) Close() error {
	m.data = nil
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}
