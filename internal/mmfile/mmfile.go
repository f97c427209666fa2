// Package mmfile provides the byte regions a store lives in: a read-write
// shared mapping of a file on unix, a read-into-memory copy elsewhere, and a
// heap-backed region for transient stores. Every region can grow; growing
// invalidates slices obtained from Bytes before the call.
package mmfile

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a region after Close.
var ErrClosed = errors.New("mmfile: region closed")

// maxRegionSize bounds a region to what a slice length can address.
const maxRegionSize = int64(^uint(0) >> 1)

// Mem is a growable region backed by Go memory. It has no file behind it, so
// flushing is meaningless and FD reports -1.
type Mem struct {
	data []byte
}

// NewMem returns a zeroed region of size bytes.
func NewMem(size int64) (*Mem, error) {
	if size < 0 || size > maxRegionSize {
		return nil, fmt.Errorf("mmfile: invalid region size %d", size)
	}
	return &Mem{data: make([]byte, size)}, nil
}

// Bytes returns the current contents.
func (m *Mem) Bytes() []byte { return m.data }

// Size returns the region length in bytes.
func (m *Mem) Size() int64 { return int64(len(m.data)) }

// FD returns -1: there is no descriptor behind a memory region.
func (m *Mem) FD() int { return -1 }

// Grow extends the region by n zero bytes. The contents move to a new
// backing array.
func (m *Mem) Grow(n int64) error {
	if m.data == nil {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	newSize := int64(len(m.data)) + n
	if newSize > maxRegionSize {
		return fmt.Errorf("mmfile: cannot grow region to %d bytes", newSize)
	}
	grown := make([]byte, newSize)
	copy(grown, m.data)
	m.data = grown
	return nil
}

// Close drops the contents.
func (m *Mem) Close() error {
	m.data = nil
	return nil
}
