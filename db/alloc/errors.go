package alloc

import "errors"

var (
	// ErrNoSpace indicates that no free block was large enough, even after growing.
	ErrNoSpace = errors.New("alloc: no free block large enough")

	// ErrBadRef indicates an offset outside the heap or off the alignment grid.
	ErrBadRef = errors.New("alloc: bad block reference")

	// ErrGrowFail indicates that extending the region failed.
	ErrGrowFail = errors.New("alloc: grow failed")

	// ErrNotAllocated indicates an attempt to free a block that is already free.
	ErrNotAllocated = errors.New("alloc: block is not allocated")

	// ErrCorrupt indicates boundary tags that do not tile the heap.
	ErrCorrupt = errors.New("alloc: corrupt heap")
)
