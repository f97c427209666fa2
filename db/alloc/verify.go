package alloc

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/joshuapare/ngfkit/internal/format"
)

// Report is the outcome of Verify.
type Report struct {
	Blocks          int
	AllocatedBlocks int
	FreeBlocks      int
	AllocatedBytes  uint64
	FreeBytes       uint64

	// Allocated holds one bit per 16-byte granule covered by an allocated
	// block, tag included. Granule i covers offsets [16*i, 16*i+16).
	Allocated *roaring.Bitmap

	// Problems lists every inconsistency found. Verify returns ErrCorrupt
	// when it is non-empty.
	Problems []string

	starts map[uint32]bool
}

// IsPayload reports whether payload is the start of an allocated block's payload.
func (r *Report) IsPayload(payload uint64) bool {
	if payload < format.BlockHeaderSize || !format.IsAligned(payload) {
		return false
	}
	g := (payload - format.BlockHeaderSize) / format.Alignment
	return g <= math.MaxUint32 && r.Allocated.Contains(uint32(g)) && r.starts[uint32(g)]
}

// Verify walks the boundary tags and checks that they tile the heap, that
// each prevSize matches its predecessor, that no two free blocks are
// adjacent, that allocated blocks never overlap, and that the free index and
// the allocated counter agree with the tags.
func (a *Allocator) Verify() (*Report, error) {
	data := a.r.Bytes()
	end := heapEnd(data)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: heap end 0x%X beyond region of %d bytes", ErrCorrupt, end, len(data))
	}
	if end/format.Alignment > math.MaxUint32 {
		return nil, fmt.Errorf("alloc: verify: heap of %d bytes exceeds granule bitmap range", end)
	}

	rep := &Report{
		Allocated: roaring.New(),
		starts:    make(map[uint32]bool),
	}
	problem := func(f string, args ...any) {
		rep.Problems = append(rep.Problems, fmt.Sprintf(f, args...))
	}

	var prev uint64
	prevFree := false
	seenFree := 0
	off := uint64(format.HeaderSize)
	for off < end {
		if end-off < format.MinBlockSize {
			problem("trailing %d bytes at 0x%X", end-off, off)
			break
		}
		raw := tagSize(data, off)
		size := absSize(raw)
		if size < format.MinBlockSize || size&format.AlignmentMask != 0 || uint64(size) > end-off {
			problem("block at 0x%X has size %d", off, raw)
			break
		}
		if p := tagPrev(data, off); p != prev {
			problem("block at 0x%X has prevSize %d, want %d", off, p, prev)
		}
		rep.Blocks++

		if raw > 0 {
			rep.FreeBlocks++
			rep.FreeBytes += uint64(size)
			if prevFree {
				problem("free block at 0x%X follows a free block", off)
			}
			blk := a.byOff[off]
			switch {
			case blk == nil:
				problem("free block at 0x%X missing from free lists", off)
			case blk.size != size:
				problem("free block at 0x%X indexed with size %d, tag says %d", off, blk.size, size)
			default:
				seenFree++
			}
			prevFree = true
		} else {
			first, last := off/format.Alignment, (off+uint64(size))/format.Alignment
			if rep.Allocated.IntersectsWithInterval(first, last) {
				problem("allocated block at 0x%X overlaps another", off)
			}
			rep.Allocated.AddRange(first, last)
			rep.starts[uint32(first)] = true
			rep.AllocatedBlocks++
			rep.AllocatedBytes += uint64(size)
			prevFree = false
		}
		prev = uint64(size)
		off += uint64(size)
	}

	if seenFree != len(a.byOff) {
		problem("free index holds %d blocks, heap has %d", len(a.byOff), seenFree)
	}
	if rep.AllocatedBytes != a.allocated {
		problem("allocated counter %d, tags sum to %d", a.allocated, rep.AllocatedBytes)
	}
	if h := format.ReadU64(data, format.AllocatedOffset); h != a.allocated {
		problem("header allocated field %d, allocator has %d", h, a.allocated)
	}

	if len(rep.Problems) > 0 {
		return rep, fmt.Errorf("%w: %d problem(s), first: %s", ErrCorrupt, len(rep.Problems), rep.Problems[0])
	}
	return rep, nil
}
