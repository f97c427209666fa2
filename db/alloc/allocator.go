package alloc

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/joshuapare/ngfkit/internal/format"
)

const (
	// DefaultGrowChunk is the minimum number of bytes added by a grow.
	DefaultGrowChunk = 1 << 20

	// maxAlloc bounds a single request so size arithmetic cannot overflow.
	maxAlloc = math.MaxInt64 / 2
)

// Config tunes an Allocator. The zero value is usable.
type Config struct {
	// SizeClasses selects the free-list layout. Nil means DefaultConfig.
	SizeClasses *SizeClassConfig

	// GrowChunk is the minimum growth step in bytes. Zero means DefaultGrowChunk.
	GrowChunk int64

	// OnGrow, if set, is called after the region has been extended and the
	// heap updated. The store uses it to start a new mapping epoch.
	OnGrow func(oldSize, newSize int64)
}

// Allocator manages the heap of a store using min-heaps per size class.
//   - Min-heaps give O(log n) allocation and removal with best fit per class
//   - byOff gives O(1) lookup of a free block when a neighbour coalesces into it
//   - boundary tags give O(1) access to both physical neighbours
type Allocator struct {
	r  Region
	dt DirtyTracker

	sizeTable *sizeClassTable

	// freeLists has one heap per size class plus a final large class.
	freeLists []freeList
	byOff     map[uint64]*freeBlock

	// lastOff is the tag offset of the physically last block (0 when the
	// heap is empty).
	lastOff uint64

	// allocated is the number of bytes held by allocated blocks, tags included.
	allocated uint64

	growChunk int64
	onGrow    func(oldSize, newSize int64)

	stats Stats
}

// New creates an allocator over r and rebuilds its free lists from the
// boundary tags. dt may be nil for read-only use.
func New(r Region, dt DirtyTracker, cfg Config) (*Allocator, error) {
	classes := cfg.SizeClasses
	if classes == nil {
		classes = &DefaultConfig
	}
	sizeTable := newSizeClassTable(*classes)

	growChunk := cfg.GrowChunk
	if growChunk <= 0 {
		growChunk = DefaultGrowChunk
	}

	a := &Allocator{
		r:         r,
		dt:        dt,
		sizeTable: sizeTable,
		freeLists: make([]freeList, sizeTable.NumClasses()+1),
		byOff:     make(map[uint64]*freeBlock, 256),
		growChunk: int64(format.AlignPage(uint64(growChunk))),
		onGrow:    cfg.OnGrow,
	}
	if err := a.initializeFreeLists(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload returns an allocator over the same region with free lists rebuilt
// from the boundary tags, for use after another process wrote the heap. The
// counters carry over.
func (a *Allocator) Reload() (*Allocator, error) {
	b := &Allocator{
		r:         a.r,
		dt:        a.dt,
		sizeTable: a.sizeTable,
		freeLists: make([]freeList, len(a.freeLists)),
		byOff:     make(map[uint64]*freeBlock, len(a.byOff)),
		growChunk: a.growChunk,
		onGrow:    a.onGrow,
		stats:     a.stats,
	}
	if err := b.initializeFreeLists(); err != nil {
		return nil, err
	}
	return b, nil
}

// initializeFreeLists walks every tag in the heap, checks that the blocks
// tile it exactly, and indexes the free ones.
func (a *Allocator) initializeFreeLists() error {
	data := a.r.Bytes()
	if len(data) < format.HeaderSize {
		return fmt.Errorf("%w: region of %d bytes has no header", ErrCorrupt, len(data))
	}
	if ds := format.ReadU64(data, format.DataSizeOffset); ds > uint64(len(data)-format.HeaderSize) {
		return fmt.Errorf("%w: heap size %d beyond region of %d bytes", ErrCorrupt, ds, len(data))
	}
	end := heapEnd(data)

	var prev uint64
	off := uint64(format.HeaderSize)
	for off < end {
		if end-off < format.MinBlockSize {
			return fmt.Errorf("%w: trailing %d bytes at 0x%X", ErrCorrupt, end-off, off)
		}
		raw := tagSize(data, off)
		size := absSize(raw)
		if size < format.MinBlockSize || size&format.AlignmentMask != 0 || uint64(size) > end-off {
			return fmt.Errorf("%w: block at 0x%X has size %d", ErrCorrupt, off, raw)
		}
		if p := tagPrev(data, off); p != prev {
			return fmt.Errorf("%w: block at 0x%X has prevSize %d, want %d", ErrCorrupt, off, p, prev)
		}
		if raw > 0 {
			a.insertFreeBlock(off, size)
		} else {
			a.allocated += uint64(size)
		}
		a.lastOff = off
		prev = uint64(size)
		off += uint64(size)
	}
	return nil
}

// Alloc returns the payload offset of a block of at least size bytes. The
// payload is zeroed. The heap grows when no free block fits.
func (a *Allocator) Alloc(size uint64) (uint64, error) {
	a.stats.AllocCalls++

	if size > maxAlloc {
		return 0, fmt.Errorf("%w: request of %d bytes", ErrNoSpace, size)
	}
	need := int64(format.AlignUp(size + format.BlockHeaderSize))
	need = max(need, format.MinBlockSize)

	blk := a.takeFreeBlock(need)
	if blk == nil {
		a.stats.AllocSlowPath++
		if err := a.Grow(uint64(need)); err != nil {
			return 0, err
		}
		blk = a.takeFreeBlock(need)
		if blk == nil {
			return 0, fmt.Errorf("%w: %d bytes after grow", ErrNoSpace, need)
		}
	} else {
		a.stats.AllocFastPath++
	}

	off, bsize := blk.off, blk.size
	data := a.r.Bytes()
	end := heapEnd(data)

	if rest := bsize - need; rest >= format.MinBlockSize {
		a.stats.SplitCount++
		restOff := off + uint64(need)
		putTagSize(data, restOff, rest)
		putTagPrev(data, restOff, uint64(need))
		if next := off + uint64(bsize); next < end {
			putTagPrev(data, next, uint64(rest))
			a.markDirty(next, format.BlockHeaderSize)
		} else {
			a.lastOff = restOff
		}
		a.markDirty(restOff, format.BlockHeaderSize)
		a.insertFreeBlock(restOff, rest)
		bsize = need
	}

	putTagSize(data, off, -bsize)
	clear(data[off+format.BlockHeaderSize : off+uint64(bsize)])
	a.markDirty(off, int(bsize))

	a.allocated += uint64(bsize)
	a.stats.BytesAllocated += bsize
	a.writeHeader(data)

	return off + format.BlockHeaderSize, nil
}

// Free returns the block whose payload starts at payload to the free lists,
// coalescing it with free neighbours on both sides.
func (a *Allocator) Free(payload uint64) error {
	a.stats.FreeCalls++

	data := a.r.Bytes()
	end := heapEnd(data)

	if payload < format.HeaderSize+format.BlockHeaderSize || !format.IsAligned(payload) {
		return fmt.Errorf("%w: 0x%X", ErrBadRef, payload)
	}
	off := payload - format.BlockHeaderSize
	if off+format.MinBlockSize > end {
		return fmt.Errorf("%w: 0x%X beyond heap end 0x%X", ErrBadRef, payload, end)
	}

	raw := tagSize(data, off)
	if raw >= 0 {
		return fmt.Errorf("%w: 0x%X", ErrNotAllocated, payload)
	}
	size := -raw
	if size < format.MinBlockSize || uint64(size) > end-off {
		return fmt.Errorf("%w: block at 0x%X has size %d", ErrCorrupt, off, raw)
	}

	a.allocated -= uint64(size)
	a.stats.BytesFreed += size

	// Coalesce forward.
	if next := off + uint64(size); next < end {
		if nsize := tagSize(data, next); nsize > 0 {
			a.stats.CoalesceForward++
			a.removeFreeBlock(next)
			size += nsize
		}
	}

	// Coalesce backward.
	if off > format.HeaderSize {
		prevOff := off - tagPrev(data, off)
		if psize := tagSize(data, prevOff); psize > 0 {
			a.stats.CoalesceBackward++
			a.removeFreeBlock(prevOff)
			size += psize
			off = prevOff
		}
	}

	putTagSize(data, off, size)
	a.markDirty(off, format.BlockHeaderSize)
	if next := off + uint64(size); next < end {
		putTagPrev(data, next, uint64(size))
		a.markDirty(next, format.BlockHeaderSize)
	} else {
		a.lastOff = off
	}

	a.insertFreeBlock(off, size)
	a.writeHeader(data)
	return nil
}

// Grow extends the heap so that a block of need bytes (tag included) fits at
// its end. The region grows by at least the configured chunk and always by a
// whole number of pages. The new space becomes one free block, merged with a
// trailing free block if there is one.
//
// Any pointer into the old region is invalid once Grow returns.
func (a *Allocator) Grow(need uint64) error {
	data := a.r.Bytes()
	oldEnd := heapEnd(data)

	// A free block at the end of the heap counts toward the request.
	var trailing int64
	if a.lastOff != 0 {
		if s := tagSize(data, a.lastOff); s > 0 {
			trailing = s
		}
	}
	want := need
	if uint64(trailing) < want {
		want -= uint64(trailing)
	} else {
		want = format.MinBlockSize
	}
	add := max(format.AlignPage(want), uint64(a.growChunk))
	newEnd := oldEnd + add

	oldSize := int64(len(data))
	if newEnd > uint64(len(data)) {
		if err := a.r.Grow(int64(newEnd) - oldSize); err != nil {
			return fmt.Errorf("%w: %w", ErrGrowFail, err)
		}
		data = a.r.Bytes()
	}
	a.stats.GrowCalls++
	a.stats.GrowBytes += int64(add)

	format.PutU64(data, format.DataSizeOffset, newEnd-format.HeaderSize)

	var off uint64
	var size int64
	switch {
	case trailing > 0:
		a.removeFreeBlock(a.lastOff)
		off, size = a.lastOff, trailing+int64(add)
	case a.lastOff != 0:
		off, size = oldEnd, int64(add)
		putTagPrev(data, off, uint64(absSize(tagSize(data, a.lastOff))))
	default:
		off, size = oldEnd, int64(add)
		putTagPrev(data, off, 0)
	}
	putTagSize(data, off, size)
	a.markDirty(off, format.BlockHeaderSize)
	a.lastOff = off
	a.insertFreeBlock(off, size)
	a.writeHeader(data)

	if a.onGrow != nil {
		a.onGrow(oldSize, int64(len(data)))
	}
	return nil
}

// BlockSize returns the usable payload size of the allocated block at payload.
func (a *Allocator) BlockSize(payload uint64) (uint64, error) {
	data := a.r.Bytes()
	if payload < format.HeaderSize+format.BlockHeaderSize || !format.IsAligned(payload) ||
		payload > heapEnd(data) {
		return 0, fmt.Errorf("%w: 0x%X", ErrBadRef, payload)
	}
	raw := tagSize(data, payload-format.BlockHeaderSize)
	if raw >= 0 {
		return 0, fmt.Errorf("%w: 0x%X", ErrNotAllocated, payload)
	}
	return uint64(-raw) - format.BlockHeaderSize, nil
}

// Allocated returns the bytes held by allocated blocks, tags included.
func (a *Allocator) Allocated() uint64 { return a.allocated }

// takeFreeBlock removes and returns the best fitting free block of at least
// need bytes, or nil.
func (a *Allocator) takeFreeBlock(need int64) *freeBlock {
	for sc := a.sizeTable.getSizeClass(need); sc < len(a.freeLists); sc++ {
		if blk := a.allocFromSizeClass(sc, need); blk != nil {
			return blk
		}
	}
	return nil
}

// allocFromSizeClass pops the smallest block of class sc that fits need.
//
// Fast path: heap[0] is the smallest block in this class; if it fits it is
// the best fit. Otherwise the class range straddles need and the rest of the
// heap is scanned. Only the requested class and the large class can hit the
// slow path, since every block in a higher class is larger than need.
func (a *Allocator) allocFromSizeClass(sc int, need int64) *freeBlock {
	list := &a.freeLists[sc]
	if list.heap.Len() == 0 {
		return nil
	}

	idx := -1
	if list.heap[0].size >= need {
		idx = 0
	} else {
		var bestSize int64 = math.MaxInt64
		for i := 1; i < list.heap.Len(); i++ {
			if s := list.heap[i].size; s >= need && s < bestSize {
				idx, bestSize = i, s
			}
		}
	}
	if idx < 0 {
		return nil
	}

	a.stats.HeapRemoves++
	blk := heap.Remove(&list.heap, idx).(*freeBlock) //nolint:errcheck // heap contains only *freeBlock
	delete(a.byOff, blk.off)
	return blk
}

// insertFreeBlock indexes a free block. The tag must already be written.
func (a *Allocator) insertFreeBlock(off uint64, size int64) {
	sc := a.sizeTable.getSizeClass(size)
	blk := &freeBlock{off: off, size: size, sc: sc}
	a.stats.HeapPushes++
	heap.Push(&a.freeLists[sc].heap, blk)
	a.byOff[off] = blk
}

// removeFreeBlock drops the free block at off from the index.
func (a *Allocator) removeFreeBlock(off uint64) {
	blk := a.byOff[off]
	if blk == nil {
		return
	}
	a.stats.HeapRemoves++
	heap.Remove(&a.freeLists[blk.sc].heap, blk.heapIndex)
	delete(a.byOff, off)
}

// writeHeader stores the allocator's header fields and refreshes the checksum.
func (a *Allocator) writeHeader(data []byte) {
	format.PutU64(data, format.AllocatedOffset, a.allocated)
	format.UpdateChecksum(data)
}

func (a *Allocator) markDirty(off uint64, n int) {
	if a.dt != nil {
		a.dt.Add(int(off), n)
	}
}
