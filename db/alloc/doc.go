// Package alloc provides block allocation and free-list management for the
// heap of a grammar store.
//
// # Overview
//
// The heap is the part of the mapped file after the header page. It is tiled
// by blocks, each starting with a 16-byte boundary tag:
//
//	0x00  size      int64   total block size, negative while allocated
//	0x08  prevSize  uint64  size of the physically preceding block
//
// Free blocks are not linked on disk. The allocator rebuilds its segregated
// free lists by walking the tags when a store is opened.
//
// # Allocation
//
//   - Alloc(size): best fit from min-heaps keyed on block size, one heap per
//     size class plus a final class for large blocks. Blocks are split when
//     the remainder can hold a minimum block.
//   - Free(off): marks the block free and coalesces it with free neighbours
//     on both sides using the boundary tags.
//   - Grow(need): extends the Region and turns the new space into a free block,
//     merged with a trailing free block when there is one.
//
// Offsets returned by Alloc point at the payload, 16 bytes after the tag, and
// are relative to the start of the region. They are never zero.
//
// # Usage Example
//
//	dt := dirty.NewTracker(region)
//	a, err := alloc.New(region, dt, alloc.Config{})
//	if err != nil {
//	    return err
//	}
//	off, err := a.Alloc(48)
//	if err != nil {
//	    return err
//	}
//	payload := region.Bytes()[off : off+48]
//
// # Thread Safety
//
// An Allocator is not safe for concurrent use. The store only calls it from
// writer scopes, which are exclusive.
package alloc
