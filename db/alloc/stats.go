package alloc

import (
	"fmt"
	"io"

	"github.com/joshuapare/ngfkit/internal/format"
)

// Stats holds allocator counters and a snapshot of the free space.
type Stats struct {
	AllocCalls       int   // Total Alloc() calls
	AllocFastPath    int   // Allocations served from the free lists
	AllocSlowPath    int   // Allocations that required Grow()
	FreeCalls        int   // Total Free() calls
	GrowCalls        int   // Number of successful grows
	GrowBytes        int64 // Total bytes added by grows
	BytesAllocated   int64 // Total bytes handed out (tags included)
	BytesFreed       int64 // Total bytes returned
	SplitCount       int   // Number of block splits
	CoalesceForward  int   // Forward coalesce operations
	CoalesceBackward int   // Backward coalesce operations
	HeapPushes       int   // heap.Push() calls
	HeapRemoves      int   // heap.Remove() calls

	// Snapshot fields, filled by Stats().
	HeapSize       uint64 // Heap extent in bytes
	AllocatedBytes uint64 // Bytes held by allocated blocks
	FreeBytes      uint64 // Bytes held by free blocks
	FreeBlocks     int    // Number of free blocks
	LargestFree    int64  // Largest free block
	SizeClasses    int    // Number of size classes, large class included
	Layout         string // Name of the size-class layout
}

// Stats returns the counters together with a snapshot of the free lists.
func (a *Allocator) Stats() Stats {
	s := a.stats
	s.HeapSize = heapEnd(a.r.Bytes()) - format.HeaderSize
	s.AllocatedBytes = a.allocated
	s.SizeClasses = len(a.freeLists)
	s.Layout = a.sizeTable.String()
	for i := range a.freeLists {
		for _, blk := range a.freeLists[i].heap {
			s.FreeBlocks++
			s.FreeBytes += uint64(blk.size)
			s.LargestFree = max(s.LargestFree, blk.size)
		}
	}
	return s
}

// Print writes a human-readable summary of s to w.
func (s Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "size classes:  %s (%d)\n", s.Layout, s.SizeClasses)
	fmt.Fprintf(w, "heap size:     %d\n", s.HeapSize)
	fmt.Fprintf(w, "allocated:     %d\n", s.AllocatedBytes)
	fmt.Fprintf(w, "free:          %d in %d blocks (largest %d)\n", s.FreeBytes, s.FreeBlocks, s.LargestFree)
	fmt.Fprintf(w, "allocs:        %d (fast %d, slow %d)\n", s.AllocCalls, s.AllocFastPath, s.AllocSlowPath)
	fmt.Fprintf(w, "frees:         %d\n", s.FreeCalls)
	fmt.Fprintf(w, "splits:        %d\n", s.SplitCount)
	fmt.Fprintf(w, "coalesces:     %d forward, %d backward\n", s.CoalesceForward, s.CoalesceBackward)
	fmt.Fprintf(w, "grows:         %d (%d bytes)\n", s.GrowCalls, s.GrowBytes)
}
