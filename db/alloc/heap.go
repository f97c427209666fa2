package alloc

// freeList is a size-class-specific free list using a min-heap.
type freeList struct {
	heap freeBlockHeap // Min-heap keyed on size
}

// freeBlock represents a free block in the allocator.
type freeBlock struct {
	off       uint64 // Offset of the boundary tag
	size      int64  // Size including tag
	sc        int    // Size class (which heap this belongs to)
	heapIndex int    // Position in heap (for heap.Remove)
}

// freeBlockHeap implements heap.Interface for a min-heap keyed on block size.
// Smallest blocks are at the top, which gives best fit for the class.
type freeBlockHeap []*freeBlock

func (h *freeBlockHeap) Len() int { return len(*h) }

func (h *freeBlockHeap) Less(i, j int) bool {
	if (*h)[i].size == (*h)[j].size {
		// Lower addresses first keeps allocation order deterministic.
		return (*h)[i].off < (*h)[j].off
	}
	return (*h)[i].size < (*h)[j].size
}

func (h *freeBlockHeap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
	(*h)[i].heapIndex = i
	(*h)[j].heapIndex = j
}

func (h *freeBlockHeap) Push(x any) {
	blk := x.(*freeBlock) //nolint:errcheck // heap.Interface contract guarantees type
	blk.heapIndex = len(*h)
	*h = append(*h, blk)
}

func (h *freeBlockHeap) Pop() any {
	old := *h
	n := len(old)
	blk := old[n-1]
	old[n-1] = nil
	blk.heapIndex = -1
	*h = old[0 : n-1]
	return blk
}
