package dirty

// DirtyTracker is the minimal interface for recording modified byte ranges.
// The allocator depends only on this so it never learns how flushing works.
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the offset from the start of the file, length is the number of bytes.
	Add(off, length int)
}

// Target is the region a Tracker flushes.
type Target interface {
	// Bytes returns the current contents of the region.
	Bytes() []byte
	// FD returns the descriptor backing the region, or -1 when there is none.
	FD() int
}
