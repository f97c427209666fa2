package alloc

import "github.com/joshuapare/ngfkit/db/dirty"

// DirtyTracker is a type alias for the canonical interface defined in db/dirty.
type DirtyTracker = dirty.DirtyTracker

// Region is the growable byte range the allocator manages. Bytes must return
// the current contents; a successful Grow may move them.
type Region interface {
	Bytes() []byte
	Grow(n int64) error
}
