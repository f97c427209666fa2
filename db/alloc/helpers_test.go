package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/internal/format"
	"github.com/joshuapare/ngfkit/internal/mmfile"
)

// newTestRegion returns an in-memory region with a fresh header and an empty
// heap of heapSize bytes.
func newTestRegion(t testing.TB, heapSize uint64) *mmfile.Mem {
	t.Helper()
	r, err := mmfile.NewMem(int64(format.HeaderSize + heapSize))
	require.NoError(t, err)
	format.InitHeader(r.Bytes(), heapSize)
	Format(r.Bytes())
	return r
}

// newTestAllocator returns an allocator over a fresh heap of heapSize bytes.
func newTestAllocator(t testing.TB, heapSize uint64, cfg Config) (*Allocator, *mmfile.Mem) {
	t.Helper()
	r := newTestRegion(t, heapSize)
	a, err := New(r, nil, cfg)
	require.NoError(t, err)
	return a, r
}

// requireVerified fails the test if the heap does not verify.
func requireVerified(t testing.TB, a *Allocator) *Report {
	t.Helper()
	rep, err := a.Verify()
	require.NoError(t, err, "problems: %v", problemsOf(rep))
	return rep
}

func problemsOf(rep *Report) []string {
	if rep == nil {
		return nil
	}
	return rep.Problems
}
