package db_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/db/alloc"
)

func TestRoundTripAddressing(t *testing.T) {
	s := openTransient(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		for range 100 {
			r, err := db.Malloc[node](sc)
			require.NoError(t, err)
			require.False(t, r.IsNull())
			require.Zero(t, uint64(r.Offset())%16)
			require.True(t, db.FromPtr(sc, db.Deref(sc, r)).Equal(r))
		}
		return nil
	}))
}

func TestMalloc_NonOverlapping(t *testing.T) {
	s := openTransient(t, smallOptions())
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		var refs []db.Ref[payload]
		for i := range 64 {
			r, err := db.Malloc[payload](sc)
			require.NoError(t, err)
			p := db.Deref(sc, r)
			for j := range p.Words {
				p.Words[j] = int64(i)
			}
			refs = append(refs, r)
		}
		for i, r := range refs {
			for _, w := range db.Deref(sc, r).Words {
				require.Equal(t, int64(i), w)
			}
		}
		return nil
	}))

	rep, err := s.Verify()
	require.NoError(t, err)
	require.Equal(t, 64, rep.AllocatedBlocks)
}

func TestFree_Reuse(t *testing.T) {
	s := openTransient(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		keep, err := db.Malloc[node](sc)
		require.NoError(t, err)
		db.Deref(sc, keep).Value = 99

		gone, err := db.Malloc[node](sc)
		require.NoError(t, err)
		_, err = db.Malloc[node](sc)
		require.NoError(t, err)

		require.NoError(t, db.Free(sc, gone))
		again, err := db.Malloc[node](sc)
		require.NoError(t, err)
		require.True(t, again.Equal(gone))
		require.Equal(t, int64(99), db.Deref(sc, keep).Value)

		// Freeing twice is detected.
		require.NoError(t, db.Free(sc, again))
		err = db.Free(sc, again)
		require.ErrorIs(t, err, alloc.ErrNotAllocated)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		return nil
	}))
}

func TestGrowthTransparency(t *testing.T) {
	s, _ := openTemp(t, smallOptions())
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		first, err := db.Malloc[payload](sc)
		require.NoError(t, err)
		p := db.Deref(sc, first)
		p.Words[0], p.Words[61] = 11, 22
		epoch := sc.Stats().Epoch

		var refs []db.Ref[payload]
		for sc.Stats().Epoch == epoch {
			r, err := db.Malloc[payload](sc)
			require.NoError(t, err)
			db.Deref(sc, r).Words[0] = int64(len(refs))
			refs = append(refs, r)
		}

		// p points into the mapping that was replaced.
		moved := db.Relocate(sc, p)
		require.Same(t, db.Deref(sc, first), moved)
		require.Equal(t, int64(11), moved.Words[0])
		require.Equal(t, int64(22), moved.Words[61])
		for i, r := range refs {
			require.Equal(t, int64(i), db.Deref(sc, r).Words[0])
		}
		return nil
	}))

	rep, err := s.Verify()
	require.NoError(t, err)
	require.Positive(t, rep.AllocatedBlocks)
}

func TestRelocate_CurrentPointerUnchanged(t *testing.T) {
	s := openTransient(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		r, err := db.Malloc[node](sc)
		require.NoError(t, err)
		p := db.Deref(sc, r)
		require.Same(t, p, db.Relocate(sc, p))

		var outside node
		require.Panics(t, func() { db.Relocate(sc, &outside) })
		return nil
	}))
}

func TestDeref_Panics(t *testing.T) {
	s := openTransient(t, nil)

	var kept db.Ref[node]
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		require.Panics(t, func() { db.Deref(sc, db.Ref[node]{}) }, "null")

		r, err := db.Malloc[node](sc)
		require.NoError(t, err)
		kept = r

		freed, err := db.Malloc[node](sc)
		require.NoError(t, err)
		_, err = db.Malloc[node](sc)
		require.NoError(t, err)
		require.NoError(t, db.Free(sc, freed))
		require.Panics(t, func() { db.Deref(sc, freed) }, "freed block")

		// A node ref is too small to be read as a payload.
		require.Panics(t, func() { db.Deref(sc, db.Untagged[payload](db.Tagged(r, 0))) })
		return nil
	}))

	sc, err := s.Begin(db.ReadMode)
	require.NoError(t, err)
	require.NoError(t, sc.End())
	require.Panics(t, func() { db.Deref(sc, kept) }, "ended scope")
}

func TestWriterScope_LoadIsNotAChange(t *testing.T) {
	s, _ := openTemp(t, smallOptions())
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 42)
		return err
	}))
	require.NoError(t, s.Sync(context.Background()))
	gen := headerOf(t, s).Generation

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		r := db.GetRoot[node](sc)
		require.Equal(t, int64(42), db.Load(sc, r).Value)
		require.Len(t, db.View(sc, r, 8), 8)
		return nil
	}))
	h := headerOf(t, s)
	require.Equal(t, h.PrimarySeq, h.SecondarySeq)
	require.Equal(t, gen, h.Generation)

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		db.Deref(sc, db.GetRoot[node](sc)).Value = 43
		return nil
	}))
	h = headerOf(t, s)
	require.NotEqual(t, h.PrimarySeq, h.SecondarySeq)
	require.Equal(t, gen+1, h.Generation)
}

func headerOf(t *testing.T, s *db.Store) db.HeaderInfo {
	t.Helper()
	h, err := s.Header()
	require.NoError(t, err)
	return h
}

func TestReaderScope_MutationPanics(t *testing.T) {
	s := openTransient(t, nil)
	require.NoError(t, s.Read(func(sc *db.Scope) error {
		require.Panics(t, func() { _, _ = db.Malloc[node](sc) })
		require.Panics(t, func() { _ = db.SetRoot(sc, db.Ref[node]{}) })
		return nil
	}))
}

func TestSetRoot_RejectsNull(t *testing.T) {
	s := openTransient(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		require.ErrorIs(t, db.SetRoot(sc, db.Ref[node]{}), db.ErrNullRoot)
		return nil
	}))
}

func TestNestedScopes(t *testing.T) {
	s := openTransient(t, nil)
	other := openTransient(t, nil)

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 1)
		require.NoError(t, err)

		// Same store, same mode: no new lock.
		require.NoError(t, sc.Write(s, func(inner *db.Scope) error {
			_, err := pushNode(inner, 2)
			return err
		}))

		// Same store, weaker mode.
		require.NoError(t, sc.Read(s, func(inner *db.Scope) error {
			require.Equal(t, []int64{2, 1}, listValues(inner))
			require.Equal(t, sc, inner.Parent())
			require.Equal(t, db.ReadMode, inner.Mode())
			return nil
		}))

		// A different store nests freely.
		return sc.Write(other, func(inner *db.Scope) error {
			_, err := pushNode(inner, 10)
			return err
		})
	}))

	require.NoError(t, other.Read(func(sc *db.Scope) error {
		require.Equal(t, []int64{10}, listValues(sc))
		return nil
	}))
}

func TestNestedScopes_UpgradeRejected(t *testing.T) {
	s := openTransient(t, nil)

	require.NoError(t, s.Read(func(sc *db.Scope) error {
		err := sc.Write(s, func(*db.Scope) error { return nil })
		require.ErrorIs(t, err, db.ErrLockUpgrade)

		// Deeper nesting still sees the reader ancestor.
		return sc.Read(s, func(inner *db.Scope) error {
			_, err := inner.Begin(s, db.WriteMode)
			require.ErrorIs(t, err, db.ErrLockUpgrade)
			return nil
		})
	}))

	// The lock was released: a writer can enter.
	require.NoError(t, s.Write(func(*db.Scope) error { return nil }))
}

func TestScope_ReleasesOnErrorAndPanic(t *testing.T) {
	s := openTransient(t, nil)
	boom := errors.New("boom")

	require.ErrorIs(t, s.Write(func(*db.Scope) error { return boom }), boom)

	require.Panics(t, func() {
		_ = s.Write(func(*db.Scope) error { panic("in scope") })
	})

	st, err := s.Stats()
	require.NoError(t, err)
	require.Zero(t, st.ActiveWriters)
	require.Zero(t, st.ActiveReaders)
	require.NoError(t, s.Write(func(*db.Scope) error { return nil }))
}

func TestBeginEnd(t *testing.T) {
	s := openTransient(t, nil)

	sc, err := s.Begin(db.WriteMode)
	require.NoError(t, err)
	require.Equal(t, s, sc.Store())
	_, err = pushNode(sc, 5)
	require.NoError(t, err)
	require.NoError(t, sc.End())
	require.NoError(t, sc.End())

	require.Panics(t, func() { sc.Root() })

	rd, err := s.Begin(db.ReadMode)
	require.NoError(t, err)
	defer rd.End()
	require.Equal(t, []int64{5}, listValues(rd))
}

func TestReaderWriterExclusion(t *testing.T) {
	s := openTransient(t, nil)

	var readers, writers, violations atomic.Int32
	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			for j := range 50 {
				if (i+j)%4 == 0 {
					err := s.Write(func(sc *db.Scope) error {
						if writers.Add(1) != 1 || readers.Load() != 0 {
							violations.Add(1)
						}
						_, err := pushNode(sc, int64(j))
						runtime.Gosched()
						writers.Add(-1)
						return err
					})
					if err != nil {
						return err
					}
					continue
				}
				err := s.Read(func(sc *db.Scope) error {
					readers.Add(1)
					if writers.Load() != 0 {
						violations.Add(1)
					}
					_ = listValues(sc)
					runtime.Gosched()
					readers.Add(-1)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Zero(t, violations.Load())

	st, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(100), st.WriteScopes)
	require.Equal(t, int64(300), st.ReadScopes)
}

// Readers walk the list while writers extend it and the file grows under them.
func TestConcurrentGrowth(t *testing.T) {
	s, _ := openTemp(t, smallOptions())

	const writers, perWriter = 4, 100
	var g errgroup.Group
	for range writers {
		g.Go(func() error {
			for range perWriter {
				err := s.Write(func(sc *db.Scope) error {
					next := int64(1)
					if r := db.GetRoot[node](sc); !r.IsNull() {
						next = db.Deref(sc, r).Value + 1
					}
					_, err := pushNode(sc, next)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	for range 4 {
		g.Go(func() error {
			for range 100 {
				err := s.Read(func(sc *db.Scope) error {
					values := listValues(sc)
					for i, v := range values {
						if v != int64(len(values)-i) {
							return errors.New("list out of order")
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, s.Read(func(sc *db.Scope) error {
		require.Len(t, listValues(sc), writers*perWriter)
		return nil
	}))
	st, err := s.Stats()
	require.NoError(t, err)
	require.Positive(t, st.Alloc.GrowCalls)
}
