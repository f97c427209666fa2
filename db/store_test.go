package db_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/db/alloc"
	"github.com/joshuapare/ngfkit/internal/format"
)

func TestOpen_CreatesEmptyStore(t *testing.T) {
	s, path := openTemp(t, nil)

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(format.HeaderSize+64*1024), st.Size())

	h, err := s.Header()
	require.NoError(t, err)
	assert.Equal(t, uint16(format.MajorVersion), h.Major)
	assert.Equal(t, uint16(format.MinorVersion), h.Minor)
	assert.Equal(t, db.Offset(0), h.Root)
	assert.Equal(t, uint64(64*1024), h.DataSize)
	assert.Equal(t, uint32(16), h.Alignment)
	assert.Equal(t, h.PrimarySeq, h.SecondarySeq)

	require.True(t, s.Clean())
	require.False(t, s.Transient())
	require.Equal(t, path, s.Path())

	require.NoError(t, s.Read(func(sc *db.Scope) error {
		require.True(t, db.GetRoot[node](sc).IsNull())
		return nil
	}))
}

func TestOpen_CreateExclusiveFailsOnExisting(t *testing.T) {
	_, path := openTemp(t, nil)

	_, err := db.Open(path, db.CreateExclusive, nil)
	require.Error(t, err)
	require.Equal(t, db.KindSystem, db.KindOf(err))
	require.ErrorIs(t, err, os.ErrExist)

	var e *db.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, syscall.EEXIST, e.Code)
	require.Equal(t, "open", e.Op)

	// The existing file is left alone.
	s, err := db.Open(path, db.OpenExisting, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_OpenExistingMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.ngf")

	_, err := db.Open(path, db.OpenExisting, nil)
	require.Equal(t, db.KindSystem, db.KindOf(err))
	require.ErrorIs(t, err, os.ErrNotExist)

	var e *db.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, syscall.ENOENT, e.Code)
}

func TestOpen_OpenOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.ngf")

	s, err := db.Open(path, db.OpenOrCreate, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 7)
		return err
	}))
	require.NoError(t, s.Sync(context.Background()))
	require.NoError(t, s.Close())

	s, err = db.Open(path, db.OpenOrCreate, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Read(func(sc *db.Scope) error {
		require.Equal(t, []int64{7}, listValues(sc))
		return nil
	}))
}

func TestOpen_FailedCreateLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	huge := &db.Options{InitialSize: 1 << 62}

	for _, mode := range []db.OpenMode{db.CreateExclusive, db.OpenOrCreate} {
		path := filepath.Join(dir, "huge.ngf")
		_, err := db.Open(path, mode, huge)
		require.Error(t, err)
		require.Equal(t, db.KindSystem, db.KindOf(err))
		_, err = os.Stat(path)
		require.ErrorIs(t, err, os.ErrNotExist, "mode %v", mode)
	}

	// An empty file that was already there is put back as it was.
	path := filepath.Join(dir, "empty.ngf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := db.Open(path, db.OpenOrCreate, huge)
	require.Error(t, err)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, st.Size())

	s, err := db.Open(path, db.OpenOrCreate, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_FormatErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(dir, "junk.ngf")
		require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))
		_, err := db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		require.ErrorIs(t, err, db.ErrBadMagic)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.ngf")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
	})

	t.Run("short file", func(t *testing.T) {
		path := filepath.Join(dir, "short.ngf")
		require.NoError(t, os.WriteFile(path, []byte("NGF\x01"), 0o644))
		_, err := db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		require.ErrorIs(t, err, format.ErrTruncated)
	})

	t.Run("checksum", func(t *testing.T) {
		path := filepath.Join(dir, "checksum.ngf")
		s, err := db.Open(path, db.CreateExclusive, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		corruptFile(t, path, 0x100, []byte{0xFF})
		_, err = db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		require.ErrorIs(t, err, db.ErrChecksum)
	})

	t.Run("heap size wraps", func(t *testing.T) {
		path := filepath.Join(dir, "wrap.ngf")
		s, err := db.Open(path, db.CreateExclusive, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		hdr := make([]byte, format.HeaderSize)
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		require.NoError(t, err)
		_, err = f.ReadAt(hdr, 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		format.PutU64(hdr, format.DataSizeOffset, ^uint64(0)-format.HeaderSize+1+32)
		format.UpdateChecksum(hdr)
		corruptFile(t, path, 0, hdr)

		_, err = db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		require.ErrorIs(t, err, format.ErrTruncated)
	})

	t.Run("corrupt heap", func(t *testing.T) {
		path := filepath.Join(dir, "heap.ngf")
		s, err := db.Open(path, db.CreateExclusive, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		corruptFile(t, path, format.HeaderSize, []byte{0x11, 0, 0, 0, 0, 0, 0, 0})
		_, err = db.Open(path, db.OpenExisting, nil)
		require.Equal(t, db.KindFormat, db.KindOf(err))
		require.ErrorIs(t, err, alloc.ErrCorrupt)
	})
}

func corruptFile(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestRootDurability(t *testing.T) {
	s, path := openTemp(t, smallOptions())

	var root db.Ref[node]
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		for i := range int64(100) {
			r, err := pushNode(sc, i+1)
			if err != nil {
				return err
			}
			root = r
		}
		return nil
	}))
	require.NoError(t, s.Sync(context.Background()))
	require.NoError(t, s.Close())

	s2, err := db.Open(path, db.OpenExisting, smallOptions())
	require.NoError(t, err)
	defer s2.Close()
	require.True(t, s2.Clean())

	require.NoError(t, s2.Read(func(sc *db.Scope) error {
		require.True(t, db.GetRoot[node](sc).Equal(root))
		values := listValues(sc)
		require.Len(t, values, 100)
		for i, v := range values {
			require.Equal(t, int64(100-i), v)
		}
		return nil
	}))

	rep, err := s2.Verify()
	require.NoError(t, err)
	require.Equal(t, 100, rep.AllocatedBlocks)
}

// Scenario: A (tag 3) and B (tag 1) referencing A, root B, sync, reopen.
func TestScenario_TaggedObjectsSurviveReopen(t *testing.T) {
	s, path := openTemp(t, nil)

	type objA struct {
		Words [4]int64
	}
	type objB struct {
		A    db.Object
		Self db.Object
	}

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		a, err := db.Malloc[objA](sc)
		if err != nil {
			return err
		}
		db.Deref(sc, a).Words = [4]int64{1, 2, 3, 4}

		b, err := db.Malloc[objB](sc)
		if err != nil {
			return err
		}
		pb := db.Deref(sc, b)
		pb.A = db.Tagged(a, 3)
		pb.Self = db.Tagged(b, 1)

		if err := db.SetRoot(sc, b); err != nil {
			return err
		}
		return sc.Sync(context.Background())
	}))
	require.NoError(t, s.Close())

	s2, err := db.Open(path, db.OpenExisting, nil)
	require.NoError(t, err)
	defer s2.Close()
	require.True(t, s2.Clean(), "sync inside the writer scope must leave the store clean")

	require.NoError(t, s2.Read(func(sc *db.Scope) error {
		b := db.GetRoot[objB](sc)
		require.False(t, b.IsNull())
		pb := db.Deref(sc, b)
		require.Equal(t, uint8(1), db.GetTag(pb.Self))
		require.True(t, db.Untagged[objB](pb.Self).Equal(b))

		require.Equal(t, uint8(3), db.GetTag(pb.A))
		a := db.Untagged[objA](pb.A)
		require.Equal(t, [4]int64{1, 2, 3, 4}, db.Deref(sc, a).Words)
		return nil
	}))
}

func TestClean_FalseAfterUnsyncedWrite(t *testing.T) {
	s, path := openTemp(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 1)
		return err
	}))
	require.NoError(t, s.Close())

	s2, err := db.Open(path, db.OpenExisting, nil)
	require.NoError(t, err)
	require.False(t, s2.Clean())

	h, err := s2.Header()
	require.NoError(t, err)
	require.NotEqual(t, h.PrimarySeq, h.SecondarySeq)

	// A sync completes the pending transaction.
	require.NoError(t, s2.Sync(context.Background()))
	h, err = s2.Header()
	require.NoError(t, err)
	require.Equal(t, h.PrimarySeq, h.SecondarySeq)
	require.NoError(t, s2.Close())

	s3, err := db.Open(path, db.OpenExisting, nil)
	require.NoError(t, err)
	defer s3.Close()
	require.True(t, s3.Clean())
}

func TestSync_OnlyWhenPending(t *testing.T) {
	s, _ := openTemp(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Sync(ctx))
	st, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(0), st.Syncs)

	// A writer scope that only reads does not open a transaction.
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_ = sc.Root()
		return nil
	}))
	require.NoError(t, s.Sync(ctx))
	st, err = s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(0), st.Syncs)

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 1)
		return err
	}))
	require.NoError(t, s.Sync(ctx))
	st, err = s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Syncs)
}

func TestSync_Cancelled(t *testing.T) {
	s, _ := openTemp(t, nil)
	require.NoError(t, s.Write(func(sc *db.Scope) error {
		_, err := pushNode(sc, 1)
		return err
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Sync(ctx), context.Canceled)

	// The transaction is still pending and a later sync completes it.
	require.NoError(t, s.Sync(context.Background()))
	h, err := s.Header()
	require.NoError(t, err)
	require.Equal(t, h.PrimarySeq, h.SecondarySeq)
}

func TestClose_Idempotent(t *testing.T) {
	s, _ := openTemp(t, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Read(func(*db.Scope) error { return nil }), db.ErrClosed)
	require.ErrorIs(t, s.Sync(context.Background()), db.ErrClosed)
	_, err := s.Stats()
	require.ErrorIs(t, err, db.ErrClosed)
	_, err = s.Header()
	require.ErrorIs(t, err, db.ErrClosed)
}

func TestTransientStore(t *testing.T) {
	s := openTransient(t, smallOptions())
	require.True(t, s.Transient())
	require.Empty(t, s.Path())

	require.NoError(t, s.Write(func(sc *db.Scope) error {
		for i := range int64(200) {
			if _, err := pushNode(sc, i); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, s.Sync(context.Background()))
	require.NoError(t, s.Read(func(sc *db.Scope) error {
		require.Len(t, listValues(sc), 200)
		return nil
	}))

	st, err := s.Stats()
	require.NoError(t, err)
	require.Positive(t, st.Alloc.GrowCalls)
	require.Equal(t, st.Alloc.GrowCalls, int(st.Epoch))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, db.KindNone, db.KindOf(nil))
	require.Equal(t, db.KindFormat, db.KindOf(errors.New("plain")))
	require.Equal(t, db.KindFormat, db.KindOf(db.FormatError("parse", "bad tag")))
	require.Equal(t, "system", db.KindSystem.String())
	require.Equal(t, "ngf: parse: bad tag", db.FormatError("parse", "bad tag").Error())
}
