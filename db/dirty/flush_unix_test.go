//go:build unix

package dirty_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/db/dirty"
	"github.com/joshuapare/ngfkit/internal/mmfile"
)

func mapTestFile(t *testing.T, size int) *mmfile.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.ngf")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	m, err := mmfile.MapFile(f)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestTracker_FlushDataOnly_PreCancelled(t *testing.T) {
	tracker := dirty.NewTracker(mapTestFile(t, 16384))
	tracker.Add(4096, 100)
	tracker.Add(8192, 200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.FlushDataOnly(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, tracker.Dirty(), "ranges must survive a cancelled flush")
}

func TestTracker_FlushHeaderAndMeta_PreCancelled(t *testing.T) {
	tracker := dirty.NewTracker(mapTestFile(t, 8192))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tracker.FlushHeaderAndMeta(ctx, dirty.FlushAuto), context.Canceled)
}

func TestTracker_FlushDataOnly_Success(t *testing.T) {
	m := mapTestFile(t, 16384)
	tracker := dirty.NewTracker(m)

	copy(m.Bytes()[5000:], "payload")
	tracker.Add(5000, 7)

	require.NoError(t, tracker.FlushDataOnly(context.Background()))
	require.False(t, tracker.Dirty())
}

func TestTracker_FlushAll(t *testing.T) {
	m := mapTestFile(t, 16384)
	tracker := dirty.NewTracker(m)

	tracker.AddAll()
	require.NoError(t, tracker.FlushDataOnly(context.Background()))
	require.False(t, tracker.Dirty())
}

func TestTracker_FlushModes(t *testing.T) {
	for _, mode := range []dirty.FlushMode{dirty.FlushAuto, dirty.FlushDataOnly, dirty.FlushFull} {
		t.Run(mode.String(), func(t *testing.T) {
			tracker := dirty.NewTracker(mapTestFile(t, 8192))
			require.NoError(t, tracker.FlushHeaderAndMeta(context.Background(), mode))
		})
	}
}

func TestTracker_FlushDataOnly_Empty(t *testing.T) {
	tracker := dirty.NewTracker(mapTestFile(t, 8192))
	require.NoError(t, tracker.FlushDataOnly(context.Background()))
}
