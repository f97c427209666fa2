//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openRW(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	return f
}

func TestMapFileUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	want := []byte{0xde, 0xad, 0xbe, 0xef, 0x42}
	require.NoError(t, os.WriteFile(path, want, 0o644))

	m, err := MapFile(openRW(t, path))
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, want, m.Bytes())
	require.EqualValues(t, len(want), m.Size())
	require.GreaterOrEqual(t, m.FD(), 0)
}

func TestMapFileUnixZeroLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := MapFile(openRW(t, path))
	require.NoError(t, err)
	defer m.Close()

	require.Empty(t, m.Bytes())
	require.NoError(t, m.Grow(4096))
	require.Len(t, m.Bytes(), 4096)
}

func TestGrowPreservesContentsAndReachesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	m, err := MapFile(openRW(t, path))
	require.NoError(t, err)

	copy(m.Bytes()[100:], "hello")
	require.NoError(t, m.Grow(8192))
	require.Len(t, m.Bytes(), 4096+8192)
	require.Equal(t, "hello", string(m.Bytes()[100:105]))
	copy(m.Bytes()[9000:], "tail")
	require.NoError(t, m.Close())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, onDisk, 4096+8192)
	require.Equal(t, "hello", string(onDisk[100:105]))
	require.Equal(t, "tail", string(onDisk[9000:9004]))
}

func TestCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 16), 0o644))

	m, err := MapFile(openRW(t, path))
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.Equal(t, -1, m.FD())
	require.ErrorIs(t, m.Grow(16), ErrClosed)
}

func TestMemGrow(t *testing.T) {
	m, err := NewMem(32)
	require.NoError(t, err)
	m.Bytes()[0] = 7
	require.NoError(t, m.Grow(32))
	require.Len(t, m.Bytes(), 64)
	require.Equal(t, byte(7), m.Bytes()[0])
	require.Equal(t, -1, m.FD())
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Grow(1), ErrClosed)
}
