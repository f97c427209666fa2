package db_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/db"
)

// node is a heap object forming a singly linked list.
type node struct {
	Value int64
	Next  db.Ref[node]
}

// payload is a larger object used to force growth.
type payload struct {
	Words [62]int64
	Tag   db.Object
}

func smallOptions() *db.Options {
	o := db.DefaultOptions()
	o.InitialSize = 4096
	o.GrowChunk = 4096
	return o
}

func openTemp(t *testing.T, opts *db.Options) (*db.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ngf")
	s, err := db.Open(path, db.CreateExclusive, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func openTransient(t *testing.T, opts *db.Options) *db.Store {
	t.Helper()
	s, err := db.Open("", db.OpenOrCreate, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// pushNode prepends a node holding value to the list at the root.
func pushNode(sc *db.Scope, value int64) (db.Ref[node], error) {
	r, err := db.Malloc[node](sc)
	if err != nil {
		return r, err
	}
	n := db.Deref(sc, r)
	n.Value = value
	n.Next = db.GetRoot[node](sc)
	return r, db.SetRoot(sc, r)
}

// listValues walks the list from the root.
func listValues(sc *db.Scope) []int64 {
	var out []int64
	for r := db.GetRoot[node](sc); !r.IsNull(); r = db.Deref(sc, r).Next {
		out = append(out, db.Deref(sc, r).Value)
	}
	return out
}
