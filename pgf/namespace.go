package pgf

import (
	"github.com/joshuapare/ngfkit/db"
)

// Namespace is a node of a weight-balanced search tree mapping Text keys to
// tagged object references. The null reference is the empty tree.
type Namespace struct {
	Size  uint64 // nodes in this subtree
	Key   db.Ref[Text]
	Value db.Object
	Left  db.Ref[Namespace]
	Right db.Ref[Namespace]
}

// Balance parameters of Adams' weight-balanced trees.
const (
	nsDelta = 3
	nsRatio = 2
)

func nsSize(sc *db.Scope, t db.Ref[Namespace]) uint64 {
	if t.IsNull() {
		return 0
	}
	return db.Load(sc, t).Size
}

// nsLookup returns the value stored under key.
func nsLookup(sc *db.Scope, t db.Ref[Namespace], key string) (db.Object, bool) {
	for !t.IsNull() {
		n := db.Load(sc, t)
		switch c := compareText(sc, key, n.Key); {
		case c < 0:
			t = n.Left
		case c > 0:
			t = n.Right
		default:
			return n.Value, true
		}
	}
	return db.Object{}, false
}

// nsInsert stores val under key in the tree t and returns the new tree.
// If key was present its previous value is returned with replaced set; the
// caller owns freeing it.
func nsInsert(sc *db.Scope, t db.Ref[Namespace], key string, val db.Object) (root db.Ref[Namespace], old db.Object, replaced bool, err error) {
	if t.IsNull() {
		k, err := NewText(sc, key)
		if err != nil {
			return t, old, false, err
		}
		r, err := db.Malloc[Namespace](sc)
		if err != nil {
			_ = db.Free(sc, k)
			return t, old, false, err
		}
		n := db.Deref(sc, r)
		n.Size = 1
		n.Key = k
		n.Value = val
		return r, old, false, nil
	}

	c := compareText(sc, key, db.Deref(sc, t).Key)
	switch {
	case c < 0:
		l, old, replaced, err := nsInsert(sc, db.Deref(sc, t).Left, key, val)
		if err != nil {
			return t, old, false, err
		}
		db.Deref(sc, t).Left = l
		return nsBalance(sc, t), old, replaced, nil
	case c > 0:
		r, old, replaced, err := nsInsert(sc, db.Deref(sc, t).Right, key, val)
		if err != nil {
			return t, old, false, err
		}
		db.Deref(sc, t).Right = r
		return nsBalance(sc, t), old, replaced, nil
	default:
		n := db.Deref(sc, t)
		old = n.Value
		n.Value = val
		return t, old, true, nil
	}
}

// nsBalance restores the weight invariant at t after one of its subtrees
// changed by a single node, and recomputes sizes.
func nsBalance(sc *db.Scope, t db.Ref[Namespace]) db.Ref[Namespace] {
	n := db.Deref(sc, t)
	ls, rs := nsSize(sc, n.Left), nsSize(sc, n.Right)
	switch {
	case ls+rs <= 1:
	case rs > nsDelta*ls:
		r := db.Deref(sc, n.Right)
		if nsSize(sc, r.Left) < nsRatio*nsSize(sc, r.Right) {
			return nsRotateLeft(sc, t)
		}
		n.Right = nsRotateRight(sc, n.Right)
		return nsRotateLeft(sc, t)
	case ls > nsDelta*rs:
		l := db.Deref(sc, n.Left)
		if nsSize(sc, l.Right) < nsRatio*nsSize(sc, l.Left) {
			return nsRotateRight(sc, t)
		}
		n.Left = nsRotateLeft(sc, n.Left)
		return nsRotateRight(sc, t)
	}
	n.Size = ls + rs + 1
	return t
}

func nsRotateLeft(sc *db.Scope, t db.Ref[Namespace]) db.Ref[Namespace] {
	n := db.Deref(sc, t)
	r := n.Right
	rn := db.Deref(sc, r)
	n.Right = rn.Left
	rn.Left = t
	nsFixSize(sc, t)
	nsFixSize(sc, r)
	return r
}

func nsRotateRight(sc *db.Scope, t db.Ref[Namespace]) db.Ref[Namespace] {
	n := db.Deref(sc, t)
	l := n.Left
	ln := db.Deref(sc, l)
	n.Left = ln.Right
	ln.Right = t
	nsFixSize(sc, t)
	nsFixSize(sc, l)
	return l
}

func nsFixSize(sc *db.Scope, t db.Ref[Namespace]) {
	n := db.Deref(sc, t)
	n.Size = nsSize(sc, n.Left) + nsSize(sc, n.Right) + 1
}

// nsIter visits the tree in key order until fn returns false, and reports
// whether the walk ran to completion.
func nsIter(sc *db.Scope, t db.Ref[Namespace], fn func(key db.Ref[Text], val db.Object) bool) bool {
	for !t.IsNull() {
		n := db.Load(sc, t)
		if !nsIter(sc, n.Left, fn) {
			return false
		}
		if !fn(n.Key, n.Value) {
			return false
		}
		t = n.Right
	}
	return true
}

// nsCheck verifies ordering, sizes and balance of the tree and returns its
// size.
func nsCheck(sc *db.Scope, t db.Ref[Namespace], lo, hi *string) (uint64, bool) {
	if t.IsNull() {
		return 0, true
	}
	n := db.Load(sc, t)
	key := TextString(sc, n.Key)
	if (lo != nil && key <= *lo) || (hi != nil && key >= *hi) {
		return 0, false
	}
	ls, ok := nsCheck(sc, n.Left, lo, &key)
	if !ok {
		return 0, false
	}
	rs, ok := nsCheck(sc, n.Right, &key, hi)
	if !ok || n.Size != ls+rs+1 {
		return 0, false
	}
	if ls+rs > 1 && (ls > nsDelta*rs || rs > nsDelta*ls) {
		return 0, false
	}
	return n.Size, true
}
