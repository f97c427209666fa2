// Package db implements a persistent object store for compiled grammars.
//
// A store is a single file mapped into memory. Objects are allocated inside
// the mapping and refer to each other by offset, so the file is usable as-is
// after a reopen at a different address, after the file grows, and from many
// goroutines at once.
//
// # File Layout
//
//	0x0000  header page (4 KiB): magic, versions, sequence numbers,
//	        heap size, root offset, allocation counters, checksum
//	0x1000  heap: blocks with 16-byte boundary tags (see package alloc)
//
// # Scopes
//
// All access happens inside a scope. A scope holds the store's lock in
// reader or writer mode and binds the mapping that references resolve
// against:
//
//	err := s.Write(func(sc *db.Scope) error {
//	    a, err := db.Malloc[Node](sc)
//	    if err != nil {
//	        return err
//	    }
//	    db.Deref(sc, a).Value = 42
//	    return db.SetRoot(sc, a)
//	})
//
// Scopes nest by passing the enclosing scope explicitly (sc.Read, sc.Write,
// sc.Begin). Re-entering a store already held by an ancestor takes no new
// lock; asking for a writer scope under a reader scope on the same store
// returns ErrLockUpgrade instead of deadlocking.
//
// # Growth
//
// Malloc grows the file when the heap is full. Growing may move the mapping,
// so pointers obtained with Deref before a Malloc must be re-derived with
// Deref or translated with Relocate. References stay valid.
//
// In a writer scope Deref and Bytes count as a change, since the caller may
// write through the result. Load and View only read.
//
// # Durability
//
// SetRoot publishes a graph; Sync makes it durable. Sync flushes data pages
// before the header, so a crash never leaves a durable root pointing at
// unflushed objects. A store that was written but not synced opens with
// Clean() == false.
package db
