// Package dirty tracks which byte ranges of a mapped store have changed since
// the last sync and flushes them to stable storage in the order the store's
// commit protocol needs: data pages first, then the header page, then the
// file descriptor.
//
// # Usage
//
//	dt := dirty.NewTracker(region)
//	dt.Add(off, n)                     // after writing [off, off+n)
//	err := dt.FlushDataOnly(ctx)       // msync coalesced data pages
//	err = dt.FlushHeaderAndMeta(ctx, dirty.FlushAuto)
//
// # Page-Level Granularity
//
// Ranges are rounded out to 4KB pages, sorted, and merged at flush time, so
// Add stays a plain slice append. The header page is never part of a data
// flush; it is written last so a crash cannot publish a root that points at
// pages which never reached the disk.
//
// # Thread Safety
//
// A Tracker is not thread-safe. The store only touches it under its writer
// lock or with the writer lock held for sync.
package dirty
