package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/ngfkit/db/alloc"
	"github.com/joshuapare/ngfkit/db/dirty"
	"github.com/joshuapare/ngfkit/internal/format"
	"github.com/joshuapare/ngfkit/internal/mmfile"
)

// mapping is the backing region of a store: a mapped file or, for transient
// stores, plain memory.
type mapping interface {
	Bytes() []byte
	Grow(n int64) error
	FD() int
	Close() error
}

// Store is an open grammar store. Objects live directly in its mapping and
// are reached through scopes; see Store.Read and Store.Write.
//
// A Store is safe for concurrent use by multiple goroutines.
type Store struct {
	path string
	opts Options
	log  *slog.Logger

	region mapping
	alloc  *alloc.Allocator
	dt     *dirty.Tracker // nil for transient stores
	tx     *seqTx
	lock   *rwLock
	syncMu sync.Mutex

	// Guarded by lock: written only while it is held exclusively.
	epoch    uint64 // bumped whenever the mapping moves
	allocGen uint64 // header generation the allocator's free lists reflect
	touched  bool   // the heap may have changed since the last sync or writer scope start

	clean  bool
	closed atomic.Bool

	readScopes    atomic.Int64
	writeScopes   atomic.Int64
	activeReaders atomic.Int64
	activeWriters atomic.Int64
	syncs         atomic.Int64
}

// Open opens the store at path according to mode. An empty path creates a
// transient store held in memory, which lives until Close.
//
// A new file is initialised with an empty heap of opts.InitialSize bytes and
// a null root. OS failures are returned as *Error with KindSystem, and
// malformed files as *Error with KindFormat. On failure nothing stays open.
func Open(path string, mode OpenMode, opts *Options) (*Store, error) {
	o := opts.withDefaults()
	heapSize := format.AlignPage(uint64(o.InitialSize))

	if path == "" {
		m, err := mmfile.NewMem(int64(format.HeaderSize + heapSize))
		if err != nil {
			return nil, systemError("open", path, err)
		}
		format.InitHeader(m.Bytes(), heapSize)
		alloc.Format(m.Bytes())
		return newStore(path, m, o)
	}

	created := mode == CreateExclusive
	if mode == OpenOrCreate {
		_, statErr := os.Stat(path)
		created = errors.Is(statErr, fs.ErrNotExist)
	}

	f, err := os.OpenFile(path, mode.flags(), o.Perm)
	if err != nil {
		return nil, systemError("open", path, err)
	}

	m, fresh, err := mapStoreFile(f, path, mode, heapSize, o.ProcessLock)
	if err != nil {
		_ = f.Close()
		if fresh || mode == CreateExclusive {
			discardFresh(path, created)
		}
		return nil, err
	}

	s, err := newStore(path, m, o)
	if err != nil {
		if fresh {
			discardFresh(path, created)
		}
		return nil, err
	}
	return s, nil
}

// discardFresh undoes a failed initialisation: a file this open created is
// removed, and a file that existed empty is truncated back to empty.
func discardFresh(path string, created bool) {
	if created {
		_ = os.Remove(path)
		return
	}
	_ = os.Truncate(path, 0)
}

// mapStoreFile maps f, initialising it first when it is empty. With a
// process lock the check-and-initialise step runs under an exclusive flock
// so two processes cannot both initialise the same file.
func mapStoreFile(f *os.File, path string, mode OpenMode, heapSize uint64, processLock bool) (*mmfile.File, bool, error) {
	if processLock {
		fd := int(f.Fd())
		if err := flock(fd, lockExclusive); err != nil {
			return nil, false, systemError("lock", path, err)
		}
		defer func() { _ = flock(fd, lockRelease) }()
	}

	st, err := f.Stat()
	if err != nil {
		return nil, false, systemError("stat", path, err)
	}

	fresh := st.Size() == 0
	if fresh {
		if mode == OpenExisting {
			return nil, false, formatError("open", path, "empty file is not a store", nil)
		}
		if err := f.Truncate(int64(format.HeaderSize + heapSize)); err != nil {
			return nil, true, systemError("truncate", path, err)
		}
	} else if st.Size() < format.HeaderSize {
		return nil, false, formatError("open", path, "file too small for a header", format.ErrTruncated)
	}

	m, err := mmfile.MapFile(f)
	if err != nil {
		return nil, fresh, systemError("map", path, err)
	}

	if fresh {
		format.InitHeader(m.Bytes(), heapSize)
		alloc.Format(m.Bytes())
		return m, true, nil
	}

	if err := format.ValidateHeader(m.Bytes(), m.Size()); err != nil {
		_ = m.Close() // also closes f
		return nil, false, formatError("open", path, "invalid header", err)
	}
	return m, false, nil
}

// newStore wires the allocator, dirty tracker and sequence protocol around
// an initialised mapping. It closes m on failure.
func newStore(path string, m mapping, o Options) (*Store, error) {
	s := &Store{
		path:   path,
		opts:   o,
		log:    o.Logger.With("store", storeName(path)),
		region: m,
	}

	lockFD := -1
	if o.ProcessLock && m.FD() >= 0 {
		lockFD = m.FD()
	}
	s.lock = newRWLock(lockFD)

	var dt alloc.DirtyTracker
	if m.FD() >= 0 {
		s.dt = dirty.NewTracker(m)
		dt = s.dt
	}

	a, err := alloc.New(m, dt, alloc.Config{
		SizeClasses: o.SizeClasses,
		GrowChunk:   o.GrowChunk,
		OnGrow:      s.onGrow,
	})
	if err != nil {
		_ = m.Close()
		return nil, formatError("open", path, "corrupt heap", err)
	}
	s.alloc = a

	s.tx = newSeqTx(m, s.dt, o.FlushMode)
	s.clean = !s.tx.inTx

	data := m.Bytes()
	s.allocGen = format.ReadU64(data, format.GenerationOffset)

	if !s.clean {
		s.log.Warn("store was modified without a completed sync",
			"primary_seq", format.ReadU32(data, format.PrimarySeqOffset),
			"secondary_seq", format.ReadU32(data, format.SecondarySeqOffset))
	}
	s.log.Debug("opened store",
		"size", len(data),
		"root", format.ReadU64(data, format.RootOffset),
		"allocated", a.Allocated())
	return s, nil
}

func storeName(path string) string {
	if path == "" {
		return "(transient)"
	}
	return path
}

// onGrow is called by the allocator, inside a writer scope, after the
// mapping was extended.
func (s *Store) onGrow(oldSize, newSize int64) {
	s.epoch++
	s.log.Debug("grew store", "old_size", oldSize, "new_size", newSize, "epoch", s.epoch)
}

// Logger returns the store's logger, for collaborators that log about it.
func (s *Store) Logger() *slog.Logger { return s.log }

// Path returns the file path, or "" for a transient store.
func (s *Store) Path() string { return s.path }

// Transient reports whether the store lives only in memory.
func (s *Store) Transient() bool { return s.region.FD() < 0 }

// Clean reports whether the store had completed its last sync when it was
// opened. A store that was written and then not synced before the process
// ended opens with Clean() == false.
func (s *Store) Clean() bool { return s.clean }

// Sync makes all changes durable: dirty data pages are flushed first, then
// the header carrying the root and the completed sequence number, then the
// file is synced according to Options.FlushMode. It waits for active writer
// scopes. Inside a scope on this store use Scope.Sync instead.
//
// Sync is a no-op for transient stores and when nothing changed.
func (s *Store) Sync(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.lock.RLock(); err != nil {
		return systemError("lock", s.path, err)
	}
	defer func() { _ = s.lock.RUnlock() }()
	return s.sync(ctx)
}

// sync runs the commit protocol. The caller must hold the lock in any mode.
func (s *Store) sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	if s.touched && s.dt != nil && !s.opts.TrackAllocationsOnly {
		s.dt.AddAll()
	}
	pending := s.tx.inTx
	if err := s.tx.commit(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return systemError("sync", s.path, err)
	}
	s.touched = false
	if pending {
		s.syncs.Add(1)
		s.log.Debug("synced store", "seq", s.tx.seq, "elapsed", time.Since(start))
	}
	return nil
}

// Close unmaps the store and closes its file. It waits for active scopes and
// does not sync; call Sync first to make changes durable. Close is
// idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.lock.mu.Lock()
	defer s.lock.mu.Unlock()

	if err := s.region.Close(); err != nil {
		return systemError("close", s.path, err)
	}
	s.log.Debug("closed store")
	return nil
}

// Verify checks the heap's boundary tags and the allocator's index. It
// waits for active writer scopes.
func (s *Store) Verify() (*alloc.Report, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.lock.RLock(); err != nil {
		return nil, systemError("lock", s.path, err)
	}
	defer func() { _ = s.lock.RUnlock() }()
	return s.alloc.Verify()
}

// HeaderInfo is a decoded copy of the header page.
type HeaderInfo struct {
	Major, Minor uint16
	PrimarySeq   uint32
	SecondarySeq uint32
	DataSize     uint64
	Root         Offset
	Timestamp    time.Time
	Allocated    uint64
	Alignment    uint32
	Generation   uint64
}

// Header returns a decoded copy of the header page.
func (s *Store) Header() (HeaderInfo, error) {
	if s.closed.Load() {
		return HeaderInfo{}, ErrClosed
	}
	if err := s.lock.RLock(); err != nil {
		return HeaderInfo{}, systemError("lock", s.path, err)
	}
	defer func() { _ = s.lock.RUnlock() }()
	return decodeHeader(s.region.Bytes()), nil
}

func decodeHeader(b []byte) HeaderInfo {
	return HeaderInfo{
		Major:        format.ReadU16(b, format.MajorVersionOffset),
		Minor:        format.ReadU16(b, format.MinorVersionOffset),
		PrimarySeq:   format.ReadU32(b, format.PrimarySeqOffset),
		SecondarySeq: format.ReadU32(b, format.SecondarySeqOffset),
		DataSize:     format.ReadU64(b, format.DataSizeOffset),
		Root:         Offset(format.ReadU64(b, format.RootOffset)),
		Timestamp:    time.Unix(0, int64(format.ReadU64(b, format.TimeStampOffset))),
		Allocated:    format.ReadU64(b, format.AllocatedOffset),
		Alignment:    format.ReadU32(b, format.AlignmentOffset),
		Generation:   format.ReadU64(b, format.GenerationOffset),
	}
}

// Stats reports store and allocator counters.
type Stats struct {
	Alloc alloc.Stats

	FileSize   int64
	Epoch      uint64
	Generation uint64
	Root       Offset
	Clean      bool

	ReadScopes    int64 // reader scopes entered (owning only)
	WriteScopes   int64 // writer scopes entered (owning only)
	ActiveReaders int64
	ActiveWriters int64
	Syncs         int64 // syncs that flushed a pending transaction
}

// Stats returns a snapshot of the store's counters. It waits for active
// writer scopes.
func (s *Store) Stats() (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}
	if err := s.lock.RLock(); err != nil {
		return Stats{}, systemError("lock", s.path, err)
	}
	defer func() { _ = s.lock.RUnlock() }()
	return s.stats(), nil
}

func (s *Store) stats() Stats {
	data := s.region.Bytes()
	return Stats{
		Alloc:         s.alloc.Stats(),
		FileSize:      int64(len(data)),
		Epoch:         s.epoch,
		Generation:    format.ReadU64(data, format.GenerationOffset),
		Root:          Offset(format.ReadU64(data, format.RootOffset)),
		Clean:         s.clean,
		ReadScopes:    s.readScopes.Load(),
		WriteScopes:   s.writeScopes.Load(),
		ActiveReaders: s.activeReaders.Load(),
		ActiveWriters: s.activeWriters.Load(),
		Syncs:         s.syncs.Load(),
	}
}

// needsRemap reports whether another process grew the file beyond the
// current mapping. The caller must hold the lock.
func (s *Store) needsRemap() bool {
	data := s.region.Bytes()
	return format.HeaderSize+format.ReadU64(data, format.DataSizeOffset) > uint64(len(data))
}

// remap extends the mapping to cover the heap recorded in the header. The
// caller must hold the lock exclusively.
func (s *Store) remap() error {
	data := s.region.Bytes()
	want := format.HeaderSize + format.ReadU64(data, format.DataSizeOffset)
	if want <= uint64(len(data)) {
		return nil
	}
	old := len(data)
	if err := s.region.Grow(int64(want) - int64(old)); err != nil {
		return systemError("remap", s.path, err)
	}
	s.onGrow(int64(old), int64(len(s.region.Bytes())))
	return nil
}

// prepareWrite brings the mapping, allocator and sequence state up to date
// with the header before a writer scope starts. The caller must hold the
// lock exclusively.
func (s *Store) prepareWrite() error {
	if err := s.remap(); err != nil {
		return err
	}
	data := s.region.Bytes()
	if gen := format.ReadU64(data, format.GenerationOffset); gen != s.allocGen {
		a, err := s.alloc.Reload()
		if err != nil {
			return formatError("reload", s.path, "corrupt heap", err)
		}
		s.alloc = a
		s.tx.reload()
		s.log.Debug("reloaded allocator after external write", "generation", gen)
	}

	s.touched = false
	return nil
}

// touch records that the active writer scope may have changed the heap. The
// first touch after a sync opens the transaction; every writer scope that
// touches the heap bumps the header generation so other processes know to
// reload their free lists. The caller must hold the lock exclusively.
func (s *Store) touch() {
	if s.touched {
		return
	}
	s.touched = true
	s.tx.begin()
	data := s.region.Bytes()
	gen := format.ReadU64(data, format.GenerationOffset) + 1
	format.PutU64(data, format.GenerationOffset, gen)
	format.UpdateChecksum(data)
	s.allocGen = gen
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%s)", storeName(s.path))
}
