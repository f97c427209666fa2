package db

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/joshuapare/ngfkit/db/alloc"
	"github.com/joshuapare/ngfkit/internal/format"
)

// Mode is the lock mode of a scope.
type Mode int

const (
	// ReadMode shares the store with other readers.
	ReadMode Mode = iota
	// WriteMode holds the store exclusively and allows mutation.
	WriteMode
)

// String returns the mode name.
func (m Mode) String() string {
	if m == WriteMode {
		return "write"
	}
	return "read"
}

// Scope binds one store, its current mapping and a lock mode. Every
// dereference and mutation takes the scope it runs under, so there is no
// ambient "current store": code that needs the store receives the scope.
//
// A scope belongs to the goroutine that began it and must not be used after
// it ends. Nested scopes are children of the scope they were begun from; a
// child on a store already held by an ancestor shares the ancestor's lock.
type Scope struct {
	store  *Store
	parent *Scope
	mode   Mode
	owns   bool // this scope took the lock and releases it at End
	ended  bool

	data  []byte // mapping bound at entry or at the last rebind
	epoch uint64
	stale []span // mappings superseded while this scope was active, oldest first
}

// span records where a superseded mapping lived.
type span struct {
	base uintptr
	n    uintptr
}

// Read runs fn inside a reader scope on s.
func (s *Store) Read(fn func(sc *Scope) error) error {
	return s.run(nil, ReadMode, fn)
}

// Write runs fn inside a writer scope on s.
func (s *Store) Write(fn func(sc *Scope) error) error {
	return s.run(nil, WriteMode, fn)
}

// Begin enters a top-level scope. The caller must call End, typically with
// defer.
func (s *Store) Begin(mode Mode) (*Scope, error) {
	return s.begin(nil, mode)
}

// Read runs fn inside a reader scope on st nested under sc.
func (sc *Scope) Read(st *Store, fn func(sc *Scope) error) error {
	sc.live()
	return st.run(sc, ReadMode, fn)
}

// Write runs fn inside a writer scope on st nested under sc. If an enclosing
// scope holds st for reading it returns ErrLockUpgrade.
func (sc *Scope) Write(st *Store, fn func(sc *Scope) error) error {
	sc.live()
	return st.run(sc, WriteMode, fn)
}

// Begin enters a scope on st nested under sc.
func (sc *Scope) Begin(st *Store, mode Mode) (*Scope, error) {
	sc.live()
	return st.begin(sc, mode)
}

func (s *Store) run(parent *Scope, mode Mode, fn func(sc *Scope) error) (err error) {
	sc, err := s.begin(parent, mode)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := sc.End(); err == nil {
			err = endErr
		}
	}()
	return fn(sc)
}

func (s *Store) begin(parent *Scope, mode Mode) (*Scope, error) {
	// Re-entering a store held by an ancestor takes no lock.
	for a := parent; a != nil; a = a.parent {
		if a.store != s || !a.owns {
			continue
		}
		if mode == WriteMode && a.mode == ReadMode {
			return nil, ErrLockUpgrade
		}
		sc := &Scope{store: s, parent: parent, mode: mode}
		sc.bind()
		return sc, nil
	}

	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.acquire(mode); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		_ = s.release(mode)
		return nil, ErrClosed
	}

	if mode == WriteMode {
		if err := s.prepareWrite(); err != nil {
			_ = s.release(mode)
			return nil, err
		}
		s.writeScopes.Add(1)
		s.activeWriters.Add(1)
	} else {
		s.readScopes.Add(1)
		s.activeReaders.Add(1)
	}

	sc := &Scope{store: s, parent: parent, mode: mode, owns: true}
	sc.bind()
	return sc, nil
}

// acquire takes the store lock. A reader that finds the file grown by
// another process briefly takes the lock exclusively to remap.
func (s *Store) acquire(mode Mode) error {
	if mode == WriteMode {
		if err := s.lock.Lock(); err != nil {
			return systemError("lock", s.path, err)
		}
		return nil
	}
	for {
		if err := s.lock.RLock(); err != nil {
			return systemError("lock", s.path, err)
		}
		if !s.opts.ProcessLock || !s.needsRemap() {
			return nil
		}
		_ = s.lock.RUnlock()

		if err := s.lock.Lock(); err != nil {
			return systemError("lock", s.path, err)
		}
		err := s.remap()
		_ = s.lock.Unlock()
		if err != nil {
			return err
		}
	}
}

func (s *Store) release(mode Mode) error {
	var err error
	if mode == WriteMode {
		err = s.lock.Unlock()
	} else {
		err = s.lock.RUnlock()
	}
	if err != nil {
		return systemError("unlock", s.path, err)
	}
	return nil
}

// End leaves the scope, releasing its lock if it took one. Calling End more
// than once is a no-op.
func (sc *Scope) End() error {
	if sc.ended {
		return nil
	}
	sc.ended = true
	sc.data = nil
	if !sc.owns {
		return nil
	}

	s := sc.store
	if sc.mode == WriteMode {
		if s.touched && s.dt != nil && !s.opts.TrackAllocationsOnly {
			s.dt.AddAll()
		}
		s.activeWriters.Add(-1)
	} else {
		s.activeReaders.Add(-1)
	}
	return s.release(sc.mode)
}

// Store returns the store the scope is bound to.
func (sc *Scope) Store() *Store { return sc.store }

// Mode returns the scope's lock mode.
func (sc *Scope) Mode() Mode { return sc.mode }

// Parent returns the enclosing scope, or nil for a top-level scope.
func (sc *Scope) Parent() *Scope { return sc.parent }

// Sync runs Store.Sync from inside a scope on the same store.
func (sc *Scope) Sync(ctx context.Context) error {
	sc.live()
	return sc.store.sync(ctx)
}

// Stats returns the store's counters from inside a scope.
func (sc *Scope) Stats() Stats {
	sc.live()
	return sc.store.stats()
}

// Relocate translates p, which pointed into a mapping of this store that
// has since been replaced by a grow, into the current mapping. Pointers
// already in the current mapping are returned unchanged. It panics if p
// belongs to neither.
func (sc *Scope) Relocate(p unsafe.Pointer) unsafe.Pointer {
	data := sc.bytes()
	addr := uintptr(p)
	for i := len(sc.stale) - 1; i >= 0; i-- {
		old := sc.stale[i]
		if addr >= old.base && addr < old.base+old.n {
			off := addr - old.base
			if off >= uintptr(len(data)) {
				break
			}
			return unsafe.Pointer(&data[off])
		}
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	if addr >= base && addr < base+uintptr(len(data)) {
		return p
	}
	panic(fmt.Sprintf("ngf: pointer %#x does not belong to %s", addr, sc.store))
}

// Image returns the header page and heap as one view of the mapping, for
// copying the store out. It is valid until the scope ends or the store
// grows, and must not be modified.
func (sc *Scope) Image() []byte {
	data := sc.bytes()
	end := min(format.HeaderSize+format.ReadU64(data, format.DataSizeOffset), uint64(len(data)))
	return data[:end:end]
}

// Root returns the raw root offset.
func (sc *Scope) Root() Offset {
	return Offset(format.ReadU64(sc.bytes(), format.RootOffset))
}

// GetRoot returns the root as a reference to T. It is the null reference
// until a root has been set.
func GetRoot[T any](sc *Scope) Ref[T] {
	return refAt[T](sc.Root())
}

// SetRoot publishes r as the store's root. r must name a complete graph:
// readers may follow it as soon as the writer scope ends. Call Sync to make
// it durable. The null reference is rejected with ErrNullRoot.
func SetRoot[T any](sc *Scope, r Ref[T]) error {
	sc.mustWrite("SetRoot")
	if r.IsNull() {
		return ErrNullRoot
	}
	var zero T
	data := sc.checkRef(uint64(r.off), uint64(unsafe.Sizeof(zero)), false)
	sc.store.touch()
	format.PutU64(data, format.RootOffset, uint64(r.off))
	format.UpdateChecksum(data)
	return nil
}

// Malloc allocates a zeroed T.
func Malloc[T any](sc *Scope) (Ref[T], error) {
	var zero T
	return MallocSize[T](sc, uint64(unsafe.Sizeof(zero)))
}

// MallocSize allocates size zeroed bytes headed by a T, for objects with a
// variable-length tail. size must be at least the size of T.
func MallocSize[T any](sc *Scope, size uint64) (Ref[T], error) {
	var zero T
	if size < uint64(unsafe.Sizeof(zero)) {
		panic(fmt.Sprintf("ngf: MallocSize of %d bytes is smaller than %T", size, zero))
	}
	off, err := sc.malloc(size)
	if err != nil {
		return Ref[T]{}, err
	}
	return refAt[T](off), nil
}

// Free returns r's block to the allocator. Any other reference to it becomes
// invalid.
func Free[T any](sc *Scope, r Ref[T]) error {
	return sc.free(r.off)
}

// FreeObject frees the block an Object refers to.
func (sc *Scope) FreeObject(o Object) error {
	return sc.free(o.Offset())
}

func (sc *Scope) malloc(size uint64) (Offset, error) {
	sc.mustWrite("Malloc")
	sc.store.touch()
	off, err := sc.store.alloc.Alloc(size)
	if err != nil {
		return 0, sc.store.allocError("malloc", err)
	}
	return Offset(off), nil
}

func (sc *Scope) free(off Offset) error {
	sc.mustWrite("Free")
	sc.store.touch()
	if err := sc.store.alloc.Free(uint64(off)); err != nil {
		return sc.store.allocError("free", err)
	}
	return nil
}

// allocError classifies allocator failures: a failed grow is the OS
// refusing space, anything else is a bad reference or a damaged heap.
func (s *Store) allocError(op string, err error) error {
	if errors.Is(err, alloc.ErrGrowFail) {
		return systemError(op, s.path, err)
	}
	return formatError(op, s.path, "", err)
}

// bind attaches the scope to the store's current mapping.
func (sc *Scope) bind() {
	sc.data = sc.store.region.Bytes()
	sc.epoch = sc.store.epoch
}

// bytes returns the current mapping, rebinding first if the store grew since
// the scope last looked.
func (sc *Scope) bytes() []byte {
	sc.live()
	if sc.epoch != sc.store.epoch {
		sc.stale = append(sc.stale, span{
			base: uintptr(unsafe.Pointer(unsafe.SliceData(sc.data))),
			n:    uintptr(len(sc.data)),
		})
		sc.bind()
	}
	return sc.data
}

// checkRef validates that off names an allocated block with at least n
// payload bytes and returns the current mapping. write marks the heap
// changed when sc is a writer scope.
func (sc *Scope) checkRef(off, n uint64, write bool) []byte {
	data := sc.bytes()
	end := min(format.HeaderSize+format.ReadU64(data, format.DataSizeOffset), uint64(len(data)))
	switch {
	case off == 0:
		panic("ngf: dereferencing the null reference")
	case off&format.AlignmentMask != 0:
		panic(fmt.Sprintf("ngf: misaligned reference 0x%X", off))
	case off < format.HeaderSize+format.BlockHeaderSize || off+n > end || off+n < off:
		panic(fmt.Sprintf("ngf: reference 0x%X+%d outside heap [0x%X,0x%X)", off, n, format.HeaderSize, end))
	}
	tag := format.ReadI64(data, int(off-format.BlockHeaderSize))
	if tag >= 0 || uint64(-tag)-format.BlockHeaderSize < n {
		panic(fmt.Sprintf("ngf: reference 0x%X does not name an allocated block of %d bytes", off, n))
	}
	if write && sc.mode == WriteMode {
		sc.store.touch()
	}
	return data
}

func (sc *Scope) live() {
	if sc.ended {
		panic("ngf: scope used after End")
	}
}

func (sc *Scope) mustWrite(op string) {
	sc.live()
	if sc.mode != WriteMode {
		panic("ngf: " + op + " in a reader scope")
	}
}
